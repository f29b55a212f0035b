package api

import (
	"context"
	"net/http"

	"github.com/courtside/mailer/internal/dispatch"
	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/httputil"
	"github.com/courtside/mailer/internal/pkg/logger"
	"github.com/courtside/mailer/internal/render"
	"github.com/courtside/mailer/internal/service/ledger"
	"github.com/courtside/mailer/internal/service/sending"
)

var log = logger.Named("api")

// Renderer renders templates. *render.Renderer implements it.
type Renderer interface {
	Preview(ctx context.Context, key string, vars render.Vars) (*render.Preview, error)
	Template(ctx context.Context, key string) (*domain.Template, error)
	RenderTemplate(t *domain.Template, vars render.Vars) domain.RenderedEmail
}

// Sender delivers mail. *sending.Service implements it.
type Sender interface {
	SendTracked(ctx context.Context, msg sending.Message) sending.SendResult
	SendTrackedBatch(ctx context.Context, req sending.BatchRequest) sending.BatchResult
}

// LedgerReader queries the send ledger. *ledger.Service implements it.
type LedgerReader interface {
	ListSends(ctx context.Context, filter ledger.SendFilter) ([]domain.SendRecord, error)
	ListEvents(ctx context.Context, sendID string) ([]domain.DeliveryEvent, error)
}

// CampaignPublisher enqueues campaign jobs. *dispatch.Publisher implements it.
type CampaignPublisher interface {
	Publish(ctx context.Context, job dispatch.Job) (string, error)
}

// Deps are the collaborators the API is built from. Webhook, Publisher and
// Health are optional.
type Deps struct {
	Renderer  Renderer
	Sender    Sender
	Ledger    LedgerReader
	Publisher CampaignPublisher
	Webhook   WebhookRoutes
	Health    *HealthChecker
}

// Handlers holds the API endpoint handlers.
type Handlers struct {
	renderer  Renderer
	sender    Sender
	ledger    LedgerReader
	publisher CampaignPublisher
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		renderer:  deps.Renderer,
		sender:    deps.Sender,
		ledger:    deps.Ledger,
		publisher: deps.Publisher,
	}
}

// HealthCheck reports liveness.
//
//	GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}
