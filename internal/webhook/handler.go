package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/courtside/mailer/internal/metrics"
	"github.com/courtside/mailer/internal/pkg/httputil"
	"github.com/courtside/mailer/internal/pkg/logger"
	"github.com/courtside/mailer/internal/service/ledger"
)

var log = logger.Named("webhook")

// Path is where the provider posts callbacks.
const Path = "/webhooks/email"

const maxBodyBytes = 1 << 20

// Applier records a verified delivery. *ledger.Service implements it.
type Applier interface {
	ApplyDelivery(ctx context.Context, d ledger.Delivery) (ledger.Outcome, error)
}

// Handler serves the delivery callback endpoint.
type Handler struct {
	verifier *Verifier
	ledger   Applier
	now      func() time.Time
}

// NewHandler creates a webhook handler. A nil verifier or one without a key
// makes every request fail with 500.
func NewHandler(verifier *Verifier, ledger Applier) *Handler {
	return &Handler{verifier: verifier, ledger: ledger, now: time.Now}
}

// RegisterRoutes mounts the callback endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(Path, h.ServeHTTP)
}

// ServeHTTP verifies and applies one callback. Once the signature checks
// out the provider always gets 200, so it never retries a payload this
// service cannot use.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderID)

	if !h.verifier.Configured() {
		log.Error("webhook rejected: signing secret not configured", "request_id", requestID)
		metrics.RecordWebhookRejection("not_configured")
		httputil.Text(w, http.StatusInternalServerError, "webhook not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("webhook rejected: unreadable body", "request_id", requestID, "err", err)
		metrics.RecordWebhookRejection("body")
		httputil.Text(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.verifier.Verify(r.Header, body); err != nil {
		reason := rejectionReason(err)
		log.Warn("webhook rejected", "reason", reason, "request_id", requestID,
			"remote_addr", r.RemoteAddr)
		metrics.RecordWebhookRejection(reason)
		httputil.Text(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// The provider retries on any non-2xx, so a disconnect must not abort the write.
	h.process(context.WithoutCancel(r.Context()), requestID, body)
	httputil.Text(w, http.StatusOK, "OK")
}

func (h *Handler) process(ctx context.Context, requestID string, body []byte) {
	payload, err := ParsePayload(body)
	if err != nil {
		log.Warn("webhook payload is not valid JSON", "request_id", requestID, "err", err)
		metrics.RecordWebhookEvent("", "malformed")
		return
	}

	status, ok := StatusFor(payload.Type)
	if !ok {
		log.Debug("ignoring webhook event", "request_id", requestID, "type", payload.Type)
		metrics.RecordWebhookEvent(payload.Type, "ignored")
		return
	}

	out, err := h.ledger.ApplyDelivery(ctx, ledger.Delivery{
		ProviderMessageID: payload.Data.EmailID,
		Status:            status,
		OccurredAt:        payload.OccurredAt(h.now()),
		Payload:           body,
	})
	switch {
	case err != nil:
		log.Error("failed to apply webhook event", "request_id", requestID, "type", payload.Type,
			"provider_message_id", payload.Data.EmailID, "err", err)
		metrics.RecordWebhookEvent(payload.Type, "error")
	case out.Orphan:
		metrics.RecordWebhookEvent(payload.Type, "orphan")
	case out.Applied:
		metrics.RecordWebhookEvent(payload.Type, "applied")
	default:
		metrics.RecordWebhookEvent(payload.Type, "stale")
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, ErrInvalidTimestamp), errors.Is(err, ErrTimestampSkew):
		return "timestamp"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature"
	default:
		return "other"
	}
}
