package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/httputil"
	"github.com/courtside/mailer/internal/service/ledger"
)

// ListSends returns ledger records.
//
//	GET /api/sends?campaign_id=&template_key=&recipient_id=&status=&limit=&offset=
func (h *Handlers) ListSends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.SendFilter{
		CampaignID:  q.Get("campaign_id"),
		TemplateKey: q.Get("template_key"),
		RecipientID: q.Get("recipient_id"),
		Status:      domain.SendStatus(q.Get("status")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		httputil.BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		httputil.BadRequest(w, "invalid offset")
		return
	}

	sends, err := h.ledger.ListSends(r.Context(), filter)
	if errors.Is(err, ledger.ErrInvalidStatus) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"sends": sends, "count": len(sends)})
}

// ListSendEvents returns the delivery history of one send.
//
//	GET /api/sends/{id}/events
func (h *Handlers) ListSendEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.ledger.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"events": events})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}
