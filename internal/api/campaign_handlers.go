package api

import (
	"errors"
	"net/http"

	"github.com/courtside/mailer/internal/dispatch"
	"github.com/courtside/mailer/internal/pkg/httputil"
)

// DispatchCampaign queues a campaign for the worker.
//
//	POST /api/campaigns/dispatch
func (h *Handlers) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	var job dispatch.Job
	if !decodeAndValidate(w, r, &job) {
		return
	}

	messageID, err := h.publisher.Publish(r.Context(), job)
	if errors.Is(err, dispatch.ErrInvalidJob) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	log.Info("campaign queued", "campaign_id", job.CampaignID, "message_id", messageID)
	httputil.Accepted(w, map[string]string{
		"status":      "queued",
		"campaign_id": job.CampaignID,
		"message_id":  messageID,
	})
}
