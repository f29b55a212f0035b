package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/courtside/mailer/internal/dispatch"
	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/httputil"
	"github.com/courtside/mailer/internal/render"
	"github.com/courtside/mailer/internal/service/sending"
)

type sendEmailRequest struct {
	TemplateKey  string            `json:"template_key" validate:"required"`
	To           string            `json:"to" validate:"required,email"`
	Variables    map[string]string `json:"variables"`
	RecipientID  string            `json:"recipient_id"`
	Role         string            `json:"role"`
	Country      string            `json:"country"`
	CampaignID   string            `json:"campaign_id"`
	Test         bool              `json:"test"`
	RequireValid bool              `json:"require_valid"`
}

// SendEmail renders a template and sends it to one recipient.
//
//	POST /api/emails/send
func (h *Handlers) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	preview, err := h.renderer.Preview(r.Context(), req.TemplateKey, req.Variables)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if preview == nil {
		httputil.NotFound(w, "template not found: "+req.TemplateKey)
		return
	}
	if req.RequireValid && !preview.Validation.Valid {
		httputil.ErrorWithDetails(w, http.StatusUnprocessableEntity, "missing required variables",
			"missing_variables", preview.Validation.Missing)
		return
	}

	res := h.sender.SendTracked(r.Context(), sending.Message{
		To: domain.RecipientInfo{
			Email:       req.To,
			RecipientID: req.RecipientID,
			Role:        req.Role,
			Country:     req.Country,
		},
		Subject:     preview.Email.Subject,
		HTML:        preview.Email.HTML,
		Text:        preview.Email.Text,
		TemplateKey: req.TemplateKey,
		CampaignID:  req.CampaignID,
		IsTest:      req.Test,
	})
	if !res.Success {
		httputil.JSON(w, http.StatusBadGateway, res)
		return
	}
	httputil.OK(w, res)
}

type sendBatchRequest struct {
	TemplateKey string                 `json:"template_key" validate:"required"`
	CampaignID  string                 `json:"campaign_id"`
	Variables   map[string]string      `json:"variables"`
	Recipients  []domain.RecipientInfo `json:"recipients" validate:"required,min=1,max=10000,dive"`
	Personalize bool                   `json:"personalize"`
}

// SendBatch renders a template once and sends it to many recipients,
// optionally re-rendering per recipient.
//
//	POST /api/emails/batch
func (h *Handlers) SendBatch(w http.ResponseWriter, r *http.Request) {
	var req sendBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tpl, err := h.renderer.Template(r.Context(), req.TemplateKey)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if tpl == nil {
		httputil.NotFound(w, "template not found: "+req.TemplateKey)
		return
	}

	shared := h.renderer.RenderTemplate(tpl, req.Variables)
	batch := sending.BatchRequest{
		Recipients:  req.Recipients,
		Subject:     shared.Subject,
		HTML:        shared.HTML,
		Text:        shared.Text,
		TemplateKey: req.TemplateKey,
		CampaignID:  req.CampaignID,
	}
	if req.Personalize {
		batch.Personalize = func(_ context.Context, rc domain.RecipientInfo) (*domain.RenderedEmail, error) {
			email := h.renderer.RenderTemplate(tpl, dispatch.RecipientVars(req.Variables, rc))
			return &email, nil
		}
	}

	httputil.OK(w, h.sender.SendTrackedBatch(r.Context(), batch))
}

type previewRequest struct {
	Variables map[string]string `json:"variables"`
}

// PreviewTemplate renders a template without sending it.
//
//	POST /api/templates/{key}/preview
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req previewRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}

	preview, err := h.renderer.Preview(r.Context(), key, render.Vars(req.Variables))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if preview == nil {
		httputil.NotFound(w, "template not found: "+key)
		return
	}
	httputil.OK(w, preview)
}
