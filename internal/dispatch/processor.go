package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/distlock"
	"github.com/courtside/mailer/internal/pkg/logger"
	"github.com/courtside/mailer/internal/render"
	"github.com/courtside/mailer/internal/service/sending"
)

var log = logger.Named("dispatch")

// Recipient variables added to each personalized render.
const (
	VarRecipientEmail   = "recipient_email"
	VarRecipientID      = "recipient_id"
	VarRecipientRole    = "recipient_role"
	VarRecipientCountry = "recipient_country"
)

// RecipientSource resolves an audience. *postgres.RecipientRepo implements it.
type RecipientSource interface {
	ListRecipients(ctx context.Context, a domain.Audience) ([]domain.Recipient, error)
}

// TemplateRenderer renders campaign content. *render.Renderer implements it.
type TemplateRenderer interface {
	Template(ctx context.Context, key string) (*domain.Template, error)
	RenderTemplate(t *domain.Template, vars render.Vars) domain.RenderedEmail
}

// Sender delivers rendered mail. *sending.Service implements it.
type Sender interface {
	SendTracked(ctx context.Context, msg sending.Message) sending.SendResult
	SendTrackedBatch(ctx context.Context, req sending.BatchRequest) sending.BatchResult
}

// Locker hands out per-campaign locks. *distlock.Factory implements it.
type Locker interface {
	New(key string) distlock.DistLock
	TTL() time.Duration
}

// Processor executes one campaign job.
type Processor struct {
	recipients RecipientSource
	renderer   TemplateRenderer
	sender     Sender
	locks      Locker
}

// NewProcessor wires a job processor.
func NewProcessor(recipients RecipientSource, renderer TemplateRenderer, sender Sender, locks Locker) *Processor {
	return &Processor{recipients: recipients, renderer: renderer, sender: sender, locks: locks}
}

// Process runs job under the campaign lock, refreshing it until the job
// returns. Losing the lock cancels the remaining sends. It returns ErrLockHeld when
// another worker owns the campaign and ErrTemplateMissing when there is
// nothing to render.
func (p *Processor) Process(ctx context.Context, job Job) (*Report, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	lock := p.locks.New(distlock.CampaignKey(job.CampaignID))
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, distlock.ErrNotOwned) {
			log.Warn("failed to release campaign lock", "campaign_id", job.CampaignID, "err", err)
		}
	}()
	ctx, stopKeepAlive := distlock.KeepAlive(ctx, lock, p.locks.TTL())
	defer stopKeepAlive()

	tpl, err := p.renderer.Template(ctx, job.TemplateKey)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, job.TemplateKey)
	}

	audience := job.Audience
	audience.TestOnly = audience.TestOnly || job.TestOnly
	recipients, err := p.recipients.ListRecipients(ctx, audience)
	if err != nil {
		return nil, fmt.Errorf("load audience: %w", err)
	}

	if job.TestOnly {
		return p.sendTests(ctx, job, tpl, recipients), nil
	}
	return p.sendCampaign(ctx, job, tpl, recipients), nil
}

func (p *Processor) sendCampaign(ctx context.Context, job Job, tpl *domain.Template, recipients []domain.Recipient) *Report {
	infos := make([]domain.RecipientInfo, 0, len(recipients))
	for _, r := range recipients {
		infos = append(infos, r.Info())
	}
	shared := p.renderer.RenderTemplate(tpl, job.Variables)

	res := p.sender.SendTrackedBatch(ctx, sending.BatchRequest{
		Recipients:  infos,
		Subject:     shared.Subject,
		HTML:        shared.HTML,
		Text:        shared.Text,
		TemplateKey: job.TemplateKey,
		CampaignID:  job.CampaignID,
		Personalize: func(_ context.Context, r domain.RecipientInfo) (*domain.RenderedEmail, error) {
			email := p.renderer.RenderTemplate(tpl, RecipientVars(job.Variables, r))
			return &email, nil
		},
	})

	log.Info("campaign dispatched", "campaign_id", job.CampaignID, "template_key", job.TemplateKey,
		"recipients", len(recipients), "sent", res.Stats.Sent, "failed", res.Stats.Failed)
	return &Report{
		CampaignID: job.CampaignID,
		Recipients: len(recipients),
		Sent:       res.Stats.Sent,
		Failed:     res.Stats.Failed,
		Skipped:    res.Stats.Skipped,
	}
}

func (p *Processor) sendTests(ctx context.Context, job Job, tpl *domain.Template, recipients []domain.Recipient) *Report {
	report := &Report{CampaignID: job.CampaignID, Test: true}
	for _, r := range recipients {
		if !r.IsTest {
			continue
		}
		report.Recipients++
		info := r.Info()
		email := p.renderer.RenderTemplate(tpl, RecipientVars(job.Variables, info))
		res := p.sender.SendTracked(ctx, sending.Message{
			To:          info,
			Subject:     email.Subject,
			HTML:        email.HTML,
			Text:        email.Text,
			TemplateKey: job.TemplateKey,
			CampaignID:  job.CampaignID,
			IsTest:      true,
		})
		switch {
		case res.Skipped:
			report.Skipped++
		case res.Success:
			report.Sent++
		default:
			report.Failed++
		}
	}
	log.Info("campaign test send complete", "campaign_id", job.CampaignID, "recipients", report.Recipients,
		"sent", report.Sent, "failed", report.Failed)
	return report
}

// RecipientVars layers a recipient's identity over the campaign variables.
func RecipientVars(base map[string]string, r domain.RecipientInfo) render.Vars {
	vars := make(render.Vars, len(base)+4)
	for k, v := range base {
		vars[k] = v
	}
	vars[VarRecipientEmail] = r.Email
	vars[VarRecipientID] = r.RecipientID
	vars[VarRecipientRole] = r.Role
	vars[VarRecipientCountry] = r.Country
	return vars
}
