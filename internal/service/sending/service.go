package sending

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/metrics"
	"github.com/courtside/mailer/internal/pkg/httpretry"
	"github.com/courtside/mailer/internal/pkg/logger"
	"github.com/courtside/mailer/internal/provider"
)

var log = logger.Named("sending")

const (
	// DefaultChunkSize is the number of recipients per batch call.
	DefaultChunkSize = provider.MaxBatchSize
	// DefaultChunkDelay paces consecutive batch calls.
	DefaultChunkDelay = 600 * time.Millisecond
)

// Options configures a Service.
type Options struct {
	From           string
	ReplyTo        string
	UnsubscribeURL string

	// Individual is the retry policy of SendTracked.
	Individual httpretry.Policy
	// Batch is the retry policy of each batch chunk.
	Batch httpretry.Policy

	ChunkSize  int
	ChunkDelay time.Duration

	// Sleep replaces real waits (backoff and chunk pacing) in tests.
	Sleep httpretry.SleepFunc
	Now   func() time.Time
	NewID func() string
}

// DefaultOptions returns the production retry and pacing settings:
// individual sends get three attempts starting at 500ms backoff, batch
// chunks get three retries starting at one second.
func DefaultOptions() Options {
	return Options{
		Individual: httpretry.Policy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second},
		Batch:      httpretry.Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		ChunkSize:  DefaultChunkSize,
		ChunkDelay: DefaultChunkDelay,
	}
}

// Service sends tracked email. It holds no per-request state and is safe
// for concurrent use.
type Service struct {
	provider  Provider
	ledger    Ledger
	whitelist *Whitelist
	opts      Options
}

// NewService creates a sending service.
func NewService(p Provider, ledger Ledger, whitelist *Whitelist, opts Options) *Service {
	if opts.ChunkSize <= 0 || opts.ChunkSize > provider.MaxBatchSize {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkDelay < 0 {
		opts.ChunkDelay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = httpretry.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	opts.Individual.Sleep = opts.Sleep
	opts.Batch.Sleep = opts.Sleep
	return &Service{provider: p, ledger: ledger, whitelist: whitelist, opts: opts}
}

// Message is a single rendered email addressed to one recipient.
type Message struct {
	To          domain.RecipientInfo
	Subject     string
	HTML        string
	Text        string
	TemplateKey string
	CampaignID  string
	// IsTest marks operator test sends; they are tagged and never recorded.
	IsTest bool
}

// SendResult is the outcome of SendTracked.
type SendResult struct {
	Success           bool   `json:"success"`
	Skipped           bool   `json:"skipped,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
	Retried           bool   `json:"retried"`
	Attempts          int    `json:"attempts"`
}

// SendTracked sends one message with retry and records the outcome in the
// ledger. A recipient rejected by the whitelist yields Success and Skipped
// without side effects.
func (s *Service) SendTracked(ctx context.Context, msg Message) SendResult {
	if !s.whitelist.IsAllowed(msg.To.Email) {
		log.Info("recipient not on allow-list, skipping send",
			"recipient_email", msg.To.Email, "template_key", msg.TemplateKey)
		metrics.RecordSend("individual", "skipped")
		return SendResult{Success: true, Skipped: true}
	}

	email := s.buildEmail(msg.To.Email, msg.Subject, msg.HTML, msg.Text, msg.TemplateKey, msg.CampaignID, msg.IsTest)

	var resp *provider.SendResponse
	policy := s.policy(s.opts.Individual, "send")
	outcome, err := policy.Do(ctx, func(ctx context.Context) error {
		r, err := s.provider.Send(ctx, email)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	result := SendResult{Attempts: outcome.Attempts, Retried: outcome.Retried()}
	if err != nil {
		result.Error = err.Error()
		metrics.RecordProviderAttempt("send", "error")
		metrics.RecordSend("individual", "failed")
		log.Error("send failed", "template_key", msg.TemplateKey, "recipient_email", msg.To.Email,
			"attempts", outcome.Attempts, "err", err)
		if !msg.IsTest {
			rec := s.newRecord(msg.To, msg.TemplateKey, msg.CampaignID, msg.Subject, domain.StatusFailed, "")
			rec.Metadata = map[string]any{"error": err.Error(), "attempts": outcome.Attempts}
			s.record(ctx, []domain.SendRecord{rec})
		}
		return result
	}

	metrics.RecordProviderAttempt("send", "ok")
	metrics.RecordSend("individual", "sent")
	result.Success = true
	result.ProviderMessageID = resp.ID
	log.Info("email sent", "template_key", msg.TemplateKey, "provider_message_id", resp.ID,
		"retried", result.Retried, "test", msg.IsTest)

	if !msg.IsTest {
		rec := s.newRecord(msg.To, msg.TemplateKey, msg.CampaignID, msg.Subject, domain.StatusSent, resp.ID)
		if result.Retried {
			rec.Metadata = map[string]any{"attempts": outcome.Attempts}
		}
		s.record(ctx, []domain.SendRecord{rec})
	}
	return result
}

func (s *Service) policy(base httpretry.Policy, endpoint string) httpretry.Policy {
	base.OnRetry = func(retry int, delay time.Duration, err error) {
		metrics.RecordProviderAttempt(endpoint, "retry")
		log.Warn("provider call failed, retrying", "endpoint", endpoint, "retry", retry,
			"delay_ms", delay.Milliseconds(), "err", err)
	}
	return base
}

func (s *Service) buildEmail(to, subject, html, text, templateKey, campaignID string, isTest bool) *provider.Email {
	email := &provider.Email{
		From:    s.opts.From,
		To:      []string{to},
		ReplyTo: s.opts.ReplyTo,
		Subject: subject,
		HTML:    html,
		Text:    text,
		Tags:    []provider.Tag{provider.NewTag("template_key", templateKey)},
	}
	if campaignID != "" {
		email.Tags = append(email.Tags, provider.NewTag("campaign_id", campaignID))
	}
	if isTest {
		email.Tags = append(email.Tags, provider.NewTag("test", "true"))
	}
	if s.opts.UnsubscribeURL != "" {
		email.Headers = map[string]string{
			"List-Unsubscribe":      "<" + s.opts.UnsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		}
	}
	return email
}

func (s *Service) newRecord(to domain.RecipientInfo, templateKey, campaignID, subject string, status domain.SendStatus, providerID string) domain.SendRecord {
	now := s.opts.Now().UTC()
	return domain.SendRecord{
		ID:                s.opts.NewID(),
		ProviderMessageID: providerID,
		TemplateKey:       templateKey,
		CampaignID:        campaignID,
		RecipientEmail:    to.Email,
		RecipientID:       to.RecipientID,
		RecipientRole:     to.Role,
		RecipientCountry:  to.Country,
		Subject:           subject,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// record writes ledger rows. It survives cancellation of the request context
// so that a message the provider accepted is not lost from the ledger.
func (s *Service) record(ctx context.Context, records []domain.SendRecord) {
	if len(records) == 0 || s.ledger == nil {
		return
	}
	if err := s.ledger.RecordSends(context.WithoutCancel(ctx), records); err != nil {
		log.Error("ledger write failed", "records", len(records), "err", err)
	}
}
