// Package dispatch runs campaign sends off an SQS queue. The API publishes a
// Job; the worker consumes it, resolves the audience from the recipient
// directory and hands the rendered campaign to the batch sender.
package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/courtside/mailer/internal/domain"
)

// Sentinel errors for campaign dispatch.
var (
	ErrInvalidJob      = errors.New("invalid campaign job")
	ErrLockHeld        = errors.New("campaign is being dispatched by another worker")
	ErrTemplateMissing = errors.New("no active template for campaign")
)

// Job is the queue message describing one campaign send.
type Job struct {
	CampaignID  string            `json:"campaign_id" validate:"required"`
	TemplateKey string            `json:"template_key" validate:"required"`
	Variables   map[string]string `json:"variables,omitempty"`
	Audience    domain.Audience   `json:"audience"`
	// TestOnly sends to directory test recipients without ledger tracking.
	TestOnly   bool      `json:"test_only,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Validate checks the fields a consumer cannot work without.
func (j Job) Validate() error {
	var missing []string
	if strings.TrimSpace(j.CampaignID) == "" {
		missing = append(missing, "campaign_id")
	}
	if strings.TrimSpace(j.TemplateKey) == "" {
		missing = append(missing, "template_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidJob, strings.Join(missing, ", "))
	}
	return nil
}

// Report summarises a processed job.
type Report struct {
	CampaignID string `json:"campaign_id"`
	Recipients int    `json:"recipients"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Test       bool   `json:"test"`
}
