package webhook

import (
	"encoding/json"
	"time"

	"github.com/courtside/mailer/internal/domain"
)

// Payload is the envelope of a provider callback. Only the fields the
// ledger needs are decoded; the raw body is stored as-is.
type Payload struct {
	Type      string      `json:"type"`
	CreatedAt string      `json:"created_at"`
	Data      PayloadData `json:"data"`
}

// PayloadData carries the message the event refers to.
type PayloadData struct {
	EmailID   string `json:"email_id"`
	CreatedAt string `json:"created_at"`
}

var eventStatus = map[string]domain.SendStatus{
	"email.delivered":      domain.StatusDelivered,
	"email.opened":         domain.StatusOpened,
	"email.clicked":        domain.StatusClicked,
	"email.bounced":        domain.StatusBounced,
	"email.complained":     domain.StatusComplained,
	"email.unsubscribed":   domain.StatusUnsubscribed,
	"contact.unsubscribed": domain.StatusUnsubscribed,
}

// StatusFor maps a provider event type to a ledger status. Event types that
// carry no delivery signal (email.sent, email.delivery_delayed, ...) report
// false.
func StatusFor(eventType string) (domain.SendStatus, bool) {
	s, ok := eventStatus[eventType]
	return s, ok
}

// ParsePayload decodes a callback body.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// OccurredAt returns the event time, falling back to fallback when the
// payload carries no parsable timestamp.
func (p *Payload) OccurredAt(fallback time.Time) time.Time {
	for _, s := range []string{p.CreatedAt, p.Data.CreatedAt} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}
