package domain

import (
	"encoding/json"
	"time"
)

// DeliveryEvent is an immutable audit row for one verified provider callback.
// SendID is empty when no ledger record matched the provider message id.
type DeliveryEvent struct {
	ID                string          `json:"id" db:"id"`
	SendID            string          `json:"send_id,omitempty" db:"send_id"`
	ProviderMessageID string          `json:"provider_message_id" db:"provider_message_id"`
	EventType         SendStatus      `json:"event_type" db:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at" db:"occurred_at"`
	RawPayload        json.RawMessage `json:"raw_payload" db:"raw_payload"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// StatusUpdate describes a monotonic status advance on a ledger record.
// The timestamp columns touched depend on Status:
//   - delivered, opened, clicked: delivered_at if unset
//   - opened, clicked: opened_at if unset
//   - clicked: clicked_at
//   - bounced: bounced_at
type StatusUpdate struct {
	Status     SendStatus
	OccurredAt time.Time
}

// BackfillsDelivered reports whether the update sets delivered_at when unset.
func (u StatusUpdate) BackfillsDelivered() bool {
	return u.Status == StatusDelivered || u.Status == StatusOpened || u.Status == StatusClicked
}

// BackfillsOpened reports whether the update sets opened_at when unset.
func (u StatusUpdate) BackfillsOpened() bool {
	return u.Status == StatusOpened || u.Status == StatusClicked
}
