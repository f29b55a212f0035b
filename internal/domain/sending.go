package domain

import (
	"strings"
	"time"
)

// SendStatus is the delivery status of a send ledger record.
type SendStatus string

const (
	StatusSent         SendStatus = "sent"
	StatusFailed       SendStatus = "failed"
	StatusDelivered    SendStatus = "delivered"
	StatusOpened       SendStatus = "opened"
	StatusClicked      SendStatus = "clicked"
	StatusBounced      SendStatus = "bounced"
	StatusComplained   SendStatus = "complained"
	StatusUnsubscribed SendStatus = "unsubscribed"
)

// statusPriority orders statuses for monotonic advancement. The negative
// outcomes sit above the whole engagement progression.
var statusPriority = map[SendStatus]int{
	StatusFailed:       -1,
	StatusSent:         0,
	StatusDelivered:    1,
	StatusOpened:       2,
	StatusClicked:      3,
	StatusBounced:      10,
	StatusComplained:   11,
	StatusUnsubscribed: 12,
}

// Priority returns the ordering weight of the status. Unknown statuses rank
// below every known one.
func (s SendStatus) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return -2
}

// Outranks reports whether s may replace current.
func (s SendStatus) Outranks(current SendStatus) bool {
	return s.Priority() > current.Priority()
}

// Valid reports whether s is a known status.
func (s SendStatus) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// OrderedStatuses lists every status in ascending priority.
func OrderedStatuses() []SendStatus {
	return []SendStatus{
		StatusFailed, StatusSent, StatusDelivered, StatusOpened, StatusClicked,
		StatusBounced, StatusComplained, StatusUnsubscribed,
	}
}

// SendRecord is one row of the send ledger.
type SendRecord struct {
	ID                string         `json:"id" db:"id"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" db:"provider_message_id"`
	TemplateKey       string         `json:"template_key" db:"template_key"`
	CampaignID        string         `json:"campaign_id,omitempty" db:"campaign_id"`
	RecipientEmail    string         `json:"recipient_email" db:"recipient_email"`
	RecipientID       string         `json:"recipient_id,omitempty" db:"recipient_id"`
	RecipientRole     string         `json:"recipient_role,omitempty" db:"recipient_role"`
	RecipientCountry  string         `json:"recipient_country,omitempty" db:"recipient_country"`
	Subject           string         `json:"subject" db:"subject"`
	Status            SendStatus     `json:"status" db:"status"`
	Metadata          map[string]any `json:"metadata,omitempty" db:"metadata"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenedAt          *time.Time     `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt         *time.Time     `json:"clicked_at,omitempty" db:"clicked_at"`
	BouncedAt         *time.Time     `json:"bounced_at,omitempty" db:"bounced_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// RecipientInfo identifies the person a message is addressed to.
type RecipientInfo struct {
	Email       string `json:"email" validate:"required,email"`
	RecipientID string `json:"recipient_id,omitempty"`
	Role        string `json:"role,omitempty"`
	Country     string `json:"country,omitempty"`
}

// NormalizedEmail returns the address in the form used for comparisons.
func (r RecipientInfo) NormalizedEmail() string {
	return NormalizeEmail(r.Email)
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Recipient is a row of the external recipient directory.
type Recipient struct {
	ID      string `json:"id" db:"id"`
	Email   string `json:"email" db:"email"`
	Role    string `json:"role,omitempty" db:"role"`
	Country string `json:"country,omitempty" db:"country"`
	IsTest  bool   `json:"is_test" db:"is_test"`
}

// Info converts a directory row to the addressing form used by senders.
func (r Recipient) Info() RecipientInfo {
	return RecipientInfo{Email: r.Email, RecipientID: r.ID, Role: r.Role, Country: r.Country}
}

// Audience selects directory recipients for a campaign. Empty lists match
// everyone.
type Audience struct {
	RecipientIDs []string `json:"recipient_ids,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	Countries    []string `json:"countries,omitempty"`
	TestOnly     bool     `json:"test_only,omitempty"`
}
