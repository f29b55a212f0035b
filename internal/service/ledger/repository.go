package ledger

import (
	"context"

	"github.com/courtside/mailer/internal/domain"
)

// Repository defines the data access contract for the send ledger.
type Repository interface {
	// RecordSends bulk-inserts send records.
	RecordSends(ctx context.Context, records []domain.SendRecord) error

	// FindByProviderMessageID returns the record the provider knows by id.
	// Returns ErrNotFound if there is none.
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SendRecord, error)

	// AdvanceStatus moves the record to u.Status if that outranks the stored
	// status, backfilling timestamps. It reports whether a row changed.
	AdvanceStatus(ctx context.Context, sendID string, u domain.StatusUpdate) (bool, error)

	// AppendEvent inserts an immutable delivery event row.
	AppendEvent(ctx context.Context, e domain.DeliveryEvent) error

	// ListSends returns records matching the filter, newest first.
	ListSends(ctx context.Context, filter SendFilter) ([]domain.SendRecord, error)

	// ListEvents returns the events of one send, oldest first.
	ListEvents(ctx context.Context, sendID string) ([]domain.DeliveryEvent, error)
}

// SendFilter controls filtering and pagination for ledger queries.
type SendFilter struct {
	CampaignID  string
	TemplateKey string
	RecipientID string
	Status      domain.SendStatus
	Limit       int
	Offset      int
}

// DefaultLimit and MaxLimit bound ListSends page sizes.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Normalize applies the default and maximum page size.
func (f SendFilter) Normalize() SendFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
