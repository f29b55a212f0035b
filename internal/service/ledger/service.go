package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/logger"
)

var log = logger.Named("ledger")

// Service applies delivery events to the ledger. It is safe for concurrent
// use.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewService creates a ledger service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Delivery is one verified provider event mapped to a ledger status.
type Delivery struct {
	ProviderMessageID string
	Status            domain.SendStatus
	OccurredAt        time.Time
	Payload           json.RawMessage
}

// Outcome reports what ApplyDelivery changed.
type Outcome struct {
	SendID  string
	Orphan  bool
	Applied bool
	EventID string
}

// ApplyDelivery looks up the send record, advances its status when the
// event outranks it (the repository rechecks under concurrency), and appends the event to the log. Orphan events are
// logged and stored without a send id. The event row is written even when
// the status update fails; in that case the update error is returned after
// the append.
func (s *Service) ApplyDelivery(ctx context.Context, d Delivery) (Outcome, error) {
	if !d.Status.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = s.now().UTC()
	}

	var out Outcome
	var updateErr error

	rec, err := s.lookup(ctx, d.ProviderMessageID)
	switch {
	case errors.Is(err, ErrNotFound):
		out.Orphan = true
		log.Warn("delivery event for unknown message", "provider_message_id", d.ProviderMessageID,
			"event_type", string(d.Status))
	case err != nil:
		out.Orphan = true
		updateErr = fmt.Errorf("find send record: %w", err)
		log.Error("send record lookup failed", "provider_message_id", d.ProviderMessageID, "err", err)
	case !d.Status.Outranks(rec.Status):
		out.SendID = rec.ID
		log.Debug("status not advanced", "send_id", rec.ID, "current", string(rec.Status),
			"incoming", string(d.Status))
	default:
		out.SendID = rec.ID
		applied, err := s.repo.AdvanceStatus(ctx, rec.ID, domain.StatusUpdate{Status: d.Status, OccurredAt: d.OccurredAt})
		if err != nil {
			updateErr = fmt.Errorf("advance status: %w", err)
			log.Error("status update failed", "send_id", rec.ID, "status", string(d.Status), "err", err)
		}
		out.Applied = applied
		if !applied && err == nil {
			log.Debug("status not advanced", "send_id", rec.ID, "current", string(rec.Status),
				"incoming", string(d.Status))
		}
	}

	event := domain.DeliveryEvent{
		ID:                s.newID(),
		SendID:            out.SendID,
		ProviderMessageID: d.ProviderMessageID,
		EventType:         d.Status,
		OccurredAt:        d.OccurredAt,
		RawPayload:        d.Payload,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return out, errors.Join(updateErr, fmt.Errorf("append event: %w", err))
	}
	out.EventID = event.ID
	return out, updateErr
}

func (s *Service) lookup(ctx context.Context, providerMessageID string) (*domain.SendRecord, error) {
	if providerMessageID == "" {
		return nil, ErrNotFound
	}
	return s.repo.FindByProviderMessageID(ctx, providerMessageID)
}

// ListSends returns ledger records matching the filter.
func (s *Service) ListSends(ctx context.Context, filter SendFilter) ([]domain.SendRecord, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	return s.repo.ListSends(ctx, filter.Normalize())
}

// ListEvents returns the delivery history of one send.
func (s *Service) ListEvents(ctx context.Context, sendID string) ([]domain.DeliveryEvent, error) {
	return s.repo.ListEvents(ctx, sendID)
}

// RecordSends stores send records. It lets the service stand in for the
// repository wherever only writes are needed.
func (s *Service) RecordSends(ctx context.Context, records []domain.SendRecord) error {
	return s.repo.RecordSends(ctx, records)
}
