package sending

import (
	"context"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/provider"
)

// Provider submits messages to the outbound email API. *provider.Client
// implements it.
type Provider interface {
	Send(ctx context.Context, email *provider.Email) (*provider.SendResponse, error)
	SendBatch(ctx context.Context, emails []provider.Email, opts provider.BatchOptions) (*provider.BatchResponse, error)
}

// Ledger persists send records. The Postgres ledger repository implements
// it.
type Ledger interface {
	RecordSends(ctx context.Context, records []domain.SendRecord) error
}

// PersonalizeFunc renders recipient-specific content for a batch. Returning
// nil or an error falls back to the batch's shared content.
type PersonalizeFunc func(ctx context.Context, r domain.RecipientInfo) (*domain.RenderedEmail, error)
