package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/service/ledger"
)

// LedgerRepo implements ledger.Repository against PostgreSQL.
type LedgerRepo struct{ db *sql.DB }

// NewLedgerRepo creates a Postgres-backed send ledger.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const sendColumns = `id, COALESCE(provider_message_id, ''), template_key, COALESCE(campaign_id, ''),
	recipient_email, COALESCE(recipient_id, ''), COALESCE(recipient_role, ''), COALESCE(recipient_country, ''),
	subject, status, metadata, delivered_at, opened_at, clicked_at, bounced_at, created_at, updated_at`

// statusPriorityExpr ranks the stored status the same way
// domain.SendStatus.Priority does.
var statusPriorityExpr = func() string {
	var b strings.Builder
	b.WriteString("CASE status")
	for _, s := range domain.OrderedStatuses() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", s, s.Priority())
	}
	b.WriteString(" ELSE -2 END")
	return b.String()
}()

func (r *LedgerRepo) RecordSends(ctx context.Context, records []domain.SendRecord) error {
	if len(records) == 0 {
		return nil
	}
	n := len(records)
	ids, providerIDs, templates, campaigns := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	emails, recipientIDs, roles, countries := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	subjects, statuses, metadata, created := make([]string, n), make([]string, n), make([]string, n), make([]string, n)

	for i, rec := range records {
		meta := "{}"
		if len(rec.Metadata) > 0 {
			b, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", rec.RecipientEmail, err)
			}
			meta = string(b)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		ids[i] = rec.ID
		providerIDs[i] = rec.ProviderMessageID
		templates[i] = rec.TemplateKey
		campaigns[i] = rec.CampaignID
		emails[i] = rec.RecipientEmail
		recipientIDs[i] = rec.RecipientID
		roles[i] = rec.RecipientRole
		countries[i] = rec.RecipientCountry
		subjects[i] = rec.Subject
		statuses[i] = string(rec.Status)
		metadata[i] = meta
		created[i] = createdAt.Format(time.RFC3339Nano)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_sends (id, provider_message_id, template_key, campaign_id,
			recipient_email, recipient_id, recipient_role, recipient_country,
			subject, status, metadata, created_at, updated_at)
		SELECT u.id::uuid, NULLIF(u.provider_message_id, ''), u.template_key, NULLIF(u.campaign_id, ''),
			u.recipient_email, NULLIF(u.recipient_id, ''), NULLIF(u.recipient_role, ''), NULLIF(u.recipient_country, ''),
			u.subject, u.status, u.metadata::jsonb, u.created_at::timestamptz, u.created_at::timestamptz
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[],
			$7::text[], $8::text[], $9::text[], $10::text[], $11::text[], $12::text[])
			AS u(id, provider_message_id, template_key, campaign_id, recipient_email, recipient_id,
				recipient_role, recipient_country, subject, status, metadata, created_at)
	`, pq.Array(ids), pq.Array(providerIDs), pq.Array(templates), pq.Array(campaigns),
		pq.Array(emails), pq.Array(recipientIDs), pq.Array(roles), pq.Array(countries),
		pq.Array(subjects), pq.Array(statuses), pq.Array(metadata), pq.Array(created))
	if err != nil {
		return fmt.Errorf("insert %d send records: %w", n, err)
	}
	return nil
}

func (r *LedgerRepo) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SendRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sendColumns+`
		FROM email_sends
		WHERE provider_message_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, providerMessageID)
	rec, err := scanSend(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find send by provider id: %w", err)
	}
	return rec, nil
}

// AdvanceStatus relies on the WHERE clause for monotonicity: a concurrent
// writer that already stored a higher-priority status makes this a no-op.
func (r *LedgerRepo) AdvanceStatus(ctx context.Context, sendID string, u domain.StatusUpdate) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_sends SET
			status = $2::text,
			delivered_at = CASE WHEN $3::boolean AND delivered_at IS NULL THEN $5::timestamptz ELSE delivered_at END,
			opened_at = CASE WHEN $4::boolean AND opened_at IS NULL THEN $5::timestamptz ELSE opened_at END,
			clicked_at = CASE WHEN $2::text = 'clicked' THEN $5::timestamptz ELSE clicked_at END,
			bounced_at = CASE WHEN $2::text = 'bounced' THEN $5::timestamptz ELSE bounced_at END,
			updated_at = NOW()
		WHERE id = $1 AND `+statusPriorityExpr+` < $6
	`, sendID, string(u.Status), u.BackfillsDelivered(), u.BackfillsOpened(), u.OccurredAt, u.Status.Priority())
	if err != nil {
		return false, fmt.Errorf("advance status of %s: %w", sendID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *LedgerRepo) AppendEvent(ctx context.Context, e domain.DeliveryEvent) error {
	payload := "{}"
	if len(e.RawPayload) > 0 {
		payload = string(e.RawPayload)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_events (id, send_id, provider_message_id, event_type, occurred_at, raw_payload, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6::jsonb, $7)
	`, e.ID, e.SendID, e.ProviderMessageID, string(e.EventType), e.OccurredAt, payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append delivery event: %w", err)
	}
	return nil
}

func (r *LedgerRepo) ListSends(ctx context.Context, f ledger.SendFilter) ([]domain.SendRecord, error) {
	f = f.Normalize()
	var where []string
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("campaign_id", f.CampaignID)
	add("template_key", f.TemplateKey)
	add("recipient_id", f.RecipientID)
	add("status", string(f.Status))

	query := `SELECT ` + sendColumns + ` FROM email_sends`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	defer rows.Close()

	out := []domain.SendRecord{}
	for rows.Next() {
		rec, err := scanSend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan send: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *LedgerRepo) ListEvents(ctx context.Context, sendID string) ([]domain.DeliveryEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(send_id::text, ''), provider_message_id, event_type, occurred_at, raw_payload, created_at
		FROM email_events
		WHERE send_id = $1
		ORDER BY occurred_at, created_at
	`, sendID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := []domain.DeliveryEvent{}
	for rows.Next() {
		var e domain.DeliveryEvent
		var eventType string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.SendID, &e.ProviderMessageID, &eventType, &e.OccurredAt, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventType = domain.SendStatus(eventType)
		e.RawPayload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSend(s scanner) (*domain.SendRecord, error) {
	var rec domain.SendRecord
	var status string
	var metadata []byte
	var delivered, opened, clicked, bounced sql.NullTime
	err := s.Scan(&rec.ID, &rec.ProviderMessageID, &rec.TemplateKey, &rec.CampaignID,
		&rec.RecipientEmail, &rec.RecipientID, &rec.RecipientRole, &rec.RecipientCountry,
		&rec.Subject, &status, &metadata, &delivered, &opened, &clicked, &bounced,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.SendStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", rec.ID, err)
		}
	}
	rec.DeliveredAt = nullTime(delivered)
	rec.OpenedAt = nullTime(opened)
	rec.ClickedAt = nullTime(clicked)
	rec.BouncedAt = nullTime(bounced)
	return &rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
