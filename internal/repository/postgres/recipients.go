package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/courtside/mailer/internal/domain"
)

// RecipientRepo reads the recipient directory view maintained by the
// platform.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a recipient directory reader.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// ListRecipients returns directory rows matching the audience, ordered by id.
// Rows without an email address are skipped.
func (r *RecipientRepo) ListRecipients(ctx context.Context, a domain.Audience) ([]domain.Recipient, error) {
	where := []string{"email IS NOT NULL", "email <> ''"}
	var args []any
	if len(a.RecipientIDs) > 0 {
		args = append(args, pq.Array(a.RecipientIDs))
		where = append(where, fmt.Sprintf("id::text = ANY($%d)", len(args)))
	}
	if len(a.Roles) > 0 {
		args = append(args, pq.Array(a.Roles))
		where = append(where, fmt.Sprintf("role = ANY($%d)", len(args)))
	}
	if len(a.Countries) > 0 {
		args = append(args, pq.Array(a.Countries))
		where = append(where, fmt.Sprintf("country = ANY($%d)", len(args)))
	}
	if a.TestOnly {
		where = append(where, "is_test = true")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id::text, email, COALESCE(role, ''), COALESCE(country, ''), is_test
		FROM recipient_directory
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rc domain.Recipient
		if err := rows.Scan(&rc.ID, &rc.Email, &rc.Role, &rc.Country, &rc.IsTest); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
