package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/courtside/mailer/internal/domain"
)

// TemplateRepo reads email templates. It implements render.TemplateStore.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template store.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

// FetchActiveTemplate returns the active template for key, or nil when there
// is none.
func (r *TemplateRepo) FetchActiveTemplate(ctx context.Context, key string) (*domain.Template, error) {
	var t domain.Template
	var blocks, variables []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT key, subject_template, content_blocks, COALESCE(text_template, ''),
			COALESCE(declared_variables, '[]'::jsonb), is_active
		FROM email_templates
		WHERE key = $1 AND is_active = true
		LIMIT 1
	`, key).Scan(&t.Key, &t.SubjectTemplate, &blocks, &t.TextTemplate, &variables, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch template %s: %w", key, err)
	}

	if len(blocks) > 0 {
		if err := json.Unmarshal(blocks, &t.ContentBlocks); err != nil {
			return nil, fmt.Errorf("decode content blocks of %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(variables, &t.DeclaredVariables); err != nil {
		return nil, fmt.Errorf("decode declared variables of %s: %w", key, err)
	}
	return &t, nil
}
