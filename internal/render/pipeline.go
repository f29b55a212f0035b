package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/courtside/mailer/internal/domain"
)

// Variables injected when the caller does not supply them.
const (
	VarSiteURL        = "site_url"
	VarUnsubscribeURL = "unsubscribe_url"
	VarCurrentYear    = "current_year"
)

// TemplateStore reads templates. Implementations return (nil, nil) when no
// active template exists for key.
type TemplateStore interface {
	FetchActiveTemplate(ctx context.Context, key string) (*domain.Template, error)
}

// Options configures a Renderer.
type Options struct {
	SiteURL        string
	UnsubscribeURL string
	// Now supplies the clock for current_year. Defaults to time.Now.
	Now func() time.Time
}

// Renderer is the template rendering pipeline. It is safe for concurrent use.
type Renderer struct {
	store TemplateStore
	text  *TextEngine
	opts  Options
}

// NewRenderer creates a renderer reading templates from store.
func NewRenderer(store TemplateStore, opts Options) *Renderer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Renderer{store: store, text: NewTextEngine(), opts: opts}
}

// Validation is the outcome of a required-variable check.
type Validation struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`
}

// Preview bundles a rendered email with its variable validation.
type Preview struct {
	Email      domain.RenderedEmail `json:"email"`
	Validation Validation           `json:"validation"`
}

// Render fetches the active template for key and renders it with vars. It
// returns (nil, nil) when there is no active template; an error only reports
// a store failure.
func (r *Renderer) Render(ctx context.Context, key string, vars Vars) (*domain.RenderedEmail, error) {
	p, err := r.Preview(ctx, key, vars)
	if err != nil || p == nil {
		return nil, err
	}
	return &p.Email, nil
}

// Preview renders like Render and also reports missing required variables.
func (r *Renderer) Preview(ctx context.Context, key string, vars Vars) (*Preview, error) {
	t, err := r.Template(ctx, key)
	if err != nil || t == nil {
		return nil, err
	}

	merged := r.withDefaults(vars)
	validation := ValidateVariables(t, merged)
	if !validation.Valid {
		log.Warn("template rendered with missing required variables",
			"template_key", key, "missing", strings.Join(validation.Missing, ","))
	}
	return &Preview{Email: r.renderMerged(t, merged), Validation: validation}, nil
}

// Template returns the active template for key, or nil when there is none.
// Callers rendering one template for many recipients fetch it once here and
// then use RenderTemplate.
func (r *Renderer) Template(ctx context.Context, key string) (*domain.Template, error) {
	t, err := r.store.FetchActiveTemplate(ctx, key)
	if err != nil {
		log.Error("template fetch failed", "template_key", key, "err", err)
		return nil, fmt.Errorf("fetch template %q: %w", key, err)
	}
	if t == nil || !t.IsActive {
		log.Debug("no active template", "template_key", key)
		return nil, nil
	}
	return t, nil
}

// RenderTemplate renders t with vars plus the injected defaults. It never
// fails.
func (r *Renderer) RenderTemplate(t *domain.Template, vars Vars) domain.RenderedEmail {
	return r.renderMerged(t, r.withDefaults(vars))
}

func (r *Renderer) renderMerged(t *domain.Template, vars Vars) domain.RenderedEmail {
	subject := strings.TrimSpace(Interpolate(t.SubjectTemplate, vars))
	body := RenderBlocks(t.ContentBlocks, vars)

	return domain.RenderedEmail{
		Subject: subject,
		HTML:    wrapLayout(subject, body, vars),
		Text:    r.renderText(t, subject, vars),
	}
}

func (r *Renderer) renderText(t *domain.Template, subject string, vars Vars) string {
	if strings.TrimSpace(t.TextTemplate) == "" {
		return subject
	}
	text, err := r.text.Render(t.TextTemplate, vars)
	if err != nil {
		log.Warn("liquid text render failed, falling back to interpolation", "template_key", t.Key, "err", err)
		return Interpolate(t.TextTemplate, vars)
	}
	return text
}

func (r *Renderer) withDefaults(vars Vars) Vars {
	merged := make(Vars, len(vars)+3)
	merged[VarSiteURL] = strings.TrimRight(r.opts.SiteURL, "/")
	merged[VarUnsubscribeURL] = r.opts.UnsubscribeURL
	merged[VarCurrentYear] = strconv.Itoa(r.opts.Now().Year())
	for k, v := range vars {
		if _, isDefault := merged[k]; isDefault && strings.TrimSpace(v) == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}

// ValidateVariables lists required variables of t that are absent or blank
// in vars, in declaration order.
func ValidateVariables(t *domain.Template, vars Vars) Validation {
	missing := []string{}
	for _, name := range t.RequiredVariables() {
		if strings.TrimSpace(vars[name]) == "" {
			missing = append(missing, name)
		}
	}
	return Validation{Valid: len(missing) == 0, Missing: missing}
}
