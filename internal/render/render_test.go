package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/mailer/internal/domain"
)

type memStore struct {
	templates map[string]*domain.Template
	err       error
	calls     int
}

func (m *memStore) FetchActiveTemplate(_ context.Context, key string) (*domain.Template, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.templates[key]
	if !ok {
		return nil, nil
	}
	return t, nil
}

func fixedNow() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }

func newTestRenderer(templates ...*domain.Template) (*Renderer, *memStore) {
	store := &memStore{templates: map[string]*domain.Template{}}
	for _, t := range templates {
		store.templates[t.Key] = t
	}
	r := NewRenderer(store, Options{
		SiteURL:        "https://courtside.test/",
		UnsubscribeURL: "https://courtside.test/settings/notifications",
		Now:            fixedNow,
	})
	return r, store
}

func welcomeTemplate() *domain.Template {
	return &domain.Template{
		Key:             "welcome",
		SubjectTemplate: "Welcome to Courtside, {{name}}",
		ContentBlocks: domain.Blocks{
			domain.Heading{Text: "Hi {{name}}"},
			domain.Button{Label: "Go", URL: "{{url}}"},
		},
		DeclaredVariables: []domain.VariableDecl{
			{Name: "name", Required: true},
			{Name: "url", Required: true},
			{Name: "club", Required: false},
		},
		IsActive: true,
	}
}

func TestRender_WelcomeScenario(t *testing.T) {
	r, _ := newTestRenderer(welcomeTemplate())

	email, err := r.Render(context.Background(), "welcome", Vars{"name": "Ana", "url": "https://x/y"})
	require.NoError(t, err)
	require.NotNil(t, email)

	assert.Equal(t, "Welcome to Courtside, Ana", email.Subject)
	assert.Contains(t, email.HTML, "Hi Ana")
	assert.Contains(t, email.HTML, `href="https://x/y"`)
	assert.NotContains(t, email.HTML, "{{")
	assert.Equal(t, "Welcome to Courtside, Ana", email.Text, "subject is the text fallback")
}

func TestRender_Deterministic(t *testing.T) {
	r, _ := newTestRenderer(welcomeTemplate())
	vars := Vars{"name": "Ana", "url": "https://x/y"}

	first, err := r.Render(context.Background(), "welcome", vars)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), "welcome", vars)
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
}

func TestRender_MissingOrInactiveTemplate(t *testing.T) {
	inactive := welcomeTemplate()
	inactive.Key = "old"
	inactive.IsActive = false
	r, _ := newTestRenderer(inactive)

	email, err := r.Render(context.Background(), "nope", nil)
	assert.NoError(t, err)
	assert.Nil(t, email)

	email, err = r.Render(context.Background(), "old", nil)
	assert.NoError(t, err)
	assert.Nil(t, email)
}

func TestRender_StoreFailure(t *testing.T) {
	r, store := newTestRenderer()
	store.err = errors.New("connection refused")

	email, err := r.Render(context.Background(), "welcome", nil)
	assert.Nil(t, email)
	assert.ErrorContains(t, err, "connection refused")
}

func TestPreview_ReportsMissingRequired(t *testing.T) {
	r, _ := newTestRenderer(welcomeTemplate())

	p, err := r.Preview(context.Background(), "welcome", Vars{"name": "  "})
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Validation.Valid)
	assert.Equal(t, []string{"name", "url"}, p.Validation.Missing)
	assert.NotContains(t, p.Email.HTML, "{{", "missing variables render as empty strings")
}

func TestValidateVariables(t *testing.T) {
	tpl := welcomeTemplate()

	v := ValidateVariables(tpl, Vars{"name": "Ana", "url": "https://x"})
	assert.True(t, v.Valid)
	assert.Empty(t, v.Missing)

	v = ValidateVariables(tpl, Vars{"url": "https://x"})
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"name"}, v.Missing)
}

func TestRender_InjectsDefaults(t *testing.T) {
	tpl := &domain.Template{
		Key:             "digest",
		SubjectTemplate: "Digest",
		ContentBlocks:   domain.Blocks{domain.Button{Label: "Open", URL: "{{site_url}}/dashboard"}},
		IsActive:        true,
	}
	r, _ := newTestRenderer(tpl)

	email, err := r.Render(context.Background(), "digest", Vars{"site_url": ""})
	require.NoError(t, err)
	assert.Contains(t, email.HTML, `href="https://courtside.test/dashboard"`)
	assert.Contains(t, email.HTML, `href="https://courtside.test/settings/notifications"`)
	assert.Contains(t, email.HTML, "&copy; 2026 Courtside")

	email, err = r.Render(context.Background(), "digest", Vars{"site_url": "https://preview.test"})
	require.NoError(t, err)
	assert.Contains(t, email.HTML, `href="https://preview.test/dashboard"`)
}

func TestRender_TextTemplate(t *testing.T) {
	tpl := welcomeTemplate()
	tpl.TextTemplate = "Hi {{ name | default: \"there\" }}, visit {{url}}"
	r, _ := newTestRenderer(tpl)

	email, err := r.Render(context.Background(), "welcome", Vars{"url": "https://x/y"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there, visit https://x/y", email.Text)
}

func TestRender_TextTemplateFallsBackOnLiquidError(t *testing.T) {
	tpl := welcomeTemplate()
	tpl.TextTemplate = "Hi {{name}} {% if %}"
	r, _ := newTestRenderer(tpl)

	email, err := r.Render(context.Background(), "welcome", Vars{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana {% if %}", email.Text)
}

func TestRender_EscapesVariables(t *testing.T) {
	r, _ := newTestRenderer(welcomeTemplate())

	email, err := r.Render(context.Background(), "welcome", Vars{"name": "<script>alert(1)</script>", "url": "https://x/?a=1&b=2"})
	require.NoError(t, err)
	assert.NotContains(t, email.HTML, "<script>")
	assert.Contains(t, email.HTML, "&lt;script&gt;")
	assert.Contains(t, email.HTML, `href="https://x/?a=1&amp;b=2"`)
}

func TestRenderTemplate_NoTokensLeft(t *testing.T) {
	tpl := &domain.Template{
		Key:             "all",
		SubjectTemplate: "{{a}} {{ b }}",
		ContentBlocks: domain.Blocks{
			domain.Heading{Text: "{{a}}"},
			domain.Paragraph{Text: "{{b}}"},
			domain.Card{Title: "{{a}}", Fields: []domain.CardField{{Label: "L", Value: "{{b}}"}}},
			domain.UserCard{Name: "{{a}}", Subtitle: "{{b}}"},
			domain.Note{Text: "{{a}}"},
			domain.Footnote{Text: "{{b}}"},
			domain.Divider{},
		},
		IsActive: true,
	}
	r, _ := newTestRenderer(tpl)

	email := r.RenderTemplate(tpl, Vars{"a": "x", "b": "y"})
	assert.NotContains(t, email.HTML, "{{")
	assert.True(t, strings.HasPrefix(email.HTML, "<!DOCTYPE html>"))
}
