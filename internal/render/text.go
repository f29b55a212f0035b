package render

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// TextEngine renders plain-text bodies with Liquid. Parsed templates are
// cached by source.
type TextEngine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTextEngine creates a Liquid engine with the mail filters registered.
func NewTextEngine() *TextEngine {
	te := &TextEngine{engine: liquid.NewEngine()}
	te.registerFilters()
	return te
}

func (te *TextEngine) registerFilters() {
	// {{ first_name | default: "there" }}
	te.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); strings.TrimSpace(s) == "" {
			return fallback
		}
		return value
	})

	// {{ name | initials }}
	te.engine.RegisterFilter("initials", func(s string) string {
		return Initials(s)
	})

	// {{ email | urlencode }}
	te.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})
}

// Render executes source against vars.
func (te *TextEngine) Render(source string, vars Vars) (string, error) {
	if cached, ok := te.cache.Load(source); ok {
		return te.execute(cached.(*liquid.Template), vars)
	}

	tpl, perr := te.engine.ParseString(source)
	if perr != nil {
		return "", fmt.Errorf("parse text template: %w", perr)
	}
	te.cache.Store(source, tpl)
	return te.execute(tpl, vars)
}

func (te *TextEngine) execute(tpl *liquid.Template, vars Vars) (string, error) {
	out, rerr := tpl.RenderString(vars.Bindings())
	if rerr != nil {
		return "", fmt.Errorf("render text template: %w", rerr)
	}
	return out, nil
}
