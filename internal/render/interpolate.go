package render

import (
	"html"
	"strings"
)

// Vars maps template variable names to their values.
type Vars map[string]string

// With returns a copy of v with key set to value.
func (v Vars) With(key, value string) Vars {
	out := make(Vars, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out[key] = value
	return out
}

// Bindings converts v to the map form the Liquid engine expects.
func (v Vars) Bindings() map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Interpolate replaces every {{name}} token in s with vars[name]. Whitespace
// inside the braces is ignored, unknown names become the empty string and an
// unterminated "{{" is copied through unchanged.
func Interpolate(s string, vars Vars) string {
	return interpolate(s, vars, nil)
}

// InterpolateEscaped is Interpolate with every substituted value HTML-escaped.
// The surrounding template text is left as is.
func InterpolateEscaped(s string, vars Vars) string {
	return interpolate(s, vars, html.EscapeString)
}

func interpolate(s string, vars Vars, transform func(string) string) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+2:], "}}")
		if end < 0 {
			b.WriteString(s)
			break
		}

		b.WriteString(s[:start])
		name := strings.TrimSpace(s[start+2 : start+2+end])
		val := vars[name]
		if transform != nil {
			val = transform(val)
		}
		b.WriteString(val)
		s = s[start+2+end+2:]
	}
	return b.String()
}

// escapeText interpolates s and escapes the result for HTML text content.
func escapeText(s string, vars Vars) string {
	return html.EscapeString(Interpolate(s, vars))
}
