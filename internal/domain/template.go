package domain

// Template is a stored transactional email template. Templates are read-only
// to the mail core; at most one active row exists per key.
type Template struct {
	Key               string         `json:"key" db:"key"`
	SubjectTemplate   string         `json:"subject_template" db:"subject_template"`
	ContentBlocks     Blocks         `json:"content_blocks" db:"content_blocks"`
	TextTemplate      string         `json:"text_template,omitempty" db:"text_template"`
	DeclaredVariables []VariableDecl `json:"declared_variables" db:"declared_variables"`
	IsActive          bool           `json:"is_active" db:"is_active"`
}

// VariableDecl declares a variable a template expects.
type VariableDecl struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// RequiredVariables returns the names of required variables in declaration order.
func (t *Template) RequiredVariables() []string {
	var out []string
	for _, v := range t.DeclaredVariables {
		if v.Required {
			out = append(out, v.Name)
		}
	}
	return out
}

// RenderedEmail is the output of the rendering pipeline.
type RenderedEmail struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}
