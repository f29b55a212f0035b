package sending

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/courtside/mailer/internal/domain"
)

func TestWhitelist(t *testing.T) {
	w := ParseWhitelist(" QA@Courtside.test, dev@courtside.test ,,")

	assert.True(t, w.Enabled())
	assert.Equal(t, 2, w.Size())
	assert.True(t, w.IsAllowed("qa@courtside.test"))
	assert.True(t, w.IsAllowed("  DEV@courtside.TEST "))
	assert.False(t, w.IsAllowed("coach@courtside.test"))
}

func TestWhitelist_EmptyAllowsEveryone(t *testing.T) {
	for name, w := range map[string]*Whitelist{
		"nil":   nil,
		"empty": ParseWhitelist(""),
		"blank": NewWhitelist([]string{" ", ""}),
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, w.Enabled())
			assert.Equal(t, 0, w.Size())
			assert.True(t, w.IsAllowed("anyone@example.com"))
		})
	}
}

func TestWhitelist_Filter(t *testing.T) {
	w := NewWhitelist([]string{"b@x.test", "d@x.test"})
	in := []domain.RecipientInfo{{Email: "a@x.test"}, {Email: "B@x.test"}, {Email: "c@x.test"}, {Email: "d@x.test"}}

	allowed, dropped := w.Filter(in)

	assert.Equal(t, []domain.RecipientInfo{{Email: "B@x.test"}, {Email: "d@x.test"}}, allowed)
	assert.Equal(t, []domain.RecipientInfo{{Email: "a@x.test"}, {Email: "c@x.test"}}, dropped)

	w = NewWhitelist([]string{" Ana@X.test "})
	allowed, dropped = w.Filter([]domain.RecipientInfo{{Email: "ana@x.test "}, {Email: "bo@x.test"}})
	assert.Equal(t, []domain.RecipientInfo{{Email: "ana@x.test "}}, allowed)
	assert.Len(t, dropped, 1)

	allowed, dropped = (*Whitelist)(nil).Filter(in)
	assert.Equal(t, in, allowed)
	assert.Empty(t, dropped)
}
