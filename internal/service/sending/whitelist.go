package sending

import (
	"strings"

	"github.com/courtside/mailer/internal/domain"
)

// Whitelist restricts delivery to a configured set of addresses. An empty
// whitelist allows everyone. A nil *Whitelist is valid and allows everyone.
type Whitelist struct {
	allowed map[string]struct{}
}

// NewWhitelist builds a whitelist from addresses. Entries are trimmed and
// compared case-insensitively; blank entries are ignored.
func NewWhitelist(addresses []string) *Whitelist {
	w := &Whitelist{allowed: make(map[string]struct{}, len(addresses))}
	for _, a := range addresses {
		if a = domain.NormalizeEmail(a); a != "" {
			w.allowed[a] = struct{}{}
		}
	}
	return w
}

// ParseWhitelist builds a whitelist from a comma-separated list.
func ParseWhitelist(csv string) *Whitelist {
	return NewWhitelist(strings.Split(csv, ","))
}

// Enabled reports whether any address restriction is in force.
func (w *Whitelist) Enabled() bool {
	return w != nil && len(w.allowed) > 0
}

// Size returns the number of allowed addresses.
func (w *Whitelist) Size() int {
	if w == nil {
		return 0
	}
	return len(w.allowed)
}

// IsAllowed reports whether email may receive mail.
func (w *Whitelist) IsAllowed(email string) bool {
	if !w.Enabled() {
		return true
	}
	_, ok := w.allowed[domain.NormalizeEmail(email)]
	return ok
}

// Filter splits recipients into those allowed and those dropped, keeping
// input order.
func (w *Whitelist) Filter(recipients []domain.RecipientInfo) (allowed, dropped []domain.RecipientInfo) {
	if !w.Enabled() {
		return recipients, nil
	}
	allowed = make([]domain.RecipientInfo, 0, len(recipients))
	for _, r := range recipients {
		if _, ok := w.allowed[r.NormalizedEmail()]; ok {
			allowed = append(allowed, r)
		} else {
			dropped = append(dropped, r)
		}
	}
	return allowed, dropped
}
