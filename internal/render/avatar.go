package render

import (
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var avatarPalette = []string{
	"#1d4ed8", "#0f766e", "#b45309", "#7c3aed", "#be123c", "#15803d", "#0369a1", "#c2410c",
}

// Initials returns the uppercased leading letters of the first two
// whitespace-separated tokens of name, or "?" when name is blank.
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, tok := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(tok)
		b.WriteRune(unicode.ToUpper(r))
		n++
		if n == 2 {
			break
		}
	}
	if n == 0 {
		return "?"
	}
	return b.String()
}

// AvatarColor picks a stable palette colour for name.
func AvatarColor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return avatarPalette[h.Sum32()%uint32(len(avatarPalette))]
}
