package model

import "strings"

// Slug derives the filesystem-safe form of an event name: lower-cased,
// runs of non-alphanumeric characters collapsed to a single dash, leading
// and trailing dashes trimmed. "Cup A / Night" -> "cup-a-night".
func Slug(eventName string) string {
	var b strings.Builder
	b.Grow(len(eventName))
	dash := false
	for _, r := range strings.ToLower(eventName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
