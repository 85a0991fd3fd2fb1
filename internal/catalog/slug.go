package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugLen bounds slugs so they stay usable as directory names.
const maxSlugLen = 80

// removeDiacritics removes diacritical marks from a string (e.g., "Betún" -> "Betun").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Slugify derives the canonical matching key from an object name: diacritics
// stripped, lowercased, everything outside [a-z0-9_- ] removed, whitespace
// collapsed to underscores, truncated to 80 characters.
//
// This is the single slug function in the codebase. All directory creation
// under the image root and all matching-key derivation go through it. Two
// objects whose names slugify to the same key are treated as one by the
// matcher; uniqueness is not enforced on write.
func Slugify(name string) string {
	name = strings.ToLower(removeDiacritics(name))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(r)
		}
	}

	slug := strings.Join(strings.Fields(b.String()), "_")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}
