package feeds

import (
	"strings"
	"time"
	"unicode"
)

// zeroWidth lists the zero-width/invisible runes occasionally embedded in
// press-release titles by CMS export pipelines.
var zeroWidth = map[rune]struct{}{
	'\u200b': {}, // zero width space
	'\u200c': {}, // zero width non-joiner
	'\u200d': {}, // zero width joiner
	'\ufeff': {}, // byte order mark
}

// stripZeroWidth removes invisible runes so a title that differs only by
// them hashes identically to its visible twin.
func stripZeroWidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, bad := zeroWidth[r]; bad {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeForHashing strips zero-width runes and folds case for use as
// a dedup signature component. Display strings must use NormalizeTitle
// instead, which keeps the original case.
func normalizeForHashing(s string) string {
	return strings.ToLower(stripZeroWidth(strings.TrimSpace(s)))
}

// NormalizeTitle cleans a title for display: zero-width runes stripped,
// whitespace collapsed, original case preserved.
func NormalizeTitle(s string) string {
	stripped := stripZeroWidth(s)
	return strings.Join(strings.FieldsFunc(stripped, unicode.IsSpace), " ")
}

// NormalizeTime converts t to UTC. A zero t is returned unchanged.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// HashKey returns the lowercase, zero-width-stripped string used to build
// a NewsItem's fuzzy dedup signature (URL+title), never the display form.
func HashKey(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = normalizeForHashing(p)
	}
	return strings.Join(normalized, "|")
}
