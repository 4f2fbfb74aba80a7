package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var multiSpace = regexp.MustCompile(`\s+`)

// stripMarks removes combining marks after NFD decomposition, so that
// "depresión" and "depresion" normalize to the same key.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Text lowercases, trims, strips diacritics, and collapses internal
// whitespace runs to a single space. Empty or all-whitespace input yields "".
func Text(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	return multiSpace.ReplaceAllString(s, " ")
}
