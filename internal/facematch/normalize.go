package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nameSeparators = strings.NewReplacer("-", " ", "_", " ")

// RemoveDiacritics strips combining marks, so "Zoë Saldaña" becomes "Zoe Saldana".
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NameKey is the lookup key of an enrolled name. It ignores case, diacritics,
// dashes, underscores and repeated whitespace, so "  zoë_SALDAÑA " and
// "Zoe Saldana" share a key.
func NameKey(name string) string {
	name = cases.Fold().String(RemoveDiacritics(name))
	return strings.Join(strings.Fields(nameSeparators.Replace(name)), " ")
}
