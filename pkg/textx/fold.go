package textx

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritical marks (Greek tonos/dialytika,
// Latin accents). Used for alias lookups and name normalization: every
// stored name keeps both its original and folded form.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	// Final sigma folds to sigma so "ς" and "σ" compare equal.
	out = strings.ReplaceAll(strings.ToLower(out), "ς", "σ")
	return out
}

// NormalizeKey folds s and collapses inner whitespace to single spaces,
// producing the canonical key used by the alias index and the
// unmatched-items uniqueness constraint.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(Fold(s)), " ")
}
