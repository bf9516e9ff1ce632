package textx

import "unicode"

// GreekRatio reports the fraction of letters in s that belong to the Greek
// Unicode blocks. Non-letter runes are ignored.
func GreekRatio(s string) float64 {
	letters, greek := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Greek, r) {
			greek++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(greek) / float64(letters)
}

// IsGreek reports whether s is predominantly Greek, using the 30% threshold
// applied when selecting the language of bilingual prompts.
func IsGreek(s string) bool { return GreekRatio(s) >= 0.30 }
