package textx

import "strings"

// lcsSampleLimit caps the quadratic LCS table. OCR outputs of CV pages are
// well under this; longer inputs are prefix-sampled.
const lcsSampleLimit = 4000

// SimilarityRatio returns the longest-common-subsequence ratio of the two
// strings after lowercasing, in [0, 1]. The denominator is the longer
// length, so identical strings score 1 and disjoint strings score 0.
func SimilarityRatio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		if a == "" {
			return 1
		}
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) > lcsSampleLimit {
		ra = ra[:lcsSampleLimit]
	}
	if len(rb) > lcsSampleLimit {
		rb = rb[:lcsSampleLimit]
	}
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	if longer == 0 {
		return 1
	}
	return float64(lcsLength(ra, rb)) / float64(longer)
}

// lcsLength computes LCS length with a rolling two-row table.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
