package queryplan

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/service/structurer"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// Year-threshold patterns: "5+ χρόνια", "τουλάχιστον 5 έτη", "over 5 years".
var (
	yearsRe     = regexp.MustCompile(`(\d{1,2})\s*\+?\s*(?:χρονια|χρονων|ετη|ετων|years?|yrs)`)
	yearsPlusRe = regexp.MustCompile(`(\d{1,2})\s*\+`)
	lessRe      = regexp.MustCompile(`(?:λιγοτερο απο|κατω απο|less than|under|up to|εως|μεχρι)\s*(\d{1,2})`)
	licenseRe   = regexp.MustCompile(`(?:διπλωμα|license|αδεια οδηγησης)\s*(?:οδηγησης\s*)?([a-e]e?)\b`)
)

// knownCities are the location aliases the fallback recognizes, folded.
var knownCities = map[string]string{
	"αθηνα": "Αθήνα", "θεσσαλονικη": "Θεσσαλονίκη", "πατρα": "Πάτρα",
	"ηρακλειο": "Ηράκλειο", "λαρισα": "Λάρισα", "βολος": "Βόλος",
	"ιωαννινα": "Ιωάννινα", "χανια": "Χανιά", "πειραιας": "Πειραιάς",
	"καλαματα": "Καλαμάτα", "athens": "Αθήνα", "thessaloniki": "Θεσσαλονίκη",
}

// stopwords excluded from taxonomy term resolution.
var stopwords = map[string]bool{
	"με": true, "και": true, "σε": true, "για": true, "που": true,
	"απο": true, "στην": true, "στη": true, "στο": true, "η": true,
	"ο": true, "το": true, "τα": true, "να": true, "η/και": true,
	"with": true, "and": true, "in": true, "for": true, "the": true,
	"of": true, "a": true, "an": true, "or": true, "at": true,
	"χρονια": true, "ετη": true, "years": true, "year": true,
	"εμπειρια": true, "εμπειριας": true, "experience": true,
	"τουλαχιστον": true, "least": true, "διπλωμα": true, "license": true,
}

// fallback assembles a lower-confidence filter tree with regexes and the
// taxonomy alias index when the LLM path is unavailable.
func (t *Translator) fallback(ctx domain.Context, query string) domain.Translation {
	folded := textx.NormalizeKey(query)
	tr := domain.Translation{
		Filters:      map[string]domain.FilterCondition{},
		Confidence:   fallbackConfidence,
		FallbackUsed: true,
	}

	consumed := map[string]bool{}

	if m := lessRe.FindStringSubmatch(folded); m != nil {
		n, _ := strconv.Atoi(m[1])
		tr.Filters["experience_years"] = domain.FilterCondition{Operator: "lt", Value: float64(n)}
		consumed[m[1]] = true
	} else if m := yearsRe.FindStringSubmatch(folded); m != nil {
		n, _ := strconv.Atoi(m[1])
		tr.Filters["experience_years"] = domain.FilterCondition{Operator: "gte", Value: float64(n)}
		consumed[m[1]] = true
	} else if m := yearsPlusRe.FindStringSubmatch(folded); m != nil {
		n, _ := strconv.Atoi(m[1])
		tr.Filters["experience_years"] = domain.FilterCondition{Operator: "gte", Value: float64(n)}
		consumed[m[1]] = true
	}

	if m := licenseRe.FindStringSubmatch(folded); m != nil {
		tr.Filters["driving_licenses"] = domain.FilterCondition{Operator: "contains", Value: strings.ToUpper(m[1])}
	}

	words := strings.FieldsFunc(folded, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ';' || r == '?' || r == '!'
	})

	var leftovers []string
	for _, w := range words {
		if stopwords[w] || consumed[w] {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSuffix(w, "+")); err == nil {
			continue
		}
		if city, ok := knownCities[w]; ok {
			tr.Filters["city"] = domain.FilterCondition{Operator: "contains", Value: city}
			continue
		}
		if iso := structurer.LanguageISO(w); iso != "" {
			tr.Filters["languages"] = domain.FilterCondition{Operator: "contains", Value: w}
			continue
		}
		leftovers = append(leftovers, w)
	}

	t.resolveTerms(ctx, &tr, leftovers)

	if len(tr.Filters) == 0 {
		tr.QueryType = domain.QuerySemantic
		tr.SemanticQuery = query
	} else {
		tr.QueryType = domain.QueryStructured
	}
	return tr
}

// resolveTerms tries the remaining tokens against roles, software, and
// skills, preferring longer n-grams. A term resolved by one kind is not
// offered to the next.
func (t *Translator) resolveTerms(ctx domain.Context, tr *domain.Translation, words []string) {
	if t.matcher == nil {
		tr.UnknownTerms = append(tr.UnknownTerms, words...)
		return
	}

	fieldForKind := map[domain.TaxonomyKind]string{
		domain.TaxonomyRole:     "role",
		domain.TaxonomySoftware: "software",
		domain.TaxonomySkill:    "skills",
	}
	kinds := []domain.TaxonomyKind{domain.TaxonomyRole, domain.TaxonomySoftware, domain.TaxonomySkill}

	used := make([]bool, len(words))
	for size := 3; size >= 1; size-- {
		for i := 0; i+size <= len(words); i++ {
			if anyUsed(used[i : i+size]) {
				continue
			}
			term := strings.Join(words[i:i+size], " ")
			if len([]rune(term)) < 3 {
				continue
			}
			for _, kind := range kinds {
				field := fieldForKind[kind]
				if _, taken := tr.Filters[field]; taken {
					continue
				}
				match, err := t.matcher.Match(ctx, kind, term)
				if err != nil {
					slog.Warn("fallback term resolution failed", slog.String("term", term), slog.Any("error", err))
					continue
				}
				if match.Method.Confident() {
					tr.Filters[field] = domain.FilterCondition{Operator: "contains", Value: term}
					for j := i; j < i+size; j++ {
						used[j] = true
					}
					break
				}
			}
		}
	}
	for i, w := range words {
		if !used[i] {
			tr.UnknownTerms = append(tr.UnknownTerms, w)
		}
	}
}

func anyUsed(b []bool) bool {
	for _, v := range b {
		if v {
			return true
		}
	}
	return false
}
