// Package quality validates and auto-fixes contact fields on structured
// profiles. Findings become warnings persisted with the candidate; nothing
// here ever fails the pipeline.
package quality

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// knownDomains are the mail providers that dominate Greek CVs. A near-miss
// against one of these is almost always an OCR or typing error.
var knownDomains = []string{
	"gmail.com", "yahoo.com", "yahoo.gr", "hotmail.com", "hotmail.gr",
	"outlook.com", "outlook.com.gr", "otenet.gr", "icloud.com", "windowslive.com",
}

// Domain typo detection window: similar enough to be a typo, not identical.
// Both ends are exclusive.
const (
	domainTypoMin = 0.75
	domainTypoMax = 1.0
)

func domainTypoCandidate(sim float64) bool {
	return sim > domainTypoMin && sim < domainTypoMax
}

// Audit is the per-profile quality summary stored as the audit blob.
type Audit struct {
	CompletenessScore float64  `json:"completeness_score"`
	QualityLevel      string   `json:"quality_level"`
	MissingCore       []string `json:"missing_core,omitempty"`
	WarningCount      int      `json:"warning_count"`
	AutoFixCount      int      `json:"auto_fix_count"`
}

// Gate runs the rule-based quality checks.
type Gate struct{}

// New constructs a Gate.
func New() *Gate { return &Gate{} }

// Inspect validates contact fields in place (auto-fixes mutate the profile)
// and returns the warnings plus the audit summary.
func (g *Gate) Inspect(p *domain.CandidateProfile) ([]domain.QualityWarning, Audit) {
	var warnings []domain.QualityWarning

	warnings = append(warnings, g.checkEmail(p)...)
	warnings = append(warnings, g.checkPhone(p)...)

	audit := Audit{
		CompletenessScore: p.Completeness,
		QualityLevel:      domain.QualityLevel(p.Completeness),
		MissingCore:       missingCore(*p),
		WarningCount:      len(warnings),
	}
	for _, w := range warnings {
		if w.WasAutoFixed {
			audit.AutoFixCount++
		}
	}
	return warnings, audit
}

// AuditJSON marshals the audit summary for the profile blob.
func (a Audit) JSON() string {
	b, _ := json.Marshal(a)
	return string(b)
}

func (g *Gate) checkEmail(p *domain.CandidateProfile) []domain.QualityWarning {
	email := p.Identity.Email
	if email == "" {
		return nil
	}
	var warnings []domain.QualityWarning

	if !emailRe.MatchString(email) {
		warnings = append(warnings, domain.QualityWarning{
			Category:  "email_invalid",
			Severity:  domain.SeverityError,
			Field:     "email",
			Original:  email,
			MessageEN: "Email address is not syntactically valid",
			MessageEL: "Η διεύθυνση email δεν είναι έγκυρη",
		})
		return warnings
	}

	local, dom, _ := strings.Cut(email, "@")

	// Runs of 3+ identical characters in the local part are an OCR tell
	// ("mariaaa" for "maria").
	if hasCharRun(local, 3) {
		warnings = append(warnings, domain.QualityWarning{
			Category:  "email_typo",
			Severity:  domain.SeverityWarning,
			Field:     "email",
			Original:  email,
			MessageEN: "Email local part contains a repeated-character run, possible OCR error",
			MessageEL: "Το email περιέχει επαναλαμβανόμενους χαρακτήρες, πιθανό σφάλμα OCR",
		})
	}

	for _, known := range knownDomains {
		sim := trigramSimilarity(dom, known)
		if domainTypoCandidate(sim) {
			fixed := local + "@" + known
			p.Identity.Email = fixed
			warnings = append(warnings, domain.QualityWarning{
				Category:     "email_typo",
				Severity:     domain.SeverityWarning,
				Field:        "email",
				Original:     email,
				Suggested:    fixed,
				WasAutoFixed: true,
				MessageEN:    "Email domain corrected to " + known,
				MessageEL:    "Ο τομέας του email διορθώθηκε σε " + known,
			})
			break
		}
		if sim >= domainTypoMax {
			break
		}
	}
	return warnings
}

var phoneStripRe = regexp.MustCompile(`[\s\-().]`)

func (g *Gate) checkPhone(p *domain.CandidateProfile) []domain.QualityWarning {
	phone := p.Identity.Phone
	if phone == "" {
		return nil
	}
	digits := phoneStripRe.ReplaceAllString(phone, "")

	national := digits
	switch {
	case strings.HasPrefix(digits, "+30"):
		national = digits[3:]
	case strings.HasPrefix(digits, "0030"):
		national = digits[4:]
	}

	valid := len(national) == 10 &&
		(strings.HasPrefix(national, "69") || strings.HasPrefix(national, "2")) &&
		isDigits(national)
	if !valid {
		return []domain.QualityWarning{{
			Category:  "phone_format",
			Severity:  domain.SeverityWarning,
			Field:     "phone",
			Original:  phone,
			MessageEN: "Phone number is not a valid Greek mobile or landline",
			MessageEL: "Ο αριθμός τηλεφώνου δεν είναι έγκυρος ελληνικός αριθμός",
		}}
	}

	normalized := "+30" + national
	if normalized == phone {
		return nil
	}
	p.Identity.Phone = normalized
	return []domain.QualityWarning{{
		Category:     "phone_format",
		Severity:     domain.SeverityInfo,
		Field:        "phone",
		Original:     phone,
		Suggested:    normalized,
		WasAutoFixed: true,
		MessageEN:    "Phone number normalized to E.164",
		MessageEL:    "Ο αριθμός τηλεφώνου κανονικοποιήθηκε",
	}}
}

func missingCore(p domain.CandidateProfile) []string {
	var missing []string
	if p.Identity.FirstName == "" && p.Identity.LastName == "" {
		missing = append(missing, "name")
	}
	if p.Identity.Email == "" && p.Identity.Phone == "" {
		missing = append(missing, "contact")
	}
	if len(p.Experience) == 0 {
		missing = append(missing, "experience")
	}
	if len(p.Education) == 0 {
		missing = append(missing, "education")
	}
	if len(p.Skills) == 0 {
		missing = append(missing, "skills")
	}
	return missing
}

func hasCharRun(s string, n int) bool {
	run := 0
	var prev rune
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
			prev = r
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// trigramSimilarity mirrors pg_trgm: Jaccard similarity over padded
// trigram sets of the folded inputs.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(textx.NormalizeKey(a))
	tb := trigrams(textx.NormalizeKey(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var shared int
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigrams(s string) map[string]struct{} {
	if s == "" {
		return nil
	}
	padded := "  " + s + " "
	runes := []rune(padded)
	out := make(map[string]struct{}, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = struct{}{}
	}
	return out
}
