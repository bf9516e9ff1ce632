// Package structurer turns extracted CV text into a CandidateProfile via the
// LLM, then normalizes what the model returns: dates, proficiency levels,
// CEFR codes, folded name forms, and the completeness score.
package structurer

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrdataworks/talentdb/internal/adapter/ai"
	"github.com/hrdataworks/talentdb/internal/adapter/ai/prompts"
	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// maxAttempts bounds schema-invalid retries: one call plus two retries.
const maxAttempts = 3

// Structurer is the LLM CV structuring stage.
type Structurer struct {
	ai       domain.AIClient
	registry *prompts.Registry
	cfg      config.Config
	now      func() time.Time
}

// New constructs a Structurer.
func New(client domain.AIClient, registry *prompts.Registry, cfg config.Config) *Structurer {
	return &Structurer{ai: client, registry: registry, cfg: cfg, now: time.Now}
}

// wire types mirror the JSON schema given to the model. They stay loose on
// purpose; normalization tightens them into domain types.
type wireProfile struct {
	FirstName       string           `json:"first_name"`
	LastName        string           `json:"last_name"`
	FirstNameLatin  string           `json:"first_name_latin"`
	LastNameLatin   string           `json:"last_name_latin"`
	Email           string           `json:"email"`
	Phone           string           `json:"phone"`
	DateOfBirth     string           `json:"date_of_birth"`
	Nationality     string           `json:"nationality"`
	Address         string           `json:"address"`
	City            string           `json:"city"`
	PostalCode      string           `json:"postal_code"`
	Education       []wireEducation  `json:"education"`
	Experience      []wireExperience `json:"experience"`
	Certifications  []wireCert       `json:"certifications"`
	Training        []wireTraining   `json:"training"`
	DrivingLicenses []string         `json:"driving_licenses"`
	Skills          []wireLeveled    `json:"skills"`
	Languages       []wireLanguage   `json:"languages"`
	Software        []wireLeveled    `json:"software"`
	Confidence      float64          `json:"confidence"`
}

type wireEducation struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	Level       string `json:"level"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type wireExperience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Current     bool   `json:"current"`
}

type wireCert struct {
	Name     string `json:"name"`
	Issuer   string `json:"issuer"`
	IssuedAt string `json:"issued_at"`
}

type wireTraining struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Year     int    `json:"year"`
}

type wireLeveled struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type wireLanguage struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

// wireSchema is the schema block rendered into the prompt. Kept as literal
// JSON so prompt and wire types cannot drift silently without a test catching
// it.
const wireSchema = `{
  "first_name": "", "last_name": "", "first_name_latin": "", "last_name_latin": "",
  "email": "", "phone": "", "date_of_birth": "YYYY-MM-DD", "nationality": "",
  "address": "", "city": "", "postal_code": "",
  "education": [{"institution": "", "degree": "", "field": "", "level": "secondary|vocational|bachelor|master|doctorate", "start_date": "", "end_date": ""}],
  "experience": [{"title": "", "company": "", "description": "", "start_date": "", "end_date": "", "current": false}],
  "certifications": [{"name": "", "issuer": "", "issued_at": ""}],
  "training": [{"name": "", "provider": "", "year": 0}],
  "driving_licenses": [""],
  "skills": [{"name": "", "level": ""}],
  "languages": [{"name": "", "level": ""}],
  "software": [{"name": "", "level": ""}],
  "confidence": 0.0
}`

// Structure runs the LLM structuring call with schema-invalid retries and
// returns the normalized profile plus normalization warnings.
func (s *Structurer) Structure(ctx domain.Context, rawText string) (domain.CandidateProfile, []domain.QualityWarning, error) {
	prompt, err := s.registry.Render(prompts.CVStructurer, map[string]string{
		"Schema": wireSchema,
		"Text":   rawText,
	})
	if err != nil {
		return domain.CandidateProfile{}, nil, fmt.Errorf("op=structurer.Structure: %w", err)
	}

	var wire wireProfile
	var rawJSON string
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := s.ai.Complete(ctx, domain.CompletionRequest{
			Prompt:      prompt,
			Model:       s.cfg.LLMModel,
			MaxTokens:   8192,
			Temperature: 0,
		})
		if err != nil {
			return domain.CandidateProfile{}, nil, fmt.Errorf("op=structurer.Structure: %w", err)
		}
		wire = wireProfile{}
		if err := ai.ExtractJSON(res.Text, &wire); err != nil {
			lastErr = err
			slog.Warn("structurer schema-invalid completion",
				slog.Int("attempt", attempt), slog.String("error", err.Error()))
			continue
		}
		if wire.FirstName == "" && wire.LastName == "" && wire.Email == "" && wire.Phone == "" {
			lastErr = fmt.Errorf("%w: no identity fields extracted", domain.ErrSchemaInvalid)
			continue
		}
		rawJSON = res.Text
		lastErr = nil
		break
	}
	if lastErr != nil {
		return domain.CandidateProfile{}, nil, fmt.Errorf("op=structurer.Structure: %w", lastErr)
	}

	profile, warnings := s.normalize(wire)
	profile.RawText = rawText
	profile.StructurerJSON = rawJSON
	return profile, warnings, nil
}

func (s *Structurer) normalize(w wireProfile) (domain.CandidateProfile, []domain.QualityWarning) {
	var warnings []domain.QualityWarning

	p := domain.CandidateProfile{
		Identity: domain.Identity{
			FirstName:       strings.TrimSpace(w.FirstName),
			LastName:        strings.TrimSpace(w.LastName),
			FirstNameFolded: textx.Fold(w.FirstName),
			LastNameFolded:  textx.Fold(w.LastName),
			Email:           strings.ToLower(strings.TrimSpace(w.Email)),
			Phone:           strings.TrimSpace(w.Phone),
			Nationality:     strings.TrimSpace(w.Nationality),
			Address:         strings.TrimSpace(w.Address),
			City:            strings.TrimSpace(w.City),
			PostalCode:      strings.TrimSpace(w.PostalCode),
		},
		Confidence: clamp01(w.Confidence),
		IsActive:   true,
	}
	p.Identity.DateOfBirth, _ = normalizeDate(w.DateOfBirth)

	for _, e := range w.Education {
		if strings.TrimSpace(e.Institution) == "" {
			continue
		}
		dates, ws := s.normalizeRange(e.StartDate, e.EndDate, false, "education")
		warnings = append(warnings, ws...)
		p.Education = append(p.Education, domain.EducationEntry{
			Institution: strings.TrimSpace(e.Institution),
			Degree:      strings.TrimSpace(e.Degree),
			Field:       strings.TrimSpace(e.Field),
			Level:       normalizeEducationLevel(e.Level, e.Degree),
			Dates:       dates,
		})
	}

	for _, e := range w.Experience {
		if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Company) == "" {
			continue
		}
		dates, ws := s.normalizeRange(e.StartDate, e.EndDate, e.Current, "experience")
		warnings = append(warnings, ws...)
		p.Experience = append(p.Experience, domain.ExperienceEntry{
			Title:          strings.TrimSpace(e.Title),
			Company:        strings.TrimSpace(e.Company),
			Description:    strings.TrimSpace(e.Description),
			Dates:          dates,
			DurationMonths: s.durationMonths(dates, e.Current),
			Current:        e.Current,
		})
	}

	for _, c := range w.Certifications {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		issued, _ := normalizeDate(c.IssuedAt)
		p.Certifications = append(p.Certifications, domain.CertificationEntry{
			Name:     strings.TrimSpace(c.Name),
			Issuer:   strings.TrimSpace(c.Issuer),
			IssuedAt: issued,
		})
	}

	for _, t := range w.Training {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		p.Training = append(p.Training, domain.TrainingEntry{
			Name:     strings.TrimSpace(t.Name),
			Provider: strings.TrimSpace(t.Provider),
			Year:     t.Year,
		})
	}

	for _, d := range w.DrivingLicenses {
		cat := strings.ToUpper(strings.TrimSpace(d))
		if cat != "" {
			p.DrivingLicenses = append(p.DrivingLicenses, domain.DrivingLicense{Category: cat})
		}
	}

	for _, sk := range w.Skills {
		if strings.TrimSpace(sk.Name) == "" {
			continue
		}
		p.Skills = append(p.Skills, domain.Skill{
			Name:  strings.TrimSpace(sk.Name),
			Level: NormalizeLevel(sk.Level),
		})
	}

	for _, l := range w.Languages {
		if strings.TrimSpace(l.Name) == "" {
			continue
		}
		p.Languages = append(p.Languages, domain.Language{
			Name: strings.TrimSpace(l.Name),
			ISO:  LanguageISO(l.Name),
			CEFR: NormalizeCEFR(l.Level),
		})
	}

	for _, sw := range w.Software {
		if strings.TrimSpace(sw.Name) == "" {
			continue
		}
		p.Software = append(p.Software, domain.Software{
			Name:  strings.TrimSpace(sw.Name),
			Level: NormalizeLevel(sw.Level),
		})
	}

	p.Completeness = Completeness(p)
	return p, warnings
}

// normalizeRange normalizes both bounds and auto-swaps inverted ranges,
// recording a date_error warning for the swap.
func (s *Structurer) normalizeRange(start, end string, current bool, section string) (domain.DateRange, []domain.QualityWarning) {
	var warnings []domain.QualityWarning
	d := domain.DateRange{}
	var ok bool
	if d.Start, ok = normalizeDate(start); !ok && strings.TrimSpace(start) != "" {
		warnings = append(warnings, domain.QualityWarning{
			Category:  "date_error",
			Severity:  domain.SeverityWarning,
			Field:     "start_date",
			Section:   section,
			Original:  start,
			MessageEN: "Unparseable start date dropped",
			MessageEL: "Μη αναγνωρίσιμη ημερομηνία έναρξης αφαιρέθηκε",
		})
	}
	if !current {
		if d.End, ok = normalizeDate(end); !ok && strings.TrimSpace(end) != "" {
			warnings = append(warnings, domain.QualityWarning{
				Category:  "date_error",
				Severity:  domain.SeverityWarning,
				Field:     "end_date",
				Section:   section,
				Original:  end,
				MessageEN: "Unparseable end date dropped",
				MessageEL: "Μη αναγνωρίσιμη ημερομηνία λήξης αφαιρέθηκε",
			})
		}
	}
	if d.Inverted() {
		orig := d
		d = d.Swap()
		warnings = append(warnings, domain.QualityWarning{
			Category:     "date_error",
			Severity:     domain.SeverityInfo,
			Field:        "dates",
			Section:      section,
			Original:     orig.Start + ".." + orig.End,
			Suggested:    d.Start + ".." + d.End,
			WasAutoFixed: true,
			MessageEN:    "Inverted date range was swapped",
			MessageEL:    "Αντεστραμμένο διάστημα ημερομηνιών διορθώθηκε",
		})
	}
	return d, warnings
}

// durationMonths computes whole months between the bounds; current
// engagements run to now.
func (s *Structurer) durationMonths(d domain.DateRange, current bool) int {
	if d.Start == "" {
		return 0
	}
	start, err := time.Parse("2006-01-02", d.Start)
	if err != nil {
		return 0
	}
	var end time.Time
	switch {
	case current || d.End == "":
		end = s.now()
	default:
		if end, err = time.Parse("2006-01-02", d.End); err != nil {
			return 0
		}
	}
	if end.Before(start) {
		return 0
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if months < 0 {
		return 0
	}
	return months
}

// Completeness scores a profile as 0.7 core plus 0.3 extras. Core is name,
// contact, and work or study history; extras are skills, languages,
// location, certifications, and software.
func Completeness(p domain.CandidateProfile) float64 {
	core := 0.0
	if p.Identity.FirstName != "" || p.Identity.LastName != "" {
		core++
	}
	if p.Identity.Email != "" || p.Identity.Phone != "" {
		core++
	}
	if len(p.Experience) > 0 || len(p.Education) > 0 {
		core++
	}
	extras := 0.0
	if len(p.Skills) > 0 {
		extras++
	}
	if len(p.Languages) > 0 {
		extras++
	}
	if p.Identity.City != "" || p.Identity.Address != "" || p.Identity.Location != "" {
		extras++
	}
	if len(p.Certifications) > 0 {
		extras++
	}
	if len(p.Software) > 0 {
		extras++
	}
	return 0.7*(core/3) + 0.3*(extras/5)
}

// normalizeDate accepts YYYY-MM-DD, YYYY-MM, YYYY, and DD/MM/YYYY forms.
// Partial dates resolve to the first day of the missing unit.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return t.Format("2006-01") + "-01", true
	}
	if t, err := time.Parse("2006", s); err == nil {
		return t.Format("2006") + "-01-01", true
	}
	return "", false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
