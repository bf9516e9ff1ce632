package domain

import "time"

// MatchMethod records how a raw CV term was linked to a taxonomy entry.
type MatchMethod string

// Match methods, ordered roughly by confidence tier.
const (
	MatchExact          MatchMethod = "exact"
	MatchSubstring      MatchMethod = "substring"
	MatchFuzzy          MatchMethod = "fuzzy"
	MatchFuzzySuggested MatchMethod = "fuzzy_suggested"
	MatchSemantic       MatchMethod = "semantic"
	MatchSuggested      MatchMethod = "suggested"
	MatchNone           MatchMethod = "none"
)

// Confident reports whether the method carries a confident taxonomy id.
func (m MatchMethod) Confident() bool {
	switch m {
	case MatchExact, MatchSubstring, MatchFuzzy, MatchSemantic:
		return true
	}
	return false
}

// ConfidentThreshold returns the minimum similarity a confident match of
// this method must satisfy.
func (m MatchMethod) ConfidentThreshold() float64 {
	switch m {
	case MatchExact:
		return 1.0
	case MatchSubstring:
		return 0.9
	case MatchFuzzy:
		return 0.75
	case MatchSemantic:
		return 0.85
	}
	return 0
}

// TaxonomyKind enumerates the four taxonomy families.
type TaxonomyKind string

// Taxonomy kinds.
const (
	TaxonomySkill         TaxonomyKind = "skill"
	TaxonomyRole          TaxonomyKind = "role"
	TaxonomySoftware      TaxonomyKind = "software"
	TaxonomyCertification TaxonomyKind = "certification"
)

// TaxonomyMatch links a raw term to a canonical taxonomy entry. When the
// match is not confident, CanonicalID is empty and SuggestedID may carry a
// lower-confidence suggestion.
type TaxonomyMatch struct {
	Raw         string      `json:"raw"`
	CanonicalID string      `json:"canonical_id,omitempty"`
	SuggestedID string      `json:"suggested_id,omitempty"`
	Method      MatchMethod `json:"method"`
	Similarity  float64     `json:"similarity"`
}

// Identity carries candidate identity fields. Names are stored both as
// written and accent-folded (invariant: both forms always present).
type Identity struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	FirstNameFolded string `json:"first_name_folded"`
	LastNameFolded  string `json:"last_name_folded"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	DateOfBirth     string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Nationality     string `json:"nationality,omitempty"`
	Address         string `json:"address,omitempty"`
	City            string `json:"city,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	Location        string `json:"location,omitempty"`
}

// DateRange is a closed interval of ISO dates; Start <= End after the
// writer's auto-swap. Current engagements leave End empty.
type DateRange struct {
	Start string `json:"start,omitempty"` // YYYY-MM-DD
	End   string `json:"end,omitempty"`
}

// Inverted reports whether both bounds are set and out of order.
func (d DateRange) Inverted() bool {
	return d.Start != "" && d.End != "" && d.Start > d.End
}

// Swap returns the range with bounds exchanged.
func (d DateRange) Swap() DateRange { return DateRange{Start: d.End, End: d.Start} }

// EducationEntry is one education history item.
type EducationEntry struct {
	Institution string    `json:"institution"`
	Degree      string    `json:"degree,omitempty"`
	Field       string    `json:"field,omitempty"`
	Level       string    `json:"level,omitempty"` // secondary|vocational|bachelor|master|doctorate
	Dates       DateRange `json:"dates"`
}

// ExperienceEntry is one work-experience history item.
type ExperienceEntry struct {
	Title          string        `json:"title"`
	Company        string        `json:"company,omitempty"`
	Description    string        `json:"description,omitempty"`
	Dates          DateRange     `json:"dates"`
	DurationMonths int           `json:"duration_months"`
	Current        bool          `json:"current,omitempty"`
	Role           TaxonomyMatch `json:"role,omitempty"`
}

// CertificationEntry is one certification item.
type CertificationEntry struct {
	Name     string        `json:"name"`
	Issuer   string        `json:"issuer,omitempty"`
	IssuedAt string        `json:"issued_at,omitempty"`
	Match    TaxonomyMatch `json:"match,omitempty"`
}

// TrainingEntry is one training/seminar item.
type TrainingEntry struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	Year     int    `json:"year,omitempty"`
}

// DrivingLicense is one driving license category.
type DrivingLicense struct {
	Category string `json:"category"` // A, B, C, D, BE, CE, ...
}

// Skill is a proficiency with its taxonomy linkage.
type Skill struct {
	Name  string        `json:"name"`
	Level string        `json:"level,omitempty"` // beginner..master
	Match TaxonomyMatch `json:"match,omitempty"`
}

// Language is a spoken-language proficiency with CEFR level.
type Language struct {
	Name string `json:"name"`
	ISO  string `json:"iso,omitempty"`   // ISO 639-1
	CEFR string `json:"cefr,omitempty"`  // A1..C2 or native
}

// Software is a software/tool proficiency with its taxonomy linkage.
type Software struct {
	Name  string        `json:"name"`
	Level string        `json:"level,omitempty"`
	Match TaxonomyMatch `json:"match,omitempty"`
}

// CandidateProfile is the canonical candidate aggregate produced by the
// structurer and persisted by the relational writer.
type CandidateProfile struct {
	ID              string               `json:"id,omitempty"`
	Identity        Identity             `json:"identity"`
	Education       []EducationEntry     `json:"education,omitempty"`
	Experience      []ExperienceEntry    `json:"experience,omitempty"`
	Certifications  []CertificationEntry `json:"certifications,omitempty"`
	Training        []TrainingEntry      `json:"training,omitempty"`
	DrivingLicenses []DrivingLicense     `json:"driving_licenses,omitempty"`
	Skills          []Skill              `json:"skills,omitempty"`
	Languages       []Language           `json:"languages,omitempty"`
	Software        []Software           `json:"software,omitempty"`

	// Backing blobs.
	RawText        string `json:"-"`
	StructurerJSON string `json:"-"`
	AuditJSON      string `json:"-"`

	Confidence   float64   `json:"confidence,omitempty"`
	Completeness float64   `json:"completeness,omitempty"`
	IsActive     bool      `json:"is_active,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// FullName returns "first last" as written on the CV.
func (p CandidateProfile) FullName() string {
	if p.Identity.FirstName == "" {
		return p.Identity.LastName
	}
	if p.Identity.LastName == "" {
		return p.Identity.FirstName
	}
	return p.Identity.FirstName + " " + p.Identity.LastName
}

// UnmatchedItem is a proficiency that no taxonomy entry confidently matched.
// Recorded for curation; never blocks ingestion.
type UnmatchedItem struct {
	CandidateID string       `json:"candidate_id"`
	Kind        TaxonomyKind `json:"kind"`
	Value       string       `json:"value"`
	Normalized  string       `json:"normalized"`
	SuggestedID string       `json:"suggested_id,omitempty"`
	Similarity  float64      `json:"similarity,omitempty"`
}

// WarningSeverity levels for quality warnings.
type WarningSeverity string

// Severities.
const (
	SeverityInfo    WarningSeverity = "info"
	SeverityWarning WarningSeverity = "warning"
	SeverityError   WarningSeverity = "error"
)

// QualityWarning is one field-level finding from the quality gate. Warnings
// are persisted alongside the candidate and never fail the pipeline.
type QualityWarning struct {
	Category     string          `json:"category"` // email_typo|phone_format|date_error|...
	Severity     WarningSeverity `json:"severity"`
	Field        string          `json:"field"`
	Section      string          `json:"section,omitempty"`
	Original     string          `json:"original,omitempty"`
	Suggested    string          `json:"suggested,omitempty"`
	WasAutoFixed bool            `json:"was_auto_fixed"`
	LLMDetected  bool            `json:"llm_detected"`
	MessageEN    string          `json:"message_en"`
	MessageEL    string          `json:"message_el"`
}

// QualityLevel buckets a completeness score.
func QualityLevel(score float64) string {
	switch {
	case score >= 0.9:
		return "excellent"
	case score >= 0.7:
		return "good"
	case score >= 0.5:
		return "fair"
	case score >= 0.3:
		return "poor"
	}
	return "insufficient"
}
