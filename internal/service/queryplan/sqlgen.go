// Package queryplan turns a recruiter's natural-language question into an
// executable plan: the translator builds a filter tree (LLM with a regex
// fallback) and the generator renders it into parameterized SQL from a
// fixed field dictionary. The generator never calls the LLM.
package queryplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/service/structurer"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// Limit bounds. Caller-supplied limits clamp to maxLimit, LLM-suggested
// limits were already clamped to llmMaxLimit by the translator.
const (
	maxLimit     = 500
	llmMaxLimit  = 100
	defaultLimit = 50
)

// educationLevelSets expands level aliases into the enum sets they cover.
var educationLevelSets = map[string][]string{
	"secondary":     {"secondary"},
	"vocational":    {"vocational"},
	"bachelor":      {"bachelor"},
	"master":        {"master"},
	"doctorate":     {"doctorate"},
	"phd":           {"doctorate"},
	"university":    {"bachelor", "master", "doctorate"},
	"πανεπιστημιο":  {"bachelor", "master", "doctorate"},
	"αει":           {"bachelor", "master", "doctorate"},
	"τει":           {"bachelor"},
	"πτυχιο":        {"bachelor", "master", "doctorate"},
	"μεταπτυχιακο":  {"master"},
	"διδακτορικο":   {"doctorate"},
	"postgraduate":  {"master", "doctorate"},
	"λυκειο":        {"secondary"},
	"ιεκ":           {"vocational"},
}

// comparison maps filter operators to SQL comparison operators.
var comparison = map[string]string{
	"eq": "=", "gt": ">", "gte": ">=", "lt": "<", "lte": "<=",
}

// builder renders one filter into a WHERE clause, appending to the
// statement's parameter list.
type builder func(q *sqlBuilder, f domain.FilterCondition) error

// fieldDictionary is the closed set of queryable fields.
var fieldDictionary = map[string]builder{
	"city":             directColumn("c.city"),
	"location":         directColumn("c.city"),
	"nationality":      directColumn("c.nationality"),
	"address":          directColumn("c.address"),
	"experience_years": experienceYears,
	"age":              age,
	"education_level":  educationLevel,
	"education":        educationLevel,
	"languages":        language,
	"driving_licenses": drivingLicense,
	"skills":           taxonomyJoined("candidate_skills", "taxonomy_id", false),
	"software":         taxonomyJoined("candidate_software", "taxonomy_id", false),
	"certifications":   taxonomyJoined("candidate_certifications", "taxonomy_id", false),
	"role":             taxonomyJoined("candidate_experience", "role_taxonomy_id", true),
}

// KnownFields returns the sorted queryable field names, rendered into the
// translator prompt.
func KnownFields() []string {
	fields := make([]string, 0, len(fieldDictionary))
	for f := range fieldDictionary {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

type sqlBuilder struct {
	clauses   []string
	params    []any
	summaries []string
}

// bind appends a parameter and returns its positional placeholder.
func (q *sqlBuilder) bind(v any) string {
	q.params = append(q.params, v)
	return fmt.Sprintf("$%d", len(q.params))
}

func (q *sqlBuilder) add(clause, summary string) {
	q.clauses = append(q.clauses, clause)
	q.summaries = append(q.summaries, summary)
}

// Generate renders the filter tree into one parameterized SELECT over
// active candidates. Filters are processed in sorted field order so the
// same tree always yields the same statement and parameter order.
func Generate(t domain.Translation) (domain.SQLQuery, error) {
	q := &sqlBuilder{}

	fields := make([]string, 0, len(t.Filters))
	for f := range t.Filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		build, ok := fieldDictionary[field]
		if !ok {
			return domain.SQLQuery{}, fmt.Errorf("op=queryplan.Generate: %w: unknown field %q", domain.ErrInvalidArgument, field)
		}
		if err := build(q, t.Filters[field]); err != nil {
			return domain.SQLQuery{}, fmt.Errorf("op=queryplan.Generate: field %q: %w", field, err)
		}
	}

	var sb strings.Builder
	sb.WriteString(`SELECT c.id, c.first_name, c.last_name, c.email, c.phone, c.city, c.completeness, c.updated_at FROM candidates c WHERE c.is_active`)
	for _, clause := range q.clauses {
		sb.WriteString(" AND ")
		sb.WriteString(clause)
	}

	orderBy := "c.updated_at DESC"
	if t.Sort != "" {
		if col, ok := sortColumns[t.Sort]; ok {
			orderBy = col
		}
	}
	sb.WriteString(" ORDER BY " + orderBy)

	limit := t.Limit
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	if t.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", t.Offset))
	}

	return domain.SQLQuery{
		Statement: sb.String(),
		Params:    q.params,
		Summary:   strings.Join(q.summaries, "; "),
	}, nil
}

// sortColumns whitelists sortable columns; anything else falls back to the
// default ordering.
var sortColumns = map[string]string{
	"updated_at":   "c.updated_at DESC",
	"completeness": "c.completeness DESC",
	"name":         "c.last_name_folded ASC, c.first_name_folded ASC",
}

func directColumn(col string) builder {
	return func(q *sqlBuilder, f domain.FilterCondition) error {
		val, err := stringValue(f.Value)
		if err != nil {
			return err
		}
		switch f.Operator {
		case "contains":
			q.add(col+" ILIKE '%' || "+q.bind(val)+" || '%'", fmt.Sprintf("%s contains %q", col, val))
		case "eq":
			q.add("lower("+col+") = lower("+q.bind(val)+")", fmt.Sprintf("%s = %q", col, val))
		default:
			return fmt.Errorf("%w: operator %q on direct column", domain.ErrInvalidArgument, f.Operator)
		}
		return nil
	}
}

// experienceYears sums duration_months across the candidate's experience.
func experienceYears(q *sqlBuilder, f domain.FilterCondition) error {
	sub := "(SELECT COALESCE(SUM(e.duration_months), 0) / 12.0 FROM candidate_experience e WHERE e.candidate_id = c.id)"
	if f.Operator == "between" {
		low, high, err := rangeValues(f.Value)
		if err != nil {
			return err
		}
		q.add(sub+" BETWEEN "+q.bind(low)+" AND "+q.bind(high),
			fmt.Sprintf("experience between %v and %v years", low, high))
		return nil
	}
	op, ok := comparison[f.Operator]
	if !ok {
		return fmt.Errorf("%w: operator %q on experience_years", domain.ErrInvalidArgument, f.Operator)
	}
	years, err := numberValue(f.Value)
	if err != nil {
		return err
	}
	q.add(sub+" "+op+" "+q.bind(years), fmt.Sprintf("experience %s %v years", op, years))
	return nil
}

func age(q *sqlBuilder, f domain.FilterCondition) error {
	expr := "date_part('year', age(c.date_of_birth))"
	if f.Operator == "between" {
		low, high, err := rangeValues(f.Value)
		if err != nil {
			return err
		}
		q.add("c.date_of_birth IS NOT NULL AND "+expr+" BETWEEN "+q.bind(low)+" AND "+q.bind(high),
			fmt.Sprintf("age between %v and %v", low, high))
		return nil
	}
	op, ok := comparison[f.Operator]
	if !ok {
		return fmt.Errorf("%w: operator %q on age", domain.ErrInvalidArgument, f.Operator)
	}
	n, err := numberValue(f.Value)
	if err != nil {
		return err
	}
	q.add("c.date_of_birth IS NOT NULL AND "+expr+" "+op+" "+q.bind(n), fmt.Sprintf("age %s %v", op, n))
	return nil
}

// educationLevel expands level aliases to enum sets; the enum column casts
// to text for the ANY comparison.
func educationLevel(q *sqlBuilder, f domain.FilterCondition) error {
	if f.Operator == "exists" {
		q.add("EXISTS (SELECT 1 FROM candidate_education ed WHERE ed.candidate_id = c.id)", "has education history")
		return nil
	}
	val, err := stringValue(f.Value)
	if err != nil {
		return err
	}
	levels, ok := educationLevelSets[textx.NormalizeKey(val)]
	if !ok {
		levels = []string{strings.ToLower(val)}
	}
	q.add("EXISTS (SELECT 1 FROM candidate_education ed WHERE ed.candidate_id = c.id AND ed.level::text = ANY("+q.bind(levels)+"))",
		fmt.Sprintf("education level in %v", levels))
	return nil
}

func language(q *sqlBuilder, f domain.FilterCondition) error {
	if f.Operator == "exists" {
		q.add("EXISTS (SELECT 1 FROM candidate_languages l WHERE l.candidate_id = c.id)", "has languages")
		return nil
	}
	val, err := stringValue(f.Value)
	if err != nil {
		return err
	}
	iso := structurer.LanguageISO(val)
	q.add("EXISTS (SELECT 1 FROM candidate_languages l WHERE l.candidate_id = c.id AND (l.iso_code = "+q.bind(iso)+" OR l.name ILIKE '%' || "+q.bind(val)+" || '%'))",
		fmt.Sprintf("speaks %s", val))
	return nil
}

func drivingLicense(q *sqlBuilder, f domain.FilterCondition) error {
	if f.Operator == "exists" {
		q.add("EXISTS (SELECT 1 FROM candidate_driving_licenses d WHERE d.candidate_id = c.id)", "has driving license")
		return nil
	}
	val, err := stringValue(f.Value)
	if err != nil {
		return err
	}
	q.add("EXISTS (SELECT 1 FROM candidate_driving_licenses d WHERE d.candidate_id = c.id AND d.category = "+q.bind(strings.ToUpper(val))+")",
		fmt.Sprintf("driving license %s", strings.ToUpper(val)))
	return nil
}

// taxonomyJoined matches child rows by stored name or by any taxonomy alias
// in either language. Roles additionally fall back to the stored job-title
// text because many records pre-date taxonomy linkage.
func taxonomyJoined(table, taxColumn string, roleTable bool) builder {
	return func(q *sqlBuilder, f domain.FilterCondition) error {
		val, err := stringValue(f.Value)
		if err != nil {
			return err
		}
		nameCol := "t.name"
		if roleTable {
			nameCol = "t.title"
		}
		p := q.bind(val)
		clause := "EXISTS (SELECT 1 FROM " + table + " t WHERE t.candidate_id = c.id AND (" +
			nameCol + " ILIKE '%' || " + p + " || '%' OR t." + taxColumn + " IN (" +
			"SELECT a.entry_id FROM taxonomy_aliases a WHERE a.alias ILIKE '%' || " + p + " || '%')))"
		q.add(clause, fmt.Sprintf("%s contains %q", table, val))
		return nil
	}
}

func stringValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: expected non-empty string value, got %T", domain.ErrInvalidArgument, v)
	}
	return strings.TrimSpace(s), nil
}

func numberValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: expected numeric value, got %T", domain.ErrInvalidArgument, v)
}

func rangeValues(v any) (float64, float64, error) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("%w: between needs a two-element array", domain.ErrInvalidArgument)
	}
	low, err := numberValue(pair[0])
	if err != nil {
		return 0, 0, err
	}
	high, err := numberValue(pair[1])
	if err != nil {
		return 0, 0, err
	}
	if low > high {
		low, high = high, low
	}
	return low, high, nil
}
