package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// childTables are the per-candidate detail tables purged and rewritten on
// every update.
var childTables = []string{
	"candidate_education",
	"candidate_experience",
	"candidate_certifications",
	"candidate_training",
	"candidate_driving_licenses",
	"candidate_skills",
	"candidate_languages",
	"candidate_software",
}

// nameDedupSim is the trigram similarity on folded full names above which
// two candidates without shared contact details are treated as the same
// person.
const nameDedupSim = 0.8

// CandidateRepo implements domain.CandidateRepository. Reads go through the
// shared pool; WriteProfile opens a fresh connection per call.
type CandidateRepo struct {
	Pool   PgxPool
	Writer WriteConnector
}

// NewCandidateRepo constructs a CandidateRepo.
func NewCandidateRepo(pool PgxPool, writer WriteConnector) *CandidateRepo {
	return &CandidateRepo{Pool: pool, Writer: writer}
}

// WriteProfile runs the transactional write sequence: dedup lookup, upsert,
// child purge and rewrite, unmatched and warning rows, commit, then a
// post-commit verification re-count through the read pool.
func (r *CandidateRepo) WriteProfile(ctx domain.Context, p domain.CandidateProfile, unmatched []domain.UnmatchedItem, warnings []domain.QualityWarning) (domain.WriteOutcome, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.WriteProfile")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "candidates"),
	)

	conn, err := r.Writer.Connect(ctx)
	if err != nil {
		return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existingID, err := r.findExisting(ctx, tx, p)
	if err != nil {
		return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: dedup: %w", err)
	}

	id := existingID
	created := existingID == ""
	now := time.Now().UTC()
	if created {
		id = ulid.Make().String()
		q := `INSERT INTO candidates
			(id, first_name, last_name, first_name_folded, last_name_folded,
			 email, phone, date_of_birth, nationality, address, city, postal_code,
			 raw_text, structurer_json, audit_json, confidence, completeness,
			 is_active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,'')::date,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)`
		if _, err := tx.Exec(ctx, q, id,
			p.Identity.FirstName, p.Identity.LastName, p.Identity.FirstNameFolded, p.Identity.LastNameFolded,
			p.Identity.Email, p.Identity.Phone, p.Identity.DateOfBirth, p.Identity.Nationality,
			p.Identity.Address, p.Identity.City, p.Identity.PostalCode,
			p.RawText, p.StructurerJSON, p.AuditJSON, p.Confidence, p.Completeness, p.IsActive, now); err != nil {
			return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: insert: %w", err)
		}
	} else {
		q := `UPDATE candidates SET
			first_name=$2, last_name=$3, first_name_folded=$4, last_name_folded=$5,
			email=$6, phone=$7, date_of_birth=NULLIF($8,'')::date, nationality=$9,
			address=$10, city=$11, postal_code=$12,
			raw_text=$13, structurer_json=$14, audit_json=$15,
			confidence=$16, completeness=$17, is_active=$18, updated_at=$19
			WHERE id=$1`
		if _, err := tx.Exec(ctx, q, id,
			p.Identity.FirstName, p.Identity.LastName, p.Identity.FirstNameFolded, p.Identity.LastNameFolded,
			p.Identity.Email, p.Identity.Phone, p.Identity.DateOfBirth, p.Identity.Nationality,
			p.Identity.Address, p.Identity.City, p.Identity.PostalCode,
			p.RawText, p.StructurerJSON, p.AuditJSON, p.Confidence, p.Completeness, p.IsActive, now); err != nil {
			return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: update: %w", err)
		}
		for _, tbl := range childTables {
			if _, err := tx.Exec(ctx, `DELETE FROM `+tbl+` WHERE candidate_id=$1`, id); err != nil {
				return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: purge %s: %w", tbl, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM unmatched_items WHERE candidate_id=$1`, id); err != nil {
			return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: purge unmatched: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quality_warnings WHERE candidate_id=$1`, id); err != nil {
			return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: purge warnings: %w", err)
		}
	}

	if err := r.insertChildren(ctx, tx, id, p); err != nil {
		return domain.WriteOutcome{}, err
	}
	if err := r.insertUnmatched(ctx, tx, id, unmatched); err != nil {
		return domain.WriteOutcome{}, err
	}
	if err := r.insertWarnings(ctx, tx, id, warnings); err != nil {
		return domain.WriteOutcome{}, err
	}
	if err := r.insertConsent(ctx, tx, id, now); err != nil {
		return domain.WriteOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WriteOutcome{}, fmt.Errorf("op=candidate.write: commit: %w", err)
	}

	expected := domain.StageCounts{
		Education:       len(p.Education),
		Experience:      len(p.Experience),
		Skills:          len(p.Skills),
		Languages:       len(p.Languages),
		Certifications:  len(p.Certifications),
		Training:        len(p.Training),
		DrivingLicenses: len(p.DrivingLicenses),
		Software:        len(p.Software),
		Unmatched:       len(unmatched),
	}
	verification := r.verify(ctx, id, expected)
	return domain.WriteOutcome{
		CandidateID:  id,
		Created:      created,
		Counts:       expected,
		Verification: verification,
	}, nil
}

// findExisting locates a prior candidate row by email, phone, or trigram
// similarity of the folded full name.
func (r *CandidateRepo) findExisting(ctx domain.Context, tx pgx.Tx, p domain.CandidateProfile) (string, error) {
	var id string
	if p.Identity.Email != "" || p.Identity.Phone != "" {
		q := `SELECT id FROM candidates
			WHERE (email <> '' AND email = $1) OR (phone <> '' AND phone = $2)
			ORDER BY updated_at DESC LIMIT 1`
		err := tx.QueryRow(ctx, q, p.Identity.Email, p.Identity.Phone).Scan(&id)
		switch {
		case err == nil:
			return id, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return "", err
		}
	}
	folded := p.Identity.FirstNameFolded + " " + p.Identity.LastNameFolded
	if folded == " " {
		return "", nil
	}
	q := `SELECT id FROM candidates
		WHERE similarity(first_name_folded || ' ' || last_name_folded, $1) >= $2
		ORDER BY similarity(first_name_folded || ' ' || last_name_folded, $1) DESC
		LIMIT 1`
	err := tx.QueryRow(ctx, q, folded, nameDedupSim).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", nil
	}
	return "", err
}

func (r *CandidateRepo) insertChildren(ctx domain.Context, tx pgx.Tx, id string, p domain.CandidateProfile) error {
	for _, e := range p.Education {
		q := `INSERT INTO candidate_education (candidate_id, institution, degree, field, level, start_date, end_date)
			VALUES ($1,$2,$3,$4,$5,NULLIF($6,'')::date,NULLIF($7,'')::date)`
		if _, err := tx.Exec(ctx, q, id, e.Institution, e.Degree, e.Field, e.Level, e.Dates.Start, e.Dates.End); err != nil {
			return fmt.Errorf("op=candidate.write: education: %w", err)
		}
	}
	for _, e := range p.Experience {
		q := `INSERT INTO candidate_experience
			(candidate_id, title, company, description, start_date, end_date, duration_months, is_current,
			 role_taxonomy_id, role_match_method, role_similarity)
			VALUES ($1,$2,$3,$4,NULLIF($5,'')::date,NULLIF($6,'')::date,$7,$8,NULLIF($9,''),$10,$11)`
		if _, err := tx.Exec(ctx, q, id, e.Title, e.Company, e.Description,
			e.Dates.Start, e.Dates.End, e.DurationMonths, e.Current,
			e.Role.CanonicalID, string(e.Role.Method), e.Role.Similarity); err != nil {
			return fmt.Errorf("op=candidate.write: experience: %w", err)
		}
	}
	for _, c := range p.Certifications {
		q := `INSERT INTO candidate_certifications (candidate_id, name, issuer, issued_at, taxonomy_id, match_method, similarity)
			VALUES ($1,$2,$3,NULLIF($4,'')::date,NULLIF($5,''),$6,$7)`
		if _, err := tx.Exec(ctx, q, id, c.Name, c.Issuer, c.IssuedAt,
			c.Match.CanonicalID, string(c.Match.Method), c.Match.Similarity); err != nil {
			return fmt.Errorf("op=candidate.write: certifications: %w", err)
		}
	}
	for _, t := range p.Training {
		q := `INSERT INTO candidate_training (candidate_id, name, provider, year) VALUES ($1,$2,$3,NULLIF($4,0))`
		if _, err := tx.Exec(ctx, q, id, t.Name, t.Provider, t.Year); err != nil {
			return fmt.Errorf("op=candidate.write: training: %w", err)
		}
	}
	for _, d := range p.DrivingLicenses {
		q := `INSERT INTO candidate_driving_licenses (candidate_id, category) VALUES ($1,$2)`
		if _, err := tx.Exec(ctx, q, id, d.Category); err != nil {
			return fmt.Errorf("op=candidate.write: licenses: %w", err)
		}
	}
	for _, s := range p.Skills {
		q := `INSERT INTO candidate_skills (candidate_id, name, level, taxonomy_id, match_method, similarity)
			VALUES ($1,$2,$3,NULLIF($4,''),$5,$6)`
		if _, err := tx.Exec(ctx, q, id, s.Name, s.Level,
			s.Match.CanonicalID, string(s.Match.Method), s.Match.Similarity); err != nil {
			return fmt.Errorf("op=candidate.write: skills: %w", err)
		}
	}
	for _, l := range p.Languages {
		q := `INSERT INTO candidate_languages (candidate_id, name, iso_code, cefr_level) VALUES ($1,$2,$3,$4)`
		if _, err := tx.Exec(ctx, q, id, l.Name, l.ISO, l.CEFR); err != nil {
			return fmt.Errorf("op=candidate.write: languages: %w", err)
		}
	}
	for _, s := range p.Software {
		q := `INSERT INTO candidate_software (candidate_id, name, level, taxonomy_id, match_method, similarity)
			VALUES ($1,$2,$3,NULLIF($4,''),$5,$6)`
		if _, err := tx.Exec(ctx, q, id, s.Name, s.Level,
			s.Match.CanonicalID, string(s.Match.Method), s.Match.Similarity); err != nil {
			return fmt.Errorf("op=candidate.write: software: %w", err)
		}
	}
	return nil
}

func (r *CandidateRepo) insertUnmatched(ctx domain.Context, tx pgx.Tx, id string, items []domain.UnmatchedItem) error {
	for _, u := range items {
		q := `INSERT INTO unmatched_items (candidate_id, kind, value, normalized, suggested_id, similarity, created_at)
			VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,now())`
		if _, err := tx.Exec(ctx, q, id, string(u.Kind), u.Value, u.Normalized, u.SuggestedID, u.Similarity); err != nil {
			return fmt.Errorf("op=candidate.write: unmatched: %w", err)
		}
	}
	return nil
}

func (r *CandidateRepo) insertWarnings(ctx domain.Context, tx pgx.Tx, id string, warnings []domain.QualityWarning) error {
	for _, w := range warnings {
		q := `INSERT INTO quality_warnings
			(candidate_id, category, severity, field, section, original, suggested,
			 was_auto_fixed, llm_detected, message_en, message_el, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())`
		if _, err := tx.Exec(ctx, q, id, w.Category, string(w.Severity), w.Field, w.Section,
			w.Original, w.Suggested, w.WasAutoFixed, w.LLMDetected, w.MessageEN, w.MessageEL); err != nil {
			return fmt.Errorf("op=candidate.write: warnings: %w", err)
		}
	}
	return nil
}

// insertConsent records the processing consent that accompanied the upload.
// Updates append a fresh record rather than rewriting history.
func (r *CandidateRepo) insertConsent(ctx domain.Context, tx pgx.Tx, id string, at time.Time) error {
	q := `INSERT INTO consent_records (candidate_id, consent_type, granted, granted_at)
		VALUES ($1,$2,$3,$4)`
	if _, err := tx.Exec(ctx, q, id, "data_processing", true, at); err != nil {
		return fmt.Errorf("op=candidate.write: consent: %w", err)
	}
	return nil
}

// verify re-counts the committed rows through the read pool. Mismatches on
// experience, education, or skills are errors; the remaining sections only
// warn.
func (r *CandidateRepo) verify(ctx domain.Context, id string, expected domain.StageCounts) domain.WriteVerification {
	v := domain.WriteVerification{Expected: expected, CheckedAt: time.Now().UTC()}

	count := func(table string) int {
		var n int
		if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE candidate_id=$1`, id).Scan(&n); err != nil {
			v.Warnings = append(v.Warnings, fmt.Sprintf("count %s: %v", table, err))
			return -1
		}
		return n
	}
	v.Actual = domain.StageCounts{
		Education:       count("candidate_education"),
		Experience:      count("candidate_experience"),
		Skills:          count("candidate_skills"),
		Languages:       count("candidate_languages"),
		Certifications:  count("candidate_certifications"),
		Training:        count("candidate_training"),
		DrivingLicenses: count("candidate_driving_licenses"),
		Software:        count("candidate_software"),
		Unmatched:       count("unmatched_items"),
	}

	check := func(section string, exp, act int, hard bool) {
		if exp == act || act < 0 {
			return
		}
		msg := fmt.Sprintf("%s: expected %d rows, found %d", section, exp, act)
		if hard {
			v.Errors = append(v.Errors, msg)
		} else {
			v.Warnings = append(v.Warnings, msg)
		}
	}
	check("experience", expected.Experience, v.Actual.Experience, true)
	check("education", expected.Education, v.Actual.Education, true)
	check("skills", expected.Skills, v.Actual.Skills, true)
	check("languages", expected.Languages, v.Actual.Languages, false)
	check("certifications", expected.Certifications, v.Actual.Certifications, false)
	check("training", expected.Training, v.Actual.Training, false)
	check("driving_licenses", expected.DrivingLicenses, v.Actual.DrivingLicenses, false)
	check("software", expected.Software, v.Actual.Software, false)
	check("unmatched", expected.Unmatched, v.Actual.Unmatched, false)

	v.OK = len(v.Errors) == 0
	return v
}

// ExecuteSearch runs a generated statement and returns row maps keyed by
// column name.
func (r *CandidateRepo) ExecuteSearch(ctx domain.Context, q domain.SQLQuery) ([]map[string]any, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.ExecuteSearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
	)

	rows, err := r.Pool.Query(ctx, q.Statement, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("op=candidate.search: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("op=candidate.search: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=candidate.search: %w", err)
	}
	return out, nil
}

// EnrichedProfiles returns the full JSON profile view per candidate via the
// candidate_profile database function.
func (r *CandidateRepo) EnrichedProfiles(ctx domain.Context, candidateIDs []string) ([]map[string]any, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.EnrichedProfiles")
	defer span.End()

	out := make([]map[string]any, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		var blob []byte
		err := r.Pool.QueryRow(ctx, `SELECT candidate_profile($1)`, id).Scan(&blob)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("op=candidate.enriched: %w", err)
		}
		var profile map[string]any
		if err := json.Unmarshal(blob, &profile); err != nil {
			return nil, fmt.Errorf("op=candidate.enriched: %w", err)
		}
		out = append(out, profile)
	}
	return out, nil
}

// RelaxedMatch scores candidates against a requirements structure via the
// score_candidates database function.
func (r *CandidateRepo) RelaxedMatch(ctx domain.Context, requirements map[string]any, limit int) ([]domain.CandidateMatch, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.RelaxedMatch")
	defer span.End()

	reqJSON, err := json.Marshal(requirements)
	if err != nil {
		return nil, fmt.Errorf("op=candidate.relaxed: %w", err)
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT candidate_id, full_name, match_percentage, matched, missing
		 FROM score_candidates($1::jsonb) ORDER BY match_percentage DESC LIMIT $2`,
		string(reqJSON), limit)
	if err != nil {
		return nil, fmt.Errorf("op=candidate.relaxed: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateMatch
	for rows.Next() {
		var m domain.CandidateMatch
		if err := rows.Scan(&m.CandidateID, &m.FullName, &m.MatchPercentage, &m.Matched, &m.Missing); err != nil {
			return nil, fmt.Errorf("op=candidate.relaxed: %w", err)
		}
		switch {
		case m.MatchPercentage >= 70:
			m.MatchLevel = domain.MatchHigh
			m.Recommendation = "interview"
		case m.MatchPercentage >= 40:
			m.MatchLevel = domain.MatchMedium
			m.Recommendation = "consider"
		default:
			m.MatchLevel = domain.MatchLow
			m.Recommendation = "skip"
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=candidate.relaxed: %w", err)
	}
	return out, nil
}

// ActiveProfiles loads every active candidate with the sections the search
// indexer needs. Used by bulk reindexing.
func (r *CandidateRepo) ActiveProfiles(ctx domain.Context) ([]domain.CandidateProfile, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.ActiveProfiles")
	defer span.End()

	rows, err := r.Pool.Query(ctx,
		`SELECT id, first_name, last_name, first_name_folded, last_name_folded,
		        COALESCE(city,''), COALESCE(raw_text,''), completeness, updated_at
		 FROM candidates WHERE is_active ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("op=candidate.active: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateProfile
	for rows.Next() {
		var p domain.CandidateProfile
		if err := rows.Scan(&p.ID,
			&p.Identity.FirstName, &p.Identity.LastName,
			&p.Identity.FirstNameFolded, &p.Identity.LastNameFolded,
			&p.Identity.City, &p.RawText, &p.Completeness, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=candidate.active: %w", err)
		}
		p.IsActive = true
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=candidate.active: %w", err)
	}

	for i := range out {
		if err := r.loadSections(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *CandidateRepo) loadSections(ctx domain.Context, p *domain.CandidateProfile) error {
	rows, err := r.Pool.Query(ctx,
		`SELECT name, COALESCE(level,''), COALESCE(taxonomy_id,'') FROM candidate_skills WHERE candidate_id=$1`, p.ID)
	if err != nil {
		return fmt.Errorf("op=candidate.sections: %w", err)
	}
	for rows.Next() {
		var s domain.Skill
		if err := rows.Scan(&s.Name, &s.Level, &s.Match.CanonicalID); err != nil {
			rows.Close()
			return fmt.Errorf("op=candidate.sections: %w", err)
		}
		p.Skills = append(p.Skills, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("op=candidate.sections: %w", err)
	}

	rows, err = r.Pool.Query(ctx,
		`SELECT title, COALESCE(company,''), COALESCE(description,''), duration_months, is_current
		 FROM candidate_experience WHERE candidate_id=$1 ORDER BY start_date DESC NULLS LAST`, p.ID)
	if err != nil {
		return fmt.Errorf("op=candidate.sections: %w", err)
	}
	for rows.Next() {
		var e domain.ExperienceEntry
		if err := rows.Scan(&e.Title, &e.Company, &e.Description, &e.DurationMonths, &e.Current); err != nil {
			rows.Close()
			return fmt.Errorf("op=candidate.sections: %w", err)
		}
		p.Experience = append(p.Experience, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("op=candidate.sections: %w", err)
	}

	rows, err = r.Pool.Query(ctx,
		`SELECT name, COALESCE(iso_code,''), COALESCE(cefr_level,'') FROM candidate_languages WHERE candidate_id=$1`, p.ID)
	if err != nil {
		return fmt.Errorf("op=candidate.sections: %w", err)
	}
	for rows.Next() {
		var l domain.Language
		if err := rows.Scan(&l.Name, &l.ISO, &l.CEFR); err != nil {
			rows.Close()
			return fmt.Errorf("op=candidate.sections: %w", err)
		}
		p.Languages = append(p.Languages, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("op=candidate.sections: %w", err)
	}

	rows, err = r.Pool.Query(ctx,
		`SELECT name FROM candidate_certifications WHERE candidate_id=$1`, p.ID)
	if err != nil {
		return fmt.Errorf("op=candidate.sections: %w", err)
	}
	for rows.Next() {
		var c domain.CertificationEntry
		if err := rows.Scan(&c.Name); err != nil {
			rows.Close()
			return fmt.Errorf("op=candidate.sections: %w", err)
		}
		p.Certifications = append(p.Certifications, c)
	}
	rows.Close()
	return rows.Err()
}
