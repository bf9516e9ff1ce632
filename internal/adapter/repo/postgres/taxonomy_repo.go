package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hrdataworks/talentdb/internal/domain"
)

// TaxonomyRepo implements domain.TaxonomyRepository against the taxonomy
// tables.
type TaxonomyRepo struct{ Pool PgxPool }

// NewTaxonomyRepo constructs a TaxonomyRepo with the given pool.
func NewTaxonomyRepo(p PgxPool) *TaxonomyRepo { return &TaxonomyRepo{Pool: p} }

// LoadAliases returns every alias row across the four taxonomy families for
// the in-memory cache.
func (r *TaxonomyRepo) LoadAliases(ctx domain.Context) ([]domain.TaxonomyAlias, error) {
	tracer := otel.Tracer("repo.taxonomy")
	ctx, span := tracer.Start(ctx, "taxonomy.LoadAliases")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "taxonomy_aliases"),
	)

	q := `SELECT a.entry_id, e.kind, a.alias, e.display_name
		FROM taxonomy_aliases a
		JOIN taxonomy_entries e ON e.id = a.entry_id
		WHERE e.is_active`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=taxonomy.load_aliases: %w", err)
	}
	defer rows.Close()

	var out []domain.TaxonomyAlias
	for rows.Next() {
		var a domain.TaxonomyAlias
		var kind string
		if err := rows.Scan(&a.CanonicalID, &kind, &a.Alias, &a.Display); err != nil {
			return nil, fmt.Errorf("op=taxonomy.load_aliases: %w", err)
		}
		a.Kind = domain.TaxonomyKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=taxonomy.load_aliases: %w", err)
	}
	return out, nil
}

// UpsertEntry writes one canonical entry and replaces its alias set.
// Used by the seed command; the pipeline itself never writes taxonomy.
func (r *TaxonomyRepo) UpsertEntry(ctx domain.Context, kind domain.TaxonomyKind, id, display string, aliases []string) error {
	tracer := otel.Tracer("repo.taxonomy")
	ctx, span := tracer.Start(ctx, "taxonomy.UpsertEntry")
	defer span.End()

	_, err := r.Pool.Exec(ctx,
		`INSERT INTO taxonomy_entries (id, kind, display_name, is_active)
		 VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (id) DO UPDATE SET
		   kind = EXCLUDED.kind,
		   display_name = EXCLUDED.display_name,
		   is_active = TRUE`,
		id, string(kind), display)
	if err != nil {
		return fmt.Errorf("op=taxonomy.upsert: entry %s: %w", id, err)
	}
	if _, err := r.Pool.Exec(ctx, `DELETE FROM taxonomy_aliases WHERE entry_id=$1`, id); err != nil {
		return fmt.Errorf("op=taxonomy.upsert: purge aliases %s: %w", id, err)
	}
	for _, a := range aliases {
		_, err := r.Pool.Exec(ctx,
			`INSERT INTO taxonomy_aliases (entry_id, alias) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, a)
		if err != nil {
			return fmt.Errorf("op=taxonomy.upsert: alias %s/%s: %w", id, a, err)
		}
	}
	return nil
}

// FuzzyMatch returns the best trigram match for the term within one taxonomy
// family, or ErrNotFound when nothing clears the pg_trgm similarity floor.
func (r *TaxonomyRepo) FuzzyMatch(ctx domain.Context, kind domain.TaxonomyKind, term string) (string, float64, error) {
	tracer := otel.Tracer("repo.taxonomy")
	ctx, span := tracer.Start(ctx, "taxonomy.FuzzyMatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "taxonomy_aliases"),
	)

	q := `SELECT a.entry_id, similarity(a.alias, $2) AS sim
		FROM taxonomy_aliases a
		JOIN taxonomy_entries e ON e.id = a.entry_id
		WHERE e.kind = $1 AND e.is_active AND a.alias % $2
		ORDER BY sim DESC LIMIT 1`
	var id string
	var sim float64
	err := r.Pool.QueryRow(ctx, q, string(kind), term).Scan(&id, &sim)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, fmt.Errorf("op=taxonomy.fuzzy: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", 0, fmt.Errorf("op=taxonomy.fuzzy: %w", err)
	}
	return id, sim, nil
}
