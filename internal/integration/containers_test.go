//go:build integration
// +build integration

// Package integration spins up real backing stores with testcontainers
// and drives the adapters against them:
//
//	go test -tags integration ./internal/integration/...
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hrdataworks/talentdb/internal/adapter/repo/postgres"
	"github.com/hrdataworks/talentdb/internal/adapter/statestore/redisstate"
	"github.com/hrdataworks/talentdb/internal/domain"
)

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "talentdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err)
	return "postgres://postgres:postgres@" + host + ":" + port.Port() + "/talentdb?sslmode=disable"
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, nat.Port("6379/tcp"))
	require.NoError(t, err)
	return host + ":" + port.Port()
}

func applySchema(t *testing.T, ctx context.Context, pool postgres.PgxPool) {
	t.Helper()
	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "schema.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
}

func sampleProfile() domain.CandidateProfile {
	return domain.CandidateProfile{
		Identity: domain.Identity{
			FirstName:       "Μαρία",
			LastName:        "Παπαδοπούλου",
			FirstNameFolded: "μαρια",
			LastNameFolded:  "παπαδοπουλου",
			Email:           "maria@example.gr",
			Phone:           "+306912345678",
			City:            "Αθήνα",
		},
		Education: []domain.EducationEntry{{
			Institution: "ΕΜΠ", Degree: "Δίπλωμα", Field: "Ηλεκτρολόγος Μηχανικός",
			Level: "master", Dates: domain.DateRange{Start: "2010-09-01", End: "2015-07-01"},
		}},
		Experience: []domain.ExperienceEntry{{
			Title: "Ηλεκτρολόγος", Company: "ΔΕΗ",
			Dates: domain.DateRange{Start: "2016-01-01"}, DurationMonths: 96, Current: true,
		}},
		Skills: []domain.Skill{
			{Name: "Βιομηχανικές εγκαταστάσεις", Level: "advanced"},
			{Name: "AutoCAD", Level: "intermediate"},
		},
		Languages:       []domain.Language{{Name: "Αγγλικά", ISO: "en", CEFR: "C1"}},
		DrivingLicenses: []domain.DrivingLicense{{Category: "B"}},
		RawText:         "Ηλεκτρολόγος μηχανικός με δεκαετή εμπειρία.",
		Confidence:      0.9,
		Completeness:    0.85,
		IsActive:        true,
	}
}

func TestCandidateRepo_WriteVerifyDedup(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	applySchema(t, ctx, pool)

	repo := postgres.NewCandidateRepo(pool, postgres.DSNConnector{DSN: dsn})

	unmatched := []domain.UnmatchedItem{{Kind: domain.TaxonomySkill, Value: "Βιομηχανικές εγκαταστάσεις", Normalized: "βιομηχανικες εγκαταστασεις"}}
	outcome, err := repo.WriteProfile(ctx, sampleProfile(), unmatched, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Created)
	assert.NotEmpty(t, outcome.CandidateID)
	assert.True(t, outcome.Verification.OK, "verification errors: %v", outcome.Verification.Errors)
	assert.Equal(t, 2, outcome.Verification.Actual.Skills)
	assert.Equal(t, 1, outcome.Verification.Actual.Experience)
	assert.Equal(t, 1, outcome.Verification.Actual.Unmatched)
	assert.Equal(t, 1, consentCount(t, ctx, pool, outcome.CandidateID))

	// Same email: the write must update the existing row, not mint a new one.
	again := sampleProfile()
	again.Skills = again.Skills[:1]
	outcome2, err := repo.WriteProfile(ctx, again, nil, nil)
	require.NoError(t, err)
	assert.False(t, outcome2.Created)
	assert.Equal(t, outcome.CandidateID, outcome2.CandidateID)
	assert.Equal(t, 1, outcome2.Verification.Actual.Skills)
	assert.Equal(t, 0, outcome2.Verification.Actual.Unmatched)
	assert.Equal(t, 2, consentCount(t, ctx, pool, outcome.CandidateID),
		"every write appends a consent record")
}

func consentCount(t *testing.T, ctx context.Context, pool postgres.PgxPool, candidateID string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM consent_records WHERE candidate_id=$1 AND consent_type='data_processing' AND granted`,
		candidateID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestCandidateRepo_RelaxedMatchAndProfileView(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	applySchema(t, ctx, pool)

	repo := postgres.NewCandidateRepo(pool, postgres.DSNConnector{DSN: dsn})
	outcome, err := repo.WriteProfile(ctx, sampleProfile(), nil, nil)
	require.NoError(t, err)

	matches, err := repo.RelaxedMatch(ctx, map[string]any{
		"skills":    []any{"AutoCAD", "Πιστοποίηση ISO"},
		"city":      "Αθήνα",
		"languages": []any{"Αγγλικά"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, outcome.CandidateID, matches[0].CandidateID)
	assert.InDelta(t, 75.0, matches[0].MatchPercentage, 0.01)
	assert.Contains(t, matches[0].Missing, "skill: Πιστοποίηση ISO")

	profiles, err := repo.EnrichedProfiles(ctx, []string{outcome.CandidateID})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "Μαρία", profiles[0]["first_name"])
	assert.NotEmpty(t, profiles[0]["experience"])
}

func TestIntakeStore_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	addr := startRedis(t, ctx)

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	store := redisstate.NewIntakeStore(rdb)

	rec := domain.IntakeRecord{CVID: "cv-int-1", Status: domain.StatusPending, Filename: "cv.pdf"}
	require.NoError(t, store.Create(ctx, rec))
	assert.ErrorIs(t, store.Create(ctx, rec), domain.ErrConflict)

	for _, st := range []domain.IntakeStatus{
		domain.StatusExtracting, domain.StatusParsing, domain.StatusMapping,
		domain.StatusStoring, domain.StatusIndexing, domain.StatusCompleted,
	} {
		_, err := store.Update(ctx, "cv-int-1", domain.StatusUpdate{Status: st})
		require.NoError(t, err, st)
	}

	_, err := store.Update(ctx, "cv-int-1", domain.StatusUpdate{Status: domain.StatusExtracting})
	assert.ErrorIs(t, err, domain.ErrStatusRegression)

	got, err := store.Get(ctx, "cv-int-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.True(t, got.Status.Terminal())
}
