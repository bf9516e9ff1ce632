// Command taxonomy-seed loads a YAML taxonomy catalog into Postgres.
// Run it after migrations and whenever the catalog changes:
//
//	taxonomy-seed -file seed/taxonomy.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/hrdataworks/talentdb/internal/adapter/repo/postgres"
	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/internal/service/taxonomy"
)

func main() {
	file := flag.String("file", "seed/taxonomy.yaml", "path to the taxonomy catalog")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	seed, err := taxonomy.LoadSeedFile(*file)
	if err != nil {
		slog.Error("seed file load failed", slog.Any("error", err))
		os.Exit(1)
	}
	rows, err := seed.Rows()
	if err != nil {
		slog.Error("seed file invalid", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.NewTaxonomyRepo(pool)
	aliases := 0
	for _, r := range rows {
		if err := repo.UpsertEntry(ctx, r.Kind, r.ID, r.Display, r.Aliases); err != nil {
			slog.Error("upsert failed", slog.String("entry", r.ID), slog.Any("error", err))
			os.Exit(1)
		}
		aliases += len(r.Aliases)
	}
	slog.Info("taxonomy seeded",
		slog.String("file", *file),
		slog.Int("entries", len(rows)),
		slog.Int("aliases", aliases))
}
