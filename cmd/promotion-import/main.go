// Command promotion-import loads gzip-compressed NDJSON promotion dumps into
// PostgreSQL.
//
// Files are taken from the command line, or from -data-dir (all
// *.ndjson.gz files, in name order). When an id appears in several files the
// last file wins.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/promoimport"
	"github.com/xenking/retail-orders/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		cfg         promoimport.Config
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz promotion dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&cfg.Capacity, "capacity", 1_000_000, "expected promotions per file, sizes the bloom filters")
	flag.IntVar(&cfg.BatchSize, "batch-size", 500, "promotions written per round trip")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !cfg.DryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, dataDir, flag.Args(), cfg); err != nil {
		lg.Fatal("Promotion import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, dataDir string, files []string, cfg promoimport.Config) error {
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
		if err != nil {
			return errors.Wrap(err, "list dumps")
		}
		files = matches
	}
	if len(files) == 0 {
		lg.Info("No promotion dumps found", zap.String("data_dir", dataDir))
		return nil
	}

	var store promoimport.Store
	if !cfg.DryRun {
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		store = postgres.NewPromotionRepository(pool)
	}

	lg.Info("Importing promotions", zap.Strings("files", files), zap.Bool("dry_run", cfg.DryRun))

	stats, err := promoimport.New(store, lg, cfg).Import(ctx, files)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	lg.Info("Promotion import completed",
		zap.Int("parsed", stats.Parsed),
		zap.Int("written", stats.Written),
		zap.Int("duplicates", stats.Duplicates),
	)
	return nil
}
