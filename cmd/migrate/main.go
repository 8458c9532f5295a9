// Command migrate copies the gateway's database (token pool, options,
// traces) between engines, e.g. from the default SQLite file to MySQL or
// PostgreSQL before scaling out to multiple processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"

	"github.com/fuchsia74/grok-api/cmd/migrate/internal"
	"github.com/fuchsia74/grok-api/common/logger"
)

func main() {
	var (
		sourceDSN    = flag.String("source", "", "source database DSN (sqlite path, mysql:// or postgres:// URL)")
		targetDSN    = flag.String("target", "", "target database DSN")
		dryRun       = flag.Bool("dry-run", false, "read the source and report what would be copied without writing")
		validateOnly = flag.Bool("validate", false, "check both connections and row counts, then exit")
		workers      = flag.Int("workers", 4, "concurrent copy workers per table")
		batchSize    = flag.Int("batch-size", 500, "rows per copy batch")
	)
	flag.Parse()

	logger.SetupLogger()

	if *sourceDSN == "" || *targetDSN == "" {
		fmt.Fprintln(os.Stderr, "both -source and -target are required")
		flag.Usage()
		os.Exit(2)
	}
	if *workers < 1 || *batchSize < 1 {
		fmt.Fprintln(os.Stderr, "-workers and -batch-size must be positive")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := &internal.Migrator{
		SourceDSN: *sourceDSN,
		TargetDSN: *targetDSN,
		DryRun:    *dryRun,
		Workers:   *workers,
		BatchSize: *batchSize,
	}

	var err error
	if *validateOnly {
		err = m.ValidateOnly(ctx)
	} else {
		err = m.Migrate(ctx)
	}
	if err != nil {
		logger.Logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}
