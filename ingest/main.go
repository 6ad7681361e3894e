package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/animus-labs/animus-ingest/internal/clients"
	"github.com/animus-labs/animus-ingest/internal/config"
	"github.com/animus-labs/animus-ingest/internal/execunit"
	"github.com/animus-labs/animus-ingest/internal/naming"
	"github.com/animus-labs/animus-ingest/internal/pipeline"
	"github.com/animus-labs/animus-ingest/internal/platform/env"
	"github.com/animus-labs/animus-ingest/internal/platform/httpserver"
	"github.com/animus-labs/animus-ingest/internal/platform/objectstore"
	"github.com/animus-labs/animus-ingest/internal/platform/postgres"
	"github.com/animus-labs/animus-ingest/internal/reader"
	"github.com/animus-labs/animus-ingest/internal/report"
	repopg "github.com/animus-labs/animus-ingest/internal/repo/postgres"
	"github.com/animus-labs/animus-ingest/internal/scheduler"
	storageobjectstore "github.com/animus-labs/animus-ingest/internal/storage/objectstore"
	"github.com/animus-labs/animus-ingest/internal/transfer"
)

const service = "ingest"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}
	level, _ := cfg.Level()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	listingPath := env.String("INGEST_LISTING", "")
	if listingPath == "" {
		logger.Error("invalid env", "error", "INGEST_LISTING is required")
		os.Exit(2)
	}
	remote := env.String("INGEST_RCLONE_REMOTE", "")
	rcloneBinary := env.String("INGEST_RCLONE_BINARY", "rclone")
	rcloneFlags := env.Strings("INGEST_RCLONE_FLAGS", nil)
	shutdownTimeout, err := env.Duration("INGEST_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()
	archiveStore, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("archive store init failed", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	var (
		db     *sql.DB
		ledger scheduler.Ledger
	)
	if dbCfg.Enabled() {
		db, err = postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		runs := repopg.NewUnitRunStore(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			logger.Error("unit run schema", "error", err)
			os.Exit(1)
		}
		ledger = runs
	} else {
		logger.Warn("INGEST_DATABASE_URL unset, unit runs are only logged")
	}

	httpCfg, err := clients.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid http client config", "error", err)
		os.Exit(2)
	}
	bundle, err := clients.New(ctx, httpCfg, archiveStore, storeCfg.BucketArchive, storeCfg.PreviewBucket(), nil)
	if err != nil {
		logger.Error("clients init failed", "error", err)
		os.Exit(2)
	}

	coll, err := naming.NewCollection(naming.CollectionConfigFrom(cfg))
	if err != nil {
		logger.Error("invalid collection", "error", err)
		os.Exit(2)
	}
	names, err := naming.NewContext(coll, nil, logger)
	if err != nil {
		logger.Error("naming context init failed", "error", err)
		os.Exit(2)
	}
	listing, err := reader.NewRcloneReader(names, remote, logger)
	if err != nil {
		logger.Error("remote reader init failed", "error", err)
		os.Exit(2)
	}
	raw, err := os.ReadFile(listingPath)
	if err != nil {
		logger.Error("read listing", "path", listingPath, "error", err)
		os.Exit(1)
	}
	n, err := listing.Seed(ctx, raw)
	if err != nil {
		logger.Error("seed listing", "path", listingPath, "error", err)
		os.Exit(1)
	}
	logger.Info("listing seeded", "path", listingPath, "entries", n)

	reporter := report.New(logger)
	sched, err := scheduler.New(scheduler.Options{
		Config: cfg,
		Unit: execunit.Deps{
			Collection:   coll,
			Clients:      bundle,
			StagedReader: reader.NewFileReader(logger),
			Reporter:     reporter,
			MetaVisitors: []pipeline.Visitor{pipeline.RequireHeaders},
			Logger:       logger,
		},
		Listing: listing,
		Stage: transfer.Dispatch{
			HTTP:   transfer.HTTP{Client: bundle.HTTP, Logger: logger},
			Remote: transfer.Rclone{Binary: rcloneBinary, Flags: rcloneFlags, Logger: logger},
			Local:  transfer.Local{Logger: logger},
		},
		Ledger: ledger,
		Logger: logger,
	})
	if err != nil {
		logger.Error("scheduler init failed", "error", err)
		os.Exit(2)
	}

	probe := newProbe(db, storeClient, storeCfg, reporter)
	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	probeDone := make(chan error, 1)
	go func() {
		probeDone <- httpserver.Run(probeCtx, logger, httpserver.Config{
			Service:         service,
			Addr:            cfg.ProbeAddr,
			ShutdownTimeout: shutdownTimeout,
		}, probe.Handler(logger), nil)
	}()

	probe.SetPhase(httpserver.PhaseRunning)
	summary, err := sched.RunOnce(ctx)
	probe.SetPhase(httpserver.PhaseDraining)
	stopProbe()
	if perr := <-probeDone; perr != nil {
		logger.Error("probe server", "error", perr)
	}
	if err != nil {
		logger.Error("ingest interrupted", "error", err, "units", summary.Units, "failed", summary.Failed)
		os.Exit(1)
	}
	reporter.Log("ingest finished", "units", summary.Units, "succeeded", summary.Succeeded, "failed", summary.Failed)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func newProbe(db *sql.DB, storeClient *minio.Client, storeCfg objectstore.Config, reporter *report.Reporter) *httpserver.Probe {
	checks := []httpserver.Check{{
		Name: "minio",
		Fn: func(ctx context.Context) error {
			return objectstore.CheckBuckets(ctx, storeClient, storeCfg)
		},
	}}
	if db != nil {
		checks = append(checks, httpserver.Check{Name: "postgres", Fn: db.PingContext})
	}
	return httpserver.NewProbe(service, 750*time.Millisecond, func() any { return reporter.Snapshot() }, checks...)
}
