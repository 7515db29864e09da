// Credit Intelligence Center - alert engine.
// Scores credit-request records in the record store and writes alert fields
// back in batches, guarded by a pre-write backup. Default is a dry run.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/api"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/bus"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/cache"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/engine"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/store"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	write := flag.Bool("write", false, "actually write alert fields into the store (creates a JSON backup first unless -no-backup)")
	dryRun := flag.Bool("dry-run", false, "skip writes to the store (default behavior unless -write is set)")
	target := flag.String("target", "", "store path to update (default credit_requests)")
	batchSize := flag.Int("batch-size", 0, "batch size for store updates in leaf-field entries (default 300)")
	noBackup := flag.Bool("no-backup", false, "disable the backup JSON export before writing (not recommended)")
	backupFile := flag.String("backup-file", "", "where to write the pre-write JSON export (default: ./store_backup_<target>_<timestamp>.json)")
	filterExpr := flag.String("filter", "", "CEL expression scoping which records are scored (e.g. 'amount >= 1000.0 && pending')")
	serve := flag.Bool("serve", false, "run the HTTP API and scheduler instead of a one-shot run")
	interval := flag.Duration("interval", 0, "scheduled run interval in serve mode (0 disables the ticker)")
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("CIC_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting alert engine",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg, err := domain.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Type,
		"bus", cfg.Bus.Type,
		"target", cfg.Run.TargetPath,
	)

	// The store handle is constructed once here and injected; a missing
	// store configuration aborts before any read.
	recordStore, err := store.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize record store", "error", err)
		os.Exit(1)
	}
	defer recordStore.Close()
	slog.Info("record store initialized", "driver", cfg.Store.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.Bus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()

	eng := engine.New(recordStore, cfg,
		engine.WithCache(cacheImpl),
		engine.WithBus(busImpl),
	)

	// Dry run unless -write is given; -dry-run always wins.
	opts := engine.RunOptions{
		DryRun:     !*write || *dryRun,
		Target:     *target,
		BatchSize:  *batchSize,
		Backup:     !*noBackup,
		BackupFile: *backupFile,
		Filter:     *filterExpr,
	}

	if *serve {
		runServe(cfg, eng, cacheImpl, recordStore, busImpl, opts, *interval)
		return
	}

	summary, err := eng.Run(context.Background(), opts)
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.Marshal(map[string]any{"alert_engine_summary": summary})
	fmt.Println(string(out))
}

func runServe(cfg *domain.Config, eng *engine.Engine, cacheImpl domain.Cache, recordStore domain.RecordStore, busImpl domain.EventBus, opts engine.RunOptions, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	w := worker.NewWorker(eng, busImpl)
	if err := w.Start(worker.Config{
		Interval:   interval,
		RunOptions: opts,
	}); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, eng, cacheImpl, recordStore, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("alert engine is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"interval", interval.String(),
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := w.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("shutdown complete")
}
