package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/action/email"
	"github.com/gyaneshwarpardhi/docflow/internal/action/notification"
	"github.com/gyaneshwarpardhi/docflow/internal/action/status"
	"github.com/gyaneshwarpardhi/docflow/internal/action/stock"
	"github.com/gyaneshwarpardhi/docflow/internal/action/task"
	"github.com/gyaneshwarpardhi/docflow/internal/action/webhook"
	"github.com/gyaneshwarpardhi/docflow/internal/api"
	"github.com/gyaneshwarpardhi/docflow/internal/approval"
	"github.com/gyaneshwarpardhi/docflow/internal/bus"
	"github.com/gyaneshwarpardhi/docflow/internal/config"
	"github.com/gyaneshwarpardhi/docflow/internal/document"
	"github.com/gyaneshwarpardhi/docflow/internal/engine"
	"github.com/gyaneshwarpardhi/docflow/internal/inventory"
	"github.com/gyaneshwarpardhi/docflow/internal/rules"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/docflow.yaml", "Path to YAML config")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *cfgPath, &level, logger); err != nil {
		logger.Error("docflow exited", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// run wires the service and blocks until ctx is cancelled or the listener
// fails.
func run(ctx context.Context, cfgPath string, level *slog.LevelVar, logger *slog.Logger) error {
	// ── Config ───────────────────────────────────────────────────────────────
	loader, err := config.NewLoader(cfgPath, config.WithLogger(logger))
	if err != nil {
		return err
	}
	cfg := loader.Config()
	if lvl, err := config.ParseLevel(cfg.Log.Level); err == nil {
		level.Set(lvl)
	}
	thresholds, err := config.Thresholds(cfg)
	if err != nil {
		return fmt.Errorf("approval thresholds: %w", err)
	}

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	defer db.Close()

	// ── Domain services and actions ──────────────────────────────────────────
	b := bus.New(bus.WithMaxSubscribers(cfg.Bus.MaxSubscribers), bus.WithLogger(logger))
	docs := document.NewService(db, b, document.WithLogger(logger))
	ledger := inventory.New(db, inventory.WithPublisher(b), inventory.WithLogger(logger))
	approvals := approval.New(db, docs, thresholds, approval.WithLogger(logger))

	disp := action.NewDispatcher()
	for _, h := range []action.Executor{
		email.New(db),
		notification.New(db),
		status.New(docs),
		stock.New(ledger, docs, logger),
		task.New(db),
		webhook.New(cfg.Webhook.Timeout),
	} {
		disp.Register(h)
	}
	logger.Info("actions registered", "types", disp.Types())

	cache := rules.NewCache(rules.NewStoreSource(db, logger), rules.WithTTL(cfg.RuleCache.TTL), rules.WithLogger(logger))
	ruleSvc := rules.NewService(db, cache, disp)

	// The engine outlives ctx so queued events drain after a signal.
	engCtx, cancelEng := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelEng()
	eng := engine.New(engCtx, cache, disp, db, cfg.Engine, logger)
	eng.Attach(b)
	defer eng.Shutdown()

	loader.OnChange(func(next *config.Config) {
		t, err := config.Thresholds(next)
		if err != nil {
			logger.Warn("config reload ignored: thresholds invalid", "err", err)
			return
		}
		approvals.SetLevels(t)
		if lvl, err := config.ParseLevel(next.Log.Level); err == nil {
			level.Set(lvl)
		}
		logger.Info("config reloaded", "document_types", len(t), "log_level", next.Log.Level)
	})
	if stopWatch, err := loader.Watch(); err != nil {
		logger.Warn("config watcher unavailable, hot reload disabled", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.New(api.Deps{
			DB:            db,
			Bus:           b,
			Engine:        eng,
			Documents:     docs,
			Approvals:     approvals,
			Ledger:        ledger,
			Rules:         ruleSvc,
			RuleTestDelay: cfg.HTTP.RuleTestDelay,
			Logger:        logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("docflow listening", "addr", cfg.HTTP.Addr, "driver", db.Driver())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
