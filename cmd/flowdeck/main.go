package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soochol/flowdeck/internal/api"
	"github.com/soochol/flowdeck/internal/channel"
	"github.com/soochol/flowdeck/internal/config"
	"github.com/soochol/flowdeck/internal/db"
	"github.com/soochol/flowdeck/internal/executor"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/logging"
	"github.com/soochol/flowdeck/internal/nodetypes"
	"github.com/soochol/flowdeck/internal/remote"
	"github.com/soochol/flowdeck/internal/repository"
	"github.com/soochol/flowdeck/internal/services"
	"github.com/soochol/flowdeck/internal/tools"
	"github.com/soochol/flowdeck/internal/tracker"
)

const (
	catalogTTL     = 5 * time.Minute
	trackingTTL    = 10 * time.Minute
	shutdownWindow = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		if err := serve(); err != nil {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println("flowdeck v0.1.0")
	fmt.Println("Usage: flowdeck serve")
}

// backend is the execution side the builder talks to.
type backend struct {
	catalog   ports.ToolCatalog
	generator ports.PlanGenerator
	submitter ports.ExecutionSubmitter
	snapshots ports.SnapshotSource
	live      ports.LiveSource
	local     *executor.Executor
	hub       *channel.Hub
}

func serve() error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, closeDB, err := executionHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	be, err := newBackend(cfg, history)
	if err != nil {
		return err
	}

	catalog := services.NewCatalogService(be.catalog, nodetypes.NewRegistry(), catalogTTL)
	if _, err := catalog.Refresh(ctx); err != nil {
		slog.Warn("initial tool catalog load failed", "err", err)
	}
	tracking := services.NewTrackingService(be.live, be.snapshots, tracker.Options{PollInterval: cfg.Executor.PollInterval}, trackingTTL)
	defer tracking.Close()
	builder := services.NewBuilderService(catalog, repository.NewGraphDrafts(), repository.NewPlanDrafts(),
		be.generator, be.submitter, be.snapshots, tracking)

	srv := api.NewServer(builder, catalog, tracking)
	srv.SetExecutionHistory(history)
	if be.local != nil {
		srv.SetLocalExecutor(be.local, be.hub)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting flowdeck server", "addr", addr, "executor", cfg.Executor.Mode)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	if be.local != nil {
		if err := be.local.Shutdown(shutdownCtx); err != nil {
			slog.Warn("executor shutdown", "err", err)
		}
		be.hub.Close()
	}
	return nil
}

// executionHistory keeps execution records in memory, backed by PostgreSQL
// when a database URL is configured. Records left running by a previous
// process are failed on startup.
func executionHistory(ctx context.Context, cfg *config.Config) (repository.ExecutionRepository, func(), error) {
	mem := repository.NewMemoryExecutionRepository()
	if cfg.Database.URL == "" {
		slog.Info("no database configured, execution history is in memory only")
		return mem, func() {}, nil
	}

	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	repo := repository.NewPersistentExecutionRepository(mem, database)
	if n, err := repo.MarkOrphanedFailed(ctx); err != nil {
		slog.Warn("mark orphaned executions", "err", err)
	} else if n > 0 {
		slog.Info("marked orphaned executions failed", "count", n)
	}
	return repo, func() { database.Close() }, nil
}

func newBackend(cfg *config.Config, history repository.ExecutionRepository) (backend, error) {
	switch cfg.Executor.Mode {
	case config.ModeRemote:
		client := remote.New(cfg.Executor.URL, cfg.Executor.RequestTimeout)
		liveURL, err := cfg.Executor.LiveURL()
		if err != nil {
			return backend{}, err
		}
		return backend{
			catalog:   client,
			generator: client,
			submitter: client,
			snapshots: client,
			live:      channel.NewWSSource(liveURL),
		}, nil
	default:
		hub := channel.NewHub()
		limits := executor.Limits{GlobalMax: cfg.Limits.GlobalMax, PerTool: cfg.Limits.PerTool}
		exec := executor.New(tools.NewDefaultRegistry(), hub, history, executor.NewLimiter(limits))
		// Local mode has no plan generator.
		return backend{
			catalog:   exec,
			submitter: exec,
			snapshots: exec,
			live:      exec,
			local:     exec,
			hub:       hub,
		}, nil
	}
}
