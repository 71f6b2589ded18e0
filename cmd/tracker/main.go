// Command tracker collects best-seller listings from the configured
// marketplaces and serves rankings, trends and comparisons over HTTP.
//
// Usage:
//
//	tracker [-config path] serve     run the API and the scheduled collector
//	tracker [-config path] collect [-platforms tiktok,amazon]
//	                                 run one collection and print the run as JSON
//	tracker [-config path] migrate   create or update the database schema
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/infrastructure/config"
	"github.com/bestseller/tracker/internal/infrastructure/logger"
	"github.com/bestseller/tracker/internal/infrastructure/scheduler"
	"github.com/bestseller/tracker/internal/interfaces/http/handler"
	"github.com/bestseller/tracker/internal/interfaces/http/middleware"
	"github.com/bestseller/tracker/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a TOML config file (default: ./config.toml if present)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, cfg.App.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "serve":
		err = runServe(ctx, cfg, log)
	case "collect":
		var platforms []market.Platform
		platforms, err = parseCollectArgs(args[1:])
		if err == nil {
			err = runCollect(ctx, cfg, log, os.Stdout, platforms...)
		}
	case "migrate":
		err = runMigrate(ctx, cfg, log)
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("Command failed", zap.String("command", args[0]), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: tracker [flags] <command>

Commands:
  serve     Run the HTTP API and the scheduled collector
  collect   Run one collection and print the run as JSON
            (-platforms tiktok,amazon limits it to those platforms)
  migrate   Create or update the database schema

Flags:
`)
	flag.PrintDefaults()
}

// ---------------------------------------------------------------------------
// migrate
// ---------------------------------------------------------------------------

func runMigrate(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	log.Info("Database schema is up to date", zap.String("driver", cfg.Database.Driver))
	return nil
}

// ---------------------------------------------------------------------------
// collect
// ---------------------------------------------------------------------------

// parseCollectArgs reads the flags of the collect subcommand
func parseCollectArgs(args []string) ([]market.Platform, error) {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	names := fs.String("platforms", "", "Comma separated platforms to collect (default: every enabled platform)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(*names) == "" {
		return nil, nil
	}
	return market.ParsePlatforms(strings.Split(*names, ","))
}

func runCollect(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer, platforms ...market.Platform) error {
	a, err := newApp(ctx, cfg, log, platforms...)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	run, err := a.service.CollectData(ctx)
	// the process exits next, so export this run's counters now
	if flushErr := a.meters.ForceFlush(context.WithoutCancel(ctx)); flushErr != nil {
		log.Warn("Failed to flush metrics", zap.Error(flushErr))
	}
	if run != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(run); encErr != nil {
			return fmt.Errorf("encode run: %w", encErr)
		}
	}
	return err
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		defer limiter.Stop()
	}

	engine := router.NewEngine(router.EngineOptions{
		Logger:         log,
		Meter:          a.meters.Meter("tracker/http"),
		TrustedProxies: cfg.HTTP.TrustedProxies,
		AllowOrigins:   cfg.HTTP.AllowOrigins,
		RateLimiter:    limiter,
		Release:        cfg.App.Env == "production",
	})
	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(handler.NewTrackerHandler(a.service)).
		Register(handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.Pinger{
			"database": a.db,
		})).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	var trigger *scheduler.IntervalTrigger
	if interval := cfg.Collection.ScheduleInterval(); interval > 0 {
		trigger, err = scheduler.NewIntervalTrigger(
			scheduler.IntervalTriggerConfig{Interval: interval},
			scheduledCollect(a, log),
			log.Named("scheduler"),
		)
		if err != nil {
			return err
		}
		if err := trigger.Start(ctx); err != nil {
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduled collection did not stop in time", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := a.service.Shutdown(shutdownCtx); err != nil {
		log.Warn("Background collection did not stop in time", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	return nil
}

// scheduledCollect adapts CollectData to the trigger's job signature
func scheduledCollect(a *app, log *zap.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		run, err := a.service.CollectData(ctx)
		if err != nil {
			log.Warn("Scheduled collection failed", zap.Error(err))
			return
		}
		log.Info("Scheduled collection finished",
			zap.String("run_id", run.ID.String()),
			zap.String("status", string(run.Status)),
			zap.Int("persisted", run.PersistedCount()),
		)
	}
}
