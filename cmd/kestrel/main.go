// Kestrel - Deterministic lending decisions you can read line by line.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/income"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/underwriting"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvConfig), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"mode", cfg.Worker.Mode,
		"model", cfg.Scoring.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	metrics := observability.NewMetrics("kestrel")
	if local, ok := cacheImpl.(interface{ Stats() cache.Stats }); ok {
		metrics.RegisterCache(local.Stats)
	}

	// Policy rules see application_count through the velocity service
	velocitySvc := velocity.NewService(repo)
	engine, err := rules.NewEngine(velocitySvc.CountGetter(), cfg.Rules.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine, cfg.Rules.SeedDefaults); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	processor := underwriting.NewProcessor(
		scoring.NewModel(cfg.Scoring),
		income.NewAnalyzer(cfg.Income),
		underwriting.WithRules(engine, cfg.Velocity.WindowSecs),
		underwriting.WithRecorder(metrics),
	)
	slog.Info("underwriting processor initialized",
		"model", cfg.Scoring.Model,
		"engine_version", underwriting.EngineVersion,
	)

	workerCfg := worker.Config{
		TenantIDs:   cfg.Worker.TenantIDs,
		WorkerCount: cfg.Worker.Count,
	}
	async := cfg.Worker.Mode == domain.ModeAsync

	var asyncWorker *worker.Worker
	if async {
		asyncWorker = worker.NewWorker(busImpl, repo, processor,
			worker.WithCache(cacheImpl, cfg.Cache.EvaluationTTL),
			worker.WithRecorder(metrics),
		)
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Engine:        engine,
		Processor:     processor,
		Async:         async,
		Routing:       workerCfg,
		EvaluationTTL: cfg.Cache.EvaluationTTL,
		Version:       Version,
	}, metrics)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		slog.Error("server failed", "error", err)
	}

	// Stop consuming before the server and stores go away
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRules loads the global policy rules into the engine. With seed set,
// an empty database is first populated with the builtin rules.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine, seed bool) error {
	dbRules, err := repo.ListRuleConfigs(ctx, domain.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if len(dbRules) == 0 && seed {
		for _, rule := range rules.BuiltinRules() {
			if err := repo.SaveRuleConfig(ctx, domain.GlobalTenantID, rule); err != nil {
				return fmt.Errorf("seed rule %s: %w", rule.ID, err)
			}
		}
		slog.Info("seeded builtin policy rules", "count", len(rules.BuiltinRules()))

		if dbRules, err = repo.ListRuleConfigs(ctx, domain.GlobalTenantID); err != nil {
			return fmt.Errorf("list rules: %w", err)
		}
	}

	if len(dbRules) == 0 {
		slog.Info("no rules in database - configure via POST /v1/rules")
		return nil
	}

	slog.Info("loading rules from database", "count", len(dbRules))
	return engine.LoadRules(dbRules)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Lending Decision Engine")
	fmt.Println("  Every score explained.")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Mode:     %s\n", cfg.Worker.Mode)
	fmt.Printf("  Model:    %s\n", cfg.Scoring.Model)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /v1/applications/score   - Score an application")
	fmt.Println("    POST /v1/applications/submit  - Queue an application (async mode)")
	fmt.Println("    GET  /v1/evaluations/{id}     - Get evaluation by ID")
	fmt.Println("    POST /v1/income/analyze       - Income stability analysis")
	fmt.Println("    POST /v1/income/dti           - Debt-to-income ratio")
	fmt.Println("    POST /v1/payments/calculate   - Loan payment and schedule")
	fmt.Println("    POST /v1/decisions/evaluate   - Provider decision scenario")
	fmt.Println("    POST /v1/credit-score         - Provider credit score")
	fmt.Println("    POST /v1/income/verify        - Provider income verification")
	fmt.Println("    GET  /v1/rules                - List policy rules")
	fmt.Println("    POST /v1/rules                - Create a policy rule")
	fmt.Println("    POST /v1/rules/reload         - Hot-reload rules from database")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println("    GET  /metrics                 - Prometheus metrics")
	fmt.Println()
}
