// Harrier - Underwriting rule evaluation with a feedback loop.
// Copyright (c) 2025 underwrite-labs
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/underwrite-labs/harrier/internal/api"
	"github.com/underwrite-labs/harrier/internal/bus"
	"github.com/underwrite-labs/harrier/internal/cache"
	"github.com/underwrite-labs/harrier/internal/coverage"
	"github.com/underwrite-labs/harrier/internal/domain"
	"github.com/underwrite-labs/harrier/internal/learning"
	"github.com/underwrite-labs/harrier/internal/repository"
	"github.com/underwrite-labs/harrier/internal/rules"
	"github.com/underwrite-labs/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if v := os.Getenv("HARRIER_RULES_FILE"); v != "" {
		cfg.Engine.RulesFile = v
	}
	if v := os.Getenv("HARRIER_COVERAGE_FILE"); v != "" {
		cfg.Engine.CoverageFile = v
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

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

	// Initialize Rule Engine (derived fields compile at startup)
	engine, err := rules.NewEngine(cfg.Engine.DerivedFields)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Seed rules from a static file, then load from database
	if err := seedRulesFromFile(ctx, cfg.Engine.RulesFile, repo); err != nil {
		slog.Error("failed to seed rules", "file", cfg.Engine.RulesFile, "error", err)
		os.Exit(1)
	}
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Coverage Matcher (optional)
	matcher, err := loadCoverageRules(cfg.Engine.CoverageFile)
	if err != nil {
		slog.Error("failed to load coverage rules", "file", cfg.Engine.CoverageFile, "error", err)
		os.Exit(1)
	}
	if matcher != nil {
		slog.Info("coverage matcher initialized", "rules_count", matcher.RulesCount())
	}

	// Initialize Learning subsystem
	recorder := learning.NewRecorder(repo, busImpl)
	similarity := learning.NewSimilarity(repo, cfg.Learning.SimilarityPoolSize)
	insights := learning.NewInsights(similarity, cacheImpl, time.Duration(cfg.Learning.InsightsTTL)*time.Second)
	slog.Info("learning subsystem initialized",
		"similarity_pool", similarity.PoolSize(),
		"insights_ttl_s", cfg.Learning.InsightsTTL,
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl)

		var tenantIDs []string
		if envTenants := os.Getenv("HARRIER_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, matcher, recorder, similarity, insights, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		asyncWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// seedRulesFromFile upserts rules from a static JSON file into the
// database. Seeding is idempotent; the database stays the source of
// truth afterwards.
func seedRulesFromFile(ctx context.Context, path string, repo domain.Repository) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var seeded []*domain.Rule
	if err := json.Unmarshal(data, &seeded); err != nil {
		return fmt.Errorf("failed to parse rules file: %w", err)
	}

	for _, rule := range seeded {
		rule.TenantID = GlobalTenantID
		if err := repo.SaveRule(ctx, GlobalTenantID, rule); err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
		}
	}

	slog.Info("rules seeded from file", "file", path, "count", len(seeded))
	return nil
}

// loadRulesFromDatabase loads rules from the database into the engine.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

// loadCoverageRules builds the evidence coverage matcher from a JSON
// file. Returns nil when no file is configured.
func loadCoverageRules(path string) (*coverage.Matcher, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var coverageRules []domain.CoverageRule
	if err := json.Unmarshal(data, &coverageRules); err != nil {
		return nil, fmt.Errorf("failed to parse coverage file: %w", err)
	}

	return coverage.NewMatcher(coverageRules)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║     Underwriting Rule Evaluation          ║")
	fmt.Println("  ║      Every case, a precedent.             ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /cases                  - Create or update a case")
	fmt.Println("    POST /cases/{id}/evaluate    - Evaluate a stored case")
	fmt.Println("    GET  /cases/{id}/similar     - Find similar historical cases")
	fmt.Println("    GET  /cases/{id}/insights    - Learning insights for a case")
	fmt.Println("    GET  /cases/{id}/coverage    - Evidence coverage assessment")
	fmt.Println("    POST /evaluate               - Evaluate an inline case")
	fmt.Println("    POST /overrides              - Record an underwriter override")
	fmt.Println("    POST /overrides/{id}/validate - Validate an override")
	fmt.Println("    POST /overrides/{id}/flag    - Flag an override for review")
	fmt.Println("    GET  /patterns               - Mined override patterns")
	fmt.Println("    GET  /rules                  - List all rules")
	fmt.Println("    POST /rules                  - Create a new rule")
	fmt.Println("    POST /rules/reload           - Hot-reload rules from database")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
