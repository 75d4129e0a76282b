package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/expenso/policy-engine/config"
	"github.com/expenso/policy-engine/internal/observability"
	"github.com/expenso/policy-engine/middleware"
	"github.com/expenso/policy-engine/repositories"
	"github.com/expenso/policy-engine/repositories/postgres"
	"github.com/expenso/policy-engine/services/batch"
	"github.com/expenso/policy-engine/services/compliance"
	"github.com/expenso/policy-engine/services/condition"
	"github.com/expenso/policy-engine/services/limits"
	"github.com/expenso/policy-engine/services/matcher"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repositories
	Policies repositories.PolicyRepository
	Ledger   repositories.LedgerRepository

	// Engine services
	PolicyCache *matcher.SnapshotCache
	Matcher     *matcher.Service
	Conditions  *condition.Service
	Limits      *limits.Service
	Batch       *batch.Service
	Compliance  *compliance.Service

	// Observability
	Metrics *observability.MetricsCollector

	// Middleware
	Identity *middleware.IdentityMiddleware

	cacheStop chan struct{}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initServices(cfg)

	deps.Identity = middleware.NewIdentityMiddleware(logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection pool and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.DB = db

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Policies = postgres.NewPolicyRepository(d.DB, d.Logger)
	d.Ledger = postgres.NewLedgerRepository(d.DB, d.Logger)

	d.Logger.Info("repositories initialized")
}

// initServices wires the evaluation services and the policy snapshot cache
func (d *Dependencies) initServices(cfg *config.Config) {
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewMetricsCollector(d.Logger)
	}

	d.PolicyCache = matcher.NewSnapshotCache(cfg.Cache.MaxSize, cfg.Cache.TTL)
	d.cacheStop = make(chan struct{})
	go d.PolicyCache.StartCleanupWorker(cfg.Cache.CleanupInterval, d.cacheStop)

	d.Matcher = matcher.NewService(d.Logger)
	d.Conditions = condition.NewService(d.Logger)
	d.Limits = limits.NewService(cfg.CityTiers, d.Logger)
	d.Batch = batch.NewService(d.Matcher, d.Limits, d.Ledger, d.Logger)
	d.Compliance = compliance.NewService(
		d.Policies,
		d.Ledger,
		d.PolicyCache,
		d.Matcher,
		d.Conditions,
		d.Limits,
		d.Metrics,
		d.Logger,
	)

	d.Logger.Info("engine services initialized",
		zap.Int("cache_max_size", cfg.Cache.MaxSize),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Bool("metrics_enabled", cfg.Observability.MetricsEnabled))
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.cacheStop != nil {
		close(d.cacheStop)
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
