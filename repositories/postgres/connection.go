package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Policies table
		CREATE TABLE IF NOT EXISTS policies (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			priority INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Policy rules table
		CREATE TABLE IF NOT EXISTS policy_rules (
			id UUID PRIMARY KEY,
			policy_id UUID NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(100) NOT NULL,
			shared_categories TEXT[],
			department VARCHAR(100),
			trip_type VARCHAR(50),
			limit_type VARCHAR(20),
			limit_amount DECIMAL(14, 2),
			limit_currency VARCHAR(10),
			limit_cities TEXT[],
			condition JSONB,
			requires_receipt BOOLEAN NOT NULL DEFAULT false,
			requires_approval BOOLEAN NOT NULL DEFAULT false,
			message TEXT NOT NULL DEFAULT '',
			suggestion TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0
		);

		-- Reimbursement items ledger (written by the submission flow,
		-- read-only here)
		CREATE TABLE IF NOT EXISTS reimbursement_items (
			id UUID PRIMARY KEY,
			reimbursement_id UUID NOT NULL,
			tenant_id UUID NOT NULL,
			user_id UUID NOT NULL,
			category VARCHAR(100) NOT NULL,
			amount_in_base_currency DECIMAL(14, 2) NOT NULL,
			expense_date DATE NOT NULL,
			status VARCHAR(20) NOT NULL
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_policies_tenant_id ON policies(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_policies_is_active ON policies(is_active);
		CREATE INDEX IF NOT EXISTS idx_policy_rules_policy_id ON policy_rules(policy_id);
		CREATE INDEX IF NOT EXISTS idx_policy_rules_category ON policy_rules(category);
		CREATE INDEX IF NOT EXISTS idx_reimbursement_items_user ON reimbursement_items(tenant_id, user_id, expense_date);
		CREATE INDEX IF NOT EXISTS idx_reimbursement_items_category ON reimbursement_items(category);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
