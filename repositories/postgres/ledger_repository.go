package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/repositories"
)

// LedgerRepository implements the repositories.LedgerRepository interface
// over the reimbursement_items table written by the submission flow.
type LedgerRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB, logger *zap.Logger) repositories.LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// GetReimbursedAmount returns the sum of base-currency amounts from all
// previously submitted reimbursement items in status not in {rejected,
// draft}, restricted to the given categories and the bucket's window.
func (r *LedgerRepository) GetReimbursedAmount(ctx context.Context, userID, tenantID uuid.UUID, bucket models.TimeBucket, categories []string) (decimal.Decimal, error) {
	start, end, err := bucket.Window()
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid time bucket: %w", err)
	}

	query := `
		SELECT COALESCE(SUM(amount_in_base_currency), 0)
		FROM reimbursement_items
		WHERE tenant_id = $1
		  AND user_id = $2
		  AND category = ANY($3)
		  AND expense_date >= $4
		  AND expense_date < $5
		  AND status NOT IN ('rejected', 'draft')
	`

	var total decimal.Decimal
	err = r.db.QueryRowContext(ctx, query,
		tenantID, userID, pq.Array(categories), start, end,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query reimbursed amount: %w", err)
	}

	r.logger.Debug("ledger queried",
		zap.String("user_id", userID.String()),
		zap.String("bucket", bucket.String()),
		zap.Strings("categories", categories),
		zap.String("total", total.String()))

	return total, nil
}
