package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return &DB{DB: mockDB, logger: zap.NewNop()}, mock
}

func TestGetReimbursedAmount(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	bucket := models.TimeBucket{Type: models.LimitPerDay, Key: "2026-03-15"}
	start := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	t.Run("sums base-currency amounts in the window", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db, zap.NewNop())

		mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_in_base_currency\), 0\)`).
			WithArgs(tenantID, userID, sqlmock.AnyArg(), start, end).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("250.50"))

		total, err := repo.GetReimbursedAmount(context.Background(), userID, tenantID, bucket, []string{"meals"})
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("250.50")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty window returns zero", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db, zap.NewNop())

		mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_in_base_currency\), 0\)`).
			WithArgs(tenantID, userID, sqlmock.AnyArg(), start, end).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("0"))

		total, err := repo.GetReimbursedAmount(context.Background(), userID, tenantID, bucket, []string{"meals"})
		require.NoError(t, err)
		assert.True(t, total.IsZero())
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db, zap.NewNop())

		mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_in_base_currency\), 0\)`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetReimbursedAmount(context.Background(), userID, tenantID, bucket, []string{"meals"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query reimbursed amount")
	})

	t.Run("invalid bucket never hits the database", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db, zap.NewNop())

		_, err := repo.GetReimbursedAmount(context.Background(), userID, tenantID,
			models.TimeBucket{Type: models.LimitPerItem}, []string{"meals"})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
