package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/services"
)

func TestPolicyRepository(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("create and get", func(t *testing.T) {
		repo := NewPolicyRepository()
		policy := models.NewPolicy(tenantID, "p", 1)
		policy.Rules = []models.PolicyRule{{ID: uuid.New(), Name: "r", Category: "meals"}}

		require.NoError(t, repo.Create(ctx, policy))

		got, err := repo.GetByID(ctx, policy.ID, tenantID)
		require.NoError(t, err)
		assert.Equal(t, "p", got.Name)
		require.Len(t, got.Rules, 1)
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		repo := NewPolicyRepository()
		policy := models.NewPolicy(tenantID, "p", 1)
		require.NoError(t, repo.Create(ctx, policy))
		assert.ErrorIs(t, repo.Create(ctx, policy), services.ErrPolicyExists)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		repo := NewPolicyRepository()
		policy := models.NewPolicy(tenantID, "p", 1)
		require.NoError(t, repo.Create(ctx, policy))

		_, err := repo.GetByID(ctx, policy.ID, uuid.New())
		assert.ErrorIs(t, err, services.ErrPolicyNotFound)
	})

	t.Run("returned policies are copies", func(t *testing.T) {
		repo := NewPolicyRepository()
		policy := models.NewPolicy(tenantID, "p", 1)
		policy.Rules = []models.PolicyRule{{ID: uuid.New(), Name: "original", Category: "meals"}}
		require.NoError(t, repo.Create(ctx, policy))

		got, err := repo.GetByID(ctx, policy.ID, tenantID)
		require.NoError(t, err)
		got.Rules[0].Name = "mutated"

		again, err := repo.GetByID(ctx, policy.ID, tenantID)
		require.NoError(t, err)
		assert.Equal(t, "original", again.Rules[0].Name)
	})

	t.Run("active policies sorted and filtered", func(t *testing.T) {
		repo := NewPolicyRepository()
		low := models.NewPolicy(tenantID, "low precedence", 100)
		high := models.NewPolicy(tenantID, "high precedence", 1)
		inactive := models.NewPolicy(tenantID, "inactive", 0)
		inactive.IsActive = false

		require.NoError(t, repo.Create(ctx, low))
		require.NoError(t, repo.Create(ctx, high))
		require.NoError(t, repo.Create(ctx, inactive))

		active, err := repo.GetActivePolicies(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "high precedence", active[0].Name)
		assert.Equal(t, "low precedence", active[1].Name)

		all, err := repo.ListByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("update and delete", func(t *testing.T) {
		repo := NewPolicyRepository()
		policy := models.NewPolicy(tenantID, "before", 1)
		require.NoError(t, repo.Create(ctx, policy))

		policy.Name = "after"
		require.NoError(t, repo.Update(ctx, policy))

		got, err := repo.GetByID(ctx, policy.ID, tenantID)
		require.NoError(t, err)
		assert.Equal(t, "after", got.Name)

		require.NoError(t, repo.Delete(ctx, policy.ID, tenantID))
		_, err = repo.GetByID(ctx, policy.ID, tenantID)
		assert.Error(t, err)

		assert.Error(t, repo.Delete(ctx, policy.ID, tenantID))
	})
}

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()
	day := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	bucket := models.BucketFor(models.LimitPerDay, day)

	record := func(repo *LedgerRepository, category, amount, status string, date time.Time) {
		repo.Record(LedgerEntry{
			TenantID: tenantID,
			UserID:   userID,
			Category: category,
			Amount:   decimal.RequireFromString(amount),
			Date:     date,
			Status:   status,
		})
	}

	t.Run("sums matching entries", func(t *testing.T) {
		repo := NewLedgerRepository()
		record(repo, "meals", "100", "submitted", day)
		record(repo, "meals", "50", "approved", day)

		total, err := repo.GetReimbursedAmount(ctx, userID, tenantID, bucket, []string{"meals"})
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("150")))
	})

	t.Run("excludes rejected and draft", func(t *testing.T) {
		repo := NewLedgerRepository()
		record(repo, "meals", "100", "rejected", day)
		record(repo, "meals", "100", "draft", day)
		record(repo, "meals", "25", "submitted", day)

		total, err := repo.GetReimbursedAmount(ctx, userID, tenantID, bucket, []string{"meals"})
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("25")))
	})

	t.Run("window boundaries are half open", func(t *testing.T) {
		repo := NewLedgerRepository()
		record(repo, "meals", "10", "submitted", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
		record(repo, "meals", "20", "submitted", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
		record(repo, "meals", "40", "submitted", time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC))

		total, err := repo.GetReimbursedAmount(ctx, userID, tenantID, bucket, []string{"meals"})
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("10")))
	})

	t.Run("filters by category set", func(t *testing.T) {
		repo := NewLedgerRepository()
		record(repo, "taxi", "30", "submitted", day)
		record(repo, "train", "40", "submitted", day)
		record(repo, "meals", "100", "submitted", day)

		total, err := repo.GetReimbursedAmount(ctx, userID, tenantID, bucket, []string{"taxi", "train"})
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("70")))
	})

	t.Run("other users are excluded", func(t *testing.T) {
		repo := NewLedgerRepository()
		repo.Record(LedgerEntry{
			TenantID: tenantID,
			UserID:   uuid.New(),
			Category: "meals",
			Amount:   decimal.RequireFromString("999"),
			Date:     day,
		})

		total, err := repo.GetReimbursedAmount(ctx, userID, tenantID, bucket, []string{"meals"})
		require.NoError(t, err)
		assert.True(t, total.IsZero())
	})

	t.Run("invalid bucket errors", func(t *testing.T) {
		repo := NewLedgerRepository()
		_, err := repo.GetReimbursedAmount(ctx, userID, tenantID, models.TimeBucket{}, []string{"meals"})
		assert.Error(t, err)
	})
}
