package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/services"
)

var (
	policyColumns = []string{"id", "tenant_id", "name", "is_active", "priority", "created_at", "updated_at"}
	ruleColumns   = []string{
		"id", "policy_id", "name", "category", "shared_categories", "department", "trip_type",
		"limit_type", "limit_amount", "limit_currency", "limit_cities", "condition",
		"requires_receipt", "requires_approval", "message", "suggestion", "position",
	}
)

func TestGetActivePolicies(t *testing.T) {
	tenantID := uuid.New()
	policyID := uuid.New()
	ruleID := uuid.New()
	now := time.Now()

	t.Run("loads policies with rules", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		mock.ExpectQuery(`SELECT id, tenant_id, name, is_active, priority, created_at, updated_at\s+FROM policies\s+WHERE tenant_id = \$1 AND is_active = true`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows(policyColumns).
				AddRow(policyID, tenantID, "travel policy", true, 10, now, now))

		mock.ExpectQuery(`FROM policy_rules\s+WHERE policy_id = ANY\(\$1\)`).
			WillReturnRows(sqlmock.NewRows(ruleColumns).
				AddRow(ruleID, policyID, "daily meals", "meals", "{meals,snacks}", nil, nil,
					"per_day", "300.00", "CNY", "{}", []byte(`{"type":"amount","operator":"lte","value":500}`),
					true, false, "keep meals moderate", "", 0))

		policies, err := repo.GetActivePolicies(context.Background(), tenantID)
		require.NoError(t, err)
		require.Len(t, policies, 1)

		policy := policies[0]
		assert.Equal(t, "travel policy", policy.Name)
		require.Len(t, policy.Rules, 1)

		rule := policy.Rules[0]
		assert.Equal(t, "daily meals", rule.Name)
		assert.Equal(t, []string{"meals", "snacks"}, rule.SharedCategories)
		require.NotNil(t, rule.Limit)
		assert.Equal(t, models.LimitPerDay, rule.Limit.Type)
		assert.Equal(t, "CNY", rule.Limit.Currency)
		require.NotNil(t, rule.Condition)
		assert.Equal(t, models.ConditionAmount, rule.Condition.Type)
		assert.True(t, rule.RequiresReceipt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no policies skips the rules query", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM policies`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows(policyColumns))

		policies, err := repo.GetActivePolicies(context.Background(), tenantID)
		require.NoError(t, err)
		assert.Empty(t, policies)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rule without limit or condition stays bare", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM policies`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows(policyColumns).
				AddRow(policyID, tenantID, "p", true, 0, now, now))

		mock.ExpectQuery(`FROM policy_rules`).
			WillReturnRows(sqlmock.NewRows(ruleColumns).
				AddRow(ruleID, policyID, "receipts only", "hotel", "{}", nil, nil,
					nil, nil, nil, "{}", nil,
					true, false, "", "", 0))

		policies, err := repo.GetActivePolicies(context.Background(), tenantID)
		require.NoError(t, err)
		require.Len(t, policies, 1)
		require.Len(t, policies[0].Rules, 1)
		assert.Nil(t, policies[0].Rules[0].Limit)
		assert.Nil(t, policies[0].Rules[0].Condition)
	})
}

func TestGetByID(t *testing.T) {
	tenantID := uuid.New()
	policyID := uuid.New()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM policies\s+WHERE id = \$1 AND tenant_id = \$2`).
			WithArgs(policyID, tenantID).
			WillReturnRows(sqlmock.NewRows(policyColumns).
				AddRow(policyID, tenantID, "p", true, 5, now, now))
		mock.ExpectQuery(`FROM policy_rules`).
			WillReturnRows(sqlmock.NewRows(ruleColumns))

		policy, err := repo.GetByID(context.Background(), policyID, tenantID)
		require.NoError(t, err)
		assert.Equal(t, policyID, policy.ID)
		assert.Empty(t, policy.Rules)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM policies\s+WHERE id = \$1 AND tenant_id = \$2`).
			WithArgs(policyID, tenantID).
			WillReturnRows(sqlmock.NewRows(policyColumns))

		_, err := repo.GetByID(context.Background(), policyID, tenantID)
		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrPolicyNotFound)
	})
}

func TestCreatePolicy(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db, zap.NewNop())

	policy := models.NewPolicy(uuid.New(), "travel policy", 10)
	policy.Rules = []models.PolicyRule{
		{
			ID:       uuid.New(),
			PolicyID: policy.ID,
			Name:     "daily meals",
			Category: "meals",
			Limit: &models.RuleLimit{
				Type:     models.LimitPerDay,
				Amount:   decimal.RequireFromString("300"),
				Currency: "CNY",
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO policies`).
		WithArgs(policy.ID, policy.TenantID, policy.Name, policy.IsActive, policy.Priority,
			policy.CreatedAt, policy.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO policy_rules`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), policy))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePolicy(t *testing.T) {
	t.Run("replaces rules in one transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		policy := models.NewPolicy(uuid.New(), "p", 0)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE policies`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM policy_rules WHERE policy_id = \$1`).
			WithArgs(policy.ID).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, repo.Update(context.Background(), policy))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing policy rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		policy := models.NewPolicy(uuid.New(), "p", 0)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE policies`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.Update(context.Background(), policy)
		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrPolicyNotFound)
	})
}

func TestDeletePolicy(t *testing.T) {
	policyID := uuid.New()
	tenantID := uuid.New()

	t.Run("deletes by id and tenant", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		mock.ExpectExec(`DELETE FROM policies WHERE id = \$1 AND tenant_id = \$2`).
			WithArgs(policyID, tenantID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Delete(context.Background(), policyID, tenantID))
	})

	t.Run("missing policy errors", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPolicyRepository(db, zap.NewNop())

		mock.ExpectExec(`DELETE FROM policies`).
			WithArgs(policyID, tenantID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), policyID, tenantID)
		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrPolicyNotFound)
	})
}
