package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/repositories"
	"github.com/expenso/policy-engine/services"
)

// PolicyRepository implements the repositories.PolicyRepository interface
type PolicyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *DB, logger *zap.Logger) repositories.PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new policy with its rules
func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO policies (id, tenant_id, name, is_active, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, query,
		policy.ID,
		policy.TenantID,
		policy.Name,
		policy.IsActive,
		policy.Priority,
		policy.CreatedAt,
		policy.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}

	if err := r.insertRules(ctx, tx, policy.ID, policy.Rules); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy create: %w", err)
	}

	r.logger.Debug("policy created",
		zap.String("id", policy.ID.String()),
		zap.Int("rules", len(policy.Rules)))
	return nil
}

// GetByID retrieves a policy (with rules) by ID, scoped to a tenant
func (r *PolicyRepository) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*models.Policy, error) {
	query := `
		SELECT id, tenant_id, name, is_active, priority, created_at, updated_at
		FROM policies
		WHERE id = $1 AND tenant_id = $2
	`

	policy := &models.Policy{}
	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&policy.ID,
		&policy.TenantID,
		&policy.Name,
		&policy.IsActive,
		&policy.Priority,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("policy %s: %w", id, services.ErrPolicyNotFound)
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	rules, err := r.rulesForPolicies(ctx, []uuid.UUID{policy.ID})
	if err != nil {
		return nil, err
	}
	policy.Rules = rules[policy.ID]

	return policy, nil
}

// GetActivePolicies retrieves the tenant's active policies with their
// rules, sorted by ascending priority
func (r *PolicyRepository) GetActivePolicies(ctx context.Context, tenantID uuid.UUID) ([]*models.Policy, error) {
	query := `
		SELECT id, tenant_id, name, is_active, priority, created_at, updated_at
		FROM policies
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY priority ASC, created_at ASC
	`
	return r.queryPoliciesWithRules(ctx, query, tenantID)
}

// ListByTenant retrieves all policies for a tenant, active or not
func (r *PolicyRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Policy, error) {
	query := `
		SELECT id, tenant_id, name, is_active, priority, created_at, updated_at
		FROM policies
		WHERE tenant_id = $1
		ORDER BY priority ASC, created_at ASC
	`
	return r.queryPoliciesWithRules(ctx, query, tenantID)
}

// Update updates a policy and replaces its rules
func (r *PolicyRepository) Update(ctx context.Context, policy *models.Policy) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE policies
		SET name = $3,
		    is_active = $4,
		    priority = $5,
		    updated_at = $6
		WHERE id = $1 AND tenant_id = $2
	`
	result, err := tx.ExecContext(ctx, query,
		policy.ID,
		policy.TenantID,
		policy.Name,
		policy.IsActive,
		policy.Priority,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("policy %s: %w", policy.ID, services.ErrPolicyNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_rules WHERE policy_id = $1`, policy.ID); err != nil {
		return fmt.Errorf("failed to delete policy rules: %w", err)
	}
	if err := r.insertRules(ctx, tx, policy.ID, policy.Rules); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy update: %w", err)
	}

	r.logger.Debug("policy updated", zap.String("id", policy.ID.String()))
	return nil
}

// Delete deletes a policy and its rules
func (r *PolicyRepository) Delete(ctx context.Context, id, tenantID uuid.UUID) error {
	query := `DELETE FROM policies WHERE id = $1 AND tenant_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("policy %s: %w", id, services.ErrPolicyNotFound)
	}

	r.logger.Debug("policy deleted", zap.String("id", id.String()))
	return nil
}

// insertRules inserts all rules of a policy within a transaction
func (r *PolicyRepository) insertRules(ctx context.Context, tx *sql.Tx, policyID uuid.UUID, rules []models.PolicyRule) error {
	query := `
		INSERT INTO policy_rules
			(id, policy_id, name, category, shared_categories, department, trip_type,
			 limit_type, limit_amount, limit_currency, limit_cities, condition,
			 requires_receipt, requires_approval, message, suggestion, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	for _, rule := range rules {
		var limitType, limitCurrency *string
		var limitAmount *decimal.Decimal
		var limitCities []string
		if rule.Limit != nil {
			lt := string(rule.Limit.Type)
			limitType = &lt
			limitAmount = &rule.Limit.Amount
			limitCurrency = &rule.Limit.Currency
			limitCities = rule.Limit.Cities
		}

		var conditionJSON []byte
		if rule.Condition != nil {
			data, err := json.Marshal(rule.Condition)
			if err != nil {
				return fmt.Errorf("failed to marshal rule condition: %w", err)
			}
			conditionJSON = data
		}

		if _, err := tx.ExecContext(ctx, query,
			rule.ID,
			policyID,
			rule.Name,
			rule.Category,
			pq.Array(rule.SharedCategories),
			rule.Department,
			rule.TripType,
			limitType,
			limitAmount,
			limitCurrency,
			pq.Array(limitCities),
			conditionJSON,
			rule.RequiresReceipt,
			rule.RequiresApproval,
			rule.Message,
			rule.Suggestion,
			rule.Position,
		); err != nil {
			return fmt.Errorf("failed to insert policy rule: %w", err)
		}
	}
	return nil
}

// queryPoliciesWithRules queries policies and attaches their rules
func (r *PolicyRepository) queryPoliciesWithRules(ctx context.Context, query string, args ...interface{}) ([]*models.Policy, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.Policy
	var ids []uuid.UUID
	for rows.Next() {
		policy := &models.Policy{}
		if err := rows.Scan(
			&policy.ID,
			&policy.TenantID,
			&policy.Name,
			&policy.IsActive,
			&policy.Priority,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
		ids = append(ids, policy.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy rows: %w", err)
	}

	if len(policies) == 0 {
		return policies, nil
	}

	rulesByPolicy, err := r.rulesForPolicies(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, policy := range policies {
		policy.Rules = rulesByPolicy[policy.ID]
	}
	return policies, nil
}

// rulesForPolicies loads the rules of all given policies in one query
func (r *PolicyRepository) rulesForPolicies(ctx context.Context, policyIDs []uuid.UUID) (map[uuid.UUID][]models.PolicyRule, error) {
	query := `
		SELECT id, policy_id, name, category, shared_categories, department, trip_type,
		       limit_type, limit_amount, limit_currency, limit_cities, condition,
		       requires_receipt, requires_approval, message, suggestion, position
		FROM policy_rules
		WHERE policy_id = ANY($1)
		ORDER BY position ASC
	`

	ids := make([]string, len(policyIDs))
	for i, id := range policyIDs {
		ids[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query policy rules: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]models.PolicyRule)
	for rows.Next() {
		var rule models.PolicyRule
		var sharedCategories, limitCities pq.StringArray
		var limitType, limitCurrency sql.NullString
		var limitAmount decimal.NullDecimal
		var conditionJSON []byte

		if err := rows.Scan(
			&rule.ID,
			&rule.PolicyID,
			&rule.Name,
			&rule.Category,
			&sharedCategories,
			&rule.Department,
			&rule.TripType,
			&limitType,
			&limitAmount,
			&limitCurrency,
			&limitCities,
			&conditionJSON,
			&rule.RequiresReceipt,
			&rule.RequiresApproval,
			&rule.Message,
			&rule.Suggestion,
			&rule.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan policy rule: %w", err)
		}

		rule.SharedCategories = sharedCategories
		if limitType.Valid && limitAmount.Valid {
			rule.Limit = &models.RuleLimit{
				Type:     models.LimitType(limitType.String),
				Amount:   limitAmount.Decimal,
				Currency: limitCurrency.String,
				Cities:   limitCities,
			}
		}
		if len(conditionJSON) > 0 {
			var cond models.RuleCondition
			if err := json.Unmarshal(conditionJSON, &cond); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rule condition: %w", err)
			}
			rule.Condition = &cond
		}

		result[rule.PolicyID] = append(result[rule.PolicyID], rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	return result, nil
}
