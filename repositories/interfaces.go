package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expenso/policy-engine/models"
)

// PolicyRepository handles policy data operations.
type PolicyRepository interface {
	// Create creates a new policy with its rules.
	Create(ctx context.Context, policy *models.Policy) error

	// GetByID retrieves a policy (with rules) by ID, scoped to a tenant.
	GetByID(ctx context.Context, id, tenantID uuid.UUID) (*models.Policy, error)

	// GetActivePolicies retrieves the tenant's active policies with their
	// rules, sorted by ascending priority.
	GetActivePolicies(ctx context.Context, tenantID uuid.UUID) ([]*models.Policy, error)

	// ListByTenant retrieves all policies for a tenant, active or not.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Policy, error)

	// Update updates a policy and replaces its rules.
	Update(ctx context.Context, policy *models.Policy) error

	// Delete deletes a policy and its rules.
	Delete(ctx context.Context, id, tenantID uuid.UUID) error
}

// LedgerRepository provides read-only access to the historical ledger of
// previously recorded expense amounts. The ledger is owned externally; two
// concurrent submissions can read the same total and jointly exceed a
// limit unless the caller serializes per accumulator key (see batch
// package docs).
type LedgerRepository interface {
	// GetReimbursedAmount returns the sum of base-currency amounts from
	// all previously submitted reimbursements in status not in
	// {rejected, draft}, restricted to the given categories and the
	// bucket's calendar window.
	GetReimbursedAmount(ctx context.Context, userID, tenantID uuid.UUID, bucket models.TimeBucket, categories []string) (decimal.Decimal, error)
}
