package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/services"
)

// PolicyRepository is a mutex-guarded in-memory policy store used by
// tests and local runs.
type PolicyRepository struct {
	mu       sync.RWMutex
	policies map[uuid.UUID]*models.Policy
}

func NewPolicyRepository() *PolicyRepository {
	return &PolicyRepository{
		policies: make(map[uuid.UUID]*models.Policy),
	}
}

func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[policy.ID]; exists {
		return fmt.Errorf("policy %s: %w", policy.ID, services.ErrPolicyExists)
	}
	r.policies[policy.ID] = clonePolicy(policy)
	return nil
}

func (r *PolicyRepository) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*models.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policy, exists := r.policies[id]
	if !exists || policy.TenantID != tenantID {
		return nil, fmt.Errorf("policy %s: %w", id, services.ErrPolicyNotFound)
	}
	return clonePolicy(policy), nil
}

func (r *PolicyRepository) GetActivePolicies(ctx context.Context, tenantID uuid.UUID) ([]*models.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Policy
	for _, policy := range r.policies {
		if policy.TenantID == tenantID && policy.IsActive {
			result = append(result, clonePolicy(policy))
		}
	}
	models.SortPolicies(result)
	return result, nil
}

func (r *PolicyRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Policy
	for _, policy := range r.policies {
		if policy.TenantID == tenantID {
			result = append(result, clonePolicy(policy))
		}
	}
	models.SortPolicies(result)
	return result, nil
}

func (r *PolicyRepository) Update(ctx context.Context, policy *models.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.policies[policy.ID]
	if !exists || existing.TenantID != policy.TenantID {
		return fmt.Errorf("policy %s: %w", policy.ID, services.ErrPolicyNotFound)
	}
	r.policies[policy.ID] = clonePolicy(policy)
	return nil
}

func (r *PolicyRepository) Delete(ctx context.Context, id, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.policies[id]
	if !exists || existing.TenantID != tenantID {
		return fmt.Errorf("policy %s: %w", id, services.ErrPolicyNotFound)
	}
	delete(r.policies, id)
	return nil
}

func clonePolicy(p *models.Policy) *models.Policy {
	clone := *p
	clone.Rules = make([]models.PolicyRule, len(p.Rules))
	copy(clone.Rules, p.Rules)
	return &clone
}
