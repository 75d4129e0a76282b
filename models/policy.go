package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LimitType discriminates the granularity of a spending limit.
type LimitType string

const (
	LimitPerItem  LimitType = "per_item"
	LimitPerDay   LimitType = "per_day"
	LimitPerMonth LimitType = "per_month"
	LimitPerYear  LimitType = "per_year"
)

// IsAccumulating reports whether the limit type aggregates amounts over a
// time window. Per-item limits never touch the accumulator.
func (t LimitType) IsAccumulating() bool {
	switch t {
	case LimitPerDay, LimitPerMonth, LimitPerYear:
		return true
	default:
		return false
	}
}

// ConditionType selects which field of an expense item a condition reads.
type ConditionType string

const (
	ConditionAmount   ConditionType = "amount"
	ConditionDate     ConditionType = "date"
	ConditionLocation ConditionType = "location"
)

// Operator is a comparison operator attached to a rule condition.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNe      Operator = "ne"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpIn      Operator = "in"
	OpNotIn   Operator = "not_in"
	OpBetween Operator = "between"
)

// Policy is a named, prioritized collection of rules for one tenant.
// Policies are evaluated in ascending Priority order: a lower value means
// higher precedence.
type Policy struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	TenantID  uuid.UUID    `json:"tenant_id" db:"tenant_id"`
	Name      string       `json:"name" db:"name"`
	IsActive  bool         `json:"is_active" db:"is_active"`
	Priority  int          `json:"priority" db:"priority"`
	Rules     []PolicyRule `json:"rules"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// NewPolicy creates a Policy with a fresh ID and timestamps.
func NewPolicy(tenantID uuid.UUID, name string, priority int) *Policy {
	now := time.Now()
	return &Policy{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		IsActive:  true,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SortPolicies orders policies by ascending priority; ties break on
// creation time so evaluation order is stable across serialization.
func SortPolicies(policies []*Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority < policies[j].Priority
		}
		return policies[i].CreatedAt.Before(policies[j].CreatedAt)
	})
}

// SortedRules returns the policy's rules ordered by their explicit
// Position field rather than slice order.
func (p *Policy) SortedRules() []PolicyRule {
	rules := make([]PolicyRule, len(p.Rules))
	copy(rules, p.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Position < rules[j].Position
	})
	return rules
}

// PolicyRule is a single category-scoped constraint within a policy. A rule
// carries at most one limit and at most one condition.
type PolicyRule struct {
	ID       uuid.UUID `json:"id" db:"id"`
	PolicyID uuid.UUID `json:"policy_id" db:"policy_id"`
	Name     string    `json:"name" db:"name"`
	Category string    `json:"category" db:"category"`

	// SharedCategories pools the rule's limit across several categories.
	// Empty means the limit applies to Category alone.
	SharedCategories []string `json:"shared_categories,omitempty" db:"shared_categories"`

	Department *string `json:"department,omitempty" db:"department"`
	TripType   *string `json:"trip_type,omitempty" db:"trip_type"`

	Limit     *RuleLimit     `json:"limit,omitempty"`
	Condition *RuleCondition `json:"condition,omitempty"`

	RequiresReceipt  bool `json:"requires_receipt" db:"requires_receipt"`
	RequiresApproval bool `json:"requires_approval" db:"requires_approval"`

	Message    string `json:"message" db:"message"`
	Suggestion string `json:"suggestion" db:"suggestion"`

	// Position makes in-policy rule order explicit and serialization-safe.
	Position int `json:"position" db:"position"`
}

// LimitCategories returns the category set the rule's limit accumulates
// over, sorted for stable accumulator keys.
func (r *PolicyRule) LimitCategories() []string {
	if len(r.SharedCategories) == 0 {
		return []string{r.Category}
	}
	cats := make([]string, len(r.SharedCategories))
	copy(cats, r.SharedCategories)
	sort.Strings(cats)
	return cats
}

// RuleLimit is a maximum spend threshold of a given granularity.
// Invariant: Amount > 0.
type RuleLimit struct {
	Type     LimitType       `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Cities, when non-empty, marks the limit as eligible for a
	// city-tier multiplier on the effective amount.
	Cities []string `json:"cities,omitempty"`
}

// RuleCondition is a non-limit boolean check attached to a rule.
// Value holds the comparison operand; for in/not_in it is a list, for
// between it is the lower bound with ValueEnd as the inclusive upper bound.
type RuleCondition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`
	Value    interface{}   `json:"value"`
	ValueEnd interface{}   `json:"value_end,omitempty"`
}
