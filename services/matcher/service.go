package matcher

import (
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
)

// Service selects the applicable rule for an expense item from a tenant's
// active policies.
type Service struct {
	logger *zap.Logger
}

// NewService creates a new matcher Service instance
func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// Match returns the first rule whose category equals the item's category
// and whose department/trip-type constraints (when set) equal the
// context's values. Policies are scanned in ascending priority order and
// rules in their explicit position order; the first match wins and later
// candidates are never evaluated. Returns nil when no rule applies.
//
// Ambiguity (two rules matching the same category) is a configuration
// error resolved by policy curation, not by the engine.
func (s *Service) Match(item models.ExpenseItem, evalCtx models.EvaluationContext, policies []*models.Policy) *models.PolicyRule {
	ordered := make([]*models.Policy, len(policies))
	copy(ordered, policies)
	models.SortPolicies(ordered)

	for _, policy := range ordered {
		if !policy.IsActive {
			continue
		}
		for _, rule := range policy.SortedRules() {
			if !s.ruleApplies(&rule, item, evalCtx) {
				continue
			}
			s.logger.Debug("rule matched",
				zap.String("policy_id", policy.ID.String()),
				zap.String("rule_id", rule.ID.String()),
				zap.String("rule_name", rule.Name),
				zap.String("category", item.Category),
				zap.Int("priority", policy.Priority))
			matched := rule
			return &matched
		}
	}

	s.logger.Debug("no rule matched",
		zap.String("item_id", item.ID.String()),
		zap.String("category", item.Category))
	return nil
}

// ruleApplies checks category equality plus the optional department and
// trip-type constraints.
func (s *Service) ruleApplies(rule *models.PolicyRule, item models.ExpenseItem, evalCtx models.EvaluationContext) bool {
	if rule.Category != item.Category {
		return false
	}
	if rule.Department != nil && *rule.Department != evalCtx.Department {
		return false
	}
	if rule.TripType != nil && *rule.TripType != evalCtx.TripType {
		return false
	}
	return true
}
