package limits

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
)

// Service computes limit compliance for a single expense item against a
// matched rule. It is pure: the historical amount is supplied by the
// caller (the batch accumulator or the real-time path), never fetched
// here, which keeps the evaluator testable without any I/O.
type Service struct {
	tiers  CityTiers
	logger *zap.Logger
}

// NewService creates a new limits Service instance
func NewService(tiers CityTiers, logger *zap.Logger) *Service {
	return &Service{
		tiers:  tiers,
		logger: logger,
	}
}

// EvaluateLimit checks the item's base-currency amount against the rule's
// limit, given the amount already recorded for the limit's accumulator
// key. Rules without a usable limit pass the item through unadjusted.
//
// Limit violations are never errors: they come back as a result with
// WasAdjusted=true, a capped AdjustedAmount and a human-readable message.
func (s *Service) EvaluateLimit(rule *models.PolicyRule, item models.ExpenseItem, historical decimal.Decimal) models.LimitCheckResult {
	if rule.Limit == nil || rule.Limit.Amount.Sign() <= 0 {
		// Malformed limit config: the rule is treated as inapplicable.
		s.logger.Warn("rule limit missing or non-positive, skipping",
			zap.String("rule_id", rule.ID.String()),
			zap.String("rule_name", rule.Name))
		return passThrough(rule, item)
	}

	limit := rule.Limit
	effective := s.effectiveLimit(limit, item)

	switch limit.Type {
	case models.LimitPerItem:
		return s.evaluatePerItem(rule, item, effective)
	case models.LimitPerDay, models.LimitPerMonth, models.LimitPerYear:
		return s.evaluateAccumulating(rule, item, effective, historical)
	default:
		s.logger.Warn("unknown limit type, skipping",
			zap.String("rule_id", rule.ID.String()),
			zap.String("limit_type", string(limit.Type)))
		return passThrough(rule, item)
	}
}

// effectiveLimit applies the city-tier multiplier when the limit names
// cities and the item's location is one of them.
func (s *Service) effectiveLimit(limit *models.RuleLimit, item models.ExpenseItem) decimal.Decimal {
	if len(limit.Cities) == 0 || item.Location == "" {
		return limit.Amount
	}
	for _, city := range limit.Cities {
		if city == item.Location {
			mult := s.tiers.MultiplierFor(item.Location)
			if !mult.Equal(decimal.NewFromInt(1)) {
				s.logger.Debug("city tier multiplier applied",
					zap.String("location", item.Location),
					zap.String("multiplier", mult.String()))
			}
			return limit.Amount.Mul(mult)
		}
	}
	return limit.Amount
}

func (s *Service) evaluatePerItem(rule *models.PolicyRule, item models.ExpenseItem, effective decimal.Decimal) models.LimitCheckResult {
	current := item.AmountInBaseCurrency
	result := models.LimitCheckResult{
		IsWithinLimit:   true,
		LimitType:       models.LimitPerItem,
		LimitAmount:     effective,
		LimitCurrency:   rule.Limit.Currency,
		CurrentAmount:   current,
		ExistingAmount:  decimal.Zero,
		TotalAmount:     current,
		RemainingAmount: effective,
		AdjustedAmount:  current,
		RuleName:        rule.Name,
		Categories:      rule.LimitCategories(),
	}

	if current.Cmp(effective) > 0 {
		result.IsWithinLimit = false
		result.WasAdjusted = true
		result.AdjustedAmount = effective
		result.Message = fmt.Sprintf(
			"%s: amount %s exceeds the per-item limit of %s %s; capped at %s",
			rule.Name, current.StringFixed(2), effective.StringFixed(2),
			rule.Limit.Currency, effective.StringFixed(2))
	}
	return result
}

func (s *Service) evaluateAccumulating(rule *models.PolicyRule, item models.ExpenseItem, effective, historical decimal.Decimal) models.LimitCheckResult {
	current := item.AmountInBaseCurrency
	total := historical.Add(current)

	remaining := effective.Sub(historical)
	if remaining.Sign() < 0 {
		remaining = decimal.Zero
	}

	result := models.LimitCheckResult{
		IsWithinLimit:   true,
		LimitType:       rule.Limit.Type,
		LimitAmount:     effective,
		LimitCurrency:   rule.Limit.Currency,
		CurrentAmount:   current,
		ExistingAmount:  historical,
		TotalAmount:     total,
		RemainingAmount: remaining,
		AdjustedAmount:  current,
		RuleName:        rule.Name,
		Categories:      rule.LimitCategories(),
	}

	if total.Cmp(effective) > 0 {
		result.IsWithinLimit = false
		result.WasAdjusted = true
		result.AdjustedAmount = remaining // may be zero
		result.Message = fmt.Sprintf(
			"%s: total %s exceeds the %s limit of %s %s (already recorded %s); remaining %s",
			rule.Name, total.StringFixed(2), periodLabel(rule.Limit.Type),
			effective.StringFixed(2), rule.Limit.Currency,
			historical.StringFixed(2), remaining.StringFixed(2))
	}
	return result
}

// passThrough builds a within-limit result for items no limit applies to.
func passThrough(rule *models.PolicyRule, item models.ExpenseItem) models.LimitCheckResult {
	current := item.AmountInBaseCurrency
	return models.LimitCheckResult{
		IsWithinLimit:  true,
		CurrentAmount:  current,
		TotalAmount:    current,
		AdjustedAmount: current,
		RuleName:       rule.Name,
		Categories:     rule.LimitCategories(),
	}
}

func periodLabel(t models.LimitType) string {
	switch t {
	case models.LimitPerDay:
		return "daily"
	case models.LimitPerMonth:
		return "monthly"
	case models.LimitPerYear:
		return "yearly"
	default:
		return string(t)
	}
}
