package condition

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
)

// Service evaluates non-limit boolean conditions attached to policy rules.
//
// Configuration gaps fail open: an unknown operator, an unknown condition
// type, or an operand that cannot be coerced makes the condition pass.
// This favors availability of the reimbursement flow over strict
// enforcement; each fail-open is logged at warn level.
type Service struct {
	logger *zap.Logger
}

// NewService creates a new condition Service instance
func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// Evaluate applies the condition's operator to the item field selected by
// the condition type. Returns true when the item satisfies the condition.
func (s *Service) Evaluate(cond models.RuleCondition, item models.ExpenseItem) bool {
	switch cond.Type {
	case models.ConditionAmount:
		return s.evaluateAmount(cond, item.AmountInBaseCurrency)
	case models.ConditionDate:
		return s.evaluateDate(cond, item.Date)
	case models.ConditionLocation:
		return s.evaluateLocation(cond, item.Location)
	default:
		s.logger.Warn("unknown condition type, passing",
			zap.String("type", string(cond.Type)))
		return true
	}
}

func (s *Service) evaluateAmount(cond models.RuleCondition, actual decimal.Decimal) bool {
	switch cond.Operator {
	case models.OpEq, models.OpNe, models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		target, ok := toDecimal(cond.Value)
		if !ok {
			return s.failOpen(cond, "amount operand is not numeric")
		}
		cmp := actual.Cmp(target)
		return compareOrdered(cond.Operator, cmp)
	case models.OpIn, models.OpNotIn:
		values, ok := toSlice(cond.Value)
		if !ok {
			return s.failOpen(cond, "amount membership operand is not a list")
		}
		found := false
		for _, v := range values {
			if target, ok := toDecimal(v); ok && actual.Equal(target) {
				found = true
				break
			}
		}
		if cond.Operator == models.OpIn {
			return found
		}
		return !found
	case models.OpBetween:
		low, okLow := toDecimal(cond.Value)
		high, okHigh := toDecimal(cond.ValueEnd)
		if !okLow || !okHigh {
			return s.failOpen(cond, "amount range bounds are not numeric")
		}
		return actual.Cmp(low) >= 0 && actual.Cmp(high) <= 0
	default:
		return s.failOpen(cond, "unknown operator")
	}
}

func (s *Service) evaluateDate(cond models.RuleCondition, actual time.Time) bool {
	switch cond.Operator {
	case models.OpEq, models.OpNe, models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		target, dayOnly, ok := toTime(cond.Value)
		if !ok {
			return s.failOpen(cond, "date operand is not a date")
		}
		lhs := actual
		if dayOnly {
			lhs = truncateToDay(actual)
		}
		cmp := 0
		switch {
		case lhs.Before(target):
			cmp = -1
		case lhs.After(target):
			cmp = 1
		}
		return compareOrdered(cond.Operator, cmp)
	case models.OpIn, models.OpNotIn:
		values, ok := toSlice(cond.Value)
		if !ok {
			return s.failOpen(cond, "date membership operand is not a list")
		}
		day := truncateToDay(actual)
		found := false
		for _, v := range values {
			if target, dayOnly, ok := toTime(v); ok {
				lhs := actual
				if dayOnly {
					lhs = day
				}
				if lhs.Equal(target) {
					found = true
					break
				}
			}
		}
		if cond.Operator == models.OpIn {
			return found
		}
		return !found
	case models.OpBetween:
		low, lowDay, okLow := toTime(cond.Value)
		high, highDay, okHigh := toTime(cond.ValueEnd)
		if !okLow || !okHigh {
			return s.failOpen(cond, "date range bounds are not dates")
		}
		lhsLow, lhsHigh := actual, actual
		if lowDay {
			lhsLow = truncateToDay(actual)
		}
		if highDay {
			lhsHigh = truncateToDay(actual)
		}
		return !lhsLow.Before(low) && !lhsHigh.After(high)
	default:
		return s.failOpen(cond, "unknown operator")
	}
}

func (s *Service) evaluateLocation(cond models.RuleCondition, actual string) bool {
	switch cond.Operator {
	case models.OpEq:
		target, ok := cond.Value.(string)
		if !ok {
			return s.failOpen(cond, "location operand is not a string")
		}
		return actual == target
	case models.OpNe:
		target, ok := cond.Value.(string)
		if !ok {
			return s.failOpen(cond, "location operand is not a string")
		}
		return actual != target
	case models.OpIn, models.OpNotIn:
		values, ok := toSlice(cond.Value)
		if !ok {
			return s.failOpen(cond, "location membership operand is not a list")
		}
		found := false
		for _, v := range values {
			if str, ok := v.(string); ok && str == actual {
				found = true
				break
			}
		}
		if cond.Operator == models.OpIn {
			return found
		}
		return !found
	default:
		return s.failOpen(cond, "operator not applicable to location")
	}
}

// failOpen logs the configuration gap and lets the condition pass.
func (s *Service) failOpen(cond models.RuleCondition, reason string) bool {
	s.logger.Warn("condition failed open",
		zap.String("type", string(cond.Type)),
		zap.String("operator", string(cond.Operator)),
		zap.String("reason", reason))
	return true
}

// compareOrdered maps a three-way comparison result onto an ordering
// operator.
func compareOrdered(op models.Operator, cmp int) bool {
	switch op {
	case models.OpEq:
		return cmp == 0
	case models.OpNe:
		return cmp != 0
	case models.OpGt:
		return cmp > 0
	case models.OpGte:
		return cmp >= 0
	case models.OpLt:
		return cmp < 0
	case models.OpLte:
		return cmp <= 0
	default:
		return true
	}
}

// toDecimal coerces a JSON-decoded operand into a decimal.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch value := v.(type) {
	case decimal.Decimal:
		return value, true
	case float64:
		return decimal.NewFromFloat(value), true
	case int:
		return decimal.NewFromInt(int64(value)), true
	case int64:
		return decimal.NewFromInt(value), true
	case json.Number:
		d, err := decimal.NewFromString(value.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(value)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

// toTime coerces an operand into a time. The second return value reports
// whether the operand was a date-only value, in which case callers compare
// at day granularity.
func toTime(v interface{}) (time.Time, bool, bool) {
	switch value := v.(type) {
	case time.Time:
		return value, false, true
	case string:
		if t, err := time.ParseInLocation("2006-01-02", value, time.UTC); err == nil {
			return t, true, true
		}
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t, false, true
		}
		return time.Time{}, false, false
	default:
		return time.Time{}, false, false
	}
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch value := v.(type) {
	case []interface{}:
		return value, true
	case []string:
		out := make([]interface{}, len(value))
		for i, s := range value {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(value))
		for i, f := range value {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
