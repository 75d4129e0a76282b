package limits

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRule(limitType models.LimitType, amount string) *models.PolicyRule {
	return &models.PolicyRule{
		ID:       uuid.New(),
		Name:     "test rule",
		Category: "meals",
		Limit: &models.RuleLimit{
			Type:     limitType,
			Amount:   dec(amount),
			Currency: "CNY",
		},
	}
}

func testItem(amount string) models.ExpenseItem {
	return models.ExpenseItem{
		ID:                   uuid.New(),
		Category:             "meals",
		Amount:               dec(amount),
		Currency:             "CNY",
		AmountInBaseCurrency: dec(amount),
		Date:                 time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluatePerItemLimit(t *testing.T) {
	svc := NewService(DefaultCityTiers(), zap.NewNop())

	t.Run("within limit", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerItem, "200"), testItem("150"), decimal.Zero)

		assert.True(t, result.IsWithinLimit)
		assert.False(t, result.WasAdjusted)
		assert.True(t, result.AdjustedAmount.Equal(dec("150")))
		assert.Empty(t, result.Message)
	})

	t.Run("exactly at limit passes", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerItem, "200"), testItem("200"), decimal.Zero)

		assert.True(t, result.IsWithinLimit)
		assert.False(t, result.WasAdjusted)
	})

	t.Run("over limit caps at the limit", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerItem, "200"), testItem("350"), decimal.Zero)

		assert.False(t, result.IsWithinLimit)
		assert.True(t, result.WasAdjusted)
		assert.True(t, result.AdjustedAmount.Equal(dec("200")))
		assert.Contains(t, result.Message, "per-item limit")
	})
}

func TestEvaluateAccumulatingLimit(t *testing.T) {
	svc := NewService(DefaultCityTiers(), zap.NewNop())

	t.Run("history plus current within limit", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerDay, "300"), testItem("100"), dec("150"))

		assert.True(t, result.IsWithinLimit)
		assert.False(t, result.WasAdjusted)
		assert.True(t, result.TotalAmount.Equal(dec("250")))
		assert.True(t, result.RemainingAmount.Equal(dec("150")))
		assert.True(t, result.AdjustedAmount.Equal(dec("100")))
	})

	t.Run("overflow adjusts to remaining headroom", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerDay, "300"), testItem("200"), dec("250"))

		assert.False(t, result.IsWithinLimit)
		assert.True(t, result.WasAdjusted)
		assert.True(t, result.AdjustedAmount.Equal(dec("50")))
		assert.Contains(t, result.Message, "daily")
	})

	t.Run("history already over limit adjusts to zero", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerMonth, "1000"), testItem("50"), dec("1200"))

		assert.False(t, result.IsWithinLimit)
		assert.True(t, result.WasAdjusted)
		assert.True(t, result.AdjustedAmount.IsZero())
		assert.True(t, result.RemainingAmount.IsZero())
	})

	t.Run("yearly label in message", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerYear, "100"), testItem("200"), decimal.Zero)

		assert.True(t, result.WasAdjusted)
		assert.Contains(t, result.Message, "yearly")
	})
}

func TestEvaluateLimitCityOverride(t *testing.T) {
	svc := NewService(DefaultCityTiers(), zap.NewNop())

	rule := testRule(models.LimitPerItem, "100")
	rule.Limit.Cities = []string{"北京", "上海"}

	t.Run("tier one city raises the effective limit", func(t *testing.T) {
		item := testItem("150")
		item.Location = "上海"

		result := svc.EvaluateLimit(rule, item, decimal.Zero)

		assert.True(t, result.IsWithinLimit)
		assert.True(t, result.LimitAmount.Equal(dec("160")))
	})

	t.Run("listed city still caps above the raised limit", func(t *testing.T) {
		item := testItem("170")
		item.Location = "北京"

		result := svc.EvaluateLimit(rule, item, decimal.Zero)

		assert.False(t, result.IsWithinLimit)
		assert.True(t, result.AdjustedAmount.Equal(dec("160")))
	})

	t.Run("unlisted city uses the base limit", func(t *testing.T) {
		item := testItem("150")
		item.Location = "成都"

		result := svc.EvaluateLimit(rule, item, decimal.Zero)

		assert.False(t, result.IsWithinLimit)
		assert.True(t, result.AdjustedAmount.Equal(dec("100")))
	})

	t.Run("empty location uses the base limit", func(t *testing.T) {
		item := testItem("150")

		result := svc.EvaluateLimit(rule, item, decimal.Zero)

		assert.True(t, result.AdjustedAmount.Equal(dec("100")))
	})
}

func TestEvaluateLimitMalformedConfig(t *testing.T) {
	svc := NewService(DefaultCityTiers(), zap.NewNop())

	t.Run("zero limit amount passes through", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerItem, "0"), testItem("999"), decimal.Zero)

		assert.True(t, result.IsWithinLimit)
		assert.False(t, result.WasAdjusted)
		assert.True(t, result.AdjustedAmount.Equal(dec("999")))
	})

	t.Run("negative limit amount passes through", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule(models.LimitPerDay, "-10"), testItem("999"), decimal.Zero)

		assert.True(t, result.IsWithinLimit)
		assert.False(t, result.WasAdjusted)
	})

	t.Run("unknown limit type passes through", func(t *testing.T) {
		result := svc.EvaluateLimit(testRule("per_quarter", "100"), testItem("999"), decimal.Zero)

		assert.True(t, result.IsWithinLimit)
		assert.False(t, result.WasAdjusted)
	})
}

func TestCityTiers(t *testing.T) {
	tiers := DefaultCityTiers()

	t.Run("tier one cities get the multiplier", func(t *testing.T) {
		for _, city := range []string{"北京", "上海", "广州", "深圳"} {
			assert.True(t, tiers.MultiplierFor(city).Equal(dec("1.6")), city)
		}
	})

	t.Run("unknown city gets identity", func(t *testing.T) {
		assert.True(t, tiers.MultiplierFor("成都").Equal(dec("1")))
	})

	t.Run("empty location gets identity", func(t *testing.T) {
		assert.True(t, tiers.MultiplierFor("").Equal(dec("1")))
	})
}
