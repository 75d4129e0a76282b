package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/repositories"
	"github.com/expenso/policy-engine/services"
	"github.com/expenso/policy-engine/services/limits"
	"github.com/expenso/policy-engine/services/matcher"
)

// AccumulatorKey is the grouping identity under which historical and
// in-batch amounts are combined: limit granularity, the category set the
// limit pools over, and the calendar bucket.
//
// It is exported so callers that need to defend against concurrent
// submissions racing on the same ledger window can serialize per key (or
// wrap ledger read + reimbursement write in one serializable transaction);
// the engine itself takes no lock around its read-then-decide sequence.
type AccumulatorKey struct {
	LimitType  models.LimitType
	Categories string // sorted, comma-joined
	Bucket     models.TimeBucket
}

// KeyFor computes the accumulator key a rule's limit uses for an item
// dated at the given time. The second return value is false for rules
// whose limit does not accumulate (per-item or missing).
func KeyFor(rule *models.PolicyRule, date time.Time) (AccumulatorKey, bool) {
	if rule == nil || rule.Limit == nil || !rule.Limit.Type.IsAccumulating() {
		return AccumulatorKey{}, false
	}
	return AccumulatorKey{
		LimitType:  rule.Limit.Type,
		Categories: strings.Join(rule.LimitCategories(), ","),
		Bucket:     models.BucketFor(rule.Limit.Type, date),
	}, true
}

// String returns a stable representation suitable for lock maps.
func (k AccumulatorKey) String() string {
	return string(k.LimitType) + "|" + k.Categories + "|" + k.Bucket.Key
}

// Service evaluates a list of expense items submitted together, keeping
// day/month/year accumulation consistent across the batch.
type Service struct {
	matcher *matcher.Service
	limits  *limits.Service
	ledger  repositories.LedgerRepository
	logger  *zap.Logger
}

// NewService creates a new batch Service instance
func NewService(matcherSvc *matcher.Service, limitsSvc *limits.Service, ledger repositories.LedgerRepository, logger *zap.Logger) *Service {
	return &Service{
		matcher: matcherSvc,
		limits:  limitsSvc,
		ledger:  ledger,
		logger:  logger,
	}
}

// EvaluateBatch processes items strictly in submission order. For each
// distinct accumulator key the historical ledger is queried exactly once
// to seed an in-memory accumulator; items sharing the key then reuse and
// extend that value. Each item is evaluated against the accumulated total
// so far, and its adjusted (not original) amount feeds the accumulator
// before the next item.
//
// Without this ordering, N items individually compared against the same
// stale historical total could collectively exceed a daily or monthly
// limit even though each one passed in isolation.
//
// Ledger failures propagate unmodified; the caller decides whether to
// block the submission or proceed conservatively.
func (s *Service) EvaluateBatch(ctx context.Context, items []models.ExpenseItem, evalCtx models.EvaluationContext, policies []*models.Policy) (*models.BatchResult, error) {
	result := &models.BatchResult{
		Items:         make([]models.BatchItemResult, 0, len(items)),
		TotalAdjusted: decimal.Zero,
	}

	accumulators := make(map[AccumulatorKey]decimal.Decimal)

	for _, item := range items {
		rule := s.matcher.Match(item, evalCtx, policies)
		if rule == nil || rule.Limit == nil {
			// No applicable limit: pass the item through unadjusted.
			result.Items = append(result.Items, models.BatchItemResult{Item: item})
			result.TotalAdjusted = result.TotalAdjusted.Add(item.AmountInBaseCurrency)
			continue
		}

		key, accumulating := KeyFor(rule, item.Date)

		var historical decimal.Decimal
		if accumulating {
			seeded, ok := accumulators[key]
			if !ok {
				fetched, err := s.ledger.GetReimbursedAmount(ctx, evalCtx.UserID, evalCtx.TenantID, key.Bucket, rule.LimitCategories())
				if err != nil {
					return nil, services.WrapLedger(fmt.Sprintf("ledger lookup for %s", key.String()), err)
				}
				s.logger.Debug("accumulator seeded from ledger",
					zap.String("key", key.String()),
					zap.String("historical", fetched.String()))
				seeded = fetched
				accumulators[key] = seeded
			}
			historical = seeded
		}

		check := s.limits.EvaluateLimit(rule, item, historical)

		if accumulating {
			accumulators[key] = accumulators[key].Add(check.AdjustedAmount)
		}

		if check.WasAdjusted {
			result.Messages = append(result.Messages, check.Message)
			s.logger.Info("item amount adjusted",
				zap.String("item_id", item.ID.String()),
				zap.String("rule_name", rule.Name),
				zap.String("original", check.CurrentAmount.String()),
				zap.String("adjusted", check.AdjustedAmount.String()))
		}

		result.TotalAdjusted = result.TotalAdjusted.Add(check.AdjustedAmount)
		checkCopy := check
		result.Items = append(result.Items, models.BatchItemResult{Item: item, Check: &checkCopy})
	}

	return result, nil
}
