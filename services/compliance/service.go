package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/internal/observability"
	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/repositories"
	"github.com/expenso/policy-engine/services"
	"github.com/expenso/policy-engine/services/condition"
	"github.com/expenso/policy-engine/services/limits"
	"github.com/expenso/policy-engine/services/matcher"
)

// Service runs rule matching, condition checks and limit evaluation over
// expense items and assembles the final advisory issue list. It never
// decides approval or rejection itself: the approval workflow acts on the
// report it returns.
type Service struct {
	policyRepo repositories.PolicyRepository
	ledger     repositories.LedgerRepository
	cache      *matcher.SnapshotCache
	matcher    *matcher.Service
	conditions *condition.Service
	limits     *limits.Service
	metrics    *observability.MetricsCollector
	logger     *zap.Logger
}

// NewService creates a new compliance Service instance
func NewService(
	policyRepo repositories.PolicyRepository,
	ledger repositories.LedgerRepository,
	cache *matcher.SnapshotCache,
	matcherSvc *matcher.Service,
	conditionSvc *condition.Service,
	limitsSvc *limits.Service,
	metrics *observability.MetricsCollector,
	logger *zap.Logger,
) *Service {
	return &Service{
		policyRepo: policyRepo,
		ledger:     ledger,
		cache:      cache,
		matcher:    matcherSvc,
		conditions: conditionSvc,
		limits:     limitsSvc,
		metrics:    metrics,
		logger:     logger,
	}
}

// ItemCheckResult is the outcome of the real-time single-item path.
type ItemCheckResult struct {
	Issues []models.ComplianceIssue `json:"issues"`
	Check  *models.LimitCheckResult `json:"check,omitempty"`
}

// CheckItem is the real-time path used as a user adds one expense: match a
// rule, evaluate its condition, check the receipt requirement and the
// limit against history. The item is not recorded anywhere; the result is
// advisory.
func (s *Service) CheckItem(ctx context.Context, item models.ExpenseItem, evalCtx models.EvaluationContext) (*ItemCheckResult, error) {
	policies, err := s.ActivePolicies(ctx, evalCtx.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch policies: %w", err)
	}

	result := &ItemCheckResult{Issues: make([]models.ComplianceIssue, 0)}
	issues, check, err := s.checkOne(ctx, item, evalCtx, policies)
	if err != nil {
		return nil, err
	}
	result.Issues = issues
	result.Check = check
	return result, nil
}

// CheckReimbursement evaluates every item of a reimbursement, then runs a
// second pass that re-aggregates by (date, category) to catch per-day
// violations only visible when the whole reimbursement is viewed together
// (the real-time path alone cannot, since items may be added one at a
// time across sessions). Passed is false only when an error-severity
// issue exists; warnings are informational and never block submission.
func (s *Service) CheckReimbursement(ctx context.Context, items []models.ExpenseItem, evalCtx models.EvaluationContext) (*models.ComplianceReport, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveCheckDuration(time.Since(start))
		}
	}()

	policies, err := s.ActivePolicies(ctx, evalCtx.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch policies: %w", err)
	}

	report := &models.ComplianceReport{
		Passed: true,
		Issues: make([]models.ComplianceIssue, 0),
	}

	for _, item := range items {
		issues, _, err := s.checkOne(ctx, item, evalCtx, policies)
		if err != nil {
			return nil, err
		}
		report.Issues = append(report.Issues, issues...)
	}

	report.Issues = append(report.Issues, s.checkAggregates(items, evalCtx, policies)...)

	for _, issue := range report.Issues {
		if issue.Severity == models.SeverityError {
			report.Passed = false
		}
		if s.metrics != nil {
			s.metrics.RecordIssue(string(issue.Severity))
		}
	}

	s.logger.Info("reimbursement checked",
		zap.String("tenant_id", evalCtx.TenantID.String()),
		zap.String("user_id", evalCtx.UserID.String()),
		zap.Int("items", len(items)),
		zap.Int("issues", len(report.Issues)),
		zap.Bool("passed", report.Passed))

	return report, nil
}

// ActivePolicies returns the tenant's active policy snapshot, serving from
// the cache when fresh.
func (s *Service) ActivePolicies(ctx context.Context, tenantID uuid.UUID) ([]*models.Policy, error) {
	if cached := s.cache.Get(tenantID); cached != nil {
		return cached, nil
	}

	policies, err := s.policyRepo.GetActivePolicies(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(tenantID, policies)

	if s.metrics != nil {
		s.metrics.SetCacheHitRate(s.cache.Stats().HitRate)
	}
	return policies, nil
}

// InvalidatePolicies drops the tenant's cached snapshot after mutations.
func (s *Service) InvalidatePolicies(tenantID uuid.UUID) {
	s.cache.Invalidate(tenantID)
}

// checkOne runs the single-item, non-batch pipeline for one item.
func (s *Service) checkOne(ctx context.Context, item models.ExpenseItem, evalCtx models.EvaluationContext, policies []*models.Policy) ([]models.ComplianceIssue, *models.LimitCheckResult, error) {
	if s.metrics != nil {
		s.metrics.RecordItemEvaluated()
	}

	issues := make([]models.ComplianceIssue, 0)

	rule := s.matcher.Match(item, evalCtx, policies)
	if rule == nil {
		return issues, nil, nil
	}

	severity := models.SeverityWarning
	if rule.RequiresApproval {
		severity = models.SeverityError
	}

	if rule.Condition != nil && !s.conditions.Evaluate(*rule.Condition, item) {
		issues = append(issues, s.newIssue(rule, severity, item.ID, rule.Message, false))
	}

	if rule.RequiresReceipt && item.ReceiptID == nil {
		issues = append(issues, s.newIssue(rule, severity, item.ID,
			fmt.Sprintf("%s: a receipt is required for %s expenses", rule.Name, item.Category), false))
	}

	var check *models.LimitCheckResult
	if rule.Limit != nil {
		historical := decimal.Zero
		if rule.Limit.Type.IsAccumulating() {
			bucket := models.BucketFor(rule.Limit.Type, item.Date)
			fetched, err := s.ledger.GetReimbursedAmount(ctx, evalCtx.UserID, evalCtx.TenantID, bucket, rule.LimitCategories())
			if err != nil {
				return nil, nil, services.WrapLedger("ledger lookup", err)
			}
			if s.metrics != nil {
				s.metrics.RecordLedgerLookup()
			}
			historical = fetched
		}

		evaluated := s.limits.EvaluateLimit(rule, item, historical)
		check = &evaluated

		if evaluated.WasAdjusted {
			if s.metrics != nil {
				s.metrics.RecordAdjustment()
			}
			// Limit adjustments are auto-resolvable: the capped amount is
			// pre-filled as the suggested correction.
			issues = append(issues, s.newIssue(rule, severity, item.ID, evaluated.Message, true))
		}
	}

	return issues, check, nil
}

// checkAggregates groups all items by (date, category), sums base-currency
// amounts per group and re-compares each sum against the matching per-day
// rule limit.
func (s *Service) checkAggregates(items []models.ExpenseItem, evalCtx models.EvaluationContext, policies []*models.Policy) []models.ComplianceIssue {
	type groupKey struct {
		date     string
		category string
	}

	sums := make(map[groupKey]decimal.Decimal)
	samples := make(map[groupKey]models.ExpenseItem)
	order := make([]groupKey, 0)

	for _, item := range items {
		key := groupKey{date: item.Date.Format("2006-01-02"), category: item.Category}
		if _, seen := sums[key]; !seen {
			order = append(order, key)
			samples[key] = item
		}
		sums[key] = sums[key].Add(item.AmountInBaseCurrency)
	}

	issues := make([]models.ComplianceIssue, 0)
	for _, key := range order {
		rule := s.matcher.Match(samples[key], evalCtx, policies)
		if rule == nil || rule.Limit == nil || rule.Limit.Type != models.LimitPerDay {
			continue
		}
		if rule.Limit.Amount.Sign() <= 0 {
			continue
		}

		sum := sums[key]
		if sum.Cmp(rule.Limit.Amount) <= 0 {
			continue
		}

		severity := models.SeverityWarning
		if rule.RequiresApproval {
			severity = models.SeverityError
		}
		msg := fmt.Sprintf(
			"%s: combined %s spending of %s %s on %s exceeds the daily limit of %s %s",
			rule.Name, key.category, sum.StringFixed(2), rule.Limit.Currency,
			key.date, rule.Limit.Amount.StringFixed(2), rule.Limit.Currency)
		issues = append(issues, s.newIssue(rule, severity, uuid.Nil, msg, false))
	}
	return issues
}

func (s *Service) newIssue(rule *models.PolicyRule, severity models.Severity, itemID uuid.UUID, message string, autoResolvable bool) models.ComplianceIssue {
	issue := models.ComplianceIssue{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		Severity:       severity,
		Message:        message,
		Suggestion:     rule.Suggestion,
		AutoResolvable: autoResolvable,
	}
	if itemID != uuid.Nil {
		id := itemID
		issue.ItemID = &id
	}
	return issue
}
