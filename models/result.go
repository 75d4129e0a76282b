package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Severity classifies a compliance issue. Warnings are advisory and never
// block submission; errors do.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LimitCheckResult is the outcome of evaluating one expense item against
// one rule limit. It is ephemeral: created fresh per call and owned by the
// caller, never persisted by the engine.
type LimitCheckResult struct {
	IsWithinLimit bool            `json:"is_within_limit"`
	LimitType     LimitType       `json:"limit_type"`
	LimitAmount   decimal.Decimal `json:"limit_amount"`
	LimitCurrency string          `json:"limit_currency"`

	// CurrentAmount is the item's base-currency amount, ExistingAmount the
	// already-recorded history (plus in-batch accumulation), TotalAmount
	// their sum.
	CurrentAmount  decimal.Decimal `json:"current_amount"`
	ExistingAmount decimal.Decimal `json:"existing_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`

	// RemainingAmount is the headroom under the limit before this item,
	// floored at zero.
	RemainingAmount decimal.Decimal `json:"remaining_amount"`

	// AdjustedAmount is the capped amount suggested in place of the
	// original when the limit is exceeded; equals CurrentAmount otherwise.
	AdjustedAmount decimal.Decimal `json:"adjusted_amount"`
	WasAdjusted    bool            `json:"was_adjusted"`

	RuleName   string   `json:"rule_name"`
	Message    string   `json:"message,omitempty"`
	Categories []string `json:"categories"`
}

// ComplianceIssue is an advisory finding attached to an item or a whole
// reimbursement.
type ComplianceIssue struct {
	ID             uuid.UUID  `json:"id"`
	RuleID         uuid.UUID  `json:"rule_id"`
	RuleName       string     `json:"rule_name"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Suggestion     string     `json:"suggestion,omitempty"`
	ItemID         *uuid.UUID `json:"item_id,omitempty"`
	AutoResolvable bool       `json:"auto_resolvable"`
}

// BatchItemResult pairs one submitted item with its limit evaluation.
// Check is nil when no limit applied and the item passed through unadjusted.
type BatchItemResult struct {
	Item  ExpenseItem       `json:"item"`
	Check *LimitCheckResult `json:"check,omitempty"`
}

// BatchResult is the outcome of evaluating a list of items submitted
// together.
type BatchResult struct {
	Items         []BatchItemResult `json:"items"`
	TotalAdjusted decimal.Decimal   `json:"total_adjusted"`
	Messages      []string          `json:"messages,omitempty"`
}

// ComplianceReport is the outcome of checking a full reimbursement.
// Passed is false only when at least one issue has error severity.
type ComplianceReport struct {
	Passed bool              `json:"passed"`
	Issues []ComplianceIssue `json:"issues"`
}
