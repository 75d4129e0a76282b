package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseItem is a single expense line consumed read-only by the engine.
// AmountInBaseCurrency is already normalized by the upstream exchange-rate
// service; the engine never converts currency itself.
type ExpenseItem struct {
	ID                   uuid.UUID       `json:"id"`
	Category             string          `json:"category"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	AmountInBaseCurrency decimal.Decimal `json:"amount_in_base_currency"`
	Date                 time.Time       `json:"date"`
	Location             string          `json:"location,omitempty"`
	ReceiptID            *uuid.UUID      `json:"receipt_id,omitempty"`
}

// EvaluationContext identifies who is submitting and under which tenant.
// Department and TripType participate in rule matching when a rule
// constrains them.
type EvaluationContext struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	UserID     uuid.UUID `json:"user_id"`
	Department string    `json:"department,omitempty"`
	TripType   string    `json:"trip_type,omitempty"`
}
