package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expenso/policy-engine/models"
)

// LedgerEntry is one recorded reimbursement amount.
type LedgerEntry struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Category string
	Amount   decimal.Decimal
	Date     time.Time
	Status   string
}

// LedgerRepository is a mutex-guarded in-memory historical ledger used by
// tests and local runs.
type LedgerRepository struct {
	mu      sync.RWMutex
	entries []LedgerEntry
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

// Record appends an entry to the ledger. Test/setup helper; the engine
// itself only reads.
func (r *LedgerRepository) Record(entry LedgerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.Status == "" {
		entry.Status = "submitted"
	}
	r.entries = append(r.entries, entry)
}

func (r *LedgerRepository) GetReimbursedAmount(ctx context.Context, userID, tenantID uuid.UUID, bucket models.TimeBucket, categories []string) (decimal.Decimal, error) {
	start, end, err := bucket.Window()
	if err != nil {
		return decimal.Zero, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := decimal.Zero
	for _, entry := range r.entries {
		if entry.TenantID != tenantID || entry.UserID != userID {
			continue
		}
		if entry.Status == "rejected" || entry.Status == "draft" {
			continue
		}
		if entry.Date.Before(start) || !entry.Date.Before(end) {
			continue
		}
		for _, cat := range categories {
			if entry.Category == cat {
				total = total.Add(entry.Amount)
				break
			}
		}
	}
	return total, nil
}
