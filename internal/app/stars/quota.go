// Package stars implements the peer-recognition engine: quota tracking,
// grant redemption, and received-star aggregation. All state lives in the
// append-only ledger store; nothing here caches a balance.
package stars

import (
	"context"
	"time"

	"github.com/peopledesk/starled/internal/domain"
	"github.com/peopledesk/starled/internal/infra/observability"
)

// Tracker computes the derived monthly quota view for an employee.
type Tracker struct {
	store domain.LedgerStore
}

// NewTracker creates a quota tracker over the ledger store.
func NewTracker(store domain.LedgerStore) *Tracker {
	return &Tracker{store: store}
}

// Check recomputes the quota for employeeID in the calendar month containing
// asOf. Pure read: calling it twice with no intervening grant yields the
// same result. The reset date is informational — a new month simply yields a
// fresh window.
func (t *Tracker) Check(ctx context.Context, employeeID string, asOf time.Time) (domain.QuotaStatus, error) {
	start, next := domain.MonthWindow(asOf)

	opStart := time.Now()
	used, err := t.store.CountByGiver(ctx, employeeID, start, next)
	observability.ObserveStoreOp("count_by_giver", opStart)
	if err != nil {
		return domain.QuotaStatus{}, err
	}

	available := domain.MonthlyStarQuota - used
	if available < 0 {
		available = 0
	}
	return domain.QuotaStatus{
		Available: available,
		Used:      used,
		ResetDate: next,
	}, nil
}
