package stars

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/peopledesk/starled/internal/domain"
	"github.com/peopledesk/starled/internal/infra/observability"
)

// Aggregator computes read-only received-star views from the ledger.
type Aggregator struct {
	store     domain.LedgerStore
	directory domain.EmployeeDirectory
}

// NewAggregator creates the aggregation service.
func NewAggregator(store domain.LedgerStore, directory domain.EmployeeDirectory) *Aggregator {
	return &Aggregator{store: store, directory: directory}
}

// ReceivedSummary returns the lifetime received total and the most recent
// grants for employeeID, with giver names resolved in one bulk directory
// call. A giver that no longer resolves gets a fallback label instead of
// failing the whole aggregation.
func (a *Aggregator) ReceivedSummary(ctx context.Context, employeeID string) (domain.ReceivedSummary, error) {
	opStart := time.Now()
	total, grants, err := a.store.SummaryByRecipient(ctx, employeeID, domain.RecentWindow)
	observability.ObserveStoreOp("summary_by_recipient", opStart)
	if err != nil {
		return domain.ReceivedSummary{}, err
	}

	giverIDs := make([]string, 0, len(grants))
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if _, ok := seen[g.GiverID]; !ok {
			seen[g.GiverID] = struct{}{}
			giverIDs = append(giverIDs, g.GiverID)
		}
	}

	names, err := a.directory.DisplayNames(ctx, giverIDs)
	if err != nil {
		// Name resolution is cosmetic; the counts are the contract.
		log.WithError(err).Warn("giver name resolution failed, using fallback labels")
		names = nil
	}

	recent := make([]domain.RecentGrant, 0, len(grants))
	for _, g := range grants {
		name, ok := names[g.GiverID]
		if !ok {
			name = domain.FallbackGiverName
		}
		recent = append(recent, domain.RecentGrant{
			ID:        g.ID,
			Reason:    g.Reason,
			Message:   g.Message,
			GiverName: name,
			CreatedAt: g.CreatedAt,
		})
	}

	return domain.ReceivedSummary{TotalReceived: total, Recent: recent}, nil
}

// Leaderboard returns lifetime received totals for the requested employee
// ids as one grouped count. Employees with no grants report zero.
func (a *Aggregator) Leaderboard(ctx context.Context, ids []string) (map[string]int, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok && id != "" {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	opStart := time.Now()
	totals, err := a.store.TotalsByRecipient(ctx, unique)
	observability.ObserveStoreOp("totals_by_recipient", opStart)
	if err != nil {
		return nil, err
	}

	for _, id := range unique {
		if _, ok := totals[id]; !ok {
			totals[id] = 0
		}
	}
	return totals, nil
}
