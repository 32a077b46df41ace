package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// LedgerStore abstracts the durable, append-only star-grant ledger.
// It is the single shared mutable resource of the engine: all write
// coordination lives behind AppendGrant, never in an in-process lock,
// because multiple stateless instances may share one database.
type LedgerStore interface {
	// AppendGrant atomically re-counts the giver's grants in the calendar
	// month of grant.CreatedAt and inserts the grant, as one unit with
	// respect to concurrent appends from the same giver.
	//
	// If idemKey matches a grant already stored, that grant is returned
	// unchanged and nothing is inserted. If the giver's month is already
	// at MonthlyStarQuota, ErrQuotaExhausted. If a concurrent append is
	// detected mid-transaction, ErrConflict (the caller may retry once).
	AppendGrant(ctx context.Context, grant StarGrant, idemKey string) (StarGrant, error)

	// CountByGiver returns the number of grants by giverID with
	// CreatedAt in [from, to).
	CountByGiver(ctx context.Context, giverID string, from, to time.Time) (int, error)

	// SummaryByRecipient returns the lifetime count of grants received by
	// recipientID and the k most recent of them, ordered by CreatedAt
	// descending with ID descending as tiebreak.
	SummaryByRecipient(ctx context.Context, recipientID string, k int) (int, []StarGrant, error)

	// TotalsByRecipient returns lifetime received counts for the given
	// ids as a single grouped query. Ids with no grants are absent from
	// the result map.
	TotalsByRecipient(ctx context.Context, ids []string) (map[string]int, error)
}

// EmployeeDirectory abstracts the external employee registry. The engine
// only ever reads it.
type EmployeeDirectory interface {
	// Exists reports whether the employee id resolves.
	Exists(ctx context.Context, id string) (bool, error)

	// DisplayName resolves a single id to a display name.
	// Returns ok=false when the id is unknown.
	DisplayName(ctx context.Context, id string) (name string, ok bool, err error)

	// DisplayNames bulk-resolves ids to display names in one round trip.
	// Unknown ids are absent from the result map.
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}
