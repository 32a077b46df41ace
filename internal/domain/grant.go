// Package domain holds the core types and business rules of the stars
// engine: the append-only StarGrant ledger entry, the closed reason-code
// enumeration, and the derived monthly quota view. Everything here is pure —
// no storage, no transport.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// MonthlyStarQuota is the number of stars an employee may give within
	// one calendar month.
	MonthlyStarQuota = 3

	// RecentWindow is how many of the most recent received grants the
	// summary view exposes.
	RecentWindow = 3

	// FallbackGiverName is shown when a giver can no longer be resolved in
	// the employee directory.
	FallbackGiverName = "Former employee"
)

// ─── Reason Codes ───────────────────────────────────────────────────────────

// ReasonCode classifies why a star was given. The set is closed: unknown
// codes are rejected at redemption time, never stored.
type ReasonCode string

const (
	ReasonHelpedWithProblem ReasonCode = "helped-with-problem"
	ReasonCollaboration     ReasonCode = "collaboration"
	ReasonMentorship        ReasonCode = "mentorship"
	ReasonProactivity       ReasonCode = "proactivity"
	ReasonLeadership        ReasonCode = "leadership"
	ReasonInnovation        ReasonCode = "innovation"
	ReasonSupportInHardTime ReasonCode = "support-in-hard-time"
	ReasonOther             ReasonCode = "other"
)

var reasonCodes = map[ReasonCode]struct{}{
	ReasonHelpedWithProblem: {},
	ReasonCollaboration:     {},
	ReasonMentorship:        {},
	ReasonProactivity:       {},
	ReasonLeadership:        {},
	ReasonInnovation:        {},
	ReasonSupportInHardTime: {},
	ReasonOther:             {},
}

// Valid reports whether the code belongs to the closed enumeration.
func (r ReasonCode) Valid() bool {
	_, ok := reasonCodes[r]
	return ok
}

// ReasonCodes returns the full enumeration, for documentation endpoints
// and validation messages.
func ReasonCodes() []ReasonCode {
	return []ReasonCode{
		ReasonHelpedWithProblem,
		ReasonCollaboration,
		ReasonMentorship,
		ReasonProactivity,
		ReasonLeadership,
		ReasonInnovation,
		ReasonSupportInHardTime,
		ReasonOther,
	}
}

// ─── Star Grant ─────────────────────────────────────────────────────────────

// StarGrant is a single ledger entry: one star given by one employee to
// another. Grants are immutable once created — the ledger is append-only,
// and every quota or aggregate value is recomputed from it.
type StarGrant struct {
	ID          string     `json:"id"`
	GiverID     string     `json:"giverId"`
	RecipientID string     `json:"recipientId"`
	Reason      ReasonCode `json:"reasonCode"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ─── Monthly Quota (derived view) ───────────────────────────────────────────

// QuotaStatus is the derived monthly quota view. It has no lifecycle of its
// own: it is always recomputed from the ledger, never cached, so a stored
// balance can never drift from the ledger truth.
type QuotaStatus struct {
	Available int       `json:"available"`
	Used      int       `json:"used"`
	ResetDate time.Time `json:"resetDate"`
}

// MonthWindow returns the calendar-month window containing asOf, in UTC:
// the first instant of that month and the first instant of the next.
// The quota "reset" is nothing more than a new window — there is no reset
// write and nothing that can fail to fire.
func MonthWindow(asOf time.Time) (start, next time.Time) {
	t := asOf.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	next = start.AddDate(0, 1, 0)
	return start, next
}

// ─── Received Summary ───────────────────────────────────────────────────────

// RecentGrant is one entry of the received-stars view, with the giver
// resolved to a display name.
type RecentGrant struct {
	ID        string     `json:"id"`
	Reason    ReasonCode `json:"reasonCode"`
	Message   string     `json:"message"`
	GiverName string     `json:"giverName"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ReceivedSummary is the per-employee aggregate: lifetime total plus the
// most recent grants, newest first.
type ReceivedSummary struct {
	TotalReceived int           `json:"totalReceived"`
	Recent        []RecentGrant `json:"recent"`
}

// ─── Idempotency ────────────────────────────────────────────────────────────

// IdempotencyKey derives a stable key for a grant request so that a client
// retry after an ambiguous write outcome maps onto the row already stored
// instead of inserting a second one. The key buckets by hour: the same
// giver/recipient/reason/message within one hour is treated as one request.
func IdempotencyKey(giverID, recipientID string, reason ReasonCode, message string, at time.Time) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		giverID,
		recipientID,
		string(reason),
		strings.TrimSpace(message),
		at.UTC().Format("2006-01-02T15"),
	}, "|")))
	return hex.EncodeToString(h[:])
}
