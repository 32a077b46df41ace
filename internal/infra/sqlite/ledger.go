// Ledger operations on the star_grants table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peopledesk/starled/internal/domain"
)

const grantColumns = "id, giver_id, recipient_id, reason, message, created_at"

// AppendGrant re-counts the giver's grants in the grant's calendar month and
// inserts the grant in one immediate-mode transaction. See
// domain.LedgerStore for the contract.
func (d *DB) AppendGrant(ctx context.Context, grant domain.StarGrant, idemKey string) (domain.StarGrant, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StarGrant{}, translate(err)
	}
	defer tx.Rollback()

	// A retried request maps onto the row already stored.
	existing, err := scanGrant(tx.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM star_grants WHERE idempotency_key = ?`, idemKey))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.StarGrant{}, translate(err)
	}

	start, next := domain.MonthWindow(grant.CreatedAt)
	var used int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM star_grants WHERE giver_id = ? AND created_at >= ? AND created_at < ?`,
		grant.GiverID, start.UnixMicro(), next.UnixMicro(),
	).Scan(&used)
	if err != nil {
		return domain.StarGrant{}, translate(err)
	}
	if used >= domain.MonthlyStarQuota {
		return domain.StarGrant{}, domain.ErrQuotaExhausted
	}

	grant.CreatedAt = grant.CreatedAt.UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO star_grants (id, giver_id, recipient_id, reason, message, created_at, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		grant.ID, grant.GiverID, grant.RecipientID, string(grant.Reason),
		grant.Message, grant.CreatedAt.UnixMicro(), idemKey,
	)
	if err != nil {
		return domain.StarGrant{}, translate(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StarGrant{}, translate(err)
	}
	return grant, nil
}

// CountByGiver returns the number of grants by giverID in [from, to).
func (d *DB) CountByGiver(ctx context.Context, giverID string, from, to time.Time) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM star_grants WHERE giver_id = ? AND created_at >= ? AND created_at < ?`,
		giverID, from.UTC().UnixMicro(), to.UTC().UnixMicro(),
	).Scan(&count)
	if err != nil {
		return 0, translate(err)
	}
	return count, nil
}

// SummaryByRecipient returns the lifetime received total and the k most
// recent grants, newest first (created_at desc, id desc tiebreak).
func (d *DB) SummaryByRecipient(ctx context.Context, recipientID string, k int) (int, []domain.StarGrant, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM star_grants WHERE recipient_id = ?`, recipientID,
	).Scan(&total)
	if err != nil {
		return 0, nil, translate(err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM star_grants
		 WHERE recipient_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, recipientID, k)
	if err != nil {
		return 0, nil, translate(err)
	}
	defer rows.Close()

	var recent []domain.StarGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return 0, nil, translate(err)
		}
		recent = append(recent, g)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, translate(err)
	}
	return total, recent, nil
}

// TotalsByRecipient returns lifetime received counts for the given ids as a
// single grouped query.
func (d *DB) TotalsByRecipient(ctx context.Context, ids []string) (map[string]int, error) {
	totals := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return totals, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT recipient_id, COUNT(*) FROM star_grants
		 WHERE recipient_id IN (`+placeholders+`)
		 GROUP BY recipient_id`, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, translate(err)
		}
		totals[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return totals, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (domain.StarGrant, error) {
	var g domain.StarGrant
	var reason string
	var createdAt int64
	if err := row.Scan(&g.ID, &g.GiverID, &g.RecipientID, &reason, &g.Message, &createdAt); err != nil {
		return domain.StarGrant{}, err
	}
	g.Reason = domain.ReasonCode(reason)
	g.CreatedAt = time.UnixMicro(createdAt).UTC()
	return g, nil
}

// translate maps driver errors onto the domain error vocabulary.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return err
	case isBusy(err):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
}
