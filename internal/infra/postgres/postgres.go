// Package postgres implements the star-grant ledger store on PostgreSQL via
// a pgx connection pool, for deployments backed by a hosted database.
//
// AppendGrant runs the quota re-count and insert inside a SERIALIZABLE
// transaction; a serialization failure (SQLSTATE 40001) surfaces as
// domain.ErrConflict and is retried once by the redemption service.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/peopledesk/starled/internal/domain"
)

// Config controls the connection pool.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// Store implements domain.LedgerStore on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, verifies the connection, and applies
// migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("connected to postgres ledger store")
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Migrations returns the schema migration statements.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS star_grants (
			id              TEXT PRIMARY KEY,
			giver_id        TEXT NOT NULL,
			recipient_id    TEXT NOT NULL,
			reason          TEXT NOT NULL,
			message         TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_star_grants_giver ON star_grants(giver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_star_grants_recipient ON star_grants(recipient_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS employees (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			department   TEXT NOT NULL DEFAULT ''
		)`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const grantColumns = "id, giver_id, recipient_id, reason, message, created_at"

// AppendGrant re-counts the giver's grants in the grant's calendar month and
// inserts the grant inside one SERIALIZABLE transaction. See
// domain.LedgerStore for the contract.
func (s *Store) AppendGrant(ctx context.Context, grant domain.StarGrant, idemKey string) (domain.StarGrant, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.StarGrant{}, translate(err)
	}
	defer tx.Rollback(ctx)

	// A retried request maps onto the row already stored.
	existing, err := scanGrant(tx.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM star_grants WHERE idempotency_key = $1`, idemKey))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.StarGrant{}, translate(err)
	}

	start, next := domain.MonthWindow(grant.CreatedAt)
	var used int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM star_grants WHERE giver_id = $1 AND created_at >= $2 AND created_at < $3`,
		grant.GiverID, start, next,
	).Scan(&used)
	if err != nil {
		return domain.StarGrant{}, translate(err)
	}
	if used >= domain.MonthlyStarQuota {
		return domain.StarGrant{}, domain.ErrQuotaExhausted
	}

	grant.CreatedAt = grant.CreatedAt.UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO star_grants (id, giver_id, recipient_id, reason, message, created_at, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		grant.ID, grant.GiverID, grant.RecipientID, string(grant.Reason),
		grant.Message, grant.CreatedAt, idemKey,
	)
	if err != nil {
		// A concurrent retry with the same key can slip past the select;
		// the stored row wins.
		if isUniqueViolation(err) {
			return s.grantByKey(ctx, idemKey)
		}
		return domain.StarGrant{}, translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.StarGrant{}, translate(err)
	}
	return grant, nil
}

func (s *Store) grantByKey(ctx context.Context, idemKey string) (domain.StarGrant, error) {
	g, err := scanGrant(s.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM star_grants WHERE idempotency_key = $1`, idemKey))
	if err != nil {
		return domain.StarGrant{}, translate(err)
	}
	return g, nil
}

// CountByGiver returns the number of grants by giverID in [from, to).
func (s *Store) CountByGiver(ctx context.Context, giverID string, from, to time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM star_grants WHERE giver_id = $1 AND created_at >= $2 AND created_at < $3`,
		giverID, from, to,
	).Scan(&count)
	if err != nil {
		return 0, translate(err)
	}
	return count, nil
}

// SummaryByRecipient returns the lifetime received total and the k most
// recent grants, newest first.
func (s *Store) SummaryByRecipient(ctx context.Context, recipientID string, k int) (int, []domain.StarGrant, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM star_grants WHERE recipient_id = $1`, recipientID,
	).Scan(&total)
	if err != nil {
		return 0, nil, translate(err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM star_grants
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, recipientID, k)
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
func (s *Store) TotalsByRecipient(ctx context.Context, ids []string) (map[string]int, error) {
	totals := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return totals, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT recipient_id, COUNT(*) FROM star_grants
		 WHERE recipient_id = ANY($1)
		 GROUP BY recipient_id`, ids)
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

var _ domain.LedgerStore = (*Store)(nil)

// ─── Helpers ────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (domain.StarGrant, error) {
	var g domain.StarGrant
	var reason string
	if err := row.Scan(&g.ID, &g.GiverID, &g.RecipientID, &reason, &g.Message, &g.CreatedAt); err != nil {
		return domain.StarGrant{}, err
	}
	g.Reason = domain.ReasonCode(reason)
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

// SQLSTATE codes the store translates explicitly.
const (
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// translate maps driver errors onto the domain error vocabulary.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeSerializationFailure {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
