package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

const pgLogPrefix = "db:postgres"

// PostgresStore is a HistoryStore backed by the invocation_outcomes table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore with the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// SaveOutcome inserts out. Saving the same invocation twice keeps the first row.
func (s *PostgresStore) SaveOutcome(ctx context.Context, out *invocation.Outcome) error {
	rec, err := NewOutcomeRecord(out)
	if err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("%s - SaveOutcome id=%s capability=%s status=%s", pgLogPrefix, rec.ID, rec.Capability, rec.Status))

	_, err = s.pool.Exec(ctx,
		`INSERT INTO invocation_outcomes
		   (id, capability, arguments, status, content, raw_result, error_code, error_detail,
		    requested_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Capability, rec.Arguments, rec.Status, rec.Content, nullJSON(rec.RawResult),
		rec.ErrorCode, rec.ErrorDetail, rec.RequestedAt, rec.StartedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("%s - failed to save outcome %s: %w", pgLogPrefix, rec.ID, err)
	}
	return nil
}

// RecentOutcomes returns up to k outcomes, most recently completed first.
func (s *PostgresStore) RecentOutcomes(ctx context.Context, k int) ([]*invocation.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, capability, arguments, status, content, raw_result, error_code, error_detail,
		        requested_at, started_at, completed_at
		 FROM invocation_outcomes
		 ORDER BY completed_at DESC
		 LIMIT $1`, clampRecent(k))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to query outcomes: %w", pgLogPrefix, err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutcomeRecord, error) {
		var r OutcomeRecord
		var raw []byte
		err := row.Scan(&r.ID, &r.Capability, &r.Arguments, &r.Status, &r.Content, &raw,
			&r.ErrorCode, &r.ErrorDetail, &r.RequestedAt, &r.StartedAt, &r.CompletedAt)
		r.RawResult = raw
		return &r, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan outcomes: %w", pgLogPrefix, err)
	}
	return recordsToOutcomes(recs)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func recordsToOutcomes(recs []*OutcomeRecord) ([]*invocation.Outcome, error) {
	out := make([]*invocation.Outcome, 0, len(recs))
	for _, r := range recs {
		o, err := r.Outcome()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
