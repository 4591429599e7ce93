package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

const sqliteLogPrefix = "db:sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS invocation_outcomes (
	id           TEXT PRIMARY KEY,
	capability   TEXT NOT NULL,
	arguments    TEXT NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL,
	content      TEXT,
	raw_result   TEXT,
	error_code   TEXT,
	error_detail TEXT,
	requested_at TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	recorded_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_invocation_outcomes_completed ON invocation_outcomes(completed_at);
`

// SQLiteStore is a HistoryStore in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and applies its schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to open history db: %w", sqliteLogPrefix, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s - failed to apply schema: %w", sqliteLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - History database ready at %s", sqliteLogPrefix, path))
	return &SQLiteStore{db: db}, nil
}

// SaveOutcome inserts out. Saving the same invocation twice keeps the first row.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, out *invocation.Outcome) error {
	rec, err := NewOutcomeRecord(out)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO invocation_outcomes
		   (id, capability, arguments, status, content, raw_result, error_code, error_detail,
		    requested_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Capability, string(rec.Arguments), rec.Status, rec.Content, nullText(rec.RawResult),
		rec.ErrorCode, rec.ErrorDetail,
		formatTime(rec.RequestedAt), formatTime(rec.StartedAt), formatTime(rec.CompletedAt))
	if err != nil {
		return fmt.Errorf("%s - failed to save outcome %s: %w", sqliteLogPrefix, rec.ID, err)
	}
	return nil
}

// RecentOutcomes returns up to k outcomes, most recently completed first.
func (s *SQLiteStore) RecentOutcomes(ctx context.Context, k int) ([]*invocation.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, capability, arguments, status, content, raw_result, error_code, error_detail,
		        requested_at, started_at, completed_at
		 FROM invocation_outcomes
		 ORDER BY completed_at DESC
		 LIMIT ?`, clampRecent(k))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to query outcomes: %w", sqliteLogPrefix, err)
	}
	defer rows.Close()

	var recs []*OutcomeRecord
	for rows.Next() {
		var r OutcomeRecord
		var args, requested, started, completed string
		var raw sql.NullString
		if err := rows.Scan(&r.ID, &r.Capability, &args, &r.Status, &r.Content, &raw,
			&r.ErrorCode, &r.ErrorDetail, &requested, &started, &completed); err != nil {
			return nil, fmt.Errorf("%s - failed to scan outcome: %w", sqliteLogPrefix, err)
		}
		r.Arguments = []byte(args)
		if raw.Valid {
			r.RawResult = []byte(raw.String)
		}
		if r.RequestedAt, err = parseTime(requested); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		recs = append(recs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - failed to read outcomes: %w", sqliteLogPrefix, err)
	}
	return recordsToOutcomes(recs)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s - invalid timestamp %q: %w", sqliteLogPrefix, s, err)
	}
	return t, nil
}

func nullText(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
