package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

const historyLogPrefix = "db:history"

// HistoryStore persists recorded outcomes and lists them back for inspection.
type HistoryStore interface {
	SaveOutcome(ctx context.Context, out *invocation.Outcome) error
	RecentOutcomes(ctx context.Context, k int) ([]*invocation.Outcome, error)
	Close() error
}

// OpenHistoryStore opens the store named by rawURL. postgres:// and postgresql://
// URLs use pgx and expect the schema to be migrated; sqlite:// URLs name a file
// path (sqlite://:memory: for an in-memory database) and create their schema.
func OpenHistoryStore(ctx context.Context, rawURL string) (HistoryStore, error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return nil, fmt.Errorf("%s - history URL %q has no scheme", historyLogPrefix, rawURL)
	}

	scheme = strings.ToLower(scheme)
	switch scheme {
	case "postgres", "postgresql":
		pool, err := NewPool(ctx, scheme+"://"+rest)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "sqlite", "sqlite3", "file":
		path, err := sqlitePath(rest)
		if err != nil {
			return nil, err
		}
		store, err := OpenSQLiteStore(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%s - unsupported history URL scheme %q", historyLogPrefix, scheme)
	}
}

func sqlitePath(rest string) (string, error) {
	path, _, _ := strings.Cut(rest, "?")
	path, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("%s - invalid sqlite path %q: %w", historyLogPrefix, rest, err)
	}
	if path == "" {
		return "", fmt.Errorf("%s - sqlite history URL needs a path", historyLogPrefix)
	}
	return path, nil
}

func clampRecent(k int) int {
	if k <= 0 || k > 1000 {
		return 1000
	}
	return k
}
