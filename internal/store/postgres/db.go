// Package postgres implements internal/store's repository interfaces over
// PostgreSQL via sqlx and lib/pq.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/truthfeed/engine/internal/store"
)

// DefaultQueryTimeout bounds every repository call.
const DefaultQueryTimeout = 15 * time.Second

// Open connects to dsn and verifies connectivity with a bounded ping.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return db, nil
}

// New wires every repository over db into a store.Store.
func New(db *sqlx.DB) *store.Store {
	return &store.Store{
		Bets:          &betRepo{db: db},
		Markets:       &marketRepo{db: db},
		Stats:         &statsRepo{db: db},
		Leaderboard:   &leaderboardRepo{db: db},
		Signals:       &signalRepo{db: db},
		Topics:        &topicRepo{db: db},
		CrossSignals:  &crossSignalRepo{db: db},
		Alerts:        &alertRepo{db: db},
		BacktestCache: &backtestCacheRepo{db: db},
	}
}

// isUniqueViolation reports whether err is Postgres error code 23505
// (unique_violation), the expected idempotence conflict treated as success
// rather than surfaced.
func isUniqueViolation(err error) bool {
	return pqErrorCode(err) == "23505"
}
