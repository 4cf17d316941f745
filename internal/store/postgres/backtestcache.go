package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/truthfeed/engine/internal/model"
)

type backtestCacheRow struct {
	Leader       string    `db:"leader"`
	Start        time.Time `db:"start_at"`
	End          time.Time `db:"end_at"`
	SettingsHash string    `db:"settings_hash"`
	Result       []byte    `db:"result"`
	ExpiresAt    time.Time `db:"expires_at"`
}

type backtestCacheRepo struct{ db *sqlx.DB }

// Get returns a cache miss (false, nil) both when no row matches the key
// and when a matching row's TTL has lapsed; an expired cache entry is
// equivalent to absence, not an error.
func (r *backtestCacheRepo) Get(ctx context.Context, leader string, start, end time.Time, settingsHash string) (model.BacktestResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var row backtestCacheRow
	err := r.db.GetContext(ctx, &row, `
		SELECT leader, start_at, end_at, settings_hash, result, expires_at
		FROM backtest_cache WHERE leader = $1 AND start_at = $2 AND end_at = $3 AND settings_hash = $4 AND expires_at > now()`,
		leader, start, end, settingsHash)
	if err == sql.ErrNoRows {
		return model.BacktestResult{}, false, nil
	}
	if err != nil {
		return model.BacktestResult{}, false, fmt.Errorf("store: get cached backtest: %w", err)
	}
	var result model.BacktestResult
	if err := json.Unmarshal(row.Result, &result); err != nil {
		return model.BacktestResult{}, false, fmt.Errorf("store: unmarshal cached backtest: %w", err)
	}
	return result, true, nil
}

func (r *backtestCacheRepo) Put(ctx context.Context, result model.BacktestResult, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("store: marshal backtest result: %w", err)
	}
	row := backtestCacheRow{
		Leader: result.Settings.Leader, Start: result.Settings.Start, End: result.Settings.End,
		SettingsHash: result.SettingsHash, Result: encoded, ExpiresAt: result.ComputedAt.Add(ttl),
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO backtest_cache (leader, start_at, end_at, settings_hash, result, expires_at)
		VALUES (:leader, :start_at, :end_at, :settings_hash, :result, :expires_at)
		ON CONFLICT (leader, start_at, end_at, settings_hash) DO UPDATE SET
			result = EXCLUDED.result, expires_at = EXCLUDED.expires_at
	`, row)
	if err != nil {
		return fmt.Errorf("store: put cached backtest: %w", err)
	}
	return nil
}
