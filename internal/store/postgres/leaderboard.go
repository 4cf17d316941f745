package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

type truthScoreRow struct {
	Trader          string       `db:"trader"`
	TotalScore      float64      `db:"total_score"`
	Breakdown       []byte       `db:"breakdown"`
	Tier            string       `db:"tier"`
	LastUpdated     sql.NullTime `db:"last_updated"`
	ActivePlatforms int          `db:"active_platforms"`
}

func scoreToRow(s model.TruthScore) (truthScoreRow, error) {
	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return truthScoreRow{}, fmt.Errorf("store: marshal breakdown: %w", err)
	}
	return truthScoreRow{
		Trader: s.Trader, TotalScore: s.TotalScore, Breakdown: breakdown, Tier: string(s.Tier),
		LastUpdated:     sql.NullTime{Time: s.LastUpdated, Valid: !s.LastUpdated.IsZero()},
		ActivePlatforms: s.ActivePlatforms,
	}, nil
}

func (r truthScoreRow) toModel() (model.TruthScore, error) {
	var breakdown []model.PlatformBreakdown
	if len(r.Breakdown) > 0 {
		if err := json.Unmarshal(r.Breakdown, &breakdown); err != nil {
			return model.TruthScore{}, fmt.Errorf("store: unmarshal breakdown: %w", err)
		}
	}
	return model.TruthScore{
		Trader: r.Trader, TotalScore: r.TotalScore, Breakdown: breakdown, Tier: model.Tier(r.Tier),
		LastUpdated: r.LastUpdated.Time, ActivePlatforms: r.ActivePlatforms,
	}, nil
}

type leaderboardRepo struct{ db *sqlx.DB }

// Refresh replaces the denormalized leaderboard_view wholesale inside one
// transaction: the view is fully derived from user_stats, so a
// stale row left behind by a shrinking leaderboard would be wrong, not
// merely outdated.
func (r *leaderboardRepo) Refresh(ctx context.Context, scores []model.TruthScore) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: refresh leaderboard begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard_view`); err != nil {
		return fmt.Errorf("store: clear leaderboard: %w", err)
	}
	for _, s := range scores {
		row, err := scoreToRow(s)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO leaderboard_view (trader, total_score, breakdown, tier, last_updated, active_platforms)
			VALUES (:trader, :total_score, :breakdown, :tier, :last_updated, :active_platforms)
		`, row); err != nil {
			return fmt.Errorf("store: insert leaderboard row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: refresh leaderboard commit: %w", err)
	}
	return nil
}

func (r *leaderboardRepo) Unified(ctx context.Context, limit int) ([]model.TruthScore, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []truthScoreRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT trader, total_score, breakdown, tier, last_updated, active_platforms
		FROM leaderboard_view ORDER BY total_score DESC, active_platforms DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: unified leaderboard: %w", err)
	}
	return rowsToScores(rows)
}

func (r *leaderboardRepo) TopTraders(ctx context.Context, platformID platform.Platform, n int) ([]model.TruthScore, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []truthScoreRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT l.trader, l.total_score, l.breakdown, l.tier, l.last_updated, l.active_platforms
		FROM leaderboard_view l
		WHERE l.breakdown::jsonb @> jsonb_build_array(jsonb_build_object('platform', $1::text))
		ORDER BY l.total_score DESC LIMIT $2`, string(platformID), n)
	if err != nil {
		return nil, fmt.Errorf("store: top traders: %w", err)
	}
	return rowsToScores(rows)
}

func (r *leaderboardRepo) Get(ctx context.Context, trader string) (model.TruthScore, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var row truthScoreRow
	err := r.db.GetContext(ctx, &row, `
		SELECT trader, total_score, breakdown, tier, last_updated, active_platforms
		FROM leaderboard_view WHERE trader = $1`, trader)
	if err == sql.ErrNoRows {
		return model.TruthScore{}, false, nil
	}
	if err != nil {
		return model.TruthScore{}, false, fmt.Errorf("store: get trader profile: %w", err)
	}
	s, err := row.toModel()
	return s, err == nil, err
}

func rowsToScores(rows []truthScoreRow) ([]model.TruthScore, error) {
	out := make([]model.TruthScore, len(rows))
	for i, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
