package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

type statsRow struct {
	Trader     string       `db:"trader"`
	Platform   string       `db:"platform"`
	TotalBets  int          `db:"total_bets"`
	Wins       int          `db:"wins"`
	Losses     int          `db:"losses"`
	Pending    int          `db:"pending"`
	WinRate    float64      `db:"win_rate"`
	Volume     model.Amount `db:"volume"`
	Score      float64      `db:"score"`
	FirstBetAt sql.NullTime `db:"first_bet_at"`
	LastBetAt  sql.NullTime `db:"last_bet_at"`
}

func statsToRow(s model.UserStats) statsRow {
	return statsRow{
		Trader: s.Trader, Platform: string(s.Platform),
		TotalBets: s.TotalBets, Wins: s.Wins, Losses: s.Losses, Pending: s.Pending,
		WinRate: s.WinRate, Volume: s.Volume, Score: s.Score,
		FirstBetAt: sql.NullTime{Time: s.FirstBetAt, Valid: !s.FirstBetAt.IsZero()},
		LastBetAt:  sql.NullTime{Time: s.LastBetAt, Valid: !s.LastBetAt.IsZero()},
	}
}

func (r statsRow) toModel() model.UserStats {
	return model.UserStats{
		Trader: r.Trader, Platform: platform.Platform(r.Platform),
		TotalBets: r.TotalBets, Wins: r.Wins, Losses: r.Losses, Pending: r.Pending,
		WinRate: r.WinRate, Volume: r.Volume, Score: r.Score,
		FirstBetAt: r.FirstBetAt.Time, LastBetAt: r.LastBetAt.Time,
	}
}

type statsRepo struct{ db *sqlx.DB }

func (r *statsRepo) Upsert(ctx context.Context, s model.UserStats) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := statsToRow(s)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO user_stats (trader, platform, total_bets, wins, losses, pending, win_rate, volume, score, first_bet_at, last_bet_at)
		VALUES (:trader, :platform, :total_bets, :wins, :losses, :pending, :win_rate, :volume, :score, :first_bet_at, :last_bet_at)
		ON CONFLICT (trader, platform) DO UPDATE SET
			total_bets = EXCLUDED.total_bets, wins = EXCLUDED.wins, losses = EXCLUDED.losses, pending = EXCLUDED.pending,
			win_rate = EXCLUDED.win_rate, volume = EXCLUDED.volume, score = EXCLUDED.score,
			first_bet_at = EXCLUDED.first_bet_at, last_bet_at = EXCLUDED.last_bet_at
	`, row)
	if err != nil {
		return fmt.Errorf("store: upsert stats: %w", err)
	}
	return nil
}

func (r *statsRepo) Get(ctx context.Context, trader string, platformID platform.Platform) (model.UserStats, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var row statsRow
	err := r.db.GetContext(ctx, &row, `
		SELECT trader, platform, total_bets, wins, losses, pending, win_rate, volume, score, first_bet_at, last_bet_at
		FROM user_stats WHERE trader = $1 AND platform = $2`, trader, string(platformID))
	if err == sql.ErrNoRows {
		return model.UserStats{}, false, nil
	}
	if err != nil {
		return model.UserStats{}, false, fmt.Errorf("store: get stats: %w", err)
	}
	return row.toModel(), true, nil
}

func (r *statsRepo) ListByTrader(ctx context.Context, trader string) ([]model.UserStats, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []statsRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT trader, platform, total_bets, wins, losses, pending, win_rate, volume, score, first_bet_at, last_bet_at
		FROM user_stats WHERE trader = $1`, trader)
	if err != nil {
		return nil, fmt.Errorf("store: list stats by trader: %w", err)
	}
	out := make([]model.UserStats, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

func (r *statsRepo) ListTraders(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var traders []string
	err := r.db.SelectContext(ctx, &traders, `SELECT DISTINCT trader FROM user_stats ORDER BY trader`)
	if err != nil {
		return nil, fmt.Errorf("store: list traders: %w", err)
	}
	return traders, nil
}
