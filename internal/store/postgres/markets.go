package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

type marketRow struct {
	ID           string         `db:"id"`
	Platform     string         `db:"platform"`
	Title        string         `db:"title"`
	Epoch        int64          `db:"epoch"`
	OpenAt       sql.NullTime   `db:"open_at"`
	LockAt       sql.NullTime   `db:"lock_at"`
	CloseAt      sql.NullTime   `db:"close_at"`
	BullAmount   model.Amount   `db:"bull_amount"`
	BearAmount   model.Amount   `db:"bear_amount"`
	TotalAmount  model.Amount   `db:"total_amount"`
	OracleCalled bool           `db:"oracle_called"`
	Winner       sql.NullString `db:"winner"`
	ResolvedAt   sql.NullTime   `db:"resolved_at"`
}

func marketToRow(m model.Market) marketRow {
	row := marketRow{
		ID: m.ID, Platform: string(m.Platform), Title: m.Title, Epoch: m.Epoch,
		OpenAt:     sql.NullTime{Time: m.OpenAt, Valid: !m.OpenAt.IsZero()},
		LockAt:     sql.NullTime{Time: m.LockAt, Valid: !m.LockAt.IsZero()},
		CloseAt:    sql.NullTime{Time: m.CloseAt, Valid: !m.CloseAt.IsZero()},
		BullAmount: m.BullAmount, BearAmount: m.BearAmount, TotalAmount: m.TotalAmount,
		OracleCalled: m.Resolution.OracleCalled,
	}
	if m.Resolution.Winner != nil {
		row.Winner = sql.NullString{String: string(*m.Resolution.Winner), Valid: true}
	}
	if m.Resolution.ResolvedAt != nil {
		row.ResolvedAt = sql.NullTime{Time: *m.Resolution.ResolvedAt, Valid: true}
	}
	return row
}

func (r marketRow) toModel() model.Market {
	m := model.Market{
		ID: r.ID, Platform: platform.Platform(r.Platform), Title: r.Title, Epoch: r.Epoch,
		OpenAt: r.OpenAt.Time, LockAt: r.LockAt.Time, CloseAt: r.CloseAt.Time,
		BullAmount: r.BullAmount, BearAmount: r.BearAmount, TotalAmount: r.TotalAmount,
		Resolution: model.Resolution{OracleCalled: r.OracleCalled},
	}
	if r.Winner.Valid {
		w := model.Direction(r.Winner.String)
		m.Resolution.Winner = &w
	}
	if r.ResolvedAt.Valid {
		t := r.ResolvedAt.Time
		m.Resolution.ResolvedAt = &t
	}
	return m
}

type marketRepo struct{ db *sqlx.DB }

// Upsert overwrites a market's resolution/pool state on every call; markets
// are mutable until resolved, unlike bets.
func (r *marketRepo) Upsert(ctx context.Context, m model.Market) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := marketToRow(m)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO markets (id, platform, title, epoch, open_at, lock_at, close_at, bull_amount, bear_amount, total_amount, oracle_called, winner, resolved_at)
		VALUES (:id, :platform, :title, :epoch, :open_at, :lock_at, :close_at, :bull_amount, :bear_amount, :total_amount, :oracle_called, :winner, :resolved_at)
		ON CONFLICT (platform, id) DO UPDATE SET
			title = EXCLUDED.title, lock_at = EXCLUDED.lock_at, close_at = EXCLUDED.close_at,
			bull_amount = EXCLUDED.bull_amount, bear_amount = EXCLUDED.bear_amount, total_amount = EXCLUDED.total_amount,
			oracle_called = EXCLUDED.oracle_called, winner = EXCLUDED.winner, resolved_at = EXCLUDED.resolved_at
	`, row)
	if err != nil {
		return fmt.Errorf("store: upsert market: %w", err)
	}
	return nil
}

func (r *marketRepo) Get(ctx context.Context, platformID platform.Platform, marketID string) (model.Market, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var row marketRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, platform, title, epoch, open_at, lock_at, close_at, bull_amount, bear_amount, total_amount, oracle_called, winner, resolved_at
		FROM markets WHERE platform = $1 AND id = $2`, string(platformID), marketID)
	if err == sql.ErrNoRows {
		return model.Market{}, false, nil
	}
	if err != nil {
		return model.Market{}, false, fmt.Errorf("store: get market: %w", err)
	}
	return row.toModel(), true, nil
}

func (r *marketRepo) ListActive(ctx context.Context, platformID platform.Platform, limit int) ([]model.Market, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []marketRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, platform, title, epoch, open_at, lock_at, close_at, bull_amount, bear_amount, total_amount, oracle_called, winner, resolved_at
		FROM markets WHERE platform = $1 AND oracle_called = false ORDER BY open_at DESC LIMIT $2`,
		string(platformID), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list active markets: %w", err)
	}
	out := make([]model.Market, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
