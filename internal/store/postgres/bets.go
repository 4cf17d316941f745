package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store"
)

type betRow struct {
	ID            string         `db:"id"`
	Trader        string         `db:"trader"`
	Platform      string         `db:"platform"`
	MarketID      string         `db:"market_id"`
	Direction     string         `db:"direction"`
	Amount        model.Amount   `db:"amount"`
	Timestamp     sql.NullTime   `db:"ts"`
	TxHash        sql.NullString `db:"tx_hash"`
	LogIndex      int            `db:"log_index"`
	Block         int64          `db:"block"`
	Won           sql.NullBool   `db:"won"`
	ClaimedAmount *model.Amount  `db:"claimed_amount"`
}

func toRow(b model.Bet) betRow {
	row := betRow{
		ID: b.ID, Trader: b.Trader, Platform: string(b.Platform), MarketID: b.MarketID,
		Direction: string(b.Direction), Amount: b.Amount,
		Timestamp: sql.NullTime{Time: b.Timestamp, Valid: !b.Timestamp.IsZero()},
		TxHash:    sql.NullString{String: b.TxHash, Valid: b.TxHash != ""},
		LogIndex:  b.LogIndex, Block: int64(b.Block),
		ClaimedAmount: b.ClaimedAmount,
	}
	if b.Won != nil {
		row.Won = sql.NullBool{Bool: *b.Won, Valid: true}
	}
	return row
}

func (r betRow) toModel() model.Bet {
	b := model.Bet{
		ID: r.ID, Trader: r.Trader, Platform: platform.Platform(r.Platform), MarketID: r.MarketID,
		Direction: model.Direction(r.Direction), Amount: r.Amount,
		Timestamp: r.Timestamp.Time, TxHash: r.TxHash.String, LogIndex: r.LogIndex,
		Block: uint64(r.Block), ClaimedAmount: r.ClaimedAmount,
	}
	if r.Won.Valid {
		won := r.Won.Bool
		b.Won = &won
	}
	return b
}

type betRepo struct{ db *sqlx.DB }

// Upsert inserts a bet keyed on its adapter-assigned id, which already
// encodes the natural identifier (platform, txHash, logIndex); a repeat
// insert hits the primary-key unique_violation and is silently treated as
// success.
func (r *betRepo) Upsert(ctx context.Context, b model.Bet) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := toRow(b)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO bets (id, trader, platform, market_id, direction, amount, ts, tx_hash, log_index, block, won, claimed_amount)
		VALUES (:id, :trader, :platform, :market_id, :direction, :amount, :ts, :tx_hash, :log_index, :block, :won, :claimed_amount)
	`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("store: upsert bet: %w", err)
	}
	return nil
}

func (r *betRepo) ListByTrader(ctx context.Context, trader string, platformID platform.Platform, limit int) ([]model.Bet, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []betRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, trader, platform, market_id, direction, amount, ts, tx_hash, log_index, block, won, claimed_amount
		FROM bets WHERE trader = $1 AND platform = $2 ORDER BY ts DESC LIMIT $3`,
		trader, string(platformID), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list bets by trader: %w", err)
	}
	return rowsToModels(rows), nil
}

func (r *betRepo) ListByMarket(ctx context.Context, platformID platform.Platform, marketID string) ([]model.Bet, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []betRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, trader, platform, market_id, direction, amount, ts, tx_hash, log_index, block, won, claimed_amount
		FROM bets WHERE platform = $1 AND market_id = $2 ORDER BY ts ASC`,
		string(platformID), marketID)
	if err != nil {
		return nil, fmt.Errorf("store: list bets by market: %w", err)
	}
	return rowsToModels(rows), nil
}

func (r *betRepo) ListByTraderInRange(ctx context.Context, trader string, platformID platform.Platform, tr store.TimeRange) ([]model.Bet, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []betRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, trader, platform, market_id, direction, amount, ts, tx_hash, log_index, block, won, claimed_amount
		FROM bets WHERE trader = $1 AND platform = $2 AND ts BETWEEN $3 AND $4 ORDER BY ts ASC`,
		trader, string(platformID), tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("store: list bets in range: %w", err)
	}
	return rowsToModels(rows), nil
}

// MarkResolved sets won for every bet on (platformID, marketID);
// bullWins nil (draw/void) leaves won NULL.
func (r *betRepo) MarkResolved(ctx context.Context, platformID platform.Platform, marketID string, bullWins *bool) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE bets SET won = (
			CASE WHEN $3::boolean IS NULL THEN NULL
			     WHEN direction = 'bull' THEN $3
			     ELSE NOT $3
			END)
		WHERE platform = $1 AND market_id = $2`,
		string(platformID), marketID, bullWins)
	if err != nil {
		return fmt.Errorf("store: mark resolved: %w", err)
	}
	return nil
}

func rowsToModels(rows []betRow) []model.Bet {
	out := make([]model.Bet, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}
