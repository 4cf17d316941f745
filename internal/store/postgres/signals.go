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

type signalRow struct {
	Platform                  string       `db:"platform"`
	Epoch                     int64        `db:"epoch"`
	Consensus                 string       `db:"consensus"`
	Confidence                float64      `db:"confidence"`
	WeightedBullPercent       float64      `db:"weighted_bull_percent"`
	ParticipatingTraders      int          `db:"participating_traders"`
	DiamondTraderCount        int          `db:"diamond_trader_count"`
	PlatinumTraderCount       int          `db:"platinum_trader_count"`
	TotalVolume               model.Amount `db:"total_volume"`
	Strength                  string       `db:"strength"`
	TopTraderAgreementPercent float64      `db:"top_trader_agreement_percent"`
	ContributingBets          []byte       `db:"contributing_bets"`
	UpdatedAt                 sql.NullTime `db:"updated_at"`
}

func signalToRow(s model.SmartMoneySignal) (signalRow, error) {
	bets, err := json.Marshal(s.ContributingBets)
	if err != nil {
		return signalRow{}, fmt.Errorf("store: marshal contributing bets: %w", err)
	}
	return signalRow{
		Platform: string(s.Platform), Epoch: s.Epoch,
		Consensus: string(s.Consensus), Confidence: s.Confidence, WeightedBullPercent: s.WeightedBullPercent,
		ParticipatingTraders: s.ParticipatingTraders, DiamondTraderCount: s.DiamondTraderCount,
		PlatinumTraderCount: s.PlatinumTraderCount, TotalVolume: s.TotalVolume, Strength: string(s.Strength),
		TopTraderAgreementPercent: s.TopTraderAgreementPercent, ContributingBets: bets,
		UpdatedAt: sql.NullTime{Time: s.UpdatedAt, Valid: !s.UpdatedAt.IsZero()},
	}, nil
}

func (r signalRow) toModel() (model.SmartMoneySignal, error) {
	var bets []model.SignalBet
	if len(r.ContributingBets) > 0 {
		if err := json.Unmarshal(r.ContributingBets, &bets); err != nil {
			return model.SmartMoneySignal{}, fmt.Errorf("store: unmarshal contributing bets: %w", err)
		}
	}
	return model.SmartMoneySignal{
		Platform: platform.Platform(r.Platform), Epoch: r.Epoch,
		Consensus: model.Consensus(r.Consensus), Confidence: r.Confidence, WeightedBullPercent: r.WeightedBullPercent,
		ParticipatingTraders: r.ParticipatingTraders, DiamondTraderCount: r.DiamondTraderCount,
		PlatinumTraderCount: r.PlatinumTraderCount, TotalVolume: r.TotalVolume, Strength: model.Strength(r.Strength),
		TopTraderAgreementPercent: r.TopTraderAgreementPercent, ContributingBets: bets, UpdatedAt: r.UpdatedAt.Time,
	}, nil
}

type signalRepo struct{ db *sqlx.DB }

func (r *signalRepo) Upsert(ctx context.Context, s model.SmartMoneySignal) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row, err := signalToRow(s)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO smart_money_signals (platform, epoch, consensus, confidence, weighted_bull_percent,
			participating_traders, diamond_trader_count, platinum_trader_count, total_volume, strength,
			top_trader_agreement_percent, contributing_bets, updated_at)
		VALUES (:platform, :epoch, :consensus, :confidence, :weighted_bull_percent,
			:participating_traders, :diamond_trader_count, :platinum_trader_count, :total_volume, :strength,
			:top_trader_agreement_percent, :contributing_bets, :updated_at)
		ON CONFLICT (platform, epoch) DO UPDATE SET
			consensus = EXCLUDED.consensus, confidence = EXCLUDED.confidence,
			weighted_bull_percent = EXCLUDED.weighted_bull_percent,
			participating_traders = EXCLUDED.participating_traders,
			diamond_trader_count = EXCLUDED.diamond_trader_count, platinum_trader_count = EXCLUDED.platinum_trader_count,
			total_volume = EXCLUDED.total_volume, strength = EXCLUDED.strength,
			top_trader_agreement_percent = EXCLUDED.top_trader_agreement_percent,
			contributing_bets = EXCLUDED.contributing_bets, updated_at = EXCLUDED.updated_at
	`, row)
	if err != nil {
		return fmt.Errorf("store: upsert signal: %w", err)
	}
	return nil
}

func (r *signalRepo) Current(ctx context.Context, platformID platform.Platform) (model.SmartMoneySignal, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var row signalRow
	err := r.db.GetContext(ctx, &row, `
		SELECT platform, epoch, consensus, confidence, weighted_bull_percent, participating_traders,
			diamond_trader_count, platinum_trader_count, total_volume, strength,
			top_trader_agreement_percent, contributing_bets, updated_at
		FROM smart_money_signals WHERE platform = $1 ORDER BY epoch DESC LIMIT 1`, string(platformID))
	if err == sql.ErrNoRows {
		return model.SmartMoneySignal{}, false, nil
	}
	if err != nil {
		return model.SmartMoneySignal{}, false, fmt.Errorf("store: current signal: %w", err)
	}
	s, err := row.toModel()
	return s, err == nil, err
}

func (r *signalRepo) History(ctx context.Context, limit int) ([]model.SmartMoneySignal, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []signalRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT platform, epoch, consensus, confidence, weighted_bull_percent, participating_traders,
			diamond_trader_count, platinum_trader_count, total_volume, strength,
			top_trader_agreement_percent, contributing_bets, updated_at
		FROM smart_money_signals ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: signal history: %w", err)
	}
	out := make([]model.SmartMoneySignal, len(rows))
	for i, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
