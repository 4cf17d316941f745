package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/truthfeed/engine/internal/model"
)

type crossSignalRow struct {
	Topic                     string       `db:"topic"`
	Consensus                 string       `db:"consensus"`
	Confidence                float64      `db:"confidence"`
	VolumeWeightedProbability float64      `db:"volume_weighted_probability"`
	Platforms                 []byte       `db:"platforms"`
	TotalVolume               model.Amount `db:"total_volume"`
	MarketCount               int          `db:"market_count"`
	ExpiresAt                 sql.NullTime `db:"expires_at"`
}

type crossSignalRepo struct{ db *sqlx.DB }

func (r *crossSignalRepo) Upsert(ctx context.Context, s model.CrossPlatformSignal) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	platforms, err := json.Marshal(s.Platforms)
	if err != nil {
		return fmt.Errorf("store: marshal cross-signal platforms: %w", err)
	}
	row := crossSignalRow{
		Topic: s.Topic, Consensus: string(s.Consensus), Confidence: s.Confidence,
		VolumeWeightedProbability: s.VolumeWeightedProbability, Platforms: platforms,
		TotalVolume: s.TotalVolume, MarketCount: s.MarketCount,
		ExpiresAt: sql.NullTime{Time: s.ExpiresAt, Valid: !s.ExpiresAt.IsZero()},
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO cross_platform_signals (topic, consensus, confidence, volume_weighted_probability, platforms, total_volume, market_count, expires_at)
		VALUES (:topic, :consensus, :confidence, :volume_weighted_probability, :platforms, :total_volume, :market_count, :expires_at)
		ON CONFLICT (topic) DO UPDATE SET
			consensus = EXCLUDED.consensus, confidence = EXCLUDED.confidence,
			volume_weighted_probability = EXCLUDED.volume_weighted_probability,
			platforms = EXCLUDED.platforms, total_volume = EXCLUDED.total_volume,
			market_count = EXCLUDED.market_count, expires_at = EXCLUDED.expires_at
	`, row)
	if err != nil {
		return fmt.Errorf("store: upsert cross-platform signal: %w", err)
	}
	return nil
}

// Strongest returns unexpired signals ordered by confidence, the ranking
// the cross-signals API exposes.
func (r *crossSignalRepo) Strongest(ctx context.Context, limit int) ([]model.CrossPlatformSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []crossSignalRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT topic, consensus, confidence, volume_weighted_probability, platforms, total_volume, market_count, expires_at
		FROM cross_platform_signals WHERE expires_at > now() ORDER BY confidence DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: strongest cross-platform signals: %w", err)
	}
	out := make([]model.CrossPlatformSignal, len(rows))
	for i, row := range rows {
		var platforms []model.PlatformSignal
		if len(row.Platforms) > 0 {
			if err := json.Unmarshal(row.Platforms, &platforms); err != nil {
				return nil, fmt.Errorf("store: unmarshal cross-signal platforms: %w", err)
			}
		}
		out[i] = model.CrossPlatformSignal{
			Topic: row.Topic, Consensus: model.PlatformConsensus(row.Consensus), Confidence: row.Confidence,
			VolumeWeightedProbability: row.VolumeWeightedProbability, Platforms: platforms,
			TotalVolume: row.TotalVolume, MarketCount: row.MarketCount, ExpiresAt: row.ExpiresAt.Time,
		}
	}
	return out, nil
}
