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

type topicRow struct {
	NormalizedTopic string       `db:"normalized_topic"`
	Category        string       `db:"category"`
	Score           float64      `db:"score"`
	Velocity        float64      `db:"velocity"`
	TotalVolume     model.Amount `db:"total_volume"`
	TotalMarkets    int          `db:"total_markets"`
	Platforms       []byte       `db:"platforms"`
	FirstSeenAt     sql.NullTime `db:"first_seen_at"`
	LastUpdated     sql.NullTime `db:"last_updated"`
}

func topicToRow(t model.TrendingTopic) (topicRow, error) {
	platforms, err := json.Marshal(t.Platforms)
	if err != nil {
		return topicRow{}, fmt.Errorf("store: marshal topic platforms: %w", err)
	}
	return topicRow{
		NormalizedTopic: t.NormalizedTopic, Category: string(t.Category),
		Score: t.Score, Velocity: t.Velocity, TotalVolume: t.TotalVolume, TotalMarkets: t.TotalMarkets,
		Platforms:   platforms,
		FirstSeenAt: sql.NullTime{Time: t.FirstSeenAt, Valid: !t.FirstSeenAt.IsZero()},
		LastUpdated: sql.NullTime{Time: t.LastUpdated, Valid: !t.LastUpdated.IsZero()},
	}, nil
}

func (r topicRow) toModel() (model.TrendingTopic, error) {
	var platforms []model.PlatformPresence
	if len(r.Platforms) > 0 {
		if err := json.Unmarshal(r.Platforms, &platforms); err != nil {
			return model.TrendingTopic{}, fmt.Errorf("store: unmarshal topic platforms: %w", err)
		}
	}
	return model.TrendingTopic{
		NormalizedTopic: r.NormalizedTopic, Category: platform.Category(r.Category),
		Score: r.Score, Velocity: r.Velocity, TotalVolume: r.TotalVolume, TotalMarkets: r.TotalMarkets,
		Platforms: platforms, FirstSeenAt: r.FirstSeenAt.Time, LastUpdated: r.LastUpdated.Time,
	}, nil
}

type topicRepo struct{ db *sqlx.DB }

func (r *topicRepo) Upsert(ctx context.Context, t model.TrendingTopic) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row, err := topicToRow(t)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO trending_topics (normalized_topic, category, score, velocity, total_volume, total_markets, platforms, first_seen_at, last_updated)
		VALUES (:normalized_topic, :category, :score, :velocity, :total_volume, :total_markets, :platforms, :first_seen_at, :last_updated)
		ON CONFLICT (normalized_topic) DO UPDATE SET
			category = EXCLUDED.category, score = EXCLUDED.score, velocity = EXCLUDED.velocity,
			total_volume = EXCLUDED.total_volume, total_markets = EXCLUDED.total_markets,
			platforms = EXCLUDED.platforms, last_updated = EXCLUDED.last_updated
	`, row)
	if err != nil {
		return fmt.Errorf("store: upsert topic: %w", err)
	}
	return nil
}

func (r *topicRepo) Top(ctx context.Context, limit int) ([]model.TrendingTopic, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []topicRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT normalized_topic, category, score, velocity, total_volume, total_markets, platforms, first_seen_at, last_updated
		FROM trending_topics ORDER BY score DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: top topics: %w", err)
	}
	out := make([]model.TrendingTopic, len(rows))
	for i, row := range rows {
		t, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
