package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/truthfeed/engine/internal/config"
	"github.com/truthfeed/engine/internal/ingest"
	"github.com/truthfeed/engine/internal/logging"
	"github.com/truthfeed/engine/internal/store/postgres"
)

// runScore recomputes every trader's TruthScore from their stored stats,
// refreshes the leaderboard view, and prints the new top of the board.
func runScore(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	limit, _ := cmd.Flags().GetInt("limit")

	logger := logging.New(logging.Config{Level: logLevel, Redact: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("truthfeed: %w", err)
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("truthfeed: store: %w", err)
	}
	defer db.Close()
	st := postgres.New(db)

	ingest.NewScorer(st, logger).RefreshOnce(ctx)

	scores, err := st.Leaderboard.Unified(ctx, limit)
	if err != nil {
		return fmt.Errorf("truthfeed: leaderboard: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(scores)
}
