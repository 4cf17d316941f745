package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/truthfeed/engine/internal/analyzer/backtest"
	"github.com/truthfeed/engine/internal/config"
	"github.com/truthfeed/engine/internal/ingest"
	"github.com/truthfeed/engine/internal/logging"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store/postgres"
)

// runBacktest replays a leader's stored history under a copy policy and
// prints the full result as JSON, sharing the cache with the API's POST
// /api/backtest path.
func runBacktest(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	leader, _ := cmd.Flags().GetString("leader")
	platformFlag, _ := cmd.Flags().GetString("platform")
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")
	initialCapital, _ := cmd.Flags().GetFloat64("initial-capital")
	allocation, _ := cmd.Flags().GetFloat64("allocation-percent")
	maxBet, _ := cmd.Flags().GetFloat64("max-bet")
	compounding, _ := cmd.Flags().GetBool("compounding")

	logging.New(logging.Config{Level: logLevel, Redact: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("truthfeed: %w", err)
	}

	if leader == "" {
		return fmt.Errorf("truthfeed: --leader is required")
	}
	platformID := platform.Platform(platformFlag)
	if !platform.Valid(platformID) {
		return fmt.Errorf("truthfeed: unknown platform %q", platformFlag)
	}
	start, err := time.Parse(time.RFC3339, startFlag)
	if err != nil {
		return fmt.Errorf("truthfeed: --start must be RFC3339: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endFlag)
	if err != nil {
		return fmt.Errorf("truthfeed: --end must be RFC3339: %w", err)
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("truthfeed: store: %w", err)
	}
	defer db.Close()
	st := postgres.New(db)

	roundsPerYear := float64(config.EnvInt("TRUTHFEED_ROUNDS_PER_YEAR", 288*365))
	engine := backtest.New(
		ingest.NewBacktestBetSource(st.Bets),
		ingest.NewBacktestResolutionSource(st.Markets),
		st.BacktestCache,
		roundsPerYear,
	)

	settings := model.BacktestSettings{
		Leader:            leader,
		Start:             start,
		End:               end,
		InitialCapital:    model.FromFloat(initialCapital),
		AllocationPercent: allocation,
		MaxBetSize:        model.FromFloat(maxBet),
		Compounding:       compounding,
	}

	result, err := engine.Run(ctx, platformID, settings)
	if err != nil {
		return fmt.Errorf("truthfeed: backtest: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
