// Command truthfeed runs the prediction-market intelligence engine: serve
// is the long-running daemon, backfill replays a venue's historical bets
// into the store, backtest replays a leader under a copy policy, and score
// recomputes the unified leaderboard once.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	appName = "truthfeed"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	root := &cobra.Command{
		Use:     appName,
		Short:   "TruthFeed: cross-platform prediction-market reputation and smart-money engine",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion pipeline, analyzer bots, and public API server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "config.yaml", "path to the engine's YAML config file")
	serveCmd.Flags().String("log-level", "info", "log level (debug|info|warn|error)")
	serveCmd.Flags().Bool("pretty-logs", false, "force human-readable console logs")

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay one venue's historical bets into the store",
		RunE:  runBackfill,
	}
	backfillCmd.Flags().String("config", "config.yaml", "path to the engine's YAML config file")
	backfillCmd.Flags().String("log-level", "info", "log level (debug|info|warn|error)")
	backfillCmd.Flags().String("platform", "", "platform id to backfill")
	backfillCmd.Flags().Int64("from-block", 0, "first block of the range")
	backfillCmd.Flags().Int64("to-block", 0, "last block of the range")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a leader's stored history under a copy policy and print the result",
		RunE:  runBacktest,
	}
	backtestCmd.Flags().String("config", "config.yaml", "path to the engine's YAML config file")
	backtestCmd.Flags().String("log-level", "warn", "log level (debug|info|warn|error)")
	backtestCmd.Flags().String("leader", "", "leader address to replay")
	backtestCmd.Flags().String("platform", "", "platform id the leader's bets are on")
	backtestCmd.Flags().String("start", "", "range start (RFC3339)")
	backtestCmd.Flags().String("end", "", "range end (RFC3339)")
	backtestCmd.Flags().Float64("initial-capital", 1000, "starting portfolio in native units")
	backtestCmd.Flags().Float64("allocation-percent", 10, "percent of capital copied per bet")
	backtestCmd.Flags().Float64("max-bet", 100, "per-bet cap in native units")
	backtestCmd.Flags().Bool("compounding", true, "size copies against the running portfolio instead of initial capital")

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Recompute every trader's TruthScore and refresh the leaderboard once",
		RunE:  runScore,
	}
	scoreCmd.Flags().String("config", "config.yaml", "path to the engine's YAML config file")
	scoreCmd.Flags().String("log-level", "warn", "log level (debug|info|warn|error)")
	scoreCmd.Flags().Int("limit", 25, "how many leaderboard rows to print")

	root.AddCommand(serveCmd, backfillCmd, backtestCmd, scoreCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
