// runServe is the engine's composition root: it loads config, dials the
// store and every configured platform adapter, wires the bus and every
// analyzer bot around it, and serves the REST/WebSocket surface until
// signalled. Wiring order: log, config, persistence, bus and pipeline,
// adapters, bots, server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/adapter/evm"
	"github.com/truthfeed/engine/internal/adapter/rest"
	"github.com/truthfeed/engine/internal/analyzer/antigaming"
	"github.com/truthfeed/engine/internal/analyzer/backtest"
	"github.com/truthfeed/engine/internal/analyzer/crosssignal"
	"github.com/truthfeed/engine/internal/analyzer/smartmoney"
	"github.com/truthfeed/engine/internal/analyzer/trend"
	"github.com/truthfeed/engine/internal/api"
	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/cache"
	"github.com/truthfeed/engine/internal/config"
	"github.com/truthfeed/engine/internal/ingest"
	"github.com/truthfeed/engine/internal/logging"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store"
	"github.com/truthfeed/engine/internal/store/postgres"
)

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	pretty, _ := cmd.Flags().GetBool("pretty-logs")

	logger := logging.New(logging.Config{Level: logLevel, Pretty: pretty, Redact: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("truthfeed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("truthfeed: store: %w", err)
	}
	defer db.Close()
	st := postgres.New(db)

	eventBus := bus.New()
	pipeline := ingest.New(st, eventBus, logger)

	reg, disposeAdapters := buildAdapters(ctx, cfg, logger, pipeline)
	defer disposeAdapters()

	disposeSignalPersist := pipeline.PersistSignals(ctx)
	defer disposeSignalPersist()

	watcher := ingest.NewMarketWatcher(reg, pipeline, logger)
	go watcher.Run(ctx)

	scorer := ingest.NewScorer(st, logger)
	go scorer.Run(ctx)

	var binaryPlatforms []platform.Platform
	for _, p := range platform.All() {
		if platform.MustLookup(p).Kind == platform.KindBinaryEVM {
			binaryPlatforms = append(binaryPlatforms, p)
		}
	}

	if cfg.BotEnabled("smartmoney") {
		scores := smartmoney.ScoreLookup(st.Leaderboard)
		if addr := cfg.Cache.RedisAddr(); addr != "" {
			rdb, err := cache.NewClient(addr, cfg.Cache.RedisPassword(), cfg.Cache.RedisDB)
			if err != nil {
				logger.Warn().Err(err).Msg("redis unavailable, tracked-trader set will read through to postgres")
			} else {
				defer rdb.Close()
				scores = cache.NewTrackedTraderCache(rdb, st.Leaderboard)
			}
		}
		agg := smartmoney.New(eventBus, scores)
		disposeAgg := agg.Start(ctx, binaryPlatforms)
		defer disposeAgg()
	}

	if cfg.BotEnabled("trend") {
		detector := trend.New(eventBus, ingest.NewTrendMarketSource(reg), ingest.NewTopicStore(st.Topics))
		go detector.Run(ctx)
	}

	if cfg.BotEnabled("crosssignal") {
		fuser := crosssignal.New(eventBus, ingest.NewMarketLookup(st.Markets), ingest.NewCrossSignalStore(st.CrossSignals))
		go runCrossSignalLoop(ctx, fuser, st.Topics, logging.Component(logger, "crosssignal"))
	}

	if cfg.BotEnabled("antigaming") {
		gaming := antigaming.New(eventBus, ingest.NewAlertStore(st.Alerts), 50_000)
		disposeGaming := gaming.Start(ctx)
		defer disposeGaming()
	}

	roundsPerYear := float64(config.EnvInt("TRUTHFEED_ROUNDS_PER_YEAR", 288*365))
	backtestEngine := backtest.New(
		ingest.NewBacktestBetSource(st.Bets),
		ingest.NewBacktestResolutionSource(st.Markets),
		st.BacktestCache,
		roundsPerYear,
	)

	handlers := api.NewHandlers(st, backtestEngine)
	botNames := []string{"smartmoney", "trend", "crosssignal", "antigaming", "backtest"}
	handlers.SetBotStatusFunc(func() map[string]api.BotStatus {
		out := make(map[string]api.BotStatus, len(botNames))
		for _, name := range botNames {
			out[name] = api.BotStatus{Running: cfg.BotEnabled(name)}
		}
		return out
	})
	metrics := api.NewMetrics()
	disposeBusMetrics := metrics.ObserveBus(eventBus)
	defer disposeBusMetrics()
	apiCfg := api.DefaultConfig()
	if cfg.API.Host != "" {
		apiCfg.Host = cfg.API.Host
	}
	if cfg.API.Port != 0 {
		apiCfg.Port = cfg.API.Port
	}
	if len(cfg.API.CORSOrigins) > 0 {
		apiCfg.CORSOrigins = cfg.API.CORSOrigins
	}
	apiCfg.APIKey = cfg.APIKey()

	server := api.NewServer(apiCfg, handlers, eventBus, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("api server exited")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runCrossSignalLoop fuses the current top topics on the trend detector's
// cadence, so it always fuses freshly-scored topics rather than a stale
// snapshot.
func runCrossSignalLoop(ctx context.Context, fuser *crosssignal.Fuser, topics store.TopicRepo, log zerolog.Logger) {
	ticker := time.NewTicker(trend.DefaultCycleInterval)
	defer ticker.Stop()

	run := func() {
		top, err := topics.Top(ctx, 100)
		if err != nil {
			log.Warn().Err(err).Msg("topic lookup failed")
			return
		}
		fuser.Run(ctx, top)
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// buildAdapters constructs a live Adapter per enabled, configured platform,
// initializes it, and subscribes it into the ingest pipeline. A platform
// whose Kind has no adapter family able to serve it (chain mismatch, or a
// REST venue with no Mapper implemented yet) is skipped with a warning
// rather than failing startup: a missing platform reduces coverage, never
// aborts the process.
func buildAdapters(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pipeline *ingest.Pipeline) (ingest.Registry, func()) {
	reg := make(ingest.Registry)
	var disposers []adapter.Disposer

	for _, id := range platform.All() {
		pc, configured := cfg.Platforms[id]
		if !configured || !pc.Enabled {
			continue
		}
		info := platform.MustLookup(id)
		plog := logging.Component(logger, "adapter."+string(id))

		a, err := newAdapterFor(ctx, info, pc, plog)
		if err != nil {
			plog.Warn().Err(err).Msg("adapter construction skipped")
			continue
		}
		if a == nil {
			continue
		}
		if err := a.Initialize(ctx); err != nil {
			plog.Warn().Err(err).Msg("adapter initialize failed, skipping subscription")
			continue
		}

		dispose, err := a.Subscribe(ctx, func(b model.Bet) error {
			return pipeline.HandleBet(ctx, b)
		})
		if err != nil {
			plog.Warn().Err(err).Msg("subscribe failed")
			continue
		}
		disposers = append(disposers, dispose)

		reg[id] = a
	}

	dispose := func() {
		for _, d := range disposers {
			d()
		}
	}
	return reg, dispose
}

// restMappers is the closed set of REST venues with a concrete Mapper
// implemented. PredictIt and Zeitgeist need the same treatment following
// KalshiMapper/ManifoldMapper's shape before they can be registered here.
var restMappers = map[platform.Platform]rest.Mapper{
	"kalshi":   rest.KalshiMapper{},
	"manifold": rest.ManifoldMapper{},
}

const defaultPollInterval = 15 * time.Second

// newAdapterFor dials and wraps the right adapter family for info.Kind, or
// returns a nil adapter (no error) when this platform isn't servable yet:
// e.g. a binary_evm platform on a chain go-ethereum's JSON-RPC client can't
// reach (drift-bet is Solana, not EVM, despite sharing the binary-round
// mechanic; it needs a dedicated Solana adapter this exercise doesn't
// implement).
func newAdapterFor(ctx context.Context, info platform.Info, pc config.PlatformConfig, log zerolog.Logger) (adapter.Adapter, error) {
	pollInterval := pc.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	switch info.Kind {
	case platform.KindBinaryEVM, platform.KindOddsEVM:
		if info.Chain == "solana" {
			log.Warn().Msg("no EVM RPC client for this chain; adapter not wired")
			return nil, nil
		}
		client, err := evm.NewClient(ctx, evm.ClientConfig{
			Info:           info,
			RPCURL:         pc.RPCURL,
			SubgraphURL:    pc.SubgraphURL,
			RequestsPerSec: pc.RPS,
			Burst:          pc.Burst,
			Log:            log,
		})
		if err != nil {
			return nil, err
		}
		if info.Kind == platform.KindBinaryEVM {
			return evm.NewBinaryAdapter(client, pc.ContractAddress, pollInterval), nil
		}
		return evm.NewOddsAdapter(client, pollInterval), nil

	case platform.KindOddsREST:
		mapper, ok := restMappers[info.ID]
		if !ok {
			log.Warn().Msg("no REST mapper implemented for this venue; adapter not wired")
			return nil, nil
		}
		client := rest.NewClient(rest.ClientConfig{
			Info:           info,
			BaseURL:        pc.APIBaseURL,
			APIKey:         pc.APIKey(),
			RequestsPerSec: pc.RPS,
			Burst:          pc.Burst,
			Log:            log,
		})
		return rest.NewOddsAdapter(client, mapper, pollInterval), nil

	default:
		return nil, fmt.Errorf("truthfeed: unhandled platform kind %q", info.Kind)
	}
}
