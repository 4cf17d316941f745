package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/truthfeed/engine/internal/analyzer/backtest"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store"
)

// Handlers holds every collaborator the REST surface reads from or writes
// to, constructor-injected so tests can wire fakes.
type Handlers struct {
	store     *store.Store
	backtest  *backtest.Engine
	started   time.Time
	botStatus func() map[string]BotStatus
}

// NewHandlers wires a Handlers against the engine's store and backtest
// engine.
func NewHandlers(st *store.Store, bt *backtest.Engine) *Handlers {
	return &Handlers{store: st, backtest: bt, started: time.Now()}
}

// SetBotStatusFunc registers the composition root's per-bot status
// snapshot, surfaced in GET /health's bots map.
func (h *Handlers) SetBotStatusFunc(f func() map[string]BotStatus) {
	h.botStatus = f
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"success":false,"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Health never requires auth and never fails.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	bots := map[string]BotStatus{}
	if h.botStatus != nil {
		bots = h.botStatus()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(h.started).Seconds(),
		Bots:          bots,
	})
}

// SignalsCurrent serves GET /api/signals/current/:platform.
func (h *Handlers) SignalsCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	platformID := platform.Platform(mux.Vars(r)["platform"])
	if !platform.Valid(platformID) {
		writeJSON(w, http.StatusBadRequest, fail("unknown platform"))
		return
	}
	signal, found, err := h.store.Signals.Current(ctx, platformID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, ok(nil))
		return
	}
	writeJSON(w, http.StatusOK, ok(signal))
}

// SignalsHistory serves GET /api/signals/history?limit=.
func (h *Handlers) SignalsHistory(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50)
	signals, err := h.store.Signals.History(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		Pagination pagination `json:"pagination"`
	}{envelope: ok(signals), Pagination: pagination{Limit: limit, Count: len(signals)}})
}

// Backtest serves POST /api/backtest.
func (h *Handlers) Backtest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail("invalid request body"))
		return
	}
	if req.Leader == "" {
		writeJSON(w, http.StatusBadRequest, fail("leader is required"))
		return
	}
	platformID := platform.Platform(req.Platform)
	if !platform.Valid(platformID) {
		writeJSON(w, http.StatusBadRequest, fail("platform is required and must be a known venue"))
		return
	}

	settings, err := parseBacktestSettings(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}

	result, err := h.backtest.Run(r.Context(), platformID, settings)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(result))
}

func parseBacktestSettings(req backtestRequest) (model.BacktestSettings, error) {
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		return model.BacktestSettings{}, errInvalidDate("startDate")
	}
	end, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		return model.BacktestSettings{}, errInvalidDate("endDate")
	}

	settings := model.BacktestSettings{
		Leader:            req.Leader,
		Start:             start,
		End:               end,
		InitialCapital:    model.FromFloat(1000),
		AllocationPercent: 10,
		MaxBetSize:        model.FromFloat(100),
		Compounding:       true,
	}
	if req.InitialCapital != nil {
		settings.InitialCapital = parseAmountOrZero(*req.InitialCapital)
	}
	if req.AllocationPercent != nil {
		settings.AllocationPercent = *req.AllocationPercent
	}
	if req.MaxBetSize != nil {
		settings.MaxBetSize = parseAmountOrZero(*req.MaxBetSize)
	}
	if req.Compounding != nil {
		settings.Compounding = *req.Compounding
	}
	return settings, nil
}

func parseAmountOrZero(native string) model.Amount {
	f, err := strconv.ParseFloat(native, 64)
	if err != nil {
		return model.Zero
	}
	return model.FromFloat(f)
}

type errInvalidDate string

func (e errInvalidDate) Error() string { return string(e) + " must be RFC3339" }

// AlertsPending serves GET /api/alerts/pending.
func (h *Handlers) AlertsPending(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.Alerts.Pending(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(alerts))
}

// AlertAction serves POST /api/alerts/:id/dismiss and /confirm.
func (h *Handlers) AlertAction(status model.AlertStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var req alertActionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if err := h.store.Alerts.UpdateStatus(r.Context(), id, status, req.ReviewedBy, req.Notes); err != nil {
			writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, envelope{Success: true})
	}
}

// WalletAnalyze serves GET /api/wallet/:address/analyze.
func (h *Handlers) WalletAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr := mux.Vars(r)["address"]

	statsList, err := h.store.Stats.ListByTrader(ctx, addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	analysis := WalletAnalysis{
		Trader:        addr,
		PlatformStats: make(map[platform.Platform]model.UserStats, len(statsList)),
	}
	for _, s := range statsList {
		analysis.PlatformStats[s.Platform] = s
	}
	if score, found, err := h.store.Leaderboard.Get(ctx, addr); err == nil && found {
		analysis.Score = &score
	}
	for _, platformID := range platform.All() {
		bets, err := h.store.Bets.ListByTrader(ctx, addr, platformID, 20)
		if err != nil {
			continue
		}
		analysis.RecentBets = append(analysis.RecentBets, bets...)
	}
	sort.Slice(analysis.RecentBets, func(i, j int) bool {
		return analysis.RecentBets[i].Timestamp.After(analysis.RecentBets[j].Timestamp)
	})
	writeJSON(w, http.StatusOK, ok(analysis))
}

// Trends serves GET /api/trends?limit=.
func (h *Handlers) Trends(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 20)
	topics, err := h.store.Topics.Top(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(topics))
}

// CrossSignalsStrongest serves GET /api/cross-signals/strongest?limit=.
func (h *Handlers) CrossSignalsStrongest(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 20)
	signals, err := h.store.CrossSignals.Strongest(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(signals))
}

// LeaderboardUnified serves GET /api/leaderboard/unified?limit=.
func (h *Handlers) LeaderboardUnified(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 100)
	scores, err := h.store.Leaderboard.Unified(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	traders := make([]UnifiedTrader, len(scores))
	for i, s := range scores {
		traders[i] = UnifiedTrader{TruthScore: s}
	}
	writeJSON(w, http.StatusOK, ok(traders))
}

// TraderProfile serves GET /api/trader/:address.
func (h *Handlers) TraderProfile(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	score, found, err := h.store.Leaderboard.Get(r.Context(), addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, fail("trader not found"))
		return
	}
	writeJSON(w, http.StatusOK, ok(UnifiedTrader{TruthScore: score}))
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, fail("endpoint not found"))
}
