package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store"
)

type fakeSignalRepo struct {
	current model.SmartMoneySignal
	found   bool
}

func (f *fakeSignalRepo) Upsert(ctx context.Context, s model.SmartMoneySignal) error { return nil }
func (f *fakeSignalRepo) Current(ctx context.Context, p platform.Platform) (model.SmartMoneySignal, bool, error) {
	return f.current, f.found, nil
}
func (f *fakeSignalRepo) History(ctx context.Context, limit int) ([]model.SmartMoneySignal, error) {
	return nil, nil
}

type fakeLeaderboardRepo struct {
	byTrader map[string]model.TruthScore
}

func (f *fakeLeaderboardRepo) TopTraders(ctx context.Context, p platform.Platform, n int) ([]model.TruthScore, error) {
	return nil, nil
}
func (f *fakeLeaderboardRepo) Unified(ctx context.Context, limit int) ([]model.TruthScore, error) {
	var out []model.TruthScore
	for _, s := range f.byTrader {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeLeaderboardRepo) Get(ctx context.Context, trader string) (model.TruthScore, bool, error) {
	s, ok := f.byTrader[trader]
	return s, ok, nil
}
func (f *fakeLeaderboardRepo) Refresh(ctx context.Context, scores []model.TruthScore) error {
	return nil
}

type fakeAlertRepo struct {
	updatedStatus model.AlertStatus
	updatedID     string
}

func (f *fakeAlertRepo) Create(ctx context.Context, a model.GamingAlert) error { return nil }
func (f *fakeAlertRepo) HasRecentUnresolved(ctx context.Context, typ model.AlertType, wallets []string, within time.Duration) (bool, error) {
	return false, nil
}
func (f *fakeAlertRepo) Pending(ctx context.Context) ([]model.GamingAlert, error) { return nil, nil }
func (f *fakeAlertRepo) UpdateStatus(ctx context.Context, id string, status model.AlertStatus, reviewer, notes string) error {
	f.updatedID, f.updatedStatus = id, status
	return nil
}
func (f *fakeAlertRepo) Get(ctx context.Context, id string) (model.GamingAlert, bool, error) {
	return model.GamingAlert{}, false, nil
}

func testHandlers() (*Handlers, *fakeSignalRepo, *fakeLeaderboardRepo, *fakeAlertRepo) {
	signals := &fakeSignalRepo{}
	leaderboard := &fakeLeaderboardRepo{byTrader: map[string]model.TruthScore{}}
	alerts := &fakeAlertRepo{}
	st := &store.Store{Signals: signals, Leaderboard: leaderboard, Alerts: alerts}
	return NewHandlers(st, nil), signals, leaderboard, alerts
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestHealth_AlwaysSucceeds(t *testing.T) {
	h, _, _, _ := testHandlers()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestSignalsCurrent_UnknownPlatformRejected(t *testing.T) {
	h, _, _, _ := testHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/signals/current/nonexistent", nil)
	req = mux.SetURLVars(req, map[string]string{"platform": "nonexistent"})
	rec := httptest.NewRecorder()

	h.SignalsCurrent(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
}

func TestSignalsCurrent_NoneFoundReturnsNilData(t *testing.T) {
	h, signals, _, _ := testHandlers()
	signals.found = false
	known := platform.All()[0]

	req := httptest.NewRequest(http.MethodGet, "/api/signals/current/"+string(known), nil)
	req = mux.SetURLVars(req, map[string]string{"platform": string(known)})
	rec := httptest.NewRecorder()

	h.SignalsCurrent(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Nil(t, env.Data)
}

func TestTraderProfile_NotFoundReturns404(t *testing.T) {
	h, _, _, _ := testHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/trader/0xabc", nil)
	req = mux.SetURLVars(req, map[string]string{"address": "0xabc"})
	rec := httptest.NewRecorder()

	h.TraderProfile(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTraderProfile_FoundReturnsScore(t *testing.T) {
	h, _, leaderboard, _ := testHandlers()
	leaderboard.byTrader["0xabc"] = model.TruthScore{Trader: "0xabc", TotalScore: 500, Tier: model.TierGold}

	req := httptest.NewRequest(http.MethodGet, "/api/trader/0xabc", nil)
	req = mux.SetURLVars(req, map[string]string{"address": "0xabc"})
	rec := httptest.NewRecorder()

	h.TraderProfile(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
}

func TestAlertAction_DismissUpdatesStatus(t *testing.T) {
	h, _, _, alerts := testHandlers()
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/abc/dismiss", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()

	h.AlertAction(model.AlertDismissed)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", alerts.updatedID)
	assert.Equal(t, model.AlertDismissed, alerts.updatedStatus)
}

func TestBacktest_MissingLeaderRejected(t *testing.T) {
	h, _, _, _ := testHandlers()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.Backtest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "leader is required", decodeEnvelope(t, rec).Error)
}
