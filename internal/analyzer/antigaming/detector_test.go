package antigaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
)

type fakeAlertStore struct {
	alerts []model.GamingAlert
}

func (f *fakeAlertStore) HasRecentUnresolvedAlert(_ context.Context, typ model.AlertType, wallets []string, _ time.Duration) (bool, error) {
	for _, a := range f.alerts {
		if a.Type != typ || a.Status != model.AlertPending {
			continue
		}
		for _, w := range wallets {
			if a.InvolvesWallet(w) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeAlertStore) CreateAlert(_ context.Context, alert model.GamingAlert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func bet(wallet, round string, side model.Direction, amount float64, ts time.Time) model.Bet {
	return model.Bet{Trader: wallet, Platform: "pancakeswap-prediction", MarketID: round, Direction: side, Amount: model.FromFloat(amount), Timestamp: ts}
}

func TestScanWash_ThreeWashRoundsIsCritical(t *testing.T) {
	store := &fakeAlertStore{}
	d := New(bus.New(), store, 0)
	now := time.Now()

	bets := []roundBet{}
	for i, r := range []string{"1", "1", "2", "2", "3", "3"} {
		side := model.DirectionBull
		if i%2 == 1 {
			side = model.DirectionBear
		}
		bets = append(bets, roundBet{wallet: "0xw", round: r, side: side, timestamp: now})
	}
	d.bets = bets

	d.scanWash(context.Background(), d.bets)

	require.Len(t, store.alerts, 1)
	assert.Equal(t, model.AlertWashTrading, store.alerts[0].Type)
	assert.Equal(t, model.SeverityCritical, store.alerts[0].Severity)
	assert.Equal(t, []string{"0xw"}, store.alerts[0].Wallets)
}

func TestScanWash_DuplicateSuppressed(t *testing.T) {
	store := &fakeAlertStore{}
	existing, err := model.NewGamingAlert("prior", model.AlertWashTrading, model.SeverityCritical, []string{"0xw"}, nil, "review", time.Now())
	require.NoError(t, err)
	store.alerts = append(store.alerts, *existing)

	d := New(bus.New(), store, 0)
	now := time.Now()
	for _, r := range []string{"1", "1", "2", "2", "3", "3"} {
		side := model.DirectionBull
		d.bets = append(d.bets, roundBet{wallet: "0xw", round: r, side: side, timestamp: now})
	}
	// flip alternating sides so wash triggers
	for i := range d.bets {
		if i%2 == 1 {
			d.bets[i].side = model.DirectionBear
		}
	}

	d.scanWash(context.Background(), d.bets)
	assert.Len(t, store.alerts, 1, "duplicate wash alert must be suppressed")
}

func TestScanSybil_FlagsTightCluster(t *testing.T) {
	store := &fakeAlertStore{}
	d := New(bus.New(), store, 0)
	base := time.Now()
	for _, w := range []string{"0xa", "0xb", "0xc"} {
		d.bets = append(d.bets, roundBet{wallet: w, round: "7", side: model.DirectionBull, amount: 1.0, timestamp: base})
	}
	d.scanSybil(context.Background(), d.bets)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, model.AlertSybilCluster, store.alerts[0].Type)
}

func TestScanAnomaly_FiresAboveZThreshold(t *testing.T) {
	store := &fakeAlertStore{}
	d := New(bus.New(), store, 0)
	won := true
	for i := 0; i < 50; i++ {
		d.bets = append(d.bets, roundBet{wallet: "0xskilled", round: "r", won: &won})
	}
	d.scanAnomaly(context.Background(), d.bets)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, model.AlertStatisticalAnomaly, store.alerts[0].Type)
	assert.Equal(t, model.SeverityInfo, store.alerts[0].Severity)
}

func TestScanAnomaly_NoAlertBelowMinimumSample(t *testing.T) {
	store := &fakeAlertStore{}
	d := New(bus.New(), store, 0)
	won := true
	for i := 0; i < 49; i++ {
		d.bets = append(d.bets, roundBet{wallet: "0xskilled", round: "r", won: &won})
	}
	d.scanAnomaly(context.Background(), d.bets)
	assert.Empty(t, store.alerts)
}

func TestScanCollusion_FlagsHighCoOccurrence(t *testing.T) {
	store := &fakeAlertStore{}
	d := New(bus.New(), store, 0)
	for i := 0; i < 20; i++ {
		round := string(rune('a' + i))
		d.bets = append(d.bets, roundBet{wallet: "0xa", round: round})
		d.bets = append(d.bets, roundBet{wallet: "0xb", round: round})
	}
	d.scanCollusion(context.Background(), d.bets)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, model.AlertCollusion, store.alerts[0].Type)
}
