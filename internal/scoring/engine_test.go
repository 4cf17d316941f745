package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

func TestCompute_IsDeterministic(t *testing.T) {
	stats := []model.UserStats{
		{Platform: "pancakeswap-prediction", Wins: 60, Losses: 40, TotalBets: 100, WinRate: 60, Volume: model.FromFloat(50), LastBetAt: time.Now()},
		{Platform: "polymarket", Wins: 30, Losses: 10, TotalBets: 40, WinRate: 75, Volume: model.FromFloat(1000), LastBetAt: time.Now()},
	}

	first := Compute("0xabc", stats)
	second := Compute("0xabc", stats)

	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Equal(t, first.Tier, second.Tier)
	assert.Equal(t, first.Breakdown, second.Breakdown)
}

func TestCompute_UnknownPlatformTreatedAsZeroNotError(t *testing.T) {
	stats := []model.UserStats{
		{Platform: "not-a-real-venue", Wins: 10, Losses: 0, TotalBets: 10, WinRate: 100},
	}
	score := Compute("0xabc", stats)
	assert.Equal(t, 0.0, score.TotalScore)
	assert.Empty(t, score.Breakdown)
}

func TestCompute_EmptyStatsYieldsBronzeZero(t *testing.T) {
	score := Compute("0xabc", nil)
	assert.Equal(t, 0.0, score.TotalScore)
	assert.Equal(t, model.TierBronze, score.Tier)
	assert.Equal(t, 0, score.ActivePlatforms)
}

func TestTierForScore_ClearsThresholds(t *testing.T) {
	cases := []struct {
		score float64
		tier  model.Tier
	}{
		{0, model.TierBronze},
		{199, model.TierBronze},
		{200, model.TierSilver},
		{400, model.TierGold},
		{650, model.TierPlatinum},
		{900, model.TierDiamond},
		{1500, model.TierDiamond},
	}
	for _, c := range cases {
		assert.Equal(t, c.tier, model.TierForScore(c.score), "score=%v", c.score)
	}
}

func TestPlatformScore_SingleResolvedWin(t *testing.T) {
	s := model.UserStats{Wins: 1, Losses: 0, TotalBets: 1, WinRate: 100, Volume: model.FromFloat(0.1)}
	// 100 win points + (100-55)*10 win-rate bonus + floor(0.1*10) volume
	// bonus + no consistency bonus.
	assert.Equal(t, 551.0, PlatformScore(s))
}

func TestBinaryAdjustment_DampsSmallSamples(t *testing.T) {
	small := model.UserStats{Wins: 6, Losses: 4, TotalBets: 10, WinRate: 60}
	large := model.UserStats{Wins: 60, Losses: 40, TotalBets: 100, WinRate: 60}

	smallScore := binaryAdjustment(PlatformScore(small), small)
	largeScore := binaryAdjustment(PlatformScore(large), large)

	require.Greater(t, largeScore, smallScore)
}

func TestLeaderboard_OrdersByScoreThenActivePlatforms(t *testing.T) {
	scores := []model.TruthScore{
		{Trader: "a", TotalScore: 500, ActivePlatforms: 1},
		{Trader: "b", TotalScore: 500, ActivePlatforms: 3},
		{Trader: "c", TotalScore: 900, ActivePlatforms: 1},
	}
	ranked := Leaderboard(scores)
	assert.Equal(t, []string{"c", "b", "a"}, []string{ranked[0].Trader, ranked[1].Trader, ranked[2].Trader})
}

func TestPlatformWeight_DefaultsToOne(t *testing.T) {
	assert.Equal(t, 1.0, PlatformWeight(platform.Platform("polymarket")))
}
