package platform

import "testing"

// TestNetPayout_AlreadyFeeAdjusted: PayoutMultiplier is the venue's net
// payout (1.9x == 90% profit on a win) and must not be discounted a second
// time by FeeBps, which is charged separately against the round's pool.
func TestNetPayout_AlreadyFeeAdjusted(t *testing.T) {
	for _, id := range []Platform{
		"pancakeswap-prediction", "pancakeswap-prediction-v2", "thales", "drift-bet", "gains-binary",
	} {
		info := MustLookup(id)
		if info.FeeBps == 0 {
			t.Fatalf("%s: expected this case to exercise a nonzero FeeBps venue", id)
		}
		got := info.NetPayout()
		if got != info.PayoutMultiplier {
			t.Errorf("%s: NetPayout() = %v, want PayoutMultiplier %v unchanged (FeeBps must not be re-applied)", id, got, info.PayoutMultiplier)
		}
	}
}

func TestNetPayout_DefaultsWhenUnset(t *testing.T) {
	info := Info{}
	if got := info.NetPayout(); got != 1.9 {
		t.Errorf("NetPayout() with zero PayoutMultiplier = %v, want 1.9 default", got)
	}
}
