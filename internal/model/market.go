package model

import (
	"time"

	"github.com/truthfeed/engine/internal/platform"
)

// Market (a round, on fixed-epoch venues) is the canonical identifier and
// resolution record for a single binary-outcome period.
type Market struct {
	ID       string            `json:"id"`
	Platform platform.Platform `json:"platform"`
	Title    string            `json:"title"`
	Epoch    int64             `json:"epoch"`
	OpenAt   time.Time         `json:"openAt"`
	LockAt   time.Time         `json:"lockAt"`
	CloseAt  time.Time         `json:"closeAt"`

	BullAmount  Amount `json:"bullAmount"`
	BearAmount  Amount `json:"bearAmount"`
	TotalAmount Amount `json:"totalAmount"`

	Resolution Resolution `json:"resolution"`
}

// Resolution captures whether and how a market resolved. Winner is nil for
// an unresolved round AND (legitimately) for a resolved draw/void round;
// OracleCalled is what distinguishes the two.
type Resolution struct {
	OracleCalled bool       `json:"oracleCalled"`
	Winner       *Direction `json:"winner"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

// BullWins reports the boolean form of Winner for Bet.ResolveAgainst, or nil
// if the round is unresolved or void.
func (r Resolution) BullWins() *bool {
	if !r.OracleCalled || r.Winner == nil {
		return nil
	}
	won := *r.Winner == DirectionBull
	return &won
}

// PoolsConsistent verifies bullAmount + bearAmount <= totalAmount, the
// difference being the platform fee.
func (m Market) PoolsConsistent() bool {
	sum := m.BullAmount.Add(m.BearAmount)
	return sum.Cmp(m.TotalAmount) <= 0
}

// BullProbability returns the implied YES/bull probability from pool sizes,
// used by the cross-platform fusion.
// Returns 0.5 when there is no volume yet.
func (m Market) BullProbability() float64 {
	total := m.BullAmount.Add(m.BearAmount)
	if total.IsZero() {
		return 0.5
	}
	return m.BullAmount.Float64() / total.Float64()
}
