package model

import (
	"time"

	"github.com/truthfeed/engine/internal/platform"
)

// Direction is the canonical binary side of a bet. Venue-native outcomes
// (home/away, YES/NO, UP/DOWN, outcome-0/outcome-1) are mapped to these two
// values at the adapter boundary; nothing venue-shaped crosses it.
type Direction string

const (
	DirectionBull Direction = "bull"
	DirectionBear Direction = "bear"
)

// Bet is the canonical record of a single wager, normalized from whichever
// venue produced it.
type Bet struct {
	ID        string            `json:"id"`
	Trader    string            `json:"trader"` // lower-cased hex address, or venue user id for off-chain venues
	Platform  platform.Platform `json:"platform"`
	MarketID  string            `json:"marketId"`
	Direction Direction         `json:"direction"`
	Amount    Amount            `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
	TxHash    string            `json:"txHash,omitempty"`
	LogIndex  int               `json:"logIndex,omitempty"`
	Block     uint64            `json:"block,omitempty"`

	// Won is nil until the round resolves.
	Won *bool `json:"won"`

	// ClaimedAmount is set only when Won is true.
	ClaimedAmount *Amount `json:"claimedAmount,omitempty"`
}

// NaturalKey is the idempotence key used by the store for upsert: a bet
// observed twice with the same (platform, txHash, logIndex) collapses to one
// row.
func (b Bet) NaturalKey() (platform.Platform, string, int) {
	return b.Platform, b.TxHash, b.LogIndex
}

// ResolveAgainst sets Won from the round outcome:
// won = (direction=='bull' && bullWins) || (direction=='bear' && !bullWins).
// bullWins is nil for a void/draw round, in which case Won stays nil.
func (b *Bet) ResolveAgainst(bullWins *bool) {
	if bullWins == nil {
		b.Won = nil
		return
	}
	won := (b.Direction == DirectionBull) == *bullWins
	b.Won = &won
}
