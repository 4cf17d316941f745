package model

import (
	"time"

	"github.com/truthfeed/engine/internal/platform"
)

// Consensus is the smart-money aggregator's directional call for a round.
type Consensus string

const (
	ConsensusBull    Consensus = "BULL"
	ConsensusBear    Consensus = "BEAR"
	ConsensusNeutral Consensus = "NEUTRAL"
)

// Strength qualifies how much weight to put behind a Consensus call.
type Strength string

const (
	StrengthStrong   Strength = "STRONG"
	StrengthModerate Strength = "MODERATE"
	StrengthWeak     Strength = "WEAK"
)

// SignalBet is one contributing bet behind a SmartMoneySignal.
type SignalBet struct {
	Trader string    `json:"trader"`
	Tier   Tier      `json:"tier"`
	Amount Amount    `json:"amount"`
	Side   Direction `json:"side"`
	Weight float64   `json:"weight"`
}

// SmartMoneySignal is the per-(platform, epoch) tracked-trader consensus.
// Natural key for upsert: (Platform, Epoch).
type SmartMoneySignal struct {
	Platform platform.Platform `json:"platform"`
	Epoch    int64             `json:"epoch"`

	Consensus           Consensus `json:"consensus"`
	Confidence          float64   `json:"confidence"`
	WeightedBullPercent float64   `json:"weightedBullPercent"`

	ParticipatingTraders int `json:"participatingTraders"`
	DiamondTraderCount   int `json:"diamondTraderCount"`
	PlatinumTraderCount  int `json:"platinumTraderCount"`

	TotalVolume Amount   `json:"totalVolume"`
	Strength    Strength `json:"strength"`

	TopTraderAgreementPercent float64     `json:"topTraderAgreementPercent"`
	ContributingBets          []SignalBet `json:"contributingBets"`

	UpdatedAt time.Time `json:"updatedAt"`
}
