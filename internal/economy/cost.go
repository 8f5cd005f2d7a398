// Package economy provides activity pricing: the global multiplier, the
// multi-tick cost model, and reward payout.
package economy

import (
	"fmt"
	"math"

	"github.com/talgya/swarm-economy/internal/agents"
)

// MinCost is the floor applied to every modified cost. No action is free.
const MinCost = 1

// compressionFactor is the per-tick surcharge on multi-tick requests.
const compressionFactor = 2

// Cost returns the total RP charged up front for an activity of baseCost
// requested for ticks ticks at the given multiplier.
//
// A single-tick request costs floor(baseCost*multiplier), floored to 1.
// Longer requests pay entropy compression: twice the modified cost per tick.
func Cost(baseCost int, multiplier float64, ticks int) int {
	if baseCost < 0 {
		baseCost = 0
	}
	if math.IsNaN(multiplier) || multiplier < 0 {
		multiplier = 0
	}

	modified := int(math.Floor(float64(baseCost) * multiplier))
	if modified < MinCost {
		modified = MinCost
	}
	if ticks <= 1 {
		return modified
	}
	return modified * compressionFactor * ticks
}

// Reward returns the RP paid for a successful activity: the base reward
// scaled by multiplier, floored, never negative.
func Reward(baseReward int, multiplier float64) int {
	if baseReward <= 0 || math.IsNaN(multiplier) || multiplier <= 0 {
		return 0
	}
	return int(math.Floor(float64(baseReward) * multiplier))
}

// RewardTiming selects which multiplier sample prices a payout.
type RewardTiming uint8

const (
	// RewardAtCompletion pays with the multiplier current when the activity
	// resolves, which may differ from the one it was costed at.
	RewardAtCompletion RewardTiming = iota
	// RewardAtStart pays with the multiplier captured when the activity started.
	RewardAtStart
)

// String returns the config name of the timing.
func (t RewardTiming) String() string {
	switch t {
	case RewardAtCompletion:
		return "completion"
	case RewardAtStart:
		return "start"
	default:
		return fmt.Sprintf("timing(%d)", uint8(t))
	}
}

// ParseRewardTiming maps a config name to a RewardTiming.
func ParseRewardTiming(name string) (RewardTiming, error) {
	switch name {
	case "", "completion":
		return RewardAtCompletion, nil
	case "start":
		return RewardAtStart, nil
	default:
		return RewardAtCompletion, fmt.Errorf("unknown reward timing %q", name)
	}
}

// Pick returns the multiplier the timing selects.
func (t RewardTiming) Pick(atStart, atCompletion float64) float64 {
	switch t {
	case RewardAtStart:
		return atStart
	case RewardAtCompletion:
		return atCompletion
	}
	return atCompletion
}

// Price is the base cost and reward for one activity kind.
type Price struct {
	BaseCost   int `yaml:"base_cost" json:"base_cost"`
	BaseReward int `yaml:"base_reward" json:"base_reward"`
}

// PriceTable holds a Price per activity kind.
type PriceTable [agents.NumKinds]Price

// DefaultPrices returns the stock price table.
func DefaultPrices() PriceTable {
	var t PriceTable
	t[agents.KindGather] = Price{BaseCost: 10, BaseReward: 30}
	t[agents.KindBuild] = Price{BaseCost: 25, BaseReward: 70}
	t[agents.KindTrade] = Price{BaseCost: 15, BaseReward: 45}
	t[agents.KindCombat] = Price{BaseCost: 40, BaseReward: 120}
	return t
}

// For returns the price of kind.
func (t PriceTable) For(kind agents.ActivityKind) Price {
	if int(kind) >= len(t) {
		return Price{}
	}
	return t[kind]
}
