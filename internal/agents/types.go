// Package agents provides the simulated user model: tiers, activity kinds,
// balances, drones, and the roster arena that owns them.
package agents

import "fmt"

// AgentID is a unique identifier for an agent. IDs are never reused.
type AgentID uint64

// Tier is a fixed skill classification, assigned at spawn and never changed.
type Tier uint8

const (
	TierNovice Tier = iota
	TierApprentice
	TierAdept
	TierExpert
	TierElite
	TierMaster
)

// NumTiers is the number of agent tiers.
const NumTiers = 6

// AllTiers lists tiers from lowest to highest.
var AllTiers = [NumTiers]Tier{TierNovice, TierApprentice, TierAdept, TierExpert, TierElite, TierMaster}

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierNovice:
		return "novice"
	case TierApprentice:
		return "apprentice"
	case TierAdept:
		return "adept"
	case TierExpert:
		return "expert"
	case TierElite:
		return "elite"
	case TierMaster:
		return "master"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// IsTop reports whether the tier counts toward the top-tier headcount.
func (t Tier) IsTop() bool {
	return t >= TierElite
}

// ActivityKind enumerates the work an agent can schedule.
type ActivityKind uint8

const (
	KindGather ActivityKind = iota
	KindBuild
	KindTrade
	KindCombat
)

// NumKinds is the number of activity kinds.
const NumKinds = 4

// AllKinds lists every activity kind.
var AllKinds = [NumKinds]ActivityKind{KindGather, KindBuild, KindTrade, KindCombat}

// String returns the kind name.
func (k ActivityKind) String() string {
	switch k {
	case KindGather:
		return "gather"
	case KindBuild:
		return "build"
	case KindTrade:
		return "trade"
	case KindCombat:
		return "combat"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a kind name back to its ActivityKind.
func ParseKind(name string) (ActivityKind, bool) {
	for _, k := range AllKinds {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// YieldsDrones reports whether a successful activity of this kind may grant a drone.
func (k ActivityKind) YieldsDrones() bool {
	switch k {
	case KindGather, KindBuild:
		return true
	case KindTrade, KindCombat:
		return false
	}
	return false
}

// RisksDrones reports whether a failed activity of this kind destroys a drone.
func (k ActivityKind) RisksDrones() bool {
	switch k {
	case KindCombat:
		return true
	case KindGather, KindBuild, KindTrade:
		return false
	}
	return false
}

// Reaction weight bounds.
const (
	MinReaction = 0.5
	MaxReaction = 2.0
)

// Agent is one simulated user.
type Agent struct {
	ID   AgentID `json:"id" yaml:"id"`
	Name string  `json:"name" yaml:"name"`
	Tier Tier    `json:"tier" yaml:"tier"`

	// Economy (RP)
	Balance int64 `json:"balance" yaml:"balance"`
	Earned  int64 `json:"earned" yaml:"earned"`
	Spent   int64 `json:"spent" yaml:"spent"`

	// Drones
	Drones       int `json:"drones" yaml:"drones"`
	MaxDrones    int `json:"max_drones" yaml:"max_drones"`
	DronesGained int `json:"drones_gained" yaml:"drones_gained"`
	DronesLost   int `json:"drones_lost" yaml:"drones_lost"`

	// Concurrency
	Running       int `json:"running" yaml:"running"`
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// Behavior
	Preferences   []ActivityKind    `json:"preferences" yaml:"preferences"`
	Reaction      [NumKinds]float64 `json:"reaction" yaml:"reaction"`
	CooldownUntil uint64            `json:"cooldown_until" yaml:"cooldown_until"`

	// History
	Started       int   `json:"started" yaml:"started"`
	Succeeded     int   `json:"succeeded" yaml:"succeeded"`
	Failed        int   `json:"failed" yaml:"failed"`
	BonusReceived int64 `json:"bonus_received" yaml:"bonus_received"`

	// Metadata
	JoinedTick uint64 `json:"joined_tick" yaml:"joined_tick"`
	LastSeen   uint64 `json:"last_seen" yaml:"last_seen"`
}

// IsOnline reports whether the agent was seen within timeout ticks of tick.
func (a *Agent) IsOnline(tick, timeout uint64) bool {
	if tick < a.LastSeen {
		return true
	}
	return tick-a.LastSeen < timeout
}

// Touch marks the agent as seen at tick.
func (a *Agent) Touch(tick uint64) {
	if tick > a.LastSeen {
		a.LastSeen = tick
	}
}

// IsIdle reports whether the agent has no running activity.
func (a *Agent) IsIdle() bool {
	return a.Running == 0
}

// HasCapacity reports whether the agent may start another activity.
func (a *Agent) HasCapacity() bool {
	return a.Running < a.MaxConcurrent
}

// CanAfford reports whether the balance covers cost.
func (a *Agent) CanAfford(cost int64) bool {
	return cost >= 0 && a.Balance >= cost
}

// Debit removes cost from the balance. Returns false (and changes nothing)
// when the balance is insufficient.
func (a *Agent) Debit(cost int64) bool {
	if !a.CanAfford(cost) {
		return false
	}
	a.Balance -= cost
	a.Spent += cost
	return true
}

// Credit adds earned RP.
func (a *Agent) Credit(amount int64) {
	if amount <= 0 {
		return
	}
	a.Balance += amount
	a.Earned += amount
}

// Penalize removes up to amount RP, floored at zero. Returns the amount taken.
func (a *Agent) Penalize(amount int64) int64 {
	if amount <= 0 || a.Balance == 0 {
		return 0
	}
	if amount > a.Balance {
		amount = a.Balance
	}
	a.Balance -= amount
	return amount
}

// GainDrone adds a drone unless the agent is at its maximum.
func (a *Agent) GainDrone() bool {
	if a.Drones >= a.MaxDrones {
		return false
	}
	a.Drones++
	a.DronesGained++
	return true
}

// LoseDrone destroys one drone if any remain.
func (a *Agent) LoseDrone() bool {
	if a.Drones <= 0 {
		return false
	}
	a.Drones--
	a.DronesLost++
	return true
}

// Nudge scales the reaction weight for kind by factor, clamped to [0.5, 2.0].
func (a *Agent) Nudge(kind ActivityKind, factor float64) {
	w := a.Reaction[kind] * factor
	if w < MinReaction {
		w = MinReaction
	}
	if w > MaxReaction {
		w = MaxReaction
	}
	a.Reaction[kind] = w
}

// SuccessRate returns the agent's fixed success probability for kind.
func (a *Agent) SuccessRate(kind ActivityKind) float64 {
	return TierProfileFor(a.Tier).SuccessRate[kind]
}
