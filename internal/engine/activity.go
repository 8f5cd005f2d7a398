package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/swarm-economy/internal/agents"
	"github.com/talgya/swarm-economy/internal/economy"
)

// ActivityID identifies one activity for the life of a run.
type ActivityID uint64

// ActivityState tracks an activity through its lifecycle.
type ActivityState uint8

const (
	ActivityPending ActivityState = iota
	ActivityRunning
	ActivitySucceeded
	ActivityFailed
)

func (st ActivityState) String() string {
	switch st {
	case ActivityPending:
		return "pending"
	case ActivityRunning:
		return "running"
	case ActivitySucceeded:
		return "succeeded"
	case ActivityFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", uint8(st))
}

// Terminal reports whether the activity has resolved.
func (st ActivityState) Terminal() bool {
	return st == ActivitySucceeded || st == ActivityFailed
}

// Activity is one costed unit of work bound to an agent.
type Activity struct {
	ID              ActivityID          `json:"id"`
	AgentID         agents.AgentID      `json:"agent_id"`
	Kind            agents.ActivityKind `json:"kind"`
	Ticks           int                 `json:"ticks"`
	Remaining       int                 `json:"remaining"`
	Cost            int64               `json:"cost"`
	StartTick       uint64              `json:"start_tick"`
	StartMultiplier float64             `json:"start_multiplier"`
	State           ActivityState       `json:"state"`
}

// Progress returns the completed fraction in [0, 1].
func (a *Activity) Progress() float64 {
	if a.Ticks <= 0 {
		return 1
	}
	return float64(a.Ticks-a.Remaining) / float64(a.Ticks)
}

// Start refusals. Only ErrUnknownAgent indicates a fault; the rest are the
// normal outcome of an agent that cannot act right now.
var (
	ErrUnknownAgent        = errors.New("unknown agent")
	ErrAtCapacity          = errors.New("agent at concurrency cap")
	ErrCoolingDown         = errors.New("agent cooling down")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// offer is a planned start, resolved against the roster later in the tick.
type offer struct {
	agent agents.AgentID
	kind  agents.ActivityKind
	ticks int
}

// QuoteCost returns what an activity of kind would cost right now.
func (s *Simulation) QuoteCost(kind agents.ActivityKind, ticks int) int64 {
	price := s.Cfg.Derived.Prices.For(kind)
	return int64(economy.Cost(price.BaseCost, s.Multiplier.Value, ticks))
}

// StartActivity charges agent id for a new activity and adds it to the active
// set. On any error the agent is left untouched.
func (s *Simulation) StartActivity(tick uint64, id agents.AgentID, kind agents.ActivityKind, ticks int) (*Activity, error) {
	ag, ok := s.Roster.Get(id)
	if !ok {
		return nil, fmt.Errorf("start %s for agent %d: %w", kind, id, ErrUnknownAgent)
	}
	if !ag.HasCapacity() {
		return nil, ErrAtCapacity
	}
	if tick < ag.CooldownUntil {
		return nil, ErrCoolingDown
	}
	if ticks < 1 {
		ticks = 1
	}

	cost := s.QuoteCost(kind, ticks)
	if !ag.Debit(cost) {
		return nil, ErrInsufficientBalance
	}

	ag.Running++
	ag.Started++
	ag.CooldownUntil = tick + s.Cfg.Agent.CooldownTicks
	ag.Touch(tick)

	s.nextActivityID++
	act := &Activity{
		ID:              s.nextActivityID,
		AgentID:         id,
		Kind:            kind,
		Ticks:           ticks,
		Remaining:       ticks,
		Cost:            cost,
		StartTick:       tick,
		StartMultiplier: s.Multiplier.Value,
		State:           ActivityRunning,
	}
	s.Active = append(s.Active, act)
	s.Stats.ActivitiesStarted++
	s.Stats.RPSpent += cost

	if bonus, ok := s.Stillness.ClaimBonus(id); ok {
		ag.Balance += bonus
		ag.BonusReceived += bonus
		s.Stats.BonusPaid += bonus
		slog.Debug("breach bonus paid", "tick", tick, "agent", ag.Name, "bonus", bonus, "remaining", s.Stillness.BonusLeft)
	}
	return act, nil
}

// advanceActivities moves every running activity one tick forward and
// resolves those that finish. Activities whose agent has left are dropped.
func (s *Simulation) advanceActivities(tick uint64) {
	kept := s.Active[:0]
	for _, act := range s.Active {
		ag, ok := s.Roster.Get(act.AgentID)
		if !ok {
			s.Stats.ActivitiesOrphaned++
			continue
		}
		act.Remaining--
		if act.Remaining > 0 {
			kept = append(kept, act)
			continue
		}
		s.resolve(tick, act, ag)
	}
	clear(s.Active[len(kept):])
	s.Active = kept
}

func (s *Simulation) resolve(tick uint64, act *Activity, ag *agents.Agent) {
	act.Remaining = 0
	ag.Running--
	ag.Touch(tick)

	if !s.Rng.Chance(ag.SuccessRate(act.Kind)) {
		act.State = ActivityFailed
		ag.Failed++
		s.Stats.ActivitiesFailed++
		if act.Kind.RisksDrones() && ag.LoseDrone() {
			s.Stats.DroneDeaths++
		}
		return
	}

	act.State = ActivitySucceeded
	ag.Succeeded++
	s.Stats.ActivitiesSucceeded++

	mult := s.Cfg.Derived.RewardTiming.Pick(act.StartMultiplier, s.Multiplier.Value)
	reward := int64(economy.Reward(s.Cfg.Derived.Prices.For(act.Kind).BaseReward, mult))
	ag.Credit(reward)
	s.Stats.RPEarned += reward

	if act.Kind.YieldsDrones() && s.Rng.Chance(s.Cfg.Activity.DroneGrantChance) && ag.GainDrone() {
		s.Stats.DronesGained++
	}
}

// planStarts decides which agents are offered new work this tick. The kind
// is drawn first and its reaction weight scales the start chance, so world
// events change how often agents act as well as what they pick. Offers are
// executed after the population step, so some may name agents that left.
func (s *Simulation) planStarts(tick uint64) []offer {
	chance := s.Cfg.Activity.StartChance * s.Demand.At(tick)
	if chance <= 0 {
		return nil
	}

	var offers []offer
	for _, ag := range s.Roster.All() {
		if !ag.HasCapacity() || tick < ag.CooldownUntil {
			continue
		}
		kind := s.pickKind(ag)
		if !s.Rng.Chance(chance * ag.Reaction[kind]) {
			continue
		}
		offers = append(offers, offer{
			agent: ag.ID,
			kind:  kind,
			ticks: s.pickTicks(),
		})
	}
	return offers
}

func (s *Simulation) executeStarts(tick uint64, offers []offer) {
	for _, o := range offers {
		_, err := s.StartActivity(tick, o.agent, o.kind, o.ticks)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnknownAgent):
			s.Stats.StaleOffers++
			slog.Debug("discarding stale start offer", "tick", tick, "error", err)
		default:
			s.Stats.StartsRefused++
		}
	}
}

// pickKind weights the agent's preference order by its event reactions.
func (s *Simulation) pickKind(ag *agents.Agent) agents.ActivityKind {
	prefs := ag.Preferences
	if len(prefs) == 0 {
		prefs = agents.AllKinds[:]
	}
	weights := make([]float64, len(prefs))
	for i, k := range prefs {
		weights[i] = ag.Reaction[k] * float64(len(prefs)-i)
	}
	idx := s.Rng.Weighted(weights)
	if idx < 0 {
		return prefs[0]
	}
	return prefs[idx]
}

func (s *Simulation) pickTicks() int {
	maxTicks := s.Cfg.Activity.MaxTicks
	if maxTicks < 2 || s.Rng.Chance(s.Cfg.Activity.SingleTickChance) {
		return 1
	}
	return s.Rng.Between(2, maxTicks)
}
