package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/swarm-economy/internal/agents"
	"github.com/talgya/swarm-economy/internal/config"
)

// EventCategory tags an entry in the event history.
type EventCategory uint8

const (
	CategoryWorld EventCategory = iota
	CategoryRecovery
	CategoryBreach
)

func (c EventCategory) String() string {
	switch c {
	case CategoryWorld:
		return "world"
	case CategoryRecovery:
		return "recovery"
	case CategoryBreach:
		return "breach"
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// MarshalText lets reports carry the category name.
func (c EventCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a category name.
func (c *EventCategory) UnmarshalText(text []byte) error {
	for _, cand := range []EventCategory{CategoryWorld, CategoryRecovery, CategoryBreach} {
		if cand.String() == string(text) {
			*c = cand
			return nil
		}
	}
	return fmt.Errorf("unknown event category %q", text)
}

// Event is a notable occurrence in the simulation.
type Event struct {
	Tick        uint64        `json:"tick" yaml:"tick"`
	Category    EventCategory `json:"category" yaml:"category"`
	Description string        `json:"description" yaml:"description"`
}

// EmitEvent appends to the bounded event history.
func (s *Simulation) EmitEvent(e Event) {
	s.Events = append(s.Events, e)
	if limit := s.Cfg.Events.HistoryLimit; len(s.Events) > limit {
		s.Events = s.Events[len(s.Events)-limit:]
	}
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	if n <= 0 {
		return nil
	}
	start := max(len(s.Events)-n, 0)
	out := make([]Event, len(s.Events)-start)
	copy(out, s.Events[start:])
	return out
}

// Polarity is whether a world event encourages or discourages its activity.
type Polarity uint8

const (
	Beneficial Polarity = iota
	Adverse
)

func (p Polarity) String() string {
	if p == Adverse {
		return "adverse"
	}
	return "beneficial"
}

// WorldEvent is one entry of the world event table.
type WorldEvent struct {
	Description string
	Kind        agents.ActivityKind
	Polarity    Polarity
}

var worldEvents = []WorldEvent{
	{"Solar flare boosts harvest yields", agents.KindGather, Beneficial},
	{"Blight spreads across the gathering fields", agents.KindGather, Adverse},
	{"Construction subsidies announced", agents.KindBuild, Beneficial},
	{"Material shortage stalls construction", agents.KindBuild, Adverse},
	{"Trade caravan arrives at the hub", agents.KindTrade, Beneficial},
	{"Market crash rattles traders", agents.KindTrade, Adverse},
	{"Arena opens for ranked battles", agents.KindCombat, Beneficial},
	{"Ceasefire declared across the frontier", agents.KindCombat, Adverse},
}

// EventInjector fires low-frequency world events that shift agent reactions.
type EventInjector struct {
	Chance float64 // Per-tick probability
	Factor float64 // Reaction multiplier; adverse events divide by it
}

// NewEventInjector creates an injector.
func NewEventInjector(chance, factor float64) *EventInjector {
	if factor < 1 {
		factor = 1
	}
	return &EventInjector{Chance: chance, Factor: factor}
}

// Maybe rolls for a world event at tick and applies it when one fires.
func (ei *EventInjector) Maybe(s *Simulation, tick uint64) (WorldEvent, bool) {
	if !s.Rng.Chance(ei.Chance) {
		return WorldEvent{}, false
	}
	we := worldEvents[s.Rng.Intn(len(worldEvents))]
	ei.Apply(s, tick, we)
	return we, true
}

// Apply nudges every agent's reaction to the event's activity kind.
func (ei *EventInjector) Apply(s *Simulation, tick uint64, we WorldEvent) {
	factor := ei.Factor
	if we.Polarity == Adverse {
		factor = 1 / factor
	}
	for _, a := range s.Roster.All() {
		a.Nudge(we.Kind, factor)
	}

	s.Stats.WorldEvents++
	s.EmitEvent(Event{
		Tick:        tick,
		Category:    CategoryWorld,
		Description: we.Description,
	})
	slog.Info("world event", "tick", tick, "event", we.Description, "kind", we.Kind, "polarity", we.Polarity)
}

// StillnessDetector watches for the whole population sitting idle. After
// IdleTicks consecutive all-idle ticks it fires one entropy breach per idle
// episode; the episode ends when any agent starts working again.
type StillnessDetector struct {
	cfg config.StillnessConfig

	IdleStreak int  // Consecutive all-idle ticks
	Fired      bool // Breach already fired this episode
	BonusLeft  int  // Start bonuses still unclaimed

	paid map[agents.AgentID]bool // Agents already paid since the last breach
}

// NewStillnessDetector creates a detector.
func NewStillnessDetector(cfg config.StillnessConfig) *StillnessDetector {
	return &StillnessDetector{cfg: cfg}
}

// Observe updates the idle streak at tick and breaches when due. The
// diagnostic tick breaches regardless of activity.
func (d *StillnessDetector) Observe(s *Simulation, tick uint64) {
	allIdle := s.Roster.Len() > 0
	for _, a := range s.Roster.All() {
		if !a.IsIdle() {
			allIdle = false
			break
		}
	}

	if allIdle {
		d.IdleStreak++
	} else {
		d.IdleStreak = 0
		d.Fired = false
	}

	diagnostic := d.cfg.DiagnosticTick != 0 && tick == d.cfg.DiagnosticTick
	if diagnostic || (allIdle && !d.Fired && d.IdleStreak >= d.cfg.IdleTicks) {
		d.Breach(s, tick)
		if allIdle {
			d.Fired = true
		}
	}
}

// Breach penalizes every idle agent and arms the start bonus pool.
func (d *StillnessDetector) Breach(s *Simulation, tick uint64) {
	var penalized int
	var taken int64
	for _, a := range s.Roster.All() {
		if !a.IsIdle() {
			continue
		}
		penalized++
		taken += a.Penalize(d.cfg.Penalty)
	}
	d.BonusLeft = d.cfg.BonusSlots
	d.paid = make(map[agents.AgentID]bool, d.BonusLeft)

	s.Stats.Breaches++
	s.Stats.PenaltyTaken += taken
	s.EmitEvent(Event{
		Tick:        tick,
		Category:    CategoryBreach,
		Description: fmt.Sprintf("Entropy breach after %d idle ticks: %d agents drained, %d start bonuses armed", d.IdleStreak, penalized, d.BonusLeft),
	})
	slog.Warn("entropy breach", "tick", tick, "idle_ticks", d.IdleStreak, "penalized", penalized, "rp_taken", taken, "bonus_slots", d.BonusLeft)
}

// ClaimBonus pays agent id one start bonus from the pool. Each agent is paid
// at most once per breach.
func (d *StillnessDetector) ClaimBonus(id agents.AgentID) (int64, bool) {
	if d.BonusLeft <= 0 || d.paid[id] {
		return 0, false
	}
	if d.paid == nil {
		d.paid = make(map[agents.AgentID]bool)
	}
	d.BonusLeft--
	d.paid[id] = true
	return d.cfg.Bonus, true
}
