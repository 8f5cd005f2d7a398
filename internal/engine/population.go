// Population dynamics: seeding, churn bursts, and trend sampling.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/swarm-economy/internal/agents"
	"github.com/talgya/swarm-economy/internal/config"
)

// Join bias by population band.
const (
	biasBelowMin = 0.8
	biasAboveMax = 0.2
	biasInBand   = 0.5
)

// PopulationSample is one recorded population count.
type PopulationSample struct {
	Tick       uint64 `json:"tick" yaml:"tick"`
	Population int    `json:"population" yaml:"population"`
}

// PopulationManager adds and removes agents. Its join and leave rates are
// owned by the recovery controller while an event is active.
type PopulationManager struct {
	cfg config.PopulationConfig

	JoinRate      float64
	LeaveRate     float64
	BaseJoinRate  float64
	BaseLeaveRate float64

	TotalJoined int
	TotalLeft   int
	Peak        int

	samples []PopulationSample
}

// NewPopulationManager creates a manager at the configured base rates.
func NewPopulationManager(cfg config.PopulationConfig) *PopulationManager {
	return &PopulationManager{
		cfg:           cfg,
		JoinRate:      cfg.BaseJoinRate,
		LeaveRate:     cfg.BaseLeaveRate,
		BaseJoinRate:  cfg.BaseJoinRate,
		BaseLeaveRate: cfg.BaseLeaveRate,
	}
}

// Seed creates the starting population. Seeded agents do not count as joins.
func (pm *PopulationManager) Seed(s *Simulation, n int) {
	for _, a := range s.Spawner.SpawnPopulation(n, 0) {
		s.Roster.Add(a)
	}
	pm.observePeak(s.Roster.Len())
}

// Step applies this tick's churn burst, if any. Each change is routed to a
// join or a leave by the population band, then happens with the live join or
// leave rate.
func (pm *PopulationManager) Step(s *Simulation, tick uint64) (joins, leaves int) {
	if !s.Rng.Chance(pm.cfg.ChangeChance) {
		return 0, 0
	}

	changes := s.Rng.Between(1, pm.cfg.MaxChanges)
	for i := 0; i < changes; i++ {
		if s.Rng.Chance(pm.joinBias(s.Roster.Len())) {
			if s.Rng.Chance(pm.JoinRate) {
				pm.join(s, tick)
				joins++
			}
			continue
		}
		if s.Rng.Chance(pm.LeaveRate) && pm.leave(s, tick) {
			leaves++
		}
	}
	return joins, leaves
}

// joinBias is the share of changes routed to joins at population pop.
func (pm *PopulationManager) joinBias(pop int) float64 {
	switch {
	case pop < pm.cfg.MinUsers:
		return biasBelowMin
	case pop > pm.cfg.MaxUsers:
		return biasAboveMax
	}
	return biasInBand
}

func (pm *PopulationManager) join(s *Simulation, tick uint64) {
	a := s.Spawner.Spawn(tick)
	s.Roster.Add(a)
	pm.TotalJoined++
	s.Stats.Joined++
	pm.observePeak(s.Roster.Len())
	slog.Debug("agent joined", "tick", tick, "agent", a.Name, "tier", a.Tier)
}

func (pm *PopulationManager) leave(s *Simulation, tick uint64) bool {
	id, ok := pm.pickLeaver(s, tick)
	if !ok {
		return false
	}
	a, ok := s.Roster.Remove(id)
	if !ok {
		return false
	}
	pm.TotalLeft++
	s.Stats.Left++
	slog.Debug("agent left", "tick", tick, "agent", a.Name, "running", a.Running)
	return true
}

// pickLeaver prefers offline agents at the configured rate.
func (pm *PopulationManager) pickLeaver(s *Simulation, tick uint64) (agents.AgentID, bool) {
	if s.Roster.Len() == 0 {
		return 0, false
	}

	timeout := s.Cfg.Derived.OfflineTimeoutTicks
	var online, offline []agents.AgentID
	for _, a := range s.Roster.All() {
		if a.IsOnline(tick, timeout) {
			online = append(online, a.ID)
		} else {
			offline = append(offline, a.ID)
		}
	}

	pool := online
	if len(offline) > 0 && (len(online) == 0 || s.Rng.Chance(pm.cfg.OfflinePreference)) {
		pool = offline
	}
	return pool[s.Rng.Intn(len(pool))], true
}

func (pm *PopulationManager) observePeak(pop int) {
	if pop > pm.Peak {
		pm.Peak = pop
	}
}

// Record appends a population sample, keeping the trailing window.
func (pm *PopulationManager) Record(tick uint64, pop int) {
	pm.samples = append(pm.samples, PopulationSample{Tick: tick, Population: pop})
	if len(pm.samples) > pm.cfg.TrendWindow {
		pm.samples = pm.samples[len(pm.samples)-pm.cfg.TrendWindow:]
	}
}

// Samples returns the trailing population window, oldest first.
func (pm *PopulationManager) Samples() []PopulationSample {
	return pm.samples
}

// SetRates overrides the live rates, clamped to [0, 1].
func (pm *PopulationManager) SetRates(join, leave float64) {
	pm.JoinRate = clampRate(join)
	pm.LeaveRate = clampRate(leave)
}

func (pm *PopulationManager) String() string {
	return fmt.Sprintf("join=%.3f leave=%.3f joined=%d left=%d peak=%d",
		pm.JoinRate, pm.LeaveRate, pm.TotalJoined, pm.TotalLeft, pm.Peak)
}

func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
