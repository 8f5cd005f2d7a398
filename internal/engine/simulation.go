// Simulation ties together all systems and advances them one tick at a time.
package engine

import (
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/talgya/swarm-economy/internal/agents"
	"github.com/talgya/swarm-economy/internal/config"
	"github.com/talgya/swarm-economy/internal/economy"
	"github.com/talgya/swarm-economy/internal/entropy"
)

// Simulation holds the complete engine state. Every system reads and writes
// through it; nothing lives in package globals. Only the tick loop may
// mutate it.
type Simulation struct {
	RunID string
	Cfg   *config.Config

	Rng    *entropy.Rand
	Oracle *entropy.Oracle // nil unless true randomness is configured

	Roster  *agents.Roster
	Spawner *agents.Spawner
	Active  []*Activity

	Multiplier *economy.Multiplier
	Population *PopulationManager
	Recovery   *RecoveryController
	Injector   *EventInjector
	Stillness  *StillnessDetector
	Days       *DayTracker
	Demand     *DemandWave

	Events         []Event         // Recent events, bounded by events.history_limit
	EconomyHistory []economy.Cycle // Recent multiplier cycles, bounded by economy.history_limit
	Stats          SimStats
	LastTick       uint64

	nextActivityID ActivityID
	published      atomic.Pointer[Status]
}

// SimStats tracks cumulative counters over the whole run.
type SimStats struct {
	ActivitiesStarted   int   `yaml:"activities_started" json:"activities_started"`
	ActivitiesSucceeded int   `yaml:"activities_succeeded" json:"activities_succeeded"`
	ActivitiesFailed    int   `yaml:"activities_failed" json:"activities_failed"`
	ActivitiesOrphaned  int   `yaml:"activities_orphaned" json:"activities_orphaned"`
	StartsRefused       int   `yaml:"starts_refused" json:"starts_refused"`
	StaleOffers         int   `yaml:"stale_offers" json:"stale_offers"`
	RPEarned            int64 `yaml:"rp_earned" json:"rp_earned"`
	RPSpent             int64 `yaml:"rp_spent" json:"rp_spent"`
	BonusPaid           int64 `yaml:"bonus_paid" json:"bonus_paid"`
	PenaltyTaken        int64 `yaml:"penalty_taken" json:"penalty_taken"`
	DronesGained        int   `yaml:"drones_gained" json:"drones_gained"`
	DroneDeaths         int   `yaml:"drone_deaths" json:"drone_deaths"`
	WorldEvents         int   `yaml:"world_events" json:"world_events"`
	RecoveryEvents      int   `yaml:"recovery_events" json:"recovery_events"`
	RecoverySucceeded   int   `yaml:"recovery_succeeded" json:"recovery_succeeded"`
	RecoveryBackfired   int   `yaml:"recovery_backfired" json:"recovery_backfired"`
	Breaches            int   `yaml:"breaches" json:"breaches"`
	Joined              int   `yaml:"joined" json:"joined"`
	Left                int   `yaml:"left" json:"left"`
}

// EventsFired is the total of world, recovery, and breach events.
func (st SimStats) EventsFired() int {
	return st.WorldEvents + st.RecoveryEvents + st.Breaches
}

// ActivitiesCompleted counts activities that reached a terminal state.
func (st SimStats) ActivitiesCompleted() int {
	return st.ActivitiesSucceeded + st.ActivitiesFailed
}

// NewSimulation builds an engine from cfg and seeds the initial population.
func NewSimulation(cfg *config.Config) *Simulation {
	rng := entropy.New(cfg.Seed)

	spawner := agents.NewSpawner(rng.Fork(300), agents.SpawnConfig{
		MaxConcurrent: cfg.Agent.MaxConcurrent,
		MaxDrones:     cfg.Agent.MaxDrones,
	})

	s := &Simulation{
		RunID:      uuid.NewString(),
		Cfg:        cfg,
		Rng:        rng,
		Oracle:     entropy.NewOracle(cfg.RandomOrgKey),
		Roster:     agents.NewRoster(cfg.Population.MaxUsers),
		Spawner:    spawner,
		Multiplier: economy.NewMultiplier(cfg.Economy.MinMultiplier, cfg.Economy.MaxMultiplier, cfg.Economy.RecomputeEvery),
		Population: NewPopulationManager(cfg.Population),
		Recovery:   NewRecoveryController(cfg.Recovery),
		Injector:   NewEventInjector(cfg.Events.WorldEventChance, cfg.Events.ReactionFactor),
		Stillness:  NewStillnessDetector(cfg.Events.Stillness),
		Days:       NewDayTracker(cfg.Derived.Mode.TicksPerDay),
		Demand:     NewDemandWave(cfg.Seed+500, cfg.Activity.DemandWave.Amplitude, cfg.Activity.DemandWave.Period),
	}

	s.Population.Seed(s, cfg.Population.Initial)
	s.Population.Record(0, s.Roster.Len())

	slog.Info("simulation ready",
		"run_id", s.RunID,
		"mode", cfg.Derived.Mode.Name,
		"ticks_per_day", cfg.Derived.Mode.TicksPerDay,
		"agents", s.Roster.Len(),
		"seed", cfg.Seed,
	)
	return s
}

// Step advances every system by one tick. It is the engine's OnTick.
func (s *Simulation) Step(tick uint64) {
	s.LastTick = tick

	s.Recovery.Expire(s, tick)
	s.advanceActivities(tick)

	offers := s.planStarts(tick)
	joins, leaves := s.Population.Step(s, tick)
	if joins > 0 || leaves > 0 {
		slog.Debug("population change", "tick", tick, "joins", joins, "leaves", leaves, "population", s.Roster.Len())
	}
	s.executeStarts(tick, offers)

	if s.Multiplier.Due(tick) {
		s.recordCycle(s.Multiplier.Apply(tick, s.economySnapshot()))
	}

	s.Injector.Maybe(s, tick)
	s.Stillness.Observe(s, tick)

	if tick%s.Cfg.Recovery.CheckEvery == 0 {
		s.Population.Record(tick, s.Roster.Len())
		if trig, ok := s.Recovery.CheckTriggers(s.populationState(tick)); ok {
			s.Recovery.Fire(s, trig, tick)
		}
	}

	if snap := s.Days.OnTick(tick, s.dailySnapshot); snap != nil {
		s.logDailyReport(*snap)
	}
}

// economySnapshot gathers the multiplier inputs from the live population.
func (s *Simulation) economySnapshot() economy.Snapshot {
	snap := economy.Snapshot{CumulativeDeaths: s.Stats.DroneDeaths}
	for _, a := range s.Roster.All() {
		snap.DronesAlive += a.Drones
		if a.Running > 0 {
			snap.ActiveAgents++
		}
	}
	return snap
}

func (s *Simulation) recordCycle(c economy.Cycle) {
	s.EconomyHistory = append(s.EconomyHistory, c)
	if limit := s.Cfg.Economy.HistoryLimit; len(s.EconomyHistory) > limit {
		s.EconomyHistory = s.EconomyHistory[len(s.EconomyHistory)-limit:]
	}
}

// populationState summarizes the roster for the recovery triggers.
func (s *Simulation) populationState(tick uint64) PopulationState {
	st := PopulationState{
		Tick:       tick,
		Population: s.Roster.Len(),
		Samples:    s.Population.Samples(),
	}
	for _, a := range s.Roster.All() {
		if a.Tier.IsTop() {
			st.TopTier++
		}
		if a.Running > 0 {
			st.Engaged++
		}
	}
	return st
}

// Census counts online and total agents at tick.
func (s *Simulation) Census(tick uint64) (online, total int) {
	timeout := s.Cfg.Derived.OfflineTimeoutTicks
	for _, a := range s.Roster.All() {
		if a.IsOnline(tick, timeout) {
			online++
		}
	}
	return online, s.Roster.Len()
}

func (s *Simulation) dailySnapshot(day int, tick uint64) DailySnapshot {
	online, total := s.Census(tick)
	return DailySnapshot{
		Day:                 day,
		Tick:                tick,
		ActivitiesStarted:   s.Stats.ActivitiesStarted,
		ActivitiesCompleted: s.Stats.ActivitiesCompleted(),
		ActivitiesSucceeded: s.Stats.ActivitiesSucceeded,
		RPEarned:            s.Stats.RPEarned,
		RPSpent:             s.Stats.RPSpent,
		EventsFired:         s.Stats.EventsFired(),
		Joined:              s.Stats.Joined,
		Left:                s.Stats.Left,
		Multiplier:          s.Multiplier.Value,
		Online:              online,
		Total:               total,
	}
}

func (s *Simulation) logDailyReport(d DailySnapshot) {
	slog.Info("daily report",
		"day", d.Day,
		"tick", d.Tick,
		"agents", d.Total,
		"online", d.Online,
		"multiplier", d.Multiplier,
		"started", d.ActivitiesStarted,
		"completed", d.ActivitiesCompleted,
		"rp_earned", d.RPEarned,
		"rp_spent", d.RPSpent,
		"events", d.EventsFired,
	)
}
