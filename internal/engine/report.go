package engine

import (
	"sort"
	"time"

	"github.com/talgya/swarm-economy/internal/economy"
)

// Report is the end-of-run record written to disk.
type Report struct {
	RunID     string    `yaml:"run_id" json:"run_id"`
	Mode      string    `yaml:"mode" json:"mode"`
	Seed      int64     `yaml:"seed" json:"seed"`
	StartedAt time.Time `yaml:"started_at" json:"started_at"`
	StoppedAt time.Time `yaml:"stopped_at" json:"stopped_at"`

	Day        int     `yaml:"day" json:"day"`
	Tick       uint64  `yaml:"tick" json:"tick"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	Population PopulationTotals `yaml:"population" json:"population"`
	Stats      SimStats         `yaml:"stats" json:"stats"`

	EconomyHistory  []economy.Cycle `yaml:"economy_history" json:"economy_history"`
	Events          []Event         `yaml:"events" json:"events"`
	RecoveryHistory []RecoveryEvent `yaml:"recovery_history" json:"recovery_history"`
	DailySnapshots  []DailySnapshot `yaml:"daily_snapshots" json:"daily_snapshots"`
	Agents          []AgentSummary  `yaml:"agents" json:"agents"`
}

// PopulationTotals summarizes population movement over the run.
type PopulationTotals struct {
	Final       int     `yaml:"final" json:"final"`
	Online      int     `yaml:"online" json:"online"`
	Peak        int     `yaml:"peak" json:"peak"`
	TotalJoined int     `yaml:"total_joined" json:"total_joined"`
	TotalLeft   int     `yaml:"total_left" json:"total_left"`
	JoinRate    float64 `yaml:"join_rate" json:"join_rate"`
	LeaveRate   float64 `yaml:"leave_rate" json:"leave_rate"`
}

// AgentSummary is one agent's row in the report.
type AgentSummary struct {
	ID           uint64 `csv:"id" yaml:"id" json:"id"`
	Name         string `csv:"name" yaml:"name" json:"name"`
	Tier         string `csv:"tier" yaml:"tier" json:"tier"`
	Online       bool   `csv:"online" yaml:"online" json:"online"`
	Balance      int64  `csv:"balance" yaml:"balance" json:"balance"`
	Earned       int64  `csv:"earned" yaml:"earned" json:"earned"`
	Spent        int64  `csv:"spent" yaml:"spent" json:"spent"`
	Bonus        int64  `csv:"bonus" yaml:"bonus" json:"bonus"`
	Drones       int    `csv:"drones" yaml:"drones" json:"drones"`
	DronesGained int    `csv:"drones_gained" yaml:"drones_gained" json:"drones_gained"`
	DronesLost   int    `csv:"drones_lost" yaml:"drones_lost" json:"drones_lost"`
	Started      int    `csv:"started" yaml:"started" json:"started"`
	Succeeded    int    `csv:"succeeded" yaml:"succeeded" json:"succeeded"`
	Failed       int    `csv:"failed" yaml:"failed" json:"failed"`
	Running      int    `csv:"running" yaml:"running" json:"running"`
	JoinedTick   uint64 `csv:"joined_tick" yaml:"joined_tick" json:"joined_tick"`
}

// BuildReport captures the full run state. Must run on the tick loop, or
// after it has stopped.
func (s *Simulation) BuildReport(startedAt, stoppedAt time.Time) *Report {
	tick := s.LastTick
	online, total := s.Census(tick)

	r := &Report{
		RunID:      s.RunID,
		Mode:       s.Cfg.Derived.Mode.Name,
		Seed:       s.Rng.Seed(),
		StartedAt:  startedAt,
		StoppedAt:  stoppedAt,
		Day:        s.Days.Day,
		Tick:       tick,
		Multiplier: s.Multiplier.Value,
		Population: PopulationTotals{
			Final:       total,
			Online:      online,
			Peak:        s.Population.Peak,
			TotalJoined: s.Population.TotalJoined,
			TotalLeft:   s.Population.TotalLeft,
			JoinRate:    s.Population.JoinRate,
			LeaveRate:   s.Population.LeaveRate,
		},
		Stats:           s.Stats,
		EconomyHistory:  append([]economy.Cycle(nil), s.EconomyHistory...),
		Events:          append([]Event(nil), s.Events...),
		RecoveryHistory: append([]RecoveryEvent(nil), s.Recovery.History...),
		DailySnapshots:  append([]DailySnapshot(nil), s.Days.Snapshots...),
	}
	if s.Recovery.Active != nil {
		r.RecoveryHistory = append(r.RecoveryHistory, *s.Recovery.Active)
	}

	timeout := s.Cfg.Derived.OfflineTimeoutTicks
	for _, a := range s.Roster.All() {
		r.Agents = append(r.Agents, AgentSummary{
			ID:           uint64(a.ID),
			Name:         a.Name,
			Tier:         a.Tier.String(),
			Online:       a.IsOnline(tick, timeout),
			Balance:      a.Balance,
			Earned:       a.Earned,
			Spent:        a.Spent,
			Bonus:        a.BonusReceived,
			Drones:       a.Drones,
			DronesGained: a.DronesGained,
			DronesLost:   a.DronesLost,
			Started:      a.Started,
			Succeeded:    a.Succeeded,
			Failed:       a.Failed,
			Running:      a.Running,
			JoinedTick:   a.JoinedTick,
		})
	}
	sort.Slice(r.Agents, func(i, j int) bool { return r.Agents[i].ID < r.Agents[j].ID })
	return r
}
