package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/swarm-economy/internal/agents"
)

// Status is an immutable point-in-time view of the simulation. It is built
// on the tick loop and handed to readers through Published.
type Status struct {
	RunID       string  `json:"run_id"`
	Mode        string  `json:"mode"`
	Tick        uint64  `json:"tick"`
	Day         int     `json:"day"`
	Clock       string  `json:"clock"`
	DayProgress float64 `json:"day_progress"`

	Multiplier float64 `json:"multiplier"`
	Population int     `json:"population"`
	Online     int     `json:"online"`
	Offline    int     `json:"offline"`
	JoinRate   float64 `json:"join_rate"`
	LeaveRate  float64 `json:"leave_rate"`

	ActiveCount int               `json:"active_count"`
	Preview     []ActivityPreview `json:"preview"`
	Tiers       []TierSummary     `json:"tiers"`
	Recent      []Event           `json:"recent_events"`
	Recovery    *RecoveryEvent    `json:"recovery,omitempty"`
	Stats       SimStats          `json:"stats"`

	// Served by their own endpoints.
	DailySnapshots []DailySnapshot `json:"-"`
	Events         []Event         `json:"-"`
	EconomyHistory []EconomyPoint  `json:"-"`
}

// EconomyPoint is one multiplier sample.
type EconomyPoint struct {
	Tick  uint64  `json:"tick"`
	Value float64 `json:"value"`
}

// ActivityPreview is one row of the active activity list.
type ActivityPreview struct {
	ID        ActivityID `json:"id"`
	Agent     string     `json:"agent"`
	Kind      string     `json:"kind"`
	Ticks     int        `json:"ticks"`
	Remaining int        `json:"remaining"`
	Progress  float64    `json:"progress"`
}

// TierSummary aggregates one tier of the population.
type TierSummary struct {
	Tier       string  `json:"tier"`
	Count      int     `json:"count"`
	TotalRP    int64   `json:"total_rp"`
	MeanRP     float64 `json:"mean_rp"`
	StdDevRP   float64 `json:"stddev_rp"`
	Drones     int     `json:"drones"`
	MeanDrones float64 `json:"mean_drones"`
}

// BuildStatus assembles a Status for tick. Must run on the tick loop.
func (s *Simulation) BuildStatus(tick uint64) *Status {
	online, total := s.Census(tick)
	st := &Status{
		RunID:       s.RunID,
		Mode:        s.Cfg.Derived.Mode.Name,
		Tick:        tick,
		Day:         s.Days.Day,
		Clock:       s.Days.Clock(),
		DayProgress: s.Days.Progress(),
		Multiplier:  s.Multiplier.Value,
		Population:  total,
		Online:      online,
		Offline:     total - online,
		JoinRate:    s.Population.JoinRate,
		LeaveRate:   s.Population.LeaveRate,
		ActiveCount: len(s.Active),
		Tiers:       s.tierSummaries(),
		Recent:      s.RecentEvents(s.Cfg.Status.RecentEvents),
		Stats:       s.Stats,

		DailySnapshots: append([]DailySnapshot(nil), s.Days.Snapshots...),
		Events:         append([]Event(nil), s.Events...),
	}
	for _, c := range s.EconomyHistory {
		st.EconomyHistory = append(st.EconomyHistory, EconomyPoint{Tick: c.Tick, Value: c.Value})
	}

	n := min(len(s.Active), s.Cfg.Status.Preview)
	for _, act := range s.Active[:n] {
		name := fmt.Sprintf("#%d", act.AgentID)
		if ag, ok := s.Roster.Get(act.AgentID); ok {
			name = ag.Name
		}
		st.Preview = append(st.Preview, ActivityPreview{
			ID:        act.ID,
			Agent:     name,
			Kind:      act.Kind.String(),
			Ticks:     act.Ticks,
			Remaining: act.Remaining,
			Progress:  act.Progress(),
		})
	}

	if s.Recovery.Active != nil {
		ev := *s.Recovery.Active
		st.Recovery = &ev
	}
	return st
}

func (s *Simulation) tierSummaries() []TierSummary {
	var balances, drones [agents.NumTiers][]float64
	out := make([]TierSummary, agents.NumTiers)
	for _, t := range agents.AllTiers {
		out[t].Tier = t.String()
	}
	for _, a := range s.Roster.All() {
		ts := &out[a.Tier]
		ts.Count++
		ts.TotalRP += a.Balance
		ts.Drones += a.Drones
		balances[a.Tier] = append(balances[a.Tier], float64(a.Balance))
		drones[a.Tier] = append(drones[a.Tier], float64(a.Drones))
	}
	for t := range out {
		if out[t].Count == 0 {
			continue
		}
		out[t].MeanRP = stat.Mean(balances[t], nil)
		out[t].MeanDrones = stat.Mean(drones[t], nil)
		if out[t].Count > 1 {
			out[t].StdDevRP = stat.StdDev(balances[t], nil)
		}
	}
	return out
}

// PublishStatus builds a fresh Status and makes it visible to readers.
func (s *Simulation) PublishStatus(tick uint64) *Status {
	st := s.BuildStatus(tick)
	s.published.Store(st)
	return st
}

// Published returns the last published Status, or nil before the first.
// Safe to call from any goroutine.
func (s *Simulation) Published() *Status {
	return s.published.Load()
}

const barWidth = 20

func progressBar(frac float64, width int) string {
	frac = min(max(frac, 0), 1)
	filled := int(frac*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// RenderStatus writes st as a console snapshot.
func RenderStatus(w io.Writer, st *Status) error {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s | tick %s | %s mode ===\n", st.Clock, humanize.Comma(int64(st.Tick)), st.Mode)
	fmt.Fprintf(&b, "Day progress %s %5.1f%%\n", progressBar(st.DayProgress, barWidth), st.DayProgress*100)
	fmt.Fprintf(&b, "Multiplier   %.3f\n", st.Multiplier)
	fmt.Fprintf(&b, "Population   %d total, %d online, %d offline (join %.2f / leave %.2f)\n",
		st.Population, st.Online, st.Offline, st.JoinRate, st.LeaveRate)
	fmt.Fprintf(&b, "Economy      %s RP earned, %s RP spent, %d drone deaths\n",
		humanize.Comma(st.Stats.RPEarned), humanize.Comma(st.Stats.RPSpent), st.Stats.DroneDeaths)

	fmt.Fprintf(&b, "\nActive activities: %d\n", st.ActiveCount)
	for _, p := range st.Preview {
		fmt.Fprintf(&b, "  %-22s %-7s %s %d/%d\n", p.Agent, p.Kind, progressBar(p.Progress, 10), p.Ticks-p.Remaining, p.Ticks)
	}
	if more := st.ActiveCount - len(st.Preview); more > 0 {
		fmt.Fprintf(&b, "  ... and %d more\n", more)
	}

	b.WriteString("\nTiers:\n")
	for _, t := range st.Tiers {
		if t.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-10s %4d agents  %10s RP (avg %7.1f ± %6.1f)  %4d drones\n",
			t.Tier, t.Count, humanize.Comma(t.TotalRP), t.MeanRP, t.StdDevRP, t.Drones)
	}

	if st.Recovery != nil {
		outcome := "succeeding"
		if !st.Recovery.Succeeded {
			outcome = "backfiring"
		}
		fmt.Fprintf(&b, "\nRecovery: %s (%s) until tick %s\n", st.Recovery.Name, outcome, humanize.Comma(int64(st.Recovery.ExpiresAt)))
	}

	if len(st.Recent) > 0 {
		b.WriteString("\nRecent events:\n")
		for _, e := range st.Recent {
			fmt.Fprintf(&b, "  [%s] %-8s %s\n", humanize.Comma(int64(e.Tick)), e.Category, e.Description)
		}
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
