// Recovery events: trend triggers and time-boxed join/leave rate changes.
package engine

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/swarm-economy/internal/config"
)

// Trigger names the adverse population trend that fired a recovery event.
type Trigger uint8

const (
	TriggerPopulationCrash Trigger = iota
	TriggerSustainedDecline
	TriggerPopulationFloor
	TriggerEliteShortage
	TriggerEngagementSlump
)

// NumTriggers is the number of trigger kinds.
const NumTriggers = 5

func (t Trigger) String() string {
	switch t {
	case TriggerPopulationCrash:
		return "population_crash"
	case TriggerSustainedDecline:
		return "sustained_decline"
	case TriggerPopulationFloor:
		return "population_floor"
	case TriggerEliteShortage:
		return "elite_shortage"
	case TriggerEngagementSlump:
		return "engagement_slump"
	}
	return fmt.Sprintf("trigger(%d)", uint8(t))
}

// MarshalText lets reports carry the trigger name.
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// RecoveryPlan is the scripted response to one trigger.
type RecoveryPlan struct {
	Name             string
	SuccessChance    float64
	Boost            float64 // Join rate gain on success
	Reduction        float64 // Leave rate cut on success
	Duration         uint64
	Backfire         float64 // Join cut and leave gain on failure
	BackfireDuration uint64
}

var recoveryPlans = [NumTriggers]RecoveryPlan{
	TriggerPopulationCrash: {
		Name: "Emergency Airdrop", SuccessChance: 0.6,
		Boost: 0.8, Reduction: 0.5, Duration: 300,
		Backfire: 0.3, BackfireDuration: 150,
	},
	TriggerSustainedDecline: {
		Name: "Referral Drive", SuccessChance: 0.7,
		Boost: 0.5, Reduction: 0.3, Duration: 500,
		Backfire: 0.2, BackfireDuration: 200,
	},
	TriggerPopulationFloor: {
		Name: "Open Season", SuccessChance: 0.8,
		Boost: 1.0, Reduction: 0.6, Duration: 400,
		Backfire: 0.25, BackfireDuration: 150,
	},
	TriggerEliteShortage: {
		Name: "Masters Tournament", SuccessChance: 0.5,
		Boost: 0.4, Reduction: 0.4, Duration: 250,
		Backfire: 0.3, BackfireDuration: 120,
	},
	TriggerEngagementSlump: {
		Name: "Double Reward Weekend", SuccessChance: 0.65,
		Boost: 0.3, Reduction: 0.5, Duration: 200,
		Backfire: 0.2, BackfireDuration: 100,
	},
}

// PlanFor returns the scripted response to t.
func PlanFor(t Trigger) RecoveryPlan {
	if int(t) >= NumTriggers {
		return recoveryPlans[TriggerEngagementSlump]
	}
	return recoveryPlans[t]
}

// RecoveryEvent is one fired recovery event. The outcome is drawn once when
// it fires.
type RecoveryEvent struct {
	Trigger       Trigger `json:"trigger" yaml:"trigger"`
	Name          string  `json:"name" yaml:"name"`
	Succeeded     bool    `json:"succeeded" yaml:"succeeded"`
	StartTick     uint64  `json:"start_tick" yaml:"start_tick"`
	ExpiresAt     uint64  `json:"expires_at" yaml:"expires_at"`
	JoinRate      float64 `json:"join_rate" yaml:"join_rate"`
	LeaveRate     float64 `json:"leave_rate" yaml:"leave_rate"`
	BaselineJoin  float64 `json:"baseline_join" yaml:"baseline_join"`
	BaselineLeave float64 `json:"baseline_leave" yaml:"baseline_leave"`
}

// Duration returns the event length in ticks.
func (e RecoveryEvent) Duration() uint64 {
	return e.ExpiresAt - e.StartTick
}

// PopulationState is what the triggers look at.
type PopulationState struct {
	Tick       uint64
	Population int
	TopTier    int
	Engaged    int // Agents running at least one activity
	Samples    []PopulationSample
}

// RecoveryController watches population trends and runs at most one
// recovery event at a time.
type RecoveryController struct {
	cfg config.RecoveryConfig

	Active        *RecoveryEvent
	CooldownUntil uint64
	History       []RecoveryEvent
}

// NewRecoveryController creates an idle controller.
func NewRecoveryController(cfg config.RecoveryConfig) *RecoveryController {
	return &RecoveryController{cfg: cfg}
}

// CheckTriggers returns the first trigger whose threshold st crosses.
// Nothing fires while an event is active or during the cooldown after one.
func (rc *RecoveryController) CheckTriggers(st PopulationState) (Trigger, bool) {
	if rc.Active != nil || st.Tick < rc.CooldownUntil {
		return 0, false
	}

	switch {
	case st.Population < rc.cfg.HardFloor:
		return TriggerPopulationFloor, true
	case rc.crashed(st):
		return TriggerPopulationCrash, true
	case st.Population < rc.cfg.SoftFloor && rc.declining(st):
		return TriggerSustainedDecline, true
	case st.TopTier < rc.cfg.MinTopTier:
		return TriggerEliteShortage, true
	case st.Engaged < rc.cfg.MinEngaged:
		return TriggerEngagementSlump, true
	}
	return 0, false
}

// crashed reports a drop of at least CrashDrop agents from the highest
// sample inside the crash window.
func (rc *RecoveryController) crashed(st PopulationState) bool {
	if rc.cfg.CrashDrop <= 0 {
		return false
	}
	peak := st.Population
	for _, smp := range st.Samples {
		if st.Tick-smp.Tick > rc.cfg.CrashWindow {
			continue
		}
		peak = max(peak, smp.Population)
	}
	return peak-st.Population >= rc.cfg.CrashDrop
}

// declining fits a line through the trailing samples and compares its slope
// (agents per tick) with the configured threshold.
func (rc *RecoveryController) declining(st PopulationState) bool {
	if len(st.Samples) < 3 {
		return false
	}
	xs := make([]float64, len(st.Samples))
	ys := make([]float64, len(st.Samples))
	for i, smp := range st.Samples {
		xs[i] = float64(smp.Tick)
		ys[i] = float64(smp.Population)
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope <= rc.cfg.DeclineSlope
}

// Fire starts the recovery event for trig and applies its rate change.
func (rc *RecoveryController) Fire(s *Simulation, trig Trigger, tick uint64) RecoveryEvent {
	plan := PlanFor(trig)
	pm := s.Population
	roll := s.Oracle.Float(s.Rng)

	ev := RecoveryEvent{
		Trigger:       trig,
		Name:          plan.Name,
		Succeeded:     roll < plan.SuccessChance,
		StartTick:     tick,
		BaselineJoin:  pm.JoinRate,
		BaselineLeave: pm.LeaveRate,
	}
	if ev.Succeeded {
		pm.SetRates(pm.JoinRate*(1+plan.Boost), pm.LeaveRate*(1-plan.Reduction))
		ev.ExpiresAt = tick + plan.Duration
	} else {
		pm.SetRates(pm.JoinRate*(1-plan.Backfire), pm.LeaveRate*(1+plan.Backfire))
		ev.ExpiresAt = tick + plan.BackfireDuration
	}
	ev.JoinRate = pm.JoinRate
	ev.LeaveRate = pm.LeaveRate
	rc.Active = &ev

	s.Stats.RecoveryEvents++
	outcome := "succeeded"
	if ev.Succeeded {
		s.Stats.RecoverySucceeded++
	} else {
		s.Stats.RecoveryBackfired++
		outcome = "backfired"
	}

	s.EmitEvent(Event{
		Tick:        tick,
		Category:    CategoryRecovery,
		Description: fmt.Sprintf("%s (%s) %s for %d ticks", plan.Name, trig, outcome, ev.Duration()),
	})
	slog.Info("recovery event fired",
		"tick", tick,
		"trigger", trig,
		"event", plan.Name,
		"outcome", outcome,
		"join_rate", ev.JoinRate,
		"leave_rate", ev.LeaveRate,
		"expires_at", ev.ExpiresAt,
	)
	return ev
}

// Expire ends the active event once its expiry tick is reached, restoring
// the rates it replaced.
func (rc *RecoveryController) Expire(s *Simulation, tick uint64) {
	ev := rc.Active
	if ev == nil || tick < ev.ExpiresAt {
		return
	}

	s.Population.JoinRate = ev.BaselineJoin
	s.Population.LeaveRate = ev.BaselineLeave
	rc.History = append(rc.History, *ev)
	rc.Active = nil
	rc.CooldownUntil = tick + rc.cfg.CooldownTicks

	s.EmitEvent(Event{
		Tick:        tick,
		Category:    CategoryRecovery,
		Description: fmt.Sprintf("%s ended", ev.Name),
	})
	slog.Info("recovery event expired", "tick", tick, "event", ev.Name, "join_rate", ev.BaselineJoin, "leave_rate", ev.BaselineLeave)
}
