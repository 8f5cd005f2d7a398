package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/talgya/swarm-economy/internal/agents"
	"github.com/talgya/swarm-economy/internal/config"
	"github.com/talgya/swarm-economy/internal/economy"
)

// testConfig returns the defaults with edit applied and derived values
// recomputed.
func testConfig(t *testing.T, edit func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.Default()
	if edit != nil {
		edit(cfg)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return cfg
}

// quiet disables every source of randomness that acts on its own.
func quiet(c *config.Config) {
	c.Activity.StartChance = 0
	c.Population.ChangeChance = 0
	c.Events.WorldEventChance = 0
}

func runTicks(s *Simulation, from, to uint64) {
	for tick := from; tick <= to; tick++ {
		s.Step(tick)
	}
}

func TestEngineStepAndHooks(t *testing.T) {
	e := NewEngine(0)
	var ticks, hooks []uint64
	e.OnTick = func(tick uint64) { ticks = append(ticks, tick) }
	e.Every(3, func(tick uint64) { hooks = append(hooks, tick) })
	e.Every(0, func(uint64) { t.Error("zero-period hook must not run") })

	for i := 0; i < 9; i++ {
		e.Step()
	}
	if e.Tick != 9 || len(ticks) != 9 || ticks[0] != 1 {
		t.Fatalf("tick = %d, callbacks = %v", e.Tick, ticks)
	}
	if len(hooks) != 3 || hooks[2] != 9 {
		t.Errorf("hooks ran at %v, want [3 6 9]", hooks)
	}
}

func TestEngineRunStopsAtMaxTicks(t *testing.T) {
	e := NewEngine(0)
	e.MaxTicks = 50
	e.Run(context.Background())
	if e.Tick != 50 {
		t.Errorf("tick = %d, want 50", e.Tick)
	}
	if e.Running() {
		t.Error("engine still marked running")
	}
}

func TestEngineRunFinishesTickOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewEngine(1000)
	e.OnTick = func(tick uint64) {
		if tick == 5 {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if e.Tick != 5 {
		t.Errorf("tick = %d, want 5", e.Tick)
	}
}

func TestEngineStop(t *testing.T) {
	e := NewEngine(0)
	e.OnTick = func(tick uint64) {
		if tick == 7 {
			e.Stop()
		}
	}
	e.Run(context.Background())
	if e.Tick != 7 {
		t.Errorf("tick = %d, want 7", e.Tick)
	}
}

func TestInvariantsAcrossRandomRun(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Seed = 7
		c.Activity.StartChance = 0.6
		c.Population.ChangeChance = 0.4
		c.Events.WorldEventChance = 0.05
		c.Agent.CooldownTicks = 0
	})
	s := NewSimulation(cfg)

	for tick := uint64(1); tick <= 3000; tick++ {
		s.Step(tick)

		running := 0
		for _, a := range s.Roster.All() {
			if a.Running < 0 || a.Running > a.MaxConcurrent {
				t.Fatalf("tick %d: agent %d running %d, cap %d", tick, a.ID, a.Running, a.MaxConcurrent)
			}
			if a.Balance < 0 {
				t.Fatalf("tick %d: agent %d balance %d", tick, a.ID, a.Balance)
			}
			if a.Drones < 0 || a.Drones > a.MaxDrones {
				t.Fatalf("tick %d: agent %d drones %d, max %d", tick, a.ID, a.Drones, a.MaxDrones)
			}
			for _, w := range a.Reaction {
				if w < agents.MinReaction || w > agents.MaxReaction {
					t.Fatalf("tick %d: agent %d reaction %v out of range", tick, a.ID, w)
				}
			}
			running += a.Running
		}

		owned := 0
		for _, act := range s.Active {
			if _, ok := s.Roster.Get(act.AgentID); ok {
				owned++
			}
		}
		if owned != running {
			t.Fatalf("tick %d: %d owned activities, agents report %d running", tick, owned, running)
		}

		m := s.Multiplier.Value
		if m < economy.DefaultMinMultiplier || m > economy.DefaultMaxMultiplier {
			t.Fatalf("tick %d: multiplier %v out of range", tick, m)
		}
		if open := s.Stats.RecoveryEvents - len(s.Recovery.History); open < 0 || open > 1 {
			t.Fatalf("tick %d: %d recovery events open", tick, open)
		}
	}

	if s.Stats.ActivitiesStarted == 0 || s.Stats.ActivitiesCompleted() == 0 {
		t.Errorf("no activity over the run: %+v", s.Stats)
	}
}

func TestSameSeedSameRun(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Activity.StartChance = 0.3
		c.Population.ChangeChance = 0.2
	})
	a := NewSimulation(cfg)
	b := NewSimulation(cfg)
	runTicks(a, 1, 2000)
	runTicks(b, 1, 2000)

	if a.Stats != b.Stats {
		t.Errorf("stats diverged:\n%+v\n%+v", a.Stats, b.Stats)
	}
	if a.Roster.Len() != b.Roster.Len() || a.Multiplier.Value != b.Multiplier.Value {
		t.Error("population or multiplier diverged")
	}
}

func TestFastModeSingleDay(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Mode = "fast"
		c.Population.Initial = 100
	})
	s := NewSimulation(cfg)

	e := NewEngine(0)
	e.OnTick = s.Step
	for i := 0; i < 8640; i++ {
		e.Step()
	}

	if got := len(s.Days.Snapshots); got != 1 {
		t.Fatalf("snapshots = %d, want 1", got)
	}
	snap := s.Days.Snapshots[0]
	if snap.Day != 1 || snap.Tick != 8640 {
		t.Errorf("snapshot day=%d tick=%d, want 1/8640", snap.Day, snap.Tick)
	}
	if s.Days.Offset != 0 {
		t.Errorf("offset = %d, want 0", s.Days.Offset)
	}
}

func TestDayTrackerRolloverIsExact(t *testing.T) {
	d := NewDayTracker(10)
	collect := func(day int, tick uint64) DailySnapshot { return DailySnapshot{Day: day, Tick: tick} }

	var rolled []uint64
	for tick := uint64(1); tick <= 35; tick++ {
		if snap := d.OnTick(tick, collect); snap != nil {
			rolled = append(rolled, snap.Tick)
			if snap.Day != len(rolled) {
				t.Errorf("tick %d: day %d, want %d", tick, snap.Day, len(rolled))
			}
			if d.Offset != 0 {
				t.Errorf("tick %d: offset %d after rollover", tick, d.Offset)
			}
		}
	}
	if len(rolled) != 3 || rolled[0] != 10 || rolled[1] != 20 || rolled[2] != 30 {
		t.Errorf("rollovers at %v, want [10 20 30]", rolled)
	}
	if d.Offset != 5 || d.Progress() != 0.5 {
		t.Errorf("offset = %d progress = %v", d.Offset, d.Progress())
	}
}

func TestSimTime(t *testing.T) {
	if got := SimTime(0, 4320, 8640); got != "Day 1, 12:00" {
		t.Errorf("SimTime = %q", got)
	}
	if got := SimTime(2, 0, 86400); got != "Day 3, 00:00" {
		t.Errorf("SimTime = %q", got)
	}
}

func TestStartRefusedWhenBalanceShort(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 0
	})
	cfg.Derived.Prices[agents.KindGather] = economy.Price{BaseCost: 100, BaseReward: 10}
	s := NewSimulation(cfg)
	s.Multiplier.Value = 1.0

	a := s.Spawner.SpawnTier(0, agents.TierNovice)
	a.Balance = 50
	s.Roster.Add(a)

	if got := s.QuoteCost(agents.KindGather, 1); got != 100 {
		t.Fatalf("quote = %d, want 100", got)
	}
	_, err := s.StartActivity(1, a.ID, agents.KindGather, 1)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if a.Balance != 50 || a.Running != 0 || len(s.Active) != 0 {
		t.Errorf("refused start changed state: balance=%d running=%d active=%d", a.Balance, a.Running, len(s.Active))
	}
}

func TestStartRefusals(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 0
		c.Agent.MaxConcurrent = 2
		c.Agent.CooldownTicks = 0
	})
	s := NewSimulation(cfg)
	a := s.Spawner.SpawnTier(0, agents.TierMaster)
	a.Balance = 1_000_000
	s.Roster.Add(a)

	for i := 0; i < 2; i++ {
		if _, err := s.StartActivity(1, a.ID, agents.KindTrade, 3); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if _, err := s.StartActivity(1, a.ID, agents.KindTrade, 1); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("err = %v, want ErrAtCapacity", err)
	}
	if _, err := s.StartActivity(1, 9999, agents.KindTrade, 1); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("err = %v, want ErrUnknownAgent", err)
	}

	b := s.Spawner.SpawnTier(0, agents.TierMaster)
	b.Balance = 1_000_000
	b.CooldownUntil = 10
	s.Roster.Add(b)
	if _, err := s.StartActivity(5, b.ID, agents.KindTrade, 1); !errors.Is(err, ErrCoolingDown) {
		t.Errorf("err = %v, want ErrCoolingDown", err)
	}
}

func TestMultiTickActivityLifecycle(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 0
	})
	s := NewSimulation(cfg)
	a := s.Spawner.SpawnTier(0, agents.TierMaster)
	a.Balance = 10_000
	s.Roster.Add(a)
	before := a.Balance

	act, err := s.StartActivity(1, a.ID, agents.KindBuild, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := int64(economy.Cost(s.Cfg.Derived.Prices.For(agents.KindBuild).BaseCost, act.StartMultiplier, 3))
	if act.Cost != want || a.Balance != before-want {
		t.Fatalf("cost = %d, balance = %d, want cost %d", act.Cost, a.Balance, want)
	}

	s.advanceActivities(2)
	s.advanceActivities(3)
	if act.Remaining != 1 || act.State != ActivityRunning || len(s.Active) != 1 {
		t.Fatalf("after 2 ticks: remaining=%d state=%s", act.Remaining, act.State)
	}
	s.advanceActivities(4)
	if !act.State.Terminal() || len(s.Active) != 0 || a.Running != 0 {
		t.Fatalf("not resolved: state=%s active=%d running=%d", act.State, len(s.Active), a.Running)
	}
	if a.Succeeded+a.Failed != 1 {
		t.Errorf("succeeded=%d failed=%d", a.Succeeded, a.Failed)
	}
}

func TestRewardTiming(t *testing.T) {
	tests := []struct {
		timing string
		want   int64
	}{
		{"start", 30},
		{"completion", 60},
	}
	for _, tt := range tests {
		t.Run(tt.timing, func(t *testing.T) {
			cfg := testConfig(t, func(c *config.Config) {
				quiet(c)
				c.Population.Initial = 0
				c.Economy.RewardTiming = tt.timing
			})
			s := NewSimulation(cfg)
			s.Multiplier.Value = 1.0

			a := s.Spawner.SpawnTier(0, agents.TierMaster)
			a.Balance = 1000
			s.Roster.Add(a)
			act, err := s.StartActivity(1, a.ID, agents.KindGather, 1)
			if err != nil {
				t.Fatal(err)
			}

			s.Multiplier.Value = 2.0
			for act.State != ActivitySucceeded {
				// Retry until the success draw lands; masters gather at 0.95.
				s.advanceActivities(2)
				if act.State == ActivityFailed {
					a.CooldownUntil = 0
					if act, err = s.StartActivity(1, a.ID, agents.KindGather, 1); err != nil {
						t.Fatal(err)
					}
					act.StartMultiplier = 1.0
				}
			}
			if a.Earned != tt.want {
				t.Errorf("earned = %d, want %d", a.Earned, tt.want)
			}
		})
	}
}

func TestStaleOfferDiscarded(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 5
	})
	s := NewSimulation(cfg)
	gone := s.Roster.At(0).ID

	offers := []offer{{agent: gone, kind: agents.KindGather, ticks: 1}}
	s.Roster.Remove(gone)
	s.executeStarts(1, offers)

	if s.Stats.StaleOffers != 1 || len(s.Active) != 0 {
		t.Errorf("stale offers = %d, active = %d", s.Stats.StaleOffers, len(s.Active))
	}
}

func TestOrphanedActivityDropped(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 0
	})
	s := NewSimulation(cfg)
	a := s.Spawner.SpawnTier(0, agents.TierAdept)
	a.Balance = 1000
	s.Roster.Add(a)
	if _, err := s.StartActivity(1, a.ID, agents.KindCombat, 3); err != nil {
		t.Fatal(err)
	}

	s.Roster.Remove(a.ID)
	s.advanceActivities(2)
	if len(s.Active) != 0 || s.Stats.ActivitiesOrphaned != 1 {
		t.Errorf("active = %d, orphaned = %d", len(s.Active), s.Stats.ActivitiesOrphaned)
	}
}

func TestStillnessBreach(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 20
		c.Agent.CooldownTicks = 0
	})
	s := NewSimulation(cfg)

	before := make(map[agents.AgentID]int64)
	for _, a := range s.Roster.All() {
		before[a.ID] = a.Balance
	}

	runTicks(s, 1, 49)
	if s.Stats.Breaches != 0 {
		t.Fatalf("breach after %d idle ticks", s.Stillness.IdleStreak)
	}
	s.Step(50)
	if s.Stats.Breaches != 1 {
		t.Fatalf("breaches = %d at tick 50, want 1", s.Stats.Breaches)
	}
	for _, a := range s.Roster.All() {
		want := max(before[a.ID]-1, 0)
		if a.Balance != want {
			t.Errorf("agent %d balance = %d, want %d", a.ID, a.Balance, want)
		}
	}

	runTicks(s, 51, 150)
	if s.Stats.Breaches != 1 {
		t.Fatalf("breaches = %d, want exactly 1 for one idle episode", s.Stats.Breaches)
	}

	for i, a := range s.Roster.All()[:6] {
		a.Balance = 1000
		cost := s.QuoteCost(agents.KindGather, 1)
		if _, err := s.StartActivity(151, a.ID, agents.KindGather, 1); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		wantBonus := int64(25)
		if i == 5 {
			wantBonus = 0
		}
		if a.BonusReceived != wantBonus || a.Balance != 1000-cost+wantBonus {
			t.Errorf("starter %d: bonus = %d, balance = %d", i, a.BonusReceived, a.Balance)
		}
	}
	if s.Stats.BonusPaid != 125 || s.Stillness.BonusLeft != 0 {
		t.Errorf("bonus paid = %d, left = %d", s.Stats.BonusPaid, s.Stillness.BonusLeft)
	}
}

func TestStillnessRearmsAfterActivity(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 3
		c.Agent.CooldownTicks = 0
		c.Events.Stillness.IdleTicks = 5
	})
	s := NewSimulation(cfg)
	runTicks(s, 1, 5)
	if s.Stats.Breaches != 1 {
		t.Fatalf("breaches = %d, want 1", s.Stats.Breaches)
	}

	a := s.Roster.At(0)
	a.Balance = 1000
	if _, err := s.StartActivity(6, a.ID, agents.KindGather, 1); err != nil {
		t.Fatal(err)
	}
	s.Stillness.Observe(s, 6)
	if s.Stillness.Fired || s.Stillness.IdleStreak != 0 {
		t.Fatalf("episode not reset: %+v", s.Stillness)
	}

	runTicks(s, 7, 20)
	if s.Stats.Breaches != 2 {
		t.Errorf("breaches = %d, want 2 after a second idle episode", s.Stats.Breaches)
	}
}

func TestDiagnosticTickBreach(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 4
		c.Events.Stillness.DiagnosticTick = 3
	})
	s := NewSimulation(cfg)
	runTicks(s, 1, 3)
	if s.Stats.Breaches != 1 {
		t.Errorf("breaches = %d at diagnostic tick, want 1", s.Stats.Breaches)
	}
}

func TestBreachBonusOncePerAgent(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 3
		c.Agent.CooldownTicks = 0
		c.Events.Stillness.IdleTicks = 5
	})
	s := NewSimulation(cfg)
	runTicks(s, 1, 5)
	if s.Stats.Breaches != 1 {
		t.Fatalf("breaches = %d, want 1", s.Stats.Breaches)
	}

	a, b := s.Roster.At(0), s.Roster.At(1)
	a.Balance, b.Balance = 1000, 1000
	for i := 0; i < 3; i++ {
		if _, err := s.StartActivity(6, a.ID, agents.KindGather, 1); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if a.BonusReceived != 25 || s.Stillness.BonusLeft != 4 {
		t.Fatalf("repeat starter: bonus = %d, pool left = %d; want 25, 4", a.BonusReceived, s.Stillness.BonusLeft)
	}

	if _, err := s.StartActivity(6, b.ID, agents.KindGather, 1); err != nil {
		t.Fatal(err)
	}
	if b.BonusReceived != 25 || s.Stillness.BonusLeft != 3 {
		t.Errorf("second agent: bonus = %d, pool left = %d; want 25, 3", b.BonusReceived, s.Stillness.BonusLeft)
	}

	s.Stillness.Breach(s, 7)
	if _, err := s.StartActivity(7, a.ID, agents.KindGather, 1); err != nil {
		t.Fatal(err)
	}
	if a.BonusReceived != 50 {
		t.Errorf("bonus after a new breach = %d, want 50", a.BonusReceived)
	}
}

func TestWorldEventsShiftStartRate(t *testing.T) {
	starts := func(polarity Polarity) int {
		cfg := testConfig(t, func(c *config.Config) {
			quiet(c)
			c.Population.Initial = 100
			c.Activity.StartChance = 0.2
			c.Activity.DemandWave.Amplitude = 0
			c.Agent.CooldownTicks = 0
		})
		s := NewSimulation(cfg)
		for _, a := range s.Roster.All() {
			a.Balance = 1_000_000
		}
		for i := 0; i < 10; i++ {
			for _, we := range worldEvents {
				if we.Polarity == polarity {
					s.Injector.Apply(s, 0, we)
				}
			}
		}
		runTicks(s, 1, 200)
		return s.Stats.ActivitiesStarted
	}

	adverse, beneficial := starts(Adverse), starts(Beneficial)
	if adverse == 0 || adverse*2 >= beneficial {
		t.Errorf("starts after adverse events = %d, after beneficial = %d; want adverse well below", adverse, beneficial)
	}
}

func TestRecoveryRestoresBaseline(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.BaseJoinRate = 0.37
		c.Population.BaseLeaveRate = 0.61
	})
	s := NewSimulation(cfg)
	rc := s.Recovery
	pm := s.Population

	ev := rc.Fire(s, TriggerPopulationCrash, 10)
	if rc.Active == nil {
		t.Fatal("no active event after Fire")
	}
	if pm.JoinRate == 0.37 && pm.LeaveRate == 0.61 {
		t.Fatal("rates unchanged by recovery event")
	}
	if ev.Succeeded && (pm.JoinRate <= 0.37 || pm.LeaveRate >= 0.61) {
		t.Errorf("successful event moved rates the wrong way: %s", pm)
	}
	if !ev.Succeeded && (pm.JoinRate >= 0.37 || pm.LeaveRate <= 0.61) {
		t.Errorf("backfire moved rates the wrong way: %s", pm)
	}

	if _, ok := rc.CheckTriggers(PopulationState{Tick: 20, Population: 0}); ok {
		t.Error("trigger accepted while an event is active")
	}

	rc.Expire(s, ev.ExpiresAt-1)
	if rc.Active == nil {
		t.Fatal("expired a tick early")
	}
	rc.Expire(s, ev.ExpiresAt)
	if rc.Active != nil || len(rc.History) != 1 {
		t.Fatalf("not expired at %d", ev.ExpiresAt)
	}
	if pm.JoinRate != 0.37 || pm.LeaveRate != 0.61 {
		t.Errorf("rates = %v/%v, want exact baseline 0.37/0.61", pm.JoinRate, pm.LeaveRate)
	}
	if _, ok := rc.CheckTriggers(PopulationState{Tick: ev.ExpiresAt + 1, Population: 0}); ok {
		t.Error("trigger accepted during cooldown")
	}
}

func TestCheckTriggers(t *testing.T) {
	cfg := config.Default().Recovery
	healthy := func(tick uint64) PopulationState {
		return PopulationState{Tick: tick, Population: 200, TopTier: 10, Engaged: 20}
	}

	declining := make([]PopulationSample, 10)
	for i := range declining {
		declining[i] = PopulationSample{Tick: uint64(i * 100), Population: 79 - i*5}
	}

	tests := []struct {
		name  string
		state func() PopulationState
		want  Trigger
		fire  bool
	}{
		{"healthy", func() PopulationState { return healthy(1000) }, 0, false},
		{"hard floor", func() PopulationState {
			st := healthy(1000)
			st.Population = 10
			return st
		}, TriggerPopulationFloor, true},
		{"crash", func() PopulationState {
			st := healthy(1000)
			st.Samples = []PopulationSample{{Tick: 950, Population: 230}, {Tick: 990, Population: 220}}
			return st
		}, TriggerPopulationCrash, true},
		{"old drop ignored", func() PopulationState {
			st := healthy(1000)
			st.Samples = []PopulationSample{{Tick: 100, Population: 400}}
			return st
		}, 0, false},
		{"sustained decline", func() PopulationState {
			return PopulationState{Tick: 900, Population: 34, TopTier: 10, Engaged: 20, Samples: declining}
		}, TriggerSustainedDecline, true},
		{"elite shortage", func() PopulationState {
			st := healthy(1000)
			st.TopTier = 1
			return st
		}, TriggerEliteShortage, true},
		{"engagement slump", func() PopulationState {
			st := healthy(1000)
			st.Engaged = 0
			return st
		}, TriggerEngagementSlump, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewRecoveryController(cfg)
			got, ok := rc.CheckTriggers(tt.state())
			if ok != tt.fire || (ok && got != tt.want) {
				t.Errorf("CheckTriggers = %s, %v; want %s, %v", got, ok, tt.want, tt.fire)
			}
		})
	}
}

func TestRecoveryPlans(t *testing.T) {
	for i := 0; i < NumTriggers; i++ {
		p := PlanFor(Trigger(i))
		if p.Name == "" || p.SuccessChance < 0.5 || p.SuccessChance > 0.8 {
			t.Errorf("%s: plan %+v", Trigger(i), p)
		}
		if p.BackfireDuration > p.Duration {
			t.Errorf("%s: backfire outlasts success", Trigger(i))
		}
	}
}

func TestLeavesPreferOffline(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 40
		c.Population.OfflinePreference = 1
	})
	s := NewSimulation(cfg)

	const now = 10_000
	for i, a := range s.Roster.All() {
		if i%2 == 0 {
			a.Touch(now)
		}
	}
	for i := 0; i < 20; i++ {
		if !s.Population.leave(s, now) {
			t.Fatal("leave refused")
		}
	}

	online, total := s.Census(now)
	if total != 20 || online != 20 {
		t.Errorf("after 20 leaves: total=%d online=%d, want 20/20", total, online)
	}
	if s.Population.TotalLeft != 20 || s.Stats.Left != 20 {
		t.Errorf("left counters = %d/%d", s.Population.TotalLeft, s.Stats.Left)
	}
}

func TestJoinBiasBands(t *testing.T) {
	pm := NewPopulationManager(config.Default().Population)
	tests := []struct {
		pop  int
		want float64
	}{
		{10, biasBelowMin},
		{100, biasInBand},
		{1000, biasAboveMax},
	}
	for _, tt := range tests {
		if got := pm.joinBias(tt.pop); got != tt.want {
			t.Errorf("joinBias(%d) = %v, want %v", tt.pop, got, tt.want)
		}
	}
}

func TestPopulationRatesGateChurn(t *testing.T) {
	tests := []struct {
		name        string
		join, leave float64
		wantJoins   bool
		wantLeaves  bool
	}{
		{"frozen", 0, 0, false, false},
		{"joins only", 1, 0, true, false},
		{"leaves only", 0, 1, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, func(c *config.Config) {
				quiet(c)
				c.Population.Initial = 100
				c.Population.ChangeChance = 1
				c.Population.BaseJoinRate = tt.join
				c.Population.BaseLeaveRate = tt.leave
			})
			s := NewSimulation(cfg)
			runTicks(s, 1, 50)

			pm := s.Population
			if (pm.TotalJoined > 0) != tt.wantJoins || (pm.TotalLeft > 0) != tt.wantLeaves {
				t.Errorf("joined = %d, left = %d", pm.TotalJoined, pm.TotalLeft)
			}
		})
	}
}

func TestRecoveryBoostRaisesJoins(t *testing.T) {
	joined := func(rate float64) int {
		cfg := testConfig(t, func(c *config.Config) {
			quiet(c)
			c.Population.Initial = 100
			c.Population.ChangeChance = 1
			c.Population.BaseLeaveRate = 0
		})
		s := NewSimulation(cfg)
		s.Population.SetRates(rate, 0)
		for tick := uint64(1); tick <= 100; tick++ {
			s.Population.Step(s, tick)
		}
		return s.Population.TotalJoined
	}
	low, high := joined(0.2), joined(0.9)
	if low*2 >= high {
		t.Errorf("joins at rate 0.2 = %d, at 0.9 = %d; want the higher rate to churn more", low, high)
	}
}

func TestPopulationChurnTracksTotals(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.ChangeChance = 1
		c.Population.Initial = 60
	})
	s := NewSimulation(cfg)
	runTicks(s, 1, 200)

	pm := s.Population
	if got := 60 + pm.TotalJoined - pm.TotalLeft; got != s.Roster.Len() {
		t.Errorf("60 + %d - %d = %d, roster has %d", pm.TotalJoined, pm.TotalLeft, got, s.Roster.Len())
	}
	if pm.Peak < s.Roster.Len() || pm.Peak < 60 {
		t.Errorf("peak = %d", pm.Peak)
	}
	if len(pm.Samples()) > cfg.Population.TrendWindow {
		t.Errorf("samples = %d, window %d", len(pm.Samples()), cfg.Population.TrendWindow)
	}
}

func TestWorldEventNudgesReactions(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Population.Initial = 10
	})
	s := NewSimulation(cfg)
	ei := NewEventInjector(1, 1.5)

	ei.Apply(s, 1, WorldEvent{Description: "up", Kind: agents.KindTrade, Polarity: Beneficial})
	for _, a := range s.Roster.All() {
		if a.Reaction[agents.KindTrade] != 1.5 {
			t.Fatalf("reaction = %v, want 1.5", a.Reaction[agents.KindTrade])
		}
	}
	for i := 0; i < 5; i++ {
		ei.Apply(s, 2, WorldEvent{Description: "down", Kind: agents.KindTrade, Polarity: Adverse})
	}
	for _, a := range s.Roster.All() {
		if a.Reaction[agents.KindTrade] != agents.MinReaction {
			t.Fatalf("reaction = %v, want floor %v", a.Reaction[agents.KindTrade], agents.MinReaction)
		}
	}
	if s.Stats.WorldEvents != 6 || len(s.Events) != 6 {
		t.Errorf("world events = %d, history = %d", s.Stats.WorldEvents, len(s.Events))
	}
}

func TestEventHistoryBounded(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		quiet(c)
		c.Events.HistoryLimit = 3
	})
	s := NewSimulation(cfg)
	for i := 1; i <= 5; i++ {
		s.EmitEvent(Event{Tick: uint64(i), Category: CategoryWorld})
	}
	if len(s.Events) != 3 || s.Events[0].Tick != 3 {
		t.Errorf("history = %+v", s.Events)
	}
	recent := s.RecentEvents(2)
	if len(recent) != 2 || recent[1].Tick != 5 {
		t.Errorf("recent = %+v", recent)
	}
}

func TestDemandWave(t *testing.T) {
	flat := NewDemandWave(1, 0, 100)
	if flat.At(12345) != 1 {
		t.Error("zero amplitude must be flat")
	}
	w := NewDemandWave(1, 0.25, 100)
	for tick := uint64(0); tick < 5000; tick += 7 {
		v := w.At(tick)
		if v < 0.75 || v > 1.25 {
			t.Fatalf("At(%d) = %v outside [0.75, 1.25]", tick, v)
		}
	}
}

func TestStatusAndRender(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Activity.StartChance = 0.5
	})
	s := NewSimulation(cfg)
	if s.Published() != nil {
		t.Fatal("status published before first tick")
	}
	runTicks(s, 1, 100)

	st := s.PublishStatus(100)
	if s.Published() != st {
		t.Fatal("Published does not return the latest status")
	}
	if st.Population != s.Roster.Len() || st.Online+st.Offline != st.Population {
		t.Errorf("population = %d online = %d offline = %d", st.Population, st.Online, st.Offline)
	}
	if len(st.Preview) > cfg.Status.Preview || len(st.Tiers) != agents.NumTiers {
		t.Errorf("preview = %d tiers = %d", len(st.Preview), len(st.Tiers))
	}
	counted := 0
	for _, ts := range st.Tiers {
		counted += ts.Count
	}
	if counted != st.Population {
		t.Errorf("tier counts sum to %d, want %d", counted, st.Population)
	}

	var buf bytes.Buffer
	if err := RenderStatus(&buf, st); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Multiplier", "Population", "Active activities", "Tiers:"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		frac float64
		want string
	}{
		{0, "[----]"},
		{0.5, "[##--]"},
		{1, "[####]"},
		{2, "[####]"},
		{-1, "[----]"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.frac, 4); got != tt.want {
			t.Errorf("progressBar(%v) = %q, want %q", tt.frac, got, tt.want)
		}
	}
}

func TestBuildReport(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Mode = "fast"
		c.Activity.StartChance = 0.2
	})
	s := NewSimulation(cfg)
	runTicks(s, 1, 9000)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := s.BuildReport(start, start.Add(time.Minute))
	if r.Tick != 9000 || r.Day != 1 || len(r.DailySnapshots) != 1 {
		t.Errorf("tick=%d day=%d snapshots=%d", r.Tick, r.Day, len(r.DailySnapshots))
	}
	if len(r.Agents) != s.Roster.Len() {
		t.Errorf("agents = %d, roster %d", len(r.Agents), s.Roster.Len())
	}
	for i := 1; i < len(r.Agents); i++ {
		if r.Agents[i-1].ID >= r.Agents[i].ID {
			t.Fatal("agents not sorted by id")
		}
	}
	if len(r.EconomyHistory) == 0 || r.RunID != s.RunID || r.Seed != cfg.Seed {
		t.Errorf("report header incomplete: %+v", r.Population)
	}
}
