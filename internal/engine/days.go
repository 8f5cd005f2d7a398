package engine

import "fmt"

// DailySnapshot captures the cumulative counters at a day rollover.
type DailySnapshot struct {
	Day                 int     `csv:"day" json:"day" yaml:"day"`
	Tick                uint64  `csv:"tick" json:"tick" yaml:"tick"`
	ActivitiesStarted   int     `csv:"activities_started" json:"activities_started" yaml:"activities_started"`
	ActivitiesCompleted int     `csv:"activities_completed" json:"activities_completed" yaml:"activities_completed"`
	ActivitiesSucceeded int     `csv:"activities_succeeded" json:"activities_succeeded" yaml:"activities_succeeded"`
	RPEarned            int64   `csv:"rp_earned" json:"rp_earned" yaml:"rp_earned"`
	RPSpent             int64   `csv:"rp_spent" json:"rp_spent" yaml:"rp_spent"`
	EventsFired         int     `csv:"events_fired" json:"events_fired" yaml:"events_fired"`
	Joined              int     `csv:"joined" json:"joined" yaml:"joined"`
	Left                int     `csv:"left" json:"left" yaml:"left"`
	Multiplier          float64 `csv:"multiplier" json:"multiplier" yaml:"multiplier"`
	Online              int     `csv:"online" json:"online" yaml:"online"`
	Total               int     `csv:"total" json:"total" yaml:"total"`
}

// DayTracker turns the tick counter into simulated days. It only reports;
// nothing in the simulation waits on it.
type DayTracker struct {
	TicksPerDay  uint64
	Day          int    // Completed days
	Offset       uint64 // Ticks since the last rollover
	LastRollover uint64
	Snapshots    []DailySnapshot
}

// NewDayTracker creates a tracker at day 0.
func NewDayTracker(ticksPerDay uint64) *DayTracker {
	if ticksPerDay == 0 {
		ticksPerDay = 1
	}
	return &DayTracker{TicksPerDay: ticksPerDay}
}

// OnTick counts one tick. When a full day has elapsed since the last
// rollover it advances the day, resets the offset, and returns the snapshot
// built by collect.
func (d *DayTracker) OnTick(tick uint64, collect func(day int, tick uint64) DailySnapshot) *DailySnapshot {
	d.Offset++
	if d.Offset < d.TicksPerDay {
		return nil
	}
	d.Day++
	d.Offset = 0
	d.LastRollover = tick

	snap := collect(d.Day, tick)
	d.Snapshots = append(d.Snapshots, snap)
	return &snap
}

// Progress returns the fraction of the current day elapsed.
func (d *DayTracker) Progress() float64 {
	return float64(d.Offset) / float64(d.TicksPerDay)
}

// Clock formats the current position as "Day N, HH:MM" in simulated time.
func (d *DayTracker) Clock() string {
	return SimTime(d.Day, d.Offset, d.TicksPerDay)
}

// SimTime formats offset ticks into day as a wall-clock time of that day.
func SimTime(day int, offset, ticksPerDay uint64) string {
	if ticksPerDay == 0 {
		ticksPerDay = 1
	}
	secs := offset * 86400 / ticksPerDay
	return fmt.Sprintf("Day %d, %02d:%02d", day+1, secs/3600, secs%3600/60)
}
