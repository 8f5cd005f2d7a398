package config

import (
	"fmt"
	"strings"
)

// SecondsPerDay is the length of a simulated day in simulated seconds.
const SecondsPerDay = 86400

// Mode is a time-scale preset. It fixes how many ticks make a simulated day,
// how often the status snapshot prints, and how fast the loop is paced.
type Mode struct {
	Name           string  `yaml:"name" json:"name"`
	TicksPerDay    uint64  `yaml:"ticks_per_day" json:"ticks_per_day"`
	StatusEvery    uint64  `yaml:"status_every" json:"status_every"`
	TicksPerSecond float64 `yaml:"ticks_per_second" json:"ticks_per_second"` // 0 = unpaced
}

// Built-in modes.
var (
	ModeRealTime = Mode{Name: "real_time", TicksPerDay: 86400, StatusEvery: 60, TicksPerSecond: 1}
	ModeFast     = Mode{Name: "fast", TicksPerDay: 8640, StatusEvery: 100, TicksPerSecond: 100}
	ModeDaily    = Mode{Name: "daily", TicksPerDay: 86400, StatusEvery: 3600}
	ModeWeekly   = Mode{Name: "weekly", TicksPerDay: 604800, StatusEvery: 25200}
	ModeMonthly  = Mode{Name: "monthly", TicksPerDay: 2592000, StatusEvery: 108000}
)

// Modes lists the built-in modes in menu order.
var Modes = []Mode{ModeRealTime, ModeFast, ModeDaily, ModeWeekly, ModeMonthly}

// ParseMode resolves a mode by name or 1-based menu index.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	for i, m := range Modes {
		if s == m.Name || s == fmt.Sprint(i+1) {
			return m, nil
		}
	}
	if s == "realtime" {
		return ModeRealTime, nil
	}
	return Mode{}, fmt.Errorf("unknown mode %q", s)
}

// SecondsPerTick returns how many simulated seconds one tick represents.
func (m Mode) SecondsPerTick() float64 {
	if m.TicksPerDay == 0 {
		return 1
	}
	return float64(SecondsPerDay) / float64(m.TicksPerDay)
}

// TicksFor converts a simulated duration in seconds to a tick count,
// rounded up and never below one.
func (m Mode) TicksFor(seconds float64) uint64 {
	if seconds <= 0 {
		return 1
	}
	spt := m.SecondsPerTick()
	ticks := uint64(seconds / spt)
	if float64(ticks)*spt < seconds {
		ticks++
	}
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}
