// Package engine provides the tick-based simulation loop and the systems it
// drives: activities, population, recovery events, world events, and days.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// hook is a callback that runs every n ticks.
type hook struct {
	every uint64
	fn    func(tick uint64)
}

// Engine drives the simulation forward. It owns the tick counter and is the
// only caller of the tick callbacks, so everything they touch is
// single-writer.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Wall time per tick; 0 runs unpaced
	MaxTicks uint64        // Stop after this tick; 0 = unbounded

	// OnTick runs every tick. Periodic hooks run after it.
	OnTick func(tick uint64)
	hooks  []hook

	running atomic.Bool
	stop    atomic.Bool
}

// NewEngine creates an engine paced at ticksPerSecond (0 = unpaced).
func NewEngine(ticksPerSecond float64) *Engine {
	e := &Engine{}
	if ticksPerSecond > 0 {
		e.Interval = time.Duration(float64(time.Second) / ticksPerSecond)
	}
	return e
}

// Every registers fn to run on every tick divisible by n.
func (e *Engine) Every(n uint64, fn func(tick uint64)) {
	if n == 0 || fn == nil {
		return
	}
	e.hooks = append(e.hooks, hook{every: n, fn: fn})
}

// Running reports whether Run is executing.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run advances ticks until ctx is cancelled, Stop is called, or MaxTicks is
// reached. Cancellation is only observed between ticks, so the tick in
// progress always completes.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "interval", e.Interval)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for !e.stop.Load() && ctx.Err() == nil {
		if e.MaxTicks > 0 && e.Tick >= e.MaxTicks {
			slog.Info("tick limit reached", "max_ticks", e.MaxTicks)
			break
		}

		start := time.Now()
		e.Step()

		if e.Interval <= 0 {
			continue
		}
		// Sleep for the remainder of the tick interval.
		wait := e.Interval - time.Since(start)
		if wait <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop asks Run to halt after the current tick.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Step advances the simulation by exactly one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}
	for _, h := range e.hooks {
		if e.Tick%h.every == 0 {
			h.fn(e.Tick)
		}
	}
}
