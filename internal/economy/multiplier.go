package economy

import "math"

// Default multiplier bounds and cadence.
const (
	DefaultMinMultiplier = 0.1
	DefaultMaxMultiplier = 3.0
	DefaultRecomputeEach = 10
)

// Snapshot is the population-wide input to a multiplier recompute.
type Snapshot struct {
	DronesAlive      int
	ActiveAgents     int
	CumulativeDeaths int
}

// Cycle records one multiplier recompute.
type Cycle struct {
	Tick             uint64  `yaml:"tick" json:"tick" csv:"tick"`
	DronesAlive      int     `yaml:"drones_alive" json:"drones_alive" csv:"drones_alive"`
	ActiveAgents     int     `yaml:"active_agents" json:"active_agents" csv:"active_agents"`
	CumulativeDeaths int     `yaml:"cumulative_deaths" json:"cumulative_deaths" csv:"cumulative_deaths"`
	Raw              float64 `yaml:"raw" json:"raw" csv:"raw"`
	Value            float64 `yaml:"value" json:"value" csv:"value"`
}

// Raw returns the unclamped multiplier: drones × active agents over
// cumulative deaths, with the denominator floored to 1.
func Raw(dronesAlive, activeAgents, cumulativeDeaths int) float64 {
	if dronesAlive < 0 {
		dronesAlive = 0
	}
	if activeAgents < 0 {
		activeAgents = 0
	}
	deaths := cumulativeDeaths
	if deaths < 1 {
		deaths = 1
	}
	return float64(dronesAlive) * float64(activeAgents) / float64(deaths)
}

// Recompute returns the multiplier for the given signals clamped to the
// default [0.1, 3.0] range.
func Recompute(dronesAlive, activeAgents, cumulativeDeaths int) float64 {
	return Clamp(Raw(dronesAlive, activeAgents, cumulativeDeaths), DefaultMinMultiplier, DefaultMaxMultiplier)
}

// Clamp bounds v to [lo, hi]. An inverted range is swapped; NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Multiplier is the global price scalar, recomputed on a fixed cadence.
type Multiplier struct {
	Value float64 `yaml:"value" json:"value"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	Every uint64  `yaml:"every" json:"every"`
}

// NewMultiplier creates a multiplier starting at 1.0 (clamped to bounds).
func NewMultiplier(lo, hi float64, every uint64) *Multiplier {
	if every == 0 {
		every = DefaultRecomputeEach
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return &Multiplier{
		Value: Clamp(1.0, lo, hi),
		Min:   lo,
		Max:   hi,
		Every: every,
	}
}

// Due reports whether tick is a recompute tick.
func (m *Multiplier) Due(tick uint64) bool {
	return tick%m.Every == 0
}

// Apply recomputes the value from snap and returns the cycle record.
func (m *Multiplier) Apply(tick uint64, snap Snapshot) Cycle {
	raw := Raw(snap.DronesAlive, snap.ActiveAgents, snap.CumulativeDeaths)
	m.Value = Clamp(raw, m.Min, m.Max)
	return Cycle{
		Tick:             tick,
		DronesAlive:      snap.DronesAlive,
		ActiveAgents:     snap.ActiveAgents,
		CumulativeDeaths: snap.CumulativeDeaths,
		Raw:              raw,
		Value:            m.Value,
	}
}
