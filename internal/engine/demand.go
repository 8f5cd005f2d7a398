package engine

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// DemandWave is a slow noise signal scaling how eagerly agents start work.
// It stays within [1-Amplitude, 1+Amplitude].
type DemandWave struct {
	noise     opensimplex.Noise
	Amplitude float64
	Period    float64 // Ticks per noise unit
}

// NewDemandWave creates a wave. A zero amplitude yields a flat 1.0.
func NewDemandWave(seed int64, amplitude, period float64) *DemandWave {
	if period <= 0 {
		period = 1
	}
	w := &DemandWave{Amplitude: amplitude, Period: period}
	if amplitude > 0 {
		w.noise = opensimplex.NewNormalized(seed)
	}
	return w
}

// At returns the demand factor at tick.
func (w *DemandWave) At(tick uint64) float64 {
	if w == nil || w.noise == nil {
		return 1
	}
	n := w.noise.Eval2(float64(tick)/w.Period, 0)
	return 1 + w.Amplitude*(2*n-1)
}
