// Package entropy provides the simulation's injectable random sources.
// Every stochastic draw in the engine goes through a seeded Rand so runs
// are reproducible; an optional Oracle supplies true randomness for the
// few draws where reproducibility is not wanted.
package entropy

import (
	"math/rand"
)

// Rand is a seeded pseudo-random source with the draw helpers the
// simulation needs. Not safe for concurrent use; the tick loop owns it.
type Rand struct {
	r    *rand.Rand
	seed int64
}

// New creates a Rand seeded with seed.
func New(seed int64) *Rand {
	return &Rand{
		r:    rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the seed this source was created with.
func (r *Rand) Seed() int64 {
	return r.seed
}

// Fork derives an independent stream from the same seed, offset by salt.
func (r *Rand) Fork(salt int64) *Rand {
	return New(r.seed + salt)
}

// Float64 returns a uniform value in [0, 1).
func (r *Rand) Float64() float64 {
	return r.r.Float64()
}

// Intn returns a uniform value in [0, n). Returns 0 when n <= 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return r.r.Intn(n)
}

// Chance returns true with probability p.
func (r *Rand) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.r.Float64() < p
}

// Between returns a uniform integer in [lo, hi].
func (r *Rand) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.r.Intn(hi-lo+1)
}

// Between64 is Between for int64 ranges.
func (r *Rand) Between64(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + r.r.Int63n(hi-lo+1)
}

// Weighted picks an index with probability proportional to weights[i].
// Non-positive weights are never picked. Returns -1 when nothing can be picked.
func (r *Rand) Weighted(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	x := r.r.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if x < w {
			return i
		}
		x -= w
	}
	return last
}
