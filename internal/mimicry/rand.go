package mimicry

import "math/rand/v2"

// Random is the source of every coin flip the engine makes
type Random interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// between returns a uniform value in [lo, hi)
func between(r Random, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
