package netsim

import (
	"math/rand/v2"

	"github.com/iti/rngstream"
)

// A Source supplies the uniform draws that decide jitter factors and losses.
// RandU01 returns a value in [0,1).
type Source interface {
	RandU01() float64
}

// NewStreamSource returns a named rngstream stream, the generator every
// simulator uses unless another Source is injected.  Streams are
// reproducible for a given creation order within a process.
func NewStreamSource(name string) Source {
	return rngstream.New(name)
}

// seededSource draws from a PCG generator initialized from a caller's seed
type seededSource struct {
	rng *rand.Rand
}

// NewSeededSource returns a Source whose sequence is fixed by seed, so that
// two simulators built with the same seed make identical draws.
func NewSeededSource(seed uint64) Source {
	return &seededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (ss *seededSource) RandU01() float64 {
	return ss.rng.Float64()
}
