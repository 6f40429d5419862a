// Package randsrc provides the overlay's injected random source. Per
// spec.md's Design Notes §9 ("Global random source"), nothing in the
// overlay consults the process-global math/rand state directly — every
// component that needs randomness (random node sampling, discovery
// direction sampling) takes a Source so tests can make these choices
// deterministic.
package randsrc

import (
	"math/rand"
	"time"
)

// Source is the randomness an overlay node consults.
type Source interface {
	// Intn returns a pseudo-random int in [0,n).
	Intn(n int) int
	// Float64 returns a pseudo-random float64 in [0.0,1.0).
	Float64() float64
}

// New returns a Source seeded from the wall clock, for production use.
func New() Source {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// NewSeeded returns a Source with a fixed seed, for deterministic tests.
func NewSeeded(seed int64) Source {
	return rand.New(rand.NewSource(seed))
}
