package pricegen

import "math/rand"

// Source supplies the randomness behind price movement. Both magnitude and
// direction draws go through it so tests can script exact sequences.
type Source interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
	// Intn returns a uniform draw in [0, n).
	Intn(n int) int
	// Bool returns a fair coin flip.
	Bool() bool
}

type randSource struct {
	r *rand.Rand
}

// NewSource returns a Source seeded from the given value.
func NewSource(seed int64) Source {
	return &randSource{r: rand.New(rand.NewSource(seed))}
}

func (s *randSource) Float64() float64 { return s.r.Float64() }
func (s *randSource) Intn(n int) int   { return s.r.Intn(n) }
func (s *randSource) Bool() bool       { return s.r.Intn(2) == 0 }
