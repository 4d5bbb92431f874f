package imc

import (
	"math"
	"math/rand"
)

// RNG is the per-rank random stream. There is no cross-rank determinism
// requirement; each rank seeds its own stream.
type RNG struct {
	src *rand.Rand
}

// NewRNG creates a stream from the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{src: rand.New(rand.NewSource(seed))}
}

// Uniform draws from (0, 1]. The open lower bound keeps -ln(u) finite in the
// scattering distance sample.
func (r *RNG) Uniform() float64 {
	return 1.0 - r.src.Float64()
}

// IsotropicDirection draws a unit vector uniformly over the sphere.
func (r *RNG) IsotropicDirection() Vec3 {
	mu := 2.0*r.Uniform() - 1.0
	phi := 2.0 * Pi * r.Uniform()
	sinTheta := math.Sqrt(1.0 - mu*mu)
	return Vec3{sinTheta * math.Cos(phi), sinTheta * math.Sin(phi), mu}
}
