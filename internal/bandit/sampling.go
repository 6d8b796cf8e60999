package bandit

import (
	"math"
	"math/rand/v2"
)

// sampleGamma draws from Gamma(shape, 1) using the Marsaglia-Tsang
// squeeze method. Shapes below 1 are handled with the boost
// Gamma(shape) = Gamma(shape+1) * U^(1/shape), which keeps the draw
// valid where the squeeze method alone is not.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}

// sampleBeta draws from Beta(alpha, beta) via two Gamma(shape, 1) draws.
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	g1 := sampleGamma(rng, alpha)
	g2 := sampleGamma(rng, beta)
	if g1+g2 == 0 {
		return 0.5
	}
	return g1 / (g1 + g2)
}
