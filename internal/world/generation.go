// Pattern generation using layered simplex noise.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// NoiseConfig holds parameters for a noise-seeded cell pattern.
type NoiseConfig struct {
	Radius    int     // Square half-width in cells
	Seed      int64   // Random seed (0 = random)
	Threshold float64 // Normalized noise level above which a cell is live (0.0–1.0)
	Frequency float64 // Base sampling frequency
	Octaves   int
}

// DefaultNoiseConfig returns a soup dense enough to evolve for a while.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		Radius:    20,
		Seed:      0,
		Threshold: 0.55,
		Frequency: 0.35,
		Octaves:   2,
	}
}

// NoisePattern returns the live cells of a square soup centred on the origin,
// in row-major order. The same seed always yields the same pattern.
func NoisePattern(cfg NoiseConfig) []Cell {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	octaves := cfg.Octaves
	if octaves < 1 {
		octaves = 1
	}
	noise := opensimplex.NewNormalized(seed)

	var live []Cell
	for y := -cfg.Radius; y <= cfg.Radius; y++ {
		for x := -cfg.Radius; x <= cfg.Radius; x++ {
			v := octaveNoise(noise, float64(x), float64(y), octaves, cfg.Frequency, 0.5)
			if v > cfg.Threshold {
				live = append(live, Cell{X: x, Y: y})
			}
		}
	}
	return live
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
