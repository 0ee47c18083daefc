package life

import (
	"fmt"
	"sort"

	"github.com/talgya/agentsim/internal/world"
)

// Seed patterns, in cell coordinates.
var patterns = map[string][]world.Cell{
	"block":   {{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}},
	"blinker": {{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}},
	"glider":  {{X: 1, Y: 0}, {X: 2, Y: 1}, {X: 0, Y: 2}, {X: 1, Y: 2}, {X: 2, Y: 2}},
	"gosper": {
		// Left block.
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
		// Left curve.
		{X: 10, Y: 0}, {X: 10, Y: 1}, {X: 10, Y: -1}, {X: 11, Y: 2}, {X: 11, Y: -2},
		{X: 12, Y: 3}, {X: 12, Y: -3}, {X: 13, Y: 3}, {X: 13, Y: -3},
		{X: 14, Y: 0}, {X: 15, Y: 2}, {X: 15, Y: -2}, {X: 16, Y: 1}, {X: 16, Y: -1},
		{X: 16, Y: 0}, {X: 17, Y: 0},
		// Right section.
		{X: 20, Y: 1}, {X: 20, Y: 2}, {X: 20, Y: 3}, {X: 21, Y: 1}, {X: 21, Y: 2},
		{X: 21, Y: 3}, {X: 22, Y: 0}, {X: 22, Y: 4},
		{X: 24, Y: -1}, {X: 24, Y: 0}, {X: 24, Y: 4}, {X: 24, Y: 5},
		// Right block.
		{X: 34, Y: 2}, {X: 34, Y: 3}, {X: 35, Y: 2}, {X: 35, Y: 3},
	},
}

// PatternNoise seeds a simplex-noise soup instead of a fixed pattern.
const PatternNoise = "noise"

// Patterns returns the names Pattern accepts.
func Patterns() []string {
	names := []string{PatternNoise}
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pattern returns the live cells of a named seed pattern. The noise pattern
// is generated from cfg.
func Pattern(name string, cfg world.NoiseConfig) ([]world.Cell, error) {
	if name == PatternNoise {
		return world.NoisePattern(cfg), nil
	}
	p, ok := patterns[name]
	if !ok {
		return nil, fmt.Errorf("life: unknown pattern %q", name)
	}
	return append([]world.Cell(nil), p...), nil
}
