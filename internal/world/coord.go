// Package world provides positions, integer cell coordinates and the spatial
// grid index used by neighbour-based rules.
package world

import (
	"fmt"
	"math"
)

// Vec is a continuous 2D position.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) String() string {
	return fmt.Sprintf("(%g, %g)", v.X, v.Y)
}

// Cell is an integer grid coordinate: floor(position / cell size).
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CellAt floor-divides a position by size.
func CellAt(p Vec, size float64) Cell {
	return Cell{
		X: int(math.Floor(p.X / size)),
		Y: int(math.Floor(p.Y / size)),
	}
}

// Around returns the cells within Chebyshev distance radius of c, excluding c
// itself, in row-major order. Radius 1 yields the 8 Moore neighbours.
func (c Cell) Around(radius int) []Cell {
	if radius < 1 {
		return nil
	}
	side := 2*radius + 1
	out := make([]Cell, 0, side*side-1)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out = append(out, Cell{X: c.X + dx, Y: c.Y + dy})
		}
	}
	return out
}

// Less orders cells row-major (Y, then X).
func Less(a, b Cell) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}
