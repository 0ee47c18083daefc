package world

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidCellSize is returned for a non-positive (or non-finite) cell size.
var ErrInvalidCellSize = errors.New("world: cell size must be positive")

// Grid buckets items into fixed-size square cells. Lookups return items in
// the order they were placed, so results are deterministic for a given
// rebuild order.
type Grid[T comparable] struct {
	cellSize float64
	radius   int

	cells map[Cell][]T
	where map[T]Cell
}

// NewGrid creates an empty grid with the given cell size and a Moore
// neighbourhood of radius 1.
func NewGrid[T comparable](cellSize float64) (*Grid[T], error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCellSize, cellSize)
	}
	return &Grid[T]{
		cellSize: cellSize,
		radius:   1,
		cells:    make(map[Cell][]T),
		where:    make(map[T]Cell),
	}, nil
}

// SetRadius changes how many rings of cells count as neighbours.
func (g *Grid[T]) SetRadius(radius int) error {
	if radius < 1 {
		return fmt.Errorf("world: neighbourhood radius must be >= 1, got %d", radius)
	}
	g.radius = radius
	return nil
}

// CellSize returns the fixed bucket size.
func (g *Grid[T]) CellSize() float64 { return g.cellSize }

// Radius returns the neighbourhood radius.
func (g *Grid[T]) Radius() int { return g.radius }

// CellOf returns the cell containing p.
func (g *Grid[T]) CellOf(p Vec) Cell {
	return CellAt(p, g.cellSize)
}

// Origin returns the position of a cell's lower corner.
func (g *Grid[T]) Origin(c Cell) Vec {
	return Vec{X: float64(c.X) * g.cellSize, Y: float64(c.Y) * g.cellSize}
}

// Rebuild discards the index and places every item for which pos reports a
// position. Cost is linear in len(items).
func (g *Grid[T]) Rebuild(items []T, pos func(T) (Vec, bool)) {
	g.cells = make(map[Cell][]T, len(items))
	g.where = make(map[T]Cell, len(items))
	for _, it := range items {
		p, ok := pos(it)
		if !ok {
			continue
		}
		g.Place(it, p)
	}
}

// Place records item at p, moving it if it was already indexed.
func (g *Grid[T]) Place(item T, p Vec) {
	c := g.CellOf(p)
	if old, ok := g.where[item]; ok {
		if old == c {
			return
		}
		g.drop(item, old)
	}
	g.cells[c] = append(g.cells[c], item)
	g.where[item] = c
}

// Remove drops item from the index. Unknown items are ignored.
func (g *Grid[T]) Remove(item T) {
	c, ok := g.where[item]
	if !ok {
		return
	}
	g.drop(item, c)
	delete(g.where, item)
}

func (g *Grid[T]) drop(item T, c Cell) {
	bucket := g.cells[c]
	for i, it := range bucket {
		if it == item {
			bucket = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(g.cells, c)
		return
	}
	g.cells[c] = bucket
}

// Lookup returns the cell an item was indexed under.
func (g *Grid[T]) Lookup(item T) (Cell, bool) {
	c, ok := g.where[item]
	return c, ok
}

// Inhabitants returns the items in exactly cell c. An unoccupied cell yields
// an empty slice.
func (g *Grid[T]) Inhabitants(c Cell) []T {
	bucket := g.cells[c]
	out := make([]T, len(bucket))
	copy(out, bucket)
	return out
}

// Occupied reports whether any item sits in c.
func (g *Grid[T]) Occupied(c Cell) bool {
	return len(g.cells[c]) > 0
}

// Neighbours returns the items in p's cell and the surrounding cells,
// excluding self. Exclusion is by identity: a different item sharing self's
// position is still returned.
func (g *Grid[T]) Neighbours(p Vec, self T) []T {
	return g.NeighboursOfCell(g.CellOf(p), self)
}

// NeighboursOfCell is Neighbours for a cell coordinate.
func (g *Grid[T]) NeighboursOfCell(c Cell, self T) []T {
	var out []T
	collect := func(cell Cell) {
		for _, it := range g.cells[cell] {
			if it != self {
				out = append(out, it)
			}
		}
	}
	collect(c)
	for _, n := range c.Around(g.radius) {
		collect(n)
	}
	return out
}

// NeighbourCoords returns the coordinates surrounding p's cell regardless of
// occupancy.
func (g *Grid[T]) NeighbourCoords(p Vec) []Cell {
	return g.CellOf(p).Around(g.radius)
}

// Cells returns the occupied cells in row-major order.
func (g *Grid[T]) Cells() []Cell {
	out := make([]Cell, 0, len(g.cells))
	for c := range g.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Len returns the number of indexed items.
func (g *Grid[T]) Len() int {
	return len(g.where)
}
