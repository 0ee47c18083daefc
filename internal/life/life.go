// Package life runs a Life-like cellular automaton (birth on 3 neighbours,
// survival on 2 or 3) on the simulation core. Every live cell is a spatial
// agent; a single meta agent computes each generation.
package life

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/agentsim/internal/decision"
	"github.com/talgya/agentsim/internal/engine"
	"github.com/talgya/agentsim/internal/world"
)

// DefaultCellSize is the width of one cell in world units.
const DefaultCellSize = 5

// CellColor is the render color of live cells.
const CellColor = "#212121"

// TrackerPopulation records the live cell count every tick.
const TrackerPopulation = "population"

// Config configures a Life scenario.
type Config struct {
	CellSize float64
	Pattern  string
	Noise    world.NoiseConfig
}

// Scenario is a running Life world.
type Scenario struct {
	Sim      *engine.Simulation
	Meta     *engine.Agent
	cellSize float64
}

type cell struct{}

// New seeds sim with the configured pattern and a meta agent.
func New(sim *engine.Simulation, cfg Config) (*Scenario, error) {
	if cfg.CellSize == 0 {
		cfg.CellSize = DefaultCellSize
	}
	if err := sim.InitGrid(cfg.CellSize); err != nil {
		return nil, fmt.Errorf("life: %w", err)
	}
	seed, err := Pattern(cfg.Pattern, cfg.Noise)
	if err != nil {
		return nil, err
	}

	s := &Scenario{Sim: sim, cellSize: cfg.CellSize}
	s.Meta = engine.NewAgent()
	s.Meta.Order = -1
	s.Meta.Handle("compute", compute)
	s.Meta.Decision = decision.RandomSingleCast{}
	sim.Add(s.Meta)

	for _, c := range seed {
		sim.Add(s.NewCell(c))
	}
	sim.AddTracker(TrackerPopulation, engine.NewMetricTracker("live", Population))
	slog.Info("life seeded", "pattern", cfg.Pattern, "cells", len(seed), "cell_size", cfg.CellSize)
	return s, nil
}

// NewCell creates a live cell agent for grid coordinate c.
func (s *Scenario) NewCell(c world.Cell) *engine.Agent {
	return newCell(world.Vec{X: float64(c.X) * s.cellSize, Y: float64(c.Y) * s.cellSize}, s.cellSize)
}

func newCell(pos world.Vec, size float64) *engine.Agent {
	a := engine.NewSpatialAgent(pos)
	a.Size = size
	a.Color = CellColor
	a.State = cell{}
	return a
}

func isCell(a *engine.Agent) bool {
	_, ok := a.State.(cell)
	return ok
}

// compute advances one generation. Deaths and births are requested through
// the simulation, so every cell is judged against the same tick-start grid.
func compute(sim *engine.Simulation, _ *engine.Agent) error {
	grid, err := sim.Grid()
	if err != nil {
		return err
	}
	size := grid.CellSize()

	empty := make(map[world.Cell]struct{})
	var died int
	for _, a := range sim.Agents() {
		if !isCell(a) {
			continue
		}
		pos, _ := a.Position()
		for _, c := range grid.NeighbourCoords(pos) {
			if !grid.Occupied(c) {
				empty[c] = struct{}{}
			}
		}
		if n := len(grid.Neighbours(pos, a)); n < 2 || n > 3 {
			sim.Remove(a)
			died++
		}
	}

	births := make([]world.Cell, 0, len(empty))
	for c := range empty {
		if len(grid.NeighboursOfCell(c, nil)) == 3 {
			births = append(births, c)
		}
	}
	sort.Slice(births, func(i, j int) bool { return world.Less(births[i], births[j]) })
	for _, c := range births {
		sim.Add(newCell(grid.Origin(c), size))
	}

	slog.Debug("generation", "time", sim.Time, "born", len(births), "died", died)
	return nil
}

// Living returns the live cells in row-major order.
func (s *Scenario) Living() []world.Cell {
	var out []world.Cell
	for _, a := range s.Sim.Agents() {
		if !isCell(a) {
			continue
		}
		pos, _ := a.Position()
		out = append(out, world.CellAt(pos, s.cellSize))
	}
	sort.Slice(out, func(i, j int) bool { return world.Less(out[i], out[j]) })
	return out
}

// Population counts live cells.
func Population(sim *engine.Simulation) float64 {
	n := 0
	for _, a := range sim.Agents() {
		if isCell(a) {
			n++
		}
	}
	return float64(n)
}

// Extinct is an end condition that holds once no cell is alive.
func Extinct(sim *engine.Simulation) bool {
	return Population(sim) == 0
}
