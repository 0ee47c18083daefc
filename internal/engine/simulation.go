// Package engine provides the agent population, the tick loop and its
// ordering and deferred-mutation guarantees.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/talgya/agentsim/internal/world"
)

var (
	// ErrInvalidEndCondition is returned by Simulate and Step when
	// EndCondition is neither nil, a bool, nor a predicate.
	ErrInvalidEndCondition = errors.New("engine: invalid end condition")

	// ErrGridUninitialized is returned by Grid before InitGrid succeeds.
	ErrGridUninitialized = errors.New("engine: spatial grid not initialized")
)

// EndFunc is a predicate over simulation state, evaluated after every tick.
type EndFunc func(sim *Simulation) bool

// Hook runs at the start of every tick, before the agent snapshot is taken.
type Hook func(sim *Simulation) error

// Simulation holds the agent population and drives it one tick at a time.
// It is not safe for concurrent use.
type Simulation struct {
	// Time counts completed ticks, starting at 0.
	Time int

	// EndCondition is nil (never end), a bool constant, an EndFunc or a
	// func(*Simulation) bool. Anything else fails before the first tick.
	EndCondition any

	// SlowTickWarn logs a warning when one tick takes longer. Zero disables.
	SlowTickWarn time.Duration

	// Renderer, if set, receives a Frame after every tick.
	Renderer Renderer

	seed int64
	rng  *rand.Rand

	agents    map[*Agent]struct{}
	nextIndex int

	// Mutations requested during a tick, applied in request order at tick end.
	inTick   bool
	snapshot []*Agent
	pending  []mutation
	removing map[*Agent]struct{}

	grid *world.Grid[*Agent]

	hooks        []Hook
	trackers     map[string]Tracker
	trackerOrder []string
}

type mutation struct {
	agent *Agent
	add   bool
}

// New creates an empty simulation whose random source is seeded with seed.
func New(seed int64) *Simulation {
	return &Simulation{
		seed:     seed,
		rng:      rand.New(rand.NewSource(seed)),
		agents:   make(map[*Agent]struct{}),
		removing: make(map[*Agent]struct{}),
		trackers: make(map[string]Tracker),
	}
}

// Seed returns the seed the random source was created with.
func (s *Simulation) Seed() int64 { return s.seed }

// Rand returns the simulation's random source. Policies draw from it so a
// run is reproducible from its seed.
func (s *Simulation) Rand() *rand.Rand { return s.rng }

// Add inserts an agent and assigns its index if it has none. During a tick
// the insertion is buffered until the traversal completes. Adding a member
// twice is a no-op.
func (s *Simulation) Add(a *Agent) {
	if !a.indexed {
		a.index = s.nextIndex
		a.indexed = true
		s.nextIndex++
	} else if a.index >= s.nextIndex {
		s.nextIndex = a.index + 1
	}
	if s.inTick {
		s.pending = append(s.pending, mutation{agent: a, add: true})
		return
	}
	s.insert(a)
}

// Remove deletes an agent. During a tick the removal is buffered: the agent
// stays in the tick's snapshot and is dropped once the traversal completes.
func (s *Simulation) Remove(a *Agent) {
	if s.inTick {
		s.pending = append(s.pending, mutation{agent: a})
		s.removing[a] = struct{}{}
		return
	}
	s.delete(a)
}

func (s *Simulation) insert(a *Agent) {
	if _, ok := s.agents[a]; ok {
		return
	}
	s.agents[a] = struct{}{}
	if p, ok := a.Position(); ok && s.grid != nil {
		s.grid.Place(a, p)
	}
}

func (s *Simulation) delete(a *Agent) {
	if _, ok := s.agents[a]; !ok {
		return
	}
	delete(s.agents, a)
	if s.grid != nil {
		s.grid.Remove(a)
	}
}

// Contains reports whether a is a member of the population.
func (s *Simulation) Contains(a *Agent) bool {
	_, ok := s.agents[a]
	return ok
}

// Removing reports whether a removal of a was requested during the current
// tick.
func (s *Simulation) Removing(a *Agent) bool {
	_, ok := s.removing[a]
	return ok
}

// Len returns the population size. During a tick this is the size at tick
// start.
func (s *Simulation) Len() int {
	if s.inTick {
		return len(s.snapshot)
	}
	return len(s.agents)
}

// Agents returns the population in traversal order. During a tick it returns
// the tick-start view, unaffected by pending additions and removals.
func (s *Simulation) Agents() []*Agent {
	if s.inTick {
		out := make([]*Agent, len(s.snapshot))
		copy(out, s.snapshot)
		return out
	}
	return s.ordered()
}

func (s *Simulation) ordered() []*Agent {
	list := make([]*Agent, 0, len(s.agents))
	for a := range s.agents {
		list = append(list, a)
	}
	byOrder(list)
	return list
}

// InitGrid enables the spatial index with the given cell size.
func (s *Simulation) InitGrid(cellSize float64) error {
	g, err := world.NewGrid[*Agent](cellSize)
	if err != nil {
		return err
	}
	s.grid = g
	s.rebuildGrid()
	return nil
}

// Grid returns the spatial index. Additions and removals outside a tick
// patch it immediately; during a tick it reflects the tick-start population
// until the pending mutations apply.
func (s *Simulation) Grid() (*world.Grid[*Agent], error) {
	if s.grid == nil {
		return nil, ErrGridUninitialized
	}
	return s.grid, nil
}

// Move sets a's position and patches the index so later queries in the same
// tick see the new position.
func (s *Simulation) Move(a *Agent, p world.Vec) {
	a.Pos = &p
	if s.grid != nil && s.Contains(a) {
		s.grid.Place(a, p)
	}
}

func (s *Simulation) rebuildGrid() {
	if s.grid == nil {
		return
	}
	s.grid.Rebuild(s.ordered(), (*Agent).Position)
}

// OnTickStart registers a hook to run at the start of every tick.
func (s *Simulation) OnTickStart(h Hook) {
	s.hooks = append(s.hooks, h)
}

// AddTracker registers t under name, replacing any tracker of that name.
// Trackers run in name order.
func (s *Simulation) AddTracker(name string, t Tracker) {
	if _, ok := s.trackers[name]; !ok {
		s.trackerOrder = append(s.trackerOrder, name)
		sort.Strings(s.trackerOrder)
	}
	s.trackers[name] = t
}

// Tracker returns the tracker registered under name.
func (s *Simulation) Tracker(name string) (Tracker, bool) {
	t, ok := s.trackers[name]
	return t, ok
}

// TrackerNames returns the registered tracker names in invocation order.
func (s *Simulation) TrackerNames() []string {
	out := make([]string, len(s.trackerOrder))
	copy(out, s.trackerOrder)
	return out
}

func (s *Simulation) endCheck() (EndFunc, error) {
	switch c := s.EndCondition.(type) {
	case nil:
		return func(*Simulation) bool { return false }, nil
	case bool:
		return func(*Simulation) bool { return c }, nil
	case EndFunc:
		if c == nil {
			return func(*Simulation) bool { return false }, nil
		}
		return c, nil
	case func(*Simulation) bool:
		if c == nil {
			return func(*Simulation) bool { return false }, nil
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidEndCondition, c)
	}
}

// Simulate runs n ticks, stopping early once the end condition holds or ctx
// is cancelled. The end condition is checked after every tick, never
// mid-tick.
func (s *Simulation) Simulate(ctx context.Context, n int) error {
	end, err := s.endCheck()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.tick(); err != nil {
			return err
		}
		if end(s) {
			slog.Debug("end condition reached", "time", s.Time)
			return nil
		}
	}
	return nil
}

// Step runs a single tick and reports whether the end condition now holds.
func (s *Simulation) Step() (bool, error) {
	end, err := s.endCheck()
	if err != nil {
		return false, err
	}
	if err := s.tick(); err != nil {
		return false, err
	}
	return end(s), nil
}

func (s *Simulation) tick() error {
	start := time.Now()

	for _, h := range s.hooks {
		if err := h(s); err != nil {
			return fmt.Errorf("tick %d: start hook: %w", s.Time, err)
		}
	}
	s.snapshot = s.ordered()
	s.inTick = true
	err := s.traverse()
	s.inTick = false
	s.snapshot = nil
	s.applyPending()
	if err != nil {
		return err
	}

	s.rebuildGrid()

	for _, name := range s.trackerOrder {
		if err := s.trackers[name].Track(s); err != nil {
			return fmt.Errorf("tick %d: tracker %q: %w", s.Time, name, err)
		}
	}
	if s.Renderer != nil {
		if err := s.Renderer.Render(s.Frame()); err != nil {
			slog.Warn("render failed", "time", s.Time, "error", err)
		}
	}

	s.Time++

	if elapsed := time.Since(start); s.SlowTickWarn > 0 && elapsed > s.SlowTickWarn {
		slog.Warn("slow tick", "time", s.Time, "elapsed", elapsed, "agents", len(s.agents))
	}
	return nil
}

func (s *Simulation) traverse() error {
	for _, a := range s.snapshot {
		if a.Decision == nil {
			continue
		}
		if err := a.Decision.Decide(s, a); err != nil {
			return fmt.Errorf("tick %d: agent %d: %w", s.Time, a.index, err)
		}
	}
	return nil
}

func (s *Simulation) applyPending() {
	for _, m := range s.pending {
		if m.add {
			s.insert(m.agent)
		} else {
			s.delete(m.agent)
		}
	}
	s.pending = s.pending[:0]
	clear(s.removing)
}
