package life

import (
	"context"
	"reflect"
	"testing"

	"github.com/talgya/agentsim/internal/engine"
	"github.com/talgya/agentsim/internal/world"
)

func run(t *testing.T, pattern string, ticks int) *Scenario {
	t.Helper()
	sim := engine.New(1)
	s, err := New(sim, Config{Pattern: pattern})
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.Simulate(context.Background(), ticks); err != nil {
		t.Fatal(err)
	}
	return s
}

func shift(cells []world.Cell, dx, dy int) []world.Cell {
	out := make([]world.Cell, len(cells))
	for i, c := range cells {
		out[i] = world.Cell{X: c.X + dx, Y: c.Y + dy}
	}
	return out
}

func TestBlockIsStable(t *testing.T) {
	want := run(t, "block", 0).Living()
	for _, ticks := range []int{1, 2, 5} {
		if got := run(t, "block", ticks).Living(); !reflect.DeepEqual(got, want) {
			t.Fatalf("after %d ticks: %v, want %v", ticks, got, want)
		}
	}
}

func TestBlinkerOscillates(t *testing.T) {
	horizontal := []world.Cell{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	vertical := []world.Cell{{X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1}}

	if got := run(t, "blinker", 1).Living(); !reflect.DeepEqual(got, vertical) {
		t.Fatalf("tick 1: %v, want %v", got, vertical)
	}
	if got := run(t, "blinker", 2).Living(); !reflect.DeepEqual(got, horizontal) {
		t.Fatalf("tick 2: %v, want %v", got, horizontal)
	}
}

func TestGliderTranslates(t *testing.T) {
	start := run(t, "glider", 0).Living()
	got := run(t, "glider", 4).Living()
	if want := shift(start, 1, 1); !reflect.DeepEqual(got, want) {
		t.Fatalf("after 4 ticks: %v, want %v", got, want)
	}
}

func TestLoneCellDies(t *testing.T) {
	sim := engine.New(1)
	s, err := New(sim, Config{Pattern: "block"})
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range sim.Agents() {
		if isCell(a) {
			sim.Remove(a)
		}
	}
	sim.Add(s.NewCell(world.Cell{X: 10, Y: 10}))
	sim.EndCondition = Extinct
	if err := sim.Simulate(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if sim.Time != 1 || Population(sim) != 0 {
		t.Fatalf("time %d, population %g", sim.Time, Population(sim))
	}
}

func TestGosperSeed(t *testing.T) {
	s := run(t, "gosper", 0)
	if n := len(s.Living()); n != 36 {
		t.Fatalf("gosper seed has %d cells, want 36", n)
	}
}

func TestPatterns(t *testing.T) {
	want := []string{"blinker", "block", "glider", "gosper", "noise"}
	if got := Patterns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Patterns() = %v", got)
	}
	if _, err := Pattern("pulsar", world.NoiseConfig{}); err == nil {
		t.Fatal("unknown pattern should fail")
	}
	if _, err := New(engine.New(1), Config{CellSize: -1, Pattern: "block"}); err == nil {
		t.Fatal("negative cell size should fail")
	}
}

func TestFrameCoversCells(t *testing.T) {
	s := run(t, "block", 1)
	f := s.Sim.Frame()
	if len(f.Agents) != 4 {
		t.Fatalf("frame has %d agents, want 4", len(f.Agents))
	}
	for _, v := range f.Agents {
		if v.Size != DefaultCellSize || v.Color != CellColor {
			t.Fatalf("agent view %+v", v)
		}
	}
}

func TestPopulationTracker(t *testing.T) {
	s := run(t, "blinker", 3)
	tr, ok := s.Sim.Tracker(TrackerPopulation)
	if !ok {
		t.Fatalf("tracker %q not registered", TrackerPopulation)
	}
	got := tr.(engine.SeriesSource).Series()["live"]
	if want := []float64{3, 3, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("live = %v, want %v", got, want)
	}
}
