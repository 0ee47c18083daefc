package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/talgya/agentsim/internal/world"
)

// ErrUnknownAction is returned when an agent is asked to run an action it
// never registered.
var ErrUnknownAction = errors.New("engine: unknown action")

// DefaultColor is used for agents that never set one.
const DefaultColor = "#3f51b5"

// Action is a named operation an agent performs during a tick. It may read
// and write any reachable state and request population changes through
// Simulation.Add and Simulation.Remove, which are deferred to tick end.
type Action func(sim *Simulation, a *Agent) error

// Decision selects which of an agent's actions run this tick, with what
// parameters, and runs them.
type Decision interface {
	Decide(sim *Simulation, a *Agent) error
}

// Agent is one member of a simulation's population.
type Agent struct {
	index   int
	indexed bool

	// Order is the traversal priority within a tick (ascending, ties broken
	// by index). Changes take effect from the next tick's snapshot.
	Order int

	Actions  map[string]Action
	Decision Decision // nil = agent never acts

	// Spatial agents carry a position; nil for non-spatial agents.
	Pos   *world.Vec
	Size  float64
	Color string

	// State holds scenario-specific data (holdings, decision variables, ...).
	State any
}

// NewAgent creates a non-spatial agent with an empty action table.
func NewAgent() *Agent {
	return &Agent{
		Actions: make(map[string]Action),
		Size:    1,
		Color:   DefaultColor,
	}
}

// NewSpatialAgent creates an agent at pos.
func NewSpatialAgent(pos world.Vec) *Agent {
	a := NewAgent()
	a.Pos = &pos
	return a
}

// Index returns the identity assigned when the agent was first added to a
// simulation.
func (a *Agent) Index() int { return a.index }

// Indexed reports whether the agent has been assigned an index.
func (a *Agent) Indexed() bool { return a.indexed }

// Handle registers fn under name, replacing any previous action of that name.
func (a *Agent) Handle(name string, fn Action) {
	if a.Actions == nil {
		a.Actions = make(map[string]Action)
	}
	a.Actions[name] = fn
}

// ActionNames returns the registered action names, sorted.
func (a *Agent) ActionNames() []string {
	names := make([]string, 0, len(a.Actions))
	for name := range a.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named action.
func (a *Agent) Invoke(sim *Simulation, name string) error {
	fn, ok := a.Actions[name]
	if !ok || fn == nil {
		return fmt.Errorf("%w: %q on agent %d", ErrUnknownAction, name, a.index)
	}
	return fn(sim, a)
}

// Position returns the agent's position, if it has one.
func (a *Agent) Position() (world.Vec, bool) {
	if a.Pos == nil {
		return world.Vec{}, false
	}
	return *a.Pos, true
}

func (a *Agent) String() string {
	return fmt.Sprintf("Agent(%d, order=%d)", a.index, a.Order)
}

// byOrder sorts agents by ascending Order, then ascending index.
func byOrder(list []*Agent) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Order != list[j].Order {
			return list[i].Order < list[j].Order
		}
		return list[i].index < list[j].index
	})
}
