// Package decision provides policies that choose which actions an agent
// runs each tick: a stateless uniform random choice and a perturbative
// learner that adapts constrained parameters from scalar feedback.
package decision

import "github.com/talgya/agentsim/internal/engine"

// RandomSingleCast runs exactly one of the agent's actions, chosen uniformly
// at random from the simulation's random source.
type RandomSingleCast struct{}

// Decide implements engine.Decision.
func (RandomSingleCast) Decide(sim *engine.Simulation, a *engine.Agent) error {
	names := a.ActionNames()
	if len(names) == 0 {
		return nil
	}
	return a.Invoke(sim, names[sim.Rand().Intn(len(names))])
}
