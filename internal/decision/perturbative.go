package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/agentsim/internal/engine"
	"github.com/talgya/agentsim/internal/logging"
)

// ErrInvalidConfig is returned for out-of-range policy configuration.
var ErrInvalidConfig = errors.New("decision: invalid config")

// PerturbationConfig bounds how far an exploratory tick moves the policy.
type PerturbationConfig struct {
	// Each variable moves by up to rate × its range, with rate drawn
	// uniformly from [RateMin, RateMax].
	RateMin float64 `yaml:"rate_min" json:"rate_min"`
	RateMax float64 `yaml:"rate_max" json:"rate_max"`

	// ActionProbability is the chance an exploratory tick also edits the
	// action sequence.
	ActionProbability float64 `yaml:"action_probability" json:"action_probability"`
}

// Config configures a Perturbative policy. Every knob is explicit.
type Config struct {
	NonconformityProbability float64            // Chance of exploring on a tick
	DiscountFactor           float64            // Weight of older losses in the baseline (0 = myopic)
	Perturbation             PerturbationConfig

	Actions    []string // Initial action sequence; empty = all actions in name order
	MaxActions int      // Upper bound on sequence length (0 = number of actions)
	Terminal   string   // Action that ends the sequence early, if non-empty

	// Store and ID, when both are set, load the policy on construction and
	// save it on Close.
	Store Store
	ID    string
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.NonconformityProbability < 0 || c.NonconformityProbability > 1:
		return fmt.Errorf("%w: nonconformity probability %g", ErrInvalidConfig, c.NonconformityProbability)
	case c.DiscountFactor < 0 || c.DiscountFactor > 1:
		return fmt.Errorf("%w: discount factor %g", ErrInvalidConfig, c.DiscountFactor)
	case c.Perturbation.RateMin < 0 || c.Perturbation.RateMin > c.Perturbation.RateMax:
		return fmt.Errorf("%w: perturbation rate [%g, %g]", ErrInvalidConfig, c.Perturbation.RateMin, c.Perturbation.RateMax)
	case c.Perturbation.ActionProbability < 0 || c.Perturbation.ActionProbability > 1:
		return fmt.Errorf("%w: action probability %g", ErrInvalidConfig, c.Perturbation.ActionProbability)
	case c.MaxActions < 0:
		return fmt.Errorf("%w: max actions %d", ErrInvalidConfig, c.MaxActions)
	}
	return nil
}

// LossFunc scores an agent's situation; lower is better.
type LossFunc func(sim *engine.Simulation, a *engine.Agent) float64

// Sample records one evaluation of the loss.
type Sample struct {
	Time     int
	Loss     float64
	Baseline float64
	Trial    bool // The loss judged an exploratory perturbation
	Accepted bool
}

// Perturbative is a learning policy. On each tick it first judges the
// previous tick: if that tick explored, the perturbation is kept when the
// loss is no worse than the discounted baseline and reverted otherwise.
// It then either explores (with NonconformityProbability) or repeats the
// committed values, and runs its action sequence.
type Perturbative struct {
	cfg  Config
	loss LossFunc
	vars []Variable

	actions     []string
	prevActions []string
	sanitized   bool

	baseline    float64
	hasBaseline bool
	trial       bool

	history []Sample
}

// NewPerturbative creates a policy over vars. If cfg names a Store, the last
// saved snapshot is loaded; a failed load keeps the initial values.
func NewPerturbative(cfg Config, loss LossFunc, vars ...Variable) (*Perturbative, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loss == nil {
		return nil, fmt.Errorf("%w: nil loss function", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if seen[v.Name()] {
			return nil, fmt.Errorf("%w: duplicate variable %q", ErrInvalidConfig, v.Name())
		}
		seen[v.Name()] = true
	}

	p := &Perturbative{
		cfg:     cfg,
		loss:    loss,
		vars:    vars,
		actions: append([]string(nil), cfg.Actions...),
	}
	p.prevActions = append([]string(nil), p.actions...)

	if cfg.Store != nil && cfg.ID != "" {
		snap, err := cfg.Store.LoadSnapshot(cfg.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			slog.Debug("no saved policy, starting fresh", "id", cfg.ID)
		case err != nil:
			slog.Warn("policy load failed, starting fresh", "id", cfg.ID, "error", err)
		default:
			p.Restore(snap)
		}
	}
	return p, nil
}

// Variables returns the policy's variables.
func (p *Perturbative) Variables() []Variable { return p.vars }

// Actions returns the action sequence in use.
func (p *Perturbative) Actions() []string { return append([]string(nil), p.actions...) }

// History returns every loss evaluation so far.
func (p *Perturbative) History() []Sample { return append([]Sample(nil), p.history...) }

// Baseline returns the discounted reference loss.
func (p *Perturbative) Baseline() (float64, bool) { return p.baseline, p.hasBaseline }

// Decide implements engine.Decision.
func (p *Perturbative) Decide(sim *engine.Simulation, a *engine.Agent) error {
	rng := sim.Rand()
	p.sanitize(a)
	p.judge(sim.Time, p.loss(sim, a))

	if rng.Float64() < p.cfg.NonconformityProbability {
		p.explore(rng, a)
	}

	for _, name := range p.actions {
		if err := a.Invoke(sim, name); err != nil {
			return err
		}
		if p.cfg.Terminal != "" && name == p.cfg.Terminal {
			break
		}
	}
	return nil
}

// judge settles the previous tick given the loss observed now.
func (p *Perturbative) judge(time int, loss float64) {
	s := Sample{Time: time, Loss: loss, Baseline: p.baseline, Trial: p.trial}
	switch {
	case !p.hasBaseline:
		p.baseline = loss
		p.hasBaseline = true
		if p.trial {
			p.commit()
			s.Accepted = true
		}
	case p.trial:
		if loss <= p.baseline {
			p.commit()
			p.discount(loss)
			s.Accepted = true
		} else {
			p.revert()
		}
	default:
		p.discount(loss)
	}
	p.trial = false
	p.history = append(p.history, s)
	slog.Log(context.Background(), logging.LevelTrace, "policy judged",
		"id", p.cfg.ID, "time", time, "loss", loss, "baseline", p.baseline, "trial", s.Trial, "accepted", s.Accepted)
}

func (p *Perturbative) discount(loss float64) {
	g := p.cfg.DiscountFactor
	p.baseline = (1-g)*loss + g*p.baseline
}

func (p *Perturbative) commit() {
	for _, v := range p.vars {
		v.Commit()
	}
	p.prevActions = append(p.prevActions[:0], p.actions...)
}

func (p *Perturbative) revert() {
	for _, v := range p.vars {
		v.Revert()
	}
	p.actions = append(p.actions[:0], p.prevActions...)
}

func (p *Perturbative) explore(rng *rand.Rand, a *engine.Agent) {
	pc := p.cfg.Perturbation
	for _, v := range p.vars {
		v.Perturb(rng, pc.RateMin+rng.Float64()*(pc.RateMax-pc.RateMin))
	}
	if rng.Float64() < pc.ActionProbability {
		p.mutateActions(rng, a.ActionNames())
	}
	p.trial = true
}

// mutateActions replaces, inserts or deletes one entry of the sequence.
func (p *Perturbative) mutateActions(rng *rand.Rand, names []string) {
	if len(names) == 0 {
		return
	}
	limit := p.maxActions(names)
	pick := names[rng.Intn(len(names))]
	if len(p.actions) == 0 {
		p.actions = append(p.actions, pick)
		return
	}
	switch rng.Intn(3) {
	case 0:
		p.actions[rng.Intn(len(p.actions))] = pick
	case 1:
		if len(p.actions) < limit {
			i := rng.Intn(len(p.actions) + 1)
			p.actions = append(p.actions[:i], append([]string{pick}, p.actions[i:]...)...)
		}
	default:
		if len(p.actions) > 1 {
			i := rng.Intn(len(p.actions))
			p.actions = append(p.actions[:i], p.actions[i+1:]...)
		}
	}
}

func (p *Perturbative) maxActions(names []string) int {
	if p.cfg.MaxActions > 0 {
		return p.cfg.MaxActions
	}
	return len(names)
}

// sanitize fills an empty sequence with the agent's actions and drops names
// the agent does not have (for example from a stale snapshot). It runs once.
func (p *Perturbative) sanitize(a *engine.Agent) {
	if p.sanitized {
		return
	}
	p.sanitized = true
	names := a.ActionNames()
	clean := func(seq []string) []string {
		out := seq[:0]
		for _, n := range seq {
			if _, ok := a.Actions[n]; ok {
				out = append(out, n)
			}
		}
		return out
	}
	p.actions = clean(p.actions)
	if len(p.actions) == 0 {
		p.actions = append(p.actions, names...)
	}
	if limit := p.maxActions(names); len(p.actions) > limit {
		p.actions = p.actions[:limit]
	}
	p.prevActions = append(p.prevActions[:0], p.actions...)
}

// Snapshot captures the committed state.
func (p *Perturbative) Snapshot() Snapshot {
	s := Snapshot{
		Values:      make(map[string][]float64, len(p.vars)),
		Actions:     append([]string(nil), p.prevActions...),
		Baseline:    p.baseline,
		HasBaseline: p.hasBaseline,
	}
	for _, v := range p.vars {
		s.Values[v.Name()] = v.Values()
	}
	return s
}

// Restore loads committed state. Entries that do not fit a variable are
// skipped and the variable keeps its current value.
func (p *Perturbative) Restore(s Snapshot) {
	for _, v := range p.vars {
		vals, ok := s.Values[v.Name()]
		if !ok {
			continue
		}
		if err := v.Restore(vals); err != nil {
			slog.Warn("ignoring stored value", "variable", v.Name(), "error", err)
		}
	}
	if len(s.Actions) > 0 {
		p.actions = append([]string(nil), s.Actions...)
		p.prevActions = append([]string(nil), s.Actions...)
		p.sanitized = false
	}
	p.baseline, p.hasBaseline = s.Baseline, s.HasBaseline
	p.trial = false
}

// Close saves the committed state to the configured Store, if any.
func (p *Perturbative) Close() error {
	if p.cfg.Store == nil || p.cfg.ID == "" {
		return nil
	}
	if err := p.cfg.Store.SaveSnapshot(p.cfg.ID, p.Snapshot()); err != nil {
		return fmt.Errorf("save policy %s: %w", p.cfg.ID, err)
	}
	return nil
}
