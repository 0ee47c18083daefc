package market

import (
	"fmt"

	"github.com/talgya/agentsim/internal/decision"
	"github.com/talgya/agentsim/internal/economy"
	"github.com/talgya/agentsim/internal/engine"
)

// Action names.
const (
	ActionTrade    = "trade_commodity"
	ActionAllocate = "allocate_production"
	ActionDone     = "done"
)

// Trader produces commodities and trades them with other traders. It is an
// economy.Account.
type Trader struct {
	Name     string
	Holdings economy.Holdings
	Rates    []float64 // Units produced per unit of allocated capacity
	Capacity float64

	// Allocation chosen this tick, consumed by the next tick's production.
	allocation economy.Holdings
	previous   economy.Holdings

	id    int
	agent *engine.Agent

	Sell       *decision.Int
	Buy        *decision.Int
	Target     *decision.Int
	Amount     *decision.Float
	Allocation *decision.Vector
	Policy     *decision.Perturbative
}

func (t *Trader) ID() int { return t.id }

func (t *Trader) Balance(c economy.Commodity) float64 {
	if int(c) < 0 || int(c) >= len(t.Holdings) {
		return 0
	}
	return t.Holdings[c]
}

func (t *Trader) Adjust(c economy.Commodity, delta float64) {
	t.Holdings[c] += delta
}

// Agent returns the simulation agent acting for t.
func (t *Trader) Agent() *engine.Agent { return t.agent }

// CurrentAllocation returns the allocation pending production, or nil.
func (t *Trader) CurrentAllocation() economy.Holdings { return t.allocation.Clone() }

func (t *Trader) String() string { return t.Name }

func newTrader(id int, tc TraderConfig, cfg Config, traders int) (*Trader, error) {
	k := len(cfg.Commodities)
	t := &Trader{
		Name:     tc.Name,
		Holdings: make(economy.Holdings, k),
		previous: make(economy.Holdings, k),
		Rates:    append([]float64(nil), tc.ProductionRates...),
		Capacity: float64(k),
		id:       id,
	}

	var err error
	if t.Sell, err = decision.NewInt("sell", 0, k-1, 0); err != nil {
		return nil, err
	}
	if t.Buy, err = decision.NewInt("buy", 0, k-1, 0); err != nil {
		return nil, err
	}
	if t.Target, err = decision.NewInt("target", 0, traders-1, id); err != nil {
		return nil, err
	}
	if t.Amount, err = decision.NewFloat("amount", 0, cfg.MaxTradeAmount, 0); err != nil {
		return nil, err
	}
	if t.Allocation, err = decision.NewVector("allocation", k, decision.SumConstraint{Total: t.Capacity}, nil); err != nil {
		return nil, err
	}

	t.Policy, err = decision.NewPerturbative(decision.Config{
		NonconformityProbability: cfg.nonconformity(),
		DiscountFactor:           cfg.DiscountFactor,
		Perturbation:             cfg.Perturbation,
		Actions:                  []string{ActionAllocate, ActionTrade, ActionDone},
		MaxActions:               4,
		Terminal:                 ActionDone,
		Store:                    cfg.Store,
		ID:                       "trader-" + tc.Name,
	}, t.loss, t.Sell, t.Buy, t.Target, t.Amount, t.Allocation)
	if err != nil {
		return nil, fmt.Errorf("trader %s: %w", tc.Name, err)
	}
	return t, nil
}

// loss is the negated mean change in holdings since the last evaluation.
// The first two ticks score 0: their deltas only reflect the start-up
// allocation.
func (t *Trader) loss(sim *engine.Simulation, _ *engine.Agent) float64 {
	delta := 0.0
	for c := range t.Holdings {
		delta += t.Holdings[c] - t.previous[c]
	}
	copy(t.previous, t.Holdings)
	if sim.Time <= 1 || len(t.Holdings) == 0 {
		return 0
	}
	return -delta / float64(len(t.Holdings))
}

// produce credits output from the allocation chosen last tick.
func (t *Trader) produce() {
	if t.allocation == nil {
		return
	}
	for c := range t.Holdings {
		t.Holdings[c] += t.Rates[c] * t.allocation[c]
	}
	t.allocation = nil
}
