// Package market runs a comparative-advantage trading scenario: traders
// produce goods at different rates, trade them through a mediator, and
// learn production allocations and trades from their change in wealth.
package market

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/agentsim/internal/decision"
	"github.com/talgya/agentsim/internal/economy"
	"github.com/talgya/agentsim/internal/engine"
)

// Tracker names registered by New.
const (
	TrackerTransactions = "transaction"
	TrackerAllocation   = "allocation"
	TrackerHoldings     = "holdings"
	learningPrefix      = "learning_"
)

// Scenario is a running market.
type Scenario struct {
	Sim         *engine.Simulation
	Commodities economy.Commodities
	Rates       *economy.ConversionTable
	Mediator    *economy.Mediator
	Traders     []*Trader

	Transactions *TransactionTracker
	Allocations  *AllocationTracker
}

// New populates sim with cfg's traders and registers the market trackers.
func New(sim *engine.Simulation, cfg Config) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rates, err := economy.NewConversionTable(cfg.Conversions)
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}

	s := &Scenario{
		Sim:         sim,
		Commodities: economy.Commodities(append([]string(nil), cfg.Commodities...)),
		Rates:       rates,
		Mediator:    economy.NewMediator(rates),
	}

	for i, tc := range cfg.Traders {
		t, err := newTrader(i, tc, cfg, len(cfg.Traders))
		if err != nil {
			return nil, err
		}
		a := engine.NewAgent()
		a.State = t
		a.Decision = t.Policy
		a.Handle(ActionTrade, s.trade)
		a.Handle(ActionAllocate, allocate)
		a.Handle(ActionDone, func(*engine.Simulation, *engine.Agent) error { return nil })
		t.agent = a
		s.Traders = append(s.Traders, t)
		sim.Add(a)
		sim.AddTracker(learningPrefix+t.Name, decision.NewHistoryTracker(t.Policy))
	}

	s.Transactions = NewTransactionTracker(s.Commodities)
	s.Allocations = &AllocationTracker{scenario: s, Data: make(map[string]map[string][]float64)}
	sim.AddTracker(TrackerTransactions, s.Transactions)
	sim.AddTracker(TrackerAllocation, s.Allocations)
	sim.AddTracker(TrackerHoldings, &HoldingsTracker{scenario: s, Data: make(map[string][]float64)})
	sim.OnTickStart(s.preStep)

	slog.Info("market ready", "traders", len(s.Traders), "commodities", len(s.Commodities), "nonconformity", cfg.nonconformity())
	return s, nil
}

// preStep runs before any agent acts: production from last tick's
// allocation, then every unmatched intent goes back to its seller.
func (s *Scenario) preStep(*engine.Simulation) error {
	for _, t := range s.Traders {
		t.produce()
	}
	s.Mediator.Refund()
	return nil
}

func traderOf(a *engine.Agent) (*Trader, error) {
	t, ok := a.State.(*Trader)
	if !ok {
		return nil, fmt.Errorf("market: agent %d is not a trader", a.Index())
	}
	return t, nil
}

func (s *Scenario) trade(sim *engine.Simulation, a *engine.Agent) error {
	t, err := traderOf(a)
	if err != nil {
		return err
	}
	target := s.Traders[t.Target.Value()]
	tx, settled, err := s.Mediator.Submit(t, target,
		economy.Commodity(t.Sell.Value()), economy.Commodity(t.Buy.Value()), t.Amount.Value())
	if err != nil {
		return err
	}
	if settled {
		tx.Time = sim.Time
		s.Transactions.Record(tx)
	}
	return nil
}

func allocate(_ *engine.Simulation, a *engine.Agent) error {
	t, err := traderOf(a)
	if err != nil {
		return err
	}
	if t.allocation == nil {
		t.allocation = economy.Holdings(t.Allocation.Value())
	}
	return nil
}

// Trader returns the trader called name.
func (s *Scenario) Trader(name string) (*Trader, bool) {
	for _, t := range s.Traders {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Wealth sums every trader's holdings.
func (s *Scenario) Wealth() float64 {
	sum := 0.0
	for _, t := range s.Traders {
		sum += t.Holdings.Total()
	}
	return sum
}

// Close saves every trader's policy.
func (s *Scenario) Close() error {
	var errs []error
	for _, t := range s.Traders {
		errs = append(errs, t.Policy.Close())
	}
	return errors.Join(errs...)
}
