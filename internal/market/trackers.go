package market

import (
	"github.com/talgya/agentsim/internal/economy"
	"github.com/talgya/agentsim/internal/engine"
)

// TransactionTracker buckets settled transactions by tick and keeps the
// volume traded per commodity.
type TransactionTracker struct {
	commodities economy.Commodities
	pending     []economy.Transaction

	Buckets [][]economy.Transaction
	Volume  [][]float64 // [commodity][tick]

	// OnSettle, if set, receives each tick's transactions as the tick closes.
	OnSettle func(tick int, txs []economy.Transaction) error
}

// NewTransactionTracker creates a tracker for the given taxonomy.
func NewTransactionTracker(cs economy.Commodities) *TransactionTracker {
	return &TransactionTracker{
		commodities: cs,
		Volume:      make([][]float64, len(cs)),
	}
}

// Record adds a transaction to the current tick's bucket.
func (t *TransactionTracker) Record(tx economy.Transaction) {
	t.pending = append(t.pending, tx)
}

func (t *TransactionTracker) Track(sim *engine.Simulation) error {
	bucket := t.pending
	t.pending = nil
	t.Buckets = append(t.Buckets, bucket)

	for c := range t.Volume {
		t.Volume[c] = append(t.Volume[c], 0)
	}
	last := len(t.Buckets) - 1
	for _, tx := range bucket {
		t.Volume[tx.Sold][last] += tx.SoldAmount
		t.Volume[tx.Bought][last] += tx.BoughtAmount
	}

	if t.OnSettle != nil && len(bucket) > 0 {
		return t.OnSettle(sim.Time, bucket)
	}
	return nil
}

// Count returns the number of settled transactions so far.
func (t *TransactionTracker) Count() int {
	n := 0
	for _, b := range t.Buckets {
		n += len(b)
	}
	return n
}

func (t *TransactionTracker) Series() map[string][]float64 {
	out := make(map[string][]float64, len(t.Volume))
	for c, v := range t.Volume {
		out["volume/"+t.commodities.Name(economy.Commodity(c))] = append([]float64(nil), v...)
	}
	return out
}

// AllocationTracker records each trader's production allocation per
// commodity, zero on ticks the trader did not allocate.
type AllocationTracker struct {
	scenario *Scenario
	Data     map[string]map[string][]float64 // trader -> commodity -> series
}

func (t *AllocationTracker) Track(*engine.Simulation) error {
	for _, tr := range t.scenario.Traders {
		series, ok := t.Data[tr.Name]
		if !ok {
			series = make(map[string][]float64, len(t.scenario.Commodities))
			t.Data[tr.Name] = series
		}
		for c, name := range t.scenario.Commodities {
			v := 0.0
			if tr.allocation != nil {
				v = tr.allocation[c]
			}
			series[name] = append(series[name], v)
		}
	}
	return nil
}

func (t *AllocationTracker) Series() map[string][]float64 {
	out := make(map[string][]float64)
	for trader, series := range t.Data {
		for commodity, v := range series {
			out[trader+"/"+commodity] = append([]float64(nil), v...)
		}
	}
	return out
}

// HoldingsTracker records each trader's total holdings.
type HoldingsTracker struct {
	scenario *Scenario
	Data     map[string][]float64
}

func (t *HoldingsTracker) Track(*engine.Simulation) error {
	for _, tr := range t.scenario.Traders {
		t.Data[tr.Name] = append(t.Data[tr.Name], tr.Holdings.Total())
	}
	return nil
}

func (t *HoldingsTracker) Series() map[string][]float64 {
	out := make(map[string][]float64, len(t.Data))
	for name, v := range t.Data {
		out[name] = append([]float64(nil), v...)
	}
	return out
}
