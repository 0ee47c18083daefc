package decision

import "github.com/talgya/agentsim/internal/engine"

// HistoryTracker records a learning policy's most recent loss and baseline
// once per tick.
type HistoryTracker struct {
	Policy   *Perturbative
	Loss     []float64
	Baseline []float64
}

// NewHistoryTracker creates a tracker for p.
func NewHistoryTracker(p *Perturbative) *HistoryTracker {
	return &HistoryTracker{Policy: p}
}

func (t *HistoryTracker) Track(*engine.Simulation) error {
	h := t.Policy.history
	if len(h) == 0 {
		return nil
	}
	last := h[len(h)-1]
	t.Loss = append(t.Loss, last.Loss)
	t.Baseline = append(t.Baseline, t.Policy.baseline)
	return nil
}

func (t *HistoryTracker) Series() map[string][]float64 {
	return map[string][]float64{
		"loss":     append([]float64(nil), t.Loss...),
		"baseline": append([]float64(nil), t.Baseline...),
	}
}
