package engine

// Tracker observes the simulation once per tick, after population changes
// are applied. Trackers must not mutate simulation state.
type Tracker interface {
	Track(sim *Simulation) error
}

// TrackerFunc adapts a function to the Tracker interface.
type TrackerFunc func(sim *Simulation) error

// Track calls f(sim).
func (f TrackerFunc) Track(sim *Simulation) error { return f(sim) }

// SeriesSource is implemented by trackers that accumulate named time series
// for plotting collaborators.
type SeriesSource interface {
	Series() map[string][]float64
}

// AgentCountTracker records the population size every tick.
type AgentCountTracker struct {
	Counts []float64
}

func (t *AgentCountTracker) Track(sim *Simulation) error {
	t.Counts = append(t.Counts, float64(sim.Len()))
	return nil
}

func (t *AgentCountTracker) Series() map[string][]float64 {
	return map[string][]float64{"agents": append([]float64(nil), t.Counts...)}
}

// MetricTracker samples an arbitrary scalar every tick.
type MetricTracker struct {
	Name   string
	Fn     func(sim *Simulation) float64
	Values []float64
}

// NewMetricTracker creates a tracker named name sampling fn.
func NewMetricTracker(name string, fn func(sim *Simulation) float64) *MetricTracker {
	return &MetricTracker{Name: name, Fn: fn}
}

func (t *MetricTracker) Track(sim *Simulation) error {
	t.Values = append(t.Values, t.Fn(sim))
	return nil
}

func (t *MetricTracker) Series() map[string][]float64 {
	return map[string][]float64{t.Name: append([]float64(nil), t.Values...)}
}

// CollectSeries merges the series of every registered tracker that exposes
// any, keyed "<tracker>/<series>".
func CollectSeries(sim *Simulation) map[string][]float64 {
	out := make(map[string][]float64)
	for _, name := range sim.trackerOrder {
		src, ok := sim.trackers[name].(SeriesSource)
		if !ok {
			continue
		}
		for k, v := range src.Series() {
			out[name+"/"+k] = v
		}
	}
	return out
}
