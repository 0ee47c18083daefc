package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Engine drives a simulation forward at a controllable pace. Simulation.Simulate
// runs flat out; Engine is for observed runs where a viewer follows along.
type Engine struct {
	Sim         *Simulation
	Interval    time.Duration // Base tick interval at speed 1.0
	ReportEvery int           // Ticks between OnReport calls (0 = never)

	// Callbacks, run on the engine goroutine between ticks.
	OnTick   func(sim *Simulation)
	OnReport func(sim *Simulation)

	mu      sync.Mutex
	speed   float64 // Multiplier: 1.0 = Interval per tick, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine for sim with default settings.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		Sim:         sim,
		Interval:    100 * time.Millisecond,
		ReportEvery: 100,
		speed:       1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the pace. Zero pauses; negative values are treated as zero.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run ticks the simulation until maxTicks ticks have run (0 = unbounded),
// the end condition holds, Stop is called, ctx is cancelled, or a tick fails.
func (e *Engine) Run(ctx context.Context, maxTicks int) error {
	if _, err := e.Sim.endCheck(); err != nil {
		return err
	}

	e.mu.Lock()
	e.running = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	slog.Info("simulation engine started", "time", e.Sim.Time, "speed", e.Speed(), "agents", e.Sim.Len())

	for ran := 0; maxTicks <= 0 || ran < maxTicks; {
		if stopped(ctx, stop) {
			break
		}
		speed := e.Speed()
		if speed <= 0 {
			// Paused; sleep briefly and check again.
			if !e.wait(ctx, stop, 100*time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()

		done, err := e.Sim.Step()
		if err != nil {
			slog.Error("simulation engine failed", "time", e.Sim.Time, "error", err)
			return err
		}
		ran++

		if e.OnTick != nil {
			e.OnTick(e.Sim)
		}
		if e.ReportEvery > 0 && e.Sim.Time%e.ReportEvery == 0 && e.OnReport != nil {
			e.OnReport(e.Sim)
		}
		if done {
			slog.Info("end condition reached", "time", e.Sim.Time)
			break
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target && !e.wait(ctx, stop, target-elapsed) {
			break
		}
	}

	slog.Info("simulation engine stopped", "time", e.Sim.Time)
	return ctx.Err()
}

// wait sleeps for d and reports whether the loop should continue.
func (e *Engine) wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Stop halts a running loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}
