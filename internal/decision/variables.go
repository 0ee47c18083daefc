package decision

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"
)

// ErrInvalidBounds is returned when a variable's legal range is empty.
var ErrInvalidBounds = errors.New("decision: invalid bounds")

// Variable is a learnable decision parameter owned by one agent. It holds
// the value in use this tick and the last committed value it can revert to.
type Variable interface {
	Name() string

	// Perturb proposes a new value, moving at most rate × range, and keeps
	// the result legal.
	Perturb(rng *rand.Rand, rate float64)
	Commit()
	Revert()

	// Values and Restore carry the committed value through a Store.
	Values() []float64
	Restore(values []float64) error
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// spread draws uniformly from [-1, 1).
func spread(rng *rand.Rand) float64 {
	return 2*rng.Float64() - 1
}

// Int is a bounded integer variable.
type Int struct {
	name     string
	min, max int
	value    int
	prev     int
}

// NewInt creates an integer variable in [min, max]. The initial value is
// clamped into range.
func NewInt(name string, min, max, initial int) (*Int, error) {
	if min > max {
		return nil, fmt.Errorf("%w: %s: min %d > max %d", ErrInvalidBounds, name, min, max)
	}
	v := clamp(initial, min, max)
	return &Int{name: name, min: min, max: max, value: v, prev: v}, nil
}

func (v *Int) Name() string { return v.name }
func (v *Int) Value() int   { return v.value }
func (v *Int) Min() int     { return v.min }
func (v *Int) Max() int     { return v.max }

// Perturb moves the value by up to rate × span. Any positive rate moves it
// at least one step; a zero rate leaves it alone.
func (v *Int) Perturb(rng *rand.Rand, rate float64) {
	span := v.max - v.min
	if span == 0 || !(rate > 0) {
		return
	}
	delta := int(math.Round(spread(rng) * rate * float64(span)))
	if delta == 0 {
		delta = 1
		if rng.Intn(2) == 0 {
			delta = -1
		}
	}
	v.value = clamp(v.value+delta, v.min, v.max)
}

func (v *Int) Commit() { v.prev = v.value }
func (v *Int) Revert() { v.value = v.prev }

func (v *Int) Values() []float64 { return []float64{float64(v.prev)} }

func (v *Int) Restore(values []float64) error {
	if len(values) != 1 {
		return fmt.Errorf("decision: %s: want 1 value, got %d", v.name, len(values))
	}
	n := int(math.Round(values[0]))
	if n < v.min || n > v.max {
		return fmt.Errorf("%w: %s: stored %d outside [%d, %d]", ErrInvalidBounds, v.name, n, v.min, v.max)
	}
	v.value, v.prev = n, n
	return nil
}

// Float is a bounded float variable.
type Float struct {
	name     string
	min, max float64
	value    float64
	prev     float64
}

// NewFloat creates a float variable in [min, max].
func NewFloat(name string, min, max, initial float64) (*Float, error) {
	if !(min <= max) {
		return nil, fmt.Errorf("%w: %s: min %g > max %g", ErrInvalidBounds, name, min, max)
	}
	v := clamp(initial, min, max)
	return &Float{name: name, min: min, max: max, value: v, prev: v}, nil
}

func (v *Float) Name() string   { return v.name }
func (v *Float) Value() float64 { return v.value }

// Bounds returns the legal range.
func (v *Float) Bounds() (float64, float64) { return v.min, v.max }

func (v *Float) Perturb(rng *rand.Rand, rate float64) {
	v.value = clamp(v.value+spread(rng)*rate*(v.max-v.min), v.min, v.max)
}

func (v *Float) Commit() { v.prev = v.value }
func (v *Float) Revert() { v.value = v.prev }

func (v *Float) Values() []float64 { return []float64{v.prev} }

func (v *Float) Restore(values []float64) error {
	if len(values) != 1 {
		return fmt.Errorf("decision: %s: want 1 value, got %d", v.name, len(values))
	}
	if values[0] < v.min || values[0] > v.max {
		return fmt.Errorf("%w: %s: stored %g outside [%g, %g]", ErrInvalidBounds, v.name, values[0], v.min, v.max)
	}
	v.value, v.prev = values[0], values[0]
	return nil
}

// SumConstraint requires a vector's entries to be non-negative and sum to
// Total.
type SumConstraint struct {
	Total float64
}

// Apply clips negative entries to zero, then rescales so the entries sum to
// Total. An all-zero vector becomes uniform.
func (c SumConstraint) Apply(x []float64) {
	if len(x) == 0 {
		return
	}
	sum := 0.0
	for i := range x {
		if x[i] < 0 || math.IsNaN(x[i]) {
			x[i] = 0
		}
		sum += x[i]
	}
	if sum == 0 {
		for i := range x {
			x[i] = c.Total / float64(len(x))
		}
		return
	}
	k := c.Total / sum
	for i := range x {
		x[i] *= k
	}
}

// Vector is a float vector under a SumConstraint.
type Vector struct {
	name       string
	constraint SumConstraint
	value      []float64
	prev       []float64
}

// NewVector creates a vector of n entries. A nil initial value starts
// uniform; otherwise it is copied and brought into the constraint.
func NewVector(name string, n int, c SumConstraint, initial []float64) (*Vector, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %s: vector length %d", ErrInvalidBounds, name, n)
	}
	if c.Total < 0 || math.IsNaN(c.Total) {
		return nil, fmt.Errorf("%w: %s: negative total %g", ErrInvalidBounds, name, c.Total)
	}
	if initial != nil && len(initial) != n {
		return nil, fmt.Errorf("decision: %s: initial has %d entries, want %d", name, len(initial), n)
	}
	value := make([]float64, n)
	copy(value, initial)
	c.Apply(value)
	return &Vector{
		name:       name,
		constraint: c,
		value:      value,
		prev:       append([]float64(nil), value...),
	}, nil
}

func (v *Vector) Name() string { return v.name }

// Value returns a copy of the current entries.
func (v *Vector) Value() []float64 { return append([]float64(nil), v.value...) }

// Total returns the constrained sum.
func (v *Vector) Total() float64 { return v.constraint.Total }

func (v *Vector) Perturb(rng *rand.Rand, rate float64) {
	for i := range v.value {
		v.value[i] += spread(rng) * rate * v.constraint.Total
	}
	v.constraint.Apply(v.value)
}

func (v *Vector) Commit() { copy(v.prev, v.value) }
func (v *Vector) Revert() { copy(v.value, v.prev) }

func (v *Vector) Values() []float64 { return append([]float64(nil), v.prev...) }

func (v *Vector) Restore(values []float64) error {
	if len(values) != len(v.value) {
		return fmt.Errorf("decision: %s: want %d values, got %d", v.name, len(v.value), len(values))
	}
	next := append([]float64(nil), values...)
	v.constraint.Apply(next)
	copy(v.value, next)
	copy(v.prev, next)
	return nil
}
