package decision

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestConstructorsRejectBadBounds(t *testing.T) {
	if _, err := NewInt("i", 3, 1, 2); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("NewInt min>max: %v", err)
	}
	if _, err := NewFloat("f", 1, 0, 0.5); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("NewFloat min>max: %v", err)
	}
	if _, err := NewFloat("f", math.NaN(), 1, 0.5); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("NewFloat NaN: %v", err)
	}
	if _, err := NewVector("v", 0, SumConstraint{Total: 1}, nil); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("NewVector n=0: %v", err)
	}
	if _, err := NewVector("v", 2, SumConstraint{Total: -1}, nil); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("NewVector negative total: %v", err)
	}
	if _, err := NewVector("v", 2, SumConstraint{Total: 1}, []float64{1}); err == nil {
		t.Error("NewVector length mismatch should fail")
	}
}

func TestInitialValuesClamped(t *testing.T) {
	i, _ := NewInt("i", 0, 4, 9)
	if i.Value() != 4 {
		t.Errorf("Int initial = %d, want 4", i.Value())
	}
	f, _ := NewFloat("f", -1, 1, -3)
	if f.Value() != -1 {
		t.Errorf("Float initial = %g, want -1", f.Value())
	}
}

func TestPerturbStaysLegal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	i, _ := NewInt("i", -2, 2, 0)
	f, _ := NewFloat("f", 0, 10, 5)
	v, _ := NewVector("v", 4, SumConstraint{Total: 3}, []float64{3, 0, 0, 0})

	for n := 0; n < 500; n++ {
		rate := rng.Float64()
		i.Perturb(rng, rate)
		f.Perturb(rng, rate)
		v.Perturb(rng, rate)

		if i.Value() < -2 || i.Value() > 2 {
			t.Fatalf("Int out of range: %d", i.Value())
		}
		if f.Value() < 0 || f.Value() > 10 {
			t.Fatalf("Float out of range: %g", f.Value())
		}
		sum := 0.0
		for _, x := range v.Value() {
			if x < 0 {
				t.Fatalf("negative vector entry %g", x)
			}
			sum += x
		}
		if math.Abs(sum-3) > 1e-9 {
			t.Fatalf("vector sum = %g, want 3", sum)
		}
	}
}

func TestIntPerturbStepsAndRate(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	i, _ := NewInt("i", 0, 100, 50)
	i.Perturb(rng, 0.001)
	if d := i.Value() - 50; d != 1 && d != -1 {
		t.Fatalf("small-rate perturbation moved %d, want one step", d)
	}

	still, _ := NewInt("still", 0, 100, 50)
	for k := 0; k < 20; k++ {
		still.Perturb(rng, 0)
	}
	if still.Value() != 50 {
		t.Fatalf("zero-rate perturbation moved the value to %d", still.Value())
	}

	fixed, _ := NewInt("fixed", 7, 7, 7)
	fixed.Perturb(rng, 1)
	if fixed.Value() != 7 {
		t.Fatal("degenerate range must not move")
	}
}

func TestSumConstraintApply(t *testing.T) {
	tests := []struct {
		in, want []float64
		total    float64
	}{
		{[]float64{1, 1}, []float64{2, 2}, 4},
		{[]float64{-1, 3}, []float64{0, 4}, 4},
		{[]float64{-1, -1}, []float64{1, 1}, 2},
		{[]float64{0, 0, 0}, []float64{0, 0, 0}, 0},
	}
	for _, tt := range tests {
		got := append([]float64(nil), tt.in...)
		SumConstraint{Total: tt.total}.Apply(got)
		for k := range got {
			if math.Abs(got[k]-tt.want[k]) > 1e-12 {
				t.Errorf("Apply(%v, %g) = %v, want %v", tt.in, tt.total, got, tt.want)
				break
			}
		}
	}
}

func TestCommitRevertRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	f, _ := NewFloat("f", 0, 1, 0.5)
	f.Perturb(rng, 1)
	f.Revert()
	if f.Value() != 0.5 {
		t.Fatalf("Revert = %g", f.Value())
	}
	f.Perturb(rng, 1)
	trial := f.Value()
	f.Commit()
	f.Perturb(rng, 1)
	f.Revert()
	if f.Value() != trial {
		t.Fatalf("Revert after Commit = %g, want %g", f.Value(), trial)
	}

	if err := f.Restore([]float64{2}); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("Restore out of range = %v", err)
	}
	if err := f.Restore([]float64{0.25}); err != nil || f.Value() != 0.25 || f.Values()[0] != 0.25 {
		t.Fatalf("Restore = %v, value %g", err, f.Value())
	}

	v, _ := NewVector("v", 2, SumConstraint{Total: 1}, nil)
	if err := v.Restore([]float64{3, 1}); err != nil {
		t.Fatal(err)
	}
	if got := v.Value(); got[0] != 0.75 || got[1] != 0.25 {
		t.Fatalf("Vector restore renormalized to %v", got)
	}
}
