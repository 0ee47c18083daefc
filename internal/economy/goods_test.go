package economy

import (
	"errors"
	"math"
	"testing"
)

func TestConversionTable(t *testing.T) {
	tests := []struct {
		name  string
		rates [][]float64
		ok    bool
	}{
		{"square", [][]float64{{1, 2}, {0.4, 1}}, true},
		{"empty", nil, false},
		{"ragged", [][]float64{{1, 2}, {1}}, false},
		{"negative", [][]float64{{1, -2}, {1, 1}}, false},
		{"nan", [][]float64{{1, math.NaN()}, {1, 1}}, false},
	}
	for _, tt := range tests {
		_, err := NewConversionTable(tt.rates)
		if (err == nil) != tt.ok {
			t.Errorf("%s: err = %v", tt.name, err)
		}
	}

	table, _ := NewConversionTable([][]float64{{1, 2}, {0.4, 1}})
	if r, _ := table.Rate(0, 1); r != 2 {
		t.Errorf("Rate(0,1) = %g", r)
	}
	if r, _ := table.Rate(1, 0); r != 0.4 {
		t.Errorf("Rate(1,0) = %g", r)
	}
	if _, err := table.Rate(2, 0); !errors.Is(err, ErrUnknownCommodity) {
		t.Errorf("Rate out of range: %v", err)
	}
}

func TestCommodities(t *testing.T) {
	cs := Commodities{"wheat", "cloth"}
	if c, err := cs.Lookup("cloth"); err != nil || c != 1 {
		t.Fatalf("Lookup = %d, %v", c, err)
	}
	if _, err := cs.Lookup("wine"); !errors.Is(err, ErrUnknownCommodity) {
		t.Fatalf("Lookup unknown = %v", err)
	}
	if cs.Name(0) != "wheat" || cs.Name(7) != "commodity(7)" {
		t.Fatalf("Name = %q, %q", cs.Name(0), cs.Name(7))
	}
	h := Holdings{1, 2}
	c := h.Clone()
	c[0] = 9
	if h[0] != 1 || h.Total() != 3 {
		t.Fatalf("Clone aliases or Total wrong: %v", h)
	}
}
