// Package economy provides the commodity taxonomy, directional conversion
// rates and the mediation engine that nets opposing trade intents.
package economy

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownCommodity is returned for a commodity id or name outside the
// taxonomy.
var ErrUnknownCommodity = errors.New("economy: unknown commodity")

// Commodity identifies a good by its position in the taxonomy.
type Commodity int

// Commodities is the ordered taxonomy of tradeable goods.
type Commodities []string

// Valid reports whether c is in the taxonomy.
func (cs Commodities) Valid(c Commodity) bool {
	return c >= 0 && int(c) < len(cs)
}

// Name returns the name of c, or a placeholder for an unknown id.
func (cs Commodities) Name(c Commodity) string {
	if !cs.Valid(c) {
		return fmt.Sprintf("commodity(%d)", int(c))
	}
	return cs[c]
}

// Lookup finds a commodity by name.
func (cs Commodities) Lookup(name string) (Commodity, error) {
	for i, n := range cs {
		if n == name {
			return Commodity(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommodity, name)
}

// Holdings is a quantity per commodity, indexed by Commodity.
type Holdings []float64

// Clone returns an independent copy.
func (h Holdings) Clone() Holdings {
	return append(Holdings(nil), h...)
}

// Total sums all quantities.
func (h Holdings) Total() float64 {
	sum := 0.0
	for _, v := range h {
		sum += v
	}
	return sum
}

// ConversionTable holds directional conversion rates: Rate(x, y) units of y
// are worth one unit of x. Rate(x, y) need not equal 1/Rate(y, x).
type ConversionTable struct {
	n     int
	rates []float64
}

// NewConversionTable builds a table from a square matrix of non-negative,
// finite rates, rows indexed by the source commodity.
func NewConversionTable(rates [][]float64) (*ConversionTable, error) {
	n := len(rates)
	if n == 0 {
		return nil, errors.New("economy: empty conversion table")
	}
	t := &ConversionTable{n: n, rates: make([]float64, 0, n*n)}
	for i, row := range rates {
		if len(row) != n {
			return nil, fmt.Errorf("economy: conversion row %d has %d entries, want %d", i, len(row), n)
		}
		for j, r := range row {
			if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
				return nil, fmt.Errorf("economy: conversion rate [%d][%d] = %g", i, j, r)
			}
		}
		t.rates = append(t.rates, row...)
	}
	return t, nil
}

// Len returns the number of commodities the table covers.
func (t *ConversionTable) Len() int { return t.n }

// Rate returns how many units of to one unit of from converts into.
func (t *ConversionTable) Rate(from, to Commodity) (float64, error) {
	if from < 0 || int(from) >= t.n || to < 0 || int(to) >= t.n {
		return 0, fmt.Errorf("%w: rate %d -> %d", ErrUnknownCommodity, from, to)
	}
	return t.rates[int(from)*t.n+int(to)], nil
}
