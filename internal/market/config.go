package market

import (
	"errors"
	"fmt"

	"github.com/talgya/agentsim/internal/decision"
)

// TraderConfig describes one trader.
type TraderConfig struct {
	Name            string    `yaml:"name" json:"name"`
	ProductionRates []float64 `yaml:"production_rates" json:"production_rates"`
}

// Config describes a market scenario.
type Config struct {
	Commodities    []string    `yaml:"commodities" json:"commodities"`
	Conversions    [][]float64 `yaml:"conversions" json:"conversions"`
	MaxTradeAmount float64     `yaml:"max_trade_amount" json:"max_trade_amount"`

	// Training raises the default exploration rate.
	Training bool `yaml:"training" json:"training"`

	// NonconformityProbability overrides the training-dependent default
	// when positive.
	NonconformityProbability float64                     `yaml:"nonconformity_probability" json:"nonconformity_probability"`
	DiscountFactor           float64                     `yaml:"discount_factor" json:"discount_factor"`
	Perturbation             decision.PerturbationConfig `yaml:"perturbation" json:"perturbation"`

	Traders []TraderConfig `yaml:"traders" json:"traders"`

	// Store persists each trader's policy under "trader-<name>". Optional.
	Store decision.Store `yaml:"-" json:"-"`
}

const (
	trainingNonconformity = 0.9
	defaultNonconformity  = 0.4
)

// DefaultConfig is the two-country, two-good Ricardian setup: Portugal is
// better at both goods but relatively better at wine.
func DefaultConfig() Config {
	return Config{
		Commodities: []string{"wine", "cloth"},
		Conversions: [][]float64{
			{1, 1},
			{1, 1},
		},
		MaxTradeAmount: 10,
		Training:       true,
		Perturbation: decision.PerturbationConfig{
			RateMin:           0.1,
			RateMax:           0.4,
			ActionProbability: 0.9,
		},
		Traders: []TraderConfig{
			{Name: "england", ProductionRates: []float64{1, 2}},
			{Name: "portugal", ProductionRates: []float64{4, 3}},
		},
	}
}

func (c Config) nonconformity() float64 {
	switch {
	case c.NonconformityProbability > 0:
		return c.NonconformityProbability
	case c.Training:
		return trainingNonconformity
	default:
		return defaultNonconformity
	}
}

// Validate checks the scenario's shape.
func (c Config) Validate() error {
	k := len(c.Commodities)
	if k == 0 {
		return errors.New("market: no commodities")
	}
	if len(c.Conversions) != k {
		return fmt.Errorf("market: conversion table has %d rows for %d commodities", len(c.Conversions), k)
	}
	if c.MaxTradeAmount < 0 {
		return fmt.Errorf("market: negative max trade amount %g", c.MaxTradeAmount)
	}
	if len(c.Traders) == 0 {
		return errors.New("market: no traders")
	}
	seen := make(map[string]bool, len(c.Traders))
	for _, t := range c.Traders {
		if t.Name == "" {
			return errors.New("market: trader without a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("market: duplicate trader %q", t.Name)
		}
		seen[t.Name] = true
		if len(t.ProductionRates) != k {
			return fmt.Errorf("market: trader %q has %d production rates for %d commodities", t.Name, len(t.ProductionRates), k)
		}
		for _, r := range t.ProductionRates {
			if r < 0 {
				return fmt.Errorf("market: trader %q has negative production rate %g", t.Name, r)
			}
		}
	}
	return nil
}
