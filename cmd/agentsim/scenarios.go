package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talgya/agentsim/internal/economy"
	"github.com/talgya/agentsim/internal/engine"
	"github.com/talgya/agentsim/internal/life"
	"github.com/talgya/agentsim/internal/market"
)

func newLifeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "life",
		Short: "Run the cellular automaton scenario",
		Long: `Run a Life-like automaton: live cells survive on 2 or 3 neighbours and
empty cells with exactly 3 neighbours are born. The run ends early once
every cell has died.

Patterns: ` + strings.Join(life.Patterns(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("pattern") {
				cfg.Life.Pattern, _ = cmd.Flags().GetString("pattern")
			}
			serve, _ := cmd.Flags().GetBool("serve")
			speed, _ := cmd.Flags().GetFloat64("speed")

			r, err := newRun(cmd.Context(), cfg, "life")
			if err != nil {
				return err
			}
			sc, err := life.New(r.sim, cfg.Life.Scenario(cfg.Seed))
			if err != nil {
				return errors.Join(err, r.finish())
			}
			r.sim.EndCondition = engine.EndFunc(life.Extinct)

			runErr := r.execute(cmd.Context(), serve, speed)
			if err := errors.Join(runErr, r.finish()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: life (%s) stopped at tick %d with %d live cells\n",
				r.id, cfg.Life.Pattern, r.sim.Time, len(sc.Living()))
			if r.series != nil {
				fmt.Fprintf(out, "series: %s\n", r.series.Path())
			}
			return nil
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("pattern", "", "Starting pattern (overrides config)")
	return cmd
}

func newMarketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Run the learning market scenario",
		Long: `Run the market: traders split their capacity across commodities,
produce, and trade through a mediator that matches opposite intents.
Each trader learns its allocation and trades by perturbation.

With --db, policies are loaded at start and saved at exit, so successive
runs keep learning.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("training") {
				cfg.Market.Training, _ = cmd.Flags().GetBool("training")
			}
			serve, _ := cmd.Flags().GetBool("serve")
			speed, _ := cmd.Flags().GetFloat64("speed")

			r, err := newRun(cmd.Context(), cfg, "market")
			if err != nil {
				return err
			}
			mc := cfg.Market
			if r.db != nil {
				mc.Store = r.db
			}
			sc, err := market.New(r.sim, mc)
			if err != nil {
				return errors.Join(err, r.finish())
			}
			if r.db != nil {
				sc.Transactions.OnSettle = func(_ int, txs []economy.Transaction) error {
					return r.db.SaveTransactions(r.id, txs)
				}
			}

			runErr := r.execute(cmd.Context(), serve, speed)
			// Policies go to the database before it closes.
			if err := errors.Join(runErr, sc.Close(), r.finish()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: market stopped at tick %d, total wealth %.2f\n", r.id, r.sim.Time, sc.Wealth())
			for _, t := range sc.Traders {
				parts := make([]string, len(t.Holdings))
				for i, v := range t.Holdings {
					parts[i] = fmt.Sprintf("%s=%.2f", sc.Commodities.Name(economy.Commodity(i)), v)
				}
				fmt.Fprintf(out, "  %-10s %s\n", t.Name, strings.Join(parts, " "))
			}
			if r.series != nil {
				fmt.Fprintf(out, "series: %s\n", r.series.Path())
			}
			slog.Debug("outstanding intents at exit", "count", sc.Mediator.Len())
			return nil
		},
	}
	addRunFlags(cmd)
	cmd.Flags().Bool("training", false, "Explore aggressively (overrides config)")
	return cmd
}
