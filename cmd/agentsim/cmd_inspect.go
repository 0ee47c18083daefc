package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/talgya/agentsim/internal/persistence/serieslog"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file.jsonl.zst>",
		Short: "Summarize a series log",
		Long: `Print a series log's header and the last value of every series.
With --key, print that one series tick by tick instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, recs, err := serieslog.Read(args[0])
			if err != nil {
				return fmt.Errorf("read series log: %w", err)
			}
			key, _ := cmd.Flags().GetString("key")
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if key != "" {
				column := make([][2]float64, 0, len(recs))
				for _, r := range recs {
					if v, ok := r.Values[key]; ok {
						column = append(column, [2]float64{float64(r.Tick), v})
					}
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]any{"key": key, "points": column})
				}
				for _, p := range column {
					fmt.Fprintf(out, "%d\t%g\n", int(p[0]), p[1])
				}
				return nil
			}

			var last serieslog.Record
			if len(recs) > 0 {
				last = recs[len(recs)-1]
			}
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"header": h,
					"ticks":  len(recs),
					"last":   last,
				})
			}

			fmt.Fprintf(out, "run:      %s\n", h.Run)
			fmt.Fprintf(out, "scenario: %s\n", h.Scenario)
			fmt.Fprintf(out, "seed:     %d\n", h.Seed)
			fmt.Fprintf(out, "started:  %s\n", h.Started.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "ticks:    %d\n", len(recs))
			if len(recs) == 0 {
				return nil
			}
			fmt.Fprintf(out, "agents:   %d\n\n", last.Agents)
			keys := make([]string, 0, len(last.Values))
			for k := range last.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %-40s %g\n", k, last.Values[k])
			}
			return nil
		},
	}
	cmd.Flags().String("key", "", "Print one series, e.g. population/agents")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}
