package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/agentsim/internal/api"
	"github.com/talgya/agentsim/internal/config"
	"github.com/talgya/agentsim/internal/engine"
	"github.com/talgya/agentsim/internal/entropy"
	"github.com/talgya/agentsim/internal/logging"
	"github.com/talgya/agentsim/internal/metrics"
	"github.com/talgya/agentsim/internal/persistence"
	"github.com/talgya/agentsim/internal/persistence/serieslog"
)

// addRunFlags registers the flags shared by every scenario command.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("ticks", 0, "Ticks to run (0 with --serve = until stopped)")
	cmd.Flags().Int64("seed", 0, "Random seed (0 = pick one)")
	cmd.Flags().Bool("serve", false, "Serve the run over HTTP while it progresses")
	cmd.Flags().Int("port", 0, "HTTP port for --serve")
	cmd.Flags().Float64("speed", 1, "Initial speed multiplier for --serve (0 = paused)")
	cmd.Flags().String("db", "", "SQLite database for runs, policies and transactions")
	cmd.Flags().String("series", "", "Directory for compressed per-tick series logs (empty = off)")
}

// loadConfig resolves the config file, the environment and the command's
// flags, in that order, and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("ticks") {
		cfg.Ticks, _ = flags.GetInt("ticks")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("port") {
		cfg.API.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("db") {
		cfg.Storage.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("series") {
		cfg.Series.Dir, _ = flags.GetString("series")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))
	return cfg, nil
}

// run owns everything a single scenario run opens.
type run struct {
	cfg      *config.Config
	scenario string
	sim      *engine.Simulation
	db       *persistence.DB
	id       string
	series   *serieslog.Writer
}

func newRun(ctx context.Context, cfg *config.Config, scenario string) (*run, error) {
	if cfg.Seed == 0 {
		cfg.Seed = entropy.NewSource(cfg.Entropy.RandomOrgKey).Seed(ctx)
	}
	sim := engine.New(cfg.Seed)
	sim.SlowTickWarn = cfg.SlowTickWarn

	r := &run{cfg: cfg, scenario: scenario, sim: sim}
	if cfg.Storage.DBPath != "" {
		db, err := persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		id, err := db.StartRun(scenario, cfg.Seed)
		if err != nil {
			db.Close()
			return nil, err
		}
		r.db, r.id = db, id
	} else {
		r.id = uuid.NewString()
	}
	slog.Info("run configured", "run", r.id, "scenario", scenario, "seed", cfg.Seed, "ticks", cfg.Ticks)
	return r, nil
}

// execute steps the simulation. With serve it runs under an Engine behind
// the HTTP API; otherwise it runs flat out for cfg.Ticks ticks.
func (r *run) execute(ctx context.Context, serve bool, speed float64) error {
	if !serve && r.cfg.Ticks <= 0 {
		return errors.New("--ticks must be positive without --serve")
	}

	var renderers engine.Renderers
	if r.cfg.Series.Dir != "" {
		w, err := serieslog.Create(r.cfg.Series.Dir, r.sim, serieslog.Header{
			Run:      r.id,
			Scenario: r.scenario,
			Seed:     r.cfg.Seed,
			Started:  time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("create series log: %w", err)
		}
		r.series = w
		renderers = append(renderers, w)
	}

	if !serve {
		r.sim.Renderer = renderers
		return r.sim.Simulate(ctx, r.cfg.Ticks)
	}

	eng := engine.NewEngine(r.sim)
	eng.Interval = r.cfg.API.Interval
	eng.SetSpeed(speed)
	eng.OnReport = func(sim *engine.Simulation) {
		slog.Info("progress", "time", sim.Time, "agents", sim.Len())
	}

	collector := metrics.New(r.sim, r.scenario)
	srv := api.NewServer(r.sim, eng)
	srv.DB = r.db
	srv.RunID = r.id
	srv.Scenario = r.scenario
	srv.Port = r.cfg.API.Port
	srv.AdminKey = r.cfg.API.AdminKey
	srv.Metrics = collector.Handler()
	r.sim.Renderer = append(renderers, collector, srv)

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv.Start(srvCtx)

	err := eng.Run(ctx, r.cfg.Ticks)
	if errors.Is(err, context.Canceled) {
		slog.Info("run interrupted", "time", r.sim.Time)
		return nil
	}
	return err
}

// finish closes the series log and stamps the run in the database.
func (r *run) finish() error {
	var errs []error
	if r.series != nil {
		errs = append(errs, r.series.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.FinishRun(r.id, r.sim), r.db.Close())
	}
	return errors.Join(errs...)
}
