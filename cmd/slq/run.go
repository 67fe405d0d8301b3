package main

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/hybridslq/internal/config"
	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/experiment"
	"github.com/san-kum/hybridslq/internal/logging"
	"github.com/san-kum/hybridslq/internal/problems"
	"github.com/san-kum/hybridslq/internal/slq"
	"github.com/san-kum/hybridslq/internal/storage"
	"github.com/san-kum/hybridslq/internal/telemetry"
	"github.com/san-kum/hybridslq/internal/tui"
)

// resolveConfig layers defaults, preset, config file, positional problem and
// explicit flags, in that order.
func (c *cli) resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	fromDefaults := true

	if c.preset != "" {
		cfg = config.GetPreset(c.preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", c.preset, config.ListPresets())
		}
		fromDefaults = false
	}
	if c.configFile != "" {
		loaded, err := config.Load(c.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		fromDefaults = false
	}

	if len(args) > 0 && args[0] != cfg.Problem {
		cfg.Problem = args[0]
		// A bare problem name runs on the problem's own horizon.
		if fromDefaults {
			p, err := problems.NewRegistry().Get(cfg.Problem)
			if err != nil {
				return nil, err
			}
			cfg.StartTime, cfg.FinalTime = p.Start, p.Final
			cfg.InitialState = append([]float64(nil), p.X0...)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("partitions") {
		cfg.Partitions = c.partitions
		cfg.PartitionTimes = nil
	}
	if flags.Changed("threads") {
		cfg.Settings.NThreads = c.threads
	}
	if flags.Changed("iterations") {
		cfg.Settings.MaxNumIterations = c.iterations
	}
	if flags.Changed("start") {
		cfg.StartTime = c.startTime
	}
	if flags.Changed("final") {
		cfg.FinalTime = c.finalTime
	}
	if flags.Changed("x0") {
		cfg.InitialState = append([]float64(nil), c.x0...)
	}
	if flags.Changed("integrator") {
		cfg.Settings.Integrator = c.integrator
	}
	if flags.Changed("exhaustive") {
		cfg.Settings.LSStepsizeGreedy = !c.exhaustive
	}
	if flags.Changed("verbosity") {
		cfg.Log.Verbosity = c.verbosity
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = c.logJSON
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logr.Logger, error) {
	if cfg.Log.JSON {
		return logging.NewJSONLogger(cfg.Log.Verbosity)
	}
	return logging.NewLogger(cfg.Log.Verbosity)
}

func (c *cli) metrics() []dynamo.Metric {
	return experiment.NewRegistry().DefaultMetrics(map[string]float64{"bound": c.bound})
}

// solve is the RunFunc shared by every command that runs the solver.
func (c *cli) solve(opts ...slq.Option) func(ctx context.Context, cfg *config.Config) (*slq.Result, error) {
	return func(ctx context.Context, cfg *config.Config) (*slq.Result, error) {
		return experiment.Solve(ctx, cfg, problems.NewRegistry(), c.metrics(), opts...)
	}
}

func (c *cli) store(cfg *config.Config, res *slq.Result) (string, error) {
	if c.noSave {
		return "", nil
	}
	st := storage.New(c.dataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	return st.Save(storage.Run{
		Problem:      cfg.Problem,
		StartTime:    cfg.StartTime,
		FinalTime:    cfg.FinalTime,
		InitialState: cfg.InitialState,
		Partitions:   cfg.Boundaries(),
		Settings:     cfg.Settings,
		Result:       res,
	})
}

func (c *cli) runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := c.resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if c.saveConfig != "" {
		if err := config.Save(c.saveConfig, cfg); err != nil {
			return err
		}
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	ctx := logging.IntoContext(cmd.Context(), log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	recorder, err := telemetry.NewRecorder(reg)
	if err != nil {
		return err
	}
	opts := recorder.Options()
	if c.live {
		opts = append(opts, tui.NewLiveRenderer(cmd.OutOrStdout(), cfg.Problem, c.frameRate).Options()...)
	}

	exp := experiment.New(cfg)
	if err := exp.Setup(problems.NewRegistry(), c.metrics(), opts...); err != nil {
		return err
	}
	defer exp.Close()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	if c.metricsAddr != "" {
		g.Go(func() error {
			return telemetry.Serve(serveCtx, c.metricsAddr, reg)
		})
		log.Info("Serving metrics", "addr", c.metricsAddr)
	}

	var res *slq.Result
	g.Go(func() error {
		defer stopServe()
		var err error
		res, err = exp.Run(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	runID, err := c.store(cfg, res)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), cfg, runID, res)
	return nil
}

func (c *cli) watchOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := c.resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	// The view owns the terminal; logs go nowhere unless asked for as JSON.
	log := logr.Discard()
	if cfg.Log.JSON {
		if log, err = logging.NewJSONLogger(cfg.Log.Verbosity); err != nil {
			return err
		}
	}
	ctx := logging.IntoContext(cmd.Context(), log)

	header := tui.Header{
		Problem:       cfg.Problem,
		Partitions:    len(cfg.Boundaries()) - 1,
		MaxIterations: cfg.Settings.MaxNumIterations,
		Threads:       cfg.Settings.NThreads,
		ExitOnFinish:  c.exitOnFinish,
	}
	res, err := tui.Watch(ctx, header, func(ctx context.Context, opts ...slq.Option) (*slq.Result, error) {
		return c.solve(opts...)(ctx, cfg)
	})
	if err != nil {
		return err
	}

	runID, err := c.store(cfg, res)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), cfg, runID, res)
	return nil
}

func printSummary(w io.Writer, cfg *config.Config, runID string, res *slq.Result) {
	s := tui.Styles
	state := s.Good.Render(fmt.Sprintf("%s (%s)", res.Status.State, res.Status.Reason))
	if res.Status.State == slq.Failed {
		state = s.Warn.Render(fmt.Sprintf("failed: %s", res.Status.Failure))
	}
	fmt.Fprintf(w, "\n   %s  %s\n\n", s.Title.Render(cfg.Problem), state)

	row := func(label, value string) {
		fmt.Fprintf(w, "   %s %s\n", s.Label.Render(fmt.Sprintf("%-12s", label)), s.Value.Render(value))
	}
	if runID != "" {
		row("run id", runID)
	}
	p := res.Performance
	row("iterations", fmt.Sprintf("%d", res.Iterations))
	row("cost", fmt.Sprintf("%.9g", p.Cost))
	row("merit", fmt.Sprintf("%.9g", p.Merit))
	row("ise1", fmt.Sprintf("%.3g", p.ISE1))
	row("ise2", fmt.Sprintf("%.3g", p.ISE2))
	row("elapsed", res.Elapsed.String())
	for _, name := range sortedKeys(res.Metrics) {
		row(name, fmt.Sprintf("%.6f", res.Metrics[name]))
	}
	if res.Status.Err != nil {
		fmt.Fprintf(w, "\n   %s\n", s.Warn.Render(res.Status.Err.Error()))
	}
	fmt.Fprintln(w)
}
