package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/hybridslq/internal/automation"
	"github.com/san-kum/hybridslq/internal/config"
	"github.com/san-kum/hybridslq/internal/logging"
	"github.com/san-kum/hybridslq/internal/optim"
	"github.com/san-kum/hybridslq/internal/slq"
)

func (c *cli) toolCommands() []*cobra.Command {
	tuneCmd := &cobra.Command{
		Use:   "tune [problem]",
		Short: "grid search over solver settings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.tune,
	}
	c.solverFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&c.grid, "grid", nil, "setting=v1,v2,... (repeatable)")
	_ = tuneCmd.MarkFlagRequired("grid")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run every step of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  c.batch,
	}
	batchCmd.Flags().BoolVar(&c.noSave, "no-save", false, "do not store the runs")
	batchCmd.Flags().Float64Var(&c.bound, "bound", 10, "state box for the state_bound metric")

	robustCmd := &cobra.Command{
		Use:   "robust [problem]",
		Short: "solve from randomly perturbed initial states",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.robust,
	}
	c.solverFlags(robustCmd)
	robustCmd.Flags().IntVar(&c.trials, "trials", 20, "number of perturbed runs")
	robustCmd.Flags().Float64Var(&c.perturb, "perturb", 0.5, "half-width of the uniform perturbation")
	robustCmd.Flags().Int64Var(&c.seed, "seed", 1, "random seed (0 picks one)")

	return []*cobra.Command{tuneCmd, batchCmd, robustCmd}
}

func withLogger(cmd *cobra.Command, cfg *config.Config) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	cmd.SetContext(logging.IntoContext(cmd.Context(), log))
	return nil
}

func (c *cli) tune(cmd *cobra.Command, args []string) error {
	cfg, err := c.resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := withLogger(cmd, cfg); err != nil {
		return err
	}
	grid, err := optim.ParseGrid(c.grid)
	if err != nil {
		return err
	}

	best, trials, err := grid.Search(cmd.Context(), cfg, c.solve())
	if err != nil {
		return err
	}

	names := make([]string, 0)
	if len(trials) > 0 {
		for name := range trials[0].Params {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t", name)
	}
	fmt.Fprintln(w, "STATE\tMERIT")
	for _, tr := range trials {
		for _, name := range names {
			fmt.Fprintf(w, "%g\t", tr.Params[name])
		}
		state := tr.Status.State.String()
		if tr.Err != nil {
			state = "error"
		}
		fmt.Fprintf(w, "%s\t%.9g\n", state, tr.Merit)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if best == nil {
		return fmt.Errorf("no grid point converged")
	}
	fmt.Fprintf(out, "\nbest: %v merit=%.9g\n", best.Params, best.Merit)
	return nil
}

func (c *cli) batch(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	cfg := config.DefaultConfig()
	cfg.Log.Verbosity, cfg.Log.JSON = c.verbosity, c.logJSON
	if err := withLogger(cmd, cfg); err != nil {
		return err
	}

	results, err := automation.RunScenario(cmd.Context(), scenario, c.solve())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPROBLEM\tSTATE\tITERS\tCOST\tRUN")
	for i, r := range results {
		runID, err := c.store(r.Config, r.Result)
		if err != nil {
			return err
		}
		name := r.Step.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.9g\t%s\n",
			name, r.Config.Problem, r.Result.Status.State, r.Result.Iterations, r.Result.Performance.Cost, runID)
	}
	return w.Flush()
}

func (c *cli) robust(cmd *cobra.Command, args []string) error {
	cfg, err := c.resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := withLogger(cmd, cfg); err != nil {
		return err
	}

	results, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: c.perturb,
		NumTrials:    c.trials,
		Seed:         c.seed,
	}, c.solve())
	if err != nil {
		return err
	}

	s := automation.MonteCarloStats(results)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "trials: %d  converged: %d  failed: %d\n", len(results), s.Converged, s.Failed)
	fmt.Fprintf(out, "cost: mean=%.6g std=%.3g  iterations: mean=%.2f\n", s.MeanCost, s.StdCost, s.MeanIterations)
	for _, r := range results {
		if r.Status.State == slq.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "trial %d from %v failed: %s\n", r.TrialID, r.InitialState, r.Status.Failure)
		}
	}
	return nil
}
