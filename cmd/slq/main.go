package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// cli holds every flag of the command tree.
type cli struct {
	dataDir   string
	verbosity int
	logJSON   bool

	configFile  string
	preset      string
	partitions  int
	threads     int
	iterations  int
	startTime   float64
	finalTime   float64
	x0          []float64
	integrator  string
	exhaustive  bool
	saveConfig  string
	metricsAddr string
	bound       float64
	live        bool
	frameRate   int
	noSave      bool

	exitOnFinish bool

	plotHeight int
	plotWidth  int
	output     string

	grid    []string
	trials  int
	perturb float64
	seed    int64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "slq",
		Short:         "switched-system trajectory optimizer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&c.dataDir, "data", ".hybridslq", "data directory")
	rootCmd.PersistentFlags().IntVarP(&c.verbosity, "verbosity", "v", 0, "log verbosity (0 default, 3 verbose, 4 debug, 5 trace)")
	rootCmd.PersistentFlags().BoolVar(&c.logJSON, "log-json", false, "log as JSON")

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "optimize a problem and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runOptimization,
	}
	c.solverFlags(runCmd)
	runCmd.Flags().StringVar(&c.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	runCmd.Flags().BoolVar(&c.live, "live", false, "draw the merit history while running")
	runCmd.Flags().IntVar(&c.frameRate, "fps", 10, "frame rate for --live")
	runCmd.Flags().BoolVar(&c.noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&c.saveConfig, "save-config", "", "write the resolved configuration to this file")

	watchCmd := &cobra.Command{
		Use:   "watch [problem]",
		Short: "optimize a problem behind a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.watchOptimization,
	}
	c.solverFlags(watchCmd)
	watchCmd.Flags().BoolVar(&c.exitOnFinish, "exit", false, "leave the view when the solver stops")
	watchCmd.Flags().BoolVar(&c.noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  c.listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the nominal trajectory and merit history of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  c.plotRun,
	}
	plotCmd.Flags().IntVar(&c.plotHeight, "height", 10, "plot height")
	plotCmd.Flags().IntVar(&c.plotWidth, "width", 80, "plot width")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  c.exportRun,
	}
	exportCmd.Flags().StringVarP(&c.output, "output", "o", "", "write to file instead of stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets and problems",
		Args:  cobra.NoArgs,
		RunE:  c.listPresets,
	}

	rootCmd.AddCommand(runCmd, watchCmd, listCmd, plotCmd, exportCmd, presetsCmd)
	rootCmd.AddCommand(c.toolCommands()...)
	return rootCmd
}

func (c *cli) solverFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&c.preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&c.partitions, "partitions", 1, "number of uniform time partitions")
	cmd.Flags().IntVar(&c.threads, "threads", 4, "worker threads")
	cmd.Flags().IntVar(&c.iterations, "iterations", 15, "maximum number of iterations")
	cmd.Flags().Float64Var(&c.startTime, "start", 0, "start time")
	cmd.Flags().Float64Var(&c.finalTime, "final", 2, "final time")
	cmd.Flags().Float64SliceVar(&c.x0, "x0", nil, "initial state")
	cmd.Flags().StringVar(&c.integrator, "integrator", "ode45", "ode integrator")
	cmd.Flags().BoolVar(&c.exhaustive, "exhaustive", false, "exhaustive line search")
	cmd.Flags().Float64Var(&c.bound, "bound", 10, "state box for the state_bound metric")
}
