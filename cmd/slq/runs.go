package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/hybridslq/internal/config"
	"github.com/san-kum/hybridslq/internal/problems"
	"github.com/san-kum/hybridslq/internal/storage"
)

func (c *cli) listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(c.dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tTIME\tPARTS\tITERS\tSTATE\tCOST")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%.6g\n",
			run.ID,
			run.Problem,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Partitions)-1,
			run.Iterations,
			run.State,
			run.Performance.Cost,
		)
	}

	return w.Flush()
}

func (c *cli) plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(c.dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(traj.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run: %s\n", meta.ID)
	fmt.Fprintf(out, "problem: %s\n", meta.Problem)
	fmt.Fprintf(out, "samples: %d\n\n", len(traj.Times))

	plot := func(data []float64, caption string) {
		fmt.Fprintln(out, asciigraph.Plot(data,
			asciigraph.Height(c.plotHeight),
			asciigraph.Width(c.plotWidth),
			asciigraph.Caption(caption),
		))
		fmt.Fprintln(out)
	}

	for i := 0; i < meta.StateDim; i++ {
		plot(column(traj.States, i), fmt.Sprintf("x%d vs time", i))
	}
	for i := 0; i < meta.InputDim; i++ {
		plot(column(traj.Inputs, i), fmt.Sprintf("u%d vs time", i))
	}

	modes := make([]float64, len(traj.Modes))
	for i, m := range traj.Modes {
		modes[i] = float64(m)
	}
	plot(modes, "active subsystem")

	if len(meta.History) > 1 {
		merit := make([]float64, len(meta.History))
		for i, h := range meta.History {
			merit[i] = h.Merit
		}
		plot(merit, "merit per iteration")
	}
	return nil
}

func column(rows [][]float64, i int) []float64 {
	data := make([]float64, len(rows))
	for k, row := range rows {
		if i < len(row) {
			data[k] = row[i]
		}
	}
	return data
}

func (c *cli) exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(c.dataDir)
	data, err := st.Export(args[0])
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if c.output != "" {
		f, err := os.Create(c.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return storage.ExportJSON(w, data)
}

func (c *cli) listPresets(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "presets:")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(out, "  %-18s problem=%s horizon=[%g, %g] partitions=%d\n",
			name, p.Problem, p.StartTime, p.FinalTime, len(p.Boundaries())-1)
	}

	fmt.Fprintln(out, "problems:")
	reg := problems.NewRegistry()
	for _, name := range reg.List() {
		p, err := reg.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-18s %s\n", name, p.Description)
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
