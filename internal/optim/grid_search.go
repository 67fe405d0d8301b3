// Package optim tunes solver settings by exhaustive search over a grid.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/hybridslq/internal/config"
	"github.com/san-kum/hybridslq/internal/logging"
	"github.com/san-kum/hybridslq/internal/slq"
)

// Trial is one grid point and how the solver fared on it.
type Trial struct {
	Params map[string]float64
	Merit  float64
	Status slq.Status
	Err    error
}

// Feasible reports whether the trial converged to a usable controller.
func (t Trial) Feasible() bool {
	return t.Err == nil && t.Status.State == slq.Converged && !math.IsNaN(t.Merit)
}

// RunFunc solves one configuration.
type RunFunc func(ctx context.Context, cfg *config.Config) (*slq.Result, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// ParseGrid reads "name=v1,v2,..." entries.
func ParseGrid(entries []string) (*GridSearch, error) {
	g := &GridSearch{}
	for _, e := range entries {
		name, list, ok := strings.Cut(e, "=")
		if !ok || name == "" || list == "" {
			return nil, fmt.Errorf("grid entry %q is not name=v1,v2", e)
		}
		var values []float64
		for _, s := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("grid entry %q: %w", e, err)
			}
			values = append(values, v)
		}
		g.paramNames = append(g.paramNames, strings.TrimSpace(name))
		g.ranges = append(g.ranges, values)
	}
	return g, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	if len(g.ranges) == 0 {
		return 0
	}
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search runs base with every grid point applied and returns the feasible
// trial of lowest merit together with all trials in grid order. best is nil
// when no point converged.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, run RunFunc) (*Trial, []Trial, error) {
	log := logging.FromContext(ctx).WithName("optim")
	trials := make([]Trial, 0, g.Size())

	err := g.searchRecursive(ctx, 0, make(map[string]float64), func(params map[string]float64) error {
		cfg, err := Apply(base, params)
		if err != nil {
			return err
		}
		trial := Trial{Params: params, Merit: math.NaN()}
		res, err := run(ctx, cfg)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			trial.Err = err
		} else {
			trial.Merit = res.Performance.Merit
			trial.Status = res.Status
		}
		log.V(logging.VERBOSE).Info("Grid point", "params", params, "merit", trial.Merit, "state", trial.Status.State.String())
		trials = append(trials, trial)
		return nil
	})
	if err != nil {
		return nil, trials, err
	}

	var best *Trial
	for i := range trials {
		if trials[i].Feasible() && (best == nil || trials[i].Merit < best.Merit) {
			best = &trials[i]
		}
	}
	return best, trials, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		return visit(current)
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, visit); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of base with params set. Names are the YAML keys of
// the solver settings, plus "partitions" for a uniform partitioning.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	raw, err := yaml.Marshal(base)
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}

	settings := make(map[string]any)
	if err := decodeInto(cfg.Settings, &settings); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := params[name]
		if name == "partitions" {
			cfg.Partitions = int(v)
			cfg.PartitionTimes = nil
			continue
		}
		if _, ok := settings[name]; !ok {
			return nil, fmt.Errorf("unknown setting: %s", name)
		}
		settings[name] = v
	}

	var s slq.Settings
	if err := decodeInto(settings, &s); err != nil {
		return nil, fmt.Errorf("apply grid point: %w", err)
	}
	cfg.Settings = s
	return cfg, nil
}

func decodeInto(in, out any) error {
	raw, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}
