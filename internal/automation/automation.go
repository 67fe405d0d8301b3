package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/hybridslq/internal/config"
	"github.com/san-kum/hybridslq/internal/logging"
	"github.com/san-kum/hybridslq/internal/slq"
)

// RunFunc solves one configuration.
type RunFunc func(ctx context.Context, cfg *config.Config) (*slq.Result, error)

// Scenario is a scripted batch of solver runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset or a config file (or the defaults) and
// overrides the listed fields.
type ScenarioStep struct {
	Name         string    `yaml:"name"`
	Preset       string    `yaml:"preset"`
	Config       string    `yaml:"config"`
	Problem      string    `yaml:"problem"`
	Partitions   int       `yaml:"partitions"`
	Iterations   *int      `yaml:"iterations"`
	Threads      int       `yaml:"threads"`
	InitialState []float64 `yaml:"initial_state"`
}

// StepResult pairs a step with its outcome.
type StepResult struct {
	Step   ScenarioStep
	Config *config.Config
	Result *slq.Result
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}

	return &scenario, nil
}

// Resolve builds the configuration of a step.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	cfg := config.DefaultConfig()
	switch {
	case s.Config != "":
		loaded, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	}

	if s.Problem != "" {
		cfg.Problem = s.Problem
	}
	if s.Partitions > 0 {
		cfg.Partitions = s.Partitions
		cfg.PartitionTimes = nil
	}
	if s.Iterations != nil {
		cfg.Settings.MaxNumIterations = *s.Iterations
	}
	if s.Threads > 0 {
		cfg.Settings.NThreads = s.Threads
	}
	if len(s.InitialState) > 0 {
		cfg.InitialState = append([]float64(nil), s.InitialState...)
	}
	return cfg, cfg.Validate()
}

// RunScenario executes all steps in order. A solver failure is recorded in
// the step's result; configuration errors and cancellation stop the batch.
func RunScenario(ctx context.Context, scenario *Scenario, run RunFunc) ([]StepResult, error) {
	log := logging.FromContext(ctx).WithName("automation")
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		log.Info("Running step", "step", i+1, "of", len(scenario.Steps), "name", step.Name, "problem", cfg.Problem)

		result, err := run(ctx, cfg)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Step: step, Config: cfg, Result: result})
	}

	return results, nil
}

// MonteCarloConfig perturbs the initial state of a base run.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
}

// MonteCarloResult is one perturbed run.
type MonteCarloResult struct {
	TrialID      int
	InitialState []float64
	Status       slq.Status
	Performance  slq.PerformanceIndex
	Iterations   int
}

func (r MonteCarloResult) Converged() bool {
	return r.Status.State == slq.Converged
}

// RunMonteCarlo solves the base problem from uniformly perturbed initial states.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, run RunFunc) ([]MonteCarloResult, error) {
	if cfg.Base == nil || cfg.NumTrials < 1 {
		return nil, fmt.Errorf("monte carlo needs a base config and at least one trial")
	}
	log := logging.FromContext(ctx).WithName("automation")
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for trial := 0; trial < cfg.NumTrials; trial++ {
		initState := make([]float64, len(cfg.Base.InitialState))
		for i, v := range cfg.Base.InitialState {
			initState[i] = v + (rng.Float64()-0.5)*2*cfg.Perturbation
		}

		trialCfg := *cfg.Base
		trialCfg.InitialState = initState

		result, err := run(ctx, &trialCfg)
		if err != nil {
			return results, err
		}

		results = append(results, MonteCarloResult{
			TrialID:      trial,
			InitialState: initState,
			Status:       result.Status,
			Performance:  result.Performance,
			Iterations:   result.Iterations,
		})

		if (trial+1)%10 == 0 {
			log.Info("Monte Carlo progress", "done", trial+1, "trials", cfg.NumTrials)
		}
	}

	return results, nil
}

// MonteCarloSummary aggregates the converged trials.
type MonteCarloSummary struct {
	Converged      int
	Failed         int
	MeanCost       float64
	StdCost        float64
	MeanIterations float64
}

// MonteCarloStats computes summary statistics from Monte Carlo results
func MonteCarloStats(results []MonteCarloResult) MonteCarloSummary {
	var s MonteCarloSummary
	var costs, iters []float64
	for _, r := range results {
		if !r.Converged() {
			s.Failed++
			continue
		}
		s.Converged++
		costs = append(costs, r.Performance.Cost)
		iters = append(iters, float64(r.Iterations))
	}
	s.MeanCost, s.StdCost = math.NaN(), math.NaN()
	if len(costs) > 0 {
		s.MeanCost = stat.Mean(costs, nil)
		s.MeanIterations = stat.Mean(iters, nil)
	}
	if len(costs) > 1 {
		s.StdCost = stat.StdDev(costs, nil)
	}
	return s
}
