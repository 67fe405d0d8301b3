package slq

import (
	"fmt"
	"math"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/integrators"
)

// Settings tunes a solver run. The zero value is not usable; start from
// DefaultSettings.
type Settings struct {
	Integrator           string  `yaml:"integrator" json:"integrator"`
	AbsTolODE            float64 `yaml:"abs_tol_ode" json:"abs_tol_ode"`
	RelTolODE            float64 `yaml:"rel_tol_ode" json:"rel_tol_ode"`
	MaxNumStepsPerSecond float64 `yaml:"max_num_steps_per_second" json:"max_num_steps_per_second"`
	MaxTimeStep          float64 `yaml:"max_time_step" json:"max_time_step"`

	NThreads         int `yaml:"n_threads" json:"n_threads"`
	MaxNumIterations int `yaml:"max_num_iterations" json:"max_num_iterations"`

	LSStepsizeGreedy          bool    `yaml:"ls_stepsize_greedy" json:"ls_stepsize_greedy"`
	MaxLearningRate           float64 `yaml:"max_learning_rate" json:"max_learning_rate"`
	LineSearchContractionRate float64 `yaml:"line_search_contraction_rate" json:"line_search_contraction_rate"`
	MinLearningRate           float64 `yaml:"min_learning_rate" json:"min_learning_rate"`
	LineSearchNoiseTolerance  float64 `yaml:"line_search_noise_tolerance" json:"line_search_noise_tolerance"`

	NoStateConstraints          bool    `yaml:"no_state_constraints" json:"no_state_constraints"`
	StateConstraintPenaltyCoeff float64 `yaml:"state_constraint_penalty_coeff" json:"state_constraint_penalty_coeff"`
	StateConstraintPenaltyBase  float64 `yaml:"state_constraint_penalty_base" json:"state_constraint_penalty_base"`

	MinRelCost           float64 `yaml:"min_rel_cost" json:"min_rel_cost"`
	MinRelConstraint1ISE float64 `yaml:"min_rel_constraint1_ise" json:"min_rel_constraint1_ise"`

	CheckNumericalStability bool    `yaml:"check_numerical_stability" json:"check_numerical_stability"`
	StabilityTolerance      float64 `yaml:"stability_tolerance" json:"stability_tolerance"`

	DisplayInfo         bool `yaml:"display_info" json:"display_info"`
	DisplayShortSummary bool `yaml:"display_short_summary" json:"display_short_summary"`
}

func DefaultSettings() Settings {
	return Settings{
		Integrator:           integrators.DormandPrince,
		AbsTolODE:            1e-9,
		RelTolODE:            1e-6,
		MaxNumStepsPerSecond: 5000,
		MaxTimeStep:          1e-2,

		NThreads:         4,
		MaxNumIterations: 15,

		LSStepsizeGreedy:          true,
		MaxLearningRate:           1.0,
		LineSearchContractionRate: 0.5,
		MinLearningRate:           0.05,
		LineSearchNoiseTolerance:  1e-9,

		NoStateConstraints:          true,
		StateConstraintPenaltyCoeff: 0,
		StateConstraintPenaltyBase:  1,

		MinRelCost:           1e-3,
		MinRelConstraint1ISE: 1e-3,

		CheckNumericalStability: true,
		StabilityTolerance:      1e-6,
	}
}

// Validate rejects settings no run could use. Every error wraps
// dynamo.ErrInvalidConfiguration.
func (s Settings) Validate() error {
	check := func(ok bool, format string, args ...any) error {
		if ok {
			return nil
		}
		return fmt.Errorf("%w: %s", dynamo.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
	}
	if _, err := integrators.New(s.Integrator); err != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrInvalidConfiguration, err)
	}
	for _, err := range []error{
		check(s.AbsTolODE > 0, "abs_tol_ode must be positive, got %g", s.AbsTolODE),
		check(s.RelTolODE > 0, "rel_tol_ode must be positive, got %g", s.RelTolODE),
		check(s.MaxNumStepsPerSecond >= 0, "max_num_steps_per_second must not be negative"),
		check(s.MaxTimeStep > 0, "max_time_step must be positive, got %g", s.MaxTimeStep),
		check(s.NThreads >= 1, "n_threads must be at least 1, got %d", s.NThreads),
		check(s.MaxNumIterations >= 0, "max_num_iterations must not be negative"),
		check(s.MinLearningRate > 0, "min_learning_rate must be positive, got %g", s.MinLearningRate),
		check(s.MaxLearningRate >= s.MinLearningRate, "max_learning_rate %g below min_learning_rate %g",
			s.MaxLearningRate, s.MinLearningRate),
		check(s.LineSearchContractionRate > 0 && s.LineSearchContractionRate < 1,
			"line_search_contraction_rate must lie in (0, 1), got %g", s.LineSearchContractionRate),
		check(s.LineSearchNoiseTolerance >= 0, "line_search_noise_tolerance must not be negative"),
		check(s.StateConstraintPenaltyCoeff >= 0, "state_constraint_penalty_coeff must not be negative"),
		check(s.StateConstraintPenaltyBase > 0, "state_constraint_penalty_base must be positive"),
		check(s.MinRelCost >= 0, "min_rel_cost must not be negative"),
		check(s.MinRelConstraint1ISE >= 0, "min_rel_constraint1_ise must not be negative"),
		check(s.StabilityTolerance >= 0, "stability_tolerance must not be negative"),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// LearningRates lists the step sizes a line search tries, largest first.
func (s Settings) LearningRates() []float64 {
	var rates []float64
	floor := s.MinLearningRate * (1 - 1e-9)
	for a := s.MaxLearningRate; a >= floor; a *= s.LineSearchContractionRate {
		rates = append(rates, a)
	}
	return rates
}

// Penalty is the type-2 constraint weight used at iteration iter.
func (s Settings) Penalty(iter int) float64 {
	return s.StateConstraintPenaltyCoeff * math.Pow(s.StateConstraintPenaltyBase, float64(iter))
}

// settled reports whether an accepted step with the given merit change ends
// the run. Type-1 violations only count when constraints are enforced.
func (s Settings) settled(change float64, p PerformanceIndex) bool {
	feasible := s.NoStateConstraints || p.ISE1 < s.MinRelConstraint1ISE
	return change < s.MinRelCost && feasible
}
