package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/schedule"
	"github.com/san-kum/hybridslq/internal/slq"
)

const (
	DefaultProblem    = "exp0"
	DefaultStartTime  = 0.0
	DefaultFinalTime  = 2.0
	DefaultPartitions = 1
)

// Config describes one solver run: the problem, its horizon and partitioning,
// an optional mode schedule override and the solver settings.
type Config struct {
	Problem      string    `yaml:"problem"`
	StartTime    float64   `yaml:"start_time"`
	FinalTime    float64   `yaml:"final_time"`
	InitialState []float64 `yaml:"initial_state"`

	// Partitions splits the horizon uniformly. PartitionTimes, when set,
	// lists the boundaries explicitly and wins over Partitions.
	Partitions     int       `yaml:"partitions"`
	PartitionTimes []float64 `yaml:"partition_times,omitempty"`

	// SwitchingTimes and Subsystems replace the problem's own mode schedule
	// when Subsystems is set.
	SwitchingTimes []float64 `yaml:"switching_times,omitempty"`
	Subsystems     []int     `yaml:"subsystems,omitempty"`

	Settings slq.Settings `yaml:"settings"`
	Log      LogConfig    `yaml:"log"`
}

type LogConfig struct {
	Verbosity int  `yaml:"verbosity"`
	JSON      bool `yaml:"json"`
}

func DefaultConfig() *Config {
	return &Config{
		Problem:      DefaultProblem,
		StartTime:    DefaultStartTime,
		FinalTime:    DefaultFinalTime,
		InitialState: []float64{0, 2},
		Partitions:   DefaultPartitions,
		Settings:     slq.DefaultSettings(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks everything that does not need the problem itself.
func (c *Config) Validate() error {
	if c.Problem == "" {
		return fmt.Errorf("%w: problem is required", dynamo.ErrInvalidConfiguration)
	}
	if !(c.FinalTime > c.StartTime) {
		return fmt.Errorf("%w: final time %g not after start time %g", dynamo.ErrInvalidConfiguration, c.FinalTime, c.StartTime)
	}
	if len(c.PartitionTimes) == 0 && c.Partitions < 1 {
		return fmt.Errorf("%w: partitions must be at least 1, got %d", dynamo.ErrInvalidConfiguration, c.Partitions)
	}
	if _, err := schedule.NewPartitions(c.StartTime, c.FinalTime, c.Boundaries()); err != nil {
		return err
	}
	if len(c.Subsystems) > 0 {
		if _, err := schedule.NewModeSchedule(c.SwitchingTimes, c.Subsystems); err != nil {
			return err
		}
	}
	return c.Settings.Validate()
}

// Boundaries returns the partition boundaries of the horizon.
func (c *Config) Boundaries() []float64 {
	if len(c.PartitionTimes) > 0 {
		return append([]float64(nil), c.PartitionTimes...)
	}
	return schedule.Uniform(c.StartTime, c.FinalTime, c.Partitions)
}

// Modes returns the configured mode schedule, or fallback when none is set.
func (c *Config) Modes(fallback schedule.ModeSchedule) (schedule.ModeSchedule, error) {
	if len(c.Subsystems) == 0 {
		return fallback, nil
	}
	return schedule.NewModeSchedule(c.SwitchingTimes, c.Subsystems)
}

func (c *Config) GetInitState() dynamo.State {
	return dynamo.State(append([]float64(nil), c.InitialState...))
}
