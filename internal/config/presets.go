package config

import (
	"sort"

	"github.com/san-kum/hybridslq/internal/slq"
)

// Presets are ready-made runs of the bundled problems.
var Presets = map[string]func() *Config{
	"exp0": func() *Config {
		s := exp0Settings()
		return &Config{
			Problem: "exp0", StartTime: 0, FinalTime: 2, InitialState: []float64{0, 2},
			Partitions: 4, Settings: s,
		}
	},
	"exp0_single": func() *Config {
		s := exp0Settings()
		s.NThreads = 1
		return &Config{
			Problem: "exp0", StartTime: 0, FinalTime: 2, InitialState: []float64{0, 2},
			Partitions: 1, Settings: s,
		}
	},
	"exp0_constrained": func() *Config {
		s := exp0Settings()
		s.NoStateConstraints = false
		return &Config{
			Problem: "exp0_constrained", StartTime: 0, FinalTime: 2, InitialState: []float64{0, 2},
			Partitions: 2, Settings: s,
		}
	},
	"exp1": func() *Config {
		s := slq.DefaultSettings()
		s.MaxNumIterations = 30
		s.MinRelCost = 1e-4
		return &Config{
			Problem: "exp1", StartTime: 0, FinalTime: 3, InitialState: []float64{2, 3},
			Partitions: 3, Settings: s,
		}
	},
}

// exp0Settings only lifts the iteration cap; the default tolerances already
// resolve the exp0 optimum.
func exp0Settings() slq.Settings {
	s := slq.DefaultSettings()
	s.MaxNumIterations = 30
	return s
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
