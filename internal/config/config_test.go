package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/schedule"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Problem != "exp0" {
		t.Errorf("expected problem exp0, got %s", cfg.Problem)
	}
	if cfg.FinalTime <= cfg.StartTime {
		t.Error("horizon should not be empty")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("exp0")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Partitions != 4 {
		t.Errorf("expected 4 partitions, got %d", cfg.Partitions)
	}

	// Presets are fresh copies.
	cfg.Partitions = 7
	if GetPreset("exp0").Partitions != 4 {
		t.Error("modifying a preset must not leak into the next call")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestPresetsAreValid(t *testing.T) {
	for _, name := range ListPresets() {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	want := []string{"exp0", "exp0_constrained", "exp0_single", "exp1"}
	if len(presets) != len(want) {
		t.Fatalf("expected %v, got %v", want, presets)
	}
	for i := range want {
		if presets[i] != want[i] {
			t.Errorf("expected %v, got %v", want, presets)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty problem", func(c *Config) { c.Problem = "" }},
		{"empty horizon", func(c *Config) { c.FinalTime = c.StartTime }},
		{"no partitions", func(c *Config) { c.Partitions = 0 }},
		{"bad partition times", func(c *Config) { c.PartitionTimes = []float64{0, 1.5, 1, 2} }},
		{"bad mode schedule", func(c *Config) { c.Subsystems = []int{0, 1} }},
		{"bad settings", func(c *Config) { c.Settings.NThreads = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, dynamo.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Partitions = 4
	b := cfg.Boundaries()
	if len(b) != 5 || b[0] != 0 || b[4] != 2 {
		t.Errorf("unexpected uniform boundaries %v", b)
	}

	cfg.PartitionTimes = []float64{0, 0.5, 2}
	if b := cfg.Boundaries(); len(b) != 3 || b[1] != 0.5 {
		t.Errorf("explicit boundaries should win, got %v", b)
	}
}

func TestModes(t *testing.T) {
	cfg := DefaultConfig()
	fallback := schedule.Single(0)

	m, err := cfg.Modes(fallback)
	if err != nil || len(m.Subsystems) != 1 {
		t.Errorf("expected fallback schedule, got %v (%v)", m, err)
	}

	cfg.SwitchingTimes = []float64{0.5}
	cfg.Subsystems = []int{1, 0}
	m, err = cfg.Modes(fallback)
	if err != nil {
		t.Fatal(err)
	}
	if m.ModeAt(1) != 0 || m.ModeAt(0) != 1 {
		t.Errorf("unexpected schedule %+v", m)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := GetPreset("exp1")
	cfg.Settings.DisplayInfo = true

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Problem != "exp1" || loaded.Partitions != 3 || !loaded.Settings.DisplayInfo {
		t.Errorf("unexpected config after round trip: %+v", loaded)
	}
	if loaded.Settings.MaxNumIterations != 30 {
		t.Errorf("expected 30 iterations, got %d", loaded.Settings.MaxNumIterations)
	}
}

func TestGetInitState(t *testing.T) {
	cfg := DefaultConfig()
	state := cfg.GetInitState()
	state[0] = 42
	if cfg.InitialState[0] == 42 {
		t.Error("GetInitState must copy")
	}
}
