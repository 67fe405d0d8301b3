package experiment

import (
	"context"
	"testing"

	"github.com/san-kum/hybridslq/internal/config"
	"github.com/san-kum/hybridslq/internal/problems"
	"github.com/san-kum/hybridslq/internal/slq"
)

func TestExperimentNotSetup(t *testing.T) {
	exp := New(config.DefaultConfig())
	if _, err := exp.Run(context.Background()); err == nil {
		t.Error("expected an error before Setup")
	}
	if err := exp.Close(); err != nil {
		t.Errorf("Close without a solver should be a no-op, got %v", err)
	}
}

func TestExperimentSetupErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Problem = "missing"
	if err := New(cfg).Setup(problems.NewRegistry(), nil); err == nil {
		t.Error("expected unknown problem error")
	}

	cfg = config.DefaultConfig()
	cfg.FinalTime = cfg.StartTime
	if err := New(cfg).Setup(problems.NewRegistry(), nil); err == nil {
		t.Error("expected invalid horizon error")
	}
}

func TestSolveCollectsMetrics(t *testing.T) {
	cfg := config.GetPreset("exp0_single")
	cfg.Settings.MaxNumIterations = 2

	reg := NewRegistry()
	res, err := Solve(context.Background(), cfg, problems.NewRegistry(), reg.DefaultMetrics(nil))
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if res.Status.State == slq.Failed {
		t.Fatalf("unexpected failure: %v", res.Status.Err)
	}
	for _, name := range reg.ListMetrics() {
		if _, ok := res.Metrics[name]; !ok {
			t.Errorf("missing metric %s in %v", name, res.Metrics)
		}
	}
	if v := res.Metrics["state_bound"]; v < 0 || v > 1 {
		t.Errorf("state_bound is a fraction, got %f", v)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.GetMetric("nope", nil); err == nil {
		t.Error("expected unknown metric error")
	}

	a, err := reg.GetMetric("control_effort", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := reg.GetMetric("control_effort", nil)
	if a == b {
		t.Error("each call should return a fresh metric")
	}

	names := reg.ListMetrics()
	want := []string{"control_effort", "input_energy", "state_bound"}
	if len(names) != len(want) {
		t.Fatalf("ListMetrics() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ListMetrics()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}
