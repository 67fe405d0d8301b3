package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hybridslq/internal/control"
	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/rollout"
	"github.com/san-kum/hybridslq/internal/slq"
)

func sampleResult(t *testing.T) *slq.Result {
	t.Helper()
	c := control.NewLinear(2, 1)
	if err := c.Append(0, mat.NewDense(1, 2, []float64{-0.1, 1.0 / 3.0}), dynamo.Control{0.5}); err != nil {
		t.Fatal(err)
	}
	if err := c.Append(1, mat.NewDense(1, 2, []float64{-0.2, 0.25}), dynamo.Control{-1e-17}); err != nil {
		t.Fatal(err)
	}

	tr := &rollout.Trajectory{
		Partition: 0,
		Times:     []float64{0, 0.5, 1},
		States:    []dynamo.State{{0, 2}, {0.5, 1.9}, {1, 1.8}},
		Inputs:    []dynamo.Control{{0.5}, {0.1}, {0}},
		Modes:     []int{0, 1, 1},
	}
	return &slq.Result{
		Controller:   c,
		Performance:  slq.PerformanceIndex{Cost: 9.77, Merit: 9.77},
		Status:       slq.Status{State: slq.Failed, Failure: slq.RiccatiDivergence, Reason: slq.ReasonAlgorithmicFailure, Err: errors.New("boom")},
		Iterations:   1,
		Trajectories: []*rollout.Trajectory{tr},
		History: []slq.IterationRecord{
			{Iteration: 0, Performance: slq.PerformanceIndex{Cost: 20}},
			{Iteration: 1, Performance: slq.PerformanceIndex{Cost: 9.77}},
		},
		Metrics: map[string]float64{"control_effort": 0.2},
		Elapsed: time.Second,
	}
}

func saveSample(t *testing.T) (*Store, string) {
	t.Helper()
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	runID, err := st.Save(Run{
		Problem:      "exp0",
		StartTime:    0,
		FinalTime:    1,
		InitialState: []float64{0, 2},
		Partitions:   []float64{0, 1},
		Settings:     slq.DefaultSettings(),
		Result:       sampleResult(t),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	return st, runID
}

func TestStoreSaveLoad(t *testing.T) {
	st, runID := saveSample(t)

	if !strings.HasPrefix(runID, "exp0_") {
		t.Errorf("unexpected run id %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Problem != "exp0" || meta.Iterations != 1 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.State != "failed" || meta.Failure != "riccati_divergence" || meta.Error != "boom" {
		t.Errorf("status not stored: %+v", meta)
	}
	if len(meta.History) != 2 || meta.History[0].Cost != 20 {
		t.Errorf("history not stored: %+v", meta.History)
	}
	if meta.StateDim != 2 || meta.InputDim != 1 || meta.ControllerKind != "linear" {
		t.Errorf("controller shape not stored: %+v", meta)
	}
	if meta.Metrics["control_effort"] != 0.2 {
		t.Errorf("metrics not stored: %v", meta.Metrics)
	}
}

func TestStoreControllerRoundTrip(t *testing.T) {
	st, runID := saveSample(t)
	orig := sampleResult(t).Controller

	c, err := st.LoadController(runID)
	if err != nil {
		t.Fatalf("load controller failed: %v", err)
	}
	if c.Kind != control.Linear || c.Len() != orig.Len() {
		t.Fatalf("unexpected controller %v with %d samples", c.Kind, c.Len())
	}
	for _, tm := range orig.Times {
		want, got := orig.Flatten(tm), c.Flatten(tm)
		for i := range want {
			if want[i] != got[i] {
				t.Errorf("t=%v entry %d: got %v, want %v", tm, i, got[i], want[i])
			}
		}
	}
}

func TestStoreTrajectory(t *testing.T) {
	st, runID := saveSample(t)

	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		t.Fatalf("load trajectory failed: %v", err)
	}
	if len(traj.Times) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(traj.Times))
	}
	if traj.Modes[1] != 1 || traj.States[1][1] != 1.9 || traj.Inputs[1][0] != 0.1 {
		t.Errorf("unexpected sample: mode %d state %v input %v", traj.Modes[1], traj.States[1], traj.Inputs[1])
	}
}

func TestStoreList(t *testing.T) {
	st, runID := saveSample(t)

	if err := os.WriteFile(filepath.Join(st.baseDir, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(st.baseDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Errorf("expected only %s, got %+v", runID, runs)
	}

	empty := New(filepath.Join(t.TempDir(), "missing"))
	runs, err = empty.List()
	if err != nil || len(runs) != 0 {
		t.Errorf("missing directory should list nothing, got %v (%v)", runs, err)
	}
}

func TestSaveRejectsEmptyResult(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Save(Run{Problem: "exp0"}); err == nil {
		t.Error("expected an error for a run without result")
	}
}

func TestExportJSON(t *testing.T) {
	st, runID := saveSample(t)

	data, err := st.Export(runID)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var buf bytes.Buffer
	if err := ExportJSON(&buf, data); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded ExportData
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Run.ID != runID || decoded.Controller.Kind != "linear" {
		t.Errorf("unexpected export header %+v", decoded.Run)
	}
	if len(decoded.Controller.Samples) != 2 || len(decoded.Controller.Samples[0]) != 3 {
		t.Errorf("unexpected controller samples %v", decoded.Controller.Samples)
	}
	if len(decoded.Trajectory.Times) != 3 {
		t.Errorf("unexpected trajectory %+v", decoded.Trajectory)
	}
}
