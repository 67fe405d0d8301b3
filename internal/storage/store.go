// Package storage keeps finished solver runs on disk: a metadata.json per
// run plus the controller and nominal trajectory as CSV.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/hybridslq/internal/control"
	"github.com/san-kum/hybridslq/internal/slq"
)

const (
	metadataFile   = "metadata.json"
	controllerFile = "controller.csv"
	trajectoryFile = "trajectory.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID             string                 `json:"id"`
	Problem        string                 `json:"problem"`
	Timestamp      time.Time              `json:"timestamp"`
	StartTime      float64                `json:"start_time"`
	FinalTime      float64                `json:"final_time"`
	InitialState   []float64              `json:"initial_state"`
	Partitions     []float64              `json:"partitions"`
	Settings       slq.Settings           `json:"settings"`
	State          string                 `json:"state"`
	Failure        string                 `json:"failure,omitempty"`
	Reason         string                 `json:"reason"`
	Error          string                 `json:"error,omitempty"`
	Iterations     int                    `json:"iterations"`
	Performance    slq.PerformanceIndex   `json:"performance"`
	History        []slq.PerformanceIndex `json:"history"`
	ControllerKind string                 `json:"controller_kind"`
	StateDim       int                    `json:"state_dim"`
	InputDim       int                    `json:"input_dim"`
	Elapsed        float64                `json:"elapsed_seconds"`
	Metrics        map[string]float64     `json:"metrics"`
}

// Run is what Save persists.
type Run struct {
	Problem      string
	StartTime    float64
	FinalTime    float64
	InitialState []float64
	Partitions   []float64
	Settings     slq.Settings
	Result       *slq.Result
}

func (s *Store) Save(run Run) (string, error) {
	res := run.Result
	if res == nil || res.Controller == nil {
		return "", fmt.Errorf("storage: nothing to save")
	}
	runID := fmt.Sprintf("%s_%s", run.Problem, uuid.NewString())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	stateDim := 0
	if len(res.Trajectories) > 0 && len(res.Trajectories[0].States) > 0 {
		stateDim = len(res.Trajectories[0].States[0])
	}
	meta := RunMetadata{
		ID:             runID,
		Problem:        run.Problem,
		Timestamp:      time.Now(),
		StartTime:      run.StartTime,
		FinalTime:      run.FinalTime,
		InitialState:   run.InitialState,
		Partitions:     run.Partitions,
		Settings:       run.Settings,
		State:          res.Status.State.String(),
		Reason:         res.Status.Reason,
		Iterations:     res.Iterations,
		Performance:    res.Performance,
		ControllerKind: res.Controller.Kind.String(),
		StateDim:       stateDim,
		InputDim:       res.Controller.InputDim(),
		Elapsed:        res.Elapsed.Seconds(),
		Metrics:        res.Metrics,
	}
	if res.Status.State == slq.Failed {
		meta.Failure = res.Status.Failure.String()
	}
	if res.Status.Err != nil {
		meta.Error = res.Status.Err.Error()
	}
	for _, h := range res.History {
		meta.History = append(meta.History, h.Performance)
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeController(filepath.Join(runDir, controllerFile), res.Controller); err != nil {
		return "", err
	}
	if err := writeTrajectory(filepath.Join(runDir, trajectoryFile), res); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeController(path string, c *control.Controller) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"time"}
	if c.Kind == control.Linear {
		for i := 0; i < c.InputDim(); i++ {
			for j := 0; j < c.StateDim(); j++ {
				header = append(header, fmt.Sprintf("k%d_%d", i, j))
			}
		}
	}
	for i := 0; i < c.InputDim(); i++ {
		header = append(header, fmt.Sprintf("b%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, t := range c.Times {
		row := []string{formatFloat(t)}
		for _, v := range c.Flatten(t) {
			row = append(row, formatFloat(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeTrajectory(path string, res *slq.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(res.Trajectories) == 0 || res.Trajectories[0].Len() == 0 {
		w.Flush()
		return w.Error()
	}

	first := res.Trajectories[0]
	header := []string{"partition", "time", "mode"}
	for i := range first.States[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	for i := range first.Inputs[0] {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, tr := range res.Trajectories {
		for i := range tr.Times {
			row := []string{strconv.Itoa(tr.Partition), formatFloat(tr.Times[i]), strconv.Itoa(tr.Modes[i])}
			for _, v := range tr.States[i] {
				row = append(row, formatFloat(v))
			}
			for _, v := range tr.Inputs[i] {
				row = append(row, formatFloat(v))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the metadata of every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadController rebuilds the stored controller of a run.
func (s *Store) LoadController(runID string) (*control.Controller, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	kind, err := control.ParseKind(meta.ControllerKind)
	if err != nil {
		return nil, err
	}

	records, err := readCSV(filepath.Join(s.baseDir, runID, controllerFile))
	if err != nil {
		return nil, err
	}
	times := make([]float64, 0, len(records))
	arrays := make([][]float64, 0, len(records))
	for i, rec := range records {
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("storage: controller row %d: %w", i+1, err)
		}
		times = append(times, row[0])
		arrays = append(arrays, row[1:])
	}

	c := control.NewFeedforward(meta.InputDim)
	if kind == control.Linear {
		c = control.NewLinear(meta.StateDim, meta.InputDim)
	}
	if err := c.UnFlatten(times, arrays); err != nil {
		return nil, err
	}
	return c, nil
}

// TrajectoryData is a stored nominal trajectory with partitions concatenated.
type TrajectoryData struct {
	Partitions []int       `json:"partitions"`
	Times      []float64   `json:"times"`
	Modes      []int       `json:"modes"`
	States     [][]float64 `json:"states"`
	Inputs     [][]float64 `json:"inputs"`
}

func (s *Store) LoadTrajectory(runID string) (*TrajectoryData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	records, err := readCSV(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		return nil, err
	}

	data := &TrajectoryData{}
	want := 3 + meta.StateDim + meta.InputDim
	for i, rec := range records {
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("storage: trajectory row %d: %w", i+1, err)
		}
		if len(row) != want {
			return nil, fmt.Errorf("storage: trajectory row %d has %d columns, want %d", i+1, len(row), want)
		}
		data.Partitions = append(data.Partitions, int(row[0]))
		data.Times = append(data.Times, row[1])
		data.Modes = append(data.Modes, int(row[2]))
		data.States = append(data.States, row[3:3+meta.StateDim])
		data.Inputs = append(data.Inputs, row[3+meta.StateDim:])
	}
	return data, nil
}

// readCSV returns the records of a file without its header.
func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	return records[1:], nil
}

func parseRow(rec []string) ([]float64, error) {
	row := make([]float64, len(rec))
	for j, field := range rec {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		row[j] = v
	}
	return row, nil
}
