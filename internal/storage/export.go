package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run        RunMetadata     `json:"run"`
	Controller ControllerData  `json:"controller"`
	Trajectory *TrajectoryData `json:"trajectory"`
}

// ControllerData is a controller in flattened form.
type ControllerData struct {
	Kind    string      `json:"kind"`
	Times   []float64   `json:"times"`
	Samples [][]float64 `json:"samples"`
}

// Export gathers everything stored for a run.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	c, err := s.LoadController(runID)
	if err != nil {
		return nil, err
	}
	traj, err := s.LoadTrajectory(runID)
	if err != nil {
		return nil, err
	}

	data := &ExportData{
		Run:        *meta,
		Controller: ControllerData{Kind: c.Kind.String(), Times: c.Times},
		Trajectory: traj,
	}
	for _, t := range c.Times {
		data.Controller.Samples = append(data.Controller.Samples, c.Flatten(t))
	}
	return data, nil
}

func ExportJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
