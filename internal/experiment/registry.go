package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/metrics"
)

// DefaultBound is the state box used by the state_bound metric when none is given.
const DefaultBound = 10.0

// Registry builds trajectory metrics by name. Metrics are stateful, so every
// call returns fresh instances.
type Registry struct {
	metrics map[string]func(params map[string]float64) dynamo.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		metrics: make(map[string]func(map[string]float64) dynamo.Metric),
	}

	r.metrics["control_effort"] = func(map[string]float64) dynamo.Metric {
		return metrics.NewControlEffort()
	}
	r.metrics["state_bound"] = func(params map[string]float64) dynamo.Metric {
		bound, ok := params["bound"]
		if !ok || bound <= 0 {
			bound = DefaultBound
		}
		return metrics.NewBound(bound)
	}
	r.metrics["input_energy"] = func(map[string]float64) dynamo.Metric {
		return metrics.NewInputEnergy()
	}

	return r
}

func (r *Registry) GetMetric(name string, params map[string]float64) (dynamo.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(params), nil
}

// DefaultMetrics returns one of every registered metric.
func (r *Registry) DefaultMetrics(params map[string]float64) []dynamo.Metric {
	out := make([]dynamo.Metric, 0, len(r.metrics))
	for _, name := range r.ListMetrics() {
		out = append(out, r.metrics[name](params))
	}
	return out
}

func (r *Registry) ListMetrics() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
