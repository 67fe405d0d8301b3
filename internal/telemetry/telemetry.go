// Package telemetry exports solver progress as Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/hybridslq/internal/slq"
)

const namespace = "slq"

// Recorder implements slq.PassObserver and slq.IterationObserver.
type Recorder struct {
	iterations        prometheus.Counter
	cost              prometheus.Gauge
	merit             prometheus.Gauge
	constraintISE     *prometheus.GaugeVec
	learningRate      prometheus.Gauge
	iterationDuration prometheus.Histogram
	partitionDuration *prometheus.HistogramVec
	partitionFailures *prometheus.CounterVec
	runs              *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Count of accepted iterations, including the initial rollout.",
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost",
			Help:      "Total cost of the last accepted iterate.",
		}),
		merit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merit",
			Help:      "Merit (cost plus constraint penalty) of the last accepted iterate.",
		}),
		constraintISE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "constraint_ise",
			Help:      "Integrated squared constraint violation of the last accepted iterate.",
		}, []string{"type"}),
		learningRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "learning_rate",
			Help:      "Step size accepted by the last line search.",
		}),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one outer iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		partitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "partition_duration_seconds",
			Help:      "Wall time spent on one partition by a pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"pass"}),
		partitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_failures_total",
			Help:      "Count of partitions whose pass returned an error.",
		}, []string{"pass"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Count of finished runs by terminal state and failure kind.",
		}, []string{"state", "failure"}),
	}

	for _, c := range []prometheus.Collector{
		r.iterations, r.cost, r.merit, r.constraintISE, r.learningRate,
		r.iterationDuration, r.partitionDuration, r.partitionFailures, r.runs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) OnPartitionStart(pass slq.Pass, partition int) {}

func (r *Recorder) OnPartitionDone(pass slq.Pass, partition int, elapsed time.Duration, err error) {
	r.partitionDuration.WithLabelValues(string(pass)).Observe(elapsed.Seconds())
	if err != nil {
		r.partitionFailures.WithLabelValues(string(pass)).Inc()
	}
}

func (r *Recorder) OnIteration(rec slq.IterationRecord) {
	r.iterations.Inc()
	r.cost.Set(rec.Performance.Cost)
	r.merit.Set(rec.Performance.Merit)
	r.constraintISE.WithLabelValues("1").Set(rec.Performance.ISE1)
	r.constraintISE.WithLabelValues("2").Set(rec.Performance.ISE2)
	if rec.Iteration > 0 {
		r.learningRate.Set(rec.LearningRate)
		r.iterationDuration.Observe(rec.Elapsed.Seconds())
	}
}

func (r *Recorder) OnFinish(st slq.Status) {
	r.runs.WithLabelValues(st.State.String(), st.Failure.String()).Inc()
}

// Options wires the recorder into a solver.
func (r *Recorder) Options() []slq.Option {
	return []slq.Option{slq.WithPassObserver(r), slq.WithIterationObserver(r)}
}

// Serve exposes the metrics of g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
