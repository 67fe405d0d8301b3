package slq

import "time"

// Pass names the stage reporting partition work.
type Pass string

const (
	PassBackward Pass = "backward"
	PassForward  Pass = "forward"
)

// PassObserver is told when partition work starts and ends. Calls arrive
// from pool workers concurrently, so implementations must be safe for
// concurrent use.
type PassObserver interface {
	OnPartitionStart(pass Pass, partition int)
	OnPartitionDone(pass Pass, partition int, elapsed time.Duration, err error)
}

// IterationRecord is one accepted iterate. Iteration 0 is the initial rollout.
type IterationRecord struct {
	Iteration    int
	Performance  PerformanceIndex
	LearningRate float64
	Elapsed      time.Duration
}

// IterationObserver follows the outer loop. It is called on the goroutine
// running Solver.Run.
type IterationObserver interface {
	OnIteration(rec IterationRecord)
	OnFinish(status Status)
}

type Option func(*Solver)

func WithPassObserver(o PassObserver) Option {
	return func(s *Solver) {
		s.passObservers = append(s.passObservers, o)
	}
}

func WithIterationObserver(o IterationObserver) Option {
	return func(s *Solver) {
		s.iterObservers = append(s.iterObservers, o)
	}
}

func (s *Solver) partitionStart(pass Pass, k int) time.Time {
	for _, o := range s.passObservers {
		o.OnPartitionStart(pass, k)
	}
	return time.Now()
}

func (s *Solver) partitionDone(pass Pass, k int, started time.Time, err error) {
	elapsed := time.Since(started)
	for _, o := range s.passObservers {
		o.OnPartitionDone(pass, k, elapsed, err)
	}
}

func (s *Solver) iterationDone(rec IterationRecord) {
	for _, o := range s.iterObservers {
		o.OnIteration(rec)
	}
}

func (s *Solver) finished(st Status) {
	for _, o := range s.iterObservers {
		o.OnFinish(st)
	}
}
