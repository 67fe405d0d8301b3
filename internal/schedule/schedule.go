// Package schedule holds the mode schedule of a switched system and the
// partitioning of the optimization horizon.
package schedule

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

// ModeSchedule maps time to the active subsystem. Subsystems has exactly one
// more entry than SwitchingTimes.
type ModeSchedule struct {
	SwitchingTimes []float64 `yaml:"switching_times" json:"switching_times"`
	Subsystems     []int     `yaml:"subsystems" json:"subsystems"`
}

// NewModeSchedule validates and copies the inputs.
func NewModeSchedule(times []float64, subsystems []int) (ModeSchedule, error) {
	ms := ModeSchedule{
		SwitchingTimes: append([]float64(nil), times...),
		Subsystems:     append([]int(nil), subsystems...),
	}
	return ms, ms.Validate()
}

// Single is the schedule of a system with one subsystem.
func Single(subsystem int) ModeSchedule {
	return ModeSchedule{Subsystems: []int{subsystem}}
}

func (m ModeSchedule) Validate() error {
	if len(m.Subsystems) != len(m.SwitchingTimes)+1 {
		return fmt.Errorf("%w: %d subsystems for %d switching times",
			dynamo.ErrInvalidConfiguration, len(m.Subsystems), len(m.SwitchingTimes))
	}
	if i := firstUnordered(m.SwitchingTimes); i >= 0 {
		return fmt.Errorf("%w: switching times not finite and strictly increasing at index %d",
			dynamo.ErrInvalidConfiguration, i)
	}
	for i, s := range m.Subsystems {
		if s < 0 {
			return fmt.Errorf("%w: negative subsystem index %d at position %d",
				dynamo.ErrInvalidConfiguration, s, i)
		}
	}
	return nil
}

// Index returns the position in Subsystems active at t: the number of
// switching times <= t.
func (m ModeSchedule) Index(t float64) int {
	return sort.Search(len(m.SwitchingTimes), func(i int) bool {
		return m.SwitchingTimes[i] > t
	})
}

// ModeAt returns the subsystem active at t. At a switching time the
// post-switch subsystem is active.
func (m ModeSchedule) ModeAt(t float64) int {
	if len(m.Subsystems) == 0 {
		return 0
	}
	return m.Subsystems[m.Index(t)]
}

// EventsBetween lists switching times e with lo < e < hi.
func (m ModeSchedule) EventsBetween(lo, hi float64) []float64 {
	var out []float64
	for _, e := range m.SwitchingTimes {
		if e > lo && e < hi {
			out = append(out, e)
		}
	}
	return out
}

// IsEvent reports whether t is exactly a switching time.
func (m ModeSchedule) IsEvent(t float64) bool {
	i := sort.SearchFloat64s(m.SwitchingTimes, t)
	return i < len(m.SwitchingTimes) && m.SwitchingTimes[i] == t
}

// Partitions splits [Start, Final] into contiguous intervals. Boundaries are
// strictly increasing; partition k spans [Boundaries[k], Boundaries[k+1]].
type Partitions struct {
	Boundaries []float64
}

// NewPartitions checks that boundaries are strictly increasing and cover
// [start, final] exactly.
func NewPartitions(start, final float64, boundaries []float64) (Partitions, error) {
	if len(boundaries) < 2 {
		return Partitions{}, fmt.Errorf("%w: need at least two partition boundaries, got %d",
			dynamo.ErrInvalidConfiguration, len(boundaries))
	}
	if boundaries[0] != start || boundaries[len(boundaries)-1] != final {
		return Partitions{}, fmt.Errorf("%w: partitions [%g, %g] do not match horizon [%g, %g]",
			dynamo.ErrInvalidConfiguration, boundaries[0], boundaries[len(boundaries)-1], start, final)
	}
	if i := firstUnordered(boundaries); i >= 0 {
		return Partitions{}, fmt.Errorf("%w: partition boundaries not finite and strictly increasing at index %d",
			dynamo.ErrInvalidConfiguration, i)
	}
	return Partitions{Boundaries: append([]float64(nil), boundaries...)}, nil
}

// firstUnordered returns the first index whose value is not finite or not
// above its predecessor, or -1. Written so that NaN fails.
func firstUnordered(v []float64) int {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return i
		}
		if i > 0 && !(x > v[i-1]) {
			return i
		}
	}
	return -1
}

// Uniform splits [start, final] into n equal partitions.
func Uniform(start, final float64, n int) []float64 {
	if n < 1 {
		n = 1
	}
	b := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		b[i] = start + (final-start)*float64(i)/float64(n)
	}
	b[n] = final
	return b
}

func (p Partitions) Len() int {
	if len(p.Boundaries) == 0 {
		return 0
	}
	return len(p.Boundaries) - 1
}

func (p Partitions) Start() float64 { return p.Boundaries[0] }

func (p Partitions) Final() float64 { return p.Boundaries[len(p.Boundaries)-1] }

// Span returns the time interval of partition k.
func (p Partitions) Span(k int) (float64, float64) {
	return p.Boundaries[k], p.Boundaries[k+1]
}

// Find returns the partition containing t. Interior boundaries belong to the
// later partition; Final belongs to the last one.
func (p Partitions) Find(t float64) int {
	n := p.Len()
	k := sort.Search(n, func(i int) bool { return p.Boundaries[i+1] > t })
	if k >= n {
		k = n - 1
	}
	return k
}
