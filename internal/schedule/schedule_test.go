package schedule

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hybridslq/internal/dynamo"
)

func TestModeAt(t *testing.T) {
	ms, err := NewModeSchedule([]float64{0.2262, 1.0176}, []int{0, 1, 2})
	require.NoError(t, err)

	tests := []struct {
		t    float64
		mode int
	}{
		{0, 0},
		{0.2261, 0},
		{0.2262, 1},
		{0.5, 1},
		{1.0176, 2},
		{3, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.mode, ms.ModeAt(tt.t), "ModeAt(%v)", tt.t)
	}
	assert.True(t, ms.IsEvent(1.0176))
	assert.False(t, ms.IsEvent(1.0))
	assert.Equal(t, []float64{0.2262}, ms.EventsBetween(0, 1))
	assert.Empty(t, ms.EventsBetween(0.2262, 1.0176))
}

func TestModeScheduleValidate(t *testing.T) {
	tests := []struct {
		name       string
		times      []float64
		subsystems []int
		ok         bool
	}{
		{"single", nil, []int{0}, true},
		{"two modes", []float64{0.1897}, []int{0, 1}, true},
		{"count mismatch", []float64{0.1}, []int{0}, false},
		{"not increasing", []float64{0.5, 0.5}, []int{0, 1, 0}, false},
		{"negative", []float64{0.5}, []int{0, -1}, false},
		{"nan", []float64{0.5, math.NaN(), 1.5}, []int{0, 1, 0, 1}, false},
		{"leading nan", []float64{math.NaN(), 1}, []int{0, 1, 0}, false},
		{"infinite", []float64{0.5, math.Inf(1)}, []int{0, 1, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModeSchedule(tt.times, tt.subsystems)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, dynamo.ErrInvalidConfiguration), "got %v", err)
			}
		})
	}
}

func TestPartitions(t *testing.T) {
	p, err := NewPartitions(0, 2, []float64{0, 1, 2})
	require.NoError(t, err)

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 0, p.Find(0))
	assert.Equal(t, 0, p.Find(0.99))
	assert.Equal(t, 1, p.Find(1))
	assert.Equal(t, 1, p.Find(2))
	lo, hi := p.Span(1)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 2.0, hi)

	nan := math.NaN()
	for _, bad := range [][]float64{{0}, {0, 0, 2}, {0, 1}, {0.1, 2}, {0, 1.5, 1.2, 2}, {0, nan, 2}, {0, 1, nan, 2}} {
		_, err := NewPartitions(0, 2, bad)
		assert.ErrorIs(t, err, dynamo.ErrInvalidConfiguration, "boundaries %v", bad)
	}
	_, err = NewPartitions(0, math.Inf(1), []float64{0, 1, math.Inf(1)})
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfiguration)
}

func TestUniform(t *testing.T) {
	b := Uniform(0, 2, 4)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, b)
	assert.Equal(t, []float64{0, 3}, Uniform(0, 3, 0))
}
