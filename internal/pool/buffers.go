package pool

import "sync"

// Buffers recycles float64 slices of one fixed length.
type Buffers struct {
	pool sync.Pool
	size int
}

func NewBuffers(size int) *Buffers {
	return &Buffers{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]float64, size)
			},
		},
	}
}

func (b *Buffers) Get() []float64 {
	return b.pool.Get().([]float64)
}

// Put returns a slice to the pool after zeroing it. Slices of the wrong
// length are dropped.
func (b *Buffers) Put(s []float64) {
	if len(s) == b.size {
		for i := range s {
			s[i] = 0
		}
		b.pool.Put(s)
	}
}
