// Package mempool recycles the large scratch slices of the detection hot
// path: model input tensors and suppression masks.
package mempool

import "sync"

// classStep is the bucket granularity in elements.
const classStep = 1024

// sizeClass rounds n up to a multiple of classStep, with classStep as the
// minimum.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

// Pool hands out slices of T bucketed by size class. The zero value is
// ready to use.
type Pool[T any] struct {
	classes sync.Map // size class -> *sync.Pool
	zero    bool
}

// NewZeroed returns a pool whose Get clears the returned elements.
func NewZeroed[T any]() *Pool[T] {
	return &Pool[T]{zero: true}
}

func (p *Pool[T]) class(cls int) *sync.Pool {
	v, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return v.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// Get returns a slice of length n. It must be handed back with Put.
func (p *Pool[T]) Get(n int) []T {
	cls := sizeClass(n)
	bp, ok := p.class(cls).Get().(*[]T)
	if !ok || cap(*bp) < cls {
		buf := make([]T, cls)
		bp = &buf
	}
	buf := (*bp)[:n]
	if p.zero {
		clear(buf)
	}
	return buf
}

// Put returns buf to the pool. Nil and foreign undersized slices are
// ignored.
func (p *Pool[T]) Put(buf []T) {
	if cap(buf) < classStep {
		return
	}
	// Bucket by the largest class the capacity fully covers.
	cls := cap(buf) / classStep * classStep
	full := buf[:cls]
	p.class(cls).Put(&full)
}

var (
	float32s Pool[float32]
	bools    = NewZeroed[bool]()
)

// GetFloat32 returns a []float32 of length n with unspecified contents.
func GetFloat32(n int) []float32 { return float32s.Get(n) }

// PutFloat32 returns a buffer obtained from GetFloat32.
func PutFloat32(buf []float32) { float32s.Put(buf) }

// GetBool returns a cleared []bool of length n.
func GetBool(n int) []bool { return bools.Get(n) }

// PutBool returns a buffer obtained from GetBool.
func PutBool(buf []bool) { bools.Put(buf) }
