package atomic_float

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Notes:
// - no unsafe pointer is held beyond the single CAS expression that uses it,
//   since the gc is free to move the variable between statements.
// - AtomicMax retries until its CAS lands, so concurrent candidates are never lost.

// AtomicFloat64 encapsulates a float64 for non-locking atomic operations.
// Sweep workers share one of these to reduce the maximum value change of a sweep
// without a mutex around every cell update.
type AtomicFloat64 struct {
	val float64
}

// NewAtomicFloat64 encapsulates a float64 for atomic operations.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	return &AtomicFloat64{
		val: val,
	}
}

func (af *AtomicFloat64) bits() *uint64 {
	return (*uint64)(unsafe.Pointer(&af.val))
}

// Atomically read the float64.
func (af *AtomicFloat64) AtomicRead() (value float64) {
	return math.Float64frombits(atomic.LoadUint64(af.bits()))
}

// AtomicSet sets the float64, e.g. to reset an accumulator between sweeps.
func (af *AtomicFloat64) AtomicSet(newVal float64) {
	atomic.StoreUint64(af.bits(), math.Float64bits(newVal))
}

// AtomicMax raises the float64 to candidate if candidate is larger, and returns
// the value held afterward. NaN candidates are ignored.
func (af *AtomicFloat64) AtomicMax(candidate float64) float64 {
	for {
		old := af.AtomicRead()
		if !(candidate > old) {
			return old
		}
		if atomic.CompareAndSwapUint64(
			af.bits(),
			math.Float64bits(old),
			math.Float64bits(candidate),
		) {
			return candidate
		}
	}
}
