// Package atomic contains lock free flags shared between the producer API
// and transport callbacks.
package atomic

import "sync/atomic"

// Bool is a boolean that can be read and written from multiple goroutines.
// The zero value is false.
type Bool struct {
	val uint32
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}

// CompareAndSwap sets the flag to value only when it currently holds
// !value. It returns true when the flag was changed, so exactly one caller
// wins a transition.
func (b *Bool) CompareAndSwap(value bool) bool {
	return atomic.CompareAndSwapUint32(&b.val, boolToUint32(!value), boolToUint32(value))
}

// Swap stores value and returns the previous value.
func (b *Bool) Swap(value bool) bool {
	return atomic.SwapUint32(&b.val, boolToUint32(value)) != 0
}

func (b *Bool) Set(value bool) {
	atomic.StoreUint32(&b.val, boolToUint32(value))
}

func (b *Bool) Get() bool {
	return atomic.LoadUint32(&b.val) != 0
}
