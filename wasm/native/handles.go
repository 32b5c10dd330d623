package native

import (
	"sync"
	"sync/atomic"
)

// Table maps non-zero uintptr handles to Go values so that code on the other
// side of the boundary can refer to them without holding Go pointers.
// Handle 0 is never issued and stands for null.
type Table[T any] struct {
	entries sync.Map // map[uintptr]T
	nextID  atomic.Uintptr
	live    atomic.Int64
}

// Register stores v and returns its handle.
func (t *Table[T]) Register(v T) uintptr {
	h := t.nextID.Add(1)
	if h == 0 {
		// wrapped around, skip null
		h = t.nextID.Add(1)
	}

	t.entries.Store(h, v)
	t.live.Add(1)

	return h
}

// Lookup returns the value registered under h.
func (t *Table[T]) Lookup(h uintptr) (T, bool) {
	var zero T

	if h == 0 {
		return zero, false
	}

	v, ok := t.entries.Load(h)
	if !ok {
		return zero, false
	}

	return v.(T), true
}

// Unregister drops h. Unknown handles are ignored.
func (t *Table[T]) Unregister(h uintptr) {
	if _, ok := t.entries.LoadAndDelete(h); ok {
		t.live.Add(-1)
	}
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	return int(t.live.Load())
}
