// Package native holds the ownership primitives shared by every wrapper around
// an engine-allocated object: owners that free their pointer exactly once and
// handle tables that let native callbacks refer to Go values by number.
package native

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	// ErrReleased is returned by any operation on an owner after Release.
	ErrReleased = errors.New("native handle already released")
	// ErrEngineFault is returned when the engine fails to construct an object.
	ErrEngineFault = errors.New("engine fault")
)

// Owner owns one native object. Release frees it at most once and every
// later Get fails with ErrReleased.
type Owner[T any] struct {
	ptr  atomic.Pointer[T]
	free func(*T)
	kind string
}

// Acquire wraps the result of a native constructor. A non-nil err or a nil
// ptr is reported as ErrEngineFault and no owner is returned.
func Acquire[T any](kind string, ptr *T, err error, free func(*T)) (*Owner[T], error) {
	if err != nil {
		return nil, errors.Wrapf(ErrEngineFault, "unable to create %s: %v", kind, err)
	}

	if ptr == nil {
		return nil, errors.Wrapf(ErrEngineFault, "unable to create %s: engine returned null", kind)
	}

	o := &Owner[T]{
		free: free,
		kind: kind,
	}
	o.ptr.Store(ptr)

	return o, nil
}

// Kind returns the name used in errors, e.g. "store" or "module".
func (o *Owner[T]) Kind() string {
	return o.kind
}

// Get returns the owned pointer or ErrReleased.
func (o *Owner[T]) Get() (*T, error) {
	ptr := o.ptr.Load()
	if ptr == nil {
		return nil, errors.Wrapf(ErrReleased, "%s", o.kind)
	}

	return ptr, nil
}

// MustGet is Get for code paths where release before use is a programming error.
func (o *Owner[T]) MustGet() *T {
	ptr, err := o.Get()
	if err != nil {
		panic(err)
	}

	return ptr
}

// Released reports whether Release has been called.
func (o *Owner[T]) Released() bool {
	return o.ptr.Load() == nil
}

// Release frees the native object. Calling it again is a no-op.
func (o *Owner[T]) Release() {
	if o == nil {
		return
	}

	ptr := o.ptr.Swap(nil)
	if ptr == nil || o.free == nil {
		return
	}

	o.free(ptr)
}
