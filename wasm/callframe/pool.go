// Package callframe gives host callbacks a view of the native call frame that
// invoked them. Views are built over pooled context records stamped with a
// generation, so a view used after its callback returned fails with
// ErrExpired instead of touching a freed or reused native frame.
//
// A Caller must never outlive the callback that received it: do not store it
// in a field, a closure or a channel, and do not share it across goroutines.
package callframe

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	// DefaultCapacity is the number of idle records kept by a pool.
	DefaultCapacity = 64

	// retireThreshold is the distance from the generation maximum at which a
	// released record is dropped instead of pooled.
	retireThreshold = 10
)

var (
	// ErrInvalidArgument is returned when acquiring a record for a null frame.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrExpired is returned by every Caller operation once its callback has returned.
	ErrExpired = errors.New("caller is no longer valid")
)

// Record is the pooled per-invocation state. handle is non-zero only while
// the record is loaned.
type Record struct {
	generation atomic.Uint32
	handle     atomic.Uintptr
}

// Stats are cumulative pool counters.
type Stats struct {
	Allocated uint64
	Reused    uint64
	Retired   uint64
	Dropped   uint64
}

// Pool recycles context records between callback invocations. Acquire and
// Release never block.
type Pool struct {
	logger hclog.Logger
	idle   chan *Record

	allocated atomic.Uint64
	reused    atomic.Uint64
	retired   atomic.Uint64
	dropped   atomic.Uint64
}

// NewPool creates a pool keeping at most capacity idle records.
func NewPool(capacity int, logger hclog.Logger) *Pool {
	if capacity < 0 {
		capacity = 0
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Pool{
		logger: logger,
		idle:   make(chan *Record, capacity),
	}
}

var (
	defaultPool     *Pool
	defaultPoolOnce sync.Once
)

// Default returns the process wide pool.
func Default() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(DefaultCapacity, nil)
	})

	return defaultPool
}

// Acquire loans a record for the native frame handle and returns it with the
// generation stamped for this loan.
func (p *Pool) Acquire(frame uintptr) (*Record, uint32, error) {
	if frame == 0 {
		return nil, 0, errors.Wrap(ErrInvalidArgument, "null call frame handle")
	}

	var rec *Record

	select {
	case rec = <-p.idle:
		p.reused.Add(1)
	default:
		rec = &Record{}
		p.allocated.Add(1)
	}

	generation := rec.generation.Add(1)
	rec.handle.Store(frame)

	return rec, generation, nil
}

// Release ends the loan identified by generation. A stale generation is a
// no-op, which makes double release harmless.
func (p *Pool) Release(rec *Record, generation uint32) {
	if rec == nil || !rec.generation.CompareAndSwap(generation, generation+1) {
		return
	}

	rec.handle.Store(0)

	if generation+1 >= math.MaxUint32-retireThreshold {
		p.retired.Add(1)
		p.logger.Trace("retiring call frame record", "generation", generation+1)

		return
	}

	select {
	case p.idle <- rec:
	default:
		p.dropped.Add(1)
	}
}

// Idle returns the number of records waiting for reuse.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Capacity returns the maximum number of idle records.
func (p *Pool) Capacity() int {
	return cap(p.idle)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
		Retired:   p.retired.Load(),
		Dropped:   p.dropped.Load(),
	}
}
