package callframe

import (
	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/session"
)

// ErrFuelExhausted is returned by ConsumeFuel when not enough fuel is left.
var ErrFuelExhausted = session.ErrFuelExhausted

// Caller is the view of the call frame that invoked a host callback. It is a
// small value; copies share the underlying record and expire together.
type Caller struct {
	pool       *Pool
	rec        *Record
	boundary   interfaces.FrameBoundary
	session    interfaces.SessionContext
	generation uint32
}

// Enter builds the Caller for a native call frame. The returned Caller must be
// disposed before the callback returns to the engine:
//
//	caller, err := callframe.Enter(pool, boundary, frame)
//	if err != nil {
//		return err
//	}
//	defer caller.Dispose()
func Enter(pool *Pool, boundary interfaces.FrameBoundary, frame uintptr) (Caller, error) {
	if frame == 0 {
		return Caller{}, errors.Wrap(ErrInvalidArgument, "null call frame handle")
	}

	if pool == nil {
		pool = Default()
	}

	sc, err := boundary.SessionContext(frame)
	if err != nil {
		return Caller{}, errors.Wrap(err, "unable to resolve session of call frame")
	}

	rec, generation, err := pool.Acquire(frame)
	if err != nil {
		return Caller{}, err
	}

	return Caller{
		pool:       pool,
		rec:        rec,
		boundary:   boundary,
		session:    sc,
		generation: generation,
	}, nil
}

// Valid reports whether the callback that produced c is still running.
func (c Caller) Valid() bool {
	return c.rec != nil && c.rec.generation.Load() == c.generation
}

// Generation returns the generation stamped on c when it was created.
func (c Caller) Generation() uint32 {
	return c.generation
}

func (c Caller) frame() (uintptr, error) {
	if !c.Valid() {
		return 0, c.expired()
	}

	h := c.rec.handle.Load()

	// the record may have been released and loaned again while loading
	if !c.Valid() || h == 0 {
		return 0, c.expired()
	}

	return h, nil
}

func (c Caller) check() error {
	if !c.Valid() {
		return c.expired()
	}

	return nil
}

func (c Caller) expired() error {
	return errors.Wrapf(ErrExpired, "generation %d", c.generation)
}

// LookupExportAsMemory returns the memory exported under name. found is false
// when there is no such export or it is not a memory.
func (c Caller) LookupExportAsMemory(name string) (mem Memory, found bool, err error) {
	exp, found, err := c.lookup(name, interfaces.ExportMemory)
	if err != nil || !found {
		return Memory{}, false, err
	}
	defer exp.Release()

	m := exp.Memory()
	if m == nil {
		return Memory{}, false, nil
	}

	return Memory{caller: c, mem: m}, true, nil
}

// LookupExportAsFunction returns the function exported under name. found is
// false when there is no such export or it is not a function.
func (c Caller) LookupExportAsFunction(name string) (fn Function, found bool, err error) {
	exp, found, err := c.lookup(name, interfaces.ExportFunc)
	if err != nil || !found {
		return Function{}, false, err
	}
	defer exp.Release()

	f := exp.Function()
	if f == nil {
		return Function{}, false, nil
	}

	return Function{caller: c, fn: f}, true, nil
}

func (c Caller) lookup(name string, kind interfaces.ExportKind) (interfaces.Export, bool, error) {
	frame, err := c.frame()
	if err != nil {
		return nil, false, err
	}

	exp, found, err := c.boundary.LookupExport(frame, name)
	if err != nil {
		return nil, false, errors.Wrapf(err, "unable to look up export %q", name)
	}

	if !found || exp == nil {
		return nil, false, nil
	}

	if exp.Kind() != kind {
		exp.Release()

		return nil, false, nil
	}

	return exp, true, nil
}

func (c Caller) AddFuel(amount uint64) error {
	if err := c.check(); err != nil {
		return err
	}

	return c.session.AddFuel(amount)
}

// ConsumeFuel spends amount and returns what is left. When amount exceeds the
// remaining fuel nothing is spent and ErrFuelExhausted is returned.
func (c Caller) ConsumeFuel(amount uint64) (uint64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}

	return c.session.ConsumeFuel(amount)
}

func (c Caller) GetConsumedFuel() (uint64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}

	return c.session.FuelConsumed()
}

func (c Caller) GetUserData() (interface{}, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	return c.session.UserData()
}

func (c Caller) SetUserData(v interface{}) error {
	if err := c.check(); err != nil {
		return err
	}

	return c.session.SetUserData(v)
}

// Dispose hands the record back to the pool. Further calls are no-ops.
func (c Caller) Dispose() {
	if c.pool == nil {
		return
	}

	c.pool.Release(c.rec, c.generation)
}

// Memory is a memory export seen through a Caller.
type Memory struct {
	caller Caller
	mem    interfaces.Memory
}

func (m Memory) Read(offset, length uint32) ([]byte, error) {
	if err := m.caller.check(); err != nil {
		return nil, err
	}

	return m.mem.Read(offset, length)
}

func (m Memory) Write(offset uint32, data []byte) error {
	if err := m.caller.check(); err != nil {
		return err
	}

	return m.mem.Write(offset, data)
}

// Size returns the memory size in bytes, or 0 once the caller expired.
func (m Memory) Size() uint64 {
	if !m.caller.Valid() {
		return 0
	}

	return m.mem.Size()
}

// Function is a function export seen through a Caller. Calling it re-enters
// the guest on the same call stack.
type Function struct {
	caller Caller
	fn     interfaces.Function
}

func (f Function) Call(args ...interface{}) ([]interface{}, error) {
	if err := f.caller.check(); err != nil {
		return nil, err
	}

	return f.fn.Call(args...)
}
