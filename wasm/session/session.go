// Package session implements the store side of a call frame: fuel accounting,
// the user-data slot and the bridge that resolves the owning session from a
// raw call-frame handle.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
)

var (
	// ErrFuelExhausted is returned when a consumption exceeds the remaining fuel.
	ErrFuelExhausted = errors.New("fuel exhausted")
	// ErrFuelDisabled is returned by engines that were configured without fuel.
	ErrFuelDisabled = errors.New("fuel accounting is not enabled")
)

// Context is the session of one instantiated module. Concurrent callbacks
// against the same session are serialized by the context lock.
type Context struct {
	meter    interfaces.FuelMeter
	userData interface{}
	id       string

	// lock syncs access to all fields below
	lock   sync.Mutex
	closed bool
}

var _ interfaces.SessionContext = (*Context)(nil)

// New creates a session accounting fuel through meter.
func New(meter interfaces.FuelMeter) *Context {
	return &Context{
		meter: meter,
		id:    uuid.NewString(),
	}
}

func (c *Context) ID() string {
	return c.id
}

func (c *Context) AddFuel(amount uint64) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}

	return c.meter.AddFuel(amount)
}

func (c *Context) ConsumeFuel(amount uint64) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.checkOpen(); err != nil {
		return 0, err
	}

	return c.meter.ConsumeFuel(amount)
}

func (c *Context) FuelConsumed() (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.checkOpen(); err != nil {
		return 0, err
	}

	return c.meter.FuelConsumed()
}

func (c *Context) UserData() (interface{}, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	return c.userData, nil
}

func (c *Context) SetUserData(v interface{}) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}

	c.userData = v

	return nil
}

// Close poisons the session. It is called by the owning instance right before
// its native store is released.
func (c *Context) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.closed = true
	c.userData = nil
}

func (c *Context) checkOpen() error {
	if c.closed {
		return errors.Wrapf(native.ErrReleased, "session %s", c.id)
	}

	return nil
}
