package wasmedge

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/session"
)

// costStatistics is the part of wasmedge.Statistics the meter relies on.
type costStatistics interface {
	GetTotalCost() uint
	SetCostLimit(limit uint)
}

// costMeter maps fuel onto the WasmEdge cost limit. Guest instructions are
// charged by the executor; host consumption is kept here and subtracted from
// the limit handed to the executor. Once stopped the limit stays at zero.
type costMeter struct {
	stat         costStatistics
	budget       uint64
	hostConsumed uint64

	// limitLock orders limit updates against stop, which may come from
	// another goroutine.
	limitLock sync.Mutex
	stopped   bool
}

func newCostMeter(stat costStatistics, budget uint64) *costMeter {
	if budget == 0 {
		budget = math.MaxUint64
	}

	m := &costMeter{
		stat:   stat,
		budget: budget,
	}
	m.applyLimit()

	return m
}

func (m *costMeter) consumed() uint64 {
	return uint64(m.stat.GetTotalCost()) + m.hostConsumed
}

func (m *costMeter) remaining() uint64 {
	consumed := m.consumed()
	if consumed >= m.budget {
		return 0
	}

	return m.budget - consumed
}

func (m *costMeter) applyLimit() {
	m.limitLock.Lock()
	defer m.limitLock.Unlock()

	if m.stopped {
		m.stat.SetCostLimit(0)

		return
	}

	//nolint:gosec
	m.stat.SetCostLimit(uint(m.budget - m.hostConsumed))
}

func (m *costMeter) AddFuel(amount uint64) error {
	if amount > math.MaxUint64-m.budget {
		m.budget = math.MaxUint64
	} else {
		m.budget += amount
	}

	m.applyLimit()

	return nil
}

func (m *costMeter) ConsumeFuel(amount uint64) (uint64, error) {
	remaining := m.remaining()
	if amount > remaining {
		return remaining, errors.Wrapf(session.ErrFuelExhausted, "requested %d, remaining %d", amount, remaining)
	}

	m.hostConsumed += amount
	m.applyLimit()

	return remaining - amount, nil
}

func (m *costMeter) FuelConsumed() (uint64, error) {
	return m.consumed(), nil
}

func (m *costMeter) stop() {
	m.limitLock.Lock()
	defer m.limitLock.Unlock()

	m.stopped = true
	m.stat.SetCostLimit(0)
}
