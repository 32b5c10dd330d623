package session

import (
	"math"

	"github.com/pkg/errors"
)

// SoftMeter is a fuel meter kept entirely on the Go side, for engines that do
// not meter guest execution themselves. Only host-side consumption is counted.
// It is not synchronized; Context serializes access to it.
type SoftMeter struct {
	budget   uint64
	consumed uint64
}

// NewSoftMeter returns a meter holding budget units of fuel.
func NewSoftMeter(budget uint64) *SoftMeter {
	return &SoftMeter{budget: budget}
}

func (m *SoftMeter) AddFuel(amount uint64) error {
	if amount > math.MaxUint64-m.budget {
		m.budget = math.MaxUint64
		return nil
	}

	m.budget += amount

	return nil
}

func (m *SoftMeter) ConsumeFuel(amount uint64) (uint64, error) {
	remaining := m.budget - m.consumed
	if amount > remaining {
		return remaining, errors.Wrapf(ErrFuelExhausted, "requested %d, remaining %d", amount, remaining)
	}

	m.consumed += amount

	return remaining - amount, nil
}

func (m *SoftMeter) FuelConsumed() (uint64, error) {
	return m.consumed, nil
}
