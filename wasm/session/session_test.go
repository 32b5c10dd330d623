package session

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huawei.com/wasm-host-driver/wasm/native"
)

func TestConsumeFuel(t *testing.T) {
	tCases := []struct {
		name              string
		budget            uint64
		alreadyConsumed   uint64
		toConsume         uint64
		expectedRemaining uint64
		expectedConsumed  uint64
		expectedErr       error
	}{
		{
			name:              "consume less than available",
			budget:            100,
			toConsume:         40,
			expectedRemaining: 60,
			expectedConsumed:  40,
		},
		{
			name:              "consume exactly what is available",
			budget:            100,
			alreadyConsumed:   30,
			toConsume:         70,
			expectedRemaining: 0,
			expectedConsumed:  100,
		},
		{
			name:              "consume more than available",
			budget:            100,
			alreadyConsumed:   30,
			toConsume:         71,
			expectedRemaining: 70,
			expectedConsumed:  30,
			expectedErr:       ErrFuelExhausted,
		},
		{
			name:             "consume zero from empty meter",
			toConsume:        0,
			expectedConsumed: 0,
		},
	}

	for _, tCase := range tCases {
		t.Run(tCase.name, func(t *testing.T) {
			s := New(NewSoftMeter(tCase.budget))

			if tCase.alreadyConsumed > 0 {
				_, err := s.ConsumeFuel(tCase.alreadyConsumed)
				require.NoError(t, err)
			}

			remaining, err := s.ConsumeFuel(tCase.toConsume)
			if tCase.expectedErr != nil {
				assert.True(t, errors.Is(err, tCase.expectedErr))
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tCase.expectedRemaining, remaining)

			consumed, err := s.FuelConsumed()
			require.NoError(t, err)
			assert.Equal(t, tCase.expectedConsumed, consumed)
		})
	}
}

func TestAddFuelSaturates(t *testing.T) {
	m := NewSoftMeter(10)

	require.NoError(t, m.AddFuel(^uint64(0)))

	remaining, err := m.ConsumeFuel(5)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0)-5, remaining)
}

func TestUserData(t *testing.T) {
	s := New(NewSoftMeter(0))

	v, err := s.UserData()
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.SetUserData("task-1"))

	v, err = s.UserData()
	require.NoError(t, err)
	assert.Equal(t, "task-1", v)
}

func TestClosedSession(t *testing.T) {
	s := New(NewSoftMeter(10))
	s.Close()
	s.Close()

	assert.True(t, errors.Is(s.AddFuel(1), native.ErrReleased))

	_, err := s.ConsumeFuel(1)
	assert.True(t, errors.Is(err, native.ErrReleased))

	_, err = s.FuelConsumed()
	assert.True(t, errors.Is(err, native.ErrReleased))

	_, err = s.UserData()
	assert.True(t, errors.Is(err, native.ErrReleased))

	assert.True(t, errors.Is(s.SetUserData(1), native.ErrReleased))
}

func TestConsumeFuelParallel(t *testing.T) {
	s := New(NewSoftMeter(1000))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)

	for i := 0; i < 150; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := s.ConsumeFuel(10); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	consumed, err := s.FuelConsumed()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), consumed)
	assert.Equal(t, 50, failures)
}

func TestSessionIDs(t *testing.T) {
	a, b := New(NewSoftMeter(0)), New(NewSoftMeter(0))

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
