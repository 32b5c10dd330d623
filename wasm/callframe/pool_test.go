package callframe

import (
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	tCases := []struct {
		name           string
		frame          uintptr
		expectedErrMsg string
	}{
		{
			name:           "null frame handle",
			frame:          0,
			expectedErrMsg: "null call frame handle: invalid argument",
		},
		{
			name:  "valid frame handle",
			frame: 0x1000,
		},
	}

	for _, tCase := range tCases {
		t.Run(tCase.name, func(t *testing.T) {
			pool := NewPool(DefaultCapacity, nil)

			rec, generation, err := pool.Acquire(tCase.frame)

			if tCase.expectedErrMsg == "" {
				require.NoError(t, err)
				assert.Equal(t, uint32(1), generation)
				assert.Equal(t, tCase.frame, rec.handle.Load())
			} else {
				assert.Nil(t, rec)
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				assert.Equal(t, tCase.expectedErrMsg, err.Error())
			}
		})
	}
}

func TestReleaseRecyclesRecord(t *testing.T) {
	pool := NewPool(DefaultCapacity, nil)

	rec, generation, err := pool.Acquire(0x1000)
	require.NoError(t, err)

	pool.Release(rec, generation)

	assert.Equal(t, generation+1, rec.generation.Load())
	assert.Zero(t, rec.handle.Load())
	assert.Equal(t, 1, pool.Idle())

	again, nextGeneration, err := pool.Acquire(0x2000)
	require.NoError(t, err)

	assert.Same(t, rec, again)
	assert.Equal(t, generation+2, nextGeneration)
	assert.Equal(t, Stats{Allocated: 1, Reused: 1}, pool.Stats())
}

func TestReleaseStaleGeneration(t *testing.T) {
	tCases := []struct {
		name       string
		generation func(current uint32) uint32
	}{
		{
			name:       "older generation",
			generation: func(current uint32) uint32 { return current - 1 },
		},
		{
			name:       "newer generation",
			generation: func(current uint32) uint32 { return current + 1 },
		},
	}

	for _, tCase := range tCases {
		t.Run(tCase.name, func(t *testing.T) {
			pool := NewPool(DefaultCapacity, nil)

			rec, generation, err := pool.Acquire(0x1000)
			require.NoError(t, err)

			pool.Release(rec, tCase.generation(generation))

			assert.Equal(t, generation, rec.generation.Load())
			assert.Equal(t, uintptr(0x1000), rec.handle.Load())
			assert.Equal(t, 0, pool.Idle())
		})
	}
}

func TestDoubleRelease(t *testing.T) {
	pool := NewPool(DefaultCapacity, nil)

	rec, generation, err := pool.Acquire(0x1000)
	require.NoError(t, err)

	pool.Release(rec, generation)
	pool.Release(rec, generation)

	assert.Equal(t, generation+1, rec.generation.Load())
	assert.Equal(t, 1, pool.Idle())
}

func TestIdleNeverExceedsCapacity(t *testing.T) {
	tCases := []struct {
		name         string
		capacity     int
		loans        int
		expectedIdle int
	}{
		{
			name:         "fewer loans than capacity",
			capacity:     DefaultCapacity,
			loans:        10,
			expectedIdle: 10,
		},
		{
			name:         "more loans than capacity",
			capacity:     DefaultCapacity,
			loans:        200,
			expectedIdle: DefaultCapacity,
		},
		{
			name:         "zero capacity",
			capacity:     0,
			loans:        5,
			expectedIdle: 0,
		},
	}

	for _, tCase := range tCases {
		t.Run(tCase.name, func(t *testing.T) {
			pool := NewPool(tCase.capacity, nil)

			recs := make([]*Record, 0, tCase.loans)
			generations := make([]uint32, 0, tCase.loans)

			for i := 0; i < tCase.loans; i++ {
				rec, generation, err := pool.Acquire(uintptr(i + 1))
				require.NoError(t, err)

				recs = append(recs, rec)
				generations = append(generations, generation)
			}

			for i := range recs {
				pool.Release(recs[i], generations[i])
				assert.LessOrEqual(t, pool.Idle(), tCase.capacity)
			}

			assert.Equal(t, tCase.expectedIdle, pool.Idle())
			assert.Equal(t, uint64(tCase.loans-tCase.expectedIdle), pool.Stats().Dropped)
		})
	}
}

func TestRetireNearGenerationLimit(t *testing.T) {
	tCases := []struct {
		name            string
		startGeneration uint32
		expectedRetired bool
	}{
		{
			name:            "far from the limit",
			startGeneration: 1000,
			expectedRetired: false,
		},
		{
			name:            "release lands just below the threshold",
			startGeneration: math.MaxUint32 - retireThreshold - 3,
			expectedRetired: false,
		},
		{
			name:            "release lands on the threshold",
			startGeneration: math.MaxUint32 - retireThreshold - 2,
			expectedRetired: true,
		},
		{
			name:            "release lands inside the threshold",
			startGeneration: math.MaxUint32 - 5,
			expectedRetired: true,
		},
	}

	for _, tCase := range tCases {
		t.Run(tCase.name, func(t *testing.T) {
			pool := NewPool(DefaultCapacity, nil)

			rec := &Record{}
			rec.generation.Store(tCase.startGeneration)
			pool.idle <- rec

			got, generation, err := pool.Acquire(0x1000)
			require.NoError(t, err)
			require.Same(t, rec, got)

			pool.Release(rec, generation)

			assert.Equal(t, generation+1, rec.generation.Load())

			if tCase.expectedRetired {
				assert.Equal(t, 0, pool.Idle())
				assert.Equal(t, uint64(1), pool.Stats().Retired)
			} else {
				assert.Equal(t, 1, pool.Idle())
				assert.Zero(t, pool.Stats().Retired)
			}
		})
	}
}

func TestGenerationsNeverRepeatPerRecord(t *testing.T) {
	pool := NewPool(1, nil)

	seen := make(map[*Record]map[uint32]bool)

	for i := 0; i < 1000; i++ {
		rec, generation, err := pool.Acquire(uintptr(i + 1))
		require.NoError(t, err)

		if seen[rec] == nil {
			seen[rec] = make(map[uint32]bool)
		}

		assert.False(t, seen[rec][generation], "generation %d loaned twice", generation)
		seen[rec][generation] = true

		pool.Release(rec, generation)
	}

	assert.Len(t, seen, 1)
}

func TestAcquireReleaseParallel(t *testing.T) {
	pool := NewPool(DefaultCapacity, nil)

	type loan struct {
		rec        *Record
		generation uint32
	}

	var (
		wg     sync.WaitGroup
		active sync.Map
	)

	for w := 0; w < 16; w++ {
		worker := w

		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 500; i++ {
				rec, generation, err := pool.Acquire(uintptr(worker*1000 + i + 1))
				if !assert.NoError(t, err) {
					return
				}

				key := loan{rec: rec, generation: generation}
				if _, dup := active.LoadOrStore(key, true); dup {
					t.Errorf("record loaned twice with generation %d", generation)
				}

				active.Delete(key)
				pool.Release(rec, generation)
			}
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, pool.Idle(), DefaultCapacity)

	stats := pool.Stats()
	assert.Equal(t, uint64(16*500), stats.Allocated+stats.Reused)
}

func TestDefaultPool(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.Equal(t, DefaultCapacity, Default().Capacity())
}
