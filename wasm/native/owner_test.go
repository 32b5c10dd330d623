package native

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	freed int
}

func TestAcquire(t *testing.T) {
	tCases := []struct {
		name           string
		ptr            *fakeObject
		constructErr   error
		expectedErrMsg string
	}{
		{
			name:           "native constructor failed",
			constructErr:   errors.New("malformed module"),
			expectedErrMsg: "unable to create module: malformed module: engine fault",
		},
		{
			name:           "native constructor returned null",
			expectedErrMsg: "unable to create module: engine returned null: engine fault",
		},
		{
			name: "successful acquisition",
			ptr:  &fakeObject{},
		},
	}

	for _, tCase := range tCases {
		t.Run(tCase.name, func(t *testing.T) {
			owner, err := Acquire("module", tCase.ptr, tCase.constructErr, func(o *fakeObject) { o.freed++ })

			if tCase.expectedErrMsg == "" {
				require.NoError(t, err)
				assert.Equal(t, "module", owner.Kind())
				assert.False(t, owner.Released())
			} else {
				assert.Nil(t, owner)
				assert.True(t, errors.Is(err, ErrEngineFault))
				assert.Equal(t, tCase.expectedErrMsg, err.Error())
			}
		})
	}
}

func TestRelease(t *testing.T) {
	obj := &fakeObject{}

	owner, err := Acquire("store", obj, nil, func(o *fakeObject) { o.freed++ })
	require.NoError(t, err)

	got, err := owner.Get()
	require.NoError(t, err)
	assert.Same(t, obj, got)

	owner.Release()
	owner.Release()

	assert.Equal(t, 1, obj.freed)
	assert.True(t, owner.Released())

	_, err = owner.Get()
	assert.True(t, errors.Is(err, ErrReleased))
	assert.Equal(t, "store: native handle already released", err.Error())
	assert.Panics(t, func() { owner.MustGet() })
}

func TestReleaseParallel(t *testing.T) {
	var (
		mu    sync.Mutex
		freed int
		wg    sync.WaitGroup
	)

	owner, err := Acquire("engine", &fakeObject{}, nil, func(*fakeObject) {
		mu.Lock()
		defer mu.Unlock()

		freed++
	})
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			owner.Release()
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, freed)
}

func TestReleaseNilOwner(t *testing.T) {
	var owner *Owner[fakeObject]

	assert.NotPanics(t, func() { owner.Release() })
}
