package session

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	name string
}

func TestBridge(t *testing.T) {
	var bridge Bridge[*fakeFrame]

	s := New(NewSoftMeter(10))
	frame := &fakeFrame{name: "outer"}

	h := bridge.Enter(frame, s)
	assert.NotZero(t, h)
	assert.Equal(t, 1, bridge.Live())

	f, err := bridge.Frame(h)
	require.NoError(t, err)
	assert.Same(t, frame, f.Native)

	sc, err := bridge.SessionContext(h)
	require.NoError(t, err)
	assert.Same(t, s, sc)

	bridge.Exit(h)
	assert.Equal(t, 0, bridge.Live())

	_, err = bridge.SessionContext(h)
	assert.True(t, errors.Is(err, ErrUnknownFrame))
}

func TestBridgeNullHandle(t *testing.T) {
	var bridge Bridge[*fakeFrame]

	_, err := bridge.Frame(0)
	assert.True(t, errors.Is(err, ErrUnknownFrame))
	assert.Equal(t, "handle 0x0: unknown call frame", err.Error())
}
