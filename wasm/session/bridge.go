package session

import (
	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
)

// ErrUnknownFrame is returned when a call-frame handle is null or no longer live.
var ErrUnknownFrame = errors.New("unknown call frame")

// Frame is a live native call frame together with the session that produced it.
type Frame[F any] struct {
	Native  F
	Session *Context
}

// Bridge hands out call-frame handles for the duration of a host callback and
// resolves them back to their frame and owning session. F is the engine's own
// call-frame type.
type Bridge[F any] struct {
	frames native.Table[*Frame[F]]
}

// Enter registers a native frame and returns its handle. The handle must be
// passed to Exit before the callback returns to the engine.
func (b *Bridge[F]) Enter(nativeFrame F, s *Context) uintptr {
	return b.frames.Register(&Frame[F]{
		Native:  nativeFrame,
		Session: s,
	})
}

// Exit forgets the frame registered under h.
func (b *Bridge[F]) Exit(h uintptr) {
	b.frames.Unregister(h)
}

// Frame resolves a call-frame handle.
func (b *Bridge[F]) Frame(h uintptr) (*Frame[F], error) {
	f, ok := b.frames.Lookup(h)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFrame, "handle %#x", h)
	}

	return f, nil
}

// SessionContext resolves the owning session of a call frame.
func (b *Bridge[F]) SessionContext(h uintptr) (interfaces.SessionContext, error) {
	f, err := b.Frame(h)
	if err != nil {
		return nil, err
	}

	return f.Session, nil
}

// Live returns the number of frames currently entered.
func (b *Bridge[F]) Live() int {
	return b.frames.Len()
}
