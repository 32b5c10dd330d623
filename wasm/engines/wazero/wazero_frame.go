package wazero

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero/api"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

// callFrame is what wazero hands a host function: the calling module and the
// context of the call.
type callFrame struct {
	ctx    context.Context
	module api.Module
}

var _ interfaces.FrameBoundary = (*wazeroInstance)(nil)

func (i *wazeroInstance) LookupExport(frame uintptr, name string) (interfaces.Export, bool, error) {
	f, err := i.bridge.Frame(frame)
	if err != nil {
		return nil, false, err
	}

	mod := f.Native.module

	if fn := mod.ExportedFunction(name); fn != nil {
		return &export{kind: interfaces.ExportFunc, fn: &function{ctx: f.Native.ctx, fn: fn}}, true, nil
	}

	if mem := mod.ExportedMemory(name); mem != nil {
		return &export{kind: interfaces.ExportMemory, mem: &memory{mem: mem}}, true, nil
	}

	if g := mod.ExportedGlobal(name); g != nil {
		return &export{kind: interfaces.ExportGlobal}, true, nil
	}

	return nil, false, nil
}

func (i *wazeroInstance) SessionContext(frame uintptr) (interfaces.SessionContext, error) {
	return i.bridge.SessionContext(frame)
}

// export holds no native resource of its own; wazero exports live as long as
// their module.
type export struct {
	kind interfaces.ExportKind
	mem  interfaces.Memory
	fn   interfaces.Function
}

func (e *export) Kind() interfaces.ExportKind {
	return e.kind
}

func (e *export) Memory() interfaces.Memory {
	return e.mem
}

func (e *export) Function() interfaces.Function {
	return e.fn
}

func (e *export) Release() {
	e.mem = nil
	e.fn = nil
}

type memory struct {
	mem api.Memory
}

func (m *memory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "read %d bytes at %d", length, offset)
	}

	return data, nil
}

func (m *memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.Wrapf(engines.ErrOutOfBounds, "write %d bytes at %d", len(data), offset)
	}

	return nil
}

func (m *memory) Size() uint64 {
	return uint64(m.mem.Size())
}

type function struct {
	ctx context.Context
	fn  api.Function
}

func (f *function) Call(args ...interface{}) ([]interface{}, error) {
	return callFunction(f.ctx, f.fn, args)
}
