package wasmtime

import (
	"github.com/bytecodealliance/wasmtime-go"
	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

const memoryExportName = "memory"

var _ interfaces.FrameBoundary = (*wasmtimeInstance)(nil)

func (i *wasmtimeInstance) LookupExport(frame uintptr, name string) (interfaces.Export, bool, error) {
	f, err := i.bridge.Frame(frame)
	if err != nil {
		return nil, false, err
	}

	store, err := i.store.Get()
	if err != nil {
		return nil, false, err
	}

	ext := f.Native.GetExport(name)
	if ext == nil {
		return nil, false, nil
	}

	switch {
	case ext.Func() != nil:
		return &export{kind: interfaces.ExportFunc, fn: &function{store: store, fn: ext.Func()}}, true, nil
	case ext.Memory() != nil:
		return &export{kind: interfaces.ExportMemory, mem: &memory{store: store, mem: ext.Memory()}}, true, nil
	case ext.Global() != nil:
		return &export{kind: interfaces.ExportGlobal}, true, nil
	default:
		return &export{kind: interfaces.ExportTable}, true, nil
	}
}

func (i *wasmtimeInstance) SessionContext(frame uintptr) (interfaces.SessionContext, error) {
	return i.bridge.SessionContext(frame)
}

// export keeps the extern reachable until released; views taken from it
// resolve against the instance store.
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
	store *wasmtime.Store
	mem   *wasmtime.Memory
}

func (m *memory) Read(offset, length uint32) ([]byte, error) {
	data := m.mem.UnsafeData(m.store)

	if uint64(offset)+uint64(length) > uint64(len(data)) {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "read %d bytes at %d", length, offset)
	}

	return data[offset : offset+length], nil
}

func (m *memory) Write(offset uint32, buf []byte) error {
	data := m.mem.UnsafeData(m.store)

	if uint64(offset)+uint64(len(buf)) > uint64(len(data)) {
		return errors.Wrapf(engines.ErrOutOfBounds, "write %d bytes at %d", len(buf), offset)
	}

	copy(data[offset:], buf)

	return nil
}

func (m *memory) Size() uint64 {
	return uint64(m.mem.DataSize(m.store))
}

type function struct {
	store *wasmtime.Store
	fn    *wasmtime.Func
}

func (f *function) Call(args ...interface{}) ([]interface{}, error) {
	params := f.fn.Type(f.store).Params()

	if len(args) != len(params) {
		return nil, errors.Wrapf(engines.ErrBadArgument, "function expects %d arguments, got %d", len(params), len(args))
	}

	converted := make([]interface{}, len(args))

	for n, arg := range args {
		kind, ok := fromValKind[params[n].Kind()]
		if !ok {
			return nil, errors.Errorf("unsupported parameter type %s", params[n].Kind())
		}

		v, err := engines.ConvertValue(kind, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", n)
		}

		converted[n] = v
	}

	result, err := f.fn.Call(f.store, converted...)
	if err != nil {
		return nil, err
	}

	return results(result), nil
}
