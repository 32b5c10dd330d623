package wasmedge

import (
	"github.com/pkg/errors"
	"github.com/second-state/WasmEdge-go/wasmedge"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

const (
	memoryExportName = "memory"
	pageSize         = 64 * 1024
)

var _ interfaces.FrameBoundary = (*wasmedgeInstance)(nil)

func (i *wasmedgeInstance) LookupExport(frame uintptr, name string) (interfaces.Export, bool, error) {
	f, err := i.bridge.Frame(frame)
	if err != nil {
		return nil, false, err
	}

	module := f.Native.GetModule()
	if module == nil {
		return nil, false, nil
	}

	if fn := module.FindFunction(name); fn != nil {
		return &export{kind: interfaces.ExportFunc, fn: &function{executor: f.Native.GetExecutor(), fn: fn}}, true, nil
	}

	if mem := module.FindMemory(name); mem != nil {
		return &export{kind: interfaces.ExportMemory, mem: &memory{mem: mem}}, true, nil
	}

	if g := module.FindGlobal(name); g != nil {
		return &export{kind: interfaces.ExportGlobal}, true, nil
	}

	if t := module.FindTable(name); t != nil {
		return &export{kind: interfaces.ExportTable}, true, nil
	}

	return nil, false, nil
}

func (i *wasmedgeInstance) SessionContext(frame uintptr) (interfaces.SessionContext, error) {
	return i.bridge.SessionContext(frame)
}

// export wraps instances found through the calling frame module. They belong
// to that module, so releasing the export only drops the references.
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
	mem *wasmedge.Memory
}

func (m *memory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > m.Size() {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "read %d bytes at %d", length, offset)
	}

	data, err := m.mem.GetData(uint(offset), uint(length))
	if err != nil {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "read %d bytes at %d: %v", length, offset, err)
	}

	return data, nil
}

func (m *memory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > m.Size() {
		return errors.Wrapf(engines.ErrOutOfBounds, "write %d bytes at %d", len(data), offset)
	}

	if err := m.mem.SetData(data, uint(offset), uint(len(data))); err != nil {
		return errors.Wrapf(engines.ErrOutOfBounds, "write %d bytes at %d: %v", len(data), offset, err)
	}

	return nil
}

func (m *memory) Size() uint64 {
	return uint64(m.mem.GetPageSize()) * pageSize
}

type function struct {
	executor *wasmedge.Executor
	fn       *wasmedge.Function
}

func (f *function) Call(args ...interface{}) ([]interface{}, error) {
	return callFunction(f.executor, f.fn, args)
}
