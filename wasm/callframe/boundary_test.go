package callframe

import (
	"sync"

	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/session"
)

var errLookupFailed = errors.New("lookup failed")

type mockMemory struct {
	data []byte
}

func (m *mockMemory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return nil, errors.New("out of bounds")
	}

	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return errors.New("out of bounds")
	}

	copy(m.data[offset:], data)

	return nil
}

func (m *mockMemory) Size() uint64 {
	return uint64(len(m.data))
}

type mockFunction struct {
	result int32
}

func (f *mockFunction) Call(_ ...interface{}) ([]interface{}, error) {
	return []interface{}{f.result}, nil
}

type mockExport struct {
	boundary *mockBoundary
	kind     interfaces.ExportKind
	mem      interfaces.Memory
	fn       interfaces.Function
}

func (e *mockExport) Kind() interfaces.ExportKind {
	return e.kind
}

func (e *mockExport) Memory() interfaces.Memory {
	return e.mem
}

func (e *mockExport) Function() interfaces.Function {
	return e.fn
}

func (e *mockExport) Release() {
	e.boundary.lock.Lock()
	defer e.boundary.lock.Unlock()

	e.boundary.released++
}

// mockBoundary serves every frame from a single session and export table.
type mockBoundary struct {
	session *session.Context
	exports map[string]*mockExport

	lock      sync.Mutex
	lookups   []uintptr
	handedOut int
	released  int
	failAll   bool
}

func newMockBoundary(fuel uint64) *mockBoundary {
	b := &mockBoundary{
		session: session.New(session.NewSoftMeter(fuel)),
		exports: make(map[string]*mockExport),
	}

	b.exports["memory"] = &mockExport{boundary: b, kind: interfaces.ExportMemory, mem: &mockMemory{data: make([]byte, 16)}}
	b.exports["run"] = &mockExport{boundary: b, kind: interfaces.ExportFunc, fn: &mockFunction{result: 7}}
	b.exports["counter"] = &mockExport{boundary: b, kind: interfaces.ExportGlobal}

	return b
}

func (b *mockBoundary) LookupExport(frame uintptr, name string) (interfaces.Export, bool, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.lookups = append(b.lookups, frame)

	if b.failAll {
		return nil, false, errLookupFailed
	}

	exp, ok := b.exports[name]
	if !ok {
		return nil, false, nil
	}

	b.handedOut++

	return exp, true, nil
}

func (b *mockBoundary) SessionContext(_ uintptr) (interfaces.SessionContext, error) {
	return b.session, nil
}

func (b *mockBoundary) counts() (handedOut, released int) {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.handedOut, b.released
}
