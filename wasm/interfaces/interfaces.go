package interfaces

import (
	"github.com/bluele/gcache"
	"github.com/hashicorp/go-hclog"
)

type Engine interface {
	Name() string
	Init(logger hclog.Logger, moduleCache gcache.Cache)
	InstantiateModule(modulePath string, opts InstanceOptions) (WasmInstance, error)
	PrePopulateCache(modulesDir string) (int, error)
}

type WasmInstance interface {
	CallFunc(funcName string, args ...interface{}) (interface{}, error)
	GetMemoryRange(start int32, size int32) ([]byte, error)
	// FuelConsumed reports the fuel spent by the instance session so far.
	FuelConsumed() (uint64, error)
	Stop()
	// Cleanup releases every native object held by the instance. Safe to call more than once.
	Cleanup()
}

// InstanceOptions configure a single module instantiation.
type InstanceOptions struct {
	// UserData is stored in the session user-data slot before the module starts.
	UserData interface{}
	// HostFuncs are linked as imports of the module.
	HostFuncs []HostFunc
	// Fuel is the initial execution budget. Zero means unbounded.
	Fuel uint64
}

// ValueKind is the wasm value type of a host function parameter or result.
type ValueKind uint8

const (
	I32 ValueKind = iota
	I64
	F32
	F64
)

func (k ValueKind) String() string {
	switch k {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}

// HostFunc is a host function as seen by an engine backend. Values crossing the
// boundary are int32, int64, float32 or float64 matching Params and Results.
//
// Invoke is called with the raw call-frame handle and the boundary that can
// resolve it; backends never build caller views themselves.
type HostFunc interface {
	Module() string
	Name() string
	Params() []ValueKind
	Results() []ValueKind
	Invoke(boundary FrameBoundary, frame uintptr, args []interface{}) ([]interface{}, error)
}

// ExportKind is the kind of an export found on a call frame.
type ExportKind uint8

const (
	ExportFunc ExportKind = iota
	ExportMemory
	ExportGlobal
	ExportTable
)

// Export is a native export object returned by a call-frame lookup. The
// receiver owns it and must Release it; the Memory or Function taken from it
// stays usable afterwards since it borrows from the session.
type Export interface {
	Kind() ExportKind
	// Memory returns nil unless Kind is ExportMemory.
	Memory() Memory
	// Function returns nil unless Kind is ExportFunc.
	Function() Function
	Release()
}

// Memory is a non-owning view over a linear memory export. It is only valid
// while the session that produced it is alive.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint64
}

// Function is a non-owning view over a function export.
type Function interface {
	Call(args ...interface{}) ([]interface{}, error)
}

// FuelMeter is the native fuel accounting of a store.
type FuelMeter interface {
	AddFuel(amount uint64) error
	// ConsumeFuel spends amount and returns the remaining fuel. It must not
	// consume anything when amount exceeds the remaining fuel.
	ConsumeFuel(amount uint64) (uint64, error)
	FuelConsumed() (uint64, error)
}

// SessionContext is the owning session of a call frame.
type SessionContext interface {
	FuelMeter
	UserData() (interface{}, error)
	SetUserData(v interface{}) error
}

// FrameBoundary is the set of native calls issued against a live call frame.
type FrameBoundary interface {
	// LookupExport returns false when no export with the given name exists.
	LookupExport(frame uintptr, name string) (Export, bool, error)
	SessionContext(frame uintptr) (SessionContext, error)
}
