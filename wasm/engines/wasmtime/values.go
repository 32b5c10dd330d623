package wasmtime

import (
	"github.com/bytecodealliance/wasmtime-go"

	"huawei.com/wasm-host-driver/wasm/interfaces"
)

var (
	toValKind = map[interfaces.ValueKind]wasmtime.ValKind{
		interfaces.I32: wasmtime.KindI32,
		interfaces.I64: wasmtime.KindI64,
		interfaces.F32: wasmtime.KindF32,
		interfaces.F64: wasmtime.KindF64,
	}

	fromValKind = map[wasmtime.ValKind]interfaces.ValueKind{
		wasmtime.KindI32: interfaces.I32,
		wasmtime.KindI64: interfaces.I64,
		wasmtime.KindF32: interfaces.F32,
		wasmtime.KindF64: interfaces.F64,
	}
)

func valTypes(kinds []interfaces.ValueKind) []*wasmtime.ValType {
	result := make([]*wasmtime.ValType, len(kinds))
	for n, kind := range kinds {
		result[n] = wasmtime.NewValType(toValKind[kind])
	}

	return result
}

func toVal(kind interfaces.ValueKind, v interface{}) wasmtime.Val {
	switch kind {
	case interfaces.I64:
		return wasmtime.ValI64(v.(int64))
	case interfaces.F32:
		return wasmtime.ValF32(v.(float32))
	case interfaces.F64:
		return wasmtime.ValF64(v.(float64))
	default:
		return wasmtime.ValI32(v.(int32))
	}
}

// results normalizes the result of Func.Call, which is nil, a single value or
// a slice of Val depending on the function arity.
func results(result interface{}) []interface{} {
	switch r := result.(type) {
	case nil:
		return []interface{}{}
	case []wasmtime.Val:
		out := make([]interface{}, len(r))
		for n, v := range r {
			out[n] = v.Get()
		}

		return out
	default:
		return []interface{}{r}
	}
}
