package wasmedge

import (
	"github.com/pkg/errors"
	"github.com/second-state/WasmEdge-go/wasmedge"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

var (
	toValType = map[interfaces.ValueKind]wasmedge.ValType{
		interfaces.I32: wasmedge.ValType_I32,
		interfaces.I64: wasmedge.ValType_I64,
		interfaces.F32: wasmedge.ValType_F32,
		interfaces.F64: wasmedge.ValType_F64,
	}

	fromValType = map[wasmedge.ValType]interfaces.ValueKind{
		wasmedge.ValType_I32: interfaces.I32,
		wasmedge.ValType_I64: interfaces.I64,
		wasmedge.ValType_F32: interfaces.F32,
		wasmedge.ValType_F64: interfaces.F64,
	}
)

func valTypes(kinds []interfaces.ValueKind) []wasmedge.ValType {
	result := make([]wasmedge.ValType, len(kinds))
	for n, kind := range kinds {
		result[n] = toValType[kind]
	}

	return result
}

// callFunction invokes fn converting Go values according to its signature.
func callFunction(executor *wasmedge.Executor, fn *wasmedge.Function, args []interface{}) ([]interface{}, error) {
	params := fn.GetFunctionType().GetParameters()

	if len(args) != len(params) {
		return nil, errors.Wrapf(engines.ErrBadArgument, "function expects %d arguments, got %d", len(params), len(args))
	}

	converted := make([]interface{}, len(args))

	for n, arg := range args {
		kind, ok := fromValType[params[n]]
		if !ok {
			return nil, errors.Errorf("unsupported parameter type %v", params[n])
		}

		v, err := engines.ConvertValue(kind, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", n)
		}

		converted[n] = v
	}

	return executor.Invoke(fn, converted...)
}
