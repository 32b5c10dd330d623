package wazero

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero/api"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

var (
	toValueType = map[interfaces.ValueKind]api.ValueType{
		interfaces.I32: api.ValueTypeI32,
		interfaces.I64: api.ValueTypeI64,
		interfaces.F32: api.ValueTypeF32,
		interfaces.F64: api.ValueTypeF64,
	}

	fromValueType = map[api.ValueType]interfaces.ValueKind{
		api.ValueTypeI32: interfaces.I32,
		api.ValueTypeI64: interfaces.I64,
		api.ValueTypeF32: interfaces.F32,
		api.ValueTypeF64: interfaces.F64,
	}
)

func valueTypes(kinds []interfaces.ValueKind) []api.ValueType {
	result := make([]api.ValueType, len(kinds))
	for n, kind := range kinds {
		result[n] = toValueType[kind]
	}

	return result
}

func encodeValue(kind interfaces.ValueKind, v interface{}) uint64 {
	switch kind {
	case interfaces.I32:
		return api.EncodeI32(v.(int32))
	case interfaces.I64:
		return api.EncodeI64(v.(int64))
	case interfaces.F32:
		return api.EncodeF32(v.(float32))
	case interfaces.F64:
		return api.EncodeF64(v.(float64))
	default:
		return 0
	}
}

func decodeValue(kind interfaces.ValueKind, v uint64) interface{} {
	switch kind {
	case interfaces.I32:
		return api.DecodeI32(v)
	case interfaces.I64:
		//nolint:gosec
		return int64(v)
	case interfaces.F32:
		return api.DecodeF32(v)
	case interfaces.F64:
		return api.DecodeF64(v)
	default:
		return nil
	}
}

// callFunction calls fn converting Go values according to its signature.
func callFunction(ctx context.Context, fn api.Function, args []interface{}) ([]interface{}, error) {
	def := fn.Definition()
	paramTypes, resultTypes := def.ParamTypes(), def.ResultTypes()

	if len(args) != len(paramTypes) {
		return nil, errors.Wrapf(engines.ErrBadArgument, "%s expects %d arguments, got %d", def.Name(), len(paramTypes), len(args))
	}

	params := make([]uint64, len(args))

	for n, arg := range args {
		kind, ok := fromValueType[paramTypes[n]]
		if !ok {
			return nil, errors.Errorf("%s: unsupported parameter type %s", def.Name(), api.ValueTypeName(paramTypes[n]))
		}

		v, err := engines.ConvertValue(kind, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument %d", def.Name(), n)
		}

		params[n] = encodeValue(kind, v)
	}

	raw, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, err
	}

	results := make([]interface{}, len(raw))
	for n, r := range raw {
		results[n] = decodeValue(fromValueType[resultTypes[n]], r)
	}

	return results, nil
}
