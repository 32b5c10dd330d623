package engines

import (
	"math"

	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/interfaces"
)

// Largest integers a float32 and a float64 represent exactly.
const (
	maxExactF32 = 1 << 24
	maxExactF64 = 1 << 53
)

// ConvertValue converts an argument for a guest function parameter of the given
// kind. Integers are accepted for any parameter they fit in without loss.
func ConvertValue(kind interfaces.ValueKind, v interface{}) (interface{}, error) {
	switch kind {
	case interfaces.I32:
		switch x := v.(type) {
		case int32:
			return x, nil
		case int:
			if int64(x) >= math.MinInt32 && int64(x) <= math.MaxInt32 {
				return int32(x), nil
			}

			return nil, outOfRange(v, kind)
		case int64:
			if x >= math.MinInt32 && x <= math.MaxInt32 {
				return int32(x), nil
			}

			return nil, outOfRange(v, kind)
		case uint32:
			if x <= math.MaxInt32 {
				return int32(x), nil
			}

			return nil, outOfRange(v, kind)
		}
	case interfaces.I64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		}
	case interfaces.F32:
		switch x := v.(type) {
		case float32:
			return x, nil
		case int:
			if x >= -maxExactF32 && x <= maxExactF32 {
				return float32(x), nil
			}

			return nil, outOfRange(v, kind)
		case int32:
			if x >= -maxExactF32 && x <= maxExactF32 {
				return float32(x), nil
			}

			return nil, outOfRange(v, kind)
		}
	case interfaces.F64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int:
			if int64(x) >= -maxExactF64 && int64(x) <= maxExactF64 {
				return float64(x), nil
			}

			return nil, outOfRange(v, kind)
		case int64:
			if x >= -maxExactF64 && x <= maxExactF64 {
				return float64(x), nil
			}

			return nil, outOfRange(v, kind)
		}
	}

	return nil, errors.Wrapf(ErrBadArgument, "cannot use %T as %s", v, kind)
}

func outOfRange(v interface{}, kind interfaces.ValueKind) error {
	return errors.Wrapf(ErrBadArgument, "%v is out of %s range", v, kind)
}
