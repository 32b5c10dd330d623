package hostfuncs

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/callframe"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

const (
	// EnvModule is the import module of the built-in host functions.
	EnvModule = "env"

	// MemoryExport is the export every guest using pointer arguments must provide.
	MemoryExport = "memory"
)

// ErrNoMemory is returned when a guest passes pointers but exports no memory.
var ErrNoMemory = errors.New("guest does not export memory")

// TaskContext is stored in the session user-data slot by the driver.
type TaskContext struct {
	Logger hclog.Logger
	ID     string
	Name   string
}

func init() {
	Register(New(EnvModule, "log", kinds(interfaces.I32, interfaces.I32), nil, hostLog))
	Register(New(EnvModule, "add_fuel", kinds(interfaces.I64), nil, hostAddFuel))
	Register(New(EnvModule, "consume_fuel", kinds(interfaces.I64), kinds(interfaces.I64), hostConsumeFuel))
	Register(New(EnvModule, "fuel_consumed", nil, kinds(interfaces.I64), hostFuelConsumed))
	Register(New(EnvModule, "task_name", kinds(interfaces.I32, interfaces.I32), kinds(interfaces.I32), hostTaskName))
	Register(New(EnvModule, "invoke", kinds(interfaces.I32, interfaces.I32), kinds(interfaces.I32), hostInvoke))
}

func kinds(k ...interfaces.ValueKind) []interfaces.ValueKind {
	return k
}

func taskContext(caller callframe.Caller) (*TaskContext, error) {
	v, err := caller.GetUserData()
	if err != nil {
		return nil, err
	}

	if tc, ok := v.(*TaskContext); ok && tc != nil {
		return tc, nil
	}

	return &TaskContext{Logger: hclog.NewNullLogger()}, nil
}

func guestMemory(caller callframe.Caller) (callframe.Memory, error) {
	mem, found, err := caller.LookupExportAsMemory(MemoryExport)
	if err != nil {
		return callframe.Memory{}, err
	}

	if !found {
		return callframe.Memory{}, ErrNoMemory
	}

	return mem, nil
}

func readString(caller callframe.Caller, ptr, length int32) (string, error) {
	if ptr < 0 || length < 0 {
		return "", errors.Errorf("invalid guest slice (%d, %d)", ptr, length)
	}

	mem, err := guestMemory(caller)
	if err != nil {
		return "", err
	}

	//nolint:gosec
	data, err := mem.Read(uint32(ptr), uint32(length))
	if err != nil {
		return "", errors.Wrap(err, "unable to read guest memory")
	}

	return string(data), nil
}

// log(ptr, len) writes a guest string to the task log.
func hostLog(caller callframe.Caller, args []interface{}) ([]interface{}, error) {
	msg, err := readString(caller, args[0].(int32), args[1].(int32))
	if err != nil {
		return nil, err
	}

	tc, err := taskContext(caller)
	if err != nil {
		return nil, err
	}

	tc.Logger.Info("guest message", "task", tc.Name, "task_id", tc.ID, "message", msg)

	return nil, nil
}

// add_fuel(amount) raises the session budget.
func hostAddFuel(caller callframe.Caller, args []interface{}) ([]interface{}, error) {
	amount := args[0].(int64)
	if amount < 0 {
		return nil, errors.Errorf("negative fuel amount %d", amount)
	}

	//nolint:gosec
	return nil, caller.AddFuel(uint64(amount))
}

// consume_fuel(amount) returns the remaining fuel, or -1 when the budget is
// too small, in which case nothing is consumed.
func hostConsumeFuel(caller callframe.Caller, args []interface{}) ([]interface{}, error) {
	amount := args[0].(int64)
	if amount < 0 {
		return nil, errors.Errorf("negative fuel amount %d", amount)
	}

	//nolint:gosec
	remaining, err := caller.ConsumeFuel(uint64(amount))

	switch {
	case err == nil:
		//nolint:gosec
		return []interface{}{int64(remaining)}, nil
	case errors.Is(err, callframe.ErrFuelExhausted):
		return []interface{}{int64(-1)}, nil
	default:
		return nil, err
	}
}

// fuel_consumed() returns the fuel spent by the session.
func hostFuelConsumed(caller callframe.Caller, _ []interface{}) ([]interface{}, error) {
	consumed, err := caller.GetConsumedFuel()
	if err != nil {
		return nil, err
	}

	//nolint:gosec
	return []interface{}{int64(consumed)}, nil
}

// task_name(ptr, cap) copies the task name into the guest buffer, truncated to
// cap bytes, and returns its full length.
func hostTaskName(caller callframe.Caller, args []interface{}) ([]interface{}, error) {
	ptr, capacity := args[0].(int32), args[1].(int32)
	if ptr < 0 || capacity < 0 {
		return nil, errors.Errorf("invalid guest buffer (%d, %d)", ptr, capacity)
	}

	tc, err := taskContext(caller)
	if err != nil {
		return nil, err
	}

	name := []byte(tc.Name)
	if len(name) > int(capacity) {
		name = name[:capacity]
	}

	mem, err := guestMemory(caller)
	if err != nil {
		return nil, err
	}

	//nolint:gosec
	if err := mem.Write(uint32(ptr), name); err != nil {
		return nil, errors.Wrap(err, "unable to write guest memory")
	}

	//nolint:gosec
	return []interface{}{int32(len(tc.Name))}, nil
}

// invoke(ptr, len) calls the guest export named by the string at ptr with no
// arguments and returns its first i32 result. It returns -1 when the export
// is missing or is not a function.
func hostInvoke(caller callframe.Caller, args []interface{}) ([]interface{}, error) {
	name, err := readString(caller, args[0].(int32), args[1].(int32))
	if err != nil {
		return nil, err
	}

	fn, found, err := caller.LookupExportAsFunction(name)
	if err != nil {
		return nil, err
	}

	if !found {
		return []interface{}{int32(-1)}, nil
	}

	results, err := fn.Call()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to call guest export %s", name)
	}

	if len(results) == 0 {
		return []interface{}{int32(0)}, nil
	}

	if v, ok := results[0].(int32); ok {
		return []interface{}{v}, nil
	}

	return []interface{}{int32(0)}, nil
}
