package wasmtime

import (
	"github.com/bytecodealliance/wasmtime-go"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
	"huawei.com/wasm-host-driver/wasm/session"
)

type wasmtimeInstance struct {
	logger   hclog.Logger
	session  *session.Context
	engine   *native.Owner[wasmtime.Engine]
	store    *native.Owner[wasmtime.Store]
	instance *native.Owner[wasmtime.Instance]
	bridge   session.Bridge[*wasmtime.Caller]
}

func (i *wasmtimeInstance) instantiate(module *wasmtime.Module, hostFuncs []interfaces.HostFunc) error {
	store, err := i.store.Get()
	if err != nil {
		return err
	}

	linker := wasmtime.NewLinker(store.Engine)

	for _, hf := range hostFuncs {
		ty := wasmtime.NewFuncType(valTypes(hf.Params()), valTypes(hf.Results()))

		if err := linker.FuncNew(hf.Module(), hf.Name(), ty, i.thunk(hf)); err != nil {
			return errors.Wrapf(native.ErrEngineFault, "unable to link host function %s.%s: %v", hf.Module(), hf.Name(), err)
		}

		i.logger.Trace("linked host function", "module", hf.Module(), "name", hf.Name())
	}

	instance, err := linker.Instantiate(store, module)

	i.instance, err = native.Acquire("instance", instance, err, nil)

	return err
}

// thunk bridges a wasmtime host call to a host function. Errors surface as a
// trap of the calling guest function.
func (i *wasmtimeInstance) thunk(hf interfaces.HostFunc) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	results := hf.Results()

	return func(caller *wasmtime.Caller, params []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		args := make([]interface{}, len(params))
		for n, p := range params {
			args[n] = p.Get()
		}

		frame := i.bridge.Enter(caller, i.session)
		defer i.bridge.Exit(frame)

		out, err := hf.Invoke(i, frame, args)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}

		vals := make([]wasmtime.Val, len(results))
		for n, kind := range results {
			vals[n] = toVal(kind, out[n])
		}

		return vals, nil
	}
}

func (i *wasmtimeInstance) CallFunc(funcName string, args ...interface{}) (interface{}, error) {
	store, err := i.store.Get()
	if err != nil {
		return nil, err
	}

	instance, err := i.instance.Get()
	if err != nil {
		return nil, err
	}

	moduleFunc := instance.GetFunc(store, funcName)
	if moduleFunc == nil {
		return nil, errors.Wrapf(engines.ErrNotFound, "WASM module doesn't conform calling conventions: no %s func", funcName)
	}

	funcResult, err := (&function{store: store, fn: moduleFunc}).Call(args...)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to call function: %s", funcName)
	}

	switch len(funcResult) {
	case 0:
		return nil, nil
	case 1:
		return funcResult[0], nil
	default:
		return funcResult, nil
	}
}

func (i *wasmtimeInstance) GetMemoryRange(start, size int32) ([]byte, error) {
	store, err := i.store.Get()
	if err != nil {
		return nil, err
	}

	instance, err := i.instance.Get()
	if err != nil {
		return nil, err
	}

	ext := instance.GetExport(store, memoryExportName)
	if ext == nil || ext.Memory() == nil {
		return nil, errors.Wrap(engines.ErrNotFound, "WASM module doesn't export memory")
	}

	if start < 0 || size < 0 {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "range (%d, %d)", start, size)
	}

	//nolint:gosec
	return (&memory{store: store, mem: ext.Memory()}).Read(uint32(start), uint32(size))
}

func (i *wasmtimeInstance) FuelConsumed() (uint64, error) {
	return i.session.FuelConsumed()
}

// Stop interrupts running guest code through the epoch deadline.
func (i *wasmtimeInstance) Stop() {
	engine, err := i.engine.Get()
	if err != nil {
		return
	}

	engine.IncrementEpoch()
}

func (i *wasmtimeInstance) Cleanup() {
	if i.session != nil {
		i.session.Close()
	}

	i.instance.Release()
	i.store.Release()
	i.engine.Release()
}

// storeMeter is the native fuel of a wasmtime store.
type storeMeter struct {
	store *wasmtime.Store
}

func (m *storeMeter) AddFuel(amount uint64) error {
	return m.store.AddFuel(amount)
}

func (m *storeMeter) ConsumeFuel(amount uint64) (uint64, error) {
	remaining, err := m.store.ConsumeFuel(amount)
	if err != nil {
		return remaining, errors.Wrapf(session.ErrFuelExhausted, "requested %d: %v", amount, err)
	}

	return remaining, nil
}

func (m *storeMeter) FuelConsumed() (uint64, error) {
	consumed, ok := m.store.FuelConsumed()
	if !ok {
		return 0, session.ErrFuelDisabled
	}

	return consumed, nil
}
