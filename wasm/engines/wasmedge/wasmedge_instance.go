package wasmedge

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/second-state/WasmEdge-go/wasmedge"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
	"huawei.com/wasm-host-driver/wasm/session"
)

type wasmedgeInstance struct {
	logger      hclog.Logger
	session     *session.Context
	meter       *costMeter
	conf        *native.Owner[wasmedge.Configure]
	store       *native.Owner[wasmedge.Store]
	vm          *native.Owner[wasmedge.VM]
	module      *native.Owner[wasmedge.Module]
	hostModules []*native.Owner[wasmedge.Module]
	bridge      session.Bridge[*wasmedge.CallingFrame]
}

func (i *wasmedgeInstance) instantiate(astModule *wasmedge.AST, hostFuncs []interfaces.HostFunc) error {
	vm, err := i.vm.Get()
	if err != nil {
		return err
	}

	store, err := i.store.Get()
	if err != nil {
		return err
	}

	if err := i.linkHostFuncs(vm, store, hostFuncs); err != nil {
		return err
	}

	module, err := vm.GetExecutor().Instantiate(store, astModule)

	i.module, err = native.Acquire("module", module, err, (*wasmedge.Module).Release)

	return err
}

// linkHostFuncs registers one import module per module name found in hostFuncs.
func (i *wasmedgeInstance) linkHostFuncs(vm *wasmedge.VM, store *wasmedge.Store, hostFuncs []interfaces.HostFunc) error {
	byModule := make(map[string]*wasmedge.Module)
	order := make([]string, 0)

	for _, hf := range hostFuncs {
		hostModule, ok := byModule[hf.Module()]
		if !ok {
			owner, err := native.Acquire("host module", wasmedge.NewModule(hf.Module()), nil, (*wasmedge.Module).Release)
			if err != nil {
				return err
			}

			i.hostModules = append(i.hostModules, owner)
			hostModule = owner.MustGet()
			byModule[hf.Module()] = hostModule
			order = append(order, hf.Module())
		}

		funcType := wasmedge.NewFunctionType(valTypes(hf.Params()), valTypes(hf.Results()))
		hostModule.AddFunction(hf.Name(), wasmedge.NewFunction(funcType, i.thunk(hf), nil, 0))
		funcType.Release()
	}

	for _, moduleName := range order {
		if err := vm.GetExecutor().RegisterImport(store, byModule[moduleName]); err != nil {
			return errors.Wrapf(native.ErrEngineFault, "unable to link host module %s: %v", moduleName, err)
		}

		i.logger.Trace("linked host module", "module", moduleName)
	}

	return nil
}

// thunk bridges a WasmEdge host call to a host function. Errors fail the
// calling guest function.
func (i *wasmedgeInstance) thunk(hf interfaces.HostFunc) func(interface{}, *wasmedge.CallingFrame, []interface{}) ([]interface{}, wasmedge.Result) {
	return func(_ interface{}, callFrame *wasmedge.CallingFrame, params []interface{}) ([]interface{}, wasmedge.Result) {
		frame := i.bridge.Enter(callFrame, i.session)
		defer i.bridge.Exit(frame)

		out, err := hf.Invoke(i, frame, params)
		if err != nil {
			i.logger.Debug("host function failed", "module", hf.Module(), "name", hf.Name(), "error", hclog.Fmt("%+v", err))

			return nil, wasmedge.Result_Fail
		}

		return out, wasmedge.Result_Success
	}
}

func (i *wasmedgeInstance) CallFunc(funcName string, args ...interface{}) (interface{}, error) {
	vm, err := i.vm.Get()
	if err != nil {
		return nil, err
	}

	module, err := i.module.Get()
	if err != nil {
		return nil, err
	}

	moduleFunc := module.FindFunction(funcName)
	if moduleFunc == nil {
		return nil, errors.Wrapf(engines.ErrNotFound, "WASM module doesn't conform calling conventions: no %s func", funcName)
	}

	funcResult, err := callFunction(vm.GetExecutor(), moduleFunc, args)
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

func (i *wasmedgeInstance) GetMemoryRange(start, size int32) ([]byte, error) {
	module, err := i.module.Get()
	if err != nil {
		return nil, err
	}

	mem := module.FindMemory(memoryExportName)
	if mem == nil {
		return nil, errors.Wrap(engines.ErrNotFound, "WASM module doesn't export memory")
	}

	if start < 0 || size < 0 {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "range (%d, %d)", start, size)
	}

	//nolint:gosec
	return (&memory{mem: mem}).Read(uint32(start), uint32(size))
}

func (i *wasmedgeInstance) FuelConsumed() (uint64, error) {
	return i.session.FuelConsumed()
}

// Stop drops the cost limit to zero so running guest code terminates at its
// next instruction.
func (i *wasmedgeInstance) Stop() {
	if i.meter == nil || i.vm.Released() {
		return
	}

	i.meter.stop()
}

func (i *wasmedgeInstance) Cleanup() {
	if i.session != nil {
		i.session.Close()
	}

	i.module.Release()

	for _, hostModule := range i.hostModules {
		hostModule.Release()
	}

	i.vm.Release()
	i.store.Release()
	i.conf.Release()
}
