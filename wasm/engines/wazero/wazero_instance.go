package wazero

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
	"huawei.com/wasm-host-driver/wasm/session"
)

type wazeroInstance struct {
	logger  hclog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	session *session.Context
	runtime *native.Owner[wazero.Runtime]
	module  *native.Owner[api.Module]
	bridge  session.Bridge[*callFrame]
}

func (i *wazeroInstance) CallFunc(funcName string, args ...interface{}) (interface{}, error) {
	mod, err := i.module.Get()
	if err != nil {
		return nil, err
	}

	moduleFunc := (*mod).ExportedFunction(funcName)
	if moduleFunc == nil {
		return nil, errors.Wrapf(engines.ErrNotFound, "WASM module doesn't conform calling conventions: no %s func", funcName)
	}

	funcResult, err := callFunction(i.ctx, moduleFunc, args)
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

func (i *wazeroInstance) GetMemoryRange(start, size int32) ([]byte, error) {
	mod, err := i.module.Get()
	if err != nil {
		return nil, err
	}

	memory := (*mod).Memory()
	if memory == nil {
		return nil, errors.Wrap(engines.ErrNotFound, "WASM module doesn't export memory")
	}

	if start < 0 || size < 0 {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "range (%d, %d)", start, size)
	}

	//nolint:gosec
	ioBuf, ok := memory.Read(uint32(start), uint32(size))
	if !ok {
		return nil, errors.Wrapf(engines.ErrOutOfBounds, "range (%d, %d)", start, size)
	}

	return ioBuf, nil
}

func (i *wazeroInstance) FuelConsumed() (uint64, error) {
	return i.session.FuelConsumed()
}

// Stop cancels the instance context, which terminates running guest code.
func (i *wazeroInstance) Stop() {
	i.cancel()
}

func (i *wazeroInstance) Cleanup() {
	i.session.Close()
	i.module.Release()
	i.runtime.Release()
	i.cancel()
}

// linkHostFuncs instantiates one host module per import module name.
func (i *wazeroInstance) linkHostFuncs(hostFuncs []interfaces.HostFunc) error {
	r, err := i.runtime.Get()
	if err != nil {
		return err
	}

	byModule := make(map[string][]interfaces.HostFunc)
	order := make([]string, 0)

	for _, hf := range hostFuncs {
		if _, ok := byModule[hf.Module()]; !ok {
			order = append(order, hf.Module())
		}

		byModule[hf.Module()] = append(byModule[hf.Module()], hf)
	}

	for _, moduleName := range order {
		builder := (*r).NewHostModuleBuilder(moduleName)

		for _, hf := range byModule[moduleName] {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(i.thunk(hf), valueTypes(hf.Params()), valueTypes(hf.Results())).
				WithName(hf.Name()).
				Export(hf.Name())
		}

		if _, err := builder.Instantiate(i.ctx); err != nil {
			return errors.Wrapf(native.ErrEngineFault, "unable to link host module %s: %v", moduleName, err)
		}

		i.logger.Trace("linked host module", "module", moduleName, "functions", len(byModule[moduleName]))
	}

	return nil
}

// thunk bridges a wazero host call to a host function. Errors surface as a
// trap of the calling guest function.
func (i *wazeroInstance) thunk(hf interfaces.HostFunc) api.GoModuleFunc {
	params, results := hf.Params(), hf.Results()

	return func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]interface{}, len(params))
		for n, kind := range params {
			args[n] = decodeValue(kind, stack[n])
		}

		frame := i.bridge.Enter(&callFrame{ctx: ctx, module: mod}, i.session)
		defer i.bridge.Exit(frame)

		out, err := hf.Invoke(i, frame, args)
		if err != nil {
			panic(err)
		}

		for n, kind := range results {
			stack[n] = encodeValue(kind, out[n])
		}
	}
}
