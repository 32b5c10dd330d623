package wasmedge

import (
	"fmt"
	"os"

	"github.com/bluele/gcache"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/second-state/WasmEdge-go/wasmedge"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
	"huawei.com/wasm-host-driver/wasm/session"
)

const engineExtensionName = "wasmedge"

func init() {
	engines.Register(&wasmedgeEngine{})
}

type wasmedgeEngine struct {
	logger       hclog.Logger
	modulesCache gcache.Cache
}

func (e *wasmedgeEngine) Name() string {
	return engineExtensionName
}

func (e *wasmedgeEngine) Init(logger hclog.Logger, moduleCache gcache.Cache) {
	e.logger = logger
	e.modulesCache = moduleCache
}

func (e *wasmedgeEngine) PrePopulateCache(modulesDir string) (int, error) {
	if e.modulesCache == nil {
		return 0, fmt.Errorf("unable to pre populate modules: cache is not created")
	}

	modulesPath, err := engines.ModuleFiles(modulesDir)
	if err != nil {
		return 0, err
	}

	store := wasmedge.NewStore()
	defer store.Release()

	vm := wasmedge.NewVMWithStore(store)
	defer vm.Release()

	var preCachedModulesNumber int

	for _, modulePath := range modulesPath {
		wasmModule, err := loadModule(vm, modulePath)
		if err != nil {
			return 0, fmt.Errorf("unable to load WASM module (%v) from file: %v", modulePath, err)
		}

		if err := e.modulesCache.Set(modulePath, wasmModule); err != nil {
			return 0, fmt.Errorf("unable to cache WASM module (%v)", modulePath)
		}

		preCachedModulesNumber++

		e.logger.Trace("WASM module pre-cached", "module", modulePath)
	}

	return preCachedModulesNumber, nil
}

func (e *wasmedgeEngine) InstantiateModule(modulePath string, opts interfaces.InstanceOptions) (interfaces.WasmInstance, error) {
	e.logger.Debug("instantiate new module", "module path", modulePath)

	i, err := e.newInstance(opts)
	if err != nil {
		return nil, err
	}

	astModule, err := e.getModule(i.vm.MustGet(), modulePath)
	if err != nil {
		i.Cleanup()

		return nil, fmt.Errorf("unable to get module %s: %w", modulePath, err)
	}

	// cached ASTs are shared between instances and stay with the cache.
	if e.modulesCache == nil {
		defer astModule.Release()
	}

	if err := i.instantiate(astModule, opts.HostFuncs); err != nil {
		i.Cleanup()

		return nil, errors.Wrapf(err, "unable to create new instance from module: %s", modulePath)
	}

	return i, nil
}

// newInstance creates the configure, store and VM of a new instance with cost
// measuring enabled, so the statistics cost doubles as fuel.
func (e *wasmedgeEngine) newInstance(opts interfaces.InstanceOptions) (*wasmedgeInstance, error) {
	i := &wasmedgeInstance{logger: e.logger}

	conf := wasmedge.NewConfigure()

	var err error

	i.conf, err = native.Acquire("configure", conf, nil, (*wasmedge.Configure).Release)
	if err != nil {
		return nil, err
	}

	conf.SetStatisticsCostMeasuring(true)
	conf.SetStatisticsInstructionCounting(true)

	i.store, err = native.Acquire("store", wasmedge.NewStore(), nil, (*wasmedge.Store).Release)
	if err != nil {
		i.Cleanup()

		return nil, err
	}

	i.vm, err = native.Acquire("vm", wasmedge.NewVMWithConfigAndStore(conf, i.store.MustGet()), nil, (*wasmedge.VM).Release)
	if err != nil {
		i.Cleanup()

		return nil, err
	}

	i.meter = newCostMeter(i.vm.MustGet().GetStatistics(), opts.Fuel)
	i.session = session.New(i.meter)

	if err := i.session.SetUserData(opts.UserData); err != nil {
		i.Cleanup()

		return nil, err
	}

	return i, nil
}

func (e *wasmedgeEngine) getModule(vm *wasmedge.VM, modulePath string) (*wasmedge.AST, error) {
	if e.modulesCache == nil {
		e.logger.Debug("modules cache disabled loading WASM module from file", "module", modulePath)

		return loadModule(vm, modulePath)
	}

	mod, getCacheErr := e.modulesCache.Get(modulePath)

	switch {
	case getCacheErr == nil:
		return mod.(*wasmedge.AST), nil
	case errors.Is(getCacheErr, gcache.KeyNotFoundError):
		astModule, err := loadModule(vm, modulePath)
		if err != nil {
			e.logger.Error("unable to load WASM module", "error", hclog.Fmt("%+v", err))

			return nil, fmt.Errorf("unable to load WASM module: %w", err)
		}

		if err = e.modulesCache.Set(modulePath, astModule); err != nil {
			e.logger.Error("unable to cache WASM module", "error", hclog.Fmt("%+v", err))

			return nil, fmt.Errorf("unable to cache: %w", err)
		}

		e.logger.Debug("cached WASM module", "module", modulePath)

		return astModule, nil
	default:
		e.logger.Error("unable to get module from cache", "error", hclog.Fmt("%+v", getCacheErr))

		return nil, fmt.Errorf("unable to cache WASM module: %w", getCacheErr)
	}
}

func loadModule(vm *wasmedge.VM, filePath string) (*wasmedge.AST, error) {
	moduleByte, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return loadBuffer(vm, moduleByte)
}

func loadBuffer(vm *wasmedge.VM, moduleByte []byte) (*wasmedge.AST, error) {
	loader := vm.GetLoader()

	module, err := loader.LoadBuffer(moduleByte)
	if err != nil {
		return nil, fmt.Errorf("unable to load modulebyte buffer: %w", err)
	}

	validator := vm.GetValidator()

	if err := validator.Validate(module); err != nil {
		module.Release()

		return nil, fmt.Errorf("unable to validate module: %w", err)
	}

	return module, nil
}
