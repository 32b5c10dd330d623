package wasmtime

import (
	"fmt"
	"math"

	"github.com/bluele/gcache"
	"github.com/bytecodealliance/wasmtime-go"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
	"huawei.com/wasm-host-driver/wasm/session"
)

const (
	engineExtensionName = "wasmtime"

	// unboundedFuel is added to stores of tasks without a fuel limit, since
	// fuel consumption is always enabled in the engine config.
	unboundedFuel = math.MaxInt64
)

func init() {
	engines.Register(&wasmtimeEngine{})
}

type wasmtimeEngine struct {
	logger       hclog.Logger
	modulesCache gcache.Cache
}

func (e *wasmtimeEngine) Name() string {
	return engineExtensionName
}

func (e *wasmtimeEngine) Init(logger hclog.Logger, moduleCache gcache.Cache) {
	e.logger = logger
	e.modulesCache = moduleCache
}

// newEngineConfig must stay identical for compiling and deserializing modules.
func newEngineConfig() *wasmtime.Config {
	config := wasmtime.NewConfig()
	config.SetEpochInterruption(true)
	config.SetConsumeFuel(true)

	return config
}

// PrePopulateCache precache all wasm modules in specified directory
// and return number of precached modules and error.
func (e *wasmtimeEngine) PrePopulateCache(modulesDir string) (int, error) {
	if e.modulesCache == nil {
		return 0, fmt.Errorf("unable to pre populate modules: cache is not created")
	}

	modulesPath, err := engines.ModuleFiles(modulesDir)
	if err != nil {
		return 0, err
	}

	loadEngine := wasmtime.NewEngineWithConfig(newEngineConfig())

	var preCachedModulesNumber int

	for _, modulePath := range modulesPath {
		wasmModule, err := wasmtime.NewModuleFromFile(loadEngine, modulePath)
		if err != nil {
			return 0, fmt.Errorf("unable to load WASM module (%v) from file: %v", modulePath, err)
		}

		serModule, err := wasmModule.Serialize()
		if err != nil {
			return 0, fmt.Errorf("unable to serialize WASM module (%v): %v", modulePath, err)
		}

		if err := e.modulesCache.Set(modulePath, serModule); err != nil {
			return 0, fmt.Errorf("unable to cache WASM module (%v)", modulePath)
		}

		preCachedModulesNumber++

		e.logger.Trace("WASM module pre-cached", "module", modulePath)
	}

	return preCachedModulesNumber, nil
}

func (e *wasmtimeEngine) InstantiateModule(modulePath string, opts interfaces.InstanceOptions) (interfaces.WasmInstance, error) {
	e.logger.Debug("instantiate new module", "module path", modulePath)

	i, err := e.newInstance(opts)
	if err != nil {
		return nil, err
	}

	mod, err := e.getModule(i.engine.MustGet(), modulePath)

	module, err := native.Acquire("module", mod, err, nil)
	if err != nil {
		i.Cleanup()

		return nil, errors.Wrapf(err, "unable to get module: %s", modulePath)
	}
	defer module.Release()

	if err := i.instantiate(module.MustGet(), opts.HostFuncs); err != nil {
		i.Cleanup()

		return nil, errors.Wrapf(err, "unable to create new instance from module: %s", modulePath)
	}

	return i, nil
}

// newInstance creates the engine and store of a new instance and charges the
// initial fuel.
func (e *wasmtimeEngine) newInstance(opts interfaces.InstanceOptions) (*wasmtimeInstance, error) {
	engine, err := native.Acquire("engine", wasmtime.NewEngineWithConfig(newEngineConfig()), nil, nil)
	if err != nil {
		return nil, err
	}

	store := wasmtime.NewStore(engine.MustGet())
	store.SetEpochDeadline(1)

	i := &wasmtimeInstance{
		logger: e.logger,
		engine: engine,
	}

	// wasmtime-go frees engines, stores and modules from finalizers, so the
	// owners only drop their reference on release.
	i.store, err = native.Acquire("store", store, nil, nil)
	if err != nil {
		engine.Release()

		return nil, err
	}

	i.session = session.New(&storeMeter{store: store})

	fuel := opts.Fuel
	if fuel == 0 {
		fuel = unboundedFuel
	}

	if err := i.session.AddFuel(fuel); err != nil {
		i.Cleanup()

		return nil, errors.Wrap(err, "unable to add initial fuel")
	}

	if err := i.session.SetUserData(opts.UserData); err != nil {
		i.Cleanup()

		return nil, err
	}

	return i, nil
}

func (e *wasmtimeEngine) getModule(engine *wasmtime.Engine, modulePath string) (*wasmtime.Module, error) {
	var (
		err    error
		module *wasmtime.Module
	)

	if e.modulesCache != nil {
		mod, getCacheErr := e.modulesCache.Get(modulePath)

		switch {
		case getCacheErr == nil:
			module, err = wasmtime.NewModuleDeserialize(engine, mod.([]byte))
			if err != nil {
				e.logger.Error("unable to deserialize WASM module", "error", hclog.Fmt("%+v", err))

				return nil, fmt.Errorf("unable to deserialize WASM module: %w", err)
			}
		case errors.Is(getCacheErr, gcache.KeyNotFoundError):
			module, err = wasmtime.NewModuleFromFile(engine, modulePath)
			if err != nil {
				e.logger.Error("unable to load WASM module", "error", hclog.Fmt("%+v", err))

				return nil, fmt.Errorf("unable to load WASM module: %w", err)
			}

			serModule, err2 := module.Serialize()
			if err2 != nil {
				e.logger.Error("unable to serialize WASM module", "error", hclog.Fmt("%+v", err2))

				return nil, fmt.Errorf("unable to serialize WASM module: %w", err2)
			}

			if err2 := e.modulesCache.Set(modulePath, serModule); err2 != nil {
				e.logger.Error("unable to cache WASM module", "error", hclog.Fmt("%+v", err2))

				return nil, fmt.Errorf("unable to cache WASM module: %w", err2)
			}

			e.logger.Debug("cached WASM module", "module", modulePath)
		default:
			e.logger.Error("unable to get module from cache", "error", hclog.Fmt("%+v", getCacheErr))

			return nil, fmt.Errorf("unable to cache WASM module: %w", getCacheErr)
		}
	} else {
		e.logger.Debug("modules cache disabled loading WASM module from file", "module", modulePath)

		module, err = wasmtime.NewModuleFromFile(engine, modulePath)
		if err != nil {
			e.logger.Error("unable to load WASM module", "error", hclog.Fmt("%+v", err))

			return nil, fmt.Errorf("unable to load WASM module: %w", err)
		}
	}

	return module, nil
}
