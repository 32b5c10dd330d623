package wazero

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/bluele/gcache"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/interfaces"
	"huawei.com/wasm-host-driver/wasm/native"
	"huawei.com/wasm-host-driver/wasm/session"
)

const engineExtensionName = "wazero"

func init() {
	engines.Register(&wazeroEngine{})
}

type wazeroEngine struct {
	logger           hclog.Logger
	modulesCache     gcache.Cache
	compilationCache wazero.CompilationCache
}

func (e *wazeroEngine) Name() string {
	return engineExtensionName
}

func (e *wazeroEngine) Init(logger hclog.Logger, moduleCache gcache.Cache) {
	e.logger = logger
	e.modulesCache = moduleCache
	e.compilationCache = wazero.NewCompilationCache()
}

// PrePopulateCache reads and validates all wasm modules in the specified
// directory and returns the number of cached modules.
func (e *wazeroEngine) PrePopulateCache(modulesDir string) (int, error) {
	if e.modulesCache == nil {
		return 0, fmt.Errorf("unable to pre populate modules: cache is not created")
	}

	modulesPath, err := engines.ModuleFiles(modulesDir)
	if err != nil {
		return 0, err
	}

	ctx := context.Background()

	r := wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig())
	defer r.Close(ctx)

	var preCachedModulesNumber int

	for _, modulePath := range modulesPath {
		bin, err := os.ReadFile(modulePath)
		if err != nil {
			return 0, fmt.Errorf("unable to load WASM module (%v) from file: %v", modulePath, err)
		}

		compiled, err := r.CompileModule(ctx, bin)
		if err != nil {
			return 0, fmt.Errorf("unable to compile WASM module (%v): %v", modulePath, err)
		}

		_ = compiled.Close(ctx)

		if err := e.modulesCache.Set(modulePath, bin); err != nil {
			return 0, fmt.Errorf("unable to cache WASM module (%v)", modulePath)
		}

		preCachedModulesNumber++

		e.logger.Trace("WASM module pre-cached", "module", modulePath)
	}

	return preCachedModulesNumber, nil
}

func (e *wazeroEngine) runtimeConfig() wazero.RuntimeConfig {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if e.compilationCache != nil {
		cfg = cfg.WithCompilationCache(e.compilationCache)
	}

	return cfg
}

func (e *wazeroEngine) InstantiateModule(modulePath string, opts interfaces.InstanceOptions) (interfaces.WasmInstance, error) {
	e.logger.Debug("instantiate new module", "module path", modulePath)

	bin, err := e.getModule(modulePath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get module: %s", modulePath)
	}

	return e.instantiate(bin, opts)
}

func (e *wazeroEngine) instantiate(bin []byte, opts interfaces.InstanceOptions) (*wazeroInstance, error) {
	budget := opts.Fuel
	if budget == 0 {
		budget = math.MaxUint64
	}

	ctx, cancel := context.WithCancel(context.Background())

	i := &wazeroInstance{
		logger:  e.logger,
		session: session.New(session.NewSoftMeter(budget)),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := i.session.SetUserData(opts.UserData); err != nil {
		cancel()

		return nil, err
	}

	r := wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig())

	i.runtime, _ = native.Acquire("runtime", &r, nil, func(r *wazero.Runtime) {
		_ = (*r).Close(context.Background())
	})

	if err := i.linkHostFuncs(opts.HostFuncs); err != nil {
		i.Cleanup()

		return nil, err
	}

	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		i.Cleanup()

		return nil, errors.Wrapf(native.ErrEngineFault, "unable to compile module: %v", err)
	}
	defer compiled.Close(context.Background())

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err == nil && mod == nil {
		err = errors.New("engine returned null")
	}

	i.module, err = native.Acquire("module", &mod, err, func(m *api.Module) {
		_ = (*m).Close(context.Background())
	})
	if err != nil {
		i.Cleanup()

		return nil, err
	}

	return i, nil
}

func (e *wazeroEngine) getModule(modulePath string) ([]byte, error) {
	if e.modulesCache == nil {
		e.logger.Debug("modules cache disabled loading WASM module from file", "module", modulePath)

		bin, err := os.ReadFile(modulePath)
		if err != nil {
			return nil, fmt.Errorf("unable to load WASM module: %w", err)
		}

		return bin, nil
	}

	mod, getCacheErr := e.modulesCache.Get(modulePath)

	switch {
	case getCacheErr == nil:
		return mod.([]byte), nil
	case errors.Is(getCacheErr, gcache.KeyNotFoundError):
		bin, err := os.ReadFile(modulePath)
		if err != nil {
			e.logger.Error("unable to load WASM module", "error", hclog.Fmt("%+v", err))

			return nil, fmt.Errorf("unable to load WASM module: %w", err)
		}

		if err := e.modulesCache.Set(modulePath, bin); err != nil {
			e.logger.Error("unable to cache WASM module", "error", hclog.Fmt("%+v", err))

			return nil, fmt.Errorf("unable to cache WASM module: %w", err)
		}

		e.logger.Debug("cached WASM module", "module", modulePath)

		return bin, nil
	default:
		e.logger.Error("unable to get module from cache", "error", hclog.Fmt("%+v", getCacheErr))

		return nil, fmt.Errorf("unable to cache WASM module: %w", getCacheErr)
	}
}
