package wasm

import (
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad/plugins/shared/hclspec"

	"huawei.com/wasm-host-driver/wasm/engines"
)

// optional returns an optional attribute with an HCL literal default.
func optional(name, typ, def string) *hclspec.Spec {
	return hclspec.NewDefault(hclspec.NewAttr(name, typ, false), hclspec.NewLiteral(def))
}

// section returns an optional block with an HCL literal default.
func section(name string, attrs map[string]*hclspec.Spec, def string) *hclspec.Spec {
	return hclspec.NewDefault(hclspec.NewBlock(name, false, hclspec.NewObject(attrs)), hclspec.NewLiteral(def))
}

var (
	// configSpec is the agent side plugin configuration:
	//
	//   plugin "wasm-host-driver" {
	//     config {
	//       engines = [
	//         {
	//           name = "wasmtime"
	//           cache {
	//             type = "lru"
	//             size = 5
	//             expiration {
	//               entryTTL = 600
	//             }
	//             preCache {
	//               enabled = true
	//               modulesDir = "/opt/wasm"
	//             }
	//           }
	//         },
	//         {
	//           name = "wazero"
	//         }
	//       ]
	//     }
	//   }
	configSpec = hclspec.NewObject(map[string]*hclspec.Spec{
		"engines": hclspec.NewBlockList("engines", hclspec.NewObject(map[string]*hclspec.Spec{
			"name":    hclspec.NewAttr("name", "string", true),
			"enabled": optional("enabled", "bool", `true`),
			"cache": section("cache", map[string]*hclspec.Spec{
				"enabled": optional("enabled", "bool", `true`),
				"type":    optional("type", "string", `"lfu"`),
				"size":    optional("size", "number", `5`),
				"expiration": section("expiration", map[string]*hclspec.Spec{
					"enabled":  optional("enabled", "bool", `true`),
					"entryTTL": optional("entryTTL", "number", `600`),
				}, `{ enabled = true, entryTTL = 600 }`),
				"preCache": section("preCache", map[string]*hclspec.Spec{
					"enabled":    optional("enabled", "bool", `false`),
					"modulesDir": optional("modulesDir", "string", `""`),
				}, `{ enabled = false, modulesDir = "" }`),
			}, `{
				enabled = true
				type = "lfu"
				size = 5
				expiration = { enabled = true, entryTTL = 600 }
				preCache = { enabled = false, modulesDir = "" }
			}`),
		})),
	})

	// taskConfigSpec is the task side configuration:
	//
	//   task "say-hello" {
	//     driver = "wasm-host-driver"
	//     config {
	//       engine = "wasmtime"
	//       modulePath = "/absolute/path/to/wasm/module"
	//       hostFunctions = ["env.log", "env.consume_fuel"]
	//       fuel {
	//         enabled = true
	//         limit = 1000000
	//       }
	//       main {
	//         mainFuncName = "handle_buffer"
	//       }
	//     }
	//   }
	taskConfigSpec = hclspec.NewObject(map[string]*hclspec.Spec{
		"engine":     hclspec.NewAttr("engine", "string", true),
		"modulePath": hclspec.NewAttr("modulePath", "string", true),
		// every registered host function is linked when empty
		"hostFunctions": hclspec.NewAttr("hostFunctions", "list(string)", false),
		"fuel": section("fuel", map[string]*hclspec.Spec{
			"enabled": optional("enabled", "bool", `false`),
			"limit":   optional("limit", "number", `0`),
		}, `{ enabled = false }`),
		"ioBuffer": section("ioBuffer", map[string]*hclspec.Spec{
			"enabled":       optional("enabled", "bool", `false`),
			"size":          optional("size", "number", `4096`),
			"inputValue":    hclspec.NewAttr("inputValue", "string", false),
			"IOBufFuncName": optional("IOBufFuncName", "string", `"alloc"`),
			"args":          hclspec.NewAttr("args", "list(number)", false),
		}, `{ enabled = false }`),
		"main": section("main", map[string]*hclspec.Spec{
			"mainFuncName": optional("mainFuncName", "string", `"handle_buffer"`),
			"args":         hclspec.NewAttr("args", "list(number)", false),
		}, `{ mainFuncName = "handle_buffer" }`),
	})
)

type PreCacheConfig struct {
	// ModulesDir is walked for .wasm files cached when the plugin starts.
	ModulesDir string `codec:"modulesDir"`
	Enabled    bool   `codec:"enabled"`
}

type ExpirationConfig struct {
	Enabled bool `codec:"enabled"`
	// EntryTTL is the cache entry lifetime in seconds.
	EntryTTL int `codec:"entryTTL"`
}

type CacheConfig struct {
	// Type is one of lfu, lru, arc or simple.
	Type       string           `codec:"type"`
	PreCache   PreCacheConfig   `codec:"preCache"`
	Expiration ExpirationConfig `codec:"expiration"`
	Size       int              `codec:"size"`
	Enabled    bool             `codec:"enabled"`
}

type EngineConfig struct {
	Name    string      `codec:"name"`
	Cache   CacheConfig `codec:"cache"`
	Enabled bool        `codec:"enabled"`
}

// Config is the decoded plugin configuration.
type Config struct {
	Engines []EngineConfig `codec:"engines"`
}

// validate checks values the schema cannot express.
func (c *Config) validate() error {
	for _, engineConf := range c.Engines {
		cacheConf := engineConf.Cache

		if cacheConf.Size <= 0 {
			return fmt.Errorf("%s engine: cache size must be > 0, but specified %v", engineConf.Name, cacheConf.Size)
		}

		if cacheConf.Expiration.Enabled && cacheConf.Expiration.EntryTTL <= 0 {
			return fmt.Errorf("%s engine: cache entry time-to-live must be > 0, but specified %v", engineConf.Name, cacheConf.Expiration.EntryTTL)
		}
	}

	return nil
}

// TaskConfig is the decoded task configuration.
type TaskConfig struct {
	Engine        string         `codec:"engine"`
	ModulePath    string         `codec:"modulePath"`
	HostFunctions []string       `codec:"hostFunctions"`
	Main          Main           `codec:"main"`
	IOBuffer      IOBufferConfig `codec:"ioBuffer"`
	Fuel          FuelConfig     `codec:"fuel"`
}

type FuelConfig struct {
	// Limit is the fuel budget of the task. Host functions may raise it
	// through env.add_fuel.
	Limit   uint64 `codec:"limit"`
	Enabled bool   `codec:"enabled"`
}

type IOBufferConfig struct {
	// InputValue is copied into the guest buffer before the main function runs.
	InputValue string `codec:"inputValue"`
	// IOBufFuncName is the guest export allocating the buffer; it returns the
	// buffer offset in guest memory.
	IOBufFuncName string `codec:"IOBufFuncName"`
	// Args are passed to IOBufFuncName after the buffer size.
	Args []int32 `codec:"args"`
	// Size is the length of the guest buffer.
	Size    int32 `codec:"size"`
	Enabled bool  `codec:"enabled"`
}

type Main struct {
	// MainFuncName is the guest export handling the input.
	MainFuncName string `codec:"mainFuncName"`
	Args         []int32 `codec:"args"`
}

// initializeEngine hands an engine its logger and, when enabled, a module cache.
func initializeEngine(logger hclog.Logger, engineConf EngineConfig) error {
	engine, err := engines.Get(engineConf.Name)
	if err != nil {
		return fmt.Errorf("unable to get engine %s: %v", engineConf.Name, err)
	}

	engineLogger := logger.Named(engineConf.Name)

	if !engineConf.Cache.Enabled {
		engine.Init(engineLogger, nil)

		return nil
	}

	newCache, err := buildCache(engineConf.Cache)
	if err != nil {
		return fmt.Errorf("unable to create cache for engine %s: %v", engineConf.Name, err)
	}

	engine.Init(engineLogger, newCache)

	preCache := engineConf.Cache.PreCache
	if !preCache.Enabled {
		return nil
	}

	preCachedModulesNum, err := engine.PrePopulateCache(preCache.ModulesDir)
	if err != nil {
		return fmt.Errorf("unable to pre populate modules for engine %s from directory %s: %v", engineConf.Name, preCache.ModulesDir, err)
	}

	if preCachedModulesNum > engineConf.Cache.Size {
		return fmt.Errorf("cache size (%v) must not be less than number of pre-cached modules (%v) for %s engine",
			engineConf.Cache.Size, preCachedModulesNum, engineConf.Name)
	}

	if engineConf.Cache.Expiration.Enabled {
		logger.Warn("pre-cached modules expire like any other cache entry",
			"TTL", hclog.Fmt("%d seconds", engineConf.Cache.Expiration.EntryTTL), "engine", engineConf.Name)
	}

	return nil
}

func buildCache(cacheConf CacheConfig) (gcache.Cache, error) {
	cacheBuilder := gcache.New(cacheConf.Size)

	if cacheConf.Expiration.Enabled {
		cacheBuilder.Expiration(time.Second * time.Duration(cacheConf.Expiration.EntryTTL))
	}

	switch cacheConf.Type {
	case gcache.TYPE_LFU:
		cacheBuilder.LFU()
	case gcache.TYPE_ARC:
		cacheBuilder.ARC()
	case gcache.TYPE_LRU:
		cacheBuilder.LRU()
	case gcache.TYPE_SIMPLE:
		cacheBuilder.Simple()
	default:
		return nil, fmt.Errorf("unexpected cache type specified, expected types: [lfu, arc, lru, simple], but specified %s",
			cacheConf.Type)
	}

	return cacheBuilder.Build(), nil
}
