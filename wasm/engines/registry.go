package engines

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/interfaces"
)

var (
	lock    sync.RWMutex
	engines = make(map[string]interfaces.Engine)
)

func Register(engine interfaces.Engine) {
	lock.Lock()
	defer lock.Unlock()

	engines[engine.Name()] = engine
}

func Get(name string) (interfaces.Engine, error) {
	lock.RLock()
	defer lock.RUnlock()

	var (
		engine interfaces.Engine
		found  bool
	)

	if engine, found = engines[name]; !found {
		return nil, errors.Wrapf(ErrNotFound, "unable to find engine with name: %s", name)
	}

	return engine, nil
}

// Names returns the registered engine names in lexical order.
func Names() []string {
	lock.RLock()
	defer lock.RUnlock()

	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
