// Package hostfuncs is the static table of host functions linked into guest
// modules. Definitions are registered from init functions and looked up by
// "module.name".
package hostfuncs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"huawei.com/wasm-host-driver/wasm/callframe"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSignature is returned when values crossing the boundary do not match
	// the declared signature.
	ErrSignature = errors.New("signature mismatch")
)

// Func is the Go body of a host function. caller is valid only until Func returns.
type Func func(caller callframe.Caller, args []interface{}) ([]interface{}, error)

// Definition is a host function with a fixed signature.
type Definition struct {
	pool    *callframe.Pool
	call    Func
	module  string
	name    string
	params  []interfaces.ValueKind
	results []interfaces.ValueKind
}

var _ interfaces.HostFunc = (*Definition)(nil)

// New creates a definition served from the default call-frame pool.
func New(module, name string, params, results []interfaces.ValueKind, fn Func) *Definition {
	return &Definition{
		call:    fn,
		module:  module,
		name:    name,
		params:  params,
		results: results,
	}
}

// WithPool returns a copy of d that takes its caller records from pool.
func (d *Definition) WithPool(pool *callframe.Pool) *Definition {
	cp := *d
	cp.pool = pool

	return &cp
}

func (d *Definition) Module() string {
	return d.module
}

func (d *Definition) Name() string {
	return d.name
}

// Key returns "module.name".
func (d *Definition) Key() string {
	return d.module + "." + d.name
}

func (d *Definition) Params() []interfaces.ValueKind {
	return d.params
}

func (d *Definition) Results() []interfaces.ValueKind {
	return d.results
}

// Invoke runs the definition for one native call frame. The Caller handed to
// the body is disposed on every return path.
func (d *Definition) Invoke(boundary interfaces.FrameBoundary, frame uintptr, args []interface{}) ([]interface{}, error) {
	if err := checkValues(d.params, args); err != nil {
		return nil, errors.Wrapf(err, "%s arguments", d.Key())
	}

	caller, err := callframe.Enter(d.pool, boundary, frame)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to enter %s", d.Key())
	}
	defer caller.Dispose()

	results, err := d.call(caller, args)
	if err != nil {
		return nil, errors.Wrapf(err, "%s failed", d.Key())
	}

	if err := checkValues(d.results, results); err != nil {
		return nil, errors.Wrapf(err, "%s results", d.Key())
	}

	return results, nil
}

// String renders the signature, e.g. "env.log(i32, i32)".
func (d *Definition) String() string {
	s := d.Key() + "("
	for i, p := range d.params {
		if i > 0 {
			s += ", "
		}

		s += p.String()
	}

	s += ")"

	for i, r := range d.results {
		if i == 0 {
			s += " -> "
		} else {
			s += ", "
		}

		s += r.String()
	}

	return s
}

func checkValues(kinds []interfaces.ValueKind, values []interface{}) error {
	if len(kinds) != len(values) {
		return errors.Wrapf(ErrSignature, "expected %d values, got %d", len(kinds), len(values))
	}

	for i, kind := range kinds {
		var ok bool

		switch kind {
		case interfaces.I32:
			_, ok = values[i].(int32)
		case interfaces.I64:
			_, ok = values[i].(int64)
		case interfaces.F32:
			_, ok = values[i].(float32)
		case interfaces.F64:
			_, ok = values[i].(float64)
		}

		if !ok {
			return errors.Wrapf(ErrSignature, "value %d: expected %s, got %T", i, kind, values[i])
		}
	}

	return nil
}

var (
	lock        sync.RWMutex
	definitions = make(map[string]*Definition)
)

// Register adds d to the table, replacing a definition with the same key.
func Register(d *Definition) {
	lock.Lock()
	defer lock.Unlock()

	definitions[d.Key()] = d
}

// Get returns the definition registered under module and name.
func Get(module, name string) (*Definition, error) {
	lock.RLock()
	defer lock.RUnlock()

	d, found := definitions[module+"."+name]
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "unable to find host function %s.%s", module, name)
	}

	return d, nil
}

// All returns every registered definition ordered by key.
func All() []*Definition {
	lock.RLock()
	defer lock.RUnlock()

	result := make([]*Definition, 0, len(definitions))
	for _, d := range definitions {
		result = append(result, d)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key() < result[j].Key()
	})

	return result
}

// Select resolves "module.name" keys. An empty list selects everything.
func Select(keys []string) ([]interfaces.HostFunc, error) {
	if len(keys) == 0 {
		all := All()
		result := make([]interfaces.HostFunc, 0, len(all))

		for _, d := range all {
			result = append(result, d)
		}

		return result, nil
	}

	lock.RLock()
	defer lock.RUnlock()

	result := make([]interfaces.HostFunc, 0, len(keys))

	for _, key := range keys {
		d, found := definitions[key]
		if !found {
			return nil, errors.Wrapf(ErrNotFound, "unable to find host function %s", key)
		}

		result = append(result, d)
	}

	return result, nil
}

// Describe returns the signatures of the whole table.
func Describe() []string {
	all := All()
	result := make([]string, 0, len(all))

	for _, d := range all {
		result = append(result, fmt.Sprint(d))
	}

	return result
}
