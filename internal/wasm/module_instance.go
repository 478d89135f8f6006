package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/wasmdebug"
)

// ModuleInstance represents instantiated wasm module. It holds pointers to its memory, globals and table rather than
// addresses into the Store.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-moduleinst
type ModuleInstance struct {
	ModuleName string
	// Source is the module this instance was created from.
	Source *Module

	// Imports are the host functions bound to the function imports, in the function index namespace.
	Imports []*HostFunc
	Globals []*GlobalInstance
	// MemoryInstance is set when Module.MemorySection had a memory, regardless of whether it was exported.
	MemoryInstance *MemoryInstance
	TableInstance  *TableInstance
	Exports        map[string]*Export

	// Engine implements function calls for this module.
	Engine ModuleEngine

	Logger *zap.Logger

	// mux is held for the duration of an exported function call, except for calls re-entering the instance from a
	// host function it called.
	mux    sync.Mutex
	closed atomic.Bool
	s      *Store
}

// compile-time check to ensure ModuleInstance implements api.Module
var _ api.Module = &ModuleInstance{}

// String implements the same method as documented on api.Module.
func (m *ModuleInstance) String() string {
	return fmt.Sprintf("Module[%s]", m.ModuleName)
}

// Name implements the same method as documented on api.Module.
func (m *ModuleInstance) Name() string {
	return m.ModuleName
}

// Memory implements the same method as documented on api.Module.
func (m *ModuleInstance) Memory() api.Memory {
	if m.MemoryInstance == nil {
		return nil
	}
	return m.MemoryInstance
}

// Export implements the same method as documented on api.Module.
func (m *ModuleInstance) Export(name string) (api.Extern, error) {
	exp, ok := m.Exports[name]
	if !ok {
		return nil, &api.ExportNotFoundError{ModuleName: m.ModuleName, Name: name}
	}
	switch exp.Type {
	case ExternTypeFunc:
		return m.function(exp), nil
	case ExternTypeMemory:
		return m.MemoryInstance, nil
	}
	// Globals and tables are not externs a host can call or access through this API.
	return nil, &api.ExportNotFoundError{ModuleName: m.ModuleName, Name: name}
}

// ExportedFunction implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedFunction(name string) api.Function {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeFunc {
		return nil
	}
	return m.function(exp)
}

// ExportedMemory implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedMemory(name string) api.Memory {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeMemory {
		return nil
	}
	return m.MemoryInstance
}

// ExportedGlobal implements the same method as documented on api.Module.
func (m *ModuleInstance) ExportedGlobal(name string) (api.ValueType, uint64, bool) {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeGlobal {
		return 0, 0, false
	}
	g := m.Globals[exp.Index]
	return g.Type.ValType, g.Val, true
}

// Close implements the same method as documented on api.Module. Calls in progress are not interrupted.
func (m *ModuleInstance) Close(context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.s != nil {
		m.s.deleteModule(m)
	}
	m.Logger.Debug("module closed", zap.String("module", m.ModuleName))
	return nil
}

// IsClosed returns true if Close was called on the instance or its Store.
func (m *ModuleInstance) IsClosed() bool {
	return m.closed.Load()
}

func (m *ModuleInstance) function(exp *Export) *function {
	return &function{m: m, index: exp.Index, name: exp.Name, typ: m.Source.TypeOfFunction(exp.Index)}
}

// FuncDebugName returns the name used for the function in logs and stack traces.
func (m *ModuleInstance) FuncDebugName(funcIdx Index) string {
	if funcIdx < Index(len(m.Imports)) {
		imp := m.Imports[funcIdx]
		return imp.ModuleName + "." + imp.Name
	}
	return wasmdebug.FuncName(m.ModuleName, m.Source.FunctionName(funcIdx), funcIdx)
}

// callingKey is a context key present while a call into the instance is on the stack.
type callingKey struct {
	m *ModuleInstance
}

// call invokes the function at funcIdx, taking the instance lock unless the call re-enters the instance.
func (m *ModuleInstance) call(ctx context.Context, funcIdx Index, params []uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(callingKey{m}) == nil {
		m.mux.Lock()
		defer m.mux.Unlock()
		ctx = context.WithValue(ctx, callingKey{m}, m)
	}

	results, err := m.Engine.Call(ctx, funcIdx, params)
	if err != nil {
		m.Logger.Debug("call failed", zap.String("function", m.FuncDebugName(funcIdx)), zap.Error(err))
	}
	return results, err
}

// function implements api.Function for an exported function.
type function struct {
	m     *ModuleInstance
	index Index
	name  string
	typ   *FunctionType
}

// compile-time check to ensure function implements api.Function
var _ api.Function = &function{}

// ExternType implements the same method as documented on api.Function.
func (f *function) ExternType() api.ExternType {
	return api.ExternTypeFunc
}

// Name implements the same method as documented on api.Function.
func (f *function) Name() string {
	return f.name
}

// ParamTypes implements the same method as documented on api.Function.
func (f *function) ParamTypes() []api.ValueType {
	return f.typ.Params
}

// ResultTypes implements the same method as documented on api.Function.
func (f *function) ResultTypes() []api.ValueType {
	return f.typ.Results
}

// Call implements the same method as documented on api.Function.
func (f *function) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if f.m.closed.Load() {
		return nil, fmt.Errorf("%s: %w", f.m, api.ErrClosed)
	}
	if len(params) != len(f.typ.Params) {
		return nil, &api.ArityMismatchError{Name: f.name, Expected: len(f.typ.Params), Actual: len(params)}
	}
	for i, vt := range f.typ.Params {
		if (vt == ValueTypeI32 || vt == ValueTypeF32) && params[i]>>32 != 0 {
			return nil, fmt.Errorf("param[%d] of %s: %#x doesn't fit %s: %w",
				i, f.name, params[i], ValueTypeName(vt), api.ErrArgumentType)
		}
	}
	return f.m.call(ctx, f.index, params)
}

// CallValues implements the same method as documented on api.Function.
func (f *function) CallValues(ctx context.Context, params ...api.Value) ([]api.Value, error) {
	if len(params) != len(f.typ.Params) {
		return nil, &api.ArityMismatchError{Name: f.name, Expected: len(f.typ.Params), Actual: len(params)}
	}
	raw := make([]uint64, len(params))
	for i, p := range params {
		if expected := f.typ.Params[i]; p.Type != expected {
			return nil, fmt.Errorf("param[%d] of %s: expected %s, but was %s: %w",
				i, f.name, ValueTypeName(expected), ValueTypeName(p.Type), api.ErrArgumentType)
		}
		raw[i] = p.Bits
	}

	results, err := f.Call(ctx, raw...)
	if err != nil {
		return nil, err
	}
	ret := make([]api.Value, len(results))
	for i, r := range results {
		ret[i] = api.Value{Type: f.typ.Results[i], Bits: r}
	}
	return ret, nil
}
