package wasmcore

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// CompiledModule is a WebAssembly module ready to be instantiated (Runtime.InstantiateModule) as an api.Module.
//
// In WebAssembly terminology, this is a decoded, validated, and possibly also compiled module. wasmcore avoids using
// the name "Module" for both before and after instantiation as the name conflation has caused confusion.
//
// Note: Closing the wasmcore.Runtime closes any CompiledModule it compiled.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#semantic-phases%E2%91%A0
type CompiledModule interface {
	// Name returns the module name encoded into the binary or empty if not.
	Name() string

	// ImportedFunctions returns the "module.name" of each function import, in import order.
	ImportedFunctions() []string

	// ExportedFunctions returns the signature of each exported function, by export name.
	ExportedFunctions() map[string]FunctionSignature

	// Close releases all the compiled code. Instances already created keep running. Instantiating afterwards fails
	// with api.ErrClosed.
	Close(context.Context) error
}

// FunctionSignature is the value types a function accepts and returns.
type FunctionSignature struct {
	Params, Results []api.ValueType
}

// compiledModule implements CompiledModule
type compiledModule struct {
	module *wasm.Module
	name   string
	// compiledEngine holds the engine that compiled this module.
	compiledEngine wasm.Engine
	closed         atomic.Bool
}

// Name implements CompiledModule.Name
func (c *compiledModule) Name() string {
	return c.name
}

// ImportedFunctions implements CompiledModule.ImportedFunctions
func (c *compiledModule) ImportedFunctions() []string {
	var ret []string
	for i := range c.module.ImportSection {
		imp := &c.module.ImportSection[i]
		if imp.Type == wasm.ExternTypeFunc {
			ret = append(ret, imp.Module+"."+imp.Name)
		}
	}
	return ret
}

// ExportedFunctions implements CompiledModule.ExportedFunctions
func (c *compiledModule) ExportedFunctions() map[string]FunctionSignature {
	ret := map[string]FunctionSignature{}
	for i := range c.module.ExportSection {
		exp := &c.module.ExportSection[i]
		if exp.Type != wasm.ExternTypeFunc {
			continue
		}
		ft := c.module.TypeOfFunction(exp.Index)
		ret[exp.Name] = FunctionSignature{Params: ft.Params, Results: ft.Results}
	}
	return ret
}

// Close implements CompiledModule.Close
func (c *compiledModule) Close(context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.compiledEngine.DeleteCompiledModule(c.module)
	return nil
}
