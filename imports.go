package wasmcore

import (
	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// HostFunction is a Go function a module can import. Its signature must equal the one the module declares for the
// import, or InstantiateModule fails.
//
// Ex. A function importable as "env.log" which reads its message from the caller's memory:
//
//	log := &wasmcore.HostFunction{
//		Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
//		Fn: func(ctx context.Context, mod api.Module, stack []uint64) {
//			buf, _ := mod.Memory().Read(uint32(stack[0]), uint32(stack[1]))
//			fmt.Println(string(buf))
//		},
//	}
//	imports := wasmcore.Imports{"env": {"log": log}}
type HostFunction struct {
	Params, Results []api.ValueType

	Fn api.GoModuleFunction
}

// Imports maps an import module name, such as "env", to the host functions it exports by name.
//
// Note: Only function imports are supported. A module importing a memory, table or global fails to instantiate.
type Imports map[string]map[string]*HostFunction

// hostModules converts the imports to their internal representation.
func (i Imports) hostModules() wasm.HostModules {
	if len(i) == 0 {
		return nil
	}
	ret := make(wasm.HostModules, len(i))
	for moduleName, funcs := range i {
		m := make(map[string]*wasm.HostFunc, len(funcs))
		for name, fn := range funcs {
			if fn == nil {
				continue
			}
			m[name] = &wasm.HostFunc{
				ModuleName: moduleName,
				Name:       name,
				Type:       wasm.FunctionType{Params: fn.Params, Results: fn.Results},
				Fn:         fn.Fn,
			}
		}
		ret[moduleName] = m
	}
	return ret
}
