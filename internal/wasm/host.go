package wasm

import (
	"fmt"

	"github.com/tetratelabs/wasmcore/api"
)

// HostFunc is a Go function satisfying a function import.
type HostFunc struct {
	// ModuleName and Name are the import namespace this function was registered under.
	ModuleName, Name string

	// Type is the signature the import must declare.
	Type FunctionType

	Fn api.GoModuleFunction
}

// HostModules maps an import module name and an import name to its host function.
type HostModules map[string]map[string]*HostFunc

// resolveImports returns the host function for each function import of the module, in import order.
func (m *Module) resolveImports(hostModules HostModules) ([]*HostFunc, error) {
	if len(m.ImportSection) == 0 {
		return nil, nil
	}

	ret := make([]*HostFunc, 0, m.ImportFunctionCount)
	for i := range m.ImportSection {
		imp := &m.ImportSection[i]
		if imp.Type != ExternTypeFunc {
			return nil, fmt.Errorf("import[%d] %s[%s.%s]: unsupported import type",
				i, api.ExternTypeName(imp.Type), imp.Module, imp.Name)
		}

		fn, ok := hostModules[imp.Module][imp.Name]
		if !ok || fn == nil {
			return nil, fmt.Errorf("import[%d] func[%s.%s]: not found", i, imp.Module, imp.Name)
		}

		expected := &m.TypeSection[imp.DescFunc]
		if !expected.EqualsSignature(fn.Type.Params, fn.Type.Results) {
			return nil, fmt.Errorf("import[%d] func[%s.%s]: signature mismatch: %s != %s",
				i, imp.Module, imp.Name, expected, &fn.Type)
		}
		ret = append(ret, fn)
	}
	return ret, nil
}
