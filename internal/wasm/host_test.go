package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wasmcore/api"
)

func noopHostFunc(context.Context, api.Module, []uint64) {}

func TestModule_resolveImports(t *testing.T) {
	log := &HostFunc{ModuleName: "env", Name: "log", Type: FunctionType{Params: []ValueType{ValueTypeI32}}, Fn: noopHostFunc}
	now := &HostFunc{ModuleName: "env", Name: "now", Type: FunctionType{Results: []ValueType{ValueTypeI64}}, Fn: noopHostFunc}
	hostModules := HostModules{"env": {"log": log, "now": now}}

	t.Run("no imports", func(t *testing.T) {
		imports, err := (&Module{}).resolveImports(hostModules)
		require.NoError(t, err)
		require.Nil(t, imports)
	})

	t.Run("in import order", func(t *testing.T) {
		m := &Module{
			TypeSection: []FunctionType{{Results: []ValueType{ValueTypeI64}}, {Params: []ValueType{ValueTypeI32}}},
			ImportSection: []Import{
				{Type: ExternTypeFunc, Module: "env", Name: "now", DescFunc: 0},
				{Type: ExternTypeFunc, Module: "env", Name: "log", DescFunc: 1},
			},
			ImportFunctionCount: 2,
		}
		imports, err := m.resolveImports(hostModules)
		require.NoError(t, err)
		require.Equal(t, []*HostFunc{now, log}, imports)
	})

	tests := []struct {
		name        string
		module      *Module
		expectedErr string
	}{
		{
			name: "unknown module",
			module: &Module{
				TypeSection:   []FunctionType{{}},
				ImportSection: []Import{{Type: ExternTypeFunc, Module: "wasi", Name: "log"}},
			},
			expectedErr: "import[0] func[wasi.log]: not found",
		},
		{
			name: "unknown name",
			module: &Module{
				TypeSection:   []FunctionType{{}},
				ImportSection: []Import{{Type: ExternTypeFunc, Module: "env", Name: "exit"}},
			},
			expectedErr: "import[0] func[env.exit]: not found",
		},
		{
			name: "signature mismatch",
			module: &Module{
				TypeSection:   []FunctionType{{Params: []ValueType{ValueTypeI64}}},
				ImportSection: []Import{{Type: ExternTypeFunc, Module: "env", Name: "log"}},
			},
			expectedErr: "import[0] func[env.log]: signature mismatch: i64_v != i32_v",
		},
		{
			name: "memory import",
			module: &Module{
				ImportSection: []Import{{Type: ExternTypeMemory, Module: "env", Name: "memory", DescMem: &Memory{Min: 1}}},
			},
			expectedErr: "import[0] memory[env.memory]: unsupported import type",
		},
		{
			name: "global import",
			module: &Module{
				ImportSection: []Import{{Type: ExternTypeGlobal, Module: "env", Name: "sp"}},
			},
			expectedErr: "import[0] global[env.sp]: unsupported import type",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.module.resolveImports(hostModules)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}
