package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tetratelabs/wasmcore/api"
)

// exportingModule imports env.log, defines add (i32i32_i32) and exports it with the memory and a global.
func exportingModule() *Module {
	i32i32_i32 := FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	return &Module{
		TypeSection:         []FunctionType{i32i32_i32, {Params: []ValueType{ValueTypeF32, ValueTypeI64}}},
		ImportSection:       []Import{{Type: ExternTypeFunc, Module: "env", Name: "log", DescFunc: 0}},
		ImportFunctionCount: 1,
		FunctionSection:     []Index{0, 1},
		CodeSection: []Code{
			{Body: []byte{OpcodeLocalGet, 0, OpcodeLocalGet, 1, OpcodeI32Add, OpcodeEnd}},
			{Body: []byte{OpcodeEnd}},
		},
		MemorySection: &Memory{Min: 1, Max: 1},
		TableSection:  []Table{{Min: 1}},
		GlobalSection: []Global{{Type: GlobalType{ValType: ValueTypeI64}, Init: ConstantExpression{Opcode: OpcodeI64Const, Data: []byte{0x7f}}}},
		ExportSection: []Export{
			{Type: ExternTypeFunc, Name: "add", Index: 1},
			{Type: ExternTypeFunc, Name: "mixed", Index: 2},
			{Type: ExternTypeMemory, Name: "memory", Index: 0},
			{Type: ExternTypeGlobal, Name: "g", Index: 0},
			{Type: ExternTypeTable, Name: "table", Index: 0},
		},
		NameSection: &NameSection{FunctionNames: NameMap{{Index: 1, Name: "add"}}},
	}
}

func instantiateExporting(t *testing.T, logger *zap.Logger) (*mockEngine, *ModuleInstance) {
	e := newMockEngine()
	s := newTestStore(t, e, logger)
	m := compile(t, e, exportingModule())
	hostModules := HostModules{"env": {"log": {ModuleName: "env", Name: "log", Type: m.TypeSection[0], Fn: noopHostFunc}}}
	mod, err := s.Instantiate(testCtx, m, "test", hostModules)
	require.NoError(t, err)
	return e, mod
}

func TestModuleInstance_Export(t *testing.T) {
	_, mod := instantiateExporting(t, nil)

	require.Equal(t, "Module[test]", mod.String())

	ext, err := mod.Export("add")
	require.NoError(t, err)
	require.Equal(t, api.ExternTypeFunc, ext.ExternType())
	fn := ext.(api.Function)
	require.Equal(t, "add", fn.Name())
	require.Equal(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, fn.ParamTypes())
	require.Equal(t, []api.ValueType{api.ValueTypeI32}, fn.ResultTypes())

	ext, err = mod.Export("memory")
	require.NoError(t, err)
	require.Equal(t, api.ExternTypeMemory, ext.ExternType())
	require.Same(t, mod.MemoryInstance, ext)

	for _, name := range []string{"g", "table", "missing"} {
		_, err = mod.Export(name)
		require.ErrorIs(t, err, api.ErrExportNotFound, name)
	}
	_, err = mod.Export("missing")
	require.EqualError(t, err, `"missing" is not exported in module "test"`)
}

func TestModuleInstance_ExportedByKind(t *testing.T) {
	_, mod := instantiateExporting(t, nil)

	require.NotNil(t, mod.ExportedFunction("add"))
	require.Nil(t, mod.ExportedFunction("memory"))
	require.Nil(t, mod.ExportedFunction("missing"))

	require.Same(t, mod.MemoryInstance, mod.ExportedMemory("memory"))
	require.Nil(t, mod.ExportedMemory("add"))
	require.Same(t, mod.MemoryInstance, mod.Memory())

	vt, v, ok := mod.ExportedGlobal("g")
	require.True(t, ok)
	require.Equal(t, api.ValueTypeI64, vt)
	require.Equal(t, api.EncodeI64(-1), v)
	_, _, ok = mod.ExportedGlobal("add")
	require.False(t, ok)
}

func TestModuleInstance_Memory_None(t *testing.T) {
	e := newMockEngine()
	s := newTestStore(t, e, nil)
	mod, err := s.Instantiate(testCtx, compile(t, e, &Module{}), "empty", nil)
	require.NoError(t, err)
	require.Nil(t, mod.Memory())
}

func TestModuleInstance_FuncDebugName(t *testing.T) {
	_, mod := instantiateExporting(t, nil)

	require.Equal(t, "env.log", mod.FuncDebugName(0))
	require.Equal(t, "test.add", mod.FuncDebugName(1))
	require.Equal(t, "test.$2", mod.FuncDebugName(2))
}

func TestFunction_Call(t *testing.T) {
	e, mod := instantiateExporting(t, nil)
	e.callFn = func(_ context.Context, _ *ModuleInstance, funcIdx Index, params []uint64) ([]uint64, error) {
		require.Equal(t, Index(1), funcIdx)
		return []uint64{uint64(uint32(params[0]) + uint32(params[1]))}, nil
	}
	add := mod.ExportedFunction("add")

	results, err := add.Call(testCtx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, results)

	results, err = add.Call(testCtx, api.EncodeI32(-1), 2)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, results)
}

func TestFunction_Call_Errors(t *testing.T) {
	e, mod := instantiateExporting(t, nil)
	e.callFn = func(context.Context, *ModuleInstance, Index, []uint64) ([]uint64, error) {
		t.Fatal("engine shouldn't be called")
		return nil, nil
	}
	add := mod.ExportedFunction("add")
	mixed := mod.ExportedFunction("mixed")

	t.Run("arity", func(t *testing.T) {
		_, err := add.Call(testCtx, 1)
		require.ErrorIs(t, err, api.ErrArityMismatch)
		require.EqualError(t, err, "expected 2 params, but passed 1 calling add")
	})
	t.Run("i32 upper bits", func(t *testing.T) {
		_, err := add.Call(testCtx, 1, 1<<32)
		require.ErrorIs(t, err, api.ErrArgumentType)
		require.EqualError(t, err, "param[1] of add: 0x100000000 doesn't fit i32: argument type mismatch")
	})
	t.Run("f32 upper bits", func(t *testing.T) {
		_, err := mixed.Call(testCtx, 1<<40, 1<<40)
		require.EqualError(t, err, "param[0] of mixed: 0x10000000000 doesn't fit f32: argument type mismatch")
	})
	t.Run("value types", func(t *testing.T) {
		_, err := add.CallValues(testCtx, api.Value{Type: api.ValueTypeI32, Bits: 1}, api.Value{Type: api.ValueTypeI64, Bits: 1})
		require.ErrorIs(t, err, api.ErrArgumentType)
		require.EqualError(t, err, "param[1] of add: expected i32, but was i64: argument type mismatch")
	})
	t.Run("values arity", func(t *testing.T) {
		_, err := add.CallValues(testCtx)
		require.ErrorIs(t, err, api.ErrArityMismatch)
	})
	t.Run("closed", func(t *testing.T) {
		require.NoError(t, mod.Close(testCtx))
		_, err := add.Call(testCtx, 1, 2)
		require.ErrorIs(t, err, api.ErrClosed)
		require.EqualError(t, err, "Module[test]: closed")
	})
}

func TestFunction_CallValues(t *testing.T) {
	e, mod := instantiateExporting(t, nil)
	e.callFn = func(_ context.Context, _ *ModuleInstance, _ Index, params []uint64) ([]uint64, error) {
		return []uint64{params[0] * params[1]}, nil
	}

	results, err := mod.ExportedFunction("add").CallValues(testCtx,
		api.Value{Type: api.ValueTypeI32, Bits: 6}, api.Value{Type: api.ValueTypeI32, Bits: 7})
	require.NoError(t, err)
	require.Equal(t, []api.Value{{Type: api.ValueTypeI32, Bits: 42}}, results)
}

func TestFunction_Call_Failure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e, mod := instantiateExporting(t, zap.New(core))
	e.callFn = func(context.Context, *ModuleInstance, Index, []uint64) ([]uint64, error) {
		return nil, errBoom
	}

	_, err := mod.ExportedFunction("add").Call(testCtx, 1, 2)
	require.ErrorIs(t, err, errBoom)

	entries := logs.FilterMessage("call failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "test.add", entries[0].ContextMap()["function"])
}

// TestFunction_Call_Reentrant ensures a host function can call back into the instance it was called from without
// deadlocking on the instance lock.
func TestFunction_Call_Reentrant(t *testing.T) {
	e, mod := instantiateExporting(t, nil)
	add := mod.ExportedFunction("add")

	depth := 0
	e.callFn = func(ctx context.Context, _ *ModuleInstance, _ Index, params []uint64) ([]uint64, error) {
		depth++
		if params[0] == 0 {
			return []uint64{params[1]}, nil
		}
		return add.Call(ctx, params[0]-1, params[1]+1)
	}

	results, err := add.Call(testCtx, 3, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, results)
	require.Equal(t, 4, depth)
}

func TestFunction_Call_Serialized(t *testing.T) {
	e, mod := instantiateExporting(t, nil)
	add := mod.ExportedFunction("add")

	inCall := 0
	e.callFn = func(context.Context, *ModuleInstance, Index, []uint64) ([]uint64, error) {
		inCall++
		defer func() { inCall-- }()
		if inCall != 1 {
			return nil, errBoom
		}
		return []uint64{0}, nil
	}

	done := make(chan error)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := add.Call(context.Background(), 1, 2)
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
}
