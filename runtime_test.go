package wasmcore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/testing/fixtures"
	"github.com/tetratelabs/wasmcore/internal/testing/hammer"
	"github.com/tetratelabs/wasmcore/internal/wasm"
	wasmbinary "github.com/tetratelabs/wasmcore/internal/wasm/binary"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

func newTestRuntime(t *testing.T, config RuntimeConfig) Runtime {
	if config == nil {
		config = NewRuntimeConfig()
	}
	r := NewRuntimeWithConfig(testCtx, config)
	t.Cleanup(func() { require.NoError(t, r.Close(testCtx)) })
	return r
}

func TestNewRuntimeWithConfig_PanicsOnWrongImpl(t *testing.T) {
	// It causes maintenance to define an impl of RuntimeConfig in tests just to verify the error when it is wrong.
	// Instead, we pass nil which is implicitly the wrong type, as that's less work!
	require.PanicsWithError(t, "unsupported wasmcore.RuntimeConfig implementation: <nil>", func() {
		NewRuntimeWithConfig(testCtx, nil)
	})
}

func TestRuntime_CompileModule(t *testing.T) {
	tests := []struct {
		name             string
		binary           []byte
		expectedName     string
		expectedImports  []string
		expectedExported map[string]FunctionSignature
	}{
		{
			name:             "no name section",
			binary:           wasmbinary.EncodeModule(&wasm.Module{}),
			expectedExported: map[string]FunctionSignature{},
		},
		{
			name:             "empty NameSection.ModuleName",
			binary:           wasmbinary.EncodeModule(&wasm.Module{NameSection: &wasm.NameSection{}}),
			expectedExported: map[string]FunctionSignature{},
		},
		{
			name:         "reverse",
			binary:       fixtures.ReverseWasm,
			expectedName: "reverse",
			expectedExported: map[string]FunctionSignature{
				"reverse": {Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}},
			},
		},
		{
			name:            "host",
			binary:          fixtures.HostWasm,
			expectedName:    "host",
			expectedImports: []string{"env.log"},
			expectedExported: map[string]FunctionSignature{
				"run": {},
			},
		},
	}

	r := newTestRuntime(t, nil)

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			m, err := r.CompileModule(testCtx, tc.binary)
			require.NoError(t, err)
			defer m.Close(testCtx)

			require.Equal(t, tc.expectedName, m.Name())
			require.Equal(t, tc.expectedImports, m.ImportedFunctions())
			exported := m.ExportedFunctions()
			require.Equal(t, len(tc.expectedExported), len(exported))
			for name, sig := range tc.expectedExported {
				require.Equal(t, len(sig.Params), len(exported[name].Params), name)
				require.Equal(t, len(sig.Results), len(exported[name].Results), name)
			}
		})
	}
}

func TestRuntime_CompileModule_Errors(t *testing.T) {
	i32 := wasm.ValueTypeI32
	tests := []struct {
		name        string
		binary      []byte
		expectedIs  error
		expectedErr string
	}{
		{
			name:        "nil",
			expectedErr: "binary == nil",
		},
		{
			name:        "invalid magic",
			binary:      []byte("yolo yolo"),
			expectedIs:  api.ErrMalformedBinary,
			expectedErr: "malformed binary at offset 0x0: magic number: invalid magic number",
		},
		{
			name:        "invalid version",
			binary:      append(append([]byte{}, wasmbinary.Magic...), 2, 0, 0, 0),
			expectedIs:  api.ErrMalformedBinary,
			expectedErr: "malformed binary at offset 0x4: version: invalid version header",
		},
		{
			name: "ill-typed body",
			binary: wasmbinary.EncodeModule(&wasm.Module{
				TypeSection:     []wasm.FunctionType{{Results: []wasm.ValueType{i32}}},
				FunctionSection: []wasm.Index{0},
				CodeSection:     []wasm.Code{{Body: []byte{wasm.OpcodeEnd}}},
			}),
			expectedIs: api.ErrValidation,
		},
	}

	r := newTestRuntime(t, nil)

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CompileModule(testCtx, tc.binary)
			require.Error(t, err)
			if tc.expectedIs != nil {
				require.ErrorIs(t, err, tc.expectedIs)
			}
			if tc.expectedErr != "" {
				require.EqualError(t, err, tc.expectedErr)
			}
		})
	}

	t.Run("validation error names the function", func(t *testing.T) {
		_, err := r.CompileModule(testCtx, tests[3].binary)
		var verr *api.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, int64(0), verr.FuncIndex)
	})
}

func TestRuntime_CompileModule_DisabledFeature(t *testing.T) {
	// i32.extend8_s requires the sign-extension feature.
	bin := wasmbinary.EncodeModule(&wasm.Module{
		TypeSection:     []wasm.FunctionType{{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []wasm.Code{{Body: []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeI32Extend8S, wasm.OpcodeEnd}}},
	})

	_, err := newTestRuntime(t, nil).CompileModule(testCtx, bin)
	require.NoError(t, err)

	_, err = newTestRuntime(t, NewRuntimeConfig().WithCoreFeatures(api.CoreFeaturesV1)).CompileModule(testCtx, bin)
	require.ErrorIs(t, err, api.ErrValidation)
}

func TestRuntime_Reverse(t *testing.T) {
	r := newTestRuntime(t, nil)
	mod, err := r.InstantiateModuleFromBinary(testCtx, fixtures.ReverseWasm)
	require.NoError(t, err)

	mem := mod.ExportedMemory("memory")
	require.NotNil(t, mem)
	require.NoError(t, mem.Write(0, []byte("helloworld")))

	results, err := mod.ExportedFunction("reverse").Call(testCtx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, results)

	buf, err := mem.Read(0, 10)
	require.NoError(t, err)
	require.Equal(t, "dlrowolleh", string(buf))

	// Bytes outside the range are untouched.
	b, ok := mem.ReadByte(10)
	require.True(t, ok)
	require.Zero(t, b)
}

func TestRuntime_Reverse_OutOfBounds(t *testing.T) {
	r := newTestRuntime(t, nil)
	mod, err := r.InstantiateModuleFromBinary(testCtx, fixtures.ReverseWasm)
	require.NoError(t, err)
	mem := mod.Memory()

	// The last 6 bytes of memory, reversed as if the buffer were 10 bytes long.
	ptr := mem.Size() - 6
	require.NoError(t, mem.Write(ptr, []byte("abcdef")))

	_, err = mod.ExportedFunction("reverse").Call(testCtx, uint64(ptr), 10)
	require.ErrorIs(t, err, api.ErrTrap)
	require.ErrorIs(t, err, api.ErrRuntimeOutOfBoundsMemoryAccess)
	require.EqualError(t, err, `wasm error: out of bounds memory access
wasm stack trace:
	reverse.reverse(i32,i32)`)

	buf, err := mem.Read(ptr, 6)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(buf))

	// The instance is still usable.
	require.NoError(t, mem.Write(0, []byte("ab")))
	_, err = mod.ExportedFunction("reverse").Call(testCtx, 0, 2)
	require.NoError(t, err)
	buf, err = mem.Read(0, 2)
	require.NoError(t, err)
	require.Equal(t, "ba", string(buf))
}

func TestRuntime_Caesar(t *testing.T) {
	r := newTestRuntime(t, nil)
	mod, err := r.InstantiateModuleFromBinary(testCtx, fixtures.CaesarWasm)
	require.NoError(t, err)
	mem := mod.Memory()

	plain := []uint32{7, 4, 11, 11, 14, 22, 14, 17, 11, 3} // helloworld
	for i, v := range plain {
		require.True(t, mem.WriteUint32Le(uint32(i*4), v))
	}

	_, err = mod.ExportedFunction("caesarEncrypt").Call(testCtx, 0, uint64(len(plain)), 3)
	require.NoError(t, err)
	encrypted, err := mem.Read(0, uint32(len(plain)*4))
	require.NoError(t, err)
	for i, v := range plain {
		require.Equal(t, (v+3)%26, binary.LittleEndian.Uint32(encrypted[i*4:]), i)
	}

	_, err = mod.ExportedFunction("caesarDecrypt").Call(testCtx, 0, uint64(len(plain)), 3)
	require.NoError(t, err)
	for i, v := range plain {
		actual, ok := mem.ReadUint32Le(uint32(i * 4))
		require.True(t, ok)
		require.Equal(t, v, actual, i)
	}
}

func TestRuntime_IndependentInstances(t *testing.T) {
	r := newTestRuntime(t, nil)
	compiled, err := r.CompileModule(testCtx, fixtures.ReverseWasm)
	require.NoError(t, err)

	m1, err := r.InstantiateModule(testCtx, compiled, nil)
	require.NoError(t, err)
	m2, err := r.InstantiateModule(testCtx, compiled, nil)
	require.NoError(t, err)

	require.NoError(t, m1.Memory().Write(0, []byte("helloworld")))
	_, err = m1.ExportedFunction("reverse").Call(testCtx, 0, 10)
	require.NoError(t, err)

	buf, err := m2.Memory().Read(0, 10)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 10), buf)
}

func TestRuntime_Concurrent(t *testing.T) {
	r := newTestRuntime(t, nil)
	compiled, err := r.CompileModule(testCtx, fixtures.ReverseWasm)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			mod, err := r.InstantiateModule(testCtx, compiled, nil)
			if err != nil {
				return err
			}
			defer mod.Close(testCtx)

			for j := 0; j < 10; j++ {
				if err = mod.Memory().Write(0, []byte("helloworld")); err != nil {
					return err
				}
				if _, err = mod.ExportedFunction("reverse").Call(testCtx, 0, 10); err != nil {
					return err
				}
				buf, err := mod.Memory().Read(0, 10)
				if err != nil {
					return err
				}
				if string(buf) != "dlrowolleh" {
					return errors.New("unexpected result: " + string(buf))
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestRuntime_SharedInstance_Concurrent(t *testing.T) {
	r := newTestRuntime(t, nil)
	mod, err := r.InstantiateModuleFromBinary(testCtx, fixtures.RecursionWasm)
	require.NoError(t, err)
	fac := mod.ExportedFunction("fac")

	P := 8
	N := 100
	if testing.Short() {
		P, N = 4, 10
	}

	hammer.NewHammer(t, P, N).Run(func(p, n int) error {
		arg := uint64(n % 21)
		results, err := fac.Call(testCtx, arg)
		if err != nil {
			return err
		}
		expected := uint64(1)
		for i := uint64(2); i <= arg; i++ {
			expected *= i
		}
		if results[0] != expected {
			return fmt.Errorf("goroutine %d: fac(%d) = %d, expected %d", p, arg, results[0], expected)
		}
		return nil
	}, nil)
}

func TestRuntime_HostFunction(t *testing.T) {
	r := newTestRuntime(t, nil)
	compiled, err := r.CompileModule(testCtx, fixtures.HostWasm)
	require.NoError(t, err)

	var logged string
	imports := Imports{"env": {"log": {
		Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		Fn: func(ctx context.Context, mod api.Module, stack []uint64) {
			require.Equal(t, testCtx.Value(struct{}{}), ctx.Value(struct{}{}))
			buf, err := mod.Memory().Read(uint32(stack[0]), uint32(stack[1]))
			require.NoError(t, err)
			logged = string(buf)
		},
	}}}

	mod, err := r.InstantiateModule(testCtx, compiled, imports)
	require.NoError(t, err)
	_, err = mod.ExportedFunction("run").Call(testCtx)
	require.NoError(t, err)
	require.Equal(t, fixtures.HostMessage, logged)
}

func TestRuntime_HostFunction_Panic(t *testing.T) {
	r := newTestRuntime(t, nil)
	compiled, err := r.CompileModule(testCtx, fixtures.HostWasm)
	require.NoError(t, err)

	errBoom := errors.New("boom")
	imports := Imports{"env": {"log": {
		Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		Fn:     func(context.Context, api.Module, []uint64) { panic(errBoom) },
	}}}

	mod, err := r.InstantiateModule(testCtx, compiled, imports)
	require.NoError(t, err)
	_, err = mod.ExportedFunction("run").Call(testCtx)
	require.ErrorIs(t, err, errBoom)
	require.EqualError(t, err, `wasm error: boom (recovered by wasmcore)
wasm stack trace:
	env.log(i32,i32)
	host.run()`)
}

func TestRuntime_InstantiateModule_Errors(t *testing.T) {
	i32 := api.ValueTypeI32
	noop := func(context.Context, api.Module, []uint64) {}

	tests := []struct {
		name        string
		config      RuntimeConfig
		binary      []byte
		imports     Imports
		expectedErr string
	}{
		{
			name:        "missing import",
			binary:      fixtures.HostWasm,
			expectedErr: "module[host] instantiation failed: import[0] func[env.log]: not found",
		},
		{
			name:        "import signature mismatch",
			binary:      fixtures.HostWasm,
			imports:     Imports{"env": {"log": {Params: []api.ValueType{i32}, Fn: noop}}},
			expectedErr: "module[host] instantiation failed: import[0] func[env.log]: signature mismatch: i32i32_v != i32_v",
		},
		{
			name:        "memory over limit",
			config:      NewRuntimeConfig().WithMemoryLimitPages(0),
			binary:      fixtures.ReverseWasm,
			expectedErr: "module[reverse] instantiation failed: memory min 1 pages (64 Ki) over limit of 0 pages (0 Ki)",
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			r := newTestRuntime(t, tc.config)
			compiled, err := r.CompileModule(testCtx, tc.binary)
			require.NoError(t, err)

			_, err = r.InstantiateModule(testCtx, compiled, tc.imports)
			require.ErrorIs(t, err, api.ErrInstantiation)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestRuntime_Traps(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig().WithCallStackCeiling(100))
	trap, err := r.InstantiateModuleFromBinary(testCtx, fixtures.TrapWasm)
	require.NoError(t, err)
	recursion, err := r.InstantiateModuleFromBinary(testCtx, fixtures.RecursionWasm)
	require.NoError(t, err)

	tests := []struct {
		name        string
		fn          api.Function
		params      []uint64
		expectedErr error
	}{
		{
			name:        "divide by zero",
			fn:          trap.ExportedFunction("div"),
			params:      []uint64{1, 0},
			expectedErr: api.ErrRuntimeIntegerDivideByZero,
		},
		{
			name:        "integer overflow",
			fn:          trap.ExportedFunction("div"),
			params:      []uint64{api.EncodeI32(-2147483648), api.EncodeI32(-1)},
			expectedErr: api.ErrRuntimeIntegerOverflow,
		},
		{
			name:        "unreachable",
			fn:          trap.ExportedFunction("unreachable"),
			expectedErr: api.ErrRuntimeUnreachable,
		},
		{
			name:        "stack overflow",
			fn:          recursion.ExportedFunction("recurse"),
			expectedErr: api.ErrRuntimeStackOverflow,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.fn.Call(testCtx, tc.params...)
			require.ErrorIs(t, err, api.ErrTrap)
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}

	// Traps don't poison the instance.
	results, err := trap.ExportedFunction("div").Call(testCtx, 42, 6)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
}

func TestRuntime_CallStackCeiling_Clamped(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig().WithCallStackCeiling(1<<30))
	recursion, err := r.InstantiateModuleFromBinary(testCtx, fixtures.RecursionWasm)
	require.NoError(t, err)

	_, err = recursion.ExportedFunction("recurse").Call(testCtx)
	var trap *api.TrapError
	require.ErrorAs(t, err, &trap)
	require.ErrorIs(t, err, api.ErrRuntimeStackOverflow)
}

func TestRuntime_Fuel(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig().WithFuel(10_000))
	trap, err := r.InstantiateModuleFromBinary(testCtx, fixtures.TrapWasm)
	require.NoError(t, err)

	_, err = trap.ExportedFunction("spin").Call(testCtx)
	require.ErrorIs(t, err, api.ErrRuntimeFuelExhausted)

	// Fuel is per call.
	results, err := trap.ExportedFunction("div").Call(testCtx, 9, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, results)
}

func TestRuntime_CloseOnContextDone(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig().WithCloseOnContextDone(true))
	trap, err := r.InstantiateModuleFromBinary(testCtx, fixtures.TrapWasm)
	require.NoError(t, err)

	t.Run("timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(testCtx, 50*time.Millisecond)
		defer cancel()

		_, err := trap.ExportedFunction("spin").Call(ctx)
		require.ErrorIs(t, err, api.ErrRuntimeCallCanceled)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testCtx)
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := trap.ExportedFunction("spin").Call(ctx)
		require.ErrorIs(t, err, api.ErrRuntimeCallCanceled)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRuntime_Logger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newTestRuntime(t, NewRuntimeConfig().WithLogger(zap.New(core)))

	_, err := r.CompileModule(testCtx, []byte("yolo yolo"))
	require.Error(t, err)
	require.Len(t, logs.FilterMessage("compilation failed").All(), 1)

	trap, err := r.InstantiateModuleFromBinary(testCtx, fixtures.TrapWasm)
	require.NoError(t, err)
	require.Len(t, logs.FilterMessage("module compiled").All(), 1)
	require.Len(t, logs.FilterMessage("module instantiated").All(), 1)

	_, err = trap.ExportedFunction("unreachable").Call(testCtx)
	require.Error(t, err)
	failed := logs.FilterMessage("call failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "trap.unreachable", failed[0].ContextMap()["function"])
}

func TestRuntime_Close(t *testing.T) {
	r := NewRuntime(testCtx)
	compiled, err := r.CompileModule(testCtx, fixtures.ReverseWasm)
	require.NoError(t, err)
	mod, err := r.InstantiateModule(testCtx, compiled, nil)
	require.NoError(t, err)

	require.NoError(t, r.Close(testCtx))
	require.NoError(t, r.Close(testCtx)) // idempotent

	_, err = mod.ExportedFunction("reverse").Call(testCtx, 0, 1)
	require.ErrorIs(t, err, api.ErrClosed)

	_, err = r.CompileModule(testCtx, fixtures.ReverseWasm)
	require.ErrorIs(t, err, api.ErrClosed)

	_, err = r.InstantiateModule(testCtx, compiled, nil)
	require.ErrorIs(t, err, api.ErrClosed)
}

func TestCompiledModule_Close(t *testing.T) {
	r := newTestRuntime(t, nil)
	engine := r.(*runtime).store.Engine

	compiled, err := r.CompileModule(testCtx, fixtures.ReverseWasm)
	require.NoError(t, err)
	mod, err := r.InstantiateModule(testCtx, compiled, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), engine.CompiledModuleCount())

	require.NoError(t, compiled.Close(testCtx))
	require.Zero(t, engine.CompiledModuleCount())

	_, err = r.InstantiateModule(testCtx, compiled, nil)
	require.ErrorIs(t, err, api.ErrClosed)
	require.EqualError(t, err, "module[reverse]: closed")

	// Existing instances keep running.
	_, err = mod.ExportedFunction("reverse").Call(testCtx, 0, 1)
	require.NoError(t, err)
}

func TestRuntime_InstantiateModuleFromBinary_ClosesCompiled(t *testing.T) {
	r := newTestRuntime(t, nil)
	engine := r.(*runtime).store.Engine

	mod, err := r.InstantiateModuleFromBinary(testCtx, fixtures.ReverseWasm)
	require.NoError(t, err)
	require.Equal(t, uint32(1), engine.CompiledModuleCount())

	require.NoError(t, mod.Close(testCtx))
	require.Zero(t, engine.CompiledModuleCount())

	// A failed instantiation releases the compiled module too.
	_, err = r.InstantiateModuleFromBinary(testCtx, fixtures.HostWasm)
	require.ErrorIs(t, err, api.ErrInstantiation)
	require.Zero(t, engine.CompiledModuleCount())
}

func TestModule_Memory_Grow(t *testing.T) {
	i32 := wasm.ValueTypeI32
	// grow(delta) returns memory.grow(delta).
	bin := wasmbinary.EncodeModule(&wasm.Module{
		TypeSection:     []wasm.FunctionType{{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		MemorySection:   &wasm.Memory{Min: 1, Max: 3, IsMaxEncoded: true},
		CodeSection:     []wasm.Code{{Body: []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeMemoryGrow, 0, wasm.OpcodeEnd}}},
		ExportSection:   []wasm.Export{{Type: wasm.ExternTypeFunc, Name: "grow", Index: 0}},
	})

	r := newTestRuntime(t, nil)
	mod, err := r.InstantiateModuleFromBinary(testCtx, bin)
	require.NoError(t, err)
	mem := mod.Memory()
	require.True(t, mem.WriteByte(100, 42))

	results, err := mod.ExportedFunction("grow").Call(testCtx, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, results)
	require.Equal(t, 2*wasm.MemoryPageSize, mem.Size())

	prev, ok := mem.Grow(1)
	require.True(t, ok)
	require.Equal(t, uint32(2), prev)
	require.Equal(t, uint32(3), mem.Pages())

	// Over the max, memory.grow returns -1.
	results, err = mod.ExportedFunction("grow").Call(testCtx, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{api.EncodeI32(-1)}, results)

	b, ok := mem.ReadByte(100)
	require.True(t, ok)
	require.Equal(t, byte(42), b)
}
