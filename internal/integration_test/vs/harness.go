package vs

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wasmcore/internal/testing/fixtures"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

var (
	reverseConfig = &RuntimeConfig{
		Name:       "reverse",
		ModuleName: "reverse",
		ModuleWasm: fixtures.ReverseWasm,
		FuncNames:  []string{"reverse"},
	}
	caesarConfig = &RuntimeConfig{
		Name:       "caesar",
		ModuleName: "caesar",
		ModuleWasm: fixtures.CaesarWasm,
		FuncNames:  []string{"caesarEncrypt", "caesarDecrypt"},
	}
	recursionConfig = &RuntimeConfig{
		Name:       "recursion",
		ModuleName: "recursion",
		ModuleWasm: fixtures.RecursionWasm,
		FuncNames:  []string{"fac", "recurse"},
	}
	trapConfig = &RuntimeConfig{
		Name:       "trap",
		ModuleName: "trap",
		ModuleWasm: fixtures.TrapWasm,
		FuncNames:  []string{"div", "unreachable"},
	}
)

// instantiate compiles and instantiates the config, closing both when the test completes.
func instantiate(t *testing.T, rt Runtime, cfg *RuntimeConfig) Module {
	t.Helper()
	require.NoError(t, rt.Compile(testCtx, cfg))
	t.Cleanup(func() { require.NoError(t, rt.Close(testCtx)) })

	mod, err := rt.Instantiate(testCtx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mod.Close(testCtx)) })
	return mod
}

// RunTestReverse reverses strings of varying length in place, including the empty and odd-length cases.
func RunTestReverse(t *testing.T, runtime func() Runtime) {
	mod := instantiate(t, runtime(), reverseConfig)

	for _, s := range []string{"", "a", "ab", "wasm", "helloworld", "racecar!"} {
		const offset = 100
		require.NoError(t, mod.WriteMemory(testCtx, offset, []byte(s)))
		require.NoError(t, mod.CallI32I32_V(testCtx, "reverse", offset, uint32(len(s))))

		buf, err := mod.ReadMemory(testCtx, offset, uint32(len(s)))
		require.NoError(t, err)
		require.Equal(t, reverse(s), string(buf), s)
	}
}

// RunTestReverseOutOfBounds ensures a reverse that runs off the end of memory traps, and the module stays usable.
func RunTestReverseOutOfBounds(t *testing.T, runtime func() Runtime) {
	mod := instantiate(t, runtime(), reverseConfig)

	err := mod.CallI32I32_V(testCtx, "reverse", 65536-6, 10)
	require.Error(t, err)

	require.NoError(t, mod.WriteMemory(testCtx, 0, []byte("abc")))
	require.NoError(t, mod.CallI32I32_V(testCtx, "reverse", 0, 3))
	buf, err := mod.ReadMemory(testCtx, 0, 3)
	require.NoError(t, err)
	require.Equal(t, "cba", string(buf))
}

// RunTestCaesar round-trips letters through caesarEncrypt and caesarDecrypt.
func RunTestCaesar(t *testing.T, runtime func() Runtime) {
	mod := instantiate(t, runtime(), caesarConfig)

	const offset, key = 64, 3
	plain := "thequickbrownfoxjumpsoverthelazydog"
	require.NoError(t, mod.WriteMemory(testCtx, offset, encodeLetters(plain)))

	require.NoError(t, mod.CallI32I32I32_V(testCtx, "caesarEncrypt", offset, uint32(len(plain)), key))
	buf, err := mod.ReadMemory(testCtx, offset, uint32(len(plain)*4))
	require.NoError(t, err)
	require.Equal(t, caesar(plain, key), decodeLetters(buf))

	require.NoError(t, mod.CallI32I32I32_V(testCtx, "caesarDecrypt", offset, uint32(len(plain)), key))
	buf, err = mod.ReadMemory(testCtx, offset, uint32(len(plain)*4))
	require.NoError(t, err)
	require.Equal(t, plain, decodeLetters(buf))
}

// RunTestFactorial computes fac recursively for the range that fits in an i64.
func RunTestFactorial(t *testing.T, runtime func() Runtime) {
	mod := instantiate(t, runtime(), recursionConfig)

	expected := uint64(1)
	for n := uint64(0); n <= 20; n++ {
		if n > 0 {
			expected *= n
		}
		res, err := mod.CallI64_I64(testCtx, "fac", n)
		require.NoError(t, err)
		require.Equal(t, expected, res, n)
	}
}

// RunTestHostLog ensures the import "env.log" is called with a view of the caller's memory.
func RunTestHostLog(t *testing.T, runtime func() Runtime) {
	var logged []string
	cfg := &RuntimeConfig{
		Name:       "host",
		ModuleName: "host",
		ModuleWasm: fixtures.HostWasm,
		FuncNames:  []string{"run"},
		LogFn: func(buf []byte) error {
			logged = append(logged, string(buf))
			return nil
		},
	}
	mod := instantiate(t, runtime(), cfg)

	require.NoError(t, mod.CallV_V(testCtx, "run"))
	require.NoError(t, mod.CallV_V(testCtx, "run"))
	require.Equal(t, []string{"hello world", "hello world"}, logged)
}

// RunTestTraps ensures each trapping instruction fails the call, leaving the module usable.
func RunTestTraps(t *testing.T, runtime func() Runtime) {
	t.Run("div", func(t *testing.T) {
		mod := instantiate(t, runtime(), trapConfig)

		_, err := mod.CallI32I32_I32(testCtx, "div", 1, 0)
		require.Error(t, err)

		minInt32 := uint32(1) << 31
		_, err = mod.CallI32I32_I32(testCtx, "div", minInt32, math.MaxUint32)
		require.Error(t, err)

		res, err := mod.CallI32I32_I32(testCtx, "div", 6, 3)
		require.NoError(t, err)
		require.Equal(t, uint32(2), res)
	})

	t.Run("unreachable", func(t *testing.T) {
		mod := instantiate(t, runtime(), trapConfig)
		require.Error(t, mod.CallV_V(testCtx, "unreachable"))
	})

	t.Run("stack overflow", func(t *testing.T) {
		mod := instantiate(t, runtime(), recursionConfig)
		require.Error(t, mod.CallV_V(testCtx, "recurse"))

		res, err := mod.CallI64_I64(testCtx, "fac", 5)
		require.NoError(t, err)
		require.Equal(t, uint64(120), res)
	})
}

// RunTestDifferential compares div results and trap outcomes of the runtime with wasmcore over edge-case inputs.
func RunTestDifferential(t *testing.T, runtime func() Runtime) {
	expected := instantiate(t, NewWasmcoreRuntime(), trapConfig)
	actual := instantiate(t, runtime(), trapConfig)

	inputs := []uint32{0, 1, 2, 3, 7, math.MaxInt32, 1 << 31, math.MaxUint32, math.MaxUint32 - 1}
	for _, x := range inputs {
		for _, y := range inputs {
			want, wantErr := expected.CallI32I32_I32(testCtx, "div", x, y)
			have, haveErr := actual.CallI32I32_I32(testCtx, "div", x, y)
			if wantErr != nil {
				require.Error(t, haveErr, "div(%d, %d)", int32(x), int32(y))
				continue
			}
			require.NoError(t, haveErr, "div(%d, %d)", int32(x), int32(y))
			require.Equal(t, want, have, "div(%d, %d)", int32(x), int32(y))
		}
	}
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func caesar(s string, key byte) string {
	b := []byte(s)
	for i := range b {
		b[i] = 'a' + (b[i]-'a'+key)%26
	}
	return string(b)
}

// encodeLetters encodes each lowercase letter as a little-endian i32 in the range 0-25.
func encodeLetters(s string) []byte {
	buf := make([]byte, len(s)*4)
	for i := range s {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(s[i]-'a'))
	}
	return buf
}

func decodeLetters(buf []byte) string {
	b := make([]byte, len(buf)/4)
	for i := range b {
		b[i] = 'a' + byte(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return string(b)
}

// RunBenchmarkCompile measures compiling the factorial module.
func RunBenchmarkCompile(b *testing.B, runtime func() Runtime) {
	rt := runtime()
	for i := 0; i < b.N; i++ {
		if err := rt.Compile(testCtx, recursionConfig); err != nil {
			b.Fatal(err)
		}
		if err := rt.Close(testCtx); err != nil {
			b.Fatal(err)
		}
	}
}

// RunBenchmarkInstantiate measures instantiating the reverse module, which defines a memory.
func RunBenchmarkInstantiate(b *testing.B, runtime func() Runtime) {
	rt := runtime()
	// Compile outside the benchmark loop
	if err := rt.Compile(testCtx, reverseConfig); err != nil {
		b.Fatal(err)
	}
	defer rt.Close(testCtx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mod, err := rt.Instantiate(testCtx, reverseConfig)
		if err != nil {
			b.Fatal(err)
		}
		if err = mod.Close(testCtx); err != nil {
			b.Fatal(err)
		}
	}
}

// RunBenchmarkFactorial measures the recursive call path with fac(20).
func RunBenchmarkFactorial(b *testing.B, runtime func() Runtime) {
	benchmarkCall(b, runtime(), recursionConfig, func(m Module) error {
		_, err := m.CallI64_I64(testCtx, "fac", 20)
		return err
	})
}

// RunBenchmarkReverse measures memory access by reversing a buffer of 1 KiB.
func RunBenchmarkReverse(b *testing.B, runtime func() Runtime) {
	benchmarkCall(b, runtime(), reverseConfig, func(m Module) error {
		return m.CallI32I32_V(testCtx, "reverse", 0, 1024)
	})
}

func benchmarkCall(b *testing.B, rt Runtime, cfg *RuntimeConfig, call func(Module) error) {
	// Initialize outside the benchmark loop
	if err := rt.Compile(testCtx, cfg); err != nil {
		b.Fatal(err)
	}
	defer rt.Close(testCtx)
	mod, err := rt.Instantiate(testCtx, cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer mod.Close(testCtx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err = call(mod); err != nil {
			b.Fatal(err)
		}
	}
}
