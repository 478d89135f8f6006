package wasmcore

import (
	"context"
	"fmt"
	"log"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/testing/fixtures"
)

// This is an example of how to use WebAssembly via reversing a string in place in linear memory.
func Example() {
	// Choose the context to use for function calls.
	ctx := context.Background()

	// Create a new WebAssembly Runtime.
	r := NewRuntime(ctx)
	defer r.Close(ctx) // This closes everything this Runtime created.

	// The module exports "memory" and "reverse(ptr, len i32)".
	mod, err := r.InstantiateModuleFromBinary(ctx, fixtures.ReverseWasm)
	if err != nil {
		log.Panicln(err)
	}

	mem := mod.ExportedMemory("memory")
	if err = mem.Write(0, []byte("helloworld")); err != nil {
		log.Panicln(err)
	}
	before, _ := mem.Read(0, 10)

	if _, err = mod.ExportedFunction("reverse").Call(ctx, 0, 10); err != nil {
		log.Panicln(err)
	}
	after, _ := mem.Read(0, 10)

	fmt.Printf("%s: %s -> %s\n", mod.Name(), before, after)

	// Output:
	// reverse: helloworld -> dlrowolleh
}

// This shows how to shift an array of i32 letters with the caesar module, writing and reading memory through
// the typed accessors.
func Example_caesar() {
	ctx := context.Background()

	r := NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.InstantiateModuleFromBinary(ctx, fixtures.CaesarWasm)
	if err != nil {
		log.Panicln(err)
	}
	mem := mod.Memory()

	letters := "wasm"
	for i, c := range letters {
		mem.WriteUint32Le(uint32(i*4), uint32(c-'a'))
	}

	read := func() (ret string) {
		for i := range letters {
			v, _ := mem.ReadUint32Le(uint32(i * 4))
			ret += string(rune('a' + v))
		}
		return
	}

	n, key := uint64(len(letters)), uint64(3)
	if _, err = mod.ExportedFunction("caesarEncrypt").Call(ctx, 0, n, key); err != nil {
		log.Panicln(err)
	}
	fmt.Println(read())
	if _, err = mod.ExportedFunction("caesarDecrypt").Call(ctx, 0, n, key); err != nil {
		log.Panicln(err)
	}
	fmt.Println(read())

	// Output:
	// zdvp
	// wasm
}

// This shows how to satisfy a function import with Go.
func Example_hostFunction() {
	ctx := context.Background()

	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, fixtures.HostWasm)
	if err != nil {
		log.Panicln(err)
	}
	fmt.Println("imports:", compiled.ImportedFunctions())

	logString := &HostFunction{
		Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		Fn: func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, size := uint32(stack[0]), uint32(stack[1])
			buf, err := mod.Memory().Read(ptr, size)
			if err != nil {
				panic(err)
			}
			fmt.Println(string(buf))
		},
	}

	mod, err := r.InstantiateModule(ctx, compiled, Imports{"env": {"log": logString}})
	if err != nil {
		log.Panicln(err)
	}
	if _, err = mod.ExportedFunction("run").Call(ctx); err != nil {
		log.Panicln(err)
	}

	// Output:
	// imports: [env.log]
	// hello world
}

// This shows a trap: the call fails, but the instance stays usable.
func Example_trap() {
	ctx := context.Background()

	r := NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.InstantiateModuleFromBinary(ctx, fixtures.TrapWasm)
	if err != nil {
		log.Panicln(err)
	}
	div := mod.ExportedFunction("div")

	_, err = div.Call(ctx, 1, 0)
	fmt.Println(err)

	results, _ := div.Call(ctx, 6, 3)
	fmt.Println(results[0])

	// Output:
	// wasm error: integer divide by zero
	// wasm stack trace:
	// 	trap.div(i32,i32) i32
	// 2
}
