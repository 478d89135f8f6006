// Package fixtures holds small modules shared by tests and examples. Each is built as a wasm.Module, in the shape a C
// toolchain emits for the demo programs, and encoded with the binary encoder.
package fixtures

import (
	"github.com/tetratelabs/wasmcore/internal/wasm"
	"github.com/tetratelabs/wasmcore/internal/wasm/binary"
)

var (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64

	// ReverseWasm exports "memory" (one page) and "reverse(ptr, len i32)", which reverses len bytes at ptr in place.
	ReverseWasm = binary.EncodeModule(ReverseModule())

	// CaesarWasm exports "memory" (one page), "caesarEncrypt(ptr, len, key i32)" and "caesarDecrypt(ptr, len, key i32)",
	// which shift len little-endian i32 letters (0-25) at ptr by key, modulo 26.
	CaesarWasm = binary.EncodeModule(CaesarModule())

	// RecursionWasm exports "fac(n i64) i64", computed recursively, and "recurse()" which never returns.
	RecursionWasm = binary.EncodeModule(RecursionModule())

	// TrapWasm exports "div(a, b i32) i32", "unreachable()" and "spin()", an infinite loop.
	TrapWasm = binary.EncodeModule(TrapModule())

	// HostWasm imports "env.log(ptr, len i32)" and exports "memory" and "run()", which logs "hello world".
	HostWasm = binary.EncodeModule(HostModule())
)

// ReverseModule is the module encoded in ReverseWasm.
func ReverseModule() *wasm.Module {
	// params: ptr(0), len(1). locals: i(2), tmp(3), j(4)
	body := []byte{
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeLoop, 0x40,
		// if i >= len / 2 { break }
		wasm.OpcodeLocalGet, 2,
		wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Const, 2, wasm.OpcodeI32DivS,
		wasm.OpcodeI32GeS,
		wasm.OpcodeBrIf, 1,
		// j = ptr + len - i - 1
		wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add,
		wasm.OpcodeLocalGet, 2, wasm.OpcodeI32Sub,
		wasm.OpcodeI32Const, 1, wasm.OpcodeI32Sub,
		wasm.OpcodeLocalSet, 4,
		// tmp = ptr[i]
		wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 2, wasm.OpcodeI32Add,
		wasm.OpcodeI32Load8U, 0, 0,
		wasm.OpcodeLocalSet, 3,
		// ptr[i] = *j
		wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 2, wasm.OpcodeI32Add,
		wasm.OpcodeLocalGet, 4, wasm.OpcodeI32Load8U, 0, 0,
		wasm.OpcodeI32Store8, 0, 0,
		// *j = tmp
		wasm.OpcodeLocalGet, 4, wasm.OpcodeLocalGet, 3,
		wasm.OpcodeI32Store8, 0, 0,
		// i++
		wasm.OpcodeLocalGet, 2, wasm.OpcodeI32Const, 1, wasm.OpcodeI32Add, wasm.OpcodeLocalSet, 2,
		wasm.OpcodeBr, 0,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	return &wasm.Module{
		TypeSection:     []wasm.FunctionType{{Params: []wasm.ValueType{i32, i32}}},
		FunctionSection: []wasm.Index{0},
		MemorySection:   &wasm.Memory{Min: 1, Max: 1, IsMaxEncoded: true},
		ExportSection: []wasm.Export{
			{Type: wasm.ExternTypeMemory, Name: "memory", Index: 0},
			{Type: wasm.ExternTypeFunc, Name: "reverse", Index: 0},
		},
		CodeSection: []wasm.Code{{LocalTypes: []wasm.ValueType{i32, i32, i32}, Body: body}},
		NameSection: &wasm.NameSection{
			ModuleName:    "reverse",
			FunctionNames: wasm.NameMap{{Index: 0, Name: "reverse"}},
		},
	}
}

// caesarBody shifts each letter by key: (v + key) % 26 when encrypting, or (v - key + 26) % 26.
func caesarBody(encrypt bool) []byte {
	// params: ptr(0), len(1), key(2). locals: i(3), addr(4)
	body := []byte{
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeLoop, 0x40,
		// if i >= len { break }
		wasm.OpcodeLocalGet, 3, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32GeS,
		wasm.OpcodeBrIf, 1,
		// addr = ptr + i * 4
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 3, wasm.OpcodeI32Const, 2, wasm.OpcodeI32Shl,
		wasm.OpcodeI32Add,
		wasm.OpcodeLocalSet, 4,
		// *addr = shift(*addr)
		wasm.OpcodeLocalGet, 4,
		wasm.OpcodeLocalGet, 4, wasm.OpcodeI32Load, 2, 0,
		wasm.OpcodeLocalGet, 2,
	}
	if encrypt {
		body = append(body, wasm.OpcodeI32Add)
	} else {
		body = append(body, wasm.OpcodeI32Sub, wasm.OpcodeI32Const, 26, wasm.OpcodeI32Add)
	}
	return append(body,
		wasm.OpcodeI32Const, 26, wasm.OpcodeI32RemS,
		wasm.OpcodeI32Store, 2, 0,
		// i++
		wasm.OpcodeLocalGet, 3, wasm.OpcodeI32Const, 1, wasm.OpcodeI32Add, wasm.OpcodeLocalSet, 3,
		wasm.OpcodeBr, 0,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	)
}

// CaesarModule is the module encoded in CaesarWasm.
func CaesarModule() *wasm.Module {
	return &wasm.Module{
		TypeSection:     []wasm.FunctionType{{Params: []wasm.ValueType{i32, i32, i32}}},
		FunctionSection: []wasm.Index{0, 0},
		MemorySection:   &wasm.Memory{Min: 1, Max: 1, IsMaxEncoded: true},
		ExportSection: []wasm.Export{
			{Type: wasm.ExternTypeMemory, Name: "memory", Index: 0},
			{Type: wasm.ExternTypeFunc, Name: "caesarEncrypt", Index: 0},
			{Type: wasm.ExternTypeFunc, Name: "caesarDecrypt", Index: 1},
		},
		CodeSection: []wasm.Code{
			{LocalTypes: []wasm.ValueType{i32, i32}, Body: caesarBody(true)},
			{LocalTypes: []wasm.ValueType{i32, i32}, Body: caesarBody(false)},
		},
		NameSection: &wasm.NameSection{
			ModuleName:    "caesar",
			FunctionNames: wasm.NameMap{{Index: 0, Name: "caesarEncrypt"}, {Index: 1, Name: "caesarDecrypt"}},
		},
	}
}

// RecursionModule is the module encoded in RecursionWasm.
func RecursionModule() *wasm.Module {
	fac := []byte{
		wasm.OpcodeLocalGet, 0, wasm.OpcodeI64Eqz,
		wasm.OpcodeIf, i64,
		wasm.OpcodeI64Const, 1,
		wasm.OpcodeElse,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 0, wasm.OpcodeI64Const, 1, wasm.OpcodeI64Sub,
		wasm.OpcodeCall, 0,
		wasm.OpcodeI64Mul,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	recurse := []byte{wasm.OpcodeCall, 1, wasm.OpcodeEnd}
	return &wasm.Module{
		TypeSection: []wasm.FunctionType{
			{Params: []wasm.ValueType{i64}, Results: []wasm.ValueType{i64}},
			{},
		},
		FunctionSection: []wasm.Index{0, 1},
		ExportSection: []wasm.Export{
			{Type: wasm.ExternTypeFunc, Name: "fac", Index: 0},
			{Type: wasm.ExternTypeFunc, Name: "recurse", Index: 1},
		},
		CodeSection: []wasm.Code{{Body: fac}, {Body: recurse}},
		NameSection: &wasm.NameSection{
			ModuleName:    "recursion",
			FunctionNames: wasm.NameMap{{Index: 0, Name: "fac"}, {Index: 1, Name: "recurse"}},
		},
	}
}

// TrapModule is the module encoded in TrapWasm.
func TrapModule() *wasm.Module {
	return &wasm.Module{
		TypeSection: []wasm.FunctionType{
			{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}},
			{},
		},
		FunctionSection: []wasm.Index{0, 1, 1},
		ExportSection: []wasm.Export{
			{Type: wasm.ExternTypeFunc, Name: "div", Index: 0},
			{Type: wasm.ExternTypeFunc, Name: "unreachable", Index: 1},
			{Type: wasm.ExternTypeFunc, Name: "spin", Index: 2},
		},
		CodeSection: []wasm.Code{
			{Body: []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32DivS, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeLoop, 0x40, wasm.OpcodeBr, 0, wasm.OpcodeEnd, wasm.OpcodeEnd}},
		},
		NameSection: &wasm.NameSection{
			ModuleName:    "trap",
			FunctionNames: wasm.NameMap{{Index: 0, Name: "div"}, {Index: 1, Name: "unreachable"}, {Index: 2, Name: "spin"}},
		},
	}
}

// HostMessage is the text HostWasm passes to env.log, at HostMessageOffset.
const (
	HostMessage       = "hello world"
	HostMessageOffset = 8
)

// HostModule is the module encoded in HostWasm.
func HostModule() *wasm.Module {
	return &wasm.Module{
		TypeSection: []wasm.FunctionType{
			{Params: []wasm.ValueType{i32, i32}},
			{},
		},
		ImportSection:       []wasm.Import{{Type: wasm.ExternTypeFunc, Module: "env", Name: "log", DescFunc: 0}},
		ImportFunctionCount: 1,
		FunctionSection:     []wasm.Index{1},
		MemorySection:       &wasm.Memory{Min: 1, Max: 1, IsMaxEncoded: true},
		ExportSection: []wasm.Export{
			{Type: wasm.ExternTypeMemory, Name: "memory", Index: 0},
			{Type: wasm.ExternTypeFunc, Name: "run", Index: 1},
		},
		CodeSection: []wasm.Code{{Body: []byte{
			wasm.OpcodeI32Const, HostMessageOffset, wasm.OpcodeI32Const, byte(len(HostMessage)),
			wasm.OpcodeCall, 0,
			wasm.OpcodeEnd,
		}}},
		DataSection: []wasm.DataSegment{{
			OffsetExpression: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{HostMessageOffset}},
			Init:             []byte(HostMessage),
		}},
		NameSection: &wasm.NameSection{
			ModuleName:    "host",
			FunctionNames: wasm.NameMap{{Index: 0, Name: "log"}, {Index: 1, Name: "run"}},
		},
	}
}
