// Package api includes constants and interfaces used by both end-users and internal implementations.
package api

import (
	"context"
	"fmt"
	"math"
)

// ExternType classifies imports and exports with their respective types.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#import-section%E2%91%A0
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#export-section%E2%91%A0
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// The below are exported to consolidate parsing behavior for external types.
const (
	// ExternTypeFuncName is the name of the WebAssembly 1.0 (20191205) Text Format field for ExternTypeFunc.
	ExternTypeFuncName = "func"
	// ExternTypeTableName is the name of the WebAssembly 1.0 (20191205) Text Format field for ExternTypeTable.
	ExternTypeTableName = "table"
	// ExternTypeMemoryName is the name of the WebAssembly 1.0 (20191205) Text Format field for ExternTypeMemory.
	ExternTypeMemoryName = "memory"
	// ExternTypeGlobalName is the name of the WebAssembly 1.0 (20191205) Text Format field for ExternTypeGlobal.
	ExternTypeGlobalName = "global"
)

// ExternTypeName returns the name of the WebAssembly 1.0 (20191205) Text Format field of the given type.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#exports%E2%91%A4
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return ExternTypeFuncName
	case ExternTypeTable:
		return ExternTypeTableName
	case ExternTypeMemory:
		return ExternTypeMemoryName
	case ExternTypeGlobal:
		return ExternTypeGlobalName
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType describes a numeric type used in WebAssembly 1.0 (20191205). For example, Function parameters and
// results are only definable as a value type.
//
// The following describes how to convert between Wasm and Golang types:
//   - ValueTypeI32 - EncodeI32 / EncodeU32 and uint32(result) or int32(result)
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32 and DecodeF32 from float32
//   - ValueTypeF64 - EncodeF64 and DecodeF64 from float64
//
// Ex. Given a Text Format type use (param f64) (result f64), conversion is necessary.
//
//	results, _ := fn.Call(ctx, api.EncodeF64(input))
//	result := api.DecodeF64(results[0])
//
// Note: This is a type alias as it is easier to encode and decode in the binary format.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit floating point number.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit floating point number.
	ValueTypeF64 ValueType = 0x7c
)

// ValueTypeName returns the type name of the given ValueType as a string.
// These type names match the names used in the WebAssembly text format.
//
// Note: This returns "unknown", if an undefined ValueType value is passed.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// Extern is a value exported by an instantiated module: a Function or a Memory.
//
// Note: This is an interface for decoupling, not third-party implementations. All implementations are in wasmcore.
type Extern interface {
	// ExternType is ExternTypeFunc for Function and ExternTypeMemory for Memory.
	ExternType() ExternType
}

// Module is an instantiated WebAssembly module: the live binding of a compiled module to its own memory, globals
// and table.
//
// Note: Closing the wasmcore.Runtime closes any Module it instantiated.
// Note: This is an interface for decoupling, not third-party implementations. All implementations are in wasmcore.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#module-instances%E2%91%A0
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with, defaulting to the one in the custom name section.
	Name() string

	// Memory returns the memory defined in this module or nil if there isn't one.
	Memory() Memory

	// Export returns the function or memory exported under the given name, or an *ExportNotFoundError.
	Export(name string) (Extern, error)

	// ExportedFunction returns a function exported from this module or nil if it wasn't.
	ExportedFunction(name string) Function

	// ExportedMemory returns a memory exported from this module or nil if it wasn't.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns the current value of a global exported from this module, or false if it wasn't.
	ExportedGlobal(name string) (ValueType, uint64, bool)

	// Closer releases resources allocated for this Module. Calls after Close fail.
	Closer
}

// Closer closes a resource.
//
// Note: This is an interface for decoupling, not third-party implementations. All implementations are in wasmcore.
type Closer interface {
	// Close closes the resource.
	Close(context.Context) error
}

// Function is a WebAssembly function exported from an instantiated module (wasmcore.Runtime InstantiateModule).
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-func
type Function interface {
	Extern

	// Name is the export name this function was resolved with.
	Name() string

	// ParamTypes are the possibly empty sequence of value types accepted by a function with this signature.
	// See ValueType documentation for encoding rules.
	ParamTypes() []ValueType

	// ResultTypes are the possibly empty sequence of value types returned by a function with this signature.
	// See ValueType documentation for decoding rules.
	ResultTypes() []ValueType

	// Call invokes the function with parameters encoded according to ParamTypes. Results are encoded according to
	// ResultTypes. An error is returned for any failure invoking the function including signature mismatch.
	//
	// Note: When the context is nil, it defaults to context.Background.
	// Note: If Module.Close was invoked during this call, the error returned may be a TrapError.
	//
	// Errors:
	//   - *ArityMismatchError when len(params) != len(ParamTypes())
	//   - ErrArgumentType when an i32 or f32 parameter has non-zero upper 32 bits
	//   - *TrapError when execution faulted
	Call(ctx context.Context, params ...uint64) ([]uint64, error)

	// CallValues is like Call, except each parameter carries its type which must equal the declared one.
	CallValues(ctx context.Context, params ...Value) ([]Value, error)
}

// GoModuleFunction is a host function implemented in Go, which is imported by a WebAssembly module.
//
// The stack holds the parameters on entry and must hold the results on return. Its length is
// max(len(params), len(results)).
//
// mod is the instance importing the function, so its Memory can be read and written.
type GoModuleFunction func(ctx context.Context, mod Module, stack []uint64)

// Memory allows restricted access to a module's memory. Notably, this does not allow growing.
//
// Note: All functions accept a uint32 offset and return ok false or an error if the access is out of range. This
// matches the bounds discipline of memory instructions, except that no trap is raised.
// Note: This is an interface for decoupling, not third-party implementations. All implementations are in wasmcore.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#storage%E2%91%A0
type Memory interface {
	Extern

	// Size returns the size in bytes available. Ex. If the underlying memory has 1 page: 65536
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#-hrefsyntax-instr-memorymathsfmemorysize%E2%91%A0
	Size() uint32

	// Pages returns the size in 64KiB pages.
	Pages() uint32

	// Grow increases memory by the delta in pages (65536 bytes per page).
	// The return val is the previous memory size in pages, or false if the delta was ignored as it exceeds max
	// memory.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#-hrefsyntax-instr-memorymathsfmemorygrow%E2%91%A0
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// ReadByte reads a single byte from the underlying buffer at the offset or returns false if out of range.
	ReadByte(offset uint32) (byte, bool)

	// ReadUint16Le reads a uint16 in little-endian encoding from the underlying buffer at the offset in or returns
	// false if out of range.
	ReadUint16Le(offset uint32) (uint16, bool)

	// ReadUint32Le reads a uint32 in little-endian encoding from the underlying buffer at the offset in or returns
	// false if out of range.
	ReadUint32Le(offset uint32) (uint32, bool)

	// ReadFloat32Le reads a float32 from 32 IEEE 754 little-endian encoded bits in the underlying buffer at the offset
	// or returns false if out of range.
	ReadFloat32Le(offset uint32) (float32, bool)

	// ReadUint64Le reads a uint64 in little-endian encoding from the underlying buffer at the offset or returns false
	// if out of range.
	ReadUint64Le(offset uint32) (uint64, bool)

	// ReadFloat64Le reads a float64 from 64 IEEE 754 little-endian encoded bits in the underlying buffer at the offset
	// or returns false if out of range.
	ReadFloat64Le(offset uint32) (float64, bool)

	// Read returns a copy of byteCount bytes from the underlying buffer at the offset or an *OutOfBoundsError if
	// out of range.
	//
	// Note: The result does not alias memory, so later writes by WebAssembly are not visible through it.
	Read(offset, byteCount uint32) ([]byte, error)

	// WriteByte writes a single byte to the underlying buffer at the offset in or returns false if out of range.
	WriteByte(offset uint32, v byte) bool

	// WriteUint16Le writes the value in little-endian encoding to the underlying buffer at the offset in or returns
	// false if out of range.
	WriteUint16Le(offset uint32, v uint16) bool

	// WriteUint32Le writes the value in little-endian encoding to the underlying buffer at the offset in or returns
	// false if out of range.
	WriteUint32Le(offset, v uint32) bool

	// WriteFloat32Le writes the value in 32 IEEE 754 little-endian encoded bits to the underlying buffer at the offset
	// or returns false if out of range.
	WriteFloat32Le(offset uint32, v float32) bool

	// WriteUint64Le writes the value in little-endian encoding to the underlying buffer at the offset in or returns
	// false if out of range.
	WriteUint64Le(offset uint32, v uint64) bool

	// WriteFloat64Le writes the value in 64 IEEE 754 little-endian encoded bits to the underlying buffer at the offset
	// or returns false if out of range.
	WriteFloat64Le(offset uint32, v float64) bool

	// Write writes the slice to the underlying buffer at the offset or returns an *OutOfBoundsError if out of range.
	// Nothing is written when the range doesn't fit.
	Write(offset uint32, v []byte) error
}

// Value is a typed WebAssembly value, used by Function.CallValues.
type Value struct {
	Type ValueType
	Bits uint64
}

// ValueI32 returns an i32 Value.
func ValueI32(v int32) Value { return Value{Type: ValueTypeI32, Bits: EncodeI32(v)} }

// ValueI64 returns an i64 Value.
func ValueI64(v int64) Value { return Value{Type: ValueTypeI64, Bits: EncodeI64(v)} }

// ValueF32 returns an f32 Value.
func ValueF32(v float32) Value { return Value{Type: ValueTypeF32, Bits: EncodeF32(v)} }

// ValueF64 returns an f64 Value.
func ValueF64(v float64) Value { return Value{Type: ValueTypeF64, Bits: EncodeF64(v)} }

func (v Value) String() string {
	switch v.Type {
	case ValueTypeI32:
		return fmt.Sprintf("i32(%d)", int32(v.Bits))
	case ValueTypeI64:
		return fmt.Sprintf("i64(%d)", int64(v.Bits))
	case ValueTypeF32:
		return fmt.Sprintf("f32(%g)", DecodeF32(v.Bits))
	case ValueTypeF64:
		return fmt.Sprintf("f64(%g)", DecodeF64(v.Bits))
	}
	return fmt.Sprintf("unknown(%#x)", v.Bits)
}

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 {
	return uint64(uint32(input))
}

// EncodeU32 encodes the input as a ValueTypeI32.
func EncodeU32(input uint32) uint64 {
	return uint64(input)
}

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 {
	return uint64(input)
}

// EncodeF32 encodes the input as a ValueTypeF32.
//
// See DecodeF32
func EncodeF32(input float32) uint64 {
	return uint64(math.Float32bits(input))
}

// DecodeF32 decodes the input as a ValueTypeF32.
//
// See EncodeF32
func DecodeF32(input uint64) float32 {
	return math.Float32frombits(uint32(input))
}

// EncodeF64 encodes the input as a ValueTypeF64.
//
// See DecodeF64
func EncodeF64(input float64) uint64 {
	return math.Float64bits(input)
}

// DecodeF64 decodes the input as a ValueTypeF64.
//
// See EncodeF64
func DecodeF64(input uint64) float64 {
	return math.Float64frombits(input)
}
