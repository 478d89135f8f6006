package api

import (
	"errors"
	"fmt"
	"strings"
)

// Each error category has a sentinel so callers can classify a failure with errors.Is, while errors.As recovers the
// typed error carrying its details.
var (
	// ErrMalformedBinary is matched by *MalformedBinaryError.
	ErrMalformedBinary = errors.New("malformed binary")
	// ErrValidation is matched by *ValidationError.
	ErrValidation = errors.New("invalid module")
	// ErrInstantiation is matched by *InstantiationError.
	ErrInstantiation = errors.New("instantiation failed")
	// ErrExportNotFound is matched by *ExportNotFoundError.
	ErrExportNotFound = errors.New("export not found")
	// ErrOutOfBounds is matched by *OutOfBoundsError.
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrArityMismatch is matched by *ArityMismatchError.
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrArgumentType is returned when a parameter doesn't fit the declared value type.
	ErrArgumentType = errors.New("argument type mismatch")
	// ErrTrap is matched by *TrapError.
	ErrTrap = errors.New("trap")
	// ErrClosed is returned when calling into a closed module or runtime.
	ErrClosed = errors.New("closed")
)

// The below are causes of a TrapError. They are raised by the Engine during the execution of Wasm functions, and
// abort the current call. The instance stays usable.
var (
	// ErrRuntimeStackOverflow indicates that there are too many function calls, and the Engine terminated the
	// execution.
	ErrRuntimeStackOverflow = errors.New("stack overflow")
	// ErrRuntimeInvalidConversionToInteger indicates the Wasm function tries to convert NaN floating point value to
	// integers during trunc variant instructions.
	ErrRuntimeInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrRuntimeIntegerOverflow indicates that an integer arithmetic resulted in overflow value. For example, when the
	// program tried to truncate a float value which doesn't fit in the range of target integer.
	ErrRuntimeIntegerOverflow = errors.New("integer overflow")
	// ErrRuntimeIntegerDivideByZero indicates that an integer div or rem instructions was executed with 0 as the
	// divisor.
	ErrRuntimeIntegerDivideByZero = errors.New("integer divide by zero")
	// ErrRuntimeUnreachable means "unreachable" instruction was executed by the program.
	ErrRuntimeUnreachable = errors.New("unreachable")
	// ErrRuntimeOutOfBoundsMemoryAccess indicates that the program tried to access the region beyond the linear
	// memory.
	ErrRuntimeOutOfBoundsMemoryAccess = errors.New("out of bounds memory access")
	// ErrRuntimeInvalidTableAccess means either offset to the table was out of bounds of table, or the target element
	// in the table was uninitialized during call_indirect instruction.
	ErrRuntimeInvalidTableAccess = errors.New("invalid table access")
	// ErrRuntimeIndirectCallTypeMismatch indicates that the type check failed during call_indirect.
	ErrRuntimeIndirectCallTypeMismatch = errors.New("indirect call type mismatch")
	// ErrRuntimeFuelExhausted means the call consumed all fuel configured with RuntimeConfig.WithFuel.
	ErrRuntimeFuelExhausted = errors.New("fuel exhausted")
	// ErrRuntimeCallCanceled means the context of the call was done before it completed. The context's error is
	// also wrapped.
	ErrRuntimeCallCanceled = errors.New("call canceled")
)

// MalformedBinaryError is a structural failure decoding the WebAssembly binary format.
type MalformedBinaryError struct {
	// Offset is the absolute position in the input where decoding failed.
	Offset uint64
	// Expected names the construct being decoded, e.g. "section ID" or "magic number".
	Expected string
	Err      error
}

// Error implements error.
func (e *MalformedBinaryError) Error() string {
	return fmt.Sprintf("malformed binary at offset %#x: %s: %v", e.Offset, e.Expected, e.Err)
}

// Unwrap returns the cause.
func (e *MalformedBinaryError) Unwrap() error { return e.Err }

// Is returns true when target is ErrMalformedBinary.
func (e *MalformedBinaryError) Is(target error) bool { return target == ErrMalformedBinary }

// ValidationError is a type-safety violation found before instantiation.
type ValidationError struct {
	// FuncIndex is the index of the function in the module's index space, or -1 for module-level failures.
	FuncIndex int64
	// Offset is the instruction offset inside the function body. Zero for module-level failures.
	Offset uint64
	Err    error
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.FuncIndex < 0 {
		return fmt.Sprintf("invalid module: %v", e.Err)
	}
	return fmt.Sprintf("invalid function[%d] at offset %#x: %v", e.FuncIndex, e.Offset, e.Err)
}

// Unwrap returns the cause.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is returns true when target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InstantiationError is a failure binding a compiled module to imports and fresh memory.
type InstantiationError struct {
	ModuleName string
	Err        error
}

// Error implements error.
func (e *InstantiationError) Error() string {
	return fmt.Sprintf("module[%s] instantiation failed: %v", e.ModuleName, e.Err)
}

// Unwrap returns the cause.
func (e *InstantiationError) Unwrap() error { return e.Err }

// Is returns true when target is ErrInstantiation.
func (e *InstantiationError) Is(target error) bool { return target == ErrInstantiation }

// ExportNotFoundError is returned by Module.Export when no export has the name.
type ExportNotFoundError struct {
	ModuleName, Name string
}

// Error implements error.
func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("%q is not exported in module %q", e.Name, e.ModuleName)
}

// Is returns true when target is ErrExportNotFound.
func (e *ExportNotFoundError) Is(target error) bool { return target == ErrExportNotFound }

// OutOfBoundsError is a host-initiated memory access past the end of linear memory. Nothing was read or written.
type OutOfBoundsError struct {
	Offset uint32
	Length uint64
	// Size is the memory size in bytes at the time of the access.
	Size uint32
}

// Error implements error.
func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("out of bounds: offset %d length %d exceeds memory size %d", e.Offset, e.Length, e.Size)
}

// Is returns true when target is ErrOutOfBounds.
func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// ArityMismatchError is returned when a function is called with the wrong number of parameters.
type ArityMismatchError struct {
	Name             string
	Expected, Actual int
}

// Error implements error.
func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("expected %d params, but passed %d calling %s", e.Expected, e.Actual, e.Name)
}

// Is returns true when target is ErrArityMismatch.
func (e *ArityMismatchError) Is(target error) bool { return target == ErrArityMismatch }

// TrapError is a runtime fault which aborted a call. Err is one of the ErrRuntime sentinels, or the value a host
// function panicked with.
type TrapError struct {
	Err error
	// StackTrace lists the wasm frames active at the time of the trap, innermost first.
	StackTrace []string
}

// Error implements error.
func (e *TrapError) Error() string {
	var sb strings.Builder
	sb.WriteString("wasm error: ")
	sb.WriteString(e.Err.Error())
	if len(e.StackTrace) > 0 {
		sb.WriteString("\nwasm stack trace:")
		for _, f := range e.StackTrace {
			sb.WriteString("\n\t")
			sb.WriteString(f)
		}
	}
	return sb.String()
}

// Unwrap returns the cause.
func (e *TrapError) Unwrap() error { return e.Err }

// Is returns true when target is ErrTrap.
func (e *TrapError) Is(target error) bool { return target == ErrTrap }
