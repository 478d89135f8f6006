// Package wasmdebug contains utilities used to give consistent search keys between stack traces and error messages.
// Note: This is named wasmdebug to avoid conflicts with the normal go module.
// Note: This only imports "api" as importing "wasm" would create a cyclic dependency.
package wasmdebug

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/tetratelabs/wasmcore/api"
)

// FuncName returns the naming convention of "moduleName.funcName".
//
//   - moduleName is the possibly empty name the module was instantiated with.
//   - funcName is the name in the Custom Name section.
//   - funcIdx is the position in the function index, prefixed with
//     imported functions.
//
// Note: "moduleName.$funcIdx" is used when the funcName is empty, as commonly
// the case in TinyGo.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	var ret strings.Builder

	// Start module.function
	ret.WriteString(moduleName)
	ret.WriteByte('.')
	if funcName == "" {
		ret.WriteByte('$')
		ret.WriteString(strconv.Itoa(int(funcIdx)))
	} else {
		ret.WriteString(funcName)
	}

	return ret.String()
}

// signature returns a formatted signature similar to how it is defined in Go.
//
// * paramTypes should be from wasm.FunctionType
// * resultTypes should be from wasm.FunctionType
func signature(funcName string, paramTypes []api.ValueType, resultTypes []api.ValueType) string {
	var ret strings.Builder
	ret.WriteString(funcName)

	// Start params
	ret.WriteByte('(')
	paramCount := len(paramTypes)
	switch paramCount {
	case 0:
	case 1:
		ret.WriteString(api.ValueTypeName(paramTypes[0]))
	default:
		ret.WriteString(api.ValueTypeName(paramTypes[0]))
		for _, vt := range paramTypes[1:] {
			ret.WriteByte(',')
			ret.WriteString(api.ValueTypeName(vt))
		}
	}
	ret.WriteByte(')')

	// Start results
	resultCount := len(resultTypes)
	switch resultCount {
	case 0:
	case 1:
		ret.WriteByte(' ')
		ret.WriteString(api.ValueTypeName(resultTypes[0]))
	default: // As this is used for errors, don't panic if there are multiple returns, even if that's invalid!
		ret.WriteByte(' ')
		ret.WriteByte('(')
		ret.WriteString(api.ValueTypeName(resultTypes[0]))
		for _, vt := range resultTypes[1:] {
			ret.WriteByte(',')
			ret.WriteString(api.ValueTypeName(vt))
		}
		ret.WriteByte(')')
	}

	return ret.String()
}

// ErrorBuilder helps build consistent errors, particularly adding a WASM stack trace.
//
// AddFrame should be called beginning at the frame that panicked until no more frames exist. Once done, call FromRecovered.
type ErrorBuilder interface {
	// AddFrame adds the next frame.
	//
	// * funcName should be from FuncName
	// * paramTypes should be from wasm.FunctionType
	// * resultTypes should be from wasm.FunctionType
	//
	// Note: paramTypes and resultTypes are present because signature misunderstanding, mismatch or overflow are common.
	AddFrame(funcName string, paramTypes, resultTypes []api.ValueType)

	// FromRecovered returns an *api.TrapError with the wasm stack trace. recovered is the value passed to panic.
	FromRecovered(recovered interface{}) error
}

// MaxFrames is the maximum number of frames kept in a stack trace.
const MaxFrames = 30

// GoRuntimeErrorTracePrefix is the prefix of the Go stack included when a host function hits a Go runtime error.
const GoRuntimeErrorTracePrefix = "Go runtime stack trace:"

// NewErrorBuilder returns a new ErrorBuilder.
func NewErrorBuilder() ErrorBuilder {
	return &stackTrace{}
}

type stackTrace struct {
	// frameCount is the number of stack frame currently pushed into lines.
	frameCount int
	// lines contains the stack trace and possibly the inlined source code information.
	lines []string
}

// FromRecovered implements ErrorBuilder.FromRecovered
func (s *stackTrace) FromRecovered(recovered interface{}) error {
	if trap, ok := recovered.(*api.TrapError); ok {
		// A nested call already built a trace.
		return trap
	}

	var cause error
	switch r := recovered.(type) {
	case runtime.Error:
		cause = &goRuntimeError{err: r, stack: string(debug.Stack())}
	case error:
		if isRuntimeErr(r) {
			cause = r
		} else {
			cause = &recoveredError{err: r}
		}
	default:
		cause = &recoveredError{err: fmt.Errorf("%v", r)}
	}
	return &api.TrapError{Err: cause, StackTrace: s.lines}
}

// AddFrame implements ErrorBuilder.AddFrame
func (s *stackTrace) AddFrame(funcName string, paramTypes, resultTypes []api.ValueType) {
	if s.frameCount == MaxFrames {
		return
	}
	s.frameCount++
	s.lines = append(s.lines, signature(funcName, paramTypes, resultTypes))
	if s.frameCount == MaxFrames {
		s.lines = append(s.lines, "... maybe followed by omitted frames")
	}
}

func isRuntimeErr(err error) bool {
	for _, target := range []error{
		api.ErrRuntimeStackOverflow,
		api.ErrRuntimeInvalidConversionToInteger,
		api.ErrRuntimeIntegerOverflow,
		api.ErrRuntimeIntegerDivideByZero,
		api.ErrRuntimeUnreachable,
		api.ErrRuntimeOutOfBoundsMemoryAccess,
		api.ErrRuntimeInvalidTableAccess,
		api.ErrRuntimeIndirectCallTypeMismatch,
		api.ErrRuntimeFuelExhausted,
		api.ErrRuntimeCallCanceled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// recoveredError is what a host function panicked with.
type recoveredError struct {
	err error
}

func (e *recoveredError) Error() string {
	return e.err.Error() + " (recovered by wasmcore)"
}

func (e *recoveredError) Unwrap() error { return e.err }

// goRuntimeError is a Go runtime panic, such as a nil dereference, inside a host function.
type goRuntimeError struct {
	err   runtime.Error
	stack string
}

func (e *goRuntimeError) Error() string {
	return e.err.Error() + " (recovered by wasmcore)\n\n" + GoRuntimeErrorTracePrefix + "\n\n" + e.stack
}

func (e *goRuntimeError) Unwrap() error { return e.err }
