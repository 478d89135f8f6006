//go:build amd64 && cgo && !windows

package wasmer

import (
	"testing"

	"github.com/tetratelabs/wasmcore/internal/integration_test/vs"
)

func TestReverse(t *testing.T) {
	vs.RunTestReverse(t, newWasmerRuntime)
}

func TestReverse_OutOfBounds(t *testing.T) {
	vs.RunTestReverseOutOfBounds(t, newWasmerRuntime)
}

func TestCaesar(t *testing.T) {
	vs.RunTestCaesar(t, newWasmerRuntime)
}

func TestFactorial(t *testing.T) {
	vs.RunTestFactorial(t, newWasmerRuntime)
}

func TestHostLog(t *testing.T) {
	vs.RunTestHostLog(t, newWasmerRuntime)
}

func TestTraps(t *testing.T) {
	vs.RunTestTraps(t, newWasmerRuntime)
}

func TestDifferential(t *testing.T) {
	vs.RunTestDifferential(t, newWasmerRuntime)
}

func BenchmarkCompile(b *testing.B) {
	vs.RunBenchmarkCompile(b, newWasmerRuntime)
}

func BenchmarkInstantiate(b *testing.B) {
	vs.RunBenchmarkInstantiate(b, newWasmerRuntime)
}

func BenchmarkFactorial_Call(b *testing.B) {
	vs.RunBenchmarkFactorial(b, newWasmerRuntime)
}

func BenchmarkReverse_Call(b *testing.B) {
	vs.RunBenchmarkReverse(b, newWasmerRuntime)
}
