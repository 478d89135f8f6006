package wasmcore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/engine/interpreter"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// RuntimeConfig controls runtime behavior, with the default implementation as NewRuntimeConfig
//
// The example below limits memory and meters each call:
//
//	rConfig = wasmcore.NewRuntimeConfig().
//		WithMemoryLimitPages(16).
//		WithFuel(1_000_000)
//
// Note: RuntimeConfig is immutable. Each WithXXX function returns a new instance including the corresponding change.
type RuntimeConfig interface {
	// WithCoreFeatures sets the WebAssembly Core specification features this runtime supports. Defaults to
	// api.CoreFeaturesV2.
	//
	// Instruction opcodes of a disabled feature fail CompileModule with an *api.ValidationError.
	WithCoreFeatures(api.CoreFeatures) RuntimeConfig

	// WithMemoryLimitPages overrides the maximum pages allowed per memory. The default is 65536, allowing 4GB total
	// memory per instance. Setting a value larger than the default panics.
	//
	// This limit applies to the declared minimum at instantiation as well as to any growth, whether from the
	// "memory.grow" instruction or api.Memory Grow.
	WithMemoryLimitPages(memoryLimitPages uint32) RuntimeConfig

	// WithCallStackCeiling is the maximum height of the call frame stack. A call exceeding it fails with an
	// *api.TrapError wrapping api.ErrRuntimeStackOverflow. Defaults to 2000, and values above 20000 are treated as
	// 20000.
	WithCallStackCeiling(frames int) RuntimeConfig

	// WithFuel limits how many instructions a single call into an exported function may execute. A call
	// exceeding it fails with an *api.TrapError wrapping api.ErrRuntimeFuelExhausted. Defaults to zero, which
	// disables metering.
	//
	// Note: Fuel is reset on each call, except that a host function calling back into a module spends the fuel left
	// to the call that invoked it. Instructions executed by host functions are not counted.
	WithFuel(fuel uint64) RuntimeConfig

	// WithCloseOnContextDone ensures the executions of functions to be terminated under one of the following
	// circumstances:
	//
	//   - context.Context passed to the Call method of api.Function is canceled during execution.
	//   - context.Context passed to the Call method of api.Function reached timeout during execution.
	//
	// A terminated call fails with an *api.TrapError wrapping api.ErrRuntimeCallCanceled and the context error.
	// The instance stays usable. Defaults to false, as checking the context costs a little on each call and loop
	// iteration.
	WithCloseOnContextDone(bool) RuntimeConfig

	// WithLogger sets the logger for debug events: compilation, instantiation, traps and refused memory growth.
	// Defaults to zap.NewNop.
	WithLogger(*zap.Logger) RuntimeConfig
}

// NewRuntimeConfig returns a RuntimeConfig using the interpreter, with all post-MVP features a C toolchain emits
// by default enabled.
func NewRuntimeConfig() RuntimeConfig {
	return engineLessConfig.clone()
}

type runtimeConfig struct {
	enabledFeatures    api.CoreFeatures
	memoryLimitPages   uint32
	callStackCeiling   int
	fuel               uint64
	closeOnContextDone bool
	logger             *zap.Logger
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &runtimeConfig{
	enabledFeatures:  api.CoreFeaturesV2,
	memoryLimitPages: wasm.MemoryLimitPages,
	callStackCeiling: interpreter.DefaultCallStackCeiling,
}

// clone makes a copy of this runtime config. The logger is shared.
func (c *runtimeConfig) clone() *runtimeConfig {
	ret := *c
	return &ret
}

// WithCoreFeatures implements RuntimeConfig.WithCoreFeatures
func (c *runtimeConfig) WithCoreFeatures(features api.CoreFeatures) RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = features
	return ret
}

// WithMemoryLimitPages implements RuntimeConfig.WithMemoryLimitPages
func (c *runtimeConfig) WithMemoryLimitPages(memoryLimitPages uint32) RuntimeConfig {
	// This panics instead of returning an error as it is unlikely.
	if memoryLimitPages > wasm.MemoryLimitPages {
		panic(fmt.Errorf("memoryLimitPages invalid: %d > %d", memoryLimitPages, wasm.MemoryLimitPages))
	}
	ret := c.clone()
	ret.memoryLimitPages = memoryLimitPages
	return ret
}

// WithCallStackCeiling implements RuntimeConfig.WithCallStackCeiling
func (c *runtimeConfig) WithCallStackCeiling(frames int) RuntimeConfig {
	ret := c.clone()
	ret.callStackCeiling = frames
	return ret
}

// WithFuel implements RuntimeConfig.WithFuel
func (c *runtimeConfig) WithFuel(fuel uint64) RuntimeConfig {
	ret := c.clone()
	ret.fuel = fuel
	return ret
}

// WithCloseOnContextDone implements RuntimeConfig.WithCloseOnContextDone
func (c *runtimeConfig) WithCloseOnContextDone(closeOnContextDone bool) RuntimeConfig {
	ret := c.clone()
	ret.closeOnContextDone = closeOnContextDone
	return ret
}

// WithLogger implements RuntimeConfig.WithLogger
func (c *runtimeConfig) WithLogger(logger *zap.Logger) RuntimeConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// interpreterConfig is the engine configuration derived from this runtime config.
func (c *runtimeConfig) interpreterConfig() interpreter.Config {
	return interpreter.Config{
		CallStackCeiling:   c.callStackCeiling,
		Fuel:               c.fuel,
		CloseOnContextDone: c.closeOnContextDone,
		Logger:             c.logger,
	}
}
