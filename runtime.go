package wasmcore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/engine/interpreter"
	"github.com/tetratelabs/wasmcore/internal/wasm"
	"github.com/tetratelabs/wasmcore/internal/wasm/binary"
)

// Runtime allows embedding of WebAssembly modules.
//
// The below is an example of basic initialization:
//
//	ctx := context.Background()
//	r := wasmcore.NewRuntime(ctx)
//	defer r.Close(ctx) // This closes everything this Runtime created.
//
//	mod, _ := r.InstantiateModuleFromBinary(ctx, wasm)
//
// Note: Closing the Runtime closes every CompiledModule and api.Module it created.
type Runtime interface {
	// CompileModule decodes the WebAssembly binary (%.wasm), validates it and lowers its functions for execution, or
	// errs if invalid.
	//
	// Errors:
	//   - *api.MalformedBinaryError when the binary format is violated
	//   - *api.ValidationError when a function body or module declaration isn't well-typed
	//
	// Note: A CompiledModule can be instantiated any number of times. Instances share nothing but the code.
	CompileModule(ctx context.Context, binary []byte) (CompiledModule, error)

	// InstantiateModule instantiates the compiled module, resolving its function imports from the given host
	// functions. The imports may be nil when the module has none.
	//
	// Errors are *api.InstantiationError. Causes include missing or mismatched imports, a memory minimum above the
	// configured limit, segments out of range and a trapping start function.
	InstantiateModule(ctx context.Context, compiled CompiledModule, imports Imports) (api.Module, error)

	// InstantiateModuleFromBinary instantiates a module from the WebAssembly binary (%.wasm) with no imports.
	//
	// Here's an example:
	//	ctx := context.Background()
	//	r := wasmcore.NewRuntime(ctx)
	//	defer r.Close(ctx) // This closes everything this Runtime created.
	//
	//	module, _ := r.InstantiateModuleFromBinary(ctx, wasm)
	//
	// Note: This is a convenience utility that chains CompileModule with InstantiateModule. To instantiate the same
	// source multiple times, use CompileModule as InstantiateModule avoids redundant decoding and/or compilation.
	InstantiateModuleFromBinary(ctx context.Context, binary []byte) (api.Module, error)

	// Closer closes all compiled code and instantiated modules. Calls after Close fail with api.ErrClosed.
	api.Closer
}

// NewRuntime returns a runtime with a configuration assigned by NewRuntimeConfig.
func NewRuntime(ctx context.Context) Runtime {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration.
func NewRuntimeWithConfig(ctx context.Context, rConfig RuntimeConfig) Runtime {
	config, ok := rConfig.(*runtimeConfig)
	if !ok {
		panic(fmt.Errorf("unsupported wasmcore.RuntimeConfig implementation: %#v", rConfig))
	}
	logger := config.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := interpreter.NewEngine(ctx, config.interpreterConfig())
	return &runtime{
		store:            wasm.NewStore(config.enabledFeatures, engine, config.memoryLimitPages, logger),
		enabledFeatures:  config.enabledFeatures,
		memoryLimitPages: config.memoryLimitPages,
		logger:           logger,
	}
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	store            *wasm.Store
	enabledFeatures  api.CoreFeatures
	memoryLimitPages uint32
	logger           *zap.Logger
	closed           atomic.Bool
}

// CompileModule implements Runtime.CompileModule
func (r *runtime) CompileModule(ctx context.Context, binary []byte) (CompiledModule, error) {
	if r.closed.Load() {
		return nil, api.ErrClosed
	}
	if binary == nil {
		return nil, errors.New("binary == nil")
	}

	internal, err := r.decodeAndValidate(binary)
	if err != nil {
		r.logger.Debug("compilation failed", zap.Error(err))
		return nil, err
	}

	if err = r.store.Engine.CompileModule(ctx, internal); err != nil {
		return nil, err
	}

	c := &compiledModule{module: internal, compiledEngine: r.store.Engine}
	if internal.NameSection != nil {
		c.name = internal.NameSection.ModuleName
	}
	return c, nil
}

func (r *runtime) decodeAndValidate(bin []byte) (*wasm.Module, error) {
	internal, err := binary.DecodeModule(bin, r.enabledFeatures, r.memoryLimitPages)
	if err != nil {
		return nil, err
	}
	if err = internal.Validate(r.enabledFeatures); err != nil {
		return nil, err
	}
	return internal, nil
}

// InstantiateModuleFromBinary implements Runtime.InstantiateModuleFromBinary
func (r *runtime) InstantiateModuleFromBinary(ctx context.Context, binary []byte) (api.Module, error) {
	code, err := r.CompileModule(ctx, binary)
	if err != nil {
		return nil, err
	}
	mod, err := r.InstantiateModule(ctx, code, nil)
	if err != nil {
		_ = code.Close(ctx)
		return nil, err
	}
	// The compiled code is only reachable through this module, so release it when the module closes.
	return &moduleWithCompiled{Module: mod, compiled: code}, nil
}

// InstantiateModule implements Runtime.InstantiateModule
func (r *runtime) InstantiateModule(ctx context.Context, compiled CompiledModule, imports Imports) (api.Module, error) {
	if r.closed.Load() {
		return nil, api.ErrClosed
	}
	code, ok := compiled.(*compiledModule)
	if !ok {
		panic(fmt.Errorf("unsupported wasmcore.CompiledModule implementation: %#v", compiled))
	}
	if code.closed.Load() {
		return nil, fmt.Errorf("module[%s]: %w", code.name, api.ErrClosed)
	}
	return r.store.Instantiate(ctx, code.module, code.name, imports.hostModules())
}

// Close implements api.Closer embedded in Runtime.
func (r *runtime) Close(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.store.CloseWithContext(ctx)
}

// moduleWithCompiled closes its compiled module after itself.
type moduleWithCompiled struct {
	api.Module
	compiled CompiledModule
}

// Close implements api.Module Close
func (m *moduleWithCompiled) Close(ctx context.Context) error {
	err := m.Module.Close(ctx)
	if cerr := m.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
