package wasm

import "context"

// Engine is a Store-scoped mechanism to compile functions declared or imported by a module.
// This is a top-level type implemented by an interpreter.
type Engine interface {
	// CompileModule implements the same method as documented on wasm.Engine.
	//
	// Note: Input parameters must be pre-validated with wasm.Module Validate, to ensure no fields are invalid
	// due to reasons such as out-of-bounds.
	CompileModule(ctx context.Context, module *Module) error

	// CompiledModuleCount is exported for testing, to track the size of the compilation cache.
	CompiledModuleCount() uint32

	// DeleteCompiledModule releases compilation caches for the given module (source).
	// Note: it is safe to call this function for a module from which module instances are instantiated even when these
	// module instances have outstanding calls.
	DeleteCompiledModule(module *Module)

	// NewModuleEngine binds the compiled code of module to instance, returning the ModuleEngine used for its calls.
	// The module must have been compiled with CompileModule.
	NewModuleEngine(module *Module, instance *ModuleInstance) (ModuleEngine, error)

	// Close releases all compiled modules.
	Close() error
}

// ModuleEngine implements function calls for a given module.
type ModuleEngine interface {
	// Call invokes the function at funcIndex in the function index namespace with the given raw parameters, returning
	// its raw results. Faults are returned as *api.TrapError.
	//
	// Note: Parameters are already checked against the function type.
	Call(ctx context.Context, funcIndex Index, params []uint64) ([]uint64, error)
}
