// Package vs runs the same modules against wasmcore and other runtimes, so their observable behavior can be
// compared. Each runtime is an implementation of Runtime; cgo ones live in subpackages.
package vs

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/tetratelabs/wasmcore"
	"github.com/tetratelabs/wasmcore/api"
)

type RuntimeConfig struct {
	Name       string
	ModuleName string
	ModuleWasm []byte
	FuncNames  []string
	// LogFn requires the implementation to export a function "env.log" which accepts i32i32_v.
	// The implementation invokes this with a byte slice allocated from the offset, length pair.
	LogFn func([]byte) error
}

type Runtime interface {
	Name() string
	Compile(context.Context, *RuntimeConfig) error
	Instantiate(context.Context, *RuntimeConfig) (Module, error)
	Close(context.Context) error
}

type Module interface {
	CallV_V(ctx context.Context, funcName string) error
	CallI32I32_V(ctx context.Context, funcName string, x, y uint32) error
	CallI32I32I32_V(ctx context.Context, funcName string, x, y, z uint32) error
	CallI32I32_I32(ctx context.Context, funcName string, x, y uint32) (uint32, error)
	CallI64_I64(ctx context.Context, funcName string, param uint64) (uint64, error)
	WriteMemory(ctx context.Context, offset uint32, bytes []byte) error
	ReadMemory(ctx context.Context, offset, byteCount uint32) ([]byte, error)
	Close(context.Context) error
}

// errNotExported is returned by Instantiate when one of RuntimeConfig.FuncNames isn't a function export.
func errNotExported(funcName string) error {
	return fmt.Errorf("%s is not an exported function", funcName)
}

func NewWasmcoreRuntime() Runtime {
	return &wasmcoreRuntime{}
}

type wasmcoreRuntime struct {
	runtime  wasmcore.Runtime
	compiled wasmcore.CompiledModule
	imports  wasmcore.Imports
}

type wasmcoreModule struct {
	mod   api.Module
	funcs map[string]api.Function
}

func (r *wasmcoreRuntime) Name() string {
	return "wasmcore"
}

func (r *wasmcoreRuntime) Compile(ctx context.Context, cfg *RuntimeConfig) (err error) {
	r.runtime = wasmcore.NewRuntime(ctx)
	if logFn := cfg.LogFn; logFn != nil {
		r.imports = wasmcore.Imports{"env": {"log": &wasmcore.HostFunction{
			Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Fn: func(_ context.Context, m api.Module, stack []uint64) {
				buf, err := m.Memory().Read(uint32(stack[0]), uint32(stack[1]))
				if err == nil {
					err = logFn(buf)
				}
				if err != nil {
					panic(err)
				}
			},
		}}}
	}
	r.compiled, err = r.runtime.CompileModule(ctx, cfg.ModuleWasm)
	return
}

func (r *wasmcoreRuntime) Instantiate(ctx context.Context, cfg *RuntimeConfig) (Module, error) {
	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, r.imports)
	if err != nil {
		return nil, err
	}
	m := &wasmcoreModule{mod: mod, funcs: map[string]api.Function{}}
	for _, funcName := range cfg.FuncNames {
		fn := mod.ExportedFunction(funcName)
		if fn == nil {
			_ = mod.Close(ctx)
			return nil, errNotExported(funcName)
		}
		m.funcs[funcName] = fn
	}
	return m, nil
}

func (r *wasmcoreRuntime) Close(ctx context.Context) (err error) {
	if rt := r.runtime; rt != nil {
		err = rt.Close(ctx)
	}
	r.runtime, r.compiled = nil, nil
	return
}

func (m *wasmcoreModule) CallV_V(ctx context.Context, funcName string) (err error) {
	_, err = m.funcs[funcName].Call(ctx)
	return
}

func (m *wasmcoreModule) CallI32I32_V(ctx context.Context, funcName string, x, y uint32) (err error) {
	_, err = m.funcs[funcName].Call(ctx, uint64(x), uint64(y))
	return
}

func (m *wasmcoreModule) CallI32I32I32_V(ctx context.Context, funcName string, x, y, z uint32) (err error) {
	_, err = m.funcs[funcName].Call(ctx, uint64(x), uint64(y), uint64(z))
	return
}

func (m *wasmcoreModule) CallI32I32_I32(ctx context.Context, funcName string, x, y uint32) (uint32, error) {
	results, err := m.funcs[funcName].Call(ctx, uint64(x), uint64(y))
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

func (m *wasmcoreModule) CallI64_I64(ctx context.Context, funcName string, param uint64) (uint64, error) {
	results, err := m.funcs[funcName].Call(ctx, param)
	if err != nil {
		return 0, err
	}
	return results[0], nil
}

func (m *wasmcoreModule) WriteMemory(_ context.Context, offset uint32, bytes []byte) error {
	return m.mod.Memory().Write(offset, bytes)
}

func (m *wasmcoreModule) ReadMemory(_ context.Context, offset, byteCount uint32) ([]byte, error) {
	return m.mod.Memory().Read(offset, byteCount)
}

func (m *wasmcoreModule) Close(ctx context.Context) (err error) {
	if mod := m.mod; mod != nil {
		err = mod.Close(ctx)
	}
	m.mod = nil
	return
}

func NewWazeroInterpreterRuntime() Runtime {
	return &wazeroRuntime{name: "wazero-interpreter", config: wazero.NewRuntimeConfigInterpreter()}
}

type wazeroRuntime struct {
	name     string
	config   wazero.RuntimeConfig
	runtime  wazero.Runtime
	logFn    func([]byte) error
	compiled wazero.CompiledModule
	// instances counts instantiations, as wazero requires module names to be unique.
	instances int
}

type wazeroModule struct {
	mod   wazeroapi.Module
	funcs map[string]wazeroapi.Function
}

func (r *wazeroRuntime) Name() string {
	return r.name
}

func (r *wazeroRuntime) log(_ context.Context, m wazeroapi.Module, offset, byteCount uint32) {
	buf, ok := m.Memory().Read(offset, byteCount)
	if !ok {
		panic("out of memory reading log buffer")
	}
	if err := r.logFn(buf); err != nil {
		panic(err)
	}
}

func (r *wazeroRuntime) Compile(ctx context.Context, cfg *RuntimeConfig) (err error) {
	r.runtime = wazero.NewRuntimeWithConfig(ctx, r.config)
	if cfg.LogFn != nil {
		r.logFn = cfg.LogFn
		if _, err = r.runtime.NewHostModuleBuilder("env").
			NewFunctionBuilder().WithFunc(r.log).Export("log").
			Instantiate(ctx); err != nil {
			return err
		}
	}
	r.compiled, err = r.runtime.CompileModule(ctx, cfg.ModuleWasm)
	return
}

func (r *wazeroRuntime) Instantiate(ctx context.Context, cfg *RuntimeConfig) (Module, error) {
	r.instances++
	name := fmt.Sprintf("%s[%d]", cfg.ModuleName, r.instances)
	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, err
	}
	m := &wazeroModule{mod: mod, funcs: map[string]wazeroapi.Function{}}
	for _, funcName := range cfg.FuncNames {
		fn := mod.ExportedFunction(funcName)
		if fn == nil {
			_ = mod.Close(ctx)
			return nil, errNotExported(funcName)
		}
		m.funcs[funcName] = fn
	}
	return m, nil
}

func (r *wazeroRuntime) Close(ctx context.Context) (err error) {
	if rt := r.runtime; rt != nil {
		err = rt.Close(ctx)
	}
	r.runtime, r.compiled = nil, nil
	return
}

func (m *wazeroModule) CallV_V(ctx context.Context, funcName string) (err error) {
	_, err = m.funcs[funcName].Call(ctx)
	return
}

func (m *wazeroModule) CallI32I32_V(ctx context.Context, funcName string, x, y uint32) (err error) {
	_, err = m.funcs[funcName].Call(ctx, uint64(x), uint64(y))
	return
}

func (m *wazeroModule) CallI32I32I32_V(ctx context.Context, funcName string, x, y, z uint32) (err error) {
	_, err = m.funcs[funcName].Call(ctx, uint64(x), uint64(y), uint64(z))
	return
}

func (m *wazeroModule) CallI32I32_I32(ctx context.Context, funcName string, x, y uint32) (uint32, error) {
	results, err := m.funcs[funcName].Call(ctx, uint64(x), uint64(y))
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

func (m *wazeroModule) CallI64_I64(ctx context.Context, funcName string, param uint64) (uint64, error) {
	results, err := m.funcs[funcName].Call(ctx, param)
	if err != nil {
		return 0, err
	}
	return results[0], nil
}

func (m *wazeroModule) WriteMemory(_ context.Context, offset uint32, bytes []byte) error {
	if !m.mod.Memory().Write(offset, bytes) {
		return errors.New("out of memory writing bytes")
	}
	return nil
}

func (m *wazeroModule) ReadMemory(_ context.Context, offset, byteCount uint32) ([]byte, error) {
	buf, ok := m.mod.Memory().Read(offset, byteCount)
	if !ok {
		return nil, errors.New("out of memory reading bytes")
	}
	// wazero returns a view of memory
	return append([]byte(nil), buf...), nil
}

func (m *wazeroModule) Close(ctx context.Context) (err error) {
	if mod := m.mod; mod != nil {
		err = mod.Close(ctx)
	}
	m.mod = nil
	return
}
