//go:build amd64 && cgo

// Package wasmtime adapts wasmtime-go to vs.Runtime.
package wasmtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go"

	"github.com/tetratelabs/wasmcore/internal/integration_test/vs"
)

func newWasmtimeRuntime() vs.Runtime {
	return &wasmtimeRuntime{}
}

type wasmtimeRuntime struct {
	engine *wasmtime.Engine
	module *wasmtime.Module
}

type wasmtimeModule struct {
	store *wasmtime.Store
	// instance is here because there's no close/destroy function. The only thing is garbage collection.
	instance *wasmtime.Instance
	funcs    map[string]*wasmtime.Func
	logFn    func([]byte) error
	mem      *wasmtime.Memory
}

func (r *wasmtimeRuntime) Name() string {
	return "wasmtime"
}

func (m *wasmtimeModule) log(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	unsafeSlice := m.mem.UnsafeData(m.store)
	offset := args[0].I32()
	byteCount := args[1].I32()
	if err := m.logFn(unsafeSlice[offset : offset+byteCount]); err != nil {
		return nil, wasmtime.NewTrap(err.Error())
	}
	return []wasmtime.Val{}, nil
}

func (r *wasmtimeRuntime) Compile(_ context.Context, cfg *vs.RuntimeConfig) (err error) {
	r.engine = wasmtime.NewEngine()
	r.module, err = wasmtime.NewModule(r.engine, cfg.ModuleWasm)
	return
}

func (r *wasmtimeRuntime) Instantiate(_ context.Context, cfg *vs.RuntimeConfig) (mod vs.Module, err error) {
	// A store per instance, as re-instantiating in one store too many times leads to:
	// >> resource limit exceeded: instance count too high at 10001
	wm := &wasmtimeModule{funcs: map[string]*wasmtime.Func{}}
	wm.store = wasmtime.NewStore(r.engine)

	linker := wasmtime.NewLinker(r.engine)

	// Instantiate the host module, "env", if configured.
	if cfg.LogFn != nil {
		wm.logFn = cfg.LogFn
		if err = linker.Define("env", "log", wasmtime.NewFunc(
			wm.store,
			wasmtime.NewFuncType(
				[]*wasmtime.ValType{
					wasmtime.NewValType(wasmtime.KindI32),
					wasmtime.NewValType(wasmtime.KindI32),
				},
				[]*wasmtime.ValType{},
			),
			wm.log,
		)); err != nil {
			return
		}
	}

	if wm.instance, err = linker.Instantiate(wm.store, r.module); err != nil {
		return
	}

	// Wasmtime does not allow a host function parameter for memory, so you have to manually propagate it.
	if export := wm.instance.GetExport(wm.store, "memory"); export != nil {
		wm.mem = export.Memory()
	}
	if cfg.LogFn != nil && wm.mem == nil {
		err = fmt.Errorf(`"memory" not exported`)
		return
	}

	// Ensure function exports exist.
	for _, funcName := range cfg.FuncNames {
		if fn := wm.instance.GetFunc(wm.store, funcName); fn == nil {
			err = fmt.Errorf("%s is not an exported function", funcName)
			return
		} else {
			wm.funcs[funcName] = fn
		}
	}

	mod = wm
	return
}

func (r *wasmtimeRuntime) Close(_ context.Context) error {
	r.module = nil
	r.engine = nil
	return nil // wasmtime only closes via finalizer
}

func (m *wasmtimeModule) CallV_V(_ context.Context, funcName string) (err error) {
	_, err = m.funcs[funcName].Call(m.store)
	return
}

func (m *wasmtimeModule) CallI32I32_V(_ context.Context, funcName string, x, y uint32) (err error) {
	_, err = m.funcs[funcName].Call(m.store, int32(x), int32(y))
	return
}

func (m *wasmtimeModule) CallI32I32I32_V(_ context.Context, funcName string, x, y, z uint32) (err error) {
	_, err = m.funcs[funcName].Call(m.store, int32(x), int32(y), int32(z))
	return
}

func (m *wasmtimeModule) CallI32I32_I32(_ context.Context, funcName string, x, y uint32) (uint32, error) {
	if result, err := m.funcs[funcName].Call(m.store, int32(x), int32(y)); err != nil {
		return 0, err
	} else {
		return uint32(result.(int32)), nil
	}
}

func (m *wasmtimeModule) CallI64_I64(_ context.Context, funcName string, param uint64) (uint64, error) {
	if result, err := m.funcs[funcName].Call(m.store, int64(param)); err != nil {
		return 0, err
	} else {
		return uint64(result.(int64)), nil
	}
}

func (m *wasmtimeModule) WriteMemory(_ context.Context, offset uint32, bytes []byte) error {
	unsafeSlice := m.mem.UnsafeData(m.store)
	if uint64(offset)+uint64(len(bytes)) > uint64(len(unsafeSlice)) {
		return errors.New("out of memory writing bytes")
	}
	copy(unsafeSlice[offset:], bytes)
	return nil
}

func (m *wasmtimeModule) ReadMemory(_ context.Context, offset, byteCount uint32) ([]byte, error) {
	unsafeSlice := m.mem.UnsafeData(m.store)
	if uint64(offset)+uint64(byteCount) > uint64(len(unsafeSlice)) {
		return nil, errors.New("out of memory reading bytes")
	}
	return append([]byte(nil), unsafeSlice[offset:offset+byteCount]...), nil
}

func (m *wasmtimeModule) Close(_ context.Context) error {
	m.store = nil
	m.instance = nil
	m.funcs = nil
	return nil // wasmtime only closes via finalizer
}
