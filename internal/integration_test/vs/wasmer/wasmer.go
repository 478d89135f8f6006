//go:build amd64 && cgo && !windows

// Package wasmer adapts wasmer-go to vs.Runtime.
package wasmer

import (
	"context"
	"errors"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/tetratelabs/wasmcore/internal/integration_test/vs"
)

func newWasmerRuntime() vs.Runtime {
	return &wasmerRuntime{}
}

type wasmerRuntime struct {
	engine *wasmer.Engine
	bin    []byte
}

type wasmerModule struct {
	store    *wasmer.Store
	module   *wasmer.Module
	instance *wasmer.Instance
	funcs    map[string]*wasmer.Function
	logFn    func([]byte) error
	mem      *wasmer.Memory
}

func (r *wasmerRuntime) Name() string {
	return "wasmer"
}

func (m *wasmerModule) log(args []wasmer.Value) ([]wasmer.Value, error) {
	unsafeSlice := m.mem.Data()
	offset := args[0].I32()
	byteCount := args[1].I32()
	if err := m.logFn(unsafeSlice[offset : offset+byteCount]); err != nil {
		return nil, err
	}
	return []wasmer.Value{}, nil
}

func (r *wasmerRuntime) Compile(_ context.Context, cfg *vs.RuntimeConfig) error {
	r.engine = wasmer.NewEngine()
	// Modules are bound to a store, so validate here and compile again per instance.
	if err := wasmer.ValidateModule(wasmer.NewStore(r.engine), cfg.ModuleWasm); err != nil {
		return err
	}
	r.bin = cfg.ModuleWasm
	return nil
}

func (r *wasmerRuntime) Instantiate(_ context.Context, cfg *vs.RuntimeConfig) (mod vs.Module, err error) {
	// A store per instance, as re-instantiating in one store too many times leads to:
	// >> resource limit exceeded: instance count too high at 10001
	wm := &wasmerModule{funcs: map[string]*wasmer.Function{}}
	wm.store = wasmer.NewStore(r.engine)

	if wm.module, err = wasmer.NewModule(wm.store, r.bin); err != nil {
		return
	}

	importObject := wasmer.NewImportObject()

	// Instantiate the host module, "env", if configured.
	if cfg.LogFn != nil {
		wm.logFn = cfg.LogFn
		importObject.Register(
			"env",
			map[string]wasmer.IntoExtern{
				"log": wasmer.NewFunction(
					wm.store,
					wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32), wasmer.NewValueTypes()),
					wm.log,
				),
			},
		)
	}

	// TODO: wasmer_module_set_name is not exposed in wasmer-go

	if wm.instance, err = wasmer.NewInstance(wm.module, importObject); err != nil {
		return
	}

	// Wasmer does not allow a host function parameter for memory, so you have to manually propagate it.
	if mem, memErr := wm.instance.Exports.GetMemory("memory"); memErr == nil {
		wm.mem = mem
	} else if cfg.LogFn != nil {
		err = memErr
		return
	}

	// Ensure function exports exist.
	for _, funcName := range cfg.FuncNames {
		var fn *wasmer.Function
		if fn, err = wm.instance.Exports.GetRawFunction(funcName); err != nil {
			return
		} else if fn == nil {
			return nil, fmt.Errorf("%s is not an exported function", funcName)
		} else {
			wm.funcs[funcName] = fn
		}
	}
	mod = wm
	return
}

func (r *wasmerRuntime) Close(_ context.Context) error {
	r.engine = nil
	r.bin = nil
	return nil
}

func (m *wasmerModule) CallV_V(_ context.Context, funcName string) (err error) {
	_, err = m.funcs[funcName].Call()
	return
}

func (m *wasmerModule) CallI32I32_V(_ context.Context, funcName string, x, y uint32) (err error) {
	_, err = m.funcs[funcName].Call(int32(x), int32(y))
	return
}

func (m *wasmerModule) CallI32I32I32_V(_ context.Context, funcName string, x, y, z uint32) (err error) {
	_, err = m.funcs[funcName].Call(int32(x), int32(y), int32(z))
	return
}

func (m *wasmerModule) CallI32I32_I32(_ context.Context, funcName string, x, y uint32) (uint32, error) {
	if result, err := m.funcs[funcName].Call(int32(x), int32(y)); err != nil {
		return 0, err
	} else {
		return uint32(result.(int32)), nil
	}
}

func (m *wasmerModule) CallI64_I64(_ context.Context, funcName string, param uint64) (uint64, error) {
	if result, err := m.funcs[funcName].Call(int64(param)); err != nil {
		return 0, err
	} else {
		return uint64(result.(int64)), nil
	}
}

func (m *wasmerModule) WriteMemory(_ context.Context, offset uint32, bytes []byte) error {
	unsafeSlice := m.mem.Data()
	if uint64(offset)+uint64(len(bytes)) > uint64(len(unsafeSlice)) {
		return errors.New("out of memory writing bytes")
	}
	copy(unsafeSlice[offset:], bytes)
	return nil
}

func (m *wasmerModule) ReadMemory(_ context.Context, offset, byteCount uint32) ([]byte, error) {
	unsafeSlice := m.mem.Data()
	if uint64(offset)+uint64(byteCount) > uint64(len(unsafeSlice)) {
		return nil, errors.New("out of memory reading bytes")
	}
	return append([]byte(nil), unsafeSlice[offset:offset+byteCount]...), nil
}

func (m *wasmerModule) Close(_ context.Context) error {
	if instance := m.instance; instance != nil {
		instance.Close()
	}
	m.instance = nil
	if mod := m.module; mod != nil {
		mod.Close()
	}
	m.module = nil
	if store := m.store; store != nil {
		store.Close()
	}
	m.store = nil
	m.funcs = nil
	return nil
}
