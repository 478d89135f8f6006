package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tetratelabs/wasmcore/api"
)

// Store is the runtime representation of "instantiated" Wasm modules. Each instance owns its memory, globals and
// table: nothing is shared between instances except the immutable Module and the code compiled by the Engine.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#store%E2%91%A0
type Store struct {
	// Engine is a global context for a Store which is in responsible for compilation and execution of Wasm modules.
	Engine Engine

	// EnabledFeatures are read-only to allow optimizations.
	EnabledFeatures api.CoreFeatures

	// MemoryLimitPages caps the memory of each instance, including growth.
	MemoryLimitPages uint32

	Logger *zap.Logger

	// mux protects modules and closed.
	mux     sync.Mutex
	modules map[*ModuleInstance]struct{}
	closed  bool
}

// NewStore returns a Store using the given engine. A nil logger discards logs.
func NewStore(enabledFeatures api.CoreFeatures, engine Engine, memoryLimitPages uint32, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		Engine:           engine,
		EnabledFeatures:  enabledFeatures,
		MemoryLimitPages: memoryLimitPages,
		Logger:           logger,
		modules:          map[*ModuleInstance]struct{}{},
	}
}

// Instantiate uses name instead of the Module.NameSection ModuleName as it allows instantiating the same module
// multiple times.
//
// The module must be validated and compiled by the Engine. Every failure is returned as *api.InstantiationError and
// leaves nothing allocated: on success, the start function, if any, has run.
func (s *Store) Instantiate(ctx context.Context, module *Module, name string, hostModules HostModules) (*ModuleInstance, error) {
	m, err := s.instantiate(ctx, module, name, hostModules)
	if err != nil {
		s.Logger.Debug("instantiation failed", zap.String("module", name), zap.Error(err))
		return nil, &api.InstantiationError{ModuleName: name, Err: err}
	}
	s.Logger.Debug("module instantiated", zap.String("module", name),
		zap.Int("functions", int(module.ImportFunctionCount)+len(module.FunctionSection)))
	return m, nil
}

func (s *Store) instantiate(ctx context.Context, module *Module, name string, hostModules HostModules) (*ModuleInstance, error) {
	s.mux.Lock()
	closed := s.closed
	s.mux.Unlock()
	if closed {
		return nil, api.ErrClosed
	}

	imports, err := module.resolveImports(hostModules)
	if err != nil {
		return nil, err
	}

	m := &ModuleInstance{
		ModuleName: name,
		Source:     module,
		Imports:    imports,
		Logger:     s.Logger,
		s:          s,
	}
	m.buildGlobals(module)

	if mem := module.MemorySection; mem != nil {
		if mem.Min > s.MemoryLimitPages {
			return nil, fmt.Errorf("memory min %d pages (%s) over limit of %d pages (%s)",
				mem.Min, PagesToUnitOfBytes(mem.Min), s.MemoryLimitPages, PagesToUnitOfBytes(s.MemoryLimitPages))
		}
		m.MemoryInstance = NewMemoryInstance(mem, s.MemoryLimitPages, s.Logger.With(zap.String("module", name)))
	}
	if len(module.TableSection) > 0 {
		m.TableInstance = NewTableInstance(&module.TableSection[0])
	}

	m.buildExports(module.ExportSection)

	if err = m.applyElements(module.ElementSection); err != nil {
		return nil, err
	}
	if err = m.applyData(module.DataSection); err != nil {
		return nil, err
	}

	if m.Engine, err = s.Engine.NewModuleEngine(module, m); err != nil {
		return nil, err
	}

	if module.StartSection != nil {
		funcIdx := *module.StartSection
		if _, err = m.call(ctx, funcIdx, nil); err != nil {
			return nil, fmt.Errorf("start %s failed: %w", m.FuncDebugName(funcIdx), err)
		}
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return nil, api.ErrClosed
	}
	s.modules[m] = struct{}{}
	return m, nil
}

func (m *ModuleInstance) buildGlobals(module *Module) {
	m.Globals = make([]*GlobalInstance, 0, len(module.GlobalSection))
	for i := range module.GlobalSection {
		gs := &module.GlobalSection[i]
		m.Globals = append(m.Globals, &GlobalInstance{
			Type: gs.Type,
			Val:  evaluateConstExpression(m.Globals, &gs.Init),
		})
	}
}

func (m *ModuleInstance) buildExports(exports []Export) {
	m.Exports = make(map[string]*Export, len(exports))
	for i := range exports {
		exp := &exports[i]
		m.Exports[exp.Name] = exp
	}
}

// applyElements checks every segment fits before writing any of them.
func (m *ModuleInstance) applyElements(elems []ElementSegment) error {
	offsets := make([]uint32, len(elems))
	for i := range elems {
		elem := &elems[i]
		offsets[i] = uint32(evaluateConstExpression(m.Globals, &elem.OffsetExpr))
		if end := uint64(offsets[i]) + uint64(len(elem.Init)); end > uint64(len(m.TableInstance.References)) {
			return fmt.Errorf("element[%d]: out of bounds table access: %d > table size %d",
				i, end, len(m.TableInstance.References))
		}
	}
	for i := range elems {
		if err := m.TableInstance.initialize(offsets[i], elems[i].Init); err != nil {
			return fmt.Errorf("element[%d]: %w", i, err)
		}
	}
	return nil
}

// applyData checks every segment fits before writing any of them.
func (m *ModuleInstance) applyData(data []DataSegment) error {
	if len(data) == 0 {
		return nil
	}
	if m.MemoryInstance == nil {
		return errors.New("data segments require a memory")
	}
	offsets := make([]uint32, len(data))
	for i := range data {
		d := &data[i]
		offsets[i] = uint32(evaluateConstExpression(m.Globals, &d.OffsetExpression))
		if !m.MemoryInstance.hasSize(offsets[i], uint64(len(d.Init))) {
			return fmt.Errorf("data[%d]: out of bounds memory access: offset %d + %d bytes > memory size %d",
				i, offsets[i], len(d.Init), m.MemoryInstance.Size())
		}
	}
	for i := range data {
		copy(m.MemoryInstance.Buffer[offsets[i]:], data[i].Init)
	}
	return nil
}

// deleteModule makes the instance unreachable from CloseWithContext.
func (s *Store) deleteModule(m *ModuleInstance) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.modules, m)
}

// ModuleCount returns the count of open module instances.
func (s *Store) ModuleCount() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.modules)
}

// CloseWithContext closes all instances and the Engine. Instantiate fails afterwards.
func (s *Store) CloseWithContext(ctx context.Context) (err error) {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return nil
	}
	s.closed = true
	modules := s.modules
	s.modules = nil
	s.mux.Unlock()

	for m := range modules {
		m.closed.Store(true)
	}
	return s.Engine.Close()
}
