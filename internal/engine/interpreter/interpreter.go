// Package interpreter implements wasm.Engine by lowering validated function bodies into pre-decoded operations and
// executing them on a Go-allocated value stack.
package interpreter

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sync"

	"go.uber.org/zap"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/moremath"
	"github.com/tetratelabs/wasmcore/internal/wasm"
	"github.com/tetratelabs/wasmcore/internal/wasmdebug"
)

// DefaultCallStackCeiling is the maximum WebAssembly call frame stack height used when Config.CallStackCeiling is
// not positive.
const DefaultCallStackCeiling = 2000

// MaxCallStackCeiling bounds Config.CallStackCeiling. Each wasm frame is also a Go frame, so a larger ceiling could
// exhaust the goroutine stack, which crashes the process instead of trapping.
const MaxCallStackCeiling = 20_000

// Config parameterizes execution of every module compiled by the engine.
type Config struct {
	// CallStackCeiling is the maximum height of the call frame stack, including host functions. It is clamped to
	// MaxCallStackCeiling.
	CallStackCeiling int

	// Fuel is the count of operations a single call may execute before it traps. Zero disables metering.
	Fuel uint64

	// CloseOnContextDone checks the call context on each function call and loop iteration.
	CloseOnContextDone bool

	Logger *zap.Logger
}

type engine struct {
	config Config
	logger *zap.Logger

	mux   sync.RWMutex
	codes map[*wasm.Module]*compiledModule // guarded by mux.
}

// NewEngine returns an engine which executes functions by interpretation.
func NewEngine(_ context.Context, config Config) wasm.Engine {
	if config.CallStackCeiling <= 0 {
		config.CallStackCeiling = DefaultCallStackCeiling
	} else if config.CallStackCeiling > MaxCallStackCeiling {
		config.CallStackCeiling = MaxCallStackCeiling
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &engine{
		config: config,
		logger: logger,
		codes:  map[*wasm.Module]*compiledModule{},
	}
}

// Close implements the same method as documented on wasm.Engine.
func (e *engine) Close() error {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.codes = map[*wasm.Module]*compiledModule{}
	return nil
}

// CompiledModuleCount implements the same method as documented on wasm.Engine.
func (e *engine) CompiledModuleCount() uint32 {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return uint32(len(e.codes))
}

// DeleteCompiledModule implements the same method as documented on wasm.Engine.
func (e *engine) DeleteCompiledModule(m *wasm.Module) {
	e.mux.Lock()
	defer e.mux.Unlock()
	delete(e.codes, m)
}

// CompileModule implements the same method as documented on wasm.Engine.
func (e *engine) CompileModule(_ context.Context, module *wasm.Module) error {
	if _, ok := e.getCodes(module); ok { // cache hit!
		return nil
	}

	cm, err := compileModule(module)
	if err != nil {
		return err
	}
	e.addCodes(module, cm)
	e.logger.Debug("module compiled",
		zap.String("name", moduleName(module)),
		zap.Int("functions", len(cm.functions)))
	return nil
}

func moduleName(module *wasm.Module) string {
	if module.NameSection != nil {
		return module.NameSection.ModuleName
	}
	return ""
}

func (e *engine) getCodes(module *wasm.Module) (cm *compiledModule, ok bool) {
	e.mux.RLock()
	defer e.mux.RUnlock()
	cm, ok = e.codes[module]
	return
}

func (e *engine) addCodes(module *wasm.Module, cm *compiledModule) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.codes[module] = cm
}

// NewModuleEngine implements the same method as documented on wasm.Engine.
func (e *engine) NewModuleEngine(module *wasm.Module, instance *wasm.ModuleInstance) (wasm.ModuleEngine, error) {
	cm, ok := e.getCodes(module)
	if !ok {
		return nil, fmt.Errorf("source module for %s must be compiled before instantiation", instance.ModuleName)
	}

	me := &moduleEngine{
		instance:  instance,
		module:    module,
		config:    e.config,
		functions: make([]function, int(module.ImportFunctionCount)+len(cm.functions)),
	}
	for i, host := range instance.Imports {
		me.functions[i] = function{index: wasm.Index(i), typ: &host.Type, host: host}
	}
	for i := range cm.functions {
		idx := module.ImportFunctionCount + wasm.Index(i)
		me.functions[idx] = function{index: idx, typ: module.TypeOfFunction(idx), parent: &cm.functions[i]}
	}
	return me, nil
}

// moduleEngine implements wasm.ModuleEngine
type moduleEngine struct {
	instance  *wasm.ModuleInstance
	module    *wasm.Module
	config    Config
	functions []function
}

// function is a callable in the function index namespace of a module instance: either a host function satisfying an
// import or a compiled function body.
type function struct {
	index wasm.Index
	typ   *wasm.FunctionType
	// host is non-nil for imported functions.
	host *wasm.HostFunc
	// parent is non-nil for functions defined in the module.
	parent *compiledFunction
}

// Call implements the same method as documented on wasm.ModuleEngine.
func (me *moduleEngine) Call(ctx context.Context, funcIndex wasm.Index, params []uint64) (results []uint64, err error) {
	if int(funcIndex) >= len(me.functions) {
		return nil, fmt.Errorf("function[%d] out of range", funcIndex)
	}
	f := &me.functions[funcIndex]
	ce := me.newCallEngine()

	// A host function calling back into a module spends the fuel left to the call that invoked it.
	if caller, ok := ctx.Value(fuelKey{}).(*callEngine); ok && ce.metered && caller.metered {
		ce.fuel = caller.fuel
		defer func() { caller.fuel = ce.fuel }()
	}

	defer func() {
		// If the Go stack unwinds, the frames still on the call engine are the trace of the fault.
		if v := recover(); v != nil {
			builder := wasmdebug.NewErrorBuilder()
			for i := len(ce.frames) - 1; i >= 0; i-- {
				fn := ce.frames[i].f
				builder.AddFrame(me.instance.FuncDebugName(fn.index), fn.typ.Params, fn.typ.Results)
			}
			results, err = nil, builder.FromRecovered(v)
		}
	}()

	ce.stack = append(ce.stack, params...)
	ce.callFunction(ctx, f)

	results = make([]uint64, len(f.typ.Results))
	copy(results, ce.stack[len(ce.stack)-len(results):])
	return results, nil
}

func (me *moduleEngine) newCallEngine() *callEngine {
	return &callEngine{
		me:      me,
		stack:   make([]uint64, 0, 64),
		fuel:    me.config.Fuel,
		metered: me.config.Fuel > 0,
	}
}

// callEngine holds the state of one call into a module instance. It is discarded when the call returns or traps.
type callEngine struct {
	me *moduleEngine

	// stack is the operand stack. Locals of each frame live on it below the operands of that frame.
	stack []uint64

	// frames are the functions on the call stack, including host functions.
	frames []*callFrame

	// labels are the branch targets of the blocks entered in all frames.
	labels []label

	fuel    uint64
	metered bool
}

// fuelKey is the context key of the metered callEngine which invoked a host function.
type fuelKey struct{}

type callFrame struct {
	// pc is the position of the current operation in f.parent.body.
	pc uint64
	f  *function
	// base is the stack height of the first parameter.
	base int
	// labelBase is the height of labels when the frame was entered.
	labelBase int
}

// label is the runtime form of a structured control instruction.
type label struct {
	// height is the stack height below the block's parameters.
	height int
	// arity is the count of values a branch to this label keeps: the results of a block or the params of a loop.
	arity int
	// cont is the position execution continues at after a branch to this label.
	cont uint64
}

func (ce *callEngine) pushValue(v uint64) {
	ce.stack = append(ce.stack, v)
}

func (ce *callEngine) popValue() (v uint64) {
	// No need to check stack bound as we can assume that all the operations are valid thanks to validateFunction
	// at module validation phase.
	stackTopIndex := len(ce.stack) - 1
	v = ce.stack[stackTopIndex]
	ce.stack = ce.stack[:stackTopIndex]
	return
}

func (ce *callEngine) peekValue() uint64 {
	return ce.stack[len(ce.stack)-1]
}

func (ce *callEngine) pushFrame(frame *callFrame) {
	if len(ce.frames) >= ce.me.config.CallStackCeiling {
		panic(api.ErrRuntimeStackOverflow)
	}
	ce.frames = append(ce.frames, frame)
}

func (ce *callEngine) popFrame() {
	ce.frames = ce.frames[:len(ce.frames)-1]
}

func (ce *callEngine) checkContext(ctx context.Context) {
	if !ce.me.config.CloseOnContextDone {
		return
	}
	select {
	case <-ctx.Done():
		panic(fmt.Errorf("%w: %w", api.ErrRuntimeCallCanceled, ctx.Err()))
	default:
	}
}

func (ce *callEngine) callFunction(ctx context.Context, f *function) {
	if f.host != nil {
		ce.callHostFunc(ctx, f)
	} else {
		ce.callNativeFunc(ctx, f)
	}
}

// callHostFunc passes the params to the host function in a slice sized for the params or results, whichever is
// larger, and pushes the results it overwrote them with.
func (ce *callEngine) callHostFunc(ctx context.Context, f *function) {
	ce.pushFrame(&callFrame{f: f})
	ce.checkContext(ctx)

	paramLen, resultLen := len(f.typ.Params), len(f.typ.Results)
	base := len(ce.stack) - paramLen
	stack := make([]uint64, max(paramLen, resultLen))
	copy(stack, ce.stack[base:])

	hostCtx := ctx
	if ce.metered {
		hostCtx = context.WithValue(ctx, fuelKey{}, ce)
	}
	f.host.Fn(hostCtx, ce.me.instance, stack)

	ce.stack = append(ce.stack[:base], stack[:resultLen]...)
	ce.popFrame()
}

// branch keeps the label's arity values on top of its height and continues at the label.
func (ce *callEngine) branch(frame *callFrame, depth int) {
	idx := len(ce.labels) - 1 - depth
	l := ce.labels[idx]
	if l.arity > 0 {
		copy(ce.stack[l.height:], ce.stack[len(ce.stack)-l.arity:])
	}
	ce.stack = ce.stack[:l.height+l.arity]
	ce.labels = ce.labels[:idx]
	frame.pc = l.cont
}

func (ce *callEngine) pushLabel(op *unionOperation, cont uint64, isLoop bool) {
	params, results := unpackArity(op.U2)
	arity := results
	if isLoop {
		arity = params
	}
	ce.labels = append(ce.labels, label{height: len(ce.stack) - params, arity: arity, cont: cont})
}

// memoryAt pops the base address and returns the size bytes at the effective address, trapping if any is out of
// bounds.
func (ce *callEngine) memoryAt(op *unionOperation, size uint64) []byte {
	offset := uint64(uint32(ce.popValue())) + op.U1
	mem := ce.me.instance.MemoryInstance
	if !mem.HasSize(offset, size) {
		panic(api.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	return mem.Buffer[offset : offset+size]
}

func (ce *callEngine) callNativeFunc(ctx context.Context, f *function) {
	frame := &callFrame{
		f:         f,
		base:      len(ce.stack) - len(f.typ.Params),
		labelBase: len(ce.labels),
	}
	ce.pushFrame(frame)
	ce.checkContext(ctx)

	for i := 0; i < f.parent.numLocals; i++ {
		ce.pushValue(0)
	}
	body := f.parent.body
	ce.labels = append(ce.labels, label{height: len(ce.stack), arity: len(f.typ.Results), cont: uint64(len(body))})

	instance := ce.me.instance
	bodyLen := uint64(len(body))
	for frame.pc < bodyLen {
		op := &body[frame.pc]
		if ce.metered {
			if ce.fuel == 0 {
				panic(api.ErrRuntimeFuelExhausted)
			}
			ce.fuel--
		}

		switch op.Kind {
		case wasm.OpcodeUnreachable:
			panic(api.ErrRuntimeUnreachable)
		case wasm.OpcodeNop:
		case wasm.OpcodeBlock:
			ce.pushLabel(op, op.U1+1, false)
		case wasm.OpcodeLoop:
			ce.checkContext(ctx)
			ce.pushLabel(op, frame.pc, true)
		case wasm.OpcodeIf:
			cond := uint32(ce.popValue())
			ce.pushLabel(op, op.U1+1, false)
			if cond == 0 {
				if op.U3 != op.U1 { // Has else.
					frame.pc = op.U3 + 1
				} else {
					frame.pc = op.U1
				}
				continue
			}
		case wasm.OpcodeElse:
			// The then branch completed: skip the else branch.
			ce.labels = ce.labels[:len(ce.labels)-1]
			frame.pc = op.U1 + 1
			continue
		case wasm.OpcodeEnd:
			ce.labels = ce.labels[:len(ce.labels)-1]
		case wasm.OpcodeBr:
			ce.branch(frame, int(op.U1))
			continue
		case wasm.OpcodeBrIf:
			if uint32(ce.popValue()) != 0 {
				ce.branch(frame, int(op.U1))
				continue
			}
		case wasm.OpcodeBrTable:
			depth := op.U1
			if v := uint32(ce.popValue()); uint64(v) < uint64(len(op.Us)) {
				depth = op.Us[v]
			}
			ce.branch(frame, int(depth))
			continue
		case wasm.OpcodeReturn:
			ce.branch(frame, len(ce.labels)-1-frame.labelBase)
			continue
		case wasm.OpcodeCall:
			ce.callFunction(ctx, &ce.me.functions[op.U1])
		case wasm.OpcodeCallIndirect:
			offset := uint32(ce.popValue())
			table := instance.TableInstance
			if table == nil {
				panic(api.ErrRuntimeInvalidTableAccess)
			}
			idx, ok := table.Lookup(offset)
			if !ok || int(idx) >= len(ce.me.functions) {
				panic(api.ErrRuntimeInvalidTableAccess)
			}
			target := &ce.me.functions[idx]
			expected := &ce.me.module.TypeSection[op.U1]
			if !target.typ.EqualsSignature(expected.Params, expected.Results) {
				panic(api.ErrRuntimeIndirectCallTypeMismatch)
			}
			ce.callFunction(ctx, target)
		case wasm.OpcodeDrop:
			ce.stack = ce.stack[:len(ce.stack)-1]
		case wasm.OpcodeSelect:
			c := uint32(ce.popValue())
			v2 := ce.popValue()
			if c == 0 {
				ce.stack[len(ce.stack)-1] = v2
			}
		case wasm.OpcodeLocalGet:
			ce.pushValue(ce.stack[frame.base+int(op.U1)])
		case wasm.OpcodeLocalSet:
			ce.stack[frame.base+int(op.U1)] = ce.popValue()
		case wasm.OpcodeLocalTee:
			ce.stack[frame.base+int(op.U1)] = ce.peekValue()
		case wasm.OpcodeGlobalGet:
			ce.pushValue(instance.Globals[op.U1].Val)
		case wasm.OpcodeGlobalSet:
			instance.Globals[op.U1].Val = ce.popValue()
		case wasm.OpcodeI32Load, wasm.OpcodeF32Load:
			ce.pushValue(uint64(binary.LittleEndian.Uint32(ce.memoryAt(op, 4))))
		case wasm.OpcodeI64Load, wasm.OpcodeF64Load:
			ce.pushValue(binary.LittleEndian.Uint64(ce.memoryAt(op, 8)))
		case wasm.OpcodeI32Load8S:
			ce.pushValue(uint64(uint32(int8(ce.memoryAt(op, 1)[0]))))
		case wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8U:
			ce.pushValue(uint64(ce.memoryAt(op, 1)[0]))
		case wasm.OpcodeI32Load16S:
			ce.pushValue(uint64(uint32(int16(binary.LittleEndian.Uint16(ce.memoryAt(op, 2))))))
		case wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16U:
			ce.pushValue(uint64(binary.LittleEndian.Uint16(ce.memoryAt(op, 2))))
		case wasm.OpcodeI64Load8S:
			ce.pushValue(uint64(int8(ce.memoryAt(op, 1)[0])))
		case wasm.OpcodeI64Load16S:
			ce.pushValue(uint64(int16(binary.LittleEndian.Uint16(ce.memoryAt(op, 2)))))
		case wasm.OpcodeI64Load32S:
			ce.pushValue(uint64(int32(binary.LittleEndian.Uint32(ce.memoryAt(op, 4)))))
		case wasm.OpcodeI64Load32U:
			ce.pushValue(uint64(binary.LittleEndian.Uint32(ce.memoryAt(op, 4))))
		case wasm.OpcodeI32Store, wasm.OpcodeF32Store, wasm.OpcodeI64Store32:
			v := ce.popValue()
			binary.LittleEndian.PutUint32(ce.memoryAt(op, 4), uint32(v))
		case wasm.OpcodeI64Store, wasm.OpcodeF64Store:
			v := ce.popValue()
			binary.LittleEndian.PutUint64(ce.memoryAt(op, 8), v)
		case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
			v := ce.popValue()
			ce.memoryAt(op, 1)[0] = byte(v)
		case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
			v := ce.popValue()
			binary.LittleEndian.PutUint16(ce.memoryAt(op, 2), uint16(v))
		case wasm.OpcodeMemorySize:
			ce.pushValue(uint64(instance.MemoryInstance.Pages()))
		case wasm.OpcodeMemoryGrow:
			delta := uint32(ce.popValue())
			if res, ok := instance.MemoryInstance.Grow(delta); ok {
				ce.pushValue(uint64(res))
			} else {
				ce.pushValue(uint64(math.MaxUint32)) // -1 as i32.
			}
		case wasm.OpcodeI32Const, wasm.OpcodeI64Const, wasm.OpcodeF32Const, wasm.OpcodeF64Const:
			ce.pushValue(op.U1)
		case wasm.OpcodeMiscPrefix:
			ce.execMisc(op)
		default:
			ce.execNumeric(op.Kind)
		}
		frame.pc++
	}

	// Move the results down to where the params were.
	resultLen := len(f.typ.Results)
	copy(ce.stack[frame.base:], ce.stack[len(ce.stack)-resultLen:])
	ce.stack = ce.stack[:frame.base+resultLen]
	ce.labels = ce.labels[:frame.labelBase]
	ce.popFrame()
}

func (ce *callEngine) execMisc(op *unionOperation) {
	switch op.B1 {
	case wasm.OpcodeMiscI32TruncSatF32S:
		ce.pushValue(uint64(uint32(i32TruncSatS(float64(math.Float32frombits(uint32(ce.popValue())))))))
	case wasm.OpcodeMiscI32TruncSatF32U:
		ce.pushValue(uint64(i32TruncSatU(float64(math.Float32frombits(uint32(ce.popValue()))))))
	case wasm.OpcodeMiscI32TruncSatF64S:
		ce.pushValue(uint64(uint32(i32TruncSatS(math.Float64frombits(ce.popValue())))))
	case wasm.OpcodeMiscI32TruncSatF64U:
		ce.pushValue(uint64(i32TruncSatU(math.Float64frombits(ce.popValue()))))
	case wasm.OpcodeMiscI64TruncSatF32S:
		ce.pushValue(uint64(i64TruncSatS(float64(math.Float32frombits(uint32(ce.popValue()))))))
	case wasm.OpcodeMiscI64TruncSatF32U:
		ce.pushValue(i64TruncSatU(float64(math.Float32frombits(uint32(ce.popValue())))))
	case wasm.OpcodeMiscI64TruncSatF64S:
		ce.pushValue(uint64(i64TruncSatS(math.Float64frombits(ce.popValue()))))
	case wasm.OpcodeMiscI64TruncSatF64U:
		ce.pushValue(i64TruncSatU(math.Float64frombits(ce.popValue())))
	case wasm.OpcodeMiscMemoryCopy:
		size := uint64(uint32(ce.popValue()))
		src := uint64(uint32(ce.popValue()))
		dst := uint64(uint32(ce.popValue()))
		mem := ce.me.instance.MemoryInstance
		if !mem.HasSize(src, size) || !mem.HasSize(dst, size) {
			panic(api.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		copy(mem.Buffer[dst:dst+size], mem.Buffer[src:src+size])
	case wasm.OpcodeMiscMemoryFill:
		size := uint64(uint32(ce.popValue()))
		v := byte(ce.popValue())
		offset := uint64(uint32(ce.popValue()))
		mem := ce.me.instance.MemoryInstance
		if !mem.HasSize(offset, size) {
			panic(api.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		buf := mem.Buffer[offset : offset+size]
		for i := range buf {
			buf[i] = v
		}
	default:
		panic(fmt.Errorf("BUG: unsupported misc instruction %s", wasm.MiscInstructionName(op.B1)))
	}
}

// execNumeric executes the instructions which have no immediates and only operate on the stack.
func (ce *callEngine) execNumeric(kind wasm.Opcode) {
	switch kind {
	// i32 comparisons
	case wasm.OpcodeI32Eqz:
		ce.pushValue(b2u(uint32(ce.popValue()) == 0))
	case wasm.OpcodeI32Eq, wasm.OpcodeI32Ne, wasm.OpcodeI32LtS, wasm.OpcodeI32LtU, wasm.OpcodeI32GtS,
		wasm.OpcodeI32GtU, wasm.OpcodeI32LeS, wasm.OpcodeI32LeU, wasm.OpcodeI32GeS, wasm.OpcodeI32GeU:
		v2 := uint32(ce.popValue())
		v1 := uint32(ce.popValue())
		ce.pushValue(b2u(compareI32(kind, v1, v2)))
	// i64 comparisons
	case wasm.OpcodeI64Eqz:
		ce.pushValue(b2u(ce.popValue() == 0))
	case wasm.OpcodeI64Eq, wasm.OpcodeI64Ne, wasm.OpcodeI64LtS, wasm.OpcodeI64LtU, wasm.OpcodeI64GtS,
		wasm.OpcodeI64GtU, wasm.OpcodeI64LeS, wasm.OpcodeI64LeU, wasm.OpcodeI64GeS, wasm.OpcodeI64GeU:
		v2 := ce.popValue()
		v1 := ce.popValue()
		ce.pushValue(b2u(compareI64(kind, v1, v2)))
	// float comparisons
	case wasm.OpcodeF32Eq, wasm.OpcodeF32Ne, wasm.OpcodeF32Lt, wasm.OpcodeF32Gt, wasm.OpcodeF32Le, wasm.OpcodeF32Ge:
		v2 := float64(math.Float32frombits(uint32(ce.popValue())))
		v1 := float64(math.Float32frombits(uint32(ce.popValue())))
		ce.pushValue(b2u(compareFloat(kind-wasm.OpcodeF32Eq, v1, v2)))
	case wasm.OpcodeF64Eq, wasm.OpcodeF64Ne, wasm.OpcodeF64Lt, wasm.OpcodeF64Gt, wasm.OpcodeF64Le, wasm.OpcodeF64Ge:
		v2 := math.Float64frombits(ce.popValue())
		v1 := math.Float64frombits(ce.popValue())
		ce.pushValue(b2u(compareFloat(kind-wasm.OpcodeF64Eq, v1, v2)))
	// i32 arithmetic
	case wasm.OpcodeI32Clz:
		ce.pushValue(uint64(bits.LeadingZeros32(uint32(ce.popValue()))))
	case wasm.OpcodeI32Ctz:
		ce.pushValue(uint64(bits.TrailingZeros32(uint32(ce.popValue()))))
	case wasm.OpcodeI32Popcnt:
		ce.pushValue(uint64(bits.OnesCount32(uint32(ce.popValue()))))
	case wasm.OpcodeI32Add, wasm.OpcodeI32Sub, wasm.OpcodeI32Mul, wasm.OpcodeI32DivS, wasm.OpcodeI32DivU,
		wasm.OpcodeI32RemS, wasm.OpcodeI32RemU, wasm.OpcodeI32And, wasm.OpcodeI32Or, wasm.OpcodeI32Xor,
		wasm.OpcodeI32Shl, wasm.OpcodeI32ShrS, wasm.OpcodeI32ShrU, wasm.OpcodeI32Rotl, wasm.OpcodeI32Rotr:
		v2 := uint32(ce.popValue())
		v1 := uint32(ce.popValue())
		ce.pushValue(uint64(binaryI32(kind, v1, v2)))
	// i64 arithmetic
	case wasm.OpcodeI64Clz:
		ce.pushValue(uint64(bits.LeadingZeros64(ce.popValue())))
	case wasm.OpcodeI64Ctz:
		ce.pushValue(uint64(bits.TrailingZeros64(ce.popValue())))
	case wasm.OpcodeI64Popcnt:
		ce.pushValue(uint64(bits.OnesCount64(ce.popValue())))
	case wasm.OpcodeI64Add, wasm.OpcodeI64Sub, wasm.OpcodeI64Mul, wasm.OpcodeI64DivS, wasm.OpcodeI64DivU,
		wasm.OpcodeI64RemS, wasm.OpcodeI64RemU, wasm.OpcodeI64And, wasm.OpcodeI64Or, wasm.OpcodeI64Xor,
		wasm.OpcodeI64Shl, wasm.OpcodeI64ShrS, wasm.OpcodeI64ShrU, wasm.OpcodeI64Rotl, wasm.OpcodeI64Rotr:
		v2 := ce.popValue()
		v1 := ce.popValue()
		ce.pushValue(binaryI64(kind, v1, v2))
	// f32 arithmetic
	case wasm.OpcodeF32Abs:
		ce.pushValue(ce.popValue() &^ (1 << 31))
	case wasm.OpcodeF32Neg:
		ce.pushValue(ce.popValue() ^ (1 << 31))
	case wasm.OpcodeF32Ceil, wasm.OpcodeF32Floor, wasm.OpcodeF32Trunc, wasm.OpcodeF32Nearest, wasm.OpcodeF32Sqrt:
		v := math.Float32frombits(uint32(ce.popValue()))
		ce.pushValue(uint64(math.Float32bits(unaryF32(kind, v))))
	case wasm.OpcodeF32Add, wasm.OpcodeF32Sub, wasm.OpcodeF32Mul, wasm.OpcodeF32Div, wasm.OpcodeF32Min,
		wasm.OpcodeF32Max:
		v2 := math.Float32frombits(uint32(ce.popValue()))
		v1 := math.Float32frombits(uint32(ce.popValue()))
		ce.pushValue(uint64(math.Float32bits(binaryF32(kind, v1, v2))))
	case wasm.OpcodeF32Copysign:
		v2 := ce.popValue()
		v1 := ce.popValue()
		const signbit = 1 << 31
		ce.pushValue(v1&^signbit | v2&signbit)
	// f64 arithmetic
	case wasm.OpcodeF64Abs:
		ce.pushValue(ce.popValue() &^ (1 << 63))
	case wasm.OpcodeF64Neg:
		ce.pushValue(ce.popValue() ^ (1 << 63))
	case wasm.OpcodeF64Ceil, wasm.OpcodeF64Floor, wasm.OpcodeF64Trunc, wasm.OpcodeF64Nearest, wasm.OpcodeF64Sqrt:
		v := math.Float64frombits(ce.popValue())
		ce.pushValue(math.Float64bits(unaryF64(kind, v)))
	case wasm.OpcodeF64Add, wasm.OpcodeF64Sub, wasm.OpcodeF64Mul, wasm.OpcodeF64Div, wasm.OpcodeF64Min,
		wasm.OpcodeF64Max:
		v2 := math.Float64frombits(ce.popValue())
		v1 := math.Float64frombits(ce.popValue())
		ce.pushValue(math.Float64bits(binaryF64(kind, v1, v2)))
	case wasm.OpcodeF64Copysign:
		v2 := ce.popValue()
		v1 := ce.popValue()
		const signbit = 1 << 63
		ce.pushValue(v1&^signbit | v2&signbit)
	// conversions
	case wasm.OpcodeI32WrapI64:
		ce.pushValue(uint64(uint32(ce.popValue())))
	case wasm.OpcodeI32TruncF32S:
		ce.pushValue(uint64(uint32(i32TruncS(float64(math.Float32frombits(uint32(ce.popValue())))))))
	case wasm.OpcodeI32TruncF32U:
		ce.pushValue(uint64(i32TruncU(float64(math.Float32frombits(uint32(ce.popValue()))))))
	case wasm.OpcodeI32TruncF64S:
		ce.pushValue(uint64(uint32(i32TruncS(math.Float64frombits(ce.popValue())))))
	case wasm.OpcodeI32TruncF64U:
		ce.pushValue(uint64(i32TruncU(math.Float64frombits(ce.popValue()))))
	case wasm.OpcodeI64ExtendI32S:
		ce.pushValue(uint64(int64(int32(ce.popValue()))))
	case wasm.OpcodeI64ExtendI32U:
		ce.pushValue(uint64(uint32(ce.popValue())))
	case wasm.OpcodeI64TruncF32S:
		ce.pushValue(uint64(i64TruncS(float64(math.Float32frombits(uint32(ce.popValue()))))))
	case wasm.OpcodeI64TruncF32U:
		ce.pushValue(i64TruncU(float64(math.Float32frombits(uint32(ce.popValue())))))
	case wasm.OpcodeI64TruncF64S:
		ce.pushValue(uint64(i64TruncS(math.Float64frombits(ce.popValue()))))
	case wasm.OpcodeI64TruncF64U:
		ce.pushValue(i64TruncU(math.Float64frombits(ce.popValue())))
	case wasm.OpcodeF32ConvertI32S:
		ce.pushValue(uint64(math.Float32bits(float32(int32(ce.popValue())))))
	case wasm.OpcodeF32ConvertI32U:
		ce.pushValue(uint64(math.Float32bits(float32(uint32(ce.popValue())))))
	case wasm.OpcodeF32ConvertI64S:
		ce.pushValue(uint64(math.Float32bits(float32(int64(ce.popValue())))))
	case wasm.OpcodeF32ConvertI64U:
		ce.pushValue(uint64(math.Float32bits(float32(ce.popValue()))))
	case wasm.OpcodeF32DemoteF64:
		ce.pushValue(uint64(math.Float32bits(float32(math.Float64frombits(ce.popValue())))))
	case wasm.OpcodeF64ConvertI32S:
		ce.pushValue(math.Float64bits(float64(int32(ce.popValue()))))
	case wasm.OpcodeF64ConvertI32U:
		ce.pushValue(math.Float64bits(float64(uint32(ce.popValue()))))
	case wasm.OpcodeF64ConvertI64S:
		ce.pushValue(math.Float64bits(float64(int64(ce.popValue()))))
	case wasm.OpcodeF64ConvertI64U:
		ce.pushValue(math.Float64bits(float64(ce.popValue())))
	case wasm.OpcodeF64PromoteF32:
		ce.pushValue(math.Float64bits(float64(math.Float32frombits(uint32(ce.popValue())))))
	case wasm.OpcodeI32ReinterpretF32, wasm.OpcodeF32ReinterpretI32, wasm.OpcodeI64ReinterpretF64,
		wasm.OpcodeF64ReinterpretI64:
		// Values are kept as their bits, so reinterpretation does nothing.
	// sign extension
	case wasm.OpcodeI32Extend8S:
		ce.pushValue(uint64(uint32(int32(int8(ce.popValue())))))
	case wasm.OpcodeI32Extend16S:
		ce.pushValue(uint64(uint32(int32(int16(ce.popValue())))))
	case wasm.OpcodeI64Extend8S:
		ce.pushValue(uint64(int64(int8(ce.popValue()))))
	case wasm.OpcodeI64Extend16S:
		ce.pushValue(uint64(int64(int16(ce.popValue()))))
	case wasm.OpcodeI64Extend32S:
		ce.pushValue(uint64(int64(int32(ce.popValue()))))
	default:
		panic(fmt.Errorf("BUG: unsupported instruction %s", wasm.InstructionName(kind)))
	}
}

// unaryF32 computes via float64 where the result is exact in both widths.
func unaryF32(kind wasm.Opcode, v float32) float32 {
	switch kind {
	case wasm.OpcodeF32Ceil:
		return float32(math.Ceil(float64(v)))
	case wasm.OpcodeF32Floor:
		return float32(math.Floor(float64(v)))
	case wasm.OpcodeF32Trunc:
		return float32(math.Trunc(float64(v)))
	case wasm.OpcodeF32Nearest:
		return moremath.WasmCompatNearestF32(v)
	default: // wasm.OpcodeF32Sqrt
		return float32(math.Sqrt(float64(v)))
	}
}

func unaryF64(kind wasm.Opcode, v float64) float64 {
	switch kind {
	case wasm.OpcodeF64Ceil:
		return math.Ceil(v)
	case wasm.OpcodeF64Floor:
		return math.Floor(v)
	case wasm.OpcodeF64Trunc:
		return math.Trunc(v)
	case wasm.OpcodeF64Nearest:
		return moremath.WasmCompatNearestF64(v)
	default: // wasm.OpcodeF64Sqrt
		return math.Sqrt(v)
	}
}

func binaryF32(kind wasm.Opcode, v1, v2 float32) float32 {
	switch kind {
	case wasm.OpcodeF32Add:
		return v1 + v2
	case wasm.OpcodeF32Sub:
		return v1 - v2
	case wasm.OpcodeF32Mul:
		return v1 * v2
	case wasm.OpcodeF32Div:
		return v1 / v2
	case wasm.OpcodeF32Min:
		return moremath.WasmCompatMin32(v1, v2)
	default: // wasm.OpcodeF32Max
		return moremath.WasmCompatMax32(v1, v2)
	}
}

func binaryF64(kind wasm.Opcode, v1, v2 float64) float64 {
	switch kind {
	case wasm.OpcodeF64Add:
		return v1 + v2
	case wasm.OpcodeF64Sub:
		return v1 - v2
	case wasm.OpcodeF64Mul:
		return v1 * v2
	case wasm.OpcodeF64Div:
		return v1 / v2
	case wasm.OpcodeF64Min:
		return moremath.WasmCompatMin(v1, v2)
	default: // wasm.OpcodeF64Max
		return moremath.WasmCompatMax(v1, v2)
	}
}
