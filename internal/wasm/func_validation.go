package wasm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/leb128"
)

// valueTypeUnknown is only used in the validator, standing for any value type after a stack-polymorphic instruction.
const valueTypeUnknown = ValueType(0xff)

// validateFunction validates the instruction sequence of a function defined in this module, returning the offset of
// the failing instruction with the error.
//
// Note: This is the stack-based type system described in the appendix of the specification: each instruction pops
// and pushes value types, and control instructions push and pop labels.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#algorithm%E2%91%A0
func (m *Module) validateFunction(
	enabledFeatures api.CoreFeatures,
	idx Index,
	functions []Index,
	globals []GlobalType,
	memory *Memory,
	tables []Table,
) (uint64, error) {
	functionType := &m.TypeSection[m.FunctionSection[idx]]
	code := &m.CodeSection[idx]
	body := code.Body
	localTypes := code.LocalTypes

	if len(body) == 0 || body[len(body)-1] != OpcodeEnd {
		return 0, errors.New("expr not terminated by end")
	}

	localType := func(index uint32) (ValueType, error) {
		inputLen := uint32(len(functionType.Params))
		if l := uint32(len(localTypes)) + inputLen; index >= l {
			return 0, fmt.Errorf("invalid local index %d >= %d(=len(locals)+len(parameters))", index, l)
		}
		if index < inputLen {
			return functionType.Params[index], nil
		}
		return localTypes[index-inputLen], nil
	}

	requireMemory := func(op string) error {
		if memory == nil {
			return fmt.Errorf("memory must exist for %s", op)
		}
		return nil
	}

	controlBlockStack := []*controlBlock{{op: OpcodeBlock, blockType: functionType}}
	valueTypeStack := &valueTypeStack{}
	valueTypeStack.pushStackLimit()

	for pc := uint64(0); pc < uint64(len(body)); pc++ {
		op := body[pc]
		opPC := pc

		// Each case leaves pc at the last byte of the instruction.
		var err error
		switch {
		case numericSignatures[op] != nil:
			switch op {
			case OpcodeI32Extend8S, OpcodeI32Extend16S, OpcodeI64Extend8S, OpcodeI64Extend16S, OpcodeI64Extend32S:
				if err = enabledFeatures.RequireEnabled(api.CoreFeatureSignExtensionOps); err != nil {
					return opPC, fmt.Errorf("%s invalid as %v", InstructionName(op), err)
				}
			}
			err = valueTypeStack.apply(numericSignatures[op])
		case OpcodeI32Load <= op && op <= OpcodeI64Store32:
			if err = requireMemory(InstructionName(op)); err != nil {
				return opPC, err
			}
			access := memoryAccesses[op-OpcodeI32Load]
			pc++
			align, num, err := leb128.LoadUint32(body[pc:])
			if err != nil {
				return opPC, fmt.Errorf("read memory align: %v", err)
			}
			if align > access.maxAlign {
				return opPC, fmt.Errorf("invalid memory alignment %d > %d for %s", align, access.maxAlign, InstructionName(op))
			}
			pc += num
			if _, num, err = leb128.LoadUint32(body[pc:]); err != nil {
				return opPC, fmt.Errorf("read memory offset: %v", err)
			}
			pc += num - 1
			if access.store {
				if err = valueTypeStack.popAndVerifyType(access.valueType); err != nil {
					return opPC, fmt.Errorf("cannot pop the operand for %s: %v", InstructionName(op), err)
				}
			}
			if err = valueTypeStack.popAndVerifyType(ValueTypeI32); err != nil {
				return opPC, fmt.Errorf("cannot pop the address for %s: %v", InstructionName(op), err)
			}
			if !access.store {
				valueTypeStack.push(access.valueType)
			}
		case op == OpcodeMemorySize || op == OpcodeMemoryGrow:
			if err = requireMemory(InstructionName(op)); err != nil {
				return opPC, err
			}
			pc++
			if pc >= uint64(len(body)) || body[pc] != 0 {
				return opPC, fmt.Errorf("%s reserved byte must be zero encoded with 1 byte", InstructionName(op))
			}
			if op == OpcodeMemoryGrow {
				err = valueTypeStack.popAndVerifyType(ValueTypeI32)
			}
			valueTypeStack.push(ValueTypeI32)
		case op == OpcodeI32Const:
			_, num, err := leb128.LoadInt32(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("read i32 immediate: %s", err)
			}
			pc += num
			valueTypeStack.push(ValueTypeI32)
		case op == OpcodeI64Const:
			_, num, err := leb128.LoadInt64(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("read i64 immediate: %v", err)
			}
			pc += num
			valueTypeStack.push(ValueTypeI64)
		case op == OpcodeF32Const:
			if pc += 4; pc >= uint64(len(body)) {
				return opPC, errors.New("read f32 immediate: unexpected end of body")
			}
			valueTypeStack.push(ValueTypeF32)
		case op == OpcodeF64Const:
			if pc += 8; pc >= uint64(len(body)) {
				return opPC, errors.New("read f64 immediate: unexpected end of body")
			}
			valueTypeStack.push(ValueTypeF64)
		case OpcodeLocalGet <= op && op <= OpcodeGlobalSet:
			index, num, err := leb128.LoadUint32(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("read immediate: %v", err)
			}
			pc += num
			switch op {
			case OpcodeLocalGet:
				t, err := localType(index)
				if err != nil {
					return opPC, fmt.Errorf("%v for local.get", err)
				}
				valueTypeStack.push(t)
			case OpcodeLocalSet, OpcodeLocalTee:
				t, err := localType(index)
				if err != nil {
					return opPC, fmt.Errorf("%v for %s", err, InstructionName(op))
				}
				if err = valueTypeStack.popAndVerifyType(t); err != nil {
					return opPC, fmt.Errorf("cannot pop the operand for %s: %v", InstructionName(op), err)
				}
				if op == OpcodeLocalTee {
					valueTypeStack.push(t)
				}
			case OpcodeGlobalGet:
				if index >= uint32(len(globals)) {
					return opPC, fmt.Errorf("invalid index for global.get")
				}
				valueTypeStack.push(globals[index].ValType)
			case OpcodeGlobalSet:
				if index >= uint32(len(globals)) {
					return opPC, fmt.Errorf("invalid global index")
				} else if !globals[index].Mutable {
					return opPC, fmt.Errorf("global.set when not mutable")
				} else if err = valueTypeStack.popAndVerifyType(globals[index].ValType); err != nil {
					return opPC, fmt.Errorf("cannot pop the operand for global.set: %v", err)
				}
			}
		case op == OpcodeBr || op == OpcodeBrIf:
			index, num, err := leb128.LoadUint32(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("read immediate: %v", err)
			} else if int(index) >= len(controlBlockStack) {
				return opPC, fmt.Errorf("invalid %s operation: index out of range", InstructionName(op))
			}
			pc += num
			if op == OpcodeBrIf {
				if err = valueTypeStack.popAndVerifyType(ValueTypeI32); err != nil {
					return opPC, fmt.Errorf("cannot pop the required operand for br_if")
				}
			}
			// Check type soundness.
			target := controlBlockStack[len(controlBlockStack)-int(index)-1]
			labelTypes := target.labelTypes()
			if err = valueTypeStack.popResults(labelTypes, false); err != nil {
				return opPC, fmt.Errorf("type mismatch on the %s operation: %v", InstructionName(op), err)
			}
			if op == OpcodeBr {
				// br instruction is stack-polymorphic.
				valueTypeStack.unreachable()
			} else {
				valueTypeStack.pushAll(labelTypes)
			}
		case op == OpcodeBrTable:
			pc++
			nl, num, err := leb128.LoadUint32(body[pc:])
			if err != nil {
				return opPC, fmt.Errorf("read immediate: %w", err)
			}
			pc += num
			list := make([]uint32, 0, nl)
			for i := uint32(0); i < nl; i++ {
				l, n, err := leb128.LoadUint32(body[pc:])
				if err != nil {
					return opPC, fmt.Errorf("read immediate: %w", err)
				}
				pc += n
				list = append(list, l)
			}
			ln, n, err := leb128.LoadUint32(body[pc:])
			if err != nil {
				return opPC, fmt.Errorf("read immediate: %w", err)
			} else if int(ln) >= len(controlBlockStack) {
				return opPC, fmt.Errorf("invalid ln param given for br_table: ln=%d with %d for the current label stack length",
					ln, len(controlBlockStack))
			}
			pc += n - 1
			// Check type soundness.
			if err = valueTypeStack.popAndVerifyType(ValueTypeI32); err != nil {
				return opPC, fmt.Errorf("cannot pop the required operand for br_table")
			}
			expType := controlBlockStack[len(controlBlockStack)-1-int(ln)].labelTypes()
			for _, l := range list {
				if int(l) >= len(controlBlockStack) {
					return opPC, fmt.Errorf("invalid l param given for br_table")
				}
				expType2 := controlBlockStack[len(controlBlockStack)-1-int(l)].labelTypes()
				if string(expType) != string(expType2) {
					return opPC, fmt.Errorf("inconsistent block type length for br_table at %d; %v (ln=%d) != %v (l=%d)",
						l, expType, ln, expType2, l)
				}
			}
			if err = valueTypeStack.popResults(expType, false); err != nil {
				return opPC, fmt.Errorf("type mismatch on the br_table operation: %v", err)
			}
			// br_table instruction is stack-polymorphic.
			valueTypeStack.unreachable()
		case op == OpcodeCall:
			index, num, err := leb128.LoadUint32(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("read immediate: %v", err)
			}
			pc += num
			if int(index) >= len(functions) {
				return opPC, fmt.Errorf("invalid function index")
			}
			funcType := &m.TypeSection[functions[index]]
			if err = valueTypeStack.popParams(funcType.Params); err != nil {
				return opPC, fmt.Errorf("type mismatch on call operation param type: %v", err)
			}
			valueTypeStack.pushAll(funcType.Results)
		case op == OpcodeCallIndirect:
			typeIndex, num, err := leb128.LoadUint32(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("read immediate: %v", err)
			}
			pc += num
			tableIndex, num, err := leb128.LoadUint32(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("read table index: %v", err)
			}
			pc += num
			if tableIndex != 0 {
				return opPC, fmt.Errorf("table index must be zero but was %d", tableIndex)
			}
			if len(tables) == 0 {
				return opPC, fmt.Errorf("table not given while having call_indirect")
			}
			if err = valueTypeStack.popAndVerifyType(ValueTypeI32); err != nil {
				return opPC, fmt.Errorf("cannot pop the in table index's type for call_indirect: %v", err)
			}
			if typeIndex >= uint32(len(m.TypeSection)) {
				return opPC, fmt.Errorf("invalid type index at call_indirect: %d", typeIndex)
			}
			funcType := &m.TypeSection[typeIndex]
			if err = valueTypeStack.popParams(funcType.Params); err != nil {
				return opPC, fmt.Errorf("type mismatch on call_indirect operation param type: %v", err)
			}
			valueTypeStack.pushAll(funcType.Results)
		case op == OpcodeBlock || op == OpcodeLoop || op == OpcodeIf:
			bt, num, err := DecodeBlockType(m.TypeSection, body[pc+1:], enabledFeatures)
			if err != nil {
				return opPC, fmt.Errorf("read block: %w", err)
			}
			pc += num
			if op == OpcodeIf {
				if err = valueTypeStack.popAndVerifyType(ValueTypeI32); err != nil {
					return opPC, fmt.Errorf("cannot pop the operand for 'if': %v", err)
				}
			}
			if err = valueTypeStack.popParams(bt.Params); err != nil {
				return opPC, fmt.Errorf("type mismatch on %s params: %v", InstructionName(op), err)
			}
			controlBlockStack = append(controlBlockStack, &controlBlock{op: op, blockType: bt})
			valueTypeStack.pushStackLimit()
			valueTypeStack.pushAll(bt.Params)
		case op == OpcodeElse:
			bl := controlBlockStack[len(controlBlockStack)-1]
			if bl.op != OpcodeIf || bl.elseSeen || len(controlBlockStack) == 1 {
				return opPC, fmt.Errorf("else instruction must be used in if block")
			}
			bl.elseSeen = true
			// Check the type soundness of the instructions *before* entering this else Op.
			if err = valueTypeStack.popResults(bl.blockType.Results, true); err != nil {
				return opPC, fmt.Errorf("invalid instruction results in then instructions: %v", err)
			}
			// Before entering instructions inside else, we pop all the values pushed by then block.
			valueTypeStack.resetAtStackLimit()
			valueTypeStack.pushAll(bl.blockType.Params)
		case op == OpcodeEnd:
			bl := controlBlockStack[len(controlBlockStack)-1]
			controlBlockStack = controlBlockStack[:len(controlBlockStack)-1]
			if bl.op == OpcodeIf && !bl.elseSeen && string(bl.blockType.Params) != string(bl.blockType.Results) {
				return opPC, fmt.Errorf("type mismatch between then and else blocks")
			}
			// Check type soundness.
			if err = valueTypeStack.popResults(bl.blockType.Results, true); err != nil {
				return opPC, fmt.Errorf("invalid instruction results at end instruction; expected %v: %v", bl.blockType.Results, err)
			}
			// Put the result types at the end after resetting at the stack limit
			// since we might have Any type between the limit and the current top.
			valueTypeStack.resetAtStackLimit()
			valueTypeStack.popStackLimit()
			valueTypeStack.pushAll(bl.blockType.Results)

			if len(controlBlockStack) == 0 && pc != uint64(len(body))-1 {
				return opPC, errors.New("instructions after the final end")
			}
		case op == OpcodeReturn:
			if err = valueTypeStack.popResults(functionType.Results, false); err != nil {
				return opPC, fmt.Errorf("return type mismatch on return: %v; want %v", err, functionType.Results)
			}
			// return instruction is stack-polymorphic.
			valueTypeStack.unreachable()
		case op == OpcodeDrop:
			if _, err = valueTypeStack.pop(); err != nil {
				return opPC, fmt.Errorf("invalid drop: %v", err)
			}
		case op == OpcodeSelect:
			if err = valueTypeStack.popAndVerifyType(ValueTypeI32); err != nil {
				return opPC, fmt.Errorf("type mismatch on 3rd select operand: %v", err)
			}
			v1, err := valueTypeStack.pop()
			if err != nil {
				return opPC, fmt.Errorf("invalid select: %v", err)
			}
			v2, err := valueTypeStack.pop()
			if err != nil {
				return opPC, fmt.Errorf("invalid select: %v", err)
			}
			if v1 != v2 && v1 != valueTypeUnknown && v2 != valueTypeUnknown {
				return opPC, fmt.Errorf("type mismatch on 1st and 2nd select operands")
			}
			if v1 == valueTypeUnknown {
				valueTypeStack.push(v2)
			} else {
				valueTypeStack.push(v1)
			}
		case op == OpcodeUnreachable:
			// unreachable instruction is stack-polymorphic.
			valueTypeStack.unreachable()
		case op == OpcodeNop:
		case op == OpcodeMiscPrefix:
			miscOp, num, err := leb128.LoadUint32(body[pc+1:])
			if err != nil {
				return opPC, fmt.Errorf("failed to read misc opcode: %v", err)
			}
			pc += num
			if pc, err = m.validateMiscInstruction(enabledFeatures, valueTypeStack, memory, body, pc, miscOp); err != nil {
				return opPC, err
			}
		default:
			return opPC, fmt.Errorf("invalid instruction 0x%x", op)
		}

		if err != nil {
			return opPC, fmt.Errorf("%s: %w", InstructionName(op), err)
		}
		if len(controlBlockStack) == 0 {
			return 0, nil
		}
	}
	return uint64(len(body)), errors.New("ill-nested block exists")
}

// validateMiscInstruction validates an instruction following OpcodeMiscPrefix, returning the pc of its last byte.
func (m *Module) validateMiscInstruction(
	enabledFeatures api.CoreFeatures,
	valueTypeStack *valueTypeStack,
	memory *Memory,
	body []byte,
	pc uint64,
	miscOp uint32,
) (uint64, error) {
	if miscOp <= uint32(OpcodeMiscI64TruncSatF64U) {
		name := MiscInstructionName(byte(miscOp))
		if err := enabledFeatures.RequireEnabled(api.CoreFeatureNonTrappingFloatToIntConversion); err != nil {
			return pc, fmt.Errorf("%s invalid as %v", name, err)
		}
		in, out := ValueTypeF32, ValueTypeI32
		if miscOp&0b10 != 0 {
			in = ValueTypeF64
		}
		if miscOp&0b100 != 0 {
			out = ValueTypeI64
		}
		if err := valueTypeStack.popAndVerifyType(in); err != nil {
			return pc, fmt.Errorf("cannot pop the operand for %s: %v", name, err)
		}
		valueTypeStack.push(out)
		return pc, nil
	}

	switch miscOp {
	case uint32(OpcodeMiscMemoryCopy), uint32(OpcodeMiscMemoryFill):
		name := MiscInstructionName(byte(miscOp))
		if err := enabledFeatures.RequireEnabled(api.CoreFeatureBulkMemoryOperations); err != nil {
			return pc, fmt.Errorf("%s invalid as %v", name, err)
		}
		if memory == nil {
			return pc, fmt.Errorf("memory must exist for %s", name)
		}
		reserved := 1
		if miscOp == uint32(OpcodeMiscMemoryCopy) {
			reserved = 2
		}
		for i := 0; i < reserved; i++ {
			pc++
			if pc >= uint64(len(body)) || body[pc] != 0 {
				return pc, fmt.Errorf("%s reserved byte must be zero encoded with 1 byte", name)
			}
		}
		for i := 0; i < 3; i++ {
			if err := valueTypeStack.popAndVerifyType(ValueTypeI32); err != nil {
				return pc, fmt.Errorf("cannot pop the operand for %s: %v", name, err)
			}
		}
		return pc, nil
	}
	if miscOp < 0x100 {
		if name := MiscInstructionName(byte(miscOp)); name != "" {
			return pc, fmt.Errorf("%s is not supported", name)
		}
	}
	return pc, fmt.Errorf("invalid misc opcode %#x", miscOp)
}

// controlBlock is a label in the validator: the innermost function, block, loop or if.
type controlBlock struct {
	op        Opcode
	blockType *FunctionType
	elseSeen  bool
}

// labelTypes are the types a branch to this label carries: params when looping back, otherwise results.
func (c *controlBlock) labelTypes() []ValueType {
	if c.op == OpcodeLoop {
		return c.blockType.Params
	}
	return c.blockType.Results
}

var (
	blockTypeEmpty = &FunctionType{}
	blockTypeI32   = &FunctionType{Results: []ValueType{ValueTypeI32}}
	blockTypeI64   = &FunctionType{Results: []ValueType{ValueTypeI64}}
	blockTypeF32   = &FunctionType{Results: []ValueType{ValueTypeF32}}
	blockTypeF64   = &FunctionType{Results: []ValueType{ValueTypeF64}}
)

// DecodeBlockType decodes the type of block, loop or if: empty, a single result, or an index in the TypeSection
// when api.CoreFeatureMultiValue is enabled.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-blocktype
func DecodeBlockType(types []FunctionType, buf []byte, enabledFeatures api.CoreFeatures) (*FunctionType, uint64, error) {
	raw, num, err := leb128.LoadInt33AsInt64(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("decode int33: %w", err)
	}

	switch raw {
	case -64: // 0x40 in original byte = nil
		return blockTypeEmpty, num, nil
	case -1: // 0x7f in original byte = i32
		return blockTypeI32, num, nil
	case -2: // 0x7e in original byte = i64
		return blockTypeI64, num, nil
	case -3: // 0x7d in original byte = f32
		return blockTypeF32, num, nil
	case -4: // 0x7c in original byte = f64
		return blockTypeF64, num, nil
	}
	if err = enabledFeatures.RequireEnabled(api.CoreFeatureMultiValue); err != nil {
		return nil, num, fmt.Errorf("block with function type return invalid as %v", err)
	}
	if raw < 0 || raw >= int64(len(types)) {
		return nil, 0, fmt.Errorf("type index out of range: %d", raw)
	}
	return &types[raw], num, nil
}

type signature struct {
	in  []ValueType
	out ValueType
}

type memoryAccess struct {
	// maxAlign is the log2 of the natural alignment of the access.
	maxAlign  uint32
	valueType ValueType
	store     bool
}

// memoryAccesses is indexed by the opcode minus OpcodeI32Load.
var memoryAccesses = [...]memoryAccess{
	OpcodeI32Load - OpcodeI32Load:    {2, ValueTypeI32, false},
	OpcodeI64Load - OpcodeI32Load:    {3, ValueTypeI64, false},
	OpcodeF32Load - OpcodeI32Load:    {2, ValueTypeF32, false},
	OpcodeF64Load - OpcodeI32Load:    {3, ValueTypeF64, false},
	OpcodeI32Load8S - OpcodeI32Load:  {0, ValueTypeI32, false},
	OpcodeI32Load8U - OpcodeI32Load:  {0, ValueTypeI32, false},
	OpcodeI32Load16S - OpcodeI32Load: {1, ValueTypeI32, false},
	OpcodeI32Load16U - OpcodeI32Load: {1, ValueTypeI32, false},
	OpcodeI64Load8S - OpcodeI32Load:  {0, ValueTypeI64, false},
	OpcodeI64Load8U - OpcodeI32Load:  {0, ValueTypeI64, false},
	OpcodeI64Load16S - OpcodeI32Load: {1, ValueTypeI64, false},
	OpcodeI64Load16U - OpcodeI32Load: {1, ValueTypeI64, false},
	OpcodeI64Load32S - OpcodeI32Load: {2, ValueTypeI64, false},
	OpcodeI64Load32U - OpcodeI32Load: {2, ValueTypeI64, false},
	OpcodeI32Store - OpcodeI32Load:   {2, ValueTypeI32, true},
	OpcodeI64Store - OpcodeI32Load:   {3, ValueTypeI64, true},
	OpcodeF32Store - OpcodeI32Load:   {2, ValueTypeF32, true},
	OpcodeF64Store - OpcodeI32Load:   {3, ValueTypeF64, true},
	OpcodeI32Store8 - OpcodeI32Load:  {0, ValueTypeI32, true},
	OpcodeI32Store16 - OpcodeI32Load: {1, ValueTypeI32, true},
	OpcodeI64Store8 - OpcodeI32Load:  {0, ValueTypeI64, true},
	OpcodeI64Store16 - OpcodeI32Load: {1, ValueTypeI64, true},
	OpcodeI64Store32 - OpcodeI32Load: {2, ValueTypeI64, true},
}

// numericSignatures holds the stack effect of instructions without immediates, which only pop and push values.
var numericSignatures = func() (ret [256]*signature) {
	set := func(in []ValueType, out ValueType, ops ...Opcode) {
		sig := &signature{in: in, out: out}
		for _, op := range ops {
			ret[op] = sig
		}
	}
	between := func(from, to Opcode) (ops []Opcode) {
		for op := from; op <= to; op++ {
			ops = append(ops, op)
		}
		return
	}
	i32, i64, f32, f64 := ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64

	set([]ValueType{i32}, i32, OpcodeI32Eqz, OpcodeI32Clz, OpcodeI32Ctz, OpcodeI32Popcnt, OpcodeI32Extend8S, OpcodeI32Extend16S)
	set([]ValueType{i32, i32}, i32, between(OpcodeI32Eq, OpcodeI32GeU)...)
	set([]ValueType{i32, i32}, i32, between(OpcodeI32Add, OpcodeI32Rotr)...)
	set([]ValueType{i64}, i32, OpcodeI64Eqz, OpcodeI32WrapI64)
	set([]ValueType{i64, i64}, i32, between(OpcodeI64Eq, OpcodeI64GeU)...)
	set([]ValueType{f32, f32}, i32, between(OpcodeF32Eq, OpcodeF32Ge)...)
	set([]ValueType{f64, f64}, i32, between(OpcodeF64Eq, OpcodeF64Ge)...)
	set([]ValueType{i64}, i64, OpcodeI64Clz, OpcodeI64Ctz, OpcodeI64Popcnt, OpcodeI64Extend8S, OpcodeI64Extend16S, OpcodeI64Extend32S)
	set([]ValueType{i64, i64}, i64, between(OpcodeI64Add, OpcodeI64Rotr)...)
	set([]ValueType{f32}, f32, between(OpcodeF32Abs, OpcodeF32Sqrt)...)
	set([]ValueType{f32, f32}, f32, between(OpcodeF32Add, OpcodeF32Copysign)...)
	set([]ValueType{f64}, f64, between(OpcodeF64Abs, OpcodeF64Sqrt)...)
	set([]ValueType{f64, f64}, f64, between(OpcodeF64Add, OpcodeF64Copysign)...)
	set([]ValueType{f32}, i32, OpcodeI32TruncF32S, OpcodeI32TruncF32U, OpcodeI32ReinterpretF32)
	set([]ValueType{f64}, i32, OpcodeI32TruncF64S, OpcodeI32TruncF64U)
	set([]ValueType{i32}, i64, OpcodeI64ExtendI32S, OpcodeI64ExtendI32U)
	set([]ValueType{f32}, i64, OpcodeI64TruncF32S, OpcodeI64TruncF32U)
	set([]ValueType{f64}, i64, OpcodeI64TruncF64S, OpcodeI64TruncF64U, OpcodeI64ReinterpretF64)
	set([]ValueType{i32}, f32, OpcodeF32ConvertI32S, OpcodeF32ConvertI32U, OpcodeF32ReinterpretI32)
	set([]ValueType{i64}, f32, OpcodeF32ConvertI64S, OpcodeF32ConvertI64U)
	set([]ValueType{f64}, f32, OpcodeF32DemoteF64)
	set([]ValueType{i32}, f64, OpcodeF64ConvertI32S, OpcodeF64ConvertI32U)
	set([]ValueType{i64}, f64, OpcodeF64ConvertI64S, OpcodeF64ConvertI64U, OpcodeF64ReinterpretI64)
	set([]ValueType{f32}, f64, OpcodeF64PromoteF32)
	return
}()

type valueTypeStack struct {
	stack       []ValueType
	stackLimits []int
}

func (s *valueTypeStack) pop() (ValueType, error) {
	limit := 0
	if len(s.stackLimits) > 0 {
		limit = s.stackLimits[len(s.stackLimits)-1]
	}
	if len(s.stack) <= limit {
		return 0, fmt.Errorf("invalid operation: trying to pop at %d with limit %d", len(s.stack), limit)
	} else if len(s.stack) == limit+1 && s.stack[limit] == valueTypeUnknown {
		return valueTypeUnknown, nil
	} else {
		ret := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		return ret, nil
	}
}

func (s *valueTypeStack) popAndVerifyType(expected ValueType) error {
	actual, err := s.pop()
	if err != nil {
		return err
	}
	if actual != expected && actual != valueTypeUnknown && expected != valueTypeUnknown {
		return fmt.Errorf("type mismatch: expected %s, but was %s", ValueTypeName(expected), ValueTypeName(actual))
	}
	return nil
}

// apply pops the signature's inputs in reverse and pushes its output.
func (s *valueTypeStack) apply(sig *signature) error {
	if err := s.popParams(sig.in); err != nil {
		return err
	}
	s.push(sig.out)
	return nil
}

func (s *valueTypeStack) push(v ValueType) {
	s.stack = append(s.stack, v)
}

func (s *valueTypeStack) pushAll(vs []ValueType) {
	s.stack = append(s.stack, vs...)
}

func (s *valueTypeStack) unreachable() {
	s.resetAtStackLimit()
	s.stack = append(s.stack, valueTypeUnknown)
}

func (s *valueTypeStack) resetAtStackLimit() {
	if len(s.stackLimits) != 0 {
		s.stack = s.stack[:s.stackLimits[len(s.stackLimits)-1]]
	} else {
		s.stack = s.stack[:0]
	}
}

func (s *valueTypeStack) popStackLimit() {
	if len(s.stackLimits) != 0 {
		s.stackLimits = s.stackLimits[:len(s.stackLimits)-1]
	}
}

func (s *valueTypeStack) pushStackLimit() {
	s.stackLimits = append(s.stackLimits, len(s.stack))
}

// popParams pops the types in reverse order, as the last param is on the top of the stack.
func (s *valueTypeStack) popParams(types []ValueType) error {
	for i := len(types) - 1; i >= 0; i-- {
		if err := s.popAndVerifyType(types[i]); err != nil {
			return err
		}
	}
	return nil
}

// popResults pops the types in reverse order. When checkAboveLimit is true, no values may remain above the current
// stack limit afterwards.
func (s *valueTypeStack) popResults(expResults []ValueType, checkAboveLimit bool) error {
	limit := 0
	if len(s.stackLimits) > 0 {
		limit = s.stackLimits[len(s.stackLimits)-1]
	}
	if err := s.popParams(expResults); err != nil {
		return err
	}
	if checkAboveLimit {
		if !(limit == len(s.stack) || (limit+1 == len(s.stack) && s.stack[limit] == valueTypeUnknown)) {
			return fmt.Errorf("leftovers found in the stack")
		}
	}
	return nil
}

func (s *valueTypeStack) String() string {
	var typeStrs, limits []string
	for _, v := range s.stack {
		if v == valueTypeUnknown {
			typeStrs = append(typeStrs, "unknown")
		} else {
			typeStrs = append(typeStrs, ValueTypeName(v))
		}
	}
	for _, d := range s.stackLimits {
		limits = append(limits, strconv.Itoa(d))
	}
	return fmt.Sprintf("{stack: [%s], limits: [%s]}",
		strings.Join(typeStrs, ", "), strings.Join(limits, ","))
}
