package interpreter

import (
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// unionOperation is the pre-decoded form of one instruction. Immediates are decoded once at compile time, and
// structured control flow is resolved to positions in compiledFunction.body.
//
// The meaning of each field depends on Kind:
//   - OpcodeBlock: U1 is the position of the matching end, U2 the packed block arity.
//   - OpcodeLoop: U2 is the packed block arity.
//   - OpcodeIf: U1 is the position of the matching end, U2 the packed block arity, U3 the position of the else or
//     the end if there is none.
//   - OpcodeElse: U1 is the position of the matching end.
//   - OpcodeBr, OpcodeBrIf: U1 is the label depth.
//   - OpcodeBrTable: Us are the label depths, U1 is the default depth.
//   - OpcodeCall: U1 is the function index. OpcodeCallIndirect: U1 is the type index.
//   - local and global instructions: U1 is the index.
//   - loads and stores: U1 is the static offset.
//   - constants: U1 is the value bits.
//   - OpcodeMiscPrefix: B1 is the wasm.OpcodeMisc.
type unionOperation struct {
	Kind       wasm.Opcode
	B1         byte
	U1, U2, U3 uint64
	Us         []uint64
}

// packArity encodes the param and result counts of a block type.
func packArity(bt *wasm.FunctionType) uint64 {
	return uint64(len(bt.Params))<<32 | uint64(len(bt.Results))
}

func unpackArity(v uint64) (params, results int) {
	return int(v >> 32), int(uint32(v))
}

// compiledFunction is the lowered body of a function defined in a module.
type compiledFunction struct {
	body []unionOperation
	// numLocals is the count of locals declared in the body, excluding parameters.
	numLocals int
}

// compiledModule is the lowered code of a module, shared by all its instances.
type compiledModule struct {
	functions []compiledFunction
}

// compileModule lowers every function body of the validated module.
func compileModule(module *wasm.Module) (*compiledModule, error) {
	ret := &compiledModule{functions: make([]compiledFunction, len(module.CodeSection))}
	for i := range module.CodeSection {
		code := &module.CodeSection[i]
		body, err := lowerBody(module, code.Body)
		if err != nil {
			funcIdx := module.ImportFunctionCount + wasm.Index(i)
			return nil, fmt.Errorf("failed to lower func[%d]: %w", funcIdx, err)
		}
		ret.functions[i] = compiledFunction{body: body, numLocals: len(code.LocalTypes)}
	}
	return ret, nil
}

// lowerBody decodes the body of a function into operations. The body must have passed validation, so errors here are
// only for truncated immediates.
func lowerBody(module *wasm.Module, body []byte) ([]unionOperation, error) {
	ops := make([]unionOperation, 0, len(body)/2)
	// controls are positions in ops of the enclosing block, loop or if operations.
	var controls []int
	for pc := uint64(0); pc < uint64(len(body)); pc++ {
		op := body[pc]
		u := unionOperation{Kind: op}
		var n uint64
		var err error
		switch op {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			var bt *wasm.FunctionType
			// Features were checked by validation, so accept every supported block type here.
			if bt, n, err = wasm.DecodeBlockType(module.TypeSection, body[pc+1:], api.CoreFeaturesV2); err != nil {
				return nil, fmt.Errorf("read block type at %#x: %w", pc, err)
			}
			pc += n
			u.U2 = packArity(bt)
			controls = append(controls, len(ops))
		case wasm.OpcodeElse:
			if len(controls) == 0 {
				return nil, fmt.Errorf("else without if at %#x", pc)
			}
			ops[controls[len(controls)-1]].U3 = uint64(len(ops))
		case wasm.OpcodeEnd:
			if len(controls) > 0 {
				end := uint64(len(ops))
				opener := &ops[controls[len(controls)-1]]
				controls = controls[:len(controls)-1]
				opener.U1 = end
				if opener.Kind == wasm.OpcodeIf {
					if opener.U3 == 0 {
						opener.U3 = end
					} else {
						ops[opener.U3].U1 = end
					}
				}
			}
		case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall, wasm.OpcodeLocalGet, wasm.OpcodeLocalSet,
			wasm.OpcodeLocalTee, wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
			var v uint32
			v, n, err = leb128.LoadUint32(body[pc+1:])
			u.U1 = uint64(v)
			pc += n
		case wasm.OpcodeBrTable:
			var count uint32
			if count, n, err = leb128.LoadUint32(body[pc+1:]); err != nil {
				return nil, fmt.Errorf("read br_table count at %#x: %w", pc, err)
			}
			pc += n
			u.Us = make([]uint64, count)
			for i := range u.Us {
				var v uint32
				if v, n, err = leb128.LoadUint32(body[pc+1:]); err != nil {
					return nil, fmt.Errorf("read br_table target at %#x: %w", pc, err)
				}
				pc += n
				u.Us[i] = uint64(v)
			}
			var v uint32
			v, n, err = leb128.LoadUint32(body[pc+1:])
			u.U1 = uint64(v)
			pc += n
		case wasm.OpcodeCallIndirect:
			var v uint32
			if v, n, err = leb128.LoadUint32(body[pc+1:]); err != nil {
				return nil, fmt.Errorf("read type index at %#x: %w", pc, err)
			}
			pc += n
			u.U1 = uint64(v)
			// Table index, which is zero.
			_, n, err = leb128.LoadUint32(body[pc+1:])
			pc += n
		case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
			pc++ // Reserved byte.
		case wasm.OpcodeI32Const:
			var v int32
			v, n, err = leb128.LoadInt32(body[pc+1:])
			u.U1 = uint64(uint32(v))
			pc += n
		case wasm.OpcodeI64Const:
			var v int64
			v, n, err = leb128.LoadInt64(body[pc+1:])
			u.U1 = uint64(v)
			pc += n
		case wasm.OpcodeF32Const:
			if pc+5 > uint64(len(body)) {
				return nil, fmt.Errorf("read f32 at %#x: unexpected end", pc)
			}
			u.U1 = uint64(binary.LittleEndian.Uint32(body[pc+1:]))
			pc += 4
		case wasm.OpcodeF64Const:
			if pc+9 > uint64(len(body)) {
				return nil, fmt.Errorf("read f64 at %#x: unexpected end", pc)
			}
			u.U1 = binary.LittleEndian.Uint64(body[pc+1:])
			pc += 8
		case wasm.OpcodeMiscPrefix:
			var misc uint32
			if misc, n, err = leb128.LoadUint32(body[pc+1:]); err != nil {
				return nil, fmt.Errorf("read misc opcode at %#x: %w", pc, err)
			}
			pc += n
			u.B1 = byte(misc)
			switch wasm.OpcodeMisc(misc) {
			case wasm.OpcodeMiscMemoryCopy:
				pc += 2 // Reserved bytes.
			case wasm.OpcodeMiscMemoryFill:
				pc++ // Reserved byte.
			}
		default:
			if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
				// Alignment is only a hint.
				if _, n, err = leb128.LoadUint32(body[pc+1:]); err != nil {
					return nil, fmt.Errorf("read memory align at %#x: %w", pc, err)
				}
				pc += n
				var offset uint32
				offset, n, err = leb128.LoadUint32(body[pc+1:])
				u.U1 = uint64(offset)
				pc += n
			}
		}
		if err != nil {
			return nil, fmt.Errorf("read immediate of %s at %#x: %w", wasm.InstructionName(op), pc, err)
		}
		ops = append(ops, u)
	}
	if len(controls) != 0 {
		return nil, fmt.Errorf("ill-nested block exists")
	}
	return ops, nil
}
