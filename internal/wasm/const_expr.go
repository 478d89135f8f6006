package wasm

import (
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wasmcore/internal/leb128"
)

// validateConstExpression checks the expression is a constant instruction producing expectedType. globals are the
// ones visible to the expression.
func validateConstExpression(globals []GlobalType, expr *ConstantExpression, expectedType ValueType) error {
	var actualType ValueType
	switch expr.Opcode {
	case OpcodeI32Const:
		if _, _, err := leb128.LoadInt32(expr.Data); err != nil {
			return fmt.Errorf("read i32: %w", err)
		}
		actualType = ValueTypeI32
	case OpcodeI64Const:
		if _, _, err := leb128.LoadInt64(expr.Data); err != nil {
			return fmt.Errorf("read i64: %w", err)
		}
		actualType = ValueTypeI64
	case OpcodeF32Const:
		if len(expr.Data) < 4 {
			return fmt.Errorf("read f32: unexpected end of data")
		}
		actualType = ValueTypeF32
	case OpcodeF64Const:
		if len(expr.Data) < 8 {
			return fmt.Errorf("read f64: unexpected end of data")
		}
		actualType = ValueTypeF64
	case OpcodeGlobalGet:
		id, _, err := leb128.LoadUint32(expr.Data)
		if err != nil {
			return fmt.Errorf("read index of global: %w", err)
		}
		if uint32(len(globals)) <= id {
			return fmt.Errorf("global index out of range")
		}
		if globals[id].Mutable {
			return fmt.Errorf("constant expression cannot read mutable global[%d]", id)
		}
		actualType = globals[id].ValType
	default:
		return fmt.Errorf("invalid opcode for const expression: %#x", expr.Opcode)
	}

	if actualType != expectedType {
		return fmt.Errorf("const expression type mismatch expected %s but got %s",
			ValueTypeName(expectedType), ValueTypeName(actualType))
	}
	return nil
}

// evaluateConstExpression returns the raw bits of a validated constant expression.
func evaluateConstExpression(globals []*GlobalInstance, expr *ConstantExpression) uint64 {
	switch expr.Opcode {
	case OpcodeI32Const:
		v, _, _ := leb128.LoadInt32(expr.Data)
		return uint64(uint32(v))
	case OpcodeI64Const:
		v, _, _ := leb128.LoadInt64(expr.Data)
		return uint64(v)
	case OpcodeF32Const:
		return uint64(binary.LittleEndian.Uint32(expr.Data))
	case OpcodeF64Const:
		return binary.LittleEndian.Uint64(expr.Data)
	case OpcodeGlobalGet:
		id, _, _ := leb128.LoadUint32(expr.Data)
		return globals[id].Val
	}
	panic(fmt.Errorf("BUG: invalid const expression opcode %#x", expr.Opcode))
}
