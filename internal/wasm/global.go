package wasm

import (
	"fmt"

	"github.com/tetratelabs/wasmcore/api"
)

// GlobalInstance represents a global instance in a store.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-instances%E2%91%A0
type GlobalInstance struct {
	Type GlobalType
	// Val holds a 64-bit representation of the actual value.
	Val uint64
}

// String implements fmt.Stringer
func (g *GlobalInstance) String() string {
	switch g.Type.ValType {
	case ValueTypeI32:
		return fmt.Sprintf("global(%d)", int32(g.Val))
	case ValueTypeI64:
		return fmt.Sprintf("global(%d)", int64(g.Val))
	case ValueTypeF32:
		return fmt.Sprintf("global(%f)", api.DecodeF32(g.Val))
	case ValueTypeF64:
		return fmt.Sprintf("global(%f)", api.DecodeF64(g.Val))
	default:
		panic(fmt.Errorf("BUG: unknown value type %X", g.Type.ValType))
	}
}
