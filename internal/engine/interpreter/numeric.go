package interpreter

import (
	"math"
	"math/bits"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func compareI32(kind wasm.Opcode, v1, v2 uint32) bool {
	switch kind {
	case wasm.OpcodeI32Eq:
		return v1 == v2
	case wasm.OpcodeI32Ne:
		return v1 != v2
	case wasm.OpcodeI32LtS:
		return int32(v1) < int32(v2)
	case wasm.OpcodeI32LtU:
		return v1 < v2
	case wasm.OpcodeI32GtS:
		return int32(v1) > int32(v2)
	case wasm.OpcodeI32GtU:
		return v1 > v2
	case wasm.OpcodeI32LeS:
		return int32(v1) <= int32(v2)
	case wasm.OpcodeI32LeU:
		return v1 <= v2
	case wasm.OpcodeI32GeS:
		return int32(v1) >= int32(v2)
	default: // wasm.OpcodeI32GeU
		return v1 >= v2
	}
}

func compareI64(kind wasm.Opcode, v1, v2 uint64) bool {
	switch kind {
	case wasm.OpcodeI64Eq:
		return v1 == v2
	case wasm.OpcodeI64Ne:
		return v1 != v2
	case wasm.OpcodeI64LtS:
		return int64(v1) < int64(v2)
	case wasm.OpcodeI64LtU:
		return v1 < v2
	case wasm.OpcodeI64GtS:
		return int64(v1) > int64(v2)
	case wasm.OpcodeI64GtU:
		return v1 > v2
	case wasm.OpcodeI64LeS:
		return int64(v1) <= int64(v2)
	case wasm.OpcodeI64LeU:
		return v1 <= v2
	case wasm.OpcodeI64GeS:
		return int64(v1) >= int64(v2)
	default: // wasm.OpcodeI64GeU
		return v1 >= v2
	}
}

// compareFloat takes the position of the comparison relative to its eq opcode, as f32 and f64 comparisons are
// ordered the same. Every comparison with NaN is false, except ne.
func compareFloat(rel wasm.Opcode, v1, v2 float64) bool {
	switch rel {
	case 0: // eq
		return v1 == v2
	case 1: // ne
		return v1 != v2
	case 2: // lt
		return v1 < v2
	case 3: // gt
		return v1 > v2
	case 4: // le
		return v1 <= v2
	default: // ge
		return v1 >= v2
	}
}

func binaryI32(kind wasm.Opcode, v1, v2 uint32) uint32 {
	switch kind {
	case wasm.OpcodeI32Add:
		return v1 + v2
	case wasm.OpcodeI32Sub:
		return v1 - v2
	case wasm.OpcodeI32Mul:
		return v1 * v2
	case wasm.OpcodeI32DivS:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		if int32(v1) == math.MinInt32 && int32(v2) == -1 {
			panic(api.ErrRuntimeIntegerOverflow)
		}
		return uint32(int32(v1) / int32(v2))
	case wasm.OpcodeI32DivU:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		return v1 / v2
	case wasm.OpcodeI32RemS:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		if int32(v2) == -1 {
			return 0
		}
		return uint32(int32(v1) % int32(v2))
	case wasm.OpcodeI32RemU:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		return v1 % v2
	case wasm.OpcodeI32And:
		return v1 & v2
	case wasm.OpcodeI32Or:
		return v1 | v2
	case wasm.OpcodeI32Xor:
		return v1 ^ v2
	case wasm.OpcodeI32Shl:
		return v1 << (v2 % 32)
	case wasm.OpcodeI32ShrS:
		return uint32(int32(v1) >> (v2 % 32))
	case wasm.OpcodeI32ShrU:
		return v1 >> (v2 % 32)
	case wasm.OpcodeI32Rotl:
		return bits.RotateLeft32(v1, int(v2%32))
	default: // wasm.OpcodeI32Rotr
		return bits.RotateLeft32(v1, -int(v2%32))
	}
}

func binaryI64(kind wasm.Opcode, v1, v2 uint64) uint64 {
	switch kind {
	case wasm.OpcodeI64Add:
		return v1 + v2
	case wasm.OpcodeI64Sub:
		return v1 - v2
	case wasm.OpcodeI64Mul:
		return v1 * v2
	case wasm.OpcodeI64DivS:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		if int64(v1) == math.MinInt64 && int64(v2) == -1 {
			panic(api.ErrRuntimeIntegerOverflow)
		}
		return uint64(int64(v1) / int64(v2))
	case wasm.OpcodeI64DivU:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		return v1 / v2
	case wasm.OpcodeI64RemS:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		if int64(v2) == -1 {
			return 0
		}
		return uint64(int64(v1) % int64(v2))
	case wasm.OpcodeI64RemU:
		if v2 == 0 {
			panic(api.ErrRuntimeIntegerDivideByZero)
		}
		return v1 % v2
	case wasm.OpcodeI64And:
		return v1 & v2
	case wasm.OpcodeI64Or:
		return v1 | v2
	case wasm.OpcodeI64Xor:
		return v1 ^ v2
	case wasm.OpcodeI64Shl:
		return v1 << (v2 % 64)
	case wasm.OpcodeI64ShrS:
		return uint64(int64(v1) >> (v2 % 64))
	case wasm.OpcodeI64ShrU:
		return v1 >> (v2 % 64)
	case wasm.OpcodeI64Rotl:
		return bits.RotateLeft64(v1, int(v2%64))
	default: // wasm.OpcodeI64Rotr
		return bits.RotateLeft64(v1, -int(v2%64))
	}
}

// Float-to-integer conversions take float64 as every float32 converts to it exactly. Bounds are compared after
// truncation, so values in (-1, 0] convert to zero as unsigned.

func i32TruncS(v float64) int32 {
	if math.IsNaN(v) {
		panic(api.ErrRuntimeInvalidConversionToInteger)
	}
	v = math.Trunc(v)
	if v < math.MinInt32 || v > math.MaxInt32 {
		panic(api.ErrRuntimeIntegerOverflow)
	}
	return int32(v)
}

func i32TruncU(v float64) uint32 {
	if math.IsNaN(v) {
		panic(api.ErrRuntimeInvalidConversionToInteger)
	}
	v = math.Trunc(v)
	if v < 0 || v > math.MaxUint32 {
		panic(api.ErrRuntimeIntegerOverflow)
	}
	return uint32(v)
}

func i64TruncS(v float64) int64 {
	if math.IsNaN(v) {
		panic(api.ErrRuntimeInvalidConversionToInteger)
	}
	v = math.Trunc(v)
	// math.MaxInt64 rounds up to 2^63 as a float64.
	if v < math.MinInt64 || v >= math.MaxInt64 {
		panic(api.ErrRuntimeIntegerOverflow)
	}
	return int64(v)
}

func i64TruncU(v float64) uint64 {
	if math.IsNaN(v) {
		panic(api.ErrRuntimeInvalidConversionToInteger)
	}
	v = math.Trunc(v)
	if v < 0 || v >= math.MaxUint64 {
		panic(api.ErrRuntimeIntegerOverflow)
	}
	return uint64(v)
}

func i32TruncSatS(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < math.MinInt32:
		return math.MinInt32
	case v > math.MaxInt32:
		return math.MaxInt32
	}
	return int32(v)
}

func i32TruncSatU(v float64) uint32 {
	switch {
	case math.IsNaN(v), v <= -1:
		return 0
	case v > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(math.Trunc(v))
}

func i64TruncSatS(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < math.MinInt64:
		return math.MinInt64
	case v >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(v)
}

func i64TruncSatU(v float64) uint64 {
	switch {
	case math.IsNaN(v), v <= -1:
		return 0
	case v >= math.MaxUint64:
		return math.MaxUint64
	}
	return uint64(math.Trunc(v))
}
