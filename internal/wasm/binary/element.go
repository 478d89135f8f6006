package binary

import (
	"bytes"
	"fmt"

	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// elementSegmentPrefixLegacy is the only supported segment kind: active, table zero, with a vector of function
// indexes. Passive and declarative segments need reference types and table bulk operations.
const elementSegmentPrefixLegacy = 0x00

func decodeElementSegment(r *bytes.Reader, ret *wasm.ElementSegment) error {
	prefix, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read element prefix: %w", err)
	}

	if prefix != elementSegmentPrefixLegacy {
		return fmt.Errorf("element segment kind %#x is not supported", prefix)
	}

	// Legacy prefix which is WebAssembly 1.0 compatible.
	if err = decodeConstantExpression(r, &ret.OffsetExpr); err != nil {
		return fmt.Errorf("read expr for offset: %w", err)
	}

	vs, err := decodeVectorSize(r, 1)
	if err != nil {
		return err
	}
	if vs > 0 {
		ret.Init = make([]wasm.Index, vs)
	}
	for i := range ret.Init {
		if ret.Init[i], _, err = leb128.DecodeUint32(r); err != nil {
			return fmt.Errorf("read function index: %w", err)
		}
	}
	return nil
}

// encodeElement returns the wasm.ElementSegment encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#element-section%E2%91%A0
func encodeElement(e *wasm.ElementSegment) []byte {
	ret := append([]byte{elementSegmentPrefixLegacy}, encodeConstantExpression(&e.OffsetExpr)...)
	ret = append(ret, leb128.EncodeUint32(uint32(len(e.Init)))...)
	for _, idx := range e.Init {
		ret = append(ret, leb128.EncodeUint32(idx)...)
	}
	return ret
}
