package binary

import (
	"bytes"
	"fmt"

	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// functionTypePrefix precedes each function type.
const functionTypePrefix = 0x60

func decodeFunctionType(r *bytes.Reader, ret *wasm.FunctionType) (err error) {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read leading byte: %w", err)
	}

	if b != functionTypePrefix {
		return fmt.Errorf("%w: %#x != 0x60", ErrInvalidByte, b)
	}

	paramCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("could not read parameter count: %w", err)
	}

	if ret.Params, err = decodeValueTypes(r, paramCount); err != nil {
		return fmt.Errorf("could not read parameter types: %w", err)
	}

	resultCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("could not read result count: %w", err)
	}

	if ret.Results, err = decodeValueTypes(r, resultCount); err != nil {
		return fmt.Errorf("could not read result types: %w", err)
	}
	return nil
}

// encodeFunctionType returns the wasm.FunctionType encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// Note: Function types are encoded by the byte 0x60 followed by the respective vectors of parameter and result types.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-types%E2%91%A4
func encodeFunctionType(t *wasm.FunctionType) []byte {
	data := append([]byte{functionTypePrefix}, encodeValTypes(t.Params)...)
	return append(data, encodeValTypes(t.Results)...)
}
