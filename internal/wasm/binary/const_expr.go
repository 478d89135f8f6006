package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

func decodeConstantExpression(r *bytes.Reader, ret *wasm.ConstantExpression) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read opcode: %v", err)
	}

	remainingBeforeData := int64(r.Len())
	offsetAtData := r.Size() - remainingBeforeData

	opcode := b
	switch opcode {
	case wasm.OpcodeI32Const:
		_, _, err = leb128.DecodeInt32(r)
	case wasm.OpcodeI64Const:
		_, _, err = leb128.DecodeInt64(r)
	case wasm.OpcodeF32Const:
		if r.Len() < 4 {
			err = io.ErrUnexpectedEOF
		} else {
			_, err = r.Seek(4, io.SeekCurrent)
		}
	case wasm.OpcodeF64Const:
		if r.Len() < 8 {
			err = io.ErrUnexpectedEOF
		} else {
			_, err = r.Seek(8, io.SeekCurrent)
		}
	case wasm.OpcodeGlobalGet:
		_, _, err = leb128.DecodeUint32(r)
	default:
		return fmt.Errorf("%v for const expression opt code: %#x", ErrInvalidByte, b)
	}

	if err != nil {
		return fmt.Errorf("read value: %v", err)
	}

	if b, err = r.ReadByte(); err != nil {
		return fmt.Errorf("look for end opcode: %v", err)
	}

	if b != wasm.OpcodeEnd {
		return fmt.Errorf("constant expression has been not terminated")
	}

	data := make([]byte, remainingBeforeData-int64(r.Len())-1)
	if _, err = r.ReadAt(data, offsetAtData); err != nil {
		return fmt.Errorf("error re-buffering ConstantExpression.Data")
	}

	ret.Opcode = opcode
	ret.Data = data
	return nil
}

// encodeConstantExpression returns the wasm.ConstantExpression encoded in WebAssembly 1.0 (20191205) Binary Format,
// terminated by OpcodeEnd.
func encodeConstantExpression(expr *wasm.ConstantExpression) []byte {
	data := append([]byte{expr.Opcode}, expr.Data...)
	return append(data, wasm.OpcodeEnd)
}
