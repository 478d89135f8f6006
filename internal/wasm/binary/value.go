package binary

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

func decodeValueTypes(r *bytes.Reader, num uint32) ([]wasm.ValueType, error) {
	if num == 0 {
		return nil, nil
	}
	if uint64(num) > uint64(r.Len()) {
		return nil, fmt.Errorf("value type count %d exceeds the remaining %d bytes: %w", num, r.Len(), io.ErrUnexpectedEOF)
	}

	ret := make([]wasm.ValueType, num)
	if _, err := io.ReadFull(r, ret); err != nil {
		return nil, err
	}

	for _, v := range ret {
		switch v {
		case wasm.ValueTypeI32, wasm.ValueTypeF32, wasm.ValueTypeI64, wasm.ValueTypeF64:
		default:
			return nil, fmt.Errorf("%w: invalid value type: %#x", ErrInvalidByte, v)
		}
	}
	return ret, nil
}

// decodeUTF8 decodes a size prefixed string from the reader, returning it and the count of bytes read.
// contextFormat and contextArgs apply an error format when present
func decodeUTF8(r *bytes.Reader, contextFormat string, contextArgs ...interface{}) (string, uint32, error) {
	size, sizeOfSize, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s size: %w", fmt.Sprintf(contextFormat, contextArgs...), err)
	}

	if uint64(size) > uint64(r.Len()) {
		return "", 0, fmt.Errorf("%s size %d exceeds the remaining %d bytes: %w",
			fmt.Sprintf(contextFormat, contextArgs...), size, r.Len(), io.ErrUnexpectedEOF)
	}

	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", fmt.Sprintf(contextFormat, contextArgs...), err)
	}

	if !utf8.Valid(buf) {
		return "", 0, fmt.Errorf("%s is not valid UTF-8", fmt.Sprintf(contextFormat, contextArgs...))
	}

	return string(buf), size + uint32(sizeOfSize), nil
}

// decodeVectorSize reads the count of a vector, failing when it can't fit the remaining bytes given each element
// takes at least minElementSize.
func decodeVectorSize(r *bytes.Reader, minElementSize int) (uint32, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("get size of vector: %w", err)
	}
	if uint64(vs)*uint64(minElementSize) > uint64(r.Len()) {
		return 0, fmt.Errorf("vector size %d exceeds the remaining %d bytes: %w", vs, r.Len(), io.ErrUnexpectedEOF)
	}
	return vs, nil
}

// encodeSizePrefixed encodes the data with its length as a prefix.
func encodeSizePrefixed(data []byte) []byte {
	size := leb128.EncodeUint32(uint32(len(data)))
	return append(size, data...)
}

// encodeValTypes encodes a vector of value types.
func encodeValTypes(vt []wasm.ValueType) []byte {
	return encodeSizePrefixed(vt)
}
