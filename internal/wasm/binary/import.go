package binary

import (
	"bytes"
	"fmt"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

func decodeImport(r *bytes.Reader, idx uint32, memoryLimitPages uint32, ret *wasm.Import) (err error) {
	if ret.Module, _, err = decodeUTF8(r, "import[%d] module", idx); err != nil {
		return
	}

	if ret.Name, _, err = decodeUTF8(r, "import[%d] name", idx); err != nil {
		return
	}

	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("import[%d] %s.%s: error decoding import kind: %w", idx, ret.Module, ret.Name, err)
	}

	ret.Type = b
	switch ret.Type {
	case wasm.ExternTypeFunc:
		ret.DescFunc, _, err = leb128.DecodeUint32(r)
	case wasm.ExternTypeTable:
		err = decodeTable(r, &ret.DescTable)
	case wasm.ExternTypeMemory:
		ret.DescMem, err = decodeMemory(r, memoryLimitPages)
	case wasm.ExternTypeGlobal:
		ret.DescGlobal, err = decodeGlobalType(r)
	default:
		err = fmt.Errorf("%w: invalid byte for importdesc: %#x", ErrInvalidByte, b)
	}
	if err != nil {
		return fmt.Errorf("import[%d] %s[%s.%s]: %w", idx, api.ExternTypeName(ret.Type), ret.Module, ret.Name, err)
	}
	return nil
}

// encodeImport returns the wasm.Import encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-import
func encodeImport(i *wasm.Import) []byte {
	data := encodeSizePrefixed([]byte(i.Module))
	data = append(data, encodeSizePrefixed([]byte(i.Name))...)
	data = append(data, i.Type)
	switch i.Type {
	case wasm.ExternTypeFunc:
		data = append(data, leb128.EncodeUint32(i.DescFunc)...)
	case wasm.ExternTypeTable:
		data = append(data, encodeTable(&i.DescTable)...)
	case wasm.ExternTypeMemory:
		data = append(data, encodeMemory(i.DescMem)...)
	case wasm.ExternTypeGlobal:
		data = append(data, encodeGlobalType(i.DescGlobal)...)
	default:
		panic(fmt.Errorf("invalid externtype: %s", api.ExternTypeName(i.Type)))
	}
	return data
}
