package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// maxLocals is the count of locals, excluding parameters, allowed in one function. Engines preallocate a frame slot
// per local, so an absurd count would be a cheap way to exhaust memory.
const maxLocals = 50000

func decodeCode(r *bytes.Reader, codeSectionSize uint64, ret *wasm.Code) (err error) {
	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get the size of code: %w", err)
	}
	if int64(ss) > int64(r.Len()) {
		return fmt.Errorf("code size %d exceeds the remaining %d bytes: %w", ss, r.Len(), io.ErrUnexpectedEOF)
	}
	end := r.Len() - int(ss) // remaining bytes once this entry is consumed

	// Parse #locals.
	ls, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get the size locals: %v", err)
	}

	type localBlock struct {
		num uint32
		vt  wasm.ValueType
	}
	var blocks []localBlock
	var sum uint64
	for i := uint32(0); i < ls; i++ {
		num, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read n of locals: %v", err)
		}

		sum += uint64(num)
		if sum > maxLocals {
			return fmt.Errorf("too many locals: %d > %d", sum, maxLocals)
		}

		vt, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read type of local: %v", err)
		}

		switch vt {
		case wasm.ValueTypeI32, wasm.ValueTypeF32, wasm.ValueTypeI64, wasm.ValueTypeF64:
		default:
			return fmt.Errorf("invalid local type: 0x%x", vt)
		}
		blocks = append(blocks, localBlock{num, vt})
	}

	if sum > 0 {
		ret.LocalTypes = make([]wasm.ValueType, 0, sum)
	}
	for _, b := range blocks {
		for j := uint32(0); j < b.num; j++ {
			ret.LocalTypes = append(ret.LocalTypes, b.vt)
		}
	}

	bodySize := r.Len() - end
	if bodySize <= 0 {
		return fmt.Errorf("function body is empty: %w", io.ErrUnexpectedEOF)
	}

	ret.BodyOffsetInCodeSection = codeSectionSize - uint64(r.Len())
	ret.Body = make([]byte, bodySize)
	if _, err = io.ReadFull(r, ret.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if ret.Body[bodySize-1] != wasm.OpcodeEnd {
		return fmt.Errorf("expr not end with OpcodeEnd")
	}
	return nil
}

// encodeCode returns the wasm.Code encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-code
func encodeCode(c *wasm.Code) []byte {
	// local blocks compress locals while preserving index order by grouping locals of the same type.
	// https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#code-section%E2%91%A0
	localBlockCount := uint32(0) // how many blocks of locals with the same type (types can repeat!)
	var localBlocks []byte
	localTypeLen := len(c.LocalTypes)
	if localTypeLen > 0 {
		i := localTypeLen - 1
		var runCount uint32               // count of the same type
		var lastValueType wasm.ValueType // initialize to an invalid type 0

		// iterate backwards so it is easier to size prefix
		for ; i >= 0; i-- {
			vt := c.LocalTypes[i]
			if lastValueType != vt {
				if runCount != 0 { // Only on the first iteration, this is zero when vt is compared against invalid
					localBlocks = append(leb128.EncodeUint32(runCount), localBlocks...)
				}
				lastValueType = vt
				localBlocks = append([]byte{vt}, localBlocks...)
				localBlockCount++
				runCount = 1
			} else {
				runCount++
			}
		}
		localBlocks = append(leb128.EncodeUint32(runCount), localBlocks...)
		localBlocks = append(leb128.EncodeUint32(localBlockCount), localBlocks...)
	} else {
		localBlocks = leb128.EncodeUint32(0)
	}
	code := append(localBlocks, c.Body...)
	return append(leb128.EncodeUint32(uint32(len(code))), code...)
}
