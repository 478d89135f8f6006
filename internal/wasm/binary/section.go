package binary

import (
	"bytes"
	"fmt"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

func decodeTypeSection(r *bytes.Reader) ([]wasm.FunctionType, error) {
	vs, err := decodeVectorSize(r, 3)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	}
	result := make([]wasm.FunctionType, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeFunctionType(r, &result[i]); err != nil {
			return nil, fmt.Errorf("read %d-th type: %v", i, err)
		}
	}
	return result, nil
}

// decodeImportSection returns the imports and how many of them are functions.
func decodeImportSection(r *bytes.Reader, memoryLimitPages uint32) (result []wasm.Import, funcCount wasm.Index, err error) {
	vs, err := decodeVectorSize(r, 4)
	if err != nil {
		return nil, 0, err
	}

	if vs == 0 {
		return nil, 0, nil
	}
	result = make([]wasm.Import, vs)
	for i := uint32(0); i < vs; i++ {
		imp := &result[i]
		if err = decodeImport(r, i, memoryLimitPages, imp); err != nil {
			return nil, 0, err
		}
		if imp.Type == wasm.ExternTypeFunc {
			funcCount++
		}
	}
	return
}

func decodeFunctionSection(r *bytes.Reader) ([]uint32, error) {
	vs, err := decodeVectorSize(r, 1)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	}
	result := make([]uint32, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("get type index: %w", err)
		}
	}
	return result, err
}

func decodeTableSection(r *bytes.Reader) ([]wasm.Table, error) {
	vs, err := decodeVectorSize(r, 2)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	} else if vs > 1 {
		return nil, fmt.Errorf("at most one table allowed in module, but read %d", vs)
	}

	ret := make([]wasm.Table, 1)
	if err = decodeTable(r, &ret[0]); err != nil {
		return nil, err
	}
	return ret, nil
}

func decodeMemorySection(r *bytes.Reader, memoryLimitPages uint32) (*wasm.Memory, error) {
	vs, err := decodeVectorSize(r, 2)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	} else if vs > 1 {
		return nil, fmt.Errorf("at most one memory allowed in module, but read %d", vs)
	}

	return decodeMemory(r, memoryLimitPages)
}

func decodeGlobalSection(r *bytes.Reader) ([]wasm.Global, error) {
	vs, err := decodeVectorSize(r, 3)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	}
	result := make([]wasm.Global, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeGlobal(r, &result[i]); err != nil {
			return nil, fmt.Errorf("global[%d]: %w", i, err)
		}
	}
	return result, nil
}

func decodeExportSection(r *bytes.Reader) ([]wasm.Export, error) {
	vs, err := decodeVectorSize(r, 3)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	}
	result := make([]wasm.Export, vs)
	for i := wasm.Index(0); i < vs; i++ {
		if err = decodeExport(r, &result[i]); err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
	}
	return result, nil
}

func decodeStartSection(r *bytes.Reader) (*wasm.Index, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get function index: %w", err)
	}
	return &vs, nil
}

func decodeElementSection(r *bytes.Reader) ([]wasm.ElementSegment, error) {
	vs, err := decodeVectorSize(r, 4)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	}
	result := make([]wasm.ElementSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeElementSegment(r, &result[i]); err != nil {
			return nil, fmt.Errorf("read element: %w", err)
		}
	}
	return result, nil
}

func decodeCodeSection(r *bytes.Reader) ([]wasm.Code, error) {
	codeSectionSize := uint64(r.Len())
	vs, err := decodeVectorSize(r, 3)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	}
	result := make([]wasm.Code, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeCode(r, codeSectionSize, &result[i]); err != nil {
			return nil, fmt.Errorf("read %d-th code segment: %v", i, err)
		}
	}
	return result, nil
}

func decodeDataSection(r *bytes.Reader, enabledFeatures api.CoreFeatures) ([]wasm.DataSegment, error) {
	vs, err := decodeVectorSize(r, 3)
	if err != nil {
		return nil, err
	}

	if vs == 0 {
		return nil, nil
	}
	result := make([]wasm.DataSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if err = decodeDataSegment(r, enabledFeatures, &result[i]); err != nil {
			return nil, fmt.Errorf("read data segment: %w", err)
		}
	}
	return result, nil
}

func decodeDataCountSection(r *bytes.Reader) (count *uint32, err error) {
	v, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get data count: %w", err)
	}
	return &v, nil
}

// encodeSection encodes the sectionID, the size of its contents in bytes, followed by the contents.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
func encodeSection(sectionID wasm.SectionID, contents []byte) []byte {
	return append([]byte{sectionID}, encodeSizePrefixed(contents)...)
}

// encodeVector encodes the count followed by each encoded element as a section.
func encodeVector(sectionID wasm.SectionID, count int, encode func(i int) []byte) []byte {
	contents := leb128.EncodeUint32(uint32(count))
	for i := 0; i < count; i++ {
		contents = append(contents, encode(i)...)
	}
	return encodeSection(sectionID, contents)
}
