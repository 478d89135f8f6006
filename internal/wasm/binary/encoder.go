package binary

import (
	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

var sizePrefixedName = []byte{4, 'n', 'a', 'm', 'e'}

// EncodeModule implements wasm.EncodeModule for the WebAssembly 1.0 (20191205) Binary Format.
// Note: If saving to a file, the conventional extension is wasm
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
func EncodeModule(m *wasm.Module) (bytes []byte) {
	bytes = append(append([]byte{}, Magic...), version...)
	if len(m.TypeSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDType, len(m.TypeSection), func(i int) []byte {
			return encodeFunctionType(&m.TypeSection[i])
		})...)
	}
	if len(m.ImportSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDImport, len(m.ImportSection), func(i int) []byte {
			return encodeImport(&m.ImportSection[i])
		})...)
	}
	if len(m.FunctionSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDFunction, len(m.FunctionSection), func(i int) []byte {
			return leb128.EncodeUint32(m.FunctionSection[i])
		})...)
	}
	if len(m.TableSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDTable, len(m.TableSection), func(i int) []byte {
			return encodeTable(&m.TableSection[i])
		})...)
	}
	if m.MemorySection != nil {
		bytes = append(bytes, encodeVector(wasm.SectionIDMemory, 1, func(int) []byte {
			return encodeMemory(m.MemorySection)
		})...)
	}
	if len(m.GlobalSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDGlobal, len(m.GlobalSection), func(i int) []byte {
			return encodeGlobal(&m.GlobalSection[i])
		})...)
	}
	if len(m.ExportSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDExport, len(m.ExportSection), func(i int) []byte {
			return encodeExport(&m.ExportSection[i])
		})...)
	}
	if m.StartSection != nil {
		bytes = append(bytes, encodeSection(wasm.SectionIDStart, leb128.EncodeUint32(*m.StartSection))...)
	}
	if len(m.ElementSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDElement, len(m.ElementSection), func(i int) []byte {
			return encodeElement(&m.ElementSection[i])
		})...)
	}
	if m.DataCountSection != nil {
		bytes = append(bytes, encodeSection(wasm.SectionIDDataCount, leb128.EncodeUint32(*m.DataCountSection))...)
	}
	if len(m.CodeSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDCode, len(m.CodeSection), func(i int) []byte {
			return encodeCode(&m.CodeSection[i])
		})...)
	}
	if len(m.DataSection) > 0 {
		bytes = append(bytes, encodeVector(wasm.SectionIDData, len(m.DataSection), func(i int) []byte {
			return encodeDataSegment(&m.DataSection[i])
		})...)
	}
	// >> The name section should appear only once in a module, and only after the data section.
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-namesec
	if m.NameSection != nil {
		nameSection := append(append([]byte{}, sizePrefixedName...), encodeNameSectionData(m.NameSection)...)
		bytes = append(bytes, encodeSection(wasm.SectionIDCustom, nameSection)...)
	}
	return
}
