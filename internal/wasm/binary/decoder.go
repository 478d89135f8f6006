package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/leb128"
	"github.com/tetratelabs/wasmcore/internal/wasm"
)

// DecodeModule implements wasm.DecodeModule for the WebAssembly 1.0 (20191205) Binary Format
//
// Every failure is an *api.MalformedBinaryError whose Offset is absolute in binary.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
func DecodeModule(binary []byte, enabledFeatures api.CoreFeatures, memoryLimitPages uint32) (*wasm.Module, error) {
	r := bytes.NewReader(binary)
	offset := func() uint64 { return uint64(len(binary) - r.Len()) }

	// Magic number.
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, Magic) {
		return nil, &api.MalformedBinaryError{Offset: 0, Expected: "magic number", Err: ErrInvalidMagicNumber}
	}

	// Version.
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, version) {
		return nil, &api.MalformedBinaryError{Offset: 4, Expected: "version", Err: ErrInvalidVersion}
	}

	m := &wasm.Module{}
	lastOrder := -1
	for {
		sectionStart := offset()
		sectionID, err := r.ReadByte()
		if err == io.EOF {
			break
		}

		sectionSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, &api.MalformedBinaryError{Offset: offset(), Expected: "section header",
				Err: fmt.Errorf("get size of section %s: %w", wasm.SectionIDName(sectionID), err)}
		}

		contentStart := offset()
		if uint64(sectionSize) > uint64(r.Len()) {
			return nil, &api.MalformedBinaryError{Offset: contentStart, Expected: "section header",
				Err: fmt.Errorf("section %s size %d exceeds the remaining %d bytes: %w",
					wasm.SectionIDName(sectionID), sectionSize, r.Len(), io.ErrUnexpectedEOF)}
		}
		content := binary[contentStart : contentStart+uint64(sectionSize)]
		_, _ = r.Seek(int64(sectionSize), io.SeekCurrent)

		if sectionID > wasm.SectionIDDataCount {
			return nil, &api.MalformedBinaryError{Offset: sectionStart, Expected: "section id",
				Err: fmt.Errorf("%w: %#x", ErrInvalidSectionID, sectionID)}
		}

		if sectionID != wasm.SectionIDCustom {
			order := wasm.SectionOrder(sectionID)
			if order == lastOrder {
				return nil, &api.MalformedBinaryError{Offset: sectionStart, Expected: "section id",
					Err: fmt.Errorf("multiple %s sections are invalid", wasm.SectionIDName(sectionID))}
			} else if order < lastOrder {
				return nil, &api.MalformedBinaryError{Offset: sectionStart, Expected: "section id",
					Err: fmt.Errorf("%s section is out of order", wasm.SectionIDName(sectionID))}
			}
			lastOrder = order
		}

		sr := bytes.NewReader(content)
		switch sectionID {
		case wasm.SectionIDCustom:
			err = decodeCustomSection(sr, m)
		case wasm.SectionIDType:
			m.TypeSection, err = decodeTypeSection(sr)
		case wasm.SectionIDImport:
			m.ImportSection, m.ImportFunctionCount, err = decodeImportSection(sr, memoryLimitPages)
		case wasm.SectionIDFunction:
			m.FunctionSection, err = decodeFunctionSection(sr)
		case wasm.SectionIDTable:
			m.TableSection, err = decodeTableSection(sr)
		case wasm.SectionIDMemory:
			m.MemorySection, err = decodeMemorySection(sr, memoryLimitPages)
		case wasm.SectionIDGlobal:
			m.GlobalSection, err = decodeGlobalSection(sr)
		case wasm.SectionIDExport:
			m.ExportSection, err = decodeExportSection(sr)
		case wasm.SectionIDStart:
			m.StartSection, err = decodeStartSection(sr)
		case wasm.SectionIDElement:
			m.ElementSection, err = decodeElementSection(sr)
		case wasm.SectionIDDataCount:
			if err = enabledFeatures.RequireEnabled(api.CoreFeatureBulkMemoryOperations); err != nil {
				err = fmt.Errorf("data count section not supported as %v", err)
				break
			}
			m.DataCountSection, err = decodeDataCountSection(sr)
		case wasm.SectionIDCode:
			m.CodeSection, err = decodeCodeSection(sr)
		case wasm.SectionIDData:
			m.DataSection, err = decodeDataSection(sr, enabledFeatures)
		}

		if err == nil && sr.Len() != 0 {
			err = fmt.Errorf("invalid section length: expected to be %d but got %d", sectionSize, sectionSize-uint32(sr.Len()))
		}

		if err != nil {
			return nil, &api.MalformedBinaryError{
				Offset:   contentStart + uint64(sectionSize) - uint64(sr.Len()),
				Expected: wasm.SectionIDName(sectionID) + " section",
				Err:      err,
			}
		}
	}

	if functionCount, codeCount := len(m.FunctionSection), len(m.CodeSection); functionCount != codeCount {
		return nil, &api.MalformedBinaryError{Offset: offset(), Expected: "code section",
			Err: fmt.Errorf("function and code section have inconsistent lengths: %d != %d", functionCount, codeCount)}
	}
	return m, nil
}

// decodeCustomSection decodes the "name" section into the module and skips any other. Only the first "name" section
// is used, and one that doesn't decode is ignored, as names are informational.
func decodeCustomSection(r *bytes.Reader, m *wasm.Module) error {
	name, _, err := decodeUTF8(r, "custom section name")
	if err != nil {
		return err
	}

	data := make([]byte, r.Len())
	_, _ = io.ReadFull(r, data)

	if name == "name" && m.NameSection == nil {
		if ns, err := decodeNameSection(data); err == nil {
			m.NameSection = ns
		}
	}
	return nil
}
