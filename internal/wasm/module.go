package wasm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wasmcore/api"
)

// Module is a WebAssembly binary representation.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#modules%E2%91%A8
//
// Differences from the specification:
//   - NameSection is the only key ("name") decoded from the SectionIDCustom.
//   - MemorySection is a pointer as at most one memory is allowed.
//
// Note: A Module is immutable once validated, so it is safe to share between instances and goroutines.
type Module struct {
	// TypeSection contains the unique FunctionType of functions imported or defined in this module.
	//
	// Note: In the Binary Format, this is SectionIDType.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#types%E2%91%A0%E2%91%A0
	TypeSection []FunctionType

	// ImportSection contains imported functions, tables, memories or globals required for instantiation.
	//
	// Note: Only ExternTypeFunc imports can be satisfied when instantiating. Others are decoded and validated, so
	// tooling can report them, but fail instantiation.
	// Note: In the Binary Format, this is SectionIDImport.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#import-section%E2%91%A0
	ImportSection []Import

	// ImportFunctionCount is the count of ExternTypeFunc in ImportSection. It is set by the decoder.
	ImportFunctionCount Index

	// FunctionSection contains the index in TypeSection of each function defined in this module.
	//
	// Note: The function Index space begins with imported functions and ends with those defined in this module.
	// For example, if there are two imported functions and one defined in this module, the function Index 3 is defined
	// in this module at FunctionSection[0].
	//
	// Note: FunctionSection is index correlated with the CodeSection. If given the same position, e.g. 2, a function
	// type is at TypeSection[FunctionSection[2]], while its locals and body are at CodeSection[2].
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-section%E2%91%A0
	FunctionSection []Index

	// TableSection contains each table defined in this module. There is at most one, holding funcref.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-section%E2%91%A0
	TableSection []Table

	// MemorySection contains the memory defined in this module or nil if there is none.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-section%E2%91%A0
	MemorySection *Memory

	// GlobalSection contains each global defined in this module.
	//
	// Global indexes are offset by any imported globals because the global index space begins with imports, followed by
	// ones defined in this module.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-section%E2%91%A0
	GlobalSection []Global

	// ExportSection contains each export defined in this module, in the order they were decoded.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#exports%E2%91%A0
	ExportSection []Export

	// StartSection is the index of a function to call before returning from instantiation.
	//
	// Note: The index here is not the position in the FunctionSection, rather in the function index space, which
	// begins with imported functions.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#start-section%E2%91%A0
	StartSection *Index

	// ElementSection contains active segments initializing the table.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#element-section%E2%91%A0
	ElementSection []ElementSegment

	// CodeSection is index-correlated with FunctionSection and contains each function's locals and body.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#code-section%E2%91%A0
	CodeSection []Code

	// DataSection contains active segments initializing memory.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#data-section%E2%91%A0
	DataSection []DataSegment

	// DataCountSection is the declared count of DataSection, present when CoreFeatureBulkMemoryOperations is used.
	//
	// See https://www.w3.org/TR/2022/WD-wasm-core-2-20220419/binary/modules.html#data-count-section
	DataCountSection *uint32

	// NameSection is set when the SectionIDCustom "name" was successfully decoded from the binary format.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#name-section%E2%91%A0
	NameSection *NameSection
}

// Index is the offset in an index namespace, not necessarily an absolute position in a Module section. This is because
// index namespaces are often preceded by a corresponding type in the Module.ImportSection.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-index
type Index = uint32

// ValueType is an alias of api.ValueType defined to simplify imports.
type ValueType = api.ValueType

const (
	ValueTypeI32 = api.ValueTypeI32
	ValueTypeI64 = api.ValueTypeI64
	ValueTypeF32 = api.ValueTypeF32
	ValueTypeF64 = api.ValueTypeF64
)

// ValueTypeName is an alias of api.ValueTypeName defined to simplify imports.
func ValueTypeName(t ValueType) string {
	return api.ValueTypeName(t)
}

// ExternType is an alias of api.ExternType defined to simplify imports.
type ExternType = api.ExternType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
)

// RefTypeFuncref is the only reference type a table can hold here.
const RefTypeFuncref byte = 0x70

// FunctionType is a possibly empty function signature.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-types%E2%91%A0
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType

	// Results are the possibly empty sequence of value types returned by a function with this signature.
	//
	// Note: In WebAssembly 1.0 (20191205), there can be at most one result.
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#result-types%E2%91%A0
	Results []ValueType
}

// String returns a key like "i32i32_i32" used to compare signatures and in error messages.
func (f *FunctionType) String() string {
	var sb strings.Builder
	for _, b := range f.Params {
		sb.WriteString(ValueTypeName(b))
	}
	if len(f.Params) == 0 {
		sb.WriteString("v")
	}
	sb.WriteByte('_')
	for _, b := range f.Results {
		sb.WriteString(ValueTypeName(b))
	}
	if len(f.Results) == 0 {
		sb.WriteString("v")
	}
	return sb.String()
}

// EqualsSignature returns true if the function type has the same parameters and results.
func (f *FunctionType) EqualsSignature(params []ValueType, results []ValueType) bool {
	return string(f.Params) == string(params) && string(f.Results) == string(results)
}

// Import is the binary representation of an import indicated by Type
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-import
type Import struct {
	Type ExternType
	// Module is the possibly empty primary namespace of this import
	Module string
	// Name is the possibly empty secondary namespace of this import
	Name string
	// DescFunc is the index in Module.TypeSection when Type equals ExternTypeFunc
	DescFunc Index
	// DescTable is the inlined Table when Type equals ExternTypeTable
	DescTable Table
	// DescMem is the inlined Memory when Type equals ExternTypeMemory
	DescMem *Memory
	// DescGlobal is the inlined GlobalType when Type equals ExternTypeGlobal
	DescGlobal GlobalType
}

// Memory describes the limits of pages (64KB) in a memory.
type Memory struct {
	Min uint32
	// Max is the declared maximum, or MemoryLimitPages passed to the decoder when IsMaxEncoded is false.
	Max          uint32
	IsMaxEncoded bool
}

// Table describes the limits of elements and its type in a table.
type Table struct {
	Min  uint32
	Max  *uint32
	Type byte
}

// GlobalType is the type of a global, which is immutable unless Mutable.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global is a global defined in this module, initialized by a constant expression.
type Global struct {
	Type GlobalType
	Init ConstantExpression
}

// ConstantExpression is a single instruction (Opcode) and its immediate Data, used for initial values.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#constant-expressions%E2%91%A0
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// Export is the binary representation of an export indicated by Type
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-export
type Export struct {
	Type ExternType

	// Name is what the host refers to this definition as.
	Name string

	// Index is the index of the definition to export, the index is by Type
	// e.g. If ExternTypeFunc, this is a position in the function index space.
	Index Index
}

// ElementSegment is an active segment writing function indexes into the table at OffsetExpr.
type ElementSegment struct {
	OffsetExpr ConstantExpression
	TableIndex Index
	Init       []Index
}

// Code is an entry in the Module.CodeSection containing the locals and body of the function.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-code
type Code struct {
	// LocalTypes are any function-scoped variables in insertion order.
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-local
	LocalTypes []ValueType

	// Body is a sequence of expressions ending in OpcodeEnd
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-expr
	Body []byte

	// BodyOffsetInCodeSection is the offset of the beginning of the body in the code section. Zero when built in Go.
	BodyOffsetInCodeSection uint64
}

// DataSegment is an active segment writing Init into memory at OffsetExpression.
type DataSegment struct {
	OffsetExpression ConstantExpression
	Init             []byte
}

// NameSection represent the known custom name subsections defined in the WebAssembly Binary Format
//
// Note: This can be nil if no names were decoded for any reason including configuration.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#name-section%E2%91%A0
type NameSection struct {
	// ModuleName is the symbolic identifier for a module. e.g. math
	//
	// Note: This can be empty for any reason including configuration.
	ModuleName string

	// FunctionNames is an association of a function index to its symbolic identifier. e.g. add
	//
	// The key (idx) is in the function index space, where module defined functions are preceded by imported ones.
	FunctionNames NameMap

	// LocalNames contains symbolic names for function parameters or locals that have one.
	LocalNames IndirectNameMap
}

// NameMap associates an index with any associated names.
//
// Note: NameMap is unique by NameAssoc.Index, but NameAssoc.Name needn't be unique.
// Note: When encoding in the Binary format, this must be ordered by NameAssoc.Index
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-namemap
type NameMap []NameAssoc

type NameAssoc struct {
	Index Index
	Name  string
}

// IndirectNameMap associates an index with an association of names.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-indirectnamemap
type IndirectNameMap []NameMapAssoc

type NameMapAssoc struct {
	Index   Index
	NameMap NameMap
}

// FunctionName returns the name of the function at the index in the function index space, or "".
func (m *Module) FunctionName(funcIdx Index) string {
	if m.NameSection == nil {
		return ""
	}
	for _, na := range m.NameSection.FunctionNames {
		if na.Index == funcIdx {
			return na.Name
		}
	}
	return ""
}

// TypeOfFunction returns the FunctionType of the function at the index in the function index space, or nil.
func (m *Module) TypeOfFunction(funcIdx Index) *FunctionType {
	typeSectionLength := uint32(len(m.TypeSection))
	if funcIdx < m.ImportFunctionCount {
		cur := Index(0)
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			if imp.Type != ExternTypeFunc {
				continue
			}
			if cur == funcIdx {
				if imp.DescFunc >= typeSectionLength {
					return nil
				}
				return &m.TypeSection[imp.DescFunc]
			}
			cur++
		}
		return nil
	}
	funcSectionIdx := funcIdx - m.ImportFunctionCount
	if funcSectionIdx >= uint32(len(m.FunctionSection)) {
		return nil
	}
	typeIdx := m.FunctionSection[funcSectionIdx]
	if typeIdx >= typeSectionLength {
		return nil
	}
	return &m.TypeSection[typeIdx]
}

// ExportByName returns the export with the given name or nil.
func (m *Module) ExportByName(name string) *Export {
	for i := range m.ExportSection {
		if m.ExportSection[i].Name == name {
			return &m.ExportSection[i]
		}
	}
	return nil
}

// AllDeclarations returns all declarations for functions, globals, memories and tables in a module including imported
// ones.
func (m *Module) AllDeclarations() (functions []Index, globals []GlobalType, memory *Memory, tables []Table) {
	for i := range m.ImportSection {
		imp := &m.ImportSection[i]
		switch imp.Type {
		case ExternTypeFunc:
			functions = append(functions, imp.DescFunc)
		case ExternTypeGlobal:
			globals = append(globals, imp.DescGlobal)
		case ExternTypeMemory:
			memory = imp.DescMem
		case ExternTypeTable:
			tables = append(tables, imp.DescTable)
		}
	}

	functions = append(functions, m.FunctionSection...)
	for i := range m.GlobalSection {
		globals = append(globals, m.GlobalSection[i].Type)
	}
	if m.MemorySection != nil {
		memory = m.MemorySection
	}
	tables = append(tables, m.TableSection...)
	return
}

// SectionElementCount returns the count of elements in a given section ID
//
// For example...
//   - SectionIDType returns the count of FunctionType
//   - SectionIDCustom returns one if the NameSection is present
//   - SectionIDExport returns the count of exports
func (m *Module) SectionElementCount(sectionID SectionID) uint32 { // element as in vector elements!
	switch sectionID {
	case SectionIDCustom:
		if m.NameSection != nil {
			return 1
		}
		return 0
	case SectionIDType:
		return uint32(len(m.TypeSection))
	case SectionIDImport:
		return uint32(len(m.ImportSection))
	case SectionIDFunction:
		return uint32(len(m.FunctionSection))
	case SectionIDTable:
		return uint32(len(m.TableSection))
	case SectionIDMemory:
		if m.MemorySection != nil {
			return 1
		}
		return 0
	case SectionIDGlobal:
		return uint32(len(m.GlobalSection))
	case SectionIDExport:
		return uint32(len(m.ExportSection))
	case SectionIDStart:
		if m.StartSection != nil {
			return 1
		}
		return 0
	case SectionIDElement:
		return uint32(len(m.ElementSection))
	case SectionIDCode:
		return uint32(len(m.CodeSection))
	case SectionIDData:
		return uint32(len(m.DataSection))
	case SectionIDDataCount:
		if m.DataCountSection != nil {
			return 1
		}
		return 0
	default:
		panic(fmt.Errorf("BUG: unknown section: %d", sectionID))
	}
}

// SectionID identifies the sections of a Module in the WebAssembly 1.0 (20191205) Binary Format.
//
// Note: these are defined in the wasm package, instead of the binary package, as a key per section is needed regardless
// of format, and deferring to the binary type avoids confusion.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
type SectionID = byte

const (
	// SectionIDCustom includes the standard defined NameSection and possibly others not defined in the standard.
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData

	// SectionIDDataCount may exist in WebAssembly 2.0 or WebAssembly 1.0 with CoreFeatureBulkMemoryOperations enabled.
	//
	// See https://www.w3.org/TR/2022/WD-wasm-core-2-20220419/binary/modules.html#data-count-section
	SectionIDDataCount
)

// SectionIDName returns the canonical name of a module section.
// https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	case SectionIDDataCount:
		return "data_count"
	}
	return "unknown"
}

// SectionOrder returns the position a non-custom section must follow in the binary format. Notably, the data count
// section precedes the code section though its ID is larger.
func SectionOrder(sectionID SectionID) int {
	switch sectionID {
	case SectionIDDataCount:
		return int(SectionIDElement) + 1
	case SectionIDCode, SectionIDData:
		return int(sectionID) + 1
	}
	return int(sectionID)
}

// Validate checks the module is well-formed and every function body type-checks, returning a *api.ValidationError
// otherwise. It must succeed before the module is instantiated.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#validation%E2%91%A1
func (m *Module) Validate(enabledFeatures api.CoreFeatures) error {
	functions, globals, memory, tables := m.AllDeclarations()

	if err := m.validateModule(enabledFeatures, functions, globals, memory, tables); err != nil {
		return &api.ValidationError{FuncIndex: -1, Err: err}
	}

	for idx := range m.CodeSection {
		funcIdx := m.ImportFunctionCount + Index(idx)
		if offset, err := m.validateFunction(enabledFeatures, Index(idx), functions, globals, memory, tables); err != nil {
			if name := m.FunctionName(funcIdx); name != "" {
				err = fmt.Errorf("%s: %w", name, err)
			}
			return &api.ValidationError{FuncIndex: int64(funcIdx), Offset: offset, Err: err}
		}
	}
	return nil
}

func (m *Module) validateModule(enabledFeatures api.CoreFeatures, functions []Index, globals []GlobalType, memory *Memory, tables []Table) error {
	for i := range m.TypeSection {
		if len(m.TypeSection[i].Results) > 1 {
			if err := enabledFeatures.RequireEnabled(api.CoreFeatureMultiValue); err != nil {
				return fmt.Errorf("multiple result types invalid as %v", err)
			}
		}
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return fmt.Errorf("code count (%d) != function count (%d)", len(m.CodeSection), len(m.FunctionSection))
	}

	for _, typeIdx := range functions {
		if typeIdx >= uint32(len(m.TypeSection)) {
			return fmt.Errorf("function type index %d out of range", typeIdx)
		}
	}

	memoryCount := 0
	for i := range m.ImportSection {
		imp := &m.ImportSection[i]
		switch imp.Type {
		case ExternTypeMemory:
			memoryCount++
			if err := validateMemoryLimits(imp.DescMem); err != nil {
				return fmt.Errorf("import[%d] %s.%s: %w", i, imp.Module, imp.Name, err)
			}
		case ExternTypeGlobal:
			if imp.DescGlobal.Mutable {
				if err := enabledFeatures.RequireEnabled(api.CoreFeatureMutableGlobal); err != nil {
					return fmt.Errorf("import[%d] global %s.%s: %w", i, imp.Module, imp.Name, err)
				}
			}
		}
	}
	if m.MemorySection != nil {
		memoryCount++
		if err := validateMemoryLimits(m.MemorySection); err != nil {
			return err
		}
	}
	if memoryCount > 1 {
		return errors.New("multiple memories are not supported")
	}

	if len(tables) > 1 {
		return errors.New("multiple tables are not supported")
	}
	for i := range tables {
		if tables[i].Min > TableLimitElements {
			return fmt.Errorf("table[%d] min %d over limit of %d", i, tables[i].Min, TableLimitElements)
		}
		if max := tables[i].Max; max != nil && *max < tables[i].Min {
			return fmt.Errorf("table[%d] min %d > max %d", i, tables[i].Min, *max)
		}
	}

	if err := m.validateGlobals(enabledFeatures, globals); err != nil {
		return err
	}
	if err := m.validateExports(functions, globals, memory, tables); err != nil {
		return err
	}
	if err := m.validateStartSection(); err != nil {
		return err
	}
	if err := m.validateElements(functions, globals, tables); err != nil {
		return err
	}
	return m.validateData(globals, memory)
}

func validateMemoryLimits(mem *Memory) error {
	if mem.Min > MemoryLimitPages {
		return fmt.Errorf("memory min %d pages (%s) over limit of %d pages (%s)",
			mem.Min, PagesToUnitOfBytes(mem.Min), MemoryLimitPages, PagesToUnitOfBytes(MemoryLimitPages))
	}
	if mem.Max > MemoryLimitPages {
		return fmt.Errorf("memory max %d pages (%s) over limit of %d pages (%s)",
			mem.Max, PagesToUnitOfBytes(mem.Max), MemoryLimitPages, PagesToUnitOfBytes(MemoryLimitPages))
	}
	if mem.Min > mem.Max {
		return fmt.Errorf("memory min %d pages (%s) > max %d pages (%s)",
			mem.Min, PagesToUnitOfBytes(mem.Min), mem.Max, PagesToUnitOfBytes(mem.Max))
	}
	return nil
}

func (m *Module) validateGlobals(enabledFeatures api.CoreFeatures, globals []GlobalType) error {
	importedGlobals := uint32(len(globals) - len(m.GlobalSection))
	for i := range m.GlobalSection {
		g := &m.GlobalSection[i]
		if g.Type.Mutable {
			if err := enabledFeatures.RequireEnabled(api.CoreFeatureMutableGlobal); err != nil {
				return fmt.Errorf("global[%d]: %w", i, err)
			}
		}
		// Only globals declared before this one can be referenced.
		if err := validateConstExpression(globals[:importedGlobals+uint32(i)], &g.Init, g.Type.ValType); err != nil {
			return fmt.Errorf("global[%d]: %w", i, err)
		}
	}
	return nil
}

func (m *Module) validateExports(functions []Index, globals []GlobalType, memory *Memory, tables []Table) error {
	seen := make(map[string]struct{}, len(m.ExportSection))
	for i := range m.ExportSection {
		exp := &m.ExportSection[i]
		if _, ok := seen[exp.Name]; ok {
			return fmt.Errorf("export[%d] duplicates name %q", i, exp.Name)
		}
		seen[exp.Name] = struct{}{}

		index := exp.Index
		switch exp.Type {
		case ExternTypeFunc:
			if index >= uint32(len(functions)) {
				return fmt.Errorf("unknown function for export[%q]", exp.Name)
			}
		case ExternTypeGlobal:
			if index >= uint32(len(globals)) {
				return fmt.Errorf("unknown global for export[%q]", exp.Name)
			}
		case ExternTypeMemory:
			if index > 0 || memory == nil {
				return fmt.Errorf("memory for export[%q] out of range", exp.Name)
			}
		case ExternTypeTable:
			if index >= uint32(len(tables)) {
				return fmt.Errorf("table for export[%q] out of range", exp.Name)
			}
		default:
			return fmt.Errorf("export[%q] has invalid type %#x", exp.Name, exp.Type)
		}
	}
	return nil
}

func (m *Module) validateStartSection() error {
	if m.StartSection != nil {
		startIndex := *m.StartSection
		ft := m.TypeOfFunction(startIndex)
		if ft == nil {
			return fmt.Errorf("invalid start function: func[%d] has an invalid type", startIndex)
		}
		if len(ft.Params) > 0 || len(ft.Results) > 0 {
			return fmt.Errorf("invalid start function: func[%d] must have an empty (nullary) signature: %s", startIndex, ft)
		}
	}
	return nil
}

func (m *Module) validateElements(functions []Index, globals []GlobalType, tables []Table) error {
	for i := range m.ElementSection {
		elem := &m.ElementSection[i]
		if elem.TableIndex >= uint32(len(tables)) {
			return fmt.Errorf("element[%d] references unknown table %d", i, elem.TableIndex)
		}
		if err := validateConstExpression(globals, &elem.OffsetExpr, ValueTypeI32); err != nil {
			return fmt.Errorf("element[%d]: %w", i, err)
		}
		for j, funcIdx := range elem.Init {
			if funcIdx >= uint32(len(functions)) {
				return fmt.Errorf("element[%d].init[%d] references unknown function %d", i, j, funcIdx)
			}
		}
	}
	return nil
}

func (m *Module) validateData(globals []GlobalType, memory *Memory) error {
	if m.DataCountSection != nil && *m.DataCountSection != uint32(len(m.DataSection)) {
		return fmt.Errorf("data count section (%d) doesn't match the length of data section (%d)",
			*m.DataCountSection, len(m.DataSection))
	}
	if len(m.DataSection) > 0 && memory == nil {
		return fmt.Errorf("unknown memory")
	}
	for i := range m.DataSection {
		if err := validateConstExpression(globals, &m.DataSection[i].OffsetExpression, ValueTypeI32); err != nil {
			return fmt.Errorf("data[%d]: %w", i, err)
		}
	}
	return nil
}
