package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wasmcore/api"
)

func TestFunctionType_String(t *testing.T) {
	tests := []struct {
		functype *FunctionType
		exp      string
	}{
		{functype: &FunctionType{}, exp: "v_v"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32}}, exp: "i32_v"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeF64}}, exp: "i32f64_v"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeF32, ValueTypeI32, ValueTypeF64}}, exp: "f32i32f64_v"},
		{functype: &FunctionType{Results: []ValueType{ValueTypeI64}}, exp: "v_i64"},
		{functype: &FunctionType{Results: []ValueType{ValueTypeI64, ValueTypeF32}}, exp: "v_i64f32"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}, exp: "i32_i64"},
		{functype: &FunctionType{Params: []ValueType{ValueTypeI64, ValueTypeF32}, Results: []ValueType{ValueTypeI64, ValueTypeF32}}, exp: "i64f32_i64f32"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.exp, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.functype.String())
		})
	}
}

func TestFunctionType_EqualsSignature(t *testing.T) {
	ft := &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	require.True(t, ft.EqualsSignature([]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}))
	require.False(t, ft.EqualsSignature([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}))
	require.False(t, ft.EqualsSignature([]ValueType{ValueTypeI32, ValueTypeI32}, nil))
	require.True(t, (&FunctionType{}).EqualsSignature(nil, []ValueType{}))
}

func TestSectionIDName(t *testing.T) {
	tests := []struct {
		name     string
		input    SectionID
		expected string
	}{
		{"custom", SectionIDCustom, "custom"},
		{"type", SectionIDType, "type"},
		{"import", SectionIDImport, "import"},
		{"function", SectionIDFunction, "function"},
		{"table", SectionIDTable, "table"},
		{"memory", SectionIDMemory, "memory"},
		{"global", SectionIDGlobal, "global"},
		{"export", SectionIDExport, "export"},
		{"start", SectionIDStart, "start"},
		{"element", SectionIDElement, "element"},
		{"code", SectionIDCode, "code"},
		{"data", SectionIDData, "data"},
		{"data count", SectionIDDataCount, "data_count"},
		{"unknown", 100, "unknown"},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SectionIDName(tc.input))
		})
	}
}

func TestSectionOrder(t *testing.T) {
	order := []SectionID{
		SectionIDType, SectionIDImport, SectionIDFunction, SectionIDTable, SectionIDMemory, SectionIDGlobal,
		SectionIDExport, SectionIDStart, SectionIDElement, SectionIDDataCount, SectionIDCode, SectionIDData,
	}
	for i := 1; i < len(order); i++ {
		require.Less(t, SectionOrder(order[i-1]), SectionOrder(order[i]), SectionIDName(order[i]))
	}
}

func TestModule_TypeOfFunction(t *testing.T) {
	i32_i32 := FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	v_v := FunctionType{}
	m := &Module{
		TypeSection: []FunctionType{v_v, i32_i32},
		ImportSection: []Import{
			{Type: ExternTypeMemory, Module: "env", Name: "memory", DescMem: &Memory{}},
			{Type: ExternTypeFunc, Module: "env", Name: "f", DescFunc: 1},
		},
		ImportFunctionCount: 1,
		FunctionSection:     []Index{0, 5},
	}

	require.Equal(t, &m.TypeSection[1], m.TypeOfFunction(0))
	require.Equal(t, &m.TypeSection[0], m.TypeOfFunction(1))
	require.Nil(t, m.TypeOfFunction(2), "type index out of range")
	require.Nil(t, m.TypeOfFunction(3), "function index out of range")
}

func TestModule_FunctionName(t *testing.T) {
	m := &Module{}
	require.Equal(t, "", m.FunctionName(0))

	m.NameSection = &NameSection{FunctionNames: NameMap{{Index: 1, Name: "reverse"}}}
	require.Equal(t, "", m.FunctionName(0))
	require.Equal(t, "reverse", m.FunctionName(1))
}

func TestModule_ExportByName(t *testing.T) {
	m := &Module{ExportSection: []Export{{Type: ExternTypeFunc, Name: "reverse", Index: 0}}}
	require.Equal(t, &m.ExportSection[0], m.ExportByName("reverse"))
	require.Nil(t, m.ExportByName("memory"))
}

func TestModule_AllDeclarations(t *testing.T) {
	importedMemory := &Memory{Min: 1, Max: 1}
	tests := []struct {
		name              string
		module            *Module
		expectedFunctions []Index
		expectedGlobals   []GlobalType
		expectedMemory    *Memory
		expectedTables    []Table
	}{
		{
			name: "imports",
			module: &Module{
				ImportSection: []Import{
					{Type: ExternTypeFunc, DescFunc: 10},
					{Type: ExternTypeGlobal, DescGlobal: GlobalType{ValType: ValueTypeI64}},
					{Type: ExternTypeMemory, DescMem: importedMemory},
					{Type: ExternTypeTable, DescTable: Table{Min: 1}},
				},
			},
			expectedFunctions: []Index{10},
			expectedGlobals:   []GlobalType{{ValType: ValueTypeI64}},
			expectedMemory:    importedMemory,
			expectedTables:    []Table{{Min: 1}},
		},
		{
			name: "imports and declarations",
			module: &Module{
				ImportSection:   []Import{{Type: ExternTypeFunc, DescFunc: 10}},
				FunctionSection: []Index{1, 2},
				GlobalSection:   []Global{{Type: GlobalType{ValType: ValueTypeF32, Mutable: true}}},
				MemorySection:   &Memory{Min: 2, Max: 3},
				TableSection:    []Table{{Min: 4}},
			},
			expectedFunctions: []Index{10, 1, 2},
			expectedGlobals:   []GlobalType{{ValType: ValueTypeF32, Mutable: true}},
			expectedMemory:    &Memory{Min: 2, Max: 3},
			expectedTables:    []Table{{Min: 4}},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			functions, globals, memory, tables := tc.module.AllDeclarations()
			require.Equal(t, tc.expectedFunctions, functions)
			require.Equal(t, tc.expectedGlobals, globals)
			require.Equal(t, tc.expectedMemory, memory)
			require.Equal(t, tc.expectedTables, tables)
		})
	}
}

func TestModule_SectionElementCount(t *testing.T) {
	one := uint32(1)
	m := &Module{
		TypeSection:      []FunctionType{{}},
		FunctionSection:  []Index{0, 0},
		CodeSection:      []Code{{}, {}},
		MemorySection:    &Memory{},
		ExportSection:    []Export{{}, {}, {}},
		StartSection:     &one,
		DataCountSection: &one,
		NameSection:      &NameSection{},
	}
	require.Equal(t, uint32(1), m.SectionElementCount(SectionIDCustom))
	require.Equal(t, uint32(1), m.SectionElementCount(SectionIDType))
	require.Equal(t, uint32(0), m.SectionElementCount(SectionIDImport))
	require.Equal(t, uint32(2), m.SectionElementCount(SectionIDFunction))
	require.Equal(t, uint32(0), m.SectionElementCount(SectionIDTable))
	require.Equal(t, uint32(1), m.SectionElementCount(SectionIDMemory))
	require.Equal(t, uint32(0), m.SectionElementCount(SectionIDGlobal))
	require.Equal(t, uint32(3), m.SectionElementCount(SectionIDExport))
	require.Equal(t, uint32(1), m.SectionElementCount(SectionIDStart))
	require.Equal(t, uint32(0), m.SectionElementCount(SectionIDElement))
	require.Equal(t, uint32(2), m.SectionElementCount(SectionIDCode))
	require.Equal(t, uint32(0), m.SectionElementCount(SectionIDData))
	require.Equal(t, uint32(1), m.SectionElementCount(SectionIDDataCount))
	require.Panics(t, func() { m.SectionElementCount(100) })
}

func TestModule_Validate(t *testing.T) {
	zero := uint32(0)
	m := &Module{
		TypeSection:     []FunctionType{{}, {Params: []ValueType{ValueTypeI32, ValueTypeI32}}},
		FunctionSection: []Index{0, 1},
		TableSection:    []Table{{Min: 1, Type: RefTypeFuncref}},
		MemorySection:   &Memory{Min: 1, Max: 1, IsMaxEncoded: true},
		GlobalSection: []Global{
			{Type: GlobalType{ValType: ValueTypeI32}, Init: ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{8}}},
			{Type: GlobalType{ValType: ValueTypeI32, Mutable: true}, Init: ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0}}},
		},
		ExportSection: []Export{
			{Type: ExternTypeFunc, Name: "reverse", Index: 1},
			{Type: ExternTypeMemory, Name: "memory", Index: 0},
			{Type: ExternTypeGlobal, Name: "sp", Index: 1},
		},
		StartSection: &zero,
		ElementSection: []ElementSegment{
			{OffsetExpr: ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{0}}, Init: []Index{1}},
		},
		CodeSection: []Code{
			{Body: []byte{OpcodeEnd}},
			{Body: []byte{OpcodeEnd}},
		},
		DataSection: []DataSegment{
			{OffsetExpression: ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0}}, Init: []byte("helloworld")},
		},
	}
	require.NoError(t, m.Validate(api.CoreFeaturesV1))
}

func TestModule_Validate_Errors(t *testing.T) {
	two := uint32(2)
	v_v := FunctionType{}
	i32_v := FunctionType{Params: []ValueType{ValueTypeI32}}
	v_i32i32 := FunctionType{Results: []ValueType{ValueTypeI32, ValueTypeI32}}
	end := Code{Body: []byte{OpcodeEnd}}
	i32Zero := ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{0}}

	tests := []struct {
		name        string
		module      *Module
		features    api.CoreFeatures
		expectedErr string
	}{
		{
			name:        "multiple results without multi-value",
			module:      &Module{TypeSection: []FunctionType{v_i32i32}},
			features:    api.CoreFeaturesV1,
			expectedErr: `invalid module: multiple result types invalid as feature "multi-value" is disabled`,
		},
		{
			name:        "function and code count mismatch",
			module:      &Module{TypeSection: []FunctionType{v_v}, FunctionSection: []Index{0, 0}, CodeSection: []Code{end}},
			expectedErr: "invalid module: code count (1) != function count (2)",
		},
		{
			name:        "function type out of range",
			module:      &Module{TypeSection: []FunctionType{v_v}, FunctionSection: []Index{1}, CodeSection: []Code{end}},
			expectedErr: "invalid module: function type index 1 out of range",
		},
		{
			name:        "memory min over max",
			module:      &Module{MemorySection: &Memory{Min: 2, Max: 1}},
			expectedErr: "invalid module: memory min 2 pages (128 Ki) > max 1 pages (64 Ki)",
		},
		{
			name:        "memory max over limit",
			module:      &Module{MemorySection: &Memory{Min: 1, Max: MemoryLimitPages + 1}},
			expectedErr: "invalid module: memory max 65537 pages (4 Gi) over limit of 65536 pages (4 Gi)",
		},
		{
			name: "multiple memories",
			module: &Module{
				ImportSection: []Import{{Type: ExternTypeMemory, Module: "env", Name: "memory", DescMem: &Memory{Min: 1, Max: 1}}},
				MemorySection: &Memory{Min: 1, Max: 1},
			},
			expectedErr: "invalid module: multiple memories are not supported",
		},
		{
			name:        "multiple tables",
			module:      &Module{TableSection: []Table{{}, {}}},
			expectedErr: "invalid module: multiple tables are not supported",
		},
		{
			name:        "table min over max",
			module:      &Module{TableSection: []Table{{Min: 3, Max: &two}}},
			expectedErr: "invalid module: table[0] min 3 > max 2",
		},
		{
			name: "global init type mismatch",
			module: &Module{GlobalSection: []Global{
				{Type: GlobalType{ValType: ValueTypeI64}, Init: i32Zero},
			}},
			expectedErr: "invalid module: global[0]: const expression type mismatch expected i64 but got i32",
		},
		{
			name: "global init references itself",
			module: &Module{GlobalSection: []Global{
				{Type: GlobalType{ValType: ValueTypeI32}, Init: ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0}}},
			}},
			expectedErr: "invalid module: global[0]: global index out of range",
		},
		{
			name: "mutable global without feature",
			module: &Module{GlobalSection: []Global{
				{Type: GlobalType{ValType: ValueTypeI32, Mutable: true}, Init: i32Zero},
			}},
			features:    api.CoreFeatureBulkMemoryOperations,
			expectedErr: `invalid module: global[0]: feature "mutable-global" is disabled`,
		},
		{
			name: "duplicate export name",
			module: &Module{
				MemorySection: &Memory{Min: 1, Max: 1},
				ExportSection: []Export{{Type: ExternTypeMemory, Name: "memory"}, {Type: ExternTypeMemory, Name: "memory"}},
			},
			expectedErr: `invalid module: export[1] duplicates name "memory"`,
		},
		{
			name:        "unknown exported function",
			module:      &Module{ExportSection: []Export{{Type: ExternTypeFunc, Name: "reverse"}}},
			expectedErr: `invalid module: unknown function for export["reverse"]`,
		},
		{
			name:        "unknown exported memory",
			module:      &Module{ExportSection: []Export{{Type: ExternTypeMemory, Name: "memory"}}},
			expectedErr: `invalid module: memory for export["memory"] out of range`,
		},
		{
			name:        "unknown exported global",
			module:      &Module{ExportSection: []Export{{Type: ExternTypeGlobal, Name: "sp"}}},
			expectedErr: `invalid module: unknown global for export["sp"]`,
		},
		{
			name: "start function has params",
			module: &Module{
				TypeSection:     []FunctionType{i32_v},
				FunctionSection: []Index{0},
				CodeSection:     []Code{end},
				StartSection:    new(uint32),
			},
			expectedErr: "invalid module: invalid start function: func[0] must have an empty (nullary) signature: i32_v",
		},
		{
			name:        "start function missing",
			module:      &Module{StartSection: new(uint32)},
			expectedErr: "invalid module: invalid start function: func[0] has an invalid type",
		},
		{
			name:        "element without table",
			module:      &Module{ElementSection: []ElementSegment{{OffsetExpr: i32Zero}}},
			expectedErr: "invalid module: element[0] references unknown table 0",
		},
		{
			name: "element references unknown function",
			module: &Module{
				TableSection:   []Table{{Min: 1}},
				ElementSection: []ElementSegment{{OffsetExpr: i32Zero, Init: []Index{3}}},
			},
			expectedErr: "invalid module: element[0].init[0] references unknown function 3",
		},
		{
			name: "element offset not i32",
			module: &Module{
				TableSection:   []Table{{Min: 1}},
				ElementSection: []ElementSegment{{OffsetExpr: ConstantExpression{Opcode: OpcodeI64Const, Data: []byte{0}}}},
			},
			expectedErr: "invalid module: element[0]: const expression type mismatch expected i32 but got i64",
		},
		{
			name:        "data without memory",
			module:      &Module{DataSection: []DataSegment{{OffsetExpression: i32Zero}}},
			expectedErr: "invalid module: unknown memory",
		},
		{
			name: "data count mismatch",
			module: &Module{
				MemorySection:    &Memory{Min: 1, Max: 1},
				DataCountSection: &two,
				DataSection:      []DataSegment{{OffsetExpression: i32Zero}},
			},
			expectedErr: "invalid module: data count section (2) doesn't match the length of data section (1)",
		},
		{
			name: "data offset invalid opcode",
			module: &Module{
				MemorySection: &Memory{Min: 1, Max: 1},
				DataSection:   []DataSegment{{OffsetExpression: ConstantExpression{Opcode: OpcodeNop}}},
			},
			expectedErr: "invalid module: data[0]: invalid opcode for const expression: 0x1",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			features := tc.features
			if features == 0 {
				features = api.CoreFeaturesV2
			}
			err := tc.module.Validate(features)
			require.ErrorIs(t, err, api.ErrValidation)
			var ve *api.ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, int64(-1), ve.FuncIndex)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}
