package wasm

import (
	"fmt"
)

// TableLimitElements is the largest minimum size a table may declare, bounding the allocation at instantiation.
const TableLimitElements = uint32(1 << 27)

// NullReference is the value of an uninitialized table element.
const NullReference = ^Index(0)

// TableInstance represents a table of funcref elements in a module.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-instances%E2%91%A0
type TableInstance struct {
	// References are positions in the function index namespace of the owning module, or NullReference.
	References []Index

	// Min is the minimum (function) elements in this table and cannot grow to accommodate ElementSegment.
	Min uint32

	// Max if present is the maximum (function) elements in this table, or nil if unbounded.
	Max *uint32
}

// NewTableInstance allocates a table of Min null references.
func NewTableInstance(t *Table) *TableInstance {
	refs := make([]Index, t.Min)
	for i := range refs {
		refs[i] = NullReference
	}
	return &TableInstance{References: refs, Min: t.Min, Max: t.Max}
}

// Lookup returns the function index at the table offset, or false if out of range or uninitialized.
func (t *TableInstance) Lookup(offset uint32) (Index, bool) {
	if uint64(offset) >= uint64(len(t.References)) {
		return 0, false
	}
	ref := t.References[offset]
	return ref, ref != NullReference
}

// initialize copies the segment into the table, failing without any write if it doesn't fit.
func (t *TableInstance) initialize(offset uint32, init []Index) error {
	if uint64(offset)+uint64(len(init)) > uint64(len(t.References)) {
		return fmt.Errorf("out of bounds table access: offset %d + %d elements > table size %d",
			offset, len(init), len(t.References))
	}
	copy(t.References[offset:], init)
	return nil
}
