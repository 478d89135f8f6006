package wasm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tetratelabs/wasmcore/api"
)

func TestMemoryPageConsts(t *testing.T) {
	require.Equal(t, MemoryPageSize, uint32(1)<<MemoryPageSizeInBits)
	require.Equal(t, MemoryPageSize, uint32(1<<16))
	require.Equal(t, MemoryLimitPages, uint32(1<<16))
}

func TestMemoryPagesToBytesNum(t *testing.T) {
	for _, numPage := range []uint32{0, 1, 5, 10} {
		require.Equal(t, uint64(numPage*MemoryPageSize), MemoryPagesToBytesNum(numPage))
	}
	require.Equal(t, uint64(1)<<32, MemoryPagesToBytesNum(MemoryLimitPages))
}

func TestMemoryBytesNumToPages(t *testing.T) {
	for _, numbytes := range []uint32{0, MemoryPageSize * 1, MemoryPageSize * 10} {
		require.Equal(t, numbytes/MemoryPageSize, memoryBytesNumToPages(uint64(numbytes)))
	}
}

func TestNewMemoryInstance(t *testing.T) {
	m := NewMemoryInstance(&Memory{Min: 1, Max: 10}, MemoryLimitPages, nil)
	require.Equal(t, uint32(1), m.Pages())
	require.Equal(t, MemoryPageSize, m.Size())
	require.Equal(t, uint32(10), m.Max)
	require.Equal(t, api.ExternTypeMemory, m.ExternType())

	// The runtime limit caps the declared maximum.
	m = NewMemoryInstance(&Memory{Min: 1, Max: MemoryLimitPages}, 4, nil)
	require.Equal(t, uint32(4), m.Max)
}

func TestMemoryInstance_Grow_Size(t *testing.T) {
	max := uint32(10)
	m := NewMemoryInstance(&Memory{Max: max}, MemoryLimitPages, nil)

	res, ok := m.Grow(5)
	require.True(t, ok)
	require.Equal(t, uint32(0), res)
	require.Equal(t, uint32(5), m.Pages())

	// Zero page grow is well-defined, should return the current page correctly.
	res, ok = m.Grow(0)
	require.True(t, ok)
	require.Equal(t, uint32(5), res)
	require.Equal(t, uint32(5), m.Pages())

	res, ok = m.Grow(4)
	require.True(t, ok)
	require.Equal(t, uint32(5), res)
	require.Equal(t, uint32(9), m.Pages())

	// At this point, the page size equal 9,
	// so trying to grow two pages should result in failure.
	_, ok = m.Grow(2)
	require.False(t, ok)
	require.Equal(t, uint32(9), m.Pages())

	// But growing one page is still permitted.
	res, ok = m.Grow(1)
	require.True(t, ok)
	require.Equal(t, uint32(9), res)
	require.Equal(t, max, m.Pages())
	require.Equal(t, max*MemoryPageSize, m.Size())
}

func TestMemoryInstance_Grow_PreservesContents(t *testing.T) {
	m := NewMemoryInstance(&Memory{Min: 1, Max: 3}, MemoryLimitPages, nil)
	require.True(t, m.WriteUint32Le(MemoryPageSize-4, 0xdeadbeef))

	_, ok := m.Grow(2)
	require.True(t, ok)

	v, ok := m.ReadUint32Le(MemoryPageSize - 4)
	require.True(t, ok)
	require.Equal(t, uint32(0xdeadbeef), v)

	// New pages are zeroed.
	buf, err := m.Read(MemoryPageSize, 2*MemoryPageSize)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 2*MemoryPageSize), buf)
}

func TestMemoryInstance_Grow_Overflow(t *testing.T) {
	m := NewMemoryInstance(&Memory{Min: 1, Max: MemoryLimitPages}, MemoryLimitPages, nil)
	_, ok := m.Grow(math.MaxUint32)
	require.False(t, ok)
	require.Equal(t, uint32(1), m.Pages())
}

func TestMemoryInstance_Grow_Logs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := NewMemoryInstance(&Memory{Min: 1, Max: 1}, MemoryLimitPages, zap.New(core))

	_, ok := m.Grow(1)
	require.False(t, ok)

	entries := logs.FilterMessage("memory.grow refused").All()
	require.Len(t, entries, 1)
	require.Equal(t, map[string]interface{}{
		"current_pages": uint32(1),
		"delta":         uint32(1),
		"max_pages":     uint32(1),
	}, entries[0].ContextMap())
}

func TestPagesToUnitOfBytes(t *testing.T) {
	tests := []struct {
		name     string
		pages    uint32
		expected string
	}{
		{name: "zero", pages: 0, expected: "0 Ki"},
		{name: "one", pages: 1, expected: "64 Ki"},
		{name: "megs", pages: 100, expected: "6 Mi"},
		{name: "max memory", pages: MemoryLimitPages, expected: "4 Gi"},
		{name: "max uint32", pages: math.MaxUint32, expected: "255 Ti"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, PagesToUnitOfBytes(tc.pages))
		})
	}
}

func TestMemoryInstance_HasSize(t *testing.T) {
	memory := &MemoryInstance{Buffer: make([]byte, MemoryPageSize)}

	tests := []struct {
		name        string
		offset      uint64
		sizeInBytes uint64
		expected    bool
	}{
		{name: "simple valid arguments", offset: 0, sizeInBytes: 8, expected: true},
		{name: "maximum valid sizeInBytes", offset: 0, sizeInBytes: uint64(MemoryPageSize), expected: true},
		{name: "sizeInBytes exceeds the valid size by 1", offset: 100, sizeInBytes: uint64(MemoryPageSize) - 99},
		{name: "offset exceeds the memory size", offset: uint64(MemoryPageSize), sizeInBytes: 1},
		{name: "offset + sizeInBytes overflows in uint64", offset: math.MaxUint64, sizeInBytes: 2},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, memory.HasSize(tc.offset, tc.sizeInBytes))
		})
	}
}

func TestMemoryInstance_ReadWrite(t *testing.T) {
	m := NewMemoryInstance(&Memory{Min: 1, Max: 1}, MemoryLimitPages, nil)
	last := m.Size()

	require.True(t, m.WriteByte(last-1, 0xff))
	b, ok := m.ReadByte(last - 1)
	require.True(t, ok)
	require.Equal(t, byte(0xff), b)
	require.False(t, m.WriteByte(last, 1))
	_, ok = m.ReadByte(last)
	require.False(t, ok)

	require.True(t, m.WriteUint16Le(last-2, 0xbeef))
	u16, ok := m.ReadUint16Le(last - 2)
	require.True(t, ok)
	require.Equal(t, uint16(0xbeef), u16)
	require.False(t, m.WriteUint16Le(last-1, 1))
	_, ok = m.ReadUint16Le(last - 1)
	require.False(t, ok)

	require.True(t, m.WriteFloat32Le(0, float32(1.5)))
	f32, ok := m.ReadFloat32Le(0)
	require.True(t, ok)
	require.Equal(t, float32(1.5), f32)
	require.False(t, m.WriteFloat32Le(last-3, 1))

	require.True(t, m.WriteFloat64Le(8, math.Pi))
	f64, ok := m.ReadFloat64Le(8)
	require.True(t, ok)
	require.Equal(t, math.Pi, f64)
	require.False(t, m.WriteUint64Le(last-7, 1))
	_, ok = m.ReadUint64Le(last - 7)
	require.False(t, ok)
}

func TestMemoryInstance_Read_Copies(t *testing.T) {
	m := NewMemoryInstance(&Memory{Min: 1, Max: 1}, MemoryLimitPages, nil)
	require.NoError(t, m.Write(0, []byte("hello")))

	buf, err := m.Read(0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	// Mutating the result doesn't affect the memory.
	buf[0] = 'j'
	again, err := m.Read(0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(again))
}

func TestMemoryInstance_OutOfBounds(t *testing.T) {
	m := NewMemoryInstance(&Memory{Min: 1, Max: 1}, MemoryLimitPages, nil)

	_, err := m.Read(MemoryPageSize-2, 3)
	require.ErrorIs(t, err, api.ErrOutOfBounds)
	var oob *api.OutOfBoundsError
	require.ErrorAs(t, err, &oob)
	require.Equal(t, &api.OutOfBoundsError{Offset: MemoryPageSize - 2, Length: 3, Size: MemoryPageSize}, oob)

	// No partial write happens.
	err = m.Write(MemoryPageSize-2, []byte{1, 2, 3})
	require.ErrorIs(t, err, api.ErrOutOfBounds)
	buf, err := m.Read(MemoryPageSize-2, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0}, buf)

	// Zero-length access at the end is fine.
	buf, err = m.Read(MemoryPageSize, 0)
	require.NoError(t, err)
	require.Empty(t, buf)
}
