// Package leb128 encodes and decodes the variable-length integers used throughout the WebAssembly binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#integers%E2%91%A4
package leb128

import (
	"errors"
	"fmt"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen33 = maxVarintLen32
	maxVarintLen64 = 10
)

var (
	errOverflow32 = errors.New("overflows a 32-bit integer")
	errOverflow33 = errors.New("overflows a 33-bit integer")
	errOverflow64 = errors.New("overflows a 64-bit integer")
)

// EncodeInt32 encodes the signed value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt32(value int32) []byte {
	return EncodeInt64(int64(value))
}

// EncodeInt64 encodes the signed value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt64(value int64) (buf []byte) {
	for {
		// Take 7 remaining low-order bits from the value into b.
		b := uint8(value & 0x7f)
		// Extract the sign bit.
		s := uint8(value & 0x40)
		value >>= 7

		// The encoding unsigned numbers is simpler as it only needs to check if the value is non-zero to tell if there
		// are more bits to encode. Signed is a little more complicated as you have to double-check the sign bit.
		// If either case, set the high-order bit to tell the reader there are more bytes in this int.
		if (value != -1 || s == 0) && (value != 0 || s != 0) {
			b |= 0x80
		}

		// Append b into the buffer
		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
	}
	return buf
}

// EncodeUint32 encodes the value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint32(value uint32) []byte {
	return EncodeUint64(uint64(value))
}

// EncodeUint64 encodes the value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint64(value uint64) (buf []byte) {
	// This is effectively a do/while loop where we take 7 bits of the value and encode them until it is zero.
	for {
		// Take 7 remaining low-order bits from the value into b.
		b := uint8(value & 0x7f)
		value = value >> 7

		// If there are remaining bits, the value won't be zero: Set the high-order bit to tell the reader there are more
		// bytes in this uint.
		if value != 0 {
			b |= 0x80
		}

		// Append b into the buffer
		buf = append(buf, b)
		if b&0x80 == 0 {
			return buf
		}
	}
}

// LoadUint32 decodes an unsigned 32-bit integer from the start of buf, returning the value and bytes consumed.
func LoadUint32(buf []byte) (ret uint32, bytesRead uint64, err error) {
	v, n, err := loadUnsigned(buf, 32, errOverflow32)
	return uint32(v), n, err
}

// LoadUint64 decodes an unsigned 64-bit integer from the start of buf, returning the value and bytes consumed.
func LoadUint64(buf []byte) (ret uint64, bytesRead uint64, err error) {
	return loadUnsigned(buf, 64, errOverflow64)
}

// LoadInt32 decodes a signed 32-bit integer from the start of buf, returning the value and bytes consumed.
func LoadInt32(buf []byte) (ret int32, bytesRead uint64, err error) {
	v, n, err := loadSigned(buf, 32, errOverflow32)
	return int32(v), n, err
}

// LoadInt33AsInt64 decodes a signed 33-bit integer, used by block types, from the start of buf.
func LoadInt33AsInt64(buf []byte) (ret int64, bytesRead uint64, err error) {
	return loadSigned(buf, 33, errOverflow33)
}

// LoadInt64 decodes a signed 64-bit integer from the start of buf, returning the value and bytes consumed.
func LoadInt64(buf []byte) (ret int64, bytesRead uint64, err error) {
	return loadSigned(buf, 64, errOverflow64)
}

// DecodeUint32 is like LoadUint32, except it reads from r.
func DecodeUint32(r io.ByteReader) (ret uint32, bytesRead uint64, err error) {
	var buf [maxVarintLen32]byte
	n, err := readVarint(r, buf[:])
	if err != nil {
		return 0, 0, err
	}
	return LoadUint32(buf[:n])
}

// DecodeUint64 is like LoadUint64, except it reads from r.
func DecodeUint64(r io.ByteReader) (ret uint64, bytesRead uint64, err error) {
	var buf [maxVarintLen64]byte
	n, err := readVarint(r, buf[:])
	if err != nil {
		return 0, 0, err
	}
	return LoadUint64(buf[:n])
}

// DecodeInt32 is like LoadInt32, except it reads from r.
func DecodeInt32(r io.ByteReader) (ret int32, bytesRead uint64, err error) {
	var buf [maxVarintLen32]byte
	n, err := readVarint(r, buf[:])
	if err != nil {
		return 0, 0, err
	}
	return LoadInt32(buf[:n])
}

// DecodeInt33AsInt64 is like LoadInt33AsInt64, except it reads from r.
func DecodeInt33AsInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	var buf [maxVarintLen33]byte
	n, err := readVarint(r, buf[:])
	if err != nil {
		return 0, 0, err
	}
	return LoadInt33AsInt64(buf[:n])
}

// DecodeInt64 is like LoadInt64, except it reads from r.
func DecodeInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	var buf [maxVarintLen64]byte
	n, err := readVarint(r, buf[:])
	if err != nil {
		return 0, 0, err
	}
	return LoadInt64(buf[:n])
}

// readVarint copies bytes from r into buf until one without the continuation bit, or buf is full.
func readVarint(r io.ByteReader, buf []byte) (int, error) {
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, fmt.Errorf("readByte failed: %w", err)
		}
		buf[i] = b
		if b&0x80 == 0 {
			return i + 1, nil
		}
	}
	// Let the loader report the overflow.
	return len(buf), nil
}

func loadUnsigned(buf []byte, bits uint, errOverflow error) (uint64, uint64, error) {
	maxBytes := int((bits + 6) / 7)
	var ret uint64
	for i := 0; i < maxBytes; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		shift := uint(7 * i)
		ret |= uint64(b&0x7f) << shift
		if b&0x80 != 0 {
			continue
		}
		// Bits past the width must be zero in the last possible byte.
		if i == maxBytes-1 && b>>(bits-shift) != 0 {
			return 0, 0, errOverflow
		}
		return ret, uint64(i + 1), nil
	}
	return 0, 0, errOverflow
}

func loadSigned(buf []byte, bits uint, errOverflow error) (int64, uint64, error) {
	maxBytes := int((bits + 6) / 7)
	var ret int64
	for i := 0; i < maxBytes; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		shift := uint(7 * i)
		ret |= int64(b&0x7f) << shift
		if b&0x80 != 0 {
			continue
		}
		if i == maxBytes-1 {
			// The bits past the width must all repeat the sign bit.
			used := bits - shift
			extra := (b & 0x7f) >> (used - 1)
			if extra != 0 && extra != 0x7f>>(used-1) {
				return 0, 0, errOverflow
			}
		} else if b&0x40 != 0 {
			ret |= -1 << (shift + 7)
		}
		if bits < 64 {
			ret = ret << (64 - bits) >> (64 - bits)
		}
		return ret, uint64(i + 1), nil
	}
	return 0, 0, errOverflow
}
