// Package protocol implements the framed serial protocol spoken by the SVH
// hardware controller: a little-endian byte codec, the packet frame with its
// twin checksums, and a byte-wise receiver state machine that resynchronises
// on corrupted input.
package protocol

import (
	"encoding/binary"
	"math"
)

// Buffer is a growable byte buffer with independent read and write cursors.
// Append operations write at the write cursor, extending the buffer as
// needed; read operations consume at the read cursor. Reading past the
// written region yields the zero value and leaves the read cursor where it
// is. All multi-byte values are little-endian.
type Buffer struct {
	data     []byte
	readPos  int
	writePos int
}

// NewBuffer returns a buffer pre-sized to n zero bytes with both cursors at
// the start.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, n)}
}

// Reset clears the contents and pre-sizes the buffer to n zeros with both
// cursors back at the start.
func (b *Buffer) Reset(n int) {
	if cap(b.data) >= n {
		b.data = b.data[:n]
		for i := range b.data {
			b.data[i] = 0
		}
	} else {
		b.data = make([]byte, n)
	}
	b.readPos = 0
	b.writePos = 0
}

// Len returns the number of valid bytes in the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.readPos }

// Bytes returns the underlying storage. The slice is only valid until the
// next append.
func (b *Buffer) Bytes() []byte { return b.data }

// grow makes room for n more bytes at the write cursor and returns the
// destination slice.
func (b *Buffer) grow(n int) []byte {
	need := b.writePos + n
	if need > len(b.data) {
		if need > cap(b.data) {
			grown := make([]byte, need, 2*need)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:need]
		}
	}
	dst := b.data[b.writePos : b.writePos+n]
	b.writePos += n
	return dst
}

// take consumes n bytes at the read cursor, or returns nil if fewer than n
// unread bytes remain.
func (b *Buffer) take(n int) []byte {
	if b.readPos+n > len(b.data) {
		return nil
	}
	src := b.data[b.readPos : b.readPos+n]
	b.readPos += n
	return src
}

func (b *Buffer) AppendUint8(v uint8) {
	b.grow(1)[0] = v
}

func (b *Buffer) AppendUint16(v uint16) {
	binary.LittleEndian.PutUint16(b.grow(2), v)
}

func (b *Buffer) AppendUint32(v uint32) {
	binary.LittleEndian.PutUint32(b.grow(4), v)
}

func (b *Buffer) AppendUint64(v uint64) {
	binary.LittleEndian.PutUint64(b.grow(8), v)
}

func (b *Buffer) AppendInt8(v int8)   { b.AppendUint8(uint8(v)) }
func (b *Buffer) AppendInt16(v int16) { b.AppendUint16(uint16(v)) }
func (b *Buffer) AppendInt32(v int32) { b.AppendUint32(uint32(v)) }
func (b *Buffer) AppendInt64(v int64) { b.AppendUint64(uint64(v)) }

// Floats travel as their IEEE-754 bit patterns in the matching unsigned
// width.
func (b *Buffer) AppendFloat32(v float32) { b.AppendUint32(math.Float32bits(v)) }
func (b *Buffer) AppendFloat64(v float64) { b.AppendUint64(math.Float64bits(v)) }

// AppendBytes copies raw bytes at the write cursor without any conversion.
func (b *Buffer) AppendBytes(p []byte) {
	copy(b.grow(len(p)), p)
}

func (b *Buffer) ReadUint8() uint8 {
	p := b.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (b *Buffer) ReadUint16() uint16 {
	p := b.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (b *Buffer) ReadUint32() uint32 {
	p := b.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (b *Buffer) ReadUint64() uint64 {
	p := b.take(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

func (b *Buffer) ReadInt8() int8   { return int8(b.ReadUint8()) }
func (b *Buffer) ReadInt16() int16 { return int16(b.ReadUint16()) }
func (b *Buffer) ReadInt32() int32 { return int32(b.ReadUint32()) }
func (b *Buffer) ReadInt64() int64 { return int64(b.ReadUint64()) }

func (b *Buffer) ReadFloat32() float32 { return math.Float32frombits(b.ReadUint32()) }
func (b *Buffer) ReadFloat64() float64 { return math.Float64frombits(b.ReadUint64()) }

// ReadBytes consumes n bytes and returns them as a copy. The payload length
// is implicit on the wire, so the caller supplies the expected count. A
// short buffer yields the bytes that are left, zero-padded to n.
func (b *Buffer) ReadBytes(n int) []byte {
	out := make([]byte, n)
	avail := len(b.data) - b.readPos
	if avail < n {
		n = avail
	}
	copy(out, b.data[b.readPos:b.readPos+n])
	b.readPos += n
	return out
}

// PeekBackUint16 returns the last-written uint16 without moving either
// cursor.
func (b *Buffer) PeekBackUint16() uint16 {
	if b.writePos < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b.data[b.writePos-2:])
}

// PeekBackUint8 returns the last-written byte without moving either cursor.
func (b *Buffer) PeekBackUint8() uint8 {
	if b.writePos < 1 {
		return 0
	}
	return b.data[b.writePos-1]
}
