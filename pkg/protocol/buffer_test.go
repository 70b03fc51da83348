package protocol

import (
	"math"
	"testing"
)

func TestBufferMixedRoundTrip(t *testing.T) {
	b := NewBuffer(0)
	b.AppendInt32(1508)
	b.AppendFloat32(15.08)
	b.AppendUint8(128)
	b.AppendUint16(128)

	if got := b.ReadInt32(); got != 1508 {
		t.Errorf("ReadInt32() = %d, want 1508", got)
	}
	if got := b.ReadFloat32(); got != 15.08 {
		t.Errorf("ReadFloat32() = %f, want 15.08", got)
	}
	if got := b.ReadUint8(); got != 128 {
		t.Errorf("ReadUint8() = %d, want 128", got)
	}
	if got := b.ReadUint16(); got != 128 {
		t.Errorf("ReadUint16() = %d, want 128", got)
	}

	// Past the written region: zero value, cursor stays put.
	if got := b.ReadUint16(); got != 0 {
		t.Errorf("read past end = %d, want 0", got)
	}
	if b.Remaining() != 0 {
		t.Errorf("Remaining() = %d after clamped read, want 0", b.Remaining())
	}
}

func TestBufferScalarRoundTrip(t *testing.T) {
	b := NewBuffer(0)
	b.AppendUint64(0x1122334455667788)
	b.AppendInt64(-42)
	b.AppendInt16(-1000)
	b.AppendInt8(-5)
	b.AppendFloat64(math.Pi)

	if got := b.ReadUint64(); got != 0x1122334455667788 {
		t.Errorf("ReadUint64() = %#x", got)
	}
	if got := b.ReadInt64(); got != -42 {
		t.Errorf("ReadInt64() = %d", got)
	}
	if got := b.ReadInt16(); got != -1000 {
		t.Errorf("ReadInt16() = %d", got)
	}
	if got := b.ReadInt8(); got != -5 {
		t.Errorf("ReadInt8() = %d", got)
	}
	if got := b.ReadFloat64(); got != math.Pi {
		t.Errorf("ReadFloat64() = %v", got)
	}
}

func TestBufferLittleEndianLayout(t *testing.T) {
	b := NewBuffer(0)
	b.AppendUint16(0x4D4C)
	got := b.Bytes()
	if got[0] != 0x4C || got[1] != 0x4D {
		t.Errorf("u16 layout = % x, want 4c 4d", got)
	}
}

func TestBufferPeekBack(t *testing.T) {
	b := NewBuffer(0)
	b.AppendUint8(7)
	b.AppendUint16(517)

	if got := b.PeekBackUint16(); got != 517 {
		t.Errorf("PeekBackUint16() = %d, want 517", got)
	}
	// Neither cursor moved: a full read still sees everything.
	if got := b.ReadUint8(); got != 7 {
		t.Errorf("ReadUint8() after peek = %d, want 7", got)
	}
	if got := b.ReadUint16(); got != 517 {
		t.Errorf("ReadUint16() after peek = %d, want 517", got)
	}
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer(0)
	b.AppendUint32(0xDEADBEEF)
	b.Reset(4)

	if b.Len() != 4 {
		t.Fatalf("Len() = %d after Reset(4), want 4", b.Len())
	}
	if got := b.ReadUint32(); got != 0 {
		t.Errorf("ReadUint32() after reset = %#x, want 0", got)
	}
}

func TestBufferReadBytesShort(t *testing.T) {
	b := NewBuffer(0)
	b.AppendBytes([]byte{1, 2, 3})

	got := b.ReadBytes(5)
	if len(got) != 5 {
		t.Fatalf("ReadBytes(5) returned %d bytes", len(got))
	}
	want := []byte{1, 2, 3, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ReadBytes(5)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
