package frame

import "testing"

func TestWriteHeaderLittleEndian(t *testing.T) {
	b := New()
	b.WriteHeader(0x0102, 0x0003)
	got := b.Bytes()
	want := []byte{0x02, 0x01, 0x03, 0x00}
	if len(got) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, got[i], want[i])
		}
	}
}

func TestResetKeepsBackingArrayButEmptiesContents(t *testing.T) {
	b := New()
	b.WriteUint32(42)
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("expected length 0 after reset, got %d", b.Len())
	}
	b.WriteUint16(7)
	if b.Len() != 2 {
		t.Fatalf("expected length 2 after a fresh write post-reset, got %d", b.Len())
	}
}

func TestWriteBoolWidenedWrites4Bytes(t *testing.T) {
	b := New()
	b.WriteBoolWidened(true)
	got := b.Bytes()
	if len(got) != 4 || got[0] != 1 || got[1] != 0 || got[2] != 0 || got[3] != 0 {
		t.Fatalf("expected widened true (1,0,0,0), got %v", got)
	}

	b.Reset()
	b.WriteBoolWidened(false)
	got = b.Bytes()
	for _, byteVal := range got {
		if byteVal != 0 {
			t.Fatalf("expected widened false to be all zero bytes, got %v", got)
		}
	}
}

func TestWriteIntWidthTruncatesAndPreservesTwosComplement(t *testing.T) {
	b := New()
	b.WriteIntWidth(1, -1)
	got := b.Bytes()
	if len(got) != 1 || got[0] != 0xFF {
		t.Fatalf("expected a single 0xFF byte for int8(-1), got %v", got)
	}
}

func TestWriteFloat32RoundTrips(t *testing.T) {
	b := New()
	b.WriteFloat32(3.5)
	if b.Len() != 4 {
		t.Fatalf("expected 4 bytes for a float32, got %d", b.Len())
	}
}
