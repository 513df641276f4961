package zstring

import "testing"

func TestStringWriteReadRoundtrip(t *testing.T) {
	s := New()
	if err := s.WriteUint16(0xABCD); err != nil {
		t.Fatalf("WriteUint16: %v", err)
	}
	if err := s.WriteUint32(0x01020304); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}
	s.Seek(0, false)
	v16, err := s.ReadUint16()
	if err != nil || v16 != 0xABCD {
		t.Fatalf("ReadUint16 = %x, %v", v16, err)
	}
	v32, err := s.ReadUint32()
	if err != nil || v32 != 0x01020304 {
		t.Fatalf("ReadUint32 = %x, %v", v32, err)
	}
}

func TestFixedRefusesOverflow(t *testing.T) {
	f := NewFixed(4)
	if err := f.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("expected write to fit capacity: %v", err)
	}
	if err := f.Write([]byte{5}); err != ErrFixedCapacity {
		t.Fatalf("expected ErrFixedCapacity, got %v", err)
	}
}

func TestEraseZeroesTail(t *testing.T) {
	s := NewFromBytes([]byte{1, 2, 3, 4, 5})
	if err := s.Erase(1, 2); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	want := []byte{1, 4, 5}
	got := s.Bytes()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestInsertShiftsRight(t *testing.T) {
	s := NewFromBytes([]byte{1, 2, 5, 6})
	if err := s.Insert(2, []byte{3, 4}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6}
	got := s.Bytes()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLockedDestroyZeroes(t *testing.T) {
	l := NewLocked(8)
	if err := l.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	full := l.buf[:cap(l.buf)]
	l.Destroy()
	for i, b := range full {
		if b != 0 {
			t.Fatalf("byte %d not zeroed after Destroy: %d", i, b)
		}
	}
}
