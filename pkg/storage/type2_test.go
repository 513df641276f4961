package storage

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestType2EncodeDecodeRoundtrip(t *testing.T) {
	iuk := bytes.Repeat([]byte{0x55}, 32)
	rescueCode := []byte("123456789012345678901234")

	block, err := EncodeType2(iuk, rescueCode, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType2: %v", err)
	}
	if block.Length() != 73 {
		t.Fatalf("block length = %d, want 73", block.Length())
	}

	got, err := DecodeType2(block, rescueCode)
	if err != nil {
		t.Fatalf("DecodeType2: %v", err)
	}
	if !bytes.Equal(got, iuk) {
		t.Fatalf("decoded IUK mismatch: %x != %x", got, iuk)
	}

	uid, ok := block.UniqueID()
	if !ok || len(uid) != 32 {
		t.Fatalf("UniqueID() = %x, %v; want 32 bytes, true", uid, ok)
	}
}

func TestType2DecodeRejectsWrongRescueCode(t *testing.T) {
	iuk := bytes.Repeat([]byte{0x66}, 32)
	block, err := EncodeType2(iuk, []byte("111111111111111111111111"), 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType2: %v", err)
	}
	if _, err := DecodeType2(block, []byte("222222222222222222222222")); err == nil {
		t.Fatal("expected decode with the wrong rescue code to fail")
	}
}
