package storage

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestType1EncodeDecodeRoundtrip(t *testing.T) {
	mk := bytes.Repeat([]byte{0x11}, 32)
	ilk := bytes.Repeat([]byte{0x22}, 32)
	password := []byte("correct horse battery staple")
	opts := Type1Options{Flags: 0x0001, HintLength: 4, EnscryptSeconds: 0, TimeoutMinutes: 15}

	block, err := EncodeType1(mk, ilk, password, opts, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType1: %v", err)
	}
	if block.Length() != 125 {
		t.Fatalf("block length = %d, want 125", block.Length())
	}

	gotMK, gotILK, gotOpts, err := DecodeType1(block, password)
	if err != nil {
		t.Fatalf("DecodeType1: %v", err)
	}
	if !bytes.Equal(gotMK, mk) {
		t.Fatalf("decoded MK mismatch: %x != %x", gotMK, mk)
	}
	if !bytes.Equal(gotILK, ilk) {
		t.Fatalf("decoded ILK mismatch: %x != %x", gotILK, ilk)
	}
	if gotOpts != opts {
		t.Fatalf("decoded options mismatch: %+v != %+v", gotOpts, opts)
	}
}

func TestType1DecodeRejectsWrongPassword(t *testing.T) {
	mk := bytes.Repeat([]byte{0x33}, 32)
	ilk := bytes.Repeat([]byte{0x44}, 32)
	opts := Type1Options{EnscryptSeconds: 0}

	block, err := EncodeType1(mk, ilk, []byte("right password"), opts, 4, rand.Reader)
	if err != nil {
		t.Fatalf("EncodeType1: %v", err)
	}
	if _, _, _, err := DecodeType1(block, []byte("wrong password")); err == nil {
		t.Fatal("expected decode with the wrong password to fail")
	}
}
