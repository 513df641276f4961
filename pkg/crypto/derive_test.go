package crypto

import (
	"bytes"
	"testing"
)

// TestIdentityLockLaw exercises §8's identity-lock law: for any IUK and RLK,
// verifying a message signed with URSK/URPK against VUK succeeds, since
// URPK == VUK by construction.
func TestIdentityLockLaw(t *testing.T) {
	iuk := bytes.Repeat([]byte{0x5A}, KeySize)

	ilk, err := DeriveILK(iuk)
	if err != nil {
		t.Fatalf("DeriveILK: %v", err)
	}
	rlk, err := GenerateRandomScalar()
	if err != nil {
		t.Fatalf("GenerateRandomScalar: %v", err)
	}
	suk, err := DeriveSUK(rlk)
	if err != nil {
		t.Fatalf("DeriveSUK: %v", err)
	}
	vuk, err := DeriveVUK(ilk, rlk)
	if err != nil {
		t.Fatalf("DeriveVUK: %v", err)
	}
	ursk, err := DeriveURSK(suk, iuk)
	if err != nil {
		t.Fatalf("DeriveURSK: %v", err)
	}

	msg := []byte("unlock request")
	sig, err := Ed25519Sign(ursk, msg)
	if err != nil {
		t.Fatalf("Ed25519Sign: %v", err)
	}
	if !Ed25519Verify(vuk, msg, sig) {
		t.Fatal("expected Ed25519_verify(sign(msg, URSK), msg, VUK) to hold")
	}

	urpk, err := Ed25519PublicFromSeed(ursk)
	if err != nil {
		t.Fatalf("Ed25519PublicFromSeed: %v", err)
	}
	if !bytes.Equal(urpk, vuk) {
		t.Fatalf("URPK != VUK: %x != %x", urpk, vuk)
	}
}

func TestDeriveMKAndLocalChain(t *testing.T) {
	iuk := bytes.Repeat([]byte{0x01}, KeySize)
	mk := DeriveMK(iuk)
	local := DeriveLocal(mk[:])

	if mk == local {
		t.Fatal("MK and LOCAL should differ (EnHash applied a second time)")
	}
	if mk != EnHash(iuk) {
		t.Fatal("DeriveMK should equal EnHash(iuk)")
	}
	if local != EnHash(mk[:]) {
		t.Fatal("DeriveLocal should equal EnHash(mk)")
	}
}

func TestDeriveSiteKeysDeterministic(t *testing.T) {
	mk := bytes.Repeat([]byte{0x03}, KeySize)
	host := "sqrlid.com"

	sec1 := DeriveSiteSecret(mk, host)
	sec2 := DeriveSiteSecret(mk, host)
	if sec1 != sec2 {
		t.Fatal("expected deterministic site secret")
	}

	pub, err := DeriveSitePublic(sec1[:])
	if err != nil {
		t.Fatalf("DeriveSitePublic: %v", err)
	}
	if len(pub) != KeySize {
		t.Fatalf("site public key length = %d, want %d", len(pub), KeySize)
	}
}
