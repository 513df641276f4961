package client

import (
	"crypto/rand"
	"io"

	"github.com/sqrl-go/sqrl/pkg/crypto"
)

// keySlots holds the up-to-nine site-related keys a session accumulates as
// it walks the current identity, a previous identity, and an in-flight
// identity-lock transfer.
type keySlots struct {
	sec, pub   []byte // current identity's site keypair
	psec, ppub []byte // previous identity's site keypair, once tried
	suk, vuk   []byte // server/verify unlock keys for a lock transfer
	ursk, urpk []byte // unlock-request signing keypair (urpk == vuk)
}

// deriveCurrent computes SEC/PUB for the current MK against hostString.
func (k *keySlots) deriveCurrent(mk []byte, hostString string) error {
	sec := crypto.DeriveSiteSecret(mk, hostString)
	pub, err := crypto.DeriveSitePublic(sec[:])
	if err != nil {
		return err
	}
	k.sec, k.pub = sec[:], pub
	return nil
}

// derivePrevious computes PSEC/PPUB from a previous IUK's re-derived MK.
func (k *keySlots) derivePrevious(piuk []byte, hostString string) error {
	mk := crypto.DeriveMK(piuk)
	psec := crypto.DeriveSiteSecret(mk[:], hostString)
	ppub, err := crypto.DeriveSitePublic(psec[:])
	if err != nil {
		return err
	}
	k.psec, k.ppub = psec[:], ppub
	return nil
}

// generateLockPair creates a fresh RLK and derives SUK/VUK from it and the
// identity's ILK, for registering or rolling forward an identity-lock.
func (k *keySlots) generateLockPair(ilk []byte, entropy io.Reader) error {
	if entropy == nil {
		entropy = rand.Reader
	}
	rlk := make([]byte, crypto.KeySize)
	if _, err := io.ReadFull(entropy, rlk); err != nil {
		return err
	}
	if err := crypto.ClampScalar(rlk); err != nil {
		return err
	}
	suk, err := crypto.DeriveSUK(rlk)
	if err != nil {
		return err
	}
	vuk, err := crypto.DeriveVUK(ilk, rlk)
	if err != nil {
		return err
	}
	k.suk, k.vuk = suk, vuk
	return nil
}

// deriveURSK computes URSK (and its companion URPK == VUK) from the
// previous identity's IUK and the server-returned SUK, for an ident that
// rolls forward from a matched previous identity.
func (k *keySlots) deriveURSK(piuk, serverSUK []byte) error {
	ursk, err := crypto.DeriveURSK(serverSUK, piuk)
	if err != nil {
		return err
	}
	urpk, err := crypto.Ed25519PublicFromSeed(ursk)
	if err != nil {
		return err
	}
	k.ursk, k.urpk = ursk, urpk
	return nil
}
