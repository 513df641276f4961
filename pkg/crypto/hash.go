// Package crypto provides the cryptographic primitives and composite key
// derivations behind the identity key hierarchy: EnHash, EnScrypt, Ed25519
// signing, X25519 key agreement, and AES-256-GCM storage sealing.
package crypto

import (
	"crypto/sha256"
	"hash"
)

// KeySize is the length in bytes of every symmetric key, curve scalar, and
// curve point this package handles: IUK, MK, ILK, LOCAL, RLK, SUK, VUK,
// URSK, and URPK are all 32 bytes.
const KeySize = 32

// SHA256 computes the SHA-256 digest of message.
func SHA256(message []byte) [KeySize]byte {
	return sha256.Sum256(message)
}

// SHA256Slice computes the SHA-256 digest and returns it as a slice.
func SHA256Slice(message []byte) []byte {
	h := sha256.Sum256(message)
	return h[:]
}

// NewSHA256 returns a new hash.Hash for computing SHA-256 digests
// incrementally.
func NewSHA256() hash.Hash {
	return sha256.New()
}
