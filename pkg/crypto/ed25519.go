package crypto

import (
	"crypto/ed25519"
	"errors"
)

// SignatureSize is the length in bytes of a detached Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// ErrInvalidSignature is returned by Verify when the signature does not
// validate against the given public key and message.
var ErrInvalidSignature = errors.New("crypto: signature verification failed")

// Ed25519PublicFromSeed derives the Ed25519 public key for a 32-byte seed,
// e.g. PUB from SEC, or VUK from the identity-lock shared secret.
func Ed25519PublicFromSeed(seed []byte) ([]byte, error) {
	if len(seed) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := make([]byte, ed25519.PublicKeySize)
	copy(pub, priv[ed25519.PublicKeySize:])
	return pub, nil
}

// Ed25519Sign produces a detached signature of message under the keypair
// derived from a 32-byte seed.
func Ed25519Sign(seed, message []byte) ([]byte, error) {
	if len(seed) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return ed25519.Sign(priv, message), nil
}

// Ed25519Verify reports whether sig is a valid detached signature of message
// under pub.
func Ed25519Verify(pub, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
