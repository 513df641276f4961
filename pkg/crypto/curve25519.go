package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// ErrInvalidKeyLength is returned when a scalar or point is not KeySize bytes.
var ErrInvalidKeyLength = errors.New("crypto: key must be 32 bytes")

// ClampScalar applies the X25519 clamp to a 32-byte scalar in place:
// k[0] &= 248; k[31] &= 127; k[31] |= 64. Every identity-lock scalar (IUK
// when used as a curve key, RLK) is clamped before use.
func ClampScalar(k []byte) error {
	if len(k) != KeySize {
		return ErrInvalidKeyLength
	}
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
	return nil
}

// X25519Base computes the public point for a clamped scalar:
// X25519_base(k) = k * basepoint.
func X25519Base(scalar []byte) ([]byte, error) {
	if len(scalar) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return curve25519.X25519(scalar, curve25519.Basepoint)
}

// X25519 computes the shared point scalar*point, e.g. the identity-lock
// shared secret X25519(ILK, RLK) or the unlock-request secret
// X25519(SUK, clamp(IUK)).
func X25519(scalar, point []byte) ([]byte, error) {
	if len(scalar) != KeySize || len(point) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return curve25519.X25519(scalar, point)
}

// GenerateRandomScalar returns a fresh, clamped 32-byte scalar, used to mint
// a per-registration RLK.
func GenerateRandomScalar() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	if err := ClampScalar(k); err != nil {
		return nil, err
	}
	return k, nil
}
