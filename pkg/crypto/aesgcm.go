// AES-256-GCM sealing for S4 identity blocks. IV may be the zero vector (for
// type-3 "previous identity" blocks, which are never re-used under the same
// key since MK changes on every rekey, and for type-2 rescue blocks, whose
// key is stretched from a fresh salt on every save) or a fresh 12-byte random
// value (for type-1 blocks and the hint-lock payload sealed by Lock).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

// AESGCMKeySize is the AES-256 key size in bytes.
const AESGCMKeySize = 32

// AESGCMIVSize is the standard GCM nonce size used throughout S4.
const AESGCMIVSize = 12

// AESGCMTagSize is the GCM authentication tag size appended to ciphertext.
const AESGCMTagSize = 16

var (
	ErrAESGCMInvalidKeySize = errors.New("aesgcm: key must be 32 bytes")
	ErrAESGCMInvalidIVSize  = errors.New("aesgcm: iv must be 12 bytes")
	ErrAESGCMAuthFailed     = errors.New("aesgcm: authentication failed")
)

// ZeroIV is the all-zero 12-byte nonce used for type-2 and type-3 blocks.
var ZeroIV = make([]byte, AESGCMIVSize)

// RandomIV returns a fresh 12-byte random nonce, for payloads whose key may be
// reused across seals (the hint-lock payload and SealLocal envelopes).
func RandomIV() ([]byte, error) {
	iv := make([]byte, AESGCMIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// AESGCMSeal encrypts plaintext under key with iv and aad, returning
// ciphertext || tag.
func AESGCMSeal(key, iv, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != AESGCMIVSize {
		return nil, ErrAESGCMInvalidIVSize
	}
	return aead.Seal(nil, iv, plaintext, aad), nil
}

// AESGCMOpen decrypts ciphertext||tag under key with iv and aad. It refuses
// to return any plaintext bytes on tag mismatch.
func AESGCMOpen(key, iv, aad, ciphertextAndTag []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != AESGCMIVSize {
		return nil, ErrAESGCMInvalidIVSize
	}
	plaintext, err := aead.Open(nil, iv, ciphertextAndTag, aad)
	if err != nil {
		return nil, ErrAESGCMAuthFailed
	}
	return plaintext, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AESGCMKeySize {
		return nil, ErrAESGCMInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
