package keyset

import (
	"errors"
	"io"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/zstring"
)

// hintPlaintextLen is the fixed-size packed record Lock seals: one flag byte
// (haveIUK, haveMK, havePIU[0..3]) followed by IUK‖MK‖ILK‖LOCAL‖PIUK0..3.
const hintPlaintextLen = 1 + 8*crypto.KeySize

var (
	// ErrAlreadyLocked is returned by Lock on a KeySet that is already
	// hint-locked.
	ErrAlreadyLocked = errors.New("keyset: already hint-locked")
	// ErrNotLocked is returned by Unlock on a KeySet that isn't hint-locked.
	ErrNotLocked = errors.New("keyset: not hint-locked")
	// ErrHintMismatch is returned by Unlock when the supplied hint doesn't
	// reproduce the key used to seal the locked payload.
	ErrHintMismatch = errors.New("keyset: hint does not match")
)

// Lock re-encrypts the identity key hierarchy under a key derived by a
// short, fixed-iteration EnScrypt over hint (conventionally the first
// hint_len bytes of the password), then zeroizes the live IUK/MK/ILK/LOCAL/
// PIUK buffers. iterations is recorded so Unlock can reverse the derivation
// deterministically.
func (ks *KeySet) Lock(hint []byte, nFactor uint8, iterations uint16, rng io.Reader) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.hintLocked {
		return ErrAlreadyLocked
	}
	if !ks.haveMK {
		return ErrNoMK
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rng, salt); err != nil {
		return err
	}
	es, err := crypto.NewEnScryptIterations(hint, salt, iterations, nFactor)
	if err != nil {
		return err
	}
	es.Run()
	if !es.Successful() {
		return crypto.ErrEnScryptFailed
	}
	key := es.Result()

	plaintext := ks.packSecretsLocked()
	iv, err := crypto.RandomIV()
	if err != nil {
		return err
	}
	ciphertext, err := crypto.AESGCMSeal(key[:], iv, nil, plaintext)
	zero(plaintext)
	zero(key[:])
	if err != nil {
		return err
	}

	if ks.hintPayload == nil {
		ks.hintPayload = zstring.NewLocked(len(ciphertext))
	}
	setLocked(ks.hintPayload, ciphertext)
	ks.hintSalt = append([]byte(nil), salt...)
	ks.hintIV = append([]byte(nil), iv...)
	ks.hintNFactor = nFactor
	ks.hintIterations = iterations

	ks.clearSecretsLocked()
	ks.hintLocked = true
	return nil
}

// Unlock reverses Lock given the same hint, restoring the live key
// hierarchy and discarding the sealed payload.
func (ks *KeySet) Unlock(hint []byte) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if !ks.hintLocked {
		return ErrNotLocked
	}
	es, err := crypto.NewEnScryptIterations(hint, ks.hintSalt, ks.hintIterations, ks.hintNFactor)
	if err != nil {
		return err
	}
	es.Run()
	if !es.Successful() {
		return crypto.ErrEnScryptFailed
	}
	key := es.Result()

	plaintext, err := crypto.AESGCMOpen(key[:], ks.hintIV, nil, ks.hintPayload.Bytes())
	zero(key[:])
	if err != nil {
		return ErrHintMismatch
	}
	ks.unpackSecretsLocked(plaintext)
	zero(plaintext)

	ks.hintPayload.Destroy()
	ks.hintPayload = nil
	ks.hintSalt = nil
	ks.hintIV = nil
	ks.hintLocked = false
	return nil
}

// Locked reports whether the key set is currently hint-locked.
func (ks *KeySet) Locked() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.hintLocked
}

// packSecretsLocked packs the live key hierarchy into hintPlaintextLen
// bytes. Must be called with ks.mu held.
func (ks *KeySet) packSecretsLocked() []byte {
	out := make([]byte, hintPlaintextLen)
	var flags byte
	if ks.haveIUK {
		flags |= 1 << 0
	}
	if ks.haveMK {
		flags |= 1 << 1
	}
	for i := 0; i < PIUKCount; i++ {
		if ks.havePIU[i] {
			flags |= 1 << uint(2+i)
		}
	}
	out[0] = flags

	off := 1
	copy(out[off:off+crypto.KeySize], ks.iuk.Bytes())
	off += crypto.KeySize
	copy(out[off:off+crypto.KeySize], ks.mk.Bytes())
	off += crypto.KeySize
	copy(out[off:off+crypto.KeySize], ks.ilk.Bytes())
	off += crypto.KeySize
	copy(out[off:off+crypto.KeySize], ks.local.Bytes())
	off += crypto.KeySize
	for i := 0; i < PIUKCount; i++ {
		copy(out[off:off+crypto.KeySize], ks.piuk[i].Bytes())
		off += crypto.KeySize
	}
	return out
}

// unpackSecretsLocked reverses packSecretsLocked, restoring the live key
// hierarchy fields and have-flags. Must be called with ks.mu held.
func (ks *KeySet) unpackSecretsLocked(plaintext []byte) {
	flags := plaintext[0]
	off := 1
	setLocked(ks.iuk, plaintext[off:off+crypto.KeySize])
	off += crypto.KeySize
	setLocked(ks.mk, plaintext[off:off+crypto.KeySize])
	off += crypto.KeySize
	setLocked(ks.ilk, plaintext[off:off+crypto.KeySize])
	off += crypto.KeySize
	setLocked(ks.local, plaintext[off:off+crypto.KeySize])
	off += crypto.KeySize
	for i := 0; i < PIUKCount; i++ {
		setLocked(ks.piuk[i], plaintext[off:off+crypto.KeySize])
		off += crypto.KeySize
		ks.havePIU[i] = flags&(1<<uint(2+i)) != 0
	}
	ks.haveIUK = flags&(1<<0) != 0
	ks.haveMK = flags&(1<<1) != 0
}

// clearSecretsLocked zeroizes the live key hierarchy without touching the
// password/rescue-code/scratch buffers. Must be called with ks.mu held.
func (ks *KeySet) clearSecretsLocked() {
	blank := make([]byte, crypto.KeySize)
	setLocked(ks.iuk, blank)
	setLocked(ks.mk, blank)
	setLocked(ks.ilk, blank)
	setLocked(ks.local, blank)
	for i := range ks.piuk {
		setLocked(ks.piuk[i], blank)
		ks.havePIU[i] = false
	}
	ks.haveIUK = false
	ks.haveMK = false
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
