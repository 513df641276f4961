// Package keyset holds the identity key hierarchy in memory: the identity
// unlock key, the derived master/local/identity-lock keys, the retained
// previous-IUKs, and the password/rescue-code scratch material used while
// an action is running.
package keyset

import (
	"errors"
	"sync"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/zstring"
)

// PIUKCount is the number of previous-IUK slots retained across re-keys.
const PIUKCount = 4

// Errors returned by KeySet.
var (
	ErrNoIUK          = errors.New("keyset: no identity unlock key loaded")
	ErrNoMK           = errors.New("keyset: no master key loaded")
	ErrInvalidKeySize = errors.New("keyset: key must be crypto.KeySize bytes")
	ErrNoSuchPIUK     = errors.New("keyset: previous-identity index out of range")
)

// KeySet is the in-memory identity key hierarchy for one user. All key
// material is held in zero-on-release, memory-locked buffers; accessors copy
// out rather than returning the backing slice.
//
// A freshly constructed KeySet is empty: no IUK, no derived keys. Regenerate
// installs an IUK and derives MK/ILK/LOCAL; Rekey generates a fresh IUK,
// rotates the previous one into the PIUK ring, and re-derives.
type KeySet struct {
	mu sync.RWMutex

	iuk   *zstring.Locked
	mk    *zstring.Locked
	ilk   *zstring.Locked
	local *zstring.Locked
	piuk  [PIUKCount]*zstring.Locked

	password   *zstring.Locked
	rescueCode *zstring.Locked
	scratch    *zstring.Locked

	// haveIUK is set only when the actual IUK is known (generate/rekey/
	// rescue). haveMK is set whenever MK/ILK/LOCAL are known, which also
	// happens when a type-1 block is decrypted directly (the password
	// block stores MK‖ILK, not the IUK that produced them).
	haveIUK bool
	haveMK  bool
	havePIU [PIUKCount]bool

	// hint-lock state (see hintlock.go): while hintLocked is set, the
	// iuk/mk/ilk/local/piuk fields above are zeroized and the key hierarchy
	// only exists sealed in hintPayload.
	hintLocked     bool
	hintPayload    *zstring.Locked
	hintSalt       []byte
	hintIV         []byte
	hintNFactor    uint8
	hintIterations uint16
}

// New returns an empty KeySet with its buffers preallocated and locked.
func New() *KeySet {
	ks := &KeySet{
		iuk:        zstring.NewLocked(crypto.KeySize),
		mk:         zstring.NewLocked(crypto.KeySize),
		ilk:        zstring.NewLocked(crypto.KeySize),
		local:      zstring.NewLocked(crypto.KeySize),
		password:   zstring.NewLocked(256),
		rescueCode: zstring.NewLocked(24),
		scratch:    zstring.NewLocked(256),
	}
	for i := range ks.piuk {
		ks.piuk[i] = zstring.NewLocked(crypto.KeySize)
	}
	return ks
}

// Regenerate installs iuk as the current identity unlock key and derives
// MK, ILK, and LOCAL from it. It does not touch the PIUK ring; callers
// doing a re-key should call Rekey instead so the outgoing IUK is retained.
func (ks *KeySet) Regenerate(iuk []byte) error {
	if len(iuk) != crypto.KeySize {
		return ErrInvalidKeySize
	}
	mk := crypto.DeriveMK(iuk)
	local := crypto.DeriveLocal(mk[:])
	ilk, err := crypto.DeriveILK(iuk)
	if err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	setLocked(ks.iuk, iuk)
	setLocked(ks.mk, mk[:])
	setLocked(ks.local, local[:])
	setLocked(ks.ilk, ilk)
	ks.haveIUK = true
	ks.haveMK = true
	return nil
}

// SetMKILK installs mk and ilk directly (as recovered by decrypting a
// type-1 block, which stores MK‖ILK rather than the IUK), deriving LOCAL
// from mk. The IUK remains unknown until a rescue decrypt or rekey installs
// it.
func (ks *KeySet) SetMKILK(mk, ilk []byte) error {
	if len(mk) != crypto.KeySize || len(ilk) != crypto.KeySize {
		return ErrInvalidKeySize
	}
	local := crypto.DeriveLocal(mk)

	ks.mu.Lock()
	defer ks.mu.Unlock()
	setLocked(ks.mk, mk)
	setLocked(ks.ilk, ilk)
	setLocked(ks.local, local[:])
	ks.haveMK = true
	return nil
}

// Rekey rotates the current IUK into PIUK0 (shifting PIUK0..2 down into
// PIUK1..3, discarding PIUK3), then regenerates from newIUK.
func (ks *KeySet) Rekey(newIUK []byte) error {
	if len(newIUK) != crypto.KeySize {
		return ErrInvalidKeySize
	}

	ks.mu.Lock()
	if ks.haveIUK {
		outgoing := append([]byte(nil), ks.iuk.Bytes()...)
		for i := PIUKCount - 1; i > 0; i-- {
			if ks.havePIU[i-1] {
				setLocked(ks.piuk[i], ks.piuk[i-1].Bytes())
			}
			ks.havePIU[i] = ks.havePIU[i-1]
		}
		setLocked(ks.piuk[0], outgoing)
		ks.havePIU[0] = true
	}
	ks.mu.Unlock()

	return ks.Regenerate(newIUK)
}

// IUK returns a copy of the identity unlock key, or ErrNoIUK if none is
// loaded.
func (ks *KeySet) IUK() ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.haveIUK {
		return nil, ErrNoIUK
	}
	return append([]byte(nil), ks.iuk.Bytes()...), nil
}

// MK returns a copy of the master key.
func (ks *KeySet) MK() ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.haveMK {
		return nil, ErrNoMK
	}
	return append([]byte(nil), ks.mk.Bytes()...), nil
}

// ILK returns a copy of the identity-lock public key.
func (ks *KeySet) ILK() ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.haveMK {
		return nil, ErrNoMK
	}
	return append([]byte(nil), ks.ilk.Bytes()...), nil
}

// Local returns a copy of the local-envelope key LOCAL.
func (ks *KeySet) Local() ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.haveMK {
		return nil, ErrNoMK
	}
	return append([]byte(nil), ks.local.Bytes()...), nil
}

// PIUK returns a copy of the previous-IUK at index (0 = most recently
// retired), or ErrNoSuchPIUK if index is out of range or unset.
func (ks *KeySet) PIUK(index int) ([]byte, error) {
	if index < 0 || index >= PIUKCount {
		return nil, ErrNoSuchPIUK
	}
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.havePIU[index] {
		return nil, ErrNoSuchPIUK
	}
	return append([]byte(nil), ks.piuk[index].Bytes()...), nil
}

// PIUKs returns all four previous-IUK slots, zero-filled where unset, in the
// layout a Type 3 block expects.
func (ks *KeySet) PIUKs() [PIUKCount][]byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	var out [PIUKCount][]byte
	for i := range out {
		if ks.havePIU[i] {
			out[i] = append([]byte(nil), ks.piuk[i].Bytes()...)
		} else {
			out[i] = make([]byte, crypto.KeySize)
		}
	}
	return out
}

// SetPIUK installs a previous-IUK directly at index, used when loading a
// type-3 block from storage rather than rotating via Rekey.
func (ks *KeySet) SetPIUK(index int, piuk []byte) error {
	if index < 0 || index >= PIUKCount {
		return ErrNoSuchPIUK
	}
	if len(piuk) != crypto.KeySize {
		return ErrInvalidKeySize
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	setLocked(ks.piuk[index], piuk)
	ks.havePIU[index] = true
	return nil
}

// SetPassword installs the password used to unlock the type-1 block.
func (ks *KeySet) SetPassword(password []byte) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	setLocked(ks.password, password)
}

// Password returns a copy of the stored password.
func (ks *KeySet) Password() []byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return append([]byte(nil), ks.password.Bytes()...)
}

// SetRescueCode installs the rescue code used to unlock the type-2 block.
func (ks *KeySet) SetRescueCode(code []byte) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	setLocked(ks.rescueCode, code)
}

// RescueCode returns a copy of the stored rescue code.
func (ks *KeySet) RescueCode() []byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return append([]byte(nil), ks.rescueCode.Bytes()...)
}

// Scratch returns the scratch buffer for action-local use (e.g. EnScrypt
// intermediate state), growing it to at least n bytes.
func (ks *KeySet) Scratch(n int) *zstring.Locked {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.scratch.Capacity() < n {
		ks.scratch.Destroy()
		ks.scratch = zstring.NewLocked(n)
	}
	return ks.scratch
}

// Zeroize destroys every key-material buffer, unlocking and zeroing their
// memory. The KeySet is unusable afterward.
func (ks *KeySet) Zeroize() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.iuk.Destroy()
	ks.mk.Destroy()
	ks.ilk.Destroy()
	ks.local.Destroy()
	for i := range ks.piuk {
		ks.piuk[i].Destroy()
		ks.havePIU[i] = false
	}
	ks.password.Destroy()
	ks.rescueCode.Destroy()
	ks.scratch.Destroy()
	ks.haveIUK = false
	ks.haveMK = false
	if ks.hintPayload != nil {
		ks.hintPayload.Destroy()
		ks.hintPayload = nil
	}
	ks.hintLocked = false
}

// localEnvelopeInfo is the HKDF info string binding a local-envelope key to
// its purpose, so a single LOCAL cannot be reused across unrelated seals.
const localEnvelopeInfo = "sqrl-local-envelope"

// SealLocal encrypts plaintext under a key derived from LOCAL via
// HKDF-SHA256, so callers can stash action-scoped secrets (e.g. a password
// held across a scheduler yield) without spending an EnScrypt pass. aad is
// authenticated but not encrypted.
func (ks *KeySet) SealLocal(aad, plaintext []byte) (iv, ciphertext []byte, err error) {
	local, err := ks.Local()
	if err != nil {
		return nil, nil, err
	}
	key, err := crypto.HKDFSHA256(local, nil, []byte(localEnvelopeInfo), crypto.AESGCMKeySize)
	if err != nil {
		return nil, nil, err
	}
	iv, err = crypto.RandomIV()
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err = crypto.AESGCMSeal(key, iv, aad, plaintext)
	return iv, ciphertext, err
}

// OpenLocal reverses SealLocal.
func (ks *KeySet) OpenLocal(iv, aad, ciphertext []byte) ([]byte, error) {
	local, err := ks.Local()
	if err != nil {
		return nil, err
	}
	key, err := crypto.HKDFSHA256(local, nil, []byte(localEnvelopeInfo), crypto.AESGCMKeySize)
	if err != nil {
		return nil, err
	}
	return crypto.AESGCMOpen(key, iv, aad, ciphertext)
}

// setLocked replaces l's contents with a copy of b, reallocating if b
// doesn't fit the current capacity and zeroing any stale tail left over
// from a previous, longer value.
func setLocked(l *zstring.Locked, b []byte) {
	if l.Capacity() < len(b) {
		l.Destroy()
		*l = *zstring.NewLocked(len(b))
	}
	l.Seek(0, false)
	_ = l.Write(b)
	if stale := l.Len() - len(b); stale > 0 {
		_ = l.Erase(len(b), stale)
	}
}
