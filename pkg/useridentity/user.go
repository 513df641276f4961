// Package useridentity implements the user lifecycle: a handle-addressed,
// reference-counted owner of a key set and its S4 storage, born empty and
// lazily decrypting key material from storage on demand.
package useridentity

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/keyset"
	"github.com/sqrl-go/sqrl/pkg/storage"
)

// State is the coarse lifecycle stage of a User.
type State int

const (
	// StateEmpty is a freshly created user with no key material and no
	// storage backing it.
	StateEmpty State = iota
	// StateLoaded has storage attached but key material not yet decrypted.
	StateLoaded
	// StateReady has the password-derived key set decrypted in memory.
	StateReady
	// StateDestroyed has had its key material zeroized; the User is unusable.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// CredentialKind identifies which secret a CredentialCallback is being asked
// to supply.
type CredentialKind int

const (
	CredentialPassword CredentialKind = iota
	CredentialNewPassword
	CredentialRescueCode
)

// CredentialCallback asks the embedder for a credential. ok is false if the
// embedder declined (e.g. the user cancelled a prompt), which aborts the
// decrypt attempt.
type CredentialCallback func(kind CredentialKind) (secret []byte, ok bool)

// Errors returned by User.
var (
	ErrDestroyed        = errors.New("useridentity: user is destroyed")
	ErrNoStorage        = errors.New("useridentity: user has no storage attached")
	ErrNoPasswordBlock  = errors.New("useridentity: storage has no type-1 block")
	ErrNoRescueBlock    = errors.New("useridentity: storage has no type-2 block")
	ErrCredentialDenied = errors.New("useridentity: embedder declined to supply a credential")
	ErrEmptyPassword    = errors.New("useridentity: password must be non-empty")
)

// User is a single identity: its key set, its S4 storage, and the dirty
// flags that track which blocks a pending Save must rewrite.
//
// Users are reference counted rather than tied to a single owner, since both
// the scheduler (via actions) and the embedder may hold a handle at once.
// The key set is zeroized the moment the count reaches zero.
type User struct {
	mu sync.RWMutex

	handle  uuid.UUID
	refs    int32
	state   State
	keys    *keyset.KeySet
	storage *storage.Storage

	uri string // file:// URI this user was loaded from or will save to

	t1Dirty bool
	t2Dirty bool
}

// New returns a freshly born, empty User with one reference held by the
// caller.
func New() *User {
	return &User{
		handle: uuid.New(),
		refs:   1,
		state:  StateEmpty,
		keys:   keyset.New(),
	}
}

// Handle returns the stable identifier other layers use to refer to this
// user without holding a direct pointer.
func (u *User) Handle() uuid.UUID {
	return u.handle
}

// Acquire increments the reference count and returns u, for callers that
// want to hold their own release obligation.
func (u *User) Acquire() *User {
	atomic.AddInt32(&u.refs, 1)
	return u
}

// Release decrements the reference count. At zero, the key set is zeroized
// and the user transitions to StateDestroyed.
func (u *User) Release() {
	if atomic.AddInt32(&u.refs, -1) > 0 {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateDestroyed {
		return
	}
	u.keys.Zeroize()
	u.state = StateDestroyed
}

// State returns the current lifecycle stage.
func (u *User) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// KeySet returns the user's key set. Valid for the lifetime of any held
// reference; callers must not retain it past Release.
func (u *User) KeySet() *keyset.KeySet {
	return u.keys
}

// Storage returns the attached S4 storage, or nil if none has been loaded
// or allocated yet.
func (u *User) Storage() *storage.Storage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.storage
}

// URI returns the file:// location this user was loaded from or will save
// to, or "" if the user has never been associated with one.
func (u *User) URI() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.uri
}

// SetURI records the file:// location for a subsequent Save.
func (u *User) SetURI(uri string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uri = uri
}

// AttachStorage installs s as the user's storage backing, transitioning an
// empty user to StateLoaded. Key material is not decrypted until
// DecryptPassword or DecryptRescue is called.
func (u *User) AttachStorage(s *storage.Storage) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateDestroyed {
		return ErrDestroyed
	}
	u.storage = s
	if u.state == StateEmpty {
		u.state = StateLoaded
	}
	return nil
}

// AllocateStorage attaches a fresh, empty Storage container for a user that
// has none, used by the save action before it writes type-1/2/3 blocks for
// the first time.
func (u *User) AllocateStorage() *storage.Storage {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.storage == nil {
		u.storage = storage.New()
	}
	return u.storage
}

// IsDirty reports whether the given S4 block type needs to be rewritten on
// the next save.
func (u *User) IsDirty(blockType uint16) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	switch blockType {
	case storage.BlockTypePassword:
		return u.t1Dirty
	case storage.BlockTypeRescue:
		return u.t2Dirty
	default:
		return false
	}
}

// MarkDirty flags the given S4 block type as needing a rewrite.
func (u *User) MarkDirty(blockType uint16) {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch blockType {
	case storage.BlockTypePassword:
		u.t1Dirty = true
	case storage.BlockTypeRescue:
		u.t2Dirty = true
	}
}

// ClearDirty unsets the dirty flag for the given S4 block type, called after
// a save action has rewritten it.
func (u *User) ClearDirty(blockType uint16) {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch blockType {
	case storage.BlockTypePassword:
		u.t1Dirty = false
	case storage.BlockTypeRescue:
		u.t2Dirty = false
	}
}

// Rekey generates the identity key hierarchy from newIUK, rotating the
// outgoing IUK into the PIUK ring, and marks both the password and rescue
// blocks dirty since both derive from MK/IUK.
func (u *User) Rekey(newIUK []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateDestroyed {
		return ErrDestroyed
	}
	if err := u.keys.Rekey(newIUK); err != nil {
		return err
	}
	u.state = StateReady
	u.t1Dirty = true
	u.t2Dirty = true
	return nil
}

// DecryptPassword lazily decrypts the type-1 block's MK/ILK into the key
// set, prompting cb for the password if one is not already loaded. It is a
// no-op if the key set already has MK loaded.
func (u *User) DecryptPassword(cb CredentialCallback) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateDestroyed {
		return ErrDestroyed
	}
	if _, err := u.keys.MK(); err == nil {
		return nil
	}
	if u.storage == nil {
		return ErrNoStorage
	}
	block, ok := u.storage.GetBlock(storage.BlockTypePassword)
	if !ok {
		return ErrNoPasswordBlock
	}

	password := u.keys.Password()
	if len(password) == 0 {
		secret, ok := cb(CredentialPassword)
		if !ok {
			return ErrCredentialDenied
		}
		password = secret
	}

	mk, ilk, _, err := storage.DecodeType1(block, password)
	if errors.Is(err, crypto.ErrAESGCMAuthFailed) {
		// One retry: a mistyped password shouldn't fail the whole action.
		secret, ok := cb(CredentialPassword)
		if !ok {
			return ErrCredentialDenied
		}
		password = secret
		mk, ilk, _, err = storage.DecodeType1(block, password)
	}
	if err != nil {
		return err
	}
	u.keys.SetPassword(password)
	if err := u.keys.SetMKILK(mk, ilk); err != nil {
		return err
	}
	u.state = StateReady
	return nil
}

// DecryptRescue lazily decrypts the type-2 block's IUK, prompting cb for
// the rescue code. Used by the rescue action and by rekey's force-rescue
// step.
func (u *User) DecryptRescue(cb CredentialCallback) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateDestroyed {
		return nil, ErrDestroyed
	}
	if u.storage == nil {
		return nil, ErrNoStorage
	}
	block, ok := u.storage.GetBlock(storage.BlockTypeRescue)
	if !ok {
		return nil, ErrNoRescueBlock
	}

	code := u.keys.RescueCode()
	if len(code) == 0 {
		secret, ok := cb(CredentialRescueCode)
		if !ok {
			return nil, ErrCredentialDenied
		}
		code = secret
	}

	iuk, err := storage.DecodeType2(block, code)
	if errors.Is(err, crypto.ErrAESGCMAuthFailed) {
		// One retry: a mistyped rescue code shouldn't fail the whole action.
		secret, ok := cb(CredentialRescueCode)
		if !ok {
			return nil, ErrCredentialDenied
		}
		code = secret
		iuk, err = storage.DecodeType2(block, code)
	}
	if err != nil {
		return nil, err
	}
	u.keys.SetRescueCode(code)
	return iuk, nil
}

// RequireSavePassword returns the password to use for a save action,
// prompting cb for a new one if none is set yet. A zero-length password is
// rejected per the "password required before save" invariant.
func (u *User) RequireSavePassword(cb CredentialCallback) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateDestroyed {
		return nil, ErrDestroyed
	}
	password := u.keys.Password()
	if len(password) == 0 {
		secret, ok := cb(CredentialNewPassword)
		if !ok {
			return nil, ErrCredentialDenied
		}
		password = secret
	}
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	u.keys.SetPassword(password)
	return password, nil
}
