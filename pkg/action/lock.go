package action

import (
	"crypto/rand"
	"io"

	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

type lockState int

const (
	lockStateEnsureUser lockState = iota
	lockStateLock
	lockStateDone
)

// defaultHintIterations is the fixed, deliberately cheap EnScrypt iteration
// count used for the hint-lock derivation, distinct from the much longer
// password/rescue stretches — the hint check only needs to resist casual
// shoulder-surfing while the device is briefly unattended, not a dedicated
// offline attack.
const defaultHintIterations = 100

// Lock hint-locks the in-memory key set: it re-encrypts IUK/MK/ILK/LOCAL/
// PIUKs under a key derived from a short password hint and zeroizes the
// live buffers, so a briefly unattended session holds no usable key
// material. Unlock (on the embedder's KeySet directly) reverses it.
type Lock struct {
	preamble

	// Hint is the password prefix (hint_len bytes) the embedder retained.
	Hint []byte
	// NFactor overrides the scrypt memory-cost exponent; 0 means
	// defaultNFactor.
	NFactor uint8
	// Iterations overrides the EnScrypt iteration count; 0 means
	// defaultHintIterations.
	Iterations uint16
	// Entropy supplies the fresh 16-byte salt. Defaults to crypto/rand.Reader.
	Entropy io.Reader

	state lockState
}

// NewLock starts a Lock action for user.
func NewLock(user *useridentity.User, hint []byte, cb Callbacks, log logging.LeveledLogger) *Lock {
	return &Lock{
		preamble: newPreamble(KindLock, user, cb, log),
		Hint:     hint,
	}
}

func (l *Lock) entropy() io.Reader {
	if l.Entropy != nil {
		return l.Entropy
	}
	return rand.Reader
}

func (l *Lock) nFactor() uint8 {
	if l.NFactor != 0 {
		return l.NFactor
	}
	return defaultNFactor
}

func (l *Lock) iterations() uint16 {
	if l.Iterations != 0 {
		return l.Iterations
	}
	return defaultHintIterations
}

// Exec advances Lock by one state.
func (l *Lock) Exec() bool {
	if l.checkCancel() {
		return true
	}
	switch l.state {
	case lockStateEnsureUser:
		if l.user == nil {
			return l.fail(StatusFailState)
		}
		l.state = lockStateLock
		return false

	case lockStateLock:
		if err := l.user.KeySet().Lock(l.Hint, l.nFactor(), l.iterations(), l.entropy()); err != nil {
			return l.fail(StatusFailCrypto)
		}
		l.tracef("lock: identity %s hint-locked", l.user.Handle())
		l.state = lockStateDone
		return false

	default:
		return l.succeed()
	}
}
