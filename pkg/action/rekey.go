package action

import (
	"crypto/rand"
	"io"

	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

type rekeyState int

const (
	rekeyStateEnsureUser rekeyState = iota
	rekeyStateForceRescue
	rekeyStateRekey
	rekeyStatePassword
	rekeyStateSuggestSave
	rekeyStateDone
)

// Rekey retires the current identity unlock key into the previous-IUK ring
// and installs a fresh one, after first recovering the current IUK from the
// rescue block so it rotates in correctly.
type Rekey struct {
	preamble

	// Entropy supplies the 32 bytes of randomness for the new IUK. Defaults
	// to crypto/rand.Reader.
	Entropy io.Reader

	state rekeyState
}

// NewRekey starts a Rekey action for user.
func NewRekey(user *useridentity.User, cb Callbacks, log logging.LeveledLogger) *Rekey {
	return &Rekey{preamble: newPreamble(KindRekey, user, cb, log)}
}

func (r *Rekey) entropy() io.Reader {
	if r.Entropy != nil {
		return r.Entropy
	}
	return rand.Reader
}

// Exec advances Rekey by one state.
func (r *Rekey) Exec() bool {
	if r.checkCancel() {
		return true
	}
	switch r.state {
	case rekeyStateEnsureUser:
		if r.user == nil {
			return r.fail(StatusFailState)
		}
		r.state = rekeyStateForceRescue
		return false

	case rekeyStateForceRescue:
		iuk, err := r.user.DecryptRescue(r.cb.requestCredential)
		if err != nil {
			return r.fail(statusForRescueError(err))
		}
		if err := r.user.KeySet().Regenerate(iuk); err != nil {
			return r.fail(StatusFailCrypto)
		}
		r.state = rekeyStateRekey
		return false

	case rekeyStateRekey:
		newIUK := make([]byte, crypto.KeySize)
		if _, err := io.ReadFull(r.entropy(), newIUK); err != nil {
			return r.fail(StatusFailCrypto)
		}
		if err := r.user.Rekey(newIUK); err != nil {
			return r.fail(StatusFailCrypto)
		}
		r.tracef("rekey: identity %s rotated to a fresh IUK", r.user.Handle())
		r.state = rekeyStatePassword
		return false

	case rekeyStatePassword:
		if len(r.user.KeySet().Password()) == 0 {
			if _, err := r.user.RequireSavePassword(r.cb.requestCredential); err != nil {
				return r.fail(statusForCredentialError(err))
			}
		}
		r.state = rekeyStateSuggestSave
		return false

	case rekeyStateSuggestSave:
		r.cb.saveSuggested(r.user)
		r.state = rekeyStateDone
		return false

	default:
		return r.succeed()
	}
}
