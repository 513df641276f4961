package action

import (
	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

type rescueState int

const (
	rescueStateEnsureUser rescueState = iota
	rescueStateDecrypt
	rescueStateDone
)

// Rescue force-loads the IUK from the rescue (type-2) block, prompting for
// the rescue code.
type Rescue struct {
	preamble
	state rescueState
}

// NewRescue starts a Rescue action for user.
func NewRescue(user *useridentity.User, cb Callbacks, log logging.LeveledLogger) *Rescue {
	return &Rescue{preamble: newPreamble(KindRescue, user, cb, log)}
}

// Exec advances Rescue by one state.
func (r *Rescue) Exec() bool {
	if r.checkCancel() {
		return true
	}
	switch r.state {
	case rescueStateEnsureUser:
		if r.user == nil {
			return r.fail(StatusFailState)
		}
		r.state = rescueStateDecrypt
		return false

	case rescueStateDecrypt:
		if _, err := r.user.DecryptRescue(r.cb.requestCredential); err != nil {
			return r.fail(statusForRescueError(err))
		}
		r.tracef("rescue: identity %s recovered from rescue block", r.user.Handle())
		r.state = rescueStateDone
		return false

	default:
		return r.succeed()
	}
}

func statusForRescueError(err error) Status {
	switch err {
	case useridentity.ErrCredentialDenied:
		return StatusCanceled
	case useridentity.ErrNoStorage, useridentity.ErrNoRescueBlock:
		return StatusFailStorage
	default:
		return StatusFailCrypto
	}
}
