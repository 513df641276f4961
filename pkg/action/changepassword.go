package action

import (
	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/storage"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

type changePasswordState int

const (
	changePasswordStateEnsureUser changePasswordState = iota
	changePasswordStateForceDecrypt
	changePasswordStateNewPassword
	changePasswordStateSuggestSave
	changePasswordStateDone
)

// ChangePassword decrypts the existing password block to confirm MK is
// reachable, then installs a fresh password and flags the password block
// for rewrite on the next save.
type ChangePassword struct {
	preamble
	state changePasswordState
}

// NewChangePassword starts a ChangePassword action for user.
func NewChangePassword(user *useridentity.User, cb Callbacks, log logging.LeveledLogger) *ChangePassword {
	return &ChangePassword{preamble: newPreamble(KindChangePassword, user, cb, log)}
}

// Exec advances ChangePassword by one state.
func (c *ChangePassword) Exec() bool {
	if c.checkCancel() {
		return true
	}
	switch c.state {
	case changePasswordStateEnsureUser:
		if c.user == nil {
			return c.fail(StatusFailState)
		}
		c.state = changePasswordStateForceDecrypt
		return false

	case changePasswordStateForceDecrypt:
		if err := c.user.DecryptPassword(c.cb.requestCredential); err != nil {
			return c.fail(statusForCredentialError(err))
		}
		c.state = changePasswordStateNewPassword
		return false

	case changePasswordStateNewPassword:
		secret, ok := c.cb.requestCredential(useridentity.CredentialNewPassword)
		if !ok {
			return c.fail(StatusCanceled)
		}
		if len(secret) == 0 {
			return c.fail(StatusFailState)
		}
		c.user.KeySet().SetPassword(secret)
		c.user.MarkDirty(storage.BlockTypePassword)
		c.tracef("changepassword: identity %s password replaced", c.user.Handle())
		c.state = changePasswordStateSuggestSave
		return false

	case changePasswordStateSuggestSave:
		c.cb.saveSuggested(c.user)
		c.state = changePasswordStateDone
		return false

	default:
		return c.succeed()
	}
}
