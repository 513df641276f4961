package action

import (
	"crypto/rand"
	"io"

	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/encoding"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

type generateState int

const (
	generateStateEnsureUser generateState = iota
	generateStateRekey
	generateStatePassword
	generateStateSuggestSave
	generateStateDone
)

// Generate creates a brand new identity: a fresh IUK, its derived MK/ILK/
// LOCAL, and a fresh rescue code, then ensures the user has a password
// before suggesting a save.
type Generate struct {
	preamble
	state generateState

	// Entropy supplies the 32 bytes of randomness for IUK generation and
	// the 32 bytes reduced into the rescue code. Defaults to
	// crypto/rand.Reader.
	Entropy io.Reader
}

// NewGenerate starts a Generate action. If user is nil, a fresh empty user
// is created.
func NewGenerate(user *useridentity.User, cb Callbacks, log logging.LeveledLogger) *Generate {
	if user == nil {
		user = useridentity.New()
	}
	return &Generate{preamble: newPreamble(KindGenerate, user, cb, log)}
}

func (g *Generate) entropy() io.Reader {
	if g.Entropy != nil {
		return g.Entropy
	}
	return rand.Reader
}

// Exec advances Generate by one state.
func (g *Generate) Exec() bool {
	if g.checkCancel() {
		return true
	}
	switch g.state {
	case generateStateEnsureUser:
		if g.user == nil {
			return g.fail(StatusFailState)
		}
		g.state = generateStateRekey
		return false

	case generateStateRekey:
		iuk := make([]byte, crypto.KeySize)
		if _, err := io.ReadFull(g.entropy(), iuk); err != nil {
			return g.fail(StatusFailCrypto)
		}
		if err := g.user.Rekey(iuk); err != nil {
			return g.fail(StatusFailCrypto)
		}
		rescueEntropy := make([]byte, crypto.KeySize)
		if _, err := io.ReadFull(g.entropy(), rescueEntropy); err != nil {
			return g.fail(StatusFailCrypto)
		}
		code := encoding.RescueCodeEncode(rescueEntropy)
		g.user.KeySet().SetRescueCode([]byte(code))
		g.tracef("generate: new identity %s rekeyed", g.user.Handle())
		g.state = generateStatePassword
		return false

	case generateStatePassword:
		if len(g.user.KeySet().Password()) == 0 {
			if _, err := g.user.RequireSavePassword(g.cb.requestCredential); err != nil {
				return g.fail(statusForCredentialError(err))
			}
		}
		g.state = generateStateSuggestSave
		return false

	case generateStateSuggestSave:
		g.cb.saveSuggested(g.user)
		g.state = generateStateDone
		return false

	default:
		return g.succeed()
	}
}

func statusForCredentialError(err error) Status {
	switch err {
	case useridentity.ErrEmptyPassword, useridentity.ErrDestroyed:
		return StatusFailState
	case useridentity.ErrCredentialDenied:
		return StatusCanceled
	case useridentity.ErrNoStorage, useridentity.ErrNoPasswordBlock:
		return StatusFailStorage
	default:
		return StatusFailCrypto
	}
}
