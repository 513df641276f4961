// Package action implements the per-operation state machines the scheduler
// drives: Generate, Save, Rescue, Rekey, Lock, and ChangePassword. Each
// action is a small tagged variant — a shared preamble plus per-kind state —
// whose Exec steps through states one non-blocking tick at a time.
package action

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

// Kind identifies which state machine an Action runs.
type Kind int

const (
	KindGenerate Kind = iota
	KindSave
	KindRescue
	KindRekey
	KindLock
	KindChangePassword
)

func (k Kind) String() string {
	switch k {
	case KindGenerate:
		return "generate"
	case KindSave:
		return "save"
	case KindRescue:
		return "rescue"
	case KindRekey:
		return "rekey"
	case KindLock:
		return "lock"
	case KindChangePassword:
		return "changepassword"
	default:
		return "unknown"
	}
}

// Status is an action's terminal or in-progress state.
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusCanceled
	StatusFailCrypto
	StatusFailStorage
	StatusFailURI
	StatusFailState
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusCanceled:
		return "canceled"
	case StatusFailCrypto:
		return "fail_crypto"
	case StatusFailStorage:
		return "fail_storage"
	case StatusFailURI:
		return "fail_uri"
	case StatusFailState:
		return "fail_state"
	default:
		return "unknown"
	}
}

// Done reports whether s is a terminal status.
func (s Status) Done() bool { return s != StatusRunning }

// Callbacks is the capability set an embedder supplies to drive an action:
// credential prompts, progress reporting, and a save suggestion. It stands
// in for the teacher's virtual callback table (pkg/im/client.go's
// delegate-interface idiom) as a struct of function pointers instead, since
// every method here only ever needs the action it belongs to, which the
// action already has in scope when it calls back.
type Callbacks struct {
	// RequestCredential prompts for a password/new-password/rescue-code/hint.
	// A nil field means the embedder never satisfies credential requests,
	// which every action maps to useridentity.ErrCredentialDenied.
	RequestCredential useridentity.CredentialCallback

	// OnProgress reports 0..100 monotonic per-action percent complete.
	OnProgress func(percent int)

	// OnSaveSuggested fires once on-disk storage has gone stale and the
	// embedder should run a Save action soon.
	OnSaveSuggested func(u *useridentity.User)
}

func (cb Callbacks) requestCredential(kind useridentity.CredentialKind) ([]byte, bool) {
	if cb.RequestCredential == nil {
		return nil, false
	}
	return cb.RequestCredential(kind)
}

func (cb Callbacks) progress(percent int) {
	if cb.OnProgress != nil {
		cb.OnProgress(percent)
	}
}

func (cb Callbacks) saveSuggested(u *useridentity.User) {
	if cb.OnSaveSuggested != nil {
		cb.OnSaveSuggested(u)
	}
}

// Action is a single coarse-grained operation the scheduler steps through
// one non-blocking tick at a time.
type Action interface {
	Handle() uuid.UUID
	Kind() Kind
	Status() Status
	// Rapid reports whether the scheduler should re-tick this action
	// back-to-back instead of waiting for the next throttled loop.
	Rapid() bool
	// Cancel cooperatively requests termination; the action observes it at
	// its next state transition and finishes with StatusCanceled.
	Cancel()
	// Exec advances the action by exactly one state and returns whether it
	// is now complete (Status().Done()).
	Exec() bool
}

// preamble is the shared fields every action carries, named for the
// teacher's pattern of a common struct embedded by role-specific state
// (pkg/exchange.ExchangeContext) rather than a class hierarchy.
type preamble struct {
	handle    uuid.UUID
	kind      Kind
	user      *useridentity.User
	cb        Callbacks
	log       logging.LeveledLogger
	status    Status
	cancelled int32
	rapid     bool
}

func newPreamble(kind Kind, user *useridentity.User, cb Callbacks, log logging.LeveledLogger) preamble {
	return preamble{
		handle: uuid.New(),
		kind:   kind,
		user:   user,
		cb:     cb,
		log:    log,
		status: StatusRunning,
	}
}

func (p *preamble) Handle() uuid.UUID { return p.handle }
func (p *preamble) Kind() Kind        { return p.kind }
func (p *preamble) Status() Status    { return p.status }
func (p *preamble) Rapid() bool       { return p.rapid }

func (p *preamble) Cancel() { atomic.StoreInt32(&p.cancelled, 1) }

func (p *preamble) canceled() bool { return atomic.LoadInt32(&p.cancelled) != 0 }

// checkCancel observes the cooperative cancel flag, and if set, finishes the
// action with StatusCanceled and reports the action as done. Every state
// function should call this first.
func (p *preamble) checkCancel() bool {
	if p.canceled() && !p.status.Done() {
		p.status = StatusCanceled
	}
	return p.status.Done()
}

func (p *preamble) fail(s Status) bool {
	p.status = s
	return true
}

func (p *preamble) succeed() bool {
	p.status = StatusSuccess
	return true
}

func (p *preamble) tracef(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Tracef(format, args...)
	}
}
