// Package client drives a single SQRL protocol session against one site:
// the query -> ident/enable/disable/remove sequence, previous-identity
// fallback, and TIF-driven termination described in the per-URI session
// design.
package client

import (
	"errors"
	"strings"

	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/encoding"
	"github.com/sqrl-go/sqrl/pkg/keyset"
	"github.com/sqrl-go/sqrl/pkg/uri"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

// Kind names the transaction a session ultimately drives to completion.
// Every session begins by sending cmd=query regardless of Kind; Kind only
// determines what it escalates to once the identity is matched.
type Kind int

const (
	KindIdent Kind = iota
	KindEnable
	KindDisable
	KindRemove
)

func (k Kind) String() string {
	switch k {
	case KindIdent:
		return "ident"
	case KindEnable:
		return "enable"
	case KindDisable:
		return "disable"
	case KindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// State is the session's coarse lifecycle stage.
type State int

const (
	StateInit State = iota
	StateAwaitingReply
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotStarted is returned by HandleReply before Start has been called.
var ErrNotStarted = errors.New("client: session has not been started")

// ErrExhausted is returned when no previous identity matched and the
// session was not driving toward KindIdent (which alone may fall through
// to registering a brand new identity).
var ErrExhausted = errors.New("client: no identity match and no previous identity left to try")

// cmdState is the wire command currently being sent; it starts at "query"
// and becomes the session's target Kind once an identity match is found.
type cmdState int

const (
	cmdQuery cmdState = iota
	cmdTarget
)

// Session drives one SQRL transaction against target, for user, from an
// initial sqrl:// challenge.
type Session struct {
	target *uri.URI
	user   *useridentity.User
	kind   Kind
	opts   []string
	log    logging.LeveledLogger

	hostString string

	state State
	cmd   cmdState
	tif   TIF

	previousIdentityIndex int // -1 = current identity only tried so far.

	// serverString is the raw (decoded) bytes to carry forward as the next
	// outbound request's server= value, base64url-encoded at send time.
	serverString []byte

	keys keySlots
}

// NewSession starts a session for the given sqrl:// URI and user, driving
// toward the given transaction kind. opts are the opt= tokens (sqrlonly,
// hardlock, cps, suk, …) the embedder wants included on every request.
func NewSession(target *uri.URI, user *useridentity.User, kind Kind, opts []string, log logging.LeveledLogger) *Session {
	return &Session{
		target:                target,
		user:                  user,
		kind:                  kind,
		opts:                  opts,
		log:                   log,
		previousIdentityIndex: -1,
	}
}

func (s *Session) tracef(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Tracef(format, args...)
	}
}

// State returns the session's current lifecycle stage.
func (s *Session) State() State { return s.state }

// TIF returns the most recently received Transaction Information Flags.
func (s *Session) TIF() TIF { return s.tif }

func (s *Session) hostStringValue() string {
	if s.hostString == "" {
		host := s.target.Host()
		if alt := s.target.GetAltIdentity(); alt != "" {
			host = host + "+" + alt
		}
		s.hostString = host
	}
	return s.hostString
}

// Start derives the current-identity site keypair, builds the initial
// cmd=query request, and returns the request URL and body to send. The
// server_string for this first request is the raw (not yet base64url-
// encoded) original challenge URL, per the session design: every
// subsequent server_string is instead the raw decoded bytes of the
// previous reply.
func (s *Session) Start() (requestURL string, body []byte, err error) {
	mk, err := s.user.KeySet().MK()
	if err != nil {
		return "", nil, err
	}
	if err := s.keys.deriveCurrent(mk, s.hostStringValue()); err != nil {
		return "", nil, err
	}

	s.serverString = []byte(s.target.GetChallenge())
	s.state = StateAwaitingReply
	s.cmd = cmdQuery

	clientString := s.buildClientString(cmdQuery, false, false, false)
	reqBody, err := s.sign(clientString, false, false)
	if err != nil {
		return "", nil, err
	}
	s.tracef("client: session to %s starting query", s.hostStringValue())
	return s.target.GetURL(), reqBody, nil
}

// HandleReply consumes a server's raw (undecoded) response body, advances
// the session, and returns the next request to send, or done=true once the
// session has reached StateSuccess or StateFailed.
func (s *Session) HandleReply(respBody []byte) (requestURL string, body []byte, done bool, err error) {
	if s.state != StateAwaitingReply {
		return "", nil, true, ErrNotStarted
	}

	r, err := parseReply(respBody)
	if err != nil {
		s.state = StateFailed
		return "", nil, true, err
	}
	s.tif = r.tif
	s.serverString = r.raw

	if r.tif.Has(TIFCommandFailure) || r.tif.Has(TIFClientFailure) {
		s.state = StateFailed
		return "", nil, true, nil
	}

	if s.cmd == cmdTarget {
		if s.targetSatisfied() {
			s.state = StateSuccess
			return "", nil, true, nil
		}
		// The command we already sent didn't take; nothing further to try.
		s.state = StateFailed
		return "", nil, true, nil
	}

	// Still probing identity via cmd=query.
	if r.tif.Has(TIFIDMatch) || r.tif.Has(TIFPreviousIDMatch) {
		return s.advanceToTarget(r)
	}
	return s.tryNextPreviousIdentity(r)
}

// targetSatisfied reports whether the most recent tif already implies the
// session's requested transaction succeeded.
func (s *Session) targetSatisfied() bool {
	switch s.kind {
	case KindIdent:
		return s.tif.Has(TIFIDMatch)
	case KindDisable:
		return s.tif.Has(TIFSQRLDisabled)
	case KindEnable:
		return !s.tif.Has(TIFSQRLDisabled)
	case KindRemove:
		return !s.tif.Has(TIFIDMatch) && !s.tif.Has(TIFPreviousIDMatch)
	default:
		return false
	}
}

// precondition reports whether the session's requested transaction is even
// legal to attempt given the current tif (enable/remove require the
// identity be disabled first; disable requires it not already be).
func (s *Session) precondition() bool {
	switch s.kind {
	case KindEnable, KindRemove:
		return s.tif.Has(TIFSQRLDisabled)
	case KindDisable:
		return !s.tif.Has(TIFSQRLDisabled)
	default:
		return true
	}
}

// advanceToTarget switches cmd from query to the session's target
// transaction once an identity match lands, folding in URSK/URPK and a
// fresh SUK/VUK when rolling forward from a matched previous identity.
func (s *Session) advanceToTarget(r *reply) (requestURL string, body []byte, done bool, err error) {
	if !s.precondition() {
		s.state = StateFailed
		return "", nil, true, nil
	}

	rollingForward := r.tif.Has(TIFPreviousIDMatch) && !r.tif.Has(TIFIDMatch)
	wantSUKVUK := s.kind == KindIdent && rollingForward

	ilk, err := s.user.KeySet().ILK()
	if err != nil {
		s.state = StateFailed
		return "", nil, true, err
	}
	includeURS := false
	if rollingForward {
		piuk, perr := s.user.KeySet().PIUK(s.previousIdentityIndex)
		if perr != nil {
			s.state = StateFailed
			return "", nil, true, perr
		}
		serverSUK, derr := encoding.Base64URLDecode(r.suk)
		if derr != nil {
			s.state = StateFailed
			return "", nil, true, ErrInvalidReply
		}
		if err := s.keys.deriveURSK(piuk, serverSUK); err != nil {
			s.state = StateFailed
			return "", nil, true, err
		}
		includeURS = true
	}
	if wantSUKVUK {
		if err := s.keys.generateLockPair(ilk, nil); err != nil {
			s.state = StateFailed
			return "", nil, true, err
		}
	}

	s.cmd = cmdTarget
	clientString := s.buildClientString(cmdTarget, rollingForward, wantSUKVUK, includeURS)
	reqBody, err := s.sign(clientString, rollingForward, includeURS)
	if err != nil {
		s.state = StateFailed
		return "", nil, true, err
	}
	s.tracef("client: session to %s advancing query -> %s", s.hostStringValue(), s.kind)
	return s.nextURL(r), reqBody, false, nil
}

// tryNextPreviousIdentity walks the PIUK ring looking for an as-yet-untried
// previous identity to carry alongside idk on another cmd=query. If all
// four are exhausted, a session driving toward KindIdent proceeds to
// register a brand new identity (suk/vuk, no pidk); any other kind fails.
func (s *Session) tryNextPreviousIdentity(r *reply) (requestURL string, body []byte, done bool, err error) {
	s.previousIdentityIndex++
	for s.previousIdentityIndex < keyset.PIUKCount {
		piuk, perr := s.user.KeySet().PIUK(s.previousIdentityIndex)
		if perr == nil && !allZero(piuk) {
			if derr := s.keys.derivePrevious(piuk, s.hostStringValue()); derr != nil {
				s.state = StateFailed
				return "", nil, true, derr
			}
			clientString := s.buildClientString(cmdQuery, true, false, false)
			reqBody, serr := s.sign(clientString, true, false)
			if serr != nil {
				s.state = StateFailed
				return "", nil, true, serr
			}
			s.tracef("client: session to %s retrying query with previous identity %d", s.hostStringValue(), s.previousIdentityIndex)
			return s.nextURL(r), reqBody, false, nil
		}
		s.previousIdentityIndex++
	}

	if s.kind != KindIdent {
		s.state = StateFailed
		return "", nil, true, ErrExhausted
	}

	ilk, ierr := s.user.KeySet().ILK()
	if ierr != nil {
		s.state = StateFailed
		return "", nil, true, ierr
	}
	if err := s.keys.generateLockPair(ilk, nil); err != nil {
		s.state = StateFailed
		return "", nil, true, err
	}
	s.cmd = cmdTarget
	clientString := s.buildClientString(cmdTarget, false, true, false)
	reqBody, serr := s.sign(clientString, false, false)
	if serr != nil {
		s.state = StateFailed
		return "", nil, true, serr
	}
	s.tracef("client: session to %s registering new identity", s.hostStringValue())
	return s.nextURL(r), reqBody, false, nil
}

func (s *Session) nextURL(r *reply) string {
	return s.target.GetPrefix() + r.qry
}

// buildClientString assembles the CR-LF key=value body per the session
// design: ver, cmd, opt, idk, optional pidk, optional suk/vuk.
func (s *Session) buildClientString(cmd cmdState, withPIDK, withSUKVUK, _ bool) string {
	var b strings.Builder
	b.WriteString("ver=1\r\n")
	b.WriteString("cmd=" + s.cmdName(cmd) + "\r\n")
	if len(s.opts) > 0 {
		b.WriteString("opt=" + joinOptions(s.opts) + "\r\n")
	}
	b.WriteString("idk=" + encoding.Base64URLEncode(s.keys.pub) + "\r\n")
	if withPIDK {
		b.WriteString("pidk=" + encoding.Base64URLEncode(s.keys.ppub) + "\r\n")
	}
	if withSUKVUK {
		b.WriteString("suk=" + encoding.Base64URLEncode(s.keys.suk) + "\r\n")
		b.WriteString("vuk=" + encoding.Base64URLEncode(s.keys.vuk) + "\r\n")
	}
	return b.String()
}

func (s *Session) cmdName(cmd cmdState) string {
	if cmd == cmdQuery {
		return "query"
	}
	return s.kind.String()
}

// sign signs client_string+server_string with SEC (always), PSEC (when
// withPIDK), and URSK (when withURS), and assembles the full request body.
func (s *Session) sign(clientString string, withPIDK, withURS bool) ([]byte, error) {
	transcript := append([]byte(clientString), s.serverString...)

	ids, err := crypto.Ed25519Sign(s.keys.sec, transcript)
	if err != nil {
		return nil, err
	}

	body := "client=" + encoding.Base64URLEncode([]byte(clientString)) +
		"&server=" + encoding.Base64URLEncode(s.serverString) +
		"&ids=" + encoding.Base64URLEncode(ids)

	if withPIDK {
		pids, err := crypto.Ed25519Sign(s.keys.psec, transcript)
		if err != nil {
			return nil, err
		}
		body += "&pids=" + encoding.Base64URLEncode(pids)
	}
	if withURS {
		urs, err := crypto.Ed25519Sign(s.keys.ursk, transcript)
		if err != nil {
			return nil, err
		}
		body += "&urs=" + encoding.Base64URLEncode(urs)
	}
	return []byte(body), nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
