package action

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/storage"
	"github.com/sqrl-go/sqrl/pkg/uri"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

type saveState int

const (
	saveStateEnsureUser saveState = iota
	saveStateRequirePassword
	saveStateValidateURI
	saveStateAllocStorage
	saveStateType1Start
	saveStateType1Stretch
	saveStateType2Start
	saveStateType2Stretch
	saveStateType3
	saveStateSerialize
	saveStateDone
)

// defaultNFactor is the scrypt memory cost exponent (N = 2^nFactor) used for
// both the password and rescue blocks absent an explicit override.
const defaultNFactor = 9

// Save writes the current key set to S4 storage, stretching the password
// and rescue-code blocks one EnScrypt tick at a time so the scheduler never
// blocks on either pass.
type Save struct {
	preamble

	// Entropy supplies IV/salt randomness for both blocks. Defaults to
	// crypto/rand.Reader.
	Entropy io.Reader
	// Encoding selects the text transport used when a file:// URI is saved.
	// Defaults to storage.EncodingBase64.
	Encoding storage.Encoding
	// EnscryptSeconds is the configured password-block stretch time.
	EnscryptSeconds uint8
	// NFactor overrides the scrypt memory-cost exponent; 0 means
	// defaultNFactor.
	NFactor uint8
	// TargetURI is the file:// location to save to, or "" to use the
	// user's existing URI, or serialize only into memory if both are empty.
	TargetURI string

	state      saveState
	password   []byte
	t1Builder  *storage.Type1Builder
	t2Builder  *storage.Type2Builder
	t1Start    time.Time
	t1Target   time.Duration
	t2Start    time.Time
	t2Target   time.Duration
	serialized []byte
}

// NewSave starts a Save action for user, stretching the password block for
// enscryptSeconds seconds.
func NewSave(user *useridentity.User, enscryptSeconds uint8, cb Callbacks, log logging.LeveledLogger) *Save {
	return &Save{
		preamble:        newPreamble(KindSave, user, cb, log),
		EnscryptSeconds: enscryptSeconds,
		Encoding:        storage.EncodingBase64,
	}
}

func (s *Save) entropy() io.Reader {
	if s.Entropy != nil {
		return s.Entropy
	}
	return rand.Reader
}

func (s *Save) nFactor() uint8 {
	if s.NFactor != 0 {
		return s.NFactor
	}
	return defaultNFactor
}

// Bytes returns the serialized container once the save completes in-memory
// (no URI was ever attached).
func (s *Save) Bytes() []byte { return s.serialized }

// reportProgress implements the t1_fraction split: the bar spends a share of
// its 0..100 range proportional to each pass's configured target duration,
// then advances linearly through that share by the pass's elapsed wall-clock
// time. Target durations are used rather than iteration counts since the
// iteration count a MILLIS-mode EnScrypt will land on isn't known in advance.
func (s *Save) reportProgress() {
	total := s.t1Target + s.t2Target
	if total == 0 {
		return
	}
	t1Fraction := float64(s.t1Target) / float64(total)

	var percent float64
	switch {
	case !s.t1Start.IsZero() && s.t1Builder != nil:
		frac := clamp01(float64(time.Since(s.t1Start)) / float64(s.t1Target))
		percent = t1Fraction * frac * 100
	case !s.t2Start.IsZero() && s.t2Builder != nil:
		frac := clamp01(float64(time.Since(s.t2Start)) / float64(s.t2Target))
		percent = t1Fraction*100 + (1-t1Fraction)*frac*100
	}
	s.cb.progress(int(percent))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Exec advances Save by one state.
func (s *Save) Exec() bool {
	if s.checkCancel() {
		return true
	}
	switch s.state {
	case saveStateEnsureUser:
		if s.user == nil {
			return s.fail(StatusFailState)
		}
		s.t1Target = time.Duration(s.EnscryptSeconds) * time.Second
		s.t2Target = storage.RescueEnscryptSeconds * time.Second
		s.state = saveStateRequirePassword
		return false

	case saveStateRequirePassword:
		password, err := s.user.RequireSavePassword(s.cb.requestCredential)
		if err != nil {
			return s.fail(statusForCredentialError(err))
		}
		s.password = password
		s.state = saveStateValidateURI
		return false

	case saveStateValidateURI:
		target := s.TargetURI
		if target == "" {
			target = s.user.URI()
		}
		if target != "" {
			parsed, err := uri.Parse(target)
			if err != nil || !parsed.IsFile() {
				return s.fail(StatusFailURI)
			}
			s.user.SetURI(target)
		}
		s.state = saveStateAllocStorage
		return false

	case saveStateAllocStorage:
		s.user.AllocateStorage()
		s.state = saveStateType1Start
		return false

	case saveStateType1Start:
		if !s.user.IsDirty(storage.BlockTypePassword) && s.user.Storage().HasBlock(storage.BlockTypePassword) {
			s.state = saveStateType2Start
			return false
		}
		mk, err := s.user.KeySet().MK()
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		ilk, err := s.user.KeySet().ILK()
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		opts := storage.Type1Options{EnscryptSeconds: s.EnscryptSeconds}
		builder, err := storage.NewType1Builder(mk, ilk, s.password, opts, s.nFactor(), s.entropy())
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		s.t1Builder = builder
		s.t1Start = time.Now()
		s.rapid = true
		s.state = saveStateType1Stretch
		return false

	case saveStateType1Stretch:
		if !s.t1Builder.Update() {
			s.reportProgress()
			return false
		}
		block, err := s.t1Builder.Finish()
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		s.user.Storage().PutBlock(block)
		s.user.ClearDirty(storage.BlockTypePassword)
		s.t1Builder = nil
		s.state = saveStateType2Start
		return false

	case saveStateType2Start:
		if !s.user.IsDirty(storage.BlockTypeRescue) && s.user.Storage().HasBlock(storage.BlockTypeRescue) {
			s.rapid = false
			s.state = saveStateType3
			return false
		}
		iuk, err := s.user.KeySet().IUK()
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		code := s.user.KeySet().RescueCode()
		if len(code) == 0 {
			return s.fail(StatusFailState)
		}
		builder, err := storage.NewType2Builder(iuk, code, s.nFactor(), s.entropy())
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		s.t2Builder = builder
		s.t2Start = time.Now()
		s.rapid = true
		s.state = saveStateType2Stretch
		return false

	case saveStateType2Stretch:
		if !s.t2Builder.Update() {
			s.reportProgress()
			return false
		}
		block, err := s.t2Builder.Finish()
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		s.user.Storage().PutBlock(block)
		s.user.ClearDirty(storage.BlockTypeRescue)
		s.t2Builder = nil
		s.rapid = false
		s.state = saveStateType3
		return false

	case saveStateType3:
		mk, err := s.user.KeySet().MK()
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		block, err := storage.EncodeType3(s.user.KeySet().PIUKs(), mk)
		if err != nil {
			return s.fail(StatusFailCrypto)
		}
		s.user.Storage().PutBlock(block)
		s.state = saveStateSerialize
		return false

	case saveStateSerialize:
		target := s.user.URI()
		if target == "" {
			s.serialized = s.user.Storage().Bytes()
			s.state = saveStateDone
			return false
		}
		parsed, err := uri.Parse(target)
		if err != nil || !parsed.IsFile() {
			return s.fail(StatusFailURI)
		}
		if err := s.user.Storage().SaveFile(parsed.FilePath(), s.Encoding); err != nil {
			return s.fail(StatusFailStorage)
		}
		s.state = saveStateDone
		return false

	default:
		s.cb.progress(100)
		return s.succeed()
	}
}
