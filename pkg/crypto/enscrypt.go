package crypto

import (
	"errors"
	"time"

	"golang.org/x/crypto/scrypt"
)

// EnScrypt parameters, per §4.4: r and p are fixed, N is 2^nFactor.
const (
	EnScryptR = 256
	EnScryptP = 1
)

// ErrEnScryptFailed is returned when the underlying scrypt call fails, e.g.
// because nFactor produces an N that doesn't fit memory.
var ErrEnScryptFailed = errors.New("enscrypt: scrypt derivation failed")

// EnScrypt is an iterated, XOR-accumulated scrypt stretch. The first
// iteration seeds the accumulator directly from scrypt(password, salt, …);
// every later iteration re-derives from the previous iteration's output
// (scrypt(password, prevOutput, …)) and XORs it into the running result.
// Update must be called repeatedly until Finished reports true; each call
// performs exactly one iteration, which is what lets the scheduler interleave
// a long-running EnScrypt with other action work instead of blocking on it.
type EnScrypt struct {
	password          []byte
	prev              []byte
	n                 uint64
	count             uint16
	countIsIterations bool
	iCount            uint16
	start             time.Time
	elapsedBudget     time.Duration
	result            [KeySize]byte
	finished          bool
	failed            bool
}

// NewEnScryptIterations starts an EnScrypt that runs for exactly count
// iterations (count ≥ 1).
func NewEnScryptIterations(password, salt []byte, count uint16, nFactor uint8) (*EnScrypt, error) {
	return newEnScrypt(password, salt, count, true, nFactor)
}

// NewEnScryptMillis starts an EnScrypt that runs for as many iterations as
// fit in millis milliseconds of wall-clock time.
func NewEnScryptMillis(password, salt []byte, millis uint16, nFactor uint8) (*EnScrypt, error) {
	return newEnScrypt(password, salt, millis, false, nFactor)
}

func newEnScrypt(password, salt []byte, count uint16, countIsIterations bool, nFactor uint8) (*EnScrypt, error) {
	e := &EnScrypt{
		password:          append([]byte(nil), password...),
		n:                 uint64(1) << nFactor,
		count:             count,
		countIsIterations: countIsIterations,
		iCount:            1,
		start:             time.Now(),
	}
	first, err := scrypt.Key(e.password, salt, int(e.n), EnScryptR, EnScryptP, KeySize)
	if err != nil {
		return nil, ErrEnScryptFailed
	}
	copy(e.result[:], first)
	e.prev = first
	if !countIsIterations {
		e.elapsedBudget = time.Duration(count) * time.Millisecond
	}
	if countIsIterations && e.iCount >= e.count {
		e.finished = true
	}
	return e, nil
}

// Update performs exactly one additional iteration, or marks the operation
// finished if the configured iteration/time budget has been exhausted. It
// returns Finished()'s value after the step.
func (e *EnScrypt) Update() bool {
	if e.finished {
		return true
	}
	var shouldRun bool
	if e.countIsIterations {
		shouldRun = e.iCount < e.count
	} else {
		shouldRun = time.Since(e.start) < e.elapsedBudget
	}
	if !shouldRun {
		e.finished = true
		return true
	}
	next, err := scrypt.Key(e.password, e.prev, int(e.n), EnScryptR, EnScryptP, KeySize)
	if err != nil {
		e.failed = true
		e.finished = true
		return true
	}
	for i := range e.result {
		e.result[i] ^= next[i]
	}
	e.prev = next
	e.iCount++
	if e.countIsIterations && e.iCount >= e.count {
		e.finished = true
	}
	return e.finished
}

// Run drives Update to completion; the output is then available from Result.
func (e *EnScrypt) Run() {
	for !e.Update() {
	}
}

// Finished reports whether the configured iteration/time budget has been
// exhausted.
func (e *EnScrypt) Finished() bool { return e.finished }

// Successful reports whether EnScrypt completed without a derivation error.
func (e *EnScrypt) Successful() bool { return e.finished && !e.failed }

// Result returns the 32-byte XOR-accumulated output. Only valid once
// Finished() is true and Successful() is true.
func (e *EnScrypt) Result() [KeySize]byte { return e.result }

// Iterations returns the number of scrypt iterations performed so far. Under
// the MILLIS termination mode this is the value a caller should pass to
// NewEnScryptIterations to reproduce the same output deterministically.
func (e *EnScrypt) Iterations() uint16 { return e.iCount }
