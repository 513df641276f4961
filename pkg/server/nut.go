// Package server implements the site-side half of the protocol: issuing
// and verifying opaque nuts, building MAC-protected challenge links, and
// assembling CRLF replies.
package server

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/sqrl-go/sqrl/pkg/crypto"
)

// NutSize is the plaintext and ciphertext size of a nut: one AES block.
const NutSize = 16

// ErrNutExpired is returned by Decrypt when the nut's timestamp is older
// than the engine's configured lifetime.
var ErrNutExpired = errors.New("server: nut expired")

// Nut is the plaintext a NutEngine encrypts into an opaque 16-byte token.
type Nut struct {
	IP        uint32 // client IP at issuance, or 0 if unknown.
	Random    uint32
	Timestamp uint64 // microseconds since epoch.
}

func (n Nut) encode() []byte {
	buf := make([]byte, NutSize)
	binary.LittleEndian.PutUint32(buf[0:4], n.IP)
	binary.LittleEndian.PutUint32(buf[4:8], n.Random)
	binary.LittleEndian.PutUint64(buf[8:16], n.Timestamp)
	return buf
}

func decodeNut(buf []byte) Nut {
	return Nut{
		IP:        binary.LittleEndian.Uint32(buf[0:4]),
		Random:    binary.LittleEndian.Uint32(buf[4:8]),
		Timestamp: binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// NutEngine encrypts/decrypts nuts with a single raw AES-128 block
// operation (not an AEAD mode — the nut's own timestamp and the server's
// constant-time MAC on the surrounding link are what protect it, matching
// the wire format's single ECB block rather than a GCM tag it has no room
// for).
type NutEngine struct {
	key      [16]byte
	lifetime time.Duration
	metrics  *Metrics
}

// NewNutEngine keys the engine from SHA-256(passcode)[:16]. A non-empty
// passcode makes nut encryption deterministic across restarts (useful for
// a single shared secret deployment); pass nil to get a fresh random
// per-process key instead.
func NewNutEngine(passcode []byte, lifetime time.Duration, metrics *Metrics) (*NutEngine, error) {
	var key [16]byte
	if len(passcode) > 0 {
		sum := crypto.SHA256(passcode)
		copy(key[:], sum[:16])
	} else if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, err
	}
	return &NutEngine{key: key, lifetime: lifetime, metrics: metrics}, nil
}

// Issue encrypts n into an opaque 16-byte nut.
func (e *NutEngine) Issue(n Nut) ([]byte, error) {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, NutSize)
	block.Encrypt(out, n.encode())
	e.metrics.nutIssued()
	return out, nil
}

// Verify decrypts an opaque nut and checks its timestamp against the
// engine's configured lifetime.
func (e *NutEngine) Verify(opaque []byte) (Nut, error) {
	if len(opaque) != NutSize {
		e.metrics.nutVerified("mac_mismatch")
		return Nut{}, errors.New("server: malformed nut")
	}
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return Nut{}, err
	}
	buf := make([]byte, NutSize)
	block.Decrypt(buf, opaque)
	n := decodeNut(buf)

	if e.lifetime > 0 {
		issued := time.UnixMicro(int64(n.Timestamp))
		if time.Since(issued) > e.lifetime {
			e.metrics.nutVerified("expired")
			return Nut{}, ErrNutExpired
		}
	}
	e.metrics.nutVerified("ok")
	return n, nil
}
