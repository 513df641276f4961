package storage

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/sqrl-go/sqrl/pkg/crypto"
)

const (
	type2PayloadLen = 69 // 73 total - 4 header
	type2AADLen     = 25 // header(4) + salt(16) + n_factor(1) + iter_count(4)
	// RescueEnscryptSeconds is the fixed stretch time for the rescue block,
	// independent of the user's chosen password stretch time.
	RescueEnscryptSeconds = 5
)

var ErrType2BadLength = errors.New("storage: type-2 block has the wrong length")

// Type2Builder derives a Type 2 block's encryption key one EnScrypt
// iteration at a time, mirroring Type1Builder for the fixed-duration rescue
// stretch.
type Type2Builder struct {
	iuk     []byte
	salt    []byte
	nFactor uint8
	es      *crypto.EnScrypt
}

// NewType2Builder starts deriving the Type 2 encryption key from
// rescueCode. rng supplies the fresh salt. The IV is the zero vector,
// matching the reference implementation.
func NewType2Builder(iuk []byte, rescueCode []byte, nFactor uint8, rng io.Reader) (*Type2Builder, error) {
	if len(iuk) != crypto.KeySize {
		return nil, ErrType2BadLength
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rng, salt); err != nil {
		return nil, err
	}
	millis := uint16(RescueEnscryptSeconds) * 1000
	es, err := crypto.NewEnScryptMillis(rescueCode, salt, millis, nFactor)
	if err != nil {
		return nil, err
	}
	return &Type2Builder{iuk: append([]byte(nil), iuk...), salt: salt, nFactor: nFactor, es: es}, nil
}

// Update performs one EnScrypt iteration and reports whether the stretch is
// now finished.
func (b *Type2Builder) Update() bool { return b.es.Update() }

// Finished reports whether the configured stretch budget has been reached.
func (b *Type2Builder) Finished() bool { return b.es.Finished() }

// Finish seals iuk under the derived key and assembles the block. Only
// valid once Finished() is true.
func (b *Type2Builder) Finish() (*Block, error) {
	if !b.es.Successful() {
		return nil, errors.New("storage: EnScrypt failed while encoding type-2 block")
	}
	key := b.es.Result()
	return assembleType2(b.iuk, key, b.salt, uint32(b.es.Iterations()), b.nFactor)
}

func assembleType2(iuk []byte, key [crypto.KeySize]byte, salt []byte, iterations uint32, nFactor uint8) (*Block, error) {
	payload := make([]byte, type2PayloadLen)
	copy(payload[0:16], salt)
	payload[16] = nFactor
	binary.LittleEndian.PutUint32(payload[17:21], iterations)

	block := &Block{Type: BlockTypeRescue, Payload: payload}
	aad := block.Bytes()[:type2AADLen]

	sealed, err := crypto.AESGCMSeal(key[:], crypto.ZeroIV, aad, iuk)
	if err != nil {
		return nil, err
	}
	copy(payload[21:53], sealed[:32])
	copy(payload[53:69], sealed[32:48])

	return block, nil
}

// EncodeType2 builds a Type 2 (rescue) block in one call, driving the
// Type2Builder's EnScrypt stretch to completion synchronously. Used by
// callers that don't need scheduler interleaving (sqrlpeek, tests).
func EncodeType2(iuk []byte, rescueCode []byte, nFactor uint8, rng io.Reader) (*Block, error) {
	b, err := NewType2Builder(iuk, rescueCode, nFactor, rng)
	if err != nil {
		return nil, err
	}
	b.es.Run()
	return b.Finish()
}

// DecodeType2 recovers IUK from a Type 2 block, deriving the decryption key
// from rescueCode in EnScrypt ITERATIONS mode using the stored iteration
// count.
func DecodeType2(block *Block, rescueCode []byte) (iuk []byte, err error) {
	if block.Type != BlockTypeRescue || len(block.Payload) != type2PayloadLen {
		return nil, ErrType2BadLength
	}
	payload := block.Payload

	salt := payload[0:16]
	nFactor := payload[16]
	iterCount := binary.LittleEndian.Uint32(payload[17:21])

	es, err := crypto.NewEnScryptIterations(rescueCode, salt, uint16(iterCount), nFactor)
	if err != nil {
		return nil, err
	}
	es.Run()
	if !es.Successful() {
		return nil, errors.New("storage: EnScrypt failed while decoding type-2 block")
	}
	key := es.Result()

	aad := block.Bytes()[:type2AADLen]
	sealed := append(append([]byte(nil), payload[21:53]...), payload[53:69]...)
	plaintext, err := crypto.AESGCMOpen(key[:], crypto.ZeroIV, aad, sealed)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// UniqueID returns the block's ciphertext bytes, the public fingerprint for
// this identity exposed by the reference implementation as the rescue
// block's "unique id". It is stable across password changes since it only
// depends on IUK and the rescue-code-derived key.
func (b *Block) UniqueID() ([]byte, bool) {
	if b.Type != BlockTypeRescue || len(b.Payload) != type2PayloadLen {
		return nil, false
	}
	return append([]byte(nil), b.Payload[21:53]...), true
}
