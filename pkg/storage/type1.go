package storage

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/sqrl-go/sqrl/pkg/crypto"
)

// type1PayloadLen is the Type 1 block's payload size (125 total - 4 header).
const type1PayloadLen = 121

// type1AADLen is the number of leading wire bytes (header + block) that
// serve as GCM associated data: block_length, block_type, pt_len, iv, salt,
// n_factor, iter_count, flags, hint_len, enscrypt_seconds, timeout_minutes.
const type1AADLen = 45

var ErrType1BadLength = errors.New("storage: type-1 block has the wrong length")

// Type1Options carries the non-secret fields stored alongside the
// password-encrypted MK||ILK in a Type 1 block.
type Type1Options struct {
	Flags           uint16
	HintLength      uint8
	EnscryptSeconds uint8
	TimeoutMinutes  uint16
}

// Type1Builder derives a Type 1 block's encryption key one EnScrypt
// iteration at a time, so a caller (the save action) can interleave the
// stretch with other scheduler work instead of blocking on it.
type Type1Builder struct {
	mk, ilk  []byte
	opts     Type1Options
	nFactor  uint8
	iv, salt []byte
	es       *crypto.EnScrypt
}

// NewType1Builder starts deriving the Type 1 encryption key from password.
// rng supplies the fresh IV and salt.
func NewType1Builder(mk, ilk, password []byte, opts Type1Options, nFactor uint8, rng io.Reader) (*Type1Builder, error) {
	if len(mk) != crypto.KeySize || len(ilk) != crypto.KeySize {
		return nil, ErrType1BadLength
	}
	iv := make([]byte, 12)
	salt := make([]byte, 16)
	seed := make([]byte, len(iv)+len(salt))
	if _, err := io.ReadFull(rng, seed); err != nil {
		return nil, err
	}
	copy(iv, seed[:len(iv)])
	copy(salt, seed[len(iv):])

	millis := uint16(opts.EnscryptSeconds) * 1000
	es, err := crypto.NewEnScryptMillis(password, salt, millis, nFactor)
	if err != nil {
		return nil, err
	}
	return &Type1Builder{
		mk: append([]byte(nil), mk...), ilk: append([]byte(nil), ilk...),
		opts: opts, nFactor: nFactor, iv: iv, salt: salt, es: es,
	}, nil
}

// Update performs one EnScrypt iteration and reports whether the stretch is
// now finished.
func (b *Type1Builder) Update() bool { return b.es.Update() }

// Finished reports whether the configured stretch budget has been reached.
func (b *Type1Builder) Finished() bool { return b.es.Finished() }

// Finish seals mk||ilk under the derived key and assembles the block. Only
// valid once Finished() is true.
func (b *Type1Builder) Finish() (*Block, error) {
	if !b.es.Successful() {
		return nil, errors.New("storage: EnScrypt failed while encoding type-1 block")
	}
	key := b.es.Result()
	return assembleType1(b.mk, b.ilk, key, b.iv, b.salt, uint32(b.es.Iterations()), b.opts, b.nFactor)
}

func assembleType1(mk, ilk []byte, key [crypto.KeySize]byte, iv, salt []byte, iterations uint32, opts Type1Options, nFactor uint8) (*Block, error) {
	payload := make([]byte, type1PayloadLen)
	binary.LittleEndian.PutUint16(payload[0:2], type1AADLen)
	copy(payload[2:14], iv)
	copy(payload[14:30], salt)
	payload[30] = nFactor
	binary.LittleEndian.PutUint32(payload[31:35], iterations)
	binary.LittleEndian.PutUint16(payload[35:37], opts.Flags)
	payload[37] = opts.HintLength
	payload[38] = opts.EnscryptSeconds
	binary.LittleEndian.PutUint16(payload[39:41], opts.TimeoutMinutes)

	block := &Block{Type: BlockTypePassword, Payload: payload}
	aad := block.Bytes()[:type1AADLen]

	plaintext := make([]byte, 0, 2*crypto.KeySize)
	plaintext = append(plaintext, mk...)
	plaintext = append(plaintext, ilk...)

	sealed, err := crypto.AESGCMSeal(key[:], iv, aad, plaintext)
	if err != nil {
		return nil, err
	}
	copy(payload[41:105], sealed[:64])
	copy(payload[105:121], sealed[64:80])

	return block, nil
}

// EncodeType1 builds a Type 1 block in one call, driving the Type1Builder's
// EnScrypt stretch to completion synchronously. Used by callers that don't
// need scheduler interleaving (sqrlpeek, tests).
func EncodeType1(mk, ilk []byte, password []byte, opts Type1Options, nFactor uint8, rng io.Reader) (*Block, error) {
	b, err := NewType1Builder(mk, ilk, password, opts, nFactor, rng)
	if err != nil {
		return nil, err
	}
	b.es.Run()
	return b.Finish()
}

// DecodeType1 recovers MK, ILK, and the stored options from a Type 1 block,
// deriving the decryption key from password in EnScrypt ITERATIONS mode
// using the iteration count stored in the block.
func DecodeType1(block *Block, password []byte) (mk, ilk []byte, opts Type1Options, err error) {
	if block.Type != BlockTypePassword || len(block.Payload) != type1PayloadLen {
		return nil, nil, Type1Options{}, ErrType1BadLength
	}
	payload := block.Payload

	iv := payload[2:14]
	salt := payload[14:30]
	nFactor := payload[30]
	iterCount := binary.LittleEndian.Uint32(payload[31:35])

	opts.Flags = binary.LittleEndian.Uint16(payload[35:37])
	opts.HintLength = payload[37]
	opts.EnscryptSeconds = payload[38]
	opts.TimeoutMinutes = binary.LittleEndian.Uint16(payload[39:41])

	es, err := crypto.NewEnScryptIterations(password, salt, uint16(iterCount), nFactor)
	if err != nil {
		return nil, nil, Type1Options{}, err
	}
	es.Run()
	if !es.Successful() {
		return nil, nil, Type1Options{}, errors.New("storage: EnScrypt failed while decoding type-1 block")
	}
	key := es.Result()

	aad := block.Bytes()[:type1AADLen]
	sealed := append(append([]byte(nil), payload[41:105]...), payload[105:121]...)
	plaintext, err := crypto.AESGCMOpen(key[:], iv, aad, sealed)
	if err != nil {
		return nil, nil, Type1Options{}, err
	}
	mk = append([]byte(nil), plaintext[:32]...)
	ilk = append([]byte(nil), plaintext[32:64]...)
	return mk, ilk, opts, nil
}
