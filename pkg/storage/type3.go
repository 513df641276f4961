package storage

import (
	"errors"

	"github.com/sqrl-go/sqrl/pkg/crypto"
)

const (
	type3PayloadLen = 144 // 148 total - 4 header
	type3AADLen     = 4   // header only: block_length, block_type
	piukCount       = 4
)

var ErrType3BadLength = errors.New("storage: type-3 block has the wrong length")

// EncodeType3 builds a Type 3 (previous identities) block, encrypting the
// four previous IUKs (newest first, zero-filled if unused) under MK with a
// zero IV.
func EncodeType3(piuks [piukCount][]byte, mk []byte) (*Block, error) {
	if len(mk) != crypto.KeySize {
		return nil, ErrType3BadLength
	}
	plaintext := make([]byte, 0, piukCount*crypto.KeySize)
	for _, p := range piuks {
		if len(p) == 0 {
			plaintext = append(plaintext, make([]byte, crypto.KeySize)...)
			continue
		}
		if len(p) != crypto.KeySize {
			return nil, ErrType3BadLength
		}
		plaintext = append(plaintext, p...)
	}

	payload := make([]byte, type3PayloadLen)
	block := &Block{Type: BlockTypePrevious, Payload: payload}
	aad := block.Bytes()[:type3AADLen]

	sealed, err := crypto.AESGCMSeal(mk, crypto.ZeroIV, aad, plaintext)
	if err != nil {
		return nil, err
	}
	copy(payload[0:128], sealed[:128])
	copy(payload[128:144], sealed[128:144])
	return block, nil
}

// DecodeType3 recovers the four previous IUKs (newest first) from a Type 3
// block using MK.
func DecodeType3(block *Block, mk []byte) (piuks [piukCount][]byte, err error) {
	if block.Type != BlockTypePrevious || len(block.Payload) != type3PayloadLen {
		return piuks, ErrType3BadLength
	}
	payload := block.Payload

	aad := block.Bytes()[:type3AADLen]
	sealed := append(append([]byte(nil), payload[0:128]...), payload[128:144]...)
	plaintext, err := crypto.AESGCMOpen(mk, crypto.ZeroIV, aad, sealed)
	if err != nil {
		return piuks, err
	}
	for i := 0; i < piukCount; i++ {
		piuks[i] = append([]byte(nil), plaintext[i*crypto.KeySize:(i+1)*crypto.KeySize]...)
	}
	return piuks, nil
}
