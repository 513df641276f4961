// Package storage implements the S4 block container: a length-prefixed
// sequence of typed, authenticated-encrypted records holding a user's
// identity key material, plus the binary/base64url/base56-check text
// transports used to move that container around.
package storage

import (
	"encoding/binary"
	"errors"
)

// Block types, one instance of each permitted per container.
const (
	BlockTypePassword uint16 = 1 // Type 1: password-encrypted MK||ILK
	BlockTypeRescue   uint16 = 2 // Type 2: rescue-code-encrypted IUK
	BlockTypePrevious uint16 = 3 // Type 3: MK-encrypted previous IUKs
)

var (
	ErrBlockTooShort    = errors.New("storage: block shorter than its header")
	ErrBlockLengthField = errors.New("storage: block_length field exceeds buffer")
)

// Block is one S4 record: a 2-byte length, a 2-byte type, and a payload
// whose shape depends on Type. Payload does not include the 4-byte header.
type Block struct {
	Type    uint16
	Payload []byte
}

// Length is the total wire length of the block, header included.
func (b *Block) Length() int { return 4 + len(b.Payload) }

// Bytes serializes the block to its wire form: block_length ‖ block_type ‖
// payload.
func (b *Block) Bytes() []byte {
	buf := make([]byte, b.Length())
	binary.LittleEndian.PutUint16(buf[0:2], uint16(b.Length()))
	binary.LittleEndian.PutUint16(buf[2:4], b.Type)
	copy(buf[4:], b.Payload)
	return buf
}

// ParseBlock reads one block from the front of data and returns it along
// with the number of bytes consumed.
func ParseBlock(data []byte) (*Block, int, error) {
	if len(data) < 4 {
		return nil, 0, ErrBlockTooShort
	}
	length := binary.LittleEndian.Uint16(data[0:2])
	if length < 4 {
		return nil, 0, ErrBlockTooShort
	}
	if int(length) > len(data) {
		return nil, 0, ErrBlockLengthField
	}
	typ := binary.LittleEndian.Uint16(data[2:4])
	payload := make([]byte, length-4)
	copy(payload, data[4:length])
	return &Block{Type: typ, Payload: payload}, int(length), nil
}
