package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/sqrl-go/sqrl/pkg/encoding"
)

// Encoding selects the text transport used by Save/Load.
type Encoding int

const (
	EncodingBinary Encoding = iota
	EncodingBase64
	EncodingBase56Check
)

const (
	tagBinary = "sqrldata"
	tagText   = "SQRLDATA"
)

var (
	ErrUnrecognizedContainer = errors.New("storage: data is not a recognized sqrldata container")
	ErrCorruptBase56Check    = errors.New("storage: base56-check corruption detected")
	ErrTruncatedBlock        = errors.New("storage: trailing bytes do not form a complete block")
)

// Storage holds at most one block of each type, in insertion order.
type Storage struct {
	order  []uint16
	blocks map[uint16]*Block
}

// New returns an empty container.
func New() *Storage {
	return &Storage{blocks: make(map[uint16]*Block)}
}

// HasBlock reports whether a block of the given type is present.
func (s *Storage) HasBlock(blockType uint16) bool {
	_, ok := s.blocks[blockType]
	return ok
}

// GetBlock returns the block of the given type, if present.
func (s *Storage) GetBlock(blockType uint16) (*Block, bool) {
	b, ok := s.blocks[blockType]
	return b, ok
}

// PutBlock installs block, replacing any existing block of the same type
// and moving it to the end of the insertion order.
func (s *Storage) PutBlock(block *Block) {
	s.RemoveBlock(block.Type)
	s.blocks[block.Type] = block
	s.order = append(s.order, block.Type)
}

// RemoveBlock drops the block of the given type, if present.
func (s *Storage) RemoveBlock(blockType uint16) {
	if _, ok := s.blocks[blockType]; !ok {
		return
	}
	delete(s.blocks, blockType)
	for i, t := range s.order {
		if t == blockType {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// UniqueID returns the rescue block's public fingerprint, if a rescue block
// is present.
func (s *Storage) UniqueID() ([]byte, bool) {
	b, ok := s.blocks[BlockTypeRescue]
	if !ok {
		return nil, false
	}
	return b.UniqueID()
}

// Bytes serializes the container's blocks, in insertion order, without any
// container tag.
func (s *Storage) Bytes() []byte {
	var buf bytes.Buffer
	for _, t := range s.order {
		buf.Write(s.blocks[t].Bytes())
	}
	return buf.Bytes()
}

// Save serializes the container under the requested text transport,
// prefixed with its tag.
func (s *Storage) Save(enc Encoding) string {
	raw := s.Bytes()
	switch enc {
	case EncodingBase64:
		return tagText + encoding.Base64URLEncode(raw)
	case EncodingBase56Check:
		return tagText + encoding.GroupForPrinting(encoding.Base56CheckEncode(raw))
	default:
		return tagBinary + string(raw)
	}
}

// Load parses a container in any of its three transports (auto-detected by
// tag), replacing the receiver's contents.
func (s *Storage) Load(data []byte) error {
	raw, err := decodeContainer(data)
	if err != nil {
		return err
	}
	s.order = nil
	s.blocks = make(map[uint16]*Block)
	for len(raw) > 0 {
		if len(raw) < 4 {
			return ErrTruncatedBlock
		}
		block, n, err := ParseBlock(raw)
		if err != nil {
			return err
		}
		s.PutBlock(block)
		raw = raw[n:]
	}
	return nil
}

func decodeContainer(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, []byte(tagBinary)) {
		return data[len(tagBinary):], nil
	}
	if bytes.HasPrefix(data, []byte(tagText)) {
		rest := string(data[len(tagText):])
		stripped := encoding.StripGrouping(rest)
		// Base56-check goes first: its alphabet is a subset of base64url's,
		// so base64url would also accept many base56-check texts and return
		// garbage, while a base64url text almost never passes every line's
		// check digit.
		dataBytes, ok, badLine := encoding.Base56CheckDecode(stripped)
		if ok {
			return dataBytes, nil
		}
		if decoded, err := encoding.Base64URLDecode(stripped); err == nil {
			return decoded, nil
		}
		if badLine >= 0 {
			return nil, ErrCorruptBase56Check
		}
		return nil, ErrUnrecognizedContainer
	}
	return nil, ErrUnrecognizedContainer
}

// LoadFile reads and parses a container from path.
func (s *Storage) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.Load(data)
}

// SaveFile atomically writes the container to path under the requested
// encoding: it writes to a temp file in the same directory, then renames
// over the destination so a crash never leaves a partially-written file.
func (s *Storage) SaveFile(path string, enc Encoding) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sqrldata-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(s.Save(enc)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

