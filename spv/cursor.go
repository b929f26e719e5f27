package spv

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Cursor reads Bitcoin wire encodings from a byte slice, tracking the
// offset so failures can be reported positionally.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.off }

// Len returns the number of bytes left to read.
func (c *Cursor) Len() int { return len(c.buf) - c.off }

func (c *Cursor) truncated(field string, need uint64) *FormatError {
	n := int(need)
	if need > uint64(len(c.buf)) {
		n = -1
	}
	return &FormatError{Field: field, Offset: c.off, Need: n, Have: c.Len()}
}

// Next returns the next n bytes without copying and advances past them.
func (c *Cursor) Next(n uint64, field string) ([]byte, error) {
	if n > uint64(c.Len()) {
		return nil, c.truncated(field, n)
	}
	b := c.buf[c.off : c.off+int(n)]
	c.off += int(n)
	return b, nil
}

// Skip advances past n bytes.
func (c *Cursor) Skip(n uint64, field string) error {
	_, err := c.Next(n, field)
	return err
}

// Uint32 reads a little-endian uint32.
func (c *Cursor) Uint32(field string) (uint32, error) {
	b, err := c.Next(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Hash reads a 32-byte hash stored in internal byte order.
func (c *Cursor) Hash(field string) (chainhash.Hash, error) {
	var h chainhash.Hash
	b, err := c.Next(chainhash.HashSize, field)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// CompactSize reads a Bitcoin variable-length integer:
//
//	0x00-0xfc  the byte itself
//	0xfd       followed by a uint16
//	0xfe       followed by a uint32
//	0xff       followed by a uint64
//
// Non-canonical encodings are rejected, as Bitcoin Core does.
func (c *Cursor) CompactSize(field string) (uint64, error) {
	if c.Len() < 1 {
		return 0, c.truncated(field, 1)
	}
	need := 1
	switch c.buf[c.off] {
	case 0xfd:
		need = 3
	case 0xfe:
		need = 5
	case 0xff:
		need = 9
	}
	if c.Len() < need {
		return 0, c.truncated(field, uint64(need))
	}
	v, err := wire.ReadVarInt(bytes.NewReader(c.buf[c.off:c.off+need]), 0)
	if err != nil {
		return 0, &FormatError{Field: field, Offset: c.off, Need: need, Have: c.Len(), Err: err}
	}
	c.off += need
	return v, nil
}
