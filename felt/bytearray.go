package felt

import (
	"fmt"
)

// ByteArrayChunk is the number of bytes packed into each full word.
const ByteArrayChunk = 31

// ByteArray is the chunked encoding of an arbitrary byte string: full
// 31-byte big-endian chunks in Data, the remainder in PendingWord.
// len(Data)*31 + PendingWordLen always equals the input length.
type ByteArray struct {
	Data           []Felt
	PendingWord    Felt
	PendingWordLen int
}

// NewByteArray chunks b.
func NewByteArray(b []byte) ByteArray {
	var a ByteArray
	full := len(b) / ByteArrayChunk
	a.Data = make([]Felt, 0, full)
	for i := 0; i < full; i++ {
		a.Data = append(a.Data, mustBytes(b[i*ByteArrayChunk:(i+1)*ByteArrayChunk]))
	}
	rest := b[full*ByteArrayChunk:]
	a.PendingWord = mustBytes(rest)
	a.PendingWordLen = len(rest)
	return a
}

// 31 bytes are always below the modulus.
func mustBytes(b []byte) Felt {
	f, err := FromBytes(b)
	if err != nil {
		panic(err)
	}
	return f
}

// Len returns the number of encoded bytes.
func (a ByteArray) Len() int {
	return len(a.Data)*ByteArrayChunk + a.PendingWordLen
}

// Bytes decodes the byte string.
func (a ByteArray) Bytes() ([]byte, error) {
	if a.PendingWordLen < 0 || a.PendingWordLen >= ByteArrayChunk {
		return nil, fmt.Errorf("%w: length %d", ErrPendingWord, a.PendingWordLen)
	}
	out := make([]byte, 0, a.Len())
	for i, w := range a.Data {
		b := w.Bytes()
		if !allZero(b[:len(b)-ByteArrayChunk]) {
			return nil, fmt.Errorf("%w: chunk %d exceeds %d bytes", ErrOutOfRange, i, ByteArrayChunk)
		}
		out = append(out, b[len(b)-ByteArrayChunk:]...)
	}
	b := a.PendingWord.Bytes()
	if !allZero(b[:len(b)-a.PendingWordLen]) {
		return nil, fmt.Errorf("%w: word exceeds %d bytes", ErrPendingWord, a.PendingWordLen)
	}
	return append(out, b[len(b)-a.PendingWordLen:]...), nil
}

// Words flattens the array for calldata: [len(Data), Data..., PendingWord, PendingWordLen].
func (a ByteArray) Words() []Felt {
	out := make([]Felt, 0, len(a.Data)+3)
	out = append(out, FromUint64(uint64(len(a.Data))))
	out = append(out, a.Data...)
	return append(out, a.PendingWord, FromUint64(uint64(a.PendingWordLen)))
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
