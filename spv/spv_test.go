package spv

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helper functions ---

func mustHash(t *testing.T, s string) chainhash.Hash {
	t.Helper()
	h, err := chainhash.NewHashFromStr(s)
	require.NoError(t, err)
	return *h
}

func makeTxHash(seed byte) chainhash.Hash {
	return chainhash.DoubleHashH([]byte{seed})
}

func buildTestHeader(height uint32, prevBlock, merkleRoot chainhash.Hash) *BlockHeader {
	h := &BlockHeader{
		Version:    1,
		PrevBlock:  prevBlock,
		MerkleRoot: merkleRoot,
		Time:       1700000000,
		Bits:       0x1d00ffff,
		Nonce:      12345,
		Height:     height,
		Fields:     AllHeaderFields,
	}
	h.Hash = ComputeHeaderHash(h)
	return h
}

const genesisHex = "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c"

// --- Cursor tests ---

func TestCursor_CompactSize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want uint64
		n    int
	}{
		{"zero", "00", 0, 1},
		{"single byte max", "fc", 252, 1},
		{"uint16", "fdfd00", 253, 3},
		{"uint16 max", "fdffff", 0xffff, 3},
		{"uint32", "fe00000100", 0x10000, 5},
		{"uint64", "ff0000000001000000", 0x100000000, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := hex.DecodeString(tt.in + "aa")
			require.NoError(t, err)
			c := NewCursor(b)
			v, err := c.CompactSize("n")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.n, c.Offset())
			assert.Equal(t, 1, c.Len())
		})
	}
}

func TestCursor_CompactSizeErrors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		offset int
	}{
		{"empty", "", 0},
		{"uint16 truncated", "fd01", 0},
		{"uint32 truncated", "fe010203", 0},
		{"uint64 truncated", "ff01020304050607", 0},
		{"non-canonical uint16", "fd1000", 0},
		{"non-canonical uint32", "fe10000000", 0},
		{"non-canonical uint64", "ff1000000000000000", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := hex.DecodeString(tt.in)
			require.NoError(t, err)
			_, err = NewCursor(b).CompactSize("n")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)

			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "n", fe.Field)
			assert.Equal(t, tt.offset, fe.Offset)
		})
	}
}

func TestCursor_NextTruncated(t *testing.T) {
	c := NewCursor(make([]byte, 10))
	_, err := c.Next(4, "a")
	require.NoError(t, err)

	_, err = c.Next(7, "b")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 4, fe.Offset)
	assert.Equal(t, 7, fe.Need)
	assert.Equal(t, 6, fe.Have)
	assert.Contains(t, fe.Error(), "truncated b at offset 4")

	_, err = c.Next(1<<62, "huge")
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, -1, fe.Need)
}

func TestCursor_Reads(t *testing.T) {
	b := append([]byte{0x01, 0x00, 0x00, 0x00}, bytes.Repeat([]byte{0xab}, 32)...)
	c := NewCursor(b)
	v, err := c.Uint32("version")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)

	h, err := c.Hash("hash")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xab}, 32), h[:])
	assert.Equal(t, 0, c.Len())

	_, err = c.Uint32("more")
	assert.ErrorIs(t, err, ErrFormat)
}

// --- Header tests ---

func TestDeserializeHeader_Genesis(t *testing.T) {
	raw, err := hex.DecodeString(genesisHex)
	require.NoError(t, err)

	h, err := DeserializeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.Version)
	assert.Equal(t, chainhash.Hash{}, h.PrevBlock)
	assert.Equal(t, mustHash(t, "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"), h.MerkleRoot)
	assert.Equal(t, uint32(1231006505), h.Time)
	assert.Equal(t, uint32(0x1d00ffff), h.Bits)
	assert.Equal(t, uint32(2083236893), h.Nonce)
	assert.Equal(t, mustHash(t, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"), h.Hash)
	assert.Equal(t, AllHeaderFields, h.Fields)
	assert.NoError(t, h.Missing())

	assert.Equal(t, raw, SerializeHeader(h))
	assert.Equal(t, h.Hash, ComputeHeaderHash(h))
}

func TestDeserializeHeader_Short(t *testing.T) {
	_, err := DeserializeHeader(make([]byte, 79))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestSerializeHeader_Nil(t *testing.T) {
	assert.Nil(t, SerializeHeader(nil))
}

func TestHeaderMissing(t *testing.T) {
	tests := []struct {
		fields HeaderField
		want   string
	}{
		{AllHeaderFields &^ FieldVersion, "version"},
		{AllHeaderFields &^ FieldPrevBlock, "previousblockhash"},
		{AllHeaderFields &^ FieldMerkleRoot, "merkleroot"},
		{AllHeaderFields &^ FieldTime, "time"},
		{AllHeaderFields &^ FieldBits, "bits"},
		{AllHeaderFields &^ FieldNonce, "nonce"},
		{0, "version"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			h := &BlockHeader{Fields: tt.fields}
			err := h.Missing()
			assert.ErrorIs(t, err, ErrMissingField)
			var mf *MissingFieldError
			require.ErrorAs(t, err, &mf)
			assert.Equal(t, tt.want, mf.Field)
		})
	}
}

func TestVerifyHeaderChain(t *testing.T) {
	h0 := buildTestHeader(0, chainhash.Hash{}, makeTxHash(0))
	h1 := buildTestHeader(1, h0.Hash, makeTxHash(1))
	h2 := buildTestHeader(2, h1.Hash, makeTxHash(2))
	assert.NoError(t, VerifyHeaderChain([]*BlockHeader{h0, h1, h2}))
	assert.NoError(t, VerifyHeaderChain(nil))

	assert.ErrorIs(t, VerifyHeaderChain([]*BlockHeader{h0, h2}), ErrChainBroken)
	assert.ErrorIs(t, VerifyHeaderChain([]*BlockHeader{h0, nil}), ErrNilParam)
}

// --- Work tests ---

func TestCompactToBig(t *testing.T) {
	assert.Equal(t, "ffff0000000000000000000000000000000000000000000000000000", CompactToBig(0x1d00ffff).Text(16))
	assert.Equal(t, int64(0x12), CompactToBig(0x01123456).Int64())
	assert.Equal(t, int64(0x1234), CompactToBig(0x02123456).Int64())
	assert.Equal(t, int64(0x92345600), CompactToBig(0x04923456).Int64(), "bit 23 is part of the coefficient")
}

func TestWorkForBits(t *testing.T) {
	tests := []struct {
		name string
		bits uint32
		want string
	}{
		{"genesis", 0x1d00ffff, "100010001"},
		{"regtest", 0x207fffff, "2"},
		{"zero target", 0x1d000000, "0"},
		{"high coefficient", 0x1d800000, "1ffffff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WorkForBits(tt.bits).Text(16))
		})
	}
}

// --- Merkle tests ---

func TestCombine(t *testing.T) {
	a, b := makeTxHash(1), makeTxHash(2)
	got := Combine(DoubleHash, a, b)
	want := chainhash.DoubleHashH(append(a[:], b[:]...))
	assert.Equal(t, want, got)
	assert.NotEqual(t, got, Combine(DoubleHash, b, a))
}

func TestBuildMerkleTree_ThreeTx_OddPadding(t *testing.T) {
	tx := []chainhash.Hash{makeTxHash(1), makeTxHash(2), makeTxHash(3)}
	levels := BuildMerkleTree(tx)
	require.Len(t, levels, 3)

	left := Combine(DoubleHash, tx[0], tx[1])
	right := Combine(DoubleHash, tx[2], tx[2])
	assert.Equal(t, Combine(DoubleHash, left, right), levels[2][0])
	assert.Equal(t, levels[2][0], ComputeMerkleRootFromTxList(tx))
}

func TestBuildMerkleTree_Empty(t *testing.T) {
	assert.Nil(t, BuildMerkleTree(nil))
	assert.Equal(t, chainhash.Hash{}, ComputeMerkleRootFromTxList(nil))
}

func TestMerkleBranch(t *testing.T) {
	var tx []chainhash.Hash
	for i := 0; i < 7; i++ {
		tx = append(tx, makeTxHash(byte(i)))
	}
	root := ComputeMerkleRootFromTxList(tx)
	for i := range tx {
		branch := MerkleBranch(tx, uint32(i))
		assert.Len(t, branch, 3)
		assert.Equal(t, root, ComputeMerkleRoot(tx[i], uint32(i), branch), "index %d", i)
	}
	assert.Nil(t, MerkleBranch(tx, 7))
}

func TestInclusionProof_Root(t *testing.T) {
	tx := []chainhash.Hash{makeTxHash(1), makeTxHash(2), makeTxHash(3), makeTxHash(4)}
	root := ComputeMerkleRootFromTxList(tx)

	p := &InclusionProof{
		TxID: tx[2],
		Siblings: []Sibling{
			{Hash: tx[3], IsRight: true},
			{Hash: Combine(DoubleHash, tx[0], tx[1]), IsRight: false},
		},
	}
	assert.Equal(t, root, p.Root(nil))
	assert.NoError(t, VerifyInclusion(p, root))
	assert.Equal(t, []chainhash.Hash{tx[3], p.Siblings[1].Hash}, p.Branch())

	p.Siblings[0].IsRight = false
	assert.ErrorIs(t, VerifyInclusion(p, root), ErrMerkleProofInvalid)
	assert.ErrorIs(t, VerifyInclusion(nil, root), ErrNilParam)
}

// --- Error type tests ---

func TestErrorTypes(t *testing.T) {
	pe := &ProofError{Reason: "ran out of hashes", HashesUsed: 3, HashCount: 3, BitsUsed: 5, BitCount: 8}
	assert.ErrorIs(t, pe, ErrProof)
	assert.Contains(t, pe.Error(), "hashes 3/3")

	ct := &ChainTipError{Height: 900000}
	assert.ErrorIs(t, ct, ErrChainTip)
	assert.Contains(t, ct.Error(), "900000")
}
