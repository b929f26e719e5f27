// Package tx converts transactions to the legacy serialization that their
// txid commits to.
package tx

import (
	"fmt"

	"github.com/bitfsorg/utu-go/spv"
)

const (
	versionLen   = 4
	lockTimeLen  = 4
	outpointLen  = 36
	sequenceLen  = 4
	valueLen     = 8
	witnessFlag  = 0x01
	witnessMark  = 0x00
	markerOffset = versionLen
)

// HasWitness reports whether raw starts with a version followed by the
// segwit marker and flag bytes.
func HasWitness(raw []byte) bool {
	return len(raw) >= versionLen+2 &&
		raw[markerOffset] == witnessMark &&
		raw[markerOffset+1] == witnessFlag
}

// Strip returns the legacy serialization of a transaction: the segwit
// marker and flag and all witness data removed. A transaction without the
// marker is returned unchanged.
//
//	version | 00 01 | inputs | outputs | witnesses | locktime
//	version |         inputs | outputs |             locktime
func Strip(raw []byte) ([]byte, error) {
	if !HasWitness(raw) {
		return raw, nil
	}

	c := spv.NewCursor(raw)
	if err := c.Skip(versionLen+2, "version"); err != nil {
		return nil, err
	}
	nIn, err := c.CompactSize("input count")
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nIn; i++ {
		if err := c.Skip(outpointLen, fmt.Sprintf("input %d outpoint", i)); err != nil {
			return nil, err
		}
		if err := skipScript(c, fmt.Sprintf("input %d script", i)); err != nil {
			return nil, err
		}
		if err := c.Skip(sequenceLen, fmt.Sprintf("input %d sequence", i)); err != nil {
			return nil, err
		}
	}
	nOut, err := c.CompactSize("output count")
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nOut; i++ {
		if err := c.Skip(valueLen, fmt.Sprintf("output %d value", i)); err != nil {
			return nil, err
		}
		if err := skipScript(c, fmt.Sprintf("output %d script", i)); err != nil {
			return nil, err
		}
	}

	witnessStart := c.Offset()
	if c.Len() < lockTimeLen {
		return nil, &spv.FormatError{Field: "locktime", Offset: witnessStart, Need: lockTimeLen, Have: c.Len()}
	}

	out := make([]byte, 0, witnessStart-2+lockTimeLen)
	out = append(out, raw[:versionLen]...)
	out = append(out, raw[versionLen+2:witnessStart]...)
	return append(out, raw[len(raw)-lockTimeLen:]...), nil
}

func skipScript(c *spv.Cursor, field string) error {
	n, err := c.CompactSize(field + " length")
	if err != nil {
		return err
	}
	return c.Skip(n, field)
}
