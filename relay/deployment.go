package relay

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bitfsorg/utu-go/felt"
)

// Entry point names of the relay contract.
const (
	EntryRegisterBlocks       = "register_blocks"
	EntryUpdateCanonicalChain = "update_canonical_chain"
	EntryGetStatus            = "get_status"
	EntryGetBlock             = "get_block"
)

// Deployment locates a relay contract and its entry points.
type Deployment struct {
	ContractAddress      felt.Felt
	RegisterBlocks       felt.Felt
	UpdateCanonicalChain felt.Felt
	GetStatus            felt.Felt
	GetBlock             felt.Felt
}

// NewDeployment returns a deployment whose selectors are derived from the
// standard entry point names.
func NewDeployment(contract felt.Felt) Deployment {
	return Deployment{
		ContractAddress:      contract,
		RegisterBlocks:       felt.Selector(EntryRegisterBlocks),
		UpdateCanonicalChain: felt.Selector(EntryUpdateCanonicalChain),
		GetStatus:            felt.Selector(EntryGetStatus),
		GetBlock:             felt.Selector(EntryGetBlock),
	}
}

var entryPointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ResolveSelector accepts either a 0x-prefixed selector or an entry point
// name, which is hashed with felt.Selector.
func ResolveSelector(s string) (felt.Felt, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		f, err := felt.FromHex(s)
		if err != nil {
			return felt.Zero, fmt.Errorf("%w: %v", ErrUnknownSelector, err)
		}
		return f, nil
	}
	if !entryPointName.MatchString(s) {
		return felt.Zero, fmt.Errorf("%w: %q", ErrUnknownSelector, s)
	}
	return felt.Selector(s), nil
}
