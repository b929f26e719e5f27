package relay

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/spv"
)

// OpKind identifies a relay contract operation.
type OpKind int

const (
	OpRegisterBlocks OpKind = iota + 1
	OpUpdateCanonicalChain
)

func (k OpKind) String() string {
	switch k {
	case OpRegisterBlocks:
		return EntryRegisterBlocks
	case OpUpdateCanonicalChain:
		return EntryUpdateCanonicalChain
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Operation is one contract call of a sync plan.
type Operation interface {
	Kind() OpKind
	Calldata() ([]felt.Felt, error)
}

// RegisterBlocks stores headers in the relay so they can later be made canonical.
type RegisterBlocks struct {
	Headers []*spv.BlockHeader
}

func (*RegisterBlocks) Kind() OpKind { return OpRegisterBlocks }

// Hashes returns the hashes of the registered headers in order.
func (op *RegisterBlocks) Hashes() []chainhash.Hash {
	out := make([]chainhash.Hash, len(op.Headers))
	for i, h := range op.Headers {
		out[i] = h.Hash
	}
	return out
}

// Calldata returns [count, header words...].
func (op *RegisterBlocks) Calldata() ([]felt.Felt, error) {
	if len(op.Headers) == 0 {
		return nil, ErrNoHeaders
	}
	out := make([]felt.Felt, 0, 1+len(op.Headers)*HeaderWords)
	out = append(out, felt.FromUint64(uint64(len(op.Headers))))
	for _, h := range op.Headers {
		words, err := SerializeHeader(h)
		if err != nil {
			return nil, fmt.Errorf("relay: register block %s: %w", h.Hash, err)
		}
		out = append(out, words...)
	}
	return out, nil
}

// Option tags of the relay contract's optional height proof.
const (
	optionSome = 0
	optionNone = 1
)

// UpdateCanonicalChain marks [BeginHeight, EndHeight] as the canonical chain
// ending in EndBlockHash. Proof is set when the relay cannot link BeginHeight
// to an existing canonical block and must be shown the height directly.
type UpdateCanonicalChain struct {
	BeginHeight  uint32
	EndHeight    uint32
	EndBlockHash chainhash.Hash
	Proof        *HeightProof
}

func (*UpdateCanonicalChain) Kind() OpKind { return OpUpdateCanonicalChain }

// WithProof reports whether a height proof accompanies the update.
func (op *UpdateCanonicalChain) WithProof() bool { return op.Proof != nil }

// Calldata returns [begin, end, endHash(8), tag, proof...] where tag is 0
// when a proof follows and 1 otherwise.
func (op *UpdateCanonicalChain) Calldata() ([]felt.Felt, error) {
	out := []felt.Felt{
		felt.FromUint64(uint64(op.BeginHeight)),
		felt.FromUint64(uint64(op.EndHeight)),
	}
	out = felt.AppendHash(out, op.EndBlockHash)
	if op.Proof == nil {
		return append(out, felt.FromUint64(optionNone)), nil
	}
	proof, err := op.Proof.Calldata()
	if err != nil {
		return nil, err
	}
	out = append(out, felt.FromUint64(optionSome))
	return append(out, proof...), nil
}

// HeightProof ties a header to its height through the coinbase, which
// commits to the height since BIP34.
type HeightProof struct {
	Header       *spv.BlockHeader
	CoinbaseTx   []byte           // legacy serialization
	MerkleBranch []chainhash.Hash // coinbase siblings, leaf to root
}

// Calldata returns [header(20), coinbase byte array..., branch count, branch...].
func (p *HeightProof) Calldata() ([]felt.Felt, error) {
	header, err := SerializeHeader(p.Header)
	if err != nil {
		return nil, err
	}
	out := append(header, felt.NewByteArray(p.CoinbaseTx).Words()...)
	out = append(out, felt.FromUint64(uint64(len(p.MerkleBranch))))
	for _, h := range p.MerkleBranch {
		out = felt.AppendHash(out, h)
	}
	return out, nil
}

// Plan is the ordered list of operations that brings the relay up to date.
// RegisterBlocks, when present, always comes first.
type Plan struct {
	Ops []Operation
}

// Empty reports whether the relay is already in sync.
func (p *Plan) Empty() bool { return p == nil || len(p.Ops) == 0 }

// Call is a contract invocation ready to be signed and submitted.
type Call struct {
	ContractAddress felt.Felt   `json:"contractAddress"`
	Selector        felt.Felt   `json:"selector"`
	Calldata        []felt.Felt `json:"calldata"`
}

// Calls renders the plan against a deployment.
func (p *Plan) Calls(dep Deployment) ([]Call, error) {
	if p == nil {
		return nil, nil
	}
	calls := make([]Call, 0, len(p.Ops))
	for _, op := range p.Ops {
		call, err := NewCall(dep, op)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// NewCall renders a single operation against a deployment.
func NewCall(dep Deployment, op Operation) (Call, error) {
	data, err := op.Calldata()
	if err != nil {
		return Call{}, fmt.Errorf("relay: %s calldata: %w", op.Kind(), err)
	}
	call := Call{ContractAddress: dep.ContractAddress, Calldata: data}
	switch op.Kind() {
	case OpRegisterBlocks:
		call.Selector = dep.RegisterBlocks
	case OpUpdateCanonicalChain:
		call.Selector = dep.UpdateCanonicalChain
	default:
		return Call{}, fmt.Errorf("relay: unknown operation %s", op.Kind())
	}
	return call, nil
}
