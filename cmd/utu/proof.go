package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/cobra"

	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/relay"
	"github.com/bitfsorg/utu-go/spv"
)

type proofOutput struct {
	BlockHash string      `json:"blockHash"`
	Height    *uint32     `json:"height,omitempty"`
	TxID      string      `json:"txid,omitempty"`
	Calldata  []felt.Felt `json:"calldata"`
}

func (a *app) prover() (*relay.Prover, error) {
	btc, err := a.bitcoin()
	if err != nil {
		return nil, err
	}
	return relay.NewProver(btc), nil
}

func heightProofCmd(a *app) *cobra.Command {
	var height uint32

	cmd := &cobra.Command{
		Use:   "height-proof",
		Short: "Print the coinbase height proof of a block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.prover()
			if err != nil {
				return err
			}
			proof, err := p.HeightProof(cmd.Context(), height)
			if err != nil {
				return err
			}
			data, err := proof.Calldata()
			if err != nil {
				return err
			}
			return a.printJSON(proofOutput{
				BlockHash: proof.Header.Hash.String(),
				Height:    &height,
				Calldata:  data,
			})
		},
	}
	cmd.Flags().Uint32Var(&height, "height", 0, "block height")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func txProofCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tx-proof <txid>",
		Short: "Print the merkle inclusion proof of a confirmed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txid, err := chainhash.NewHashFromStr(args[0])
			if err != nil {
				return fmt.Errorf("invalid txid: %w", err)
			}
			p, err := a.prover()
			if err != nil {
				return err
			}
			proof, err := p.TxInclusionProof(cmd.Context(), *txid)
			if err != nil {
				return err
			}
			return a.printJSON(proofOutput{
				BlockHash: proof.Header.Hash.String(),
				TxID:      txid.String(),
				Calldata:  proof.Calldata(),
			})
		},
	}
}

func registerCmd(a *app) *cobra.Command {
	var from, to uint32

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Print a register_blocks call for a height range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("to") {
				to = from
			}
			p, err := a.prover()
			if err != nil {
				return err
			}
			op, err := p.RegisterBlocks(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return a.printCalls(op)
		},
	}
	cmd.Flags().Uint32Var(&from, "from", 0, "first height")
	cmd.Flags().Uint32Var(&to, "to", 0, "last height (default --from)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func updateCmd(a *app) *cobra.Command {
	var (
		begin, end uint32
		withProof  bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Print an update_canonical_chain call for a height range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("end") {
				end = begin
			}
			p, err := a.prover()
			if err != nil {
				return err
			}
			op, err := p.CanonicalChainUpdate(cmd.Context(), begin, end, withProof)
			if err != nil {
				return err
			}
			return a.printCalls(op)
		},
	}
	cmd.Flags().Uint32Var(&begin, "begin", 0, "first height")
	cmd.Flags().Uint32Var(&end, "end", 0, "last height (default --begin)")
	cmd.Flags().BoolVar(&withProof, "with-proof", false, "include the height proof of --begin")
	_ = cmd.MarkFlagRequired("begin")
	return cmd
}

type decodedProof struct {
	BlockHash  string   `json:"blockHash"`
	MerkleRoot string   `json:"merkleRoot"`
	TxCount    uint32   `json:"txCount"`
	Hashes     int      `json:"hashes"`
	FlagBits   int      `json:"flagBits"`
	TxID       string   `json:"txid,omitempty"`
	Branch     []string `json:"branch,omitempty"`
	Directions []bool   `json:"isRight,omitempty"`
}

func decodeProofCmd(a *app) *cobra.Command {
	var txid string

	cmd := &cobra.Command{
		Use:   "decode-proof <hex>",
		Short: "Decode a gettxoutproof blob and optionally extract a transaction's path",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			blob, err := hex.DecodeString(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid proof hex: %w", err)
			}
			mb, err := spv.ParseMerkleBlock(blob)
			if err != nil {
				return err
			}
			out := decodedProof{
				BlockHash:  mb.Header.Hash.String(),
				MerkleRoot: mb.Header.MerkleRoot.String(),
				TxCount:    mb.TxCount,
				Hashes:     len(mb.Hashes),
				FlagBits:   len(mb.Flags) * 8,
			}
			if txid != "" {
				h, err := chainhash.NewHashFromStr(txid)
				if err != nil {
					return fmt.Errorf("invalid txid: %w", err)
				}
				proof, err := spv.ReconstructInclusionProof(*h, blob, 0)
				if err != nil {
					return err
				}
				out.TxID = h.String()
				for _, s := range proof.Siblings {
					out.Branch = append(out.Branch, s.Hash.String())
					out.Directions = append(out.Directions, s.IsRight)
				}
			}
			return a.printJSON(out)
		},
	}
	cmd.Flags().StringVar(&txid, "txid", "", "transaction to extract the merkle path of")
	return cmd
}
