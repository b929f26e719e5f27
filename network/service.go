package network

import (
	"context"

	"github.com/bitfsorg/utu-go/relay"
)

// Service is the view of a Bitcoin node the relay tooling uses: the
// BlockSource queries plus the current tip height.
type Service interface {
	relay.BlockSource

	// GetBlockCount returns the height of the current chain tip.
	GetBlockCount(ctx context.Context) (uint32, error)
}
