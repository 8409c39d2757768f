// Package wirestate defines the serializable mirror of decoder output:
// the full/diff broadcast shape a downstream subscriber reconstructs
// locally, adapted from the teacher's engine package to carry
// per-pool data instead of per-protocol-instance data.
package wirestate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/component"
)

// PoolMeta is a pool's human-facing identity, carried alongside its
// wire data so a subscriber can label it without decoding Data.
type PoolMeta struct {
	ProtocolSystem string          `json:"protocolSystem"`
	Tokens         []common.Address `json:"tokens"`
}

// PoolState is one pool's wire-serializable view.
type PoolState struct {
	Meta PoolMeta `json:"meta"`

	// SyncedBlockNumber is the block this pool's Data reflects.
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Schema is the decode contract for Data, keyed by protocol system
	// (e.g. "uniswap_v2/poolView@v1").
	Schema string `json:"schema"`

	// Data is the pool's serialized view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this pool failed to decode for this block.
	Error string `json:"error,omitempty"`
}

// BlockSummary carries only the block fields a subscriber needs to
// order and validate incoming state.
type BlockSummary struct {
	Number    *big.Int    `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp uint64      `json:"timestamp"`
	// ReceivedAt is the Unix nanosecond timestamp the decoder started
	// processing the tick that produced this block, used downstream to
	// measure publish-to-subscriber latency.
	ReceivedAt int64 `json:"receivedAt"`
}

// State is the full mirror broadcast to subscribers: every known pool,
// keyed by its identifier.
type State struct {
	ChainID   uint64                            `json:"chainId"`
	Timestamp uint64                            `json:"timestamp"`
	Block     BlockSummary                      `json:"block"`
	Pools     map[component.PoolID]PoolState    `json:"pools"`
}

// HasErrors reports whether any pool in the mirror is currently failed.
func (s *State) HasErrors() bool {
	for _, p := range s.Pools {
		if p.Error != "" {
			return true
		}
	}
	return false
}
