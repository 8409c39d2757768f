package statediff

import (
	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/wirestate"
)

// PoolDiff is one pool's change between two wirestate.State snapshots.
type PoolDiff struct {
	Meta wirestate.PoolMeta `json:"meta"`

	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`
	Schema            string  `json:"schema"`
	Data              any     `json:"data,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// StateDiff summarizes the change from FromBlock to ToBlock. It holds
// one entry for every pool present in the newer state, whether or not
// that pool changed; pools absent from the newer state have no entry.
type StateDiff struct {
	Timestamp uint64                          `json:"timestamp"`
	FromBlock uint64                          `json:"fromBlock"`
	ToBlock   wirestate.BlockSummary          `json:"toBlock"`
	Pools     map[component.PoolID]PoolDiff  `json:"pools"`
}
