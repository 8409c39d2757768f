package publish

import (
	"encoding/json"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/wirestate"
)

// clientState mirrors wirestate.State but strictly types Data as
// RawMessage, so the JSON decoder never unmarshals it into a bare
// map[string]interface{} before a schema-specific decoder runs.
type clientState struct {
	ChainID   uint64                                `json:"chainId"`
	Timestamp uint64                                `json:"timestamp"`
	Block     wirestate.BlockSummary                `json:"block"`
	Pools     map[component.PoolID]clientPoolState  `json:"pools"`
}

type clientPoolState struct {
	Meta              wirestate.PoolMeta `json:"meta"`
	SyncedBlockNumber *uint64            `json:"syncedBlockNumber,omitempty"`
	Schema            string             `json:"schema"`
	Error             string             `json:"error,omitempty"`
	Data              json.RawMessage    `json:"data,omitempty"`
}

type clientPoolStateDiff struct {
	Meta              wirestate.PoolMeta `json:"meta"`
	SyncedBlockNumber *uint64            `json:"syncedBlockNumber,omitempty"`
	Schema            string             `json:"schema"`
	Error             string             `json:"error,omitempty"`
	Data              json.RawMessage    `json:"data,omitempty"`
}

// clientStateDiff mirrors statediff.StateDiff, keeping per-pool diffs
// as raw bytes until a schema-specific decoder runs.
type clientStateDiff struct {
	FromBlock uint64                                    `json:"fromBlock"`
	ToBlock   wirestate.BlockSummary                    `json:"toBlock"`
	Timestamp uint64                                     `json:"timestamp"`
	Pools     map[component.PoolID]clientPoolStateDiff  `json:"pools"`
}
