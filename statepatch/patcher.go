// Package statepatch applies a statediff.StateDiff to a previous
// wirestate.State to reconstruct the next one, adapted from the
// teacher's patcher package with the same structural-sharing approach.
package statepatch

import (
	"fmt"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/statediff"
	"github.com/defistate/stream-decoder/wirestate"
)

// PoolPatcherFunc applies a diff to a pool's previous Data to produce
// its next Data.
//
// Implementations must not mutate prevData; prevData may be nil if
// this is a newly observed pool.
type PoolPatcherFunc func(prevData any, diffData any) (newData any, err error)

// StatePatcherConfig maps each wire schema to the function that
// applies a diff for that schema.
type StatePatcherConfig struct {
	Patchers map[string]PoolPatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for schema, patcher := range c.Patchers {
		if patcher == nil {
			return fmt.Errorf("statepatch: nil patcher registered for schema %q", schema)
		}
	}
	return nil
}

// StatePatcher reconstructs a wirestate.State from a prior state and a
// statediff.StateDiff.
type StatePatcher struct {
	patchers map[string]PoolPatcherFunc
}

// NewStatePatcher constructs a StatePatcher from cfg.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	patchers := make(map[string]PoolPatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}

	return &StatePatcher{patchers: patchers}, nil
}

// Patch applies diff to oldState, returning the reconstructed state.
// Pools untouched by diff are carried over by reference.
func (p *StatePatcher) Patch(oldState *wirestate.State, diff *statediff.StateDiff) (*wirestate.State, error) {
	if oldState.Block.Number.Uint64() != diff.FromBlock {
		return nil, fmt.Errorf("statepatch: mismatched fromBlock (state=%d, diff=%d)", oldState.Block.Number.Uint64(), diff.FromBlock)
	}

	newPools := make(map[component.PoolID]wirestate.PoolState, len(oldState.Pools))
	for id, pool := range oldState.Pools {
		newPools[id] = pool
	}

	for poolID, poolDiff := range diff.Pools {
		patcherFunc, ok := p.patchers[poolDiff.Schema]
		if !ok {
			return nil, fmt.Errorf("statepatch: no patcher registered for schema %q (pool=%s)", poolDiff.Schema, poolID)
		}

		var oldData any
		if oldPool, exists := oldState.Pools[poolID]; exists {
			if oldPool.Schema != poolDiff.Schema {
				return nil, fmt.Errorf("statepatch: schema mismatch for pool %s (old=%s, diff=%s)", poolID, oldPool.Schema, poolDiff.Schema)
			}
			oldData = oldPool.Data
		}

		newData, err := patcherFunc(oldData, poolDiff.Data)
		if err != nil {
			return nil, fmt.Errorf("statepatch: patching pool %s: %w", poolID, err)
		}

		newPools[poolID] = wirestate.PoolState{
			Meta:              poolDiff.Meta,
			SyncedBlockNumber: poolDiff.SyncedBlockNumber,
			Schema:            poolDiff.Schema,
			Data:              newData,
			Error:             poolDiff.Error,
		}
	}

	return &wirestate.State{
		ChainID:   oldState.ChainID,
		Timestamp: diff.Timestamp,
		Block:     diff.ToBlock,
		Pools:     newPools,
	}, nil
}
