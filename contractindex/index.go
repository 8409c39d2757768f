// Package contractindex implements the Contracts-to-Pools Index
// (spec §4.5, §9): a map of sets from contract address to the pool
// identifiers whose simulation state depends on that contract. It is
// populated only for pools declaring the manual_updates static
// attribute and, per the design this decoder is bug-compatible with,
// it never shrinks — a removed pool's edges leak rather than being
// pruned.
package contractindex

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/component"
)

// Index is the persistent, process-lifetime contracts-to-pools
// fan-out map. It is safe for concurrent use and guarded by its own
// lock only; the decoder reads it during fanout computation and merges
// into it at tick commit without holding its shared state lock.
type Index struct {
	mu    sync.RWMutex
	edges map[common.Address]mapset.Set[component.PoolID]
}

// New returns an empty index.
func New() *Index {
	return &Index{edges: make(map[common.Address]mapset.Set[component.PoolID])}
}

// Lookup returns the set of pool ids depending on contract, or an
// empty set if none are registered.
func (idx *Index) Lookup(contract common.Address) mapset.Set[component.PoolID] {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	set, ok := idx.edges[contract]
	if !ok {
		return mapset.NewThreadUnsafeSet[component.PoolID]()
	}
	return set.Clone()
}

// Merge unions draft into the persistent index: every (contract, pool)
// edge in draft is added, existing edges are left untouched.
func (idx *Index) Merge(draft *Draft) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for contract, pools := range draft.edges {
		existing, ok := idx.edges[contract]
		if !ok {
			existing = mapset.NewThreadUnsafeSet[component.PoolID]()
			idx.edges[contract] = existing
		}
		existing = existing.Union(pools)
		idx.edges[contract] = existing
	}
}

// Draft is a tick-local accumulation of contracts-to-pools edges,
// staged during snapshot decoding and merged into the persistent Index
// only at tick commit (spec §4.5 step 3). It is not safe for
// concurrent use; one Draft belongs to one tick.
type Draft struct {
	edges map[common.Address]mapset.Set[component.PoolID]
}

// NewDraft returns an empty tick-local draft.
func NewDraft() *Draft {
	return &Draft{edges: make(map[common.Address]mapset.Set[component.PoolID])}
}

// AddEdge records that pool depends on contract.
func (d *Draft) AddEdge(contract common.Address, pool component.PoolID) {
	set, ok := d.edges[contract]
	if !ok {
		set = mapset.NewThreadUnsafeSet[component.PoolID]()
		d.edges[contract] = set
	}
	set.Add(pool)
}

// Lookup returns the set of pool ids this draft has recorded for
// contract so far, or an empty set if none.
func (d *Draft) Lookup(contract common.Address) mapset.Set[component.PoolID] {
	set, ok := d.edges[contract]
	if !ok {
		return mapset.NewThreadUnsafeSet[component.PoolID]()
	}
	return set.Clone()
}
