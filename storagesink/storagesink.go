// Package storagesink defines the Storage Engine Sink collaborator
// contract (spec §4.4): the single write path through which the
// decoder primes an external EVM-style storage cache with account
// snapshots and account-update batches, tagged with the tick's block
// header. The concrete storage engine (a shared on-disk database) is
// explicitly out of scope; this package only describes the interface
// the decoder drives and ships an in-memory reference implementation
// for tests and local demos.
package storagesink

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/feed"
)

// Engine is the single entry point the decoder drives to keep an
// external simulation engine's storage cache in sync with the chain.
// It must be durable within the process before any dependent decoder
// factory runs for the same block: a call to Update returning nil
// guarantees subsequent reads observe the written state.
type Engine interface {
	Update(ctx context.Context, header feed.Header, snapshotAccounts map[common.Address]feed.ResponseAccount, accountUpdates map[common.Address]feed.AccountUpdate) error
}

// MemoryEngine is a reference Engine backed by an in-memory map,
// suitable for tests and the demo command. It is safe for concurrent
// use, matching the single-writer/multi-reader shape the rest of the
// decoder's state carries.
type MemoryEngine struct {
	mu       sync.RWMutex
	accounts map[common.Address]feed.ResponseAccount
	block    feed.Header
}

// NewMemoryEngine returns an empty in-memory storage engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{accounts: make(map[common.Address]feed.ResponseAccount)}
}

// Update applies snapshotAccounts (a wholesale replace per address)
// then accountUpdates (an incremental merge of slots) and records the
// tick's header as the engine's current block.
func (e *MemoryEngine) Update(ctx context.Context, header feed.Header, snapshotAccounts map[common.Address]feed.ResponseAccount, accountUpdates map[common.Address]feed.AccountUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for addr, acc := range snapshotAccounts {
		e.accounts[addr] = acc
	}
	for addr, upd := range accountUpdates {
		existing, ok := e.accounts[addr]
		if !ok {
			existing = feed.ResponseAccount{
				Address: upd.Address,
				Chain:   upd.Chain,
				Slots:   make(map[common.Hash]*big.Int),
			}
		}
		if existing.Slots == nil {
			existing.Slots = make(map[common.Hash]*big.Int)
		}
		for slot, val := range upd.Slots {
			existing.Slots[slot] = val
		}
		if upd.Balance != nil {
			existing.Balance = upd.Balance
		}
		if upd.Code != nil {
			existing.Code = upd.Code
		}
		e.accounts[addr] = existing
	}
	e.block = header
	return nil
}

// Account returns the engine's current view of addr, for tests and
// diagnostics.
func (e *MemoryEngine) Account(addr common.Address) (feed.ResponseAccount, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acc, ok := e.accounts[addr]
	return acc, ok
}

// Block returns the header of the most recently primed tick.
func (e *MemoryEngine) Block() feed.Header {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.block
}
