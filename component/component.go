// Package component defines the decoder's polymorphic data model: a
// pool's immutable identity (ProtocolComponent), its simulatable state
// behind a capability-set interface (ProtocolSim), the incremental
// change it can receive (ProtocolStateDelta), and the per-tick output
// envelope (BlockUpdate).
package component

import (
	"encoding/hex"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/tokens"
)

// PoolID is the byte-string identifier of a pool, carried as lower-hex
// text so it is usable directly as a map key.
type PoolID string

// ParsePoolID parses a feed-reported identifier (hex text, optionally
// 0x-prefixed, in any letter case) into a canonical PoolID. The result
// is always lowercase and 0x-prefixed regardless of the input's
// casing: the decoder must compare pool identity by decoded bytes, not
// by source text.
func ParsePoolID(raw string) (PoolID, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return "", err
	}
	return PoolID("0x" + hex.EncodeToString(decoded)), nil
}

// ProtocolComponent holds a pool's immutable properties: attributes
// that never change, not even through governance.
type ProtocolComponent struct {
	ID               PoolID
	Tokens           []tokens.Token
	ProtocolSystem   string
	ProtocolTypeName string
	Chain            string
	ContractIDs      []common.Address
	StaticAttributes map[string][]byte
	CreationTx       common.Hash
	CreatedAt        time.Time
}

// ManualUpdatesAttribute is the static-attribute key that flags a pool
// as depending on its ContractIDs beyond its own attribute deltas.
const ManualUpdatesAttribute = "manual_updates"

// HasManualUpdates reports whether the component declared itself
// dependent on its ContractIDs for re-derivation.
func (c ProtocolComponent) HasManualUpdates() bool {
	_, ok := c.StaticAttributes[ManualUpdatesAttribute]
	return ok
}

// NewWithTokens builds a ProtocolComponent from a raw core component
// and its resolved Tokens, sorting tokens by address the way the
// decoder must so component identity is deterministic regardless of
// the feed's token ordering.
func NewWithTokens(id PoolID, protocolSystem, protocolTypeName, chain string, resolvedTokens []tokens.Token, contractIDs []common.Address, staticAttrs map[string][]byte, creationTx common.Hash, createdAt time.Time) ProtocolComponent {
	sorted := make([]tokens.Token, len(resolvedTokens))
	copy(sorted, resolvedTokens)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Address.Cmp(sorted[j].Address) < 0
	})

	return ProtocolComponent{
		ID:               id,
		Tokens:           sorted,
		ProtocolSystem:   protocolSystem,
		ProtocolTypeName: protocolTypeName,
		Chain:            chain,
		ContractIDs:      contractIDs,
		StaticAttributes: staticAttrs,
		CreationTx:       creationTx,
		CreatedAt:        createdAt,
	}
}

// ProtocolStateDelta is an incremental, per-protocol attribute change
// applied to a ProtocolSim via DeltaTransition. DeletedAttributes is
// applied before UpdatedAttributes so a key present in both ends up set.
type ProtocolStateDelta struct {
	ComponentID       PoolID
	UpdatedAttributes map[string][]byte
	DeletedAttributes []string
}

// ProtocolSim is the capability set every per-protocol simulator must
// implement. The decoder interacts with state only through this
// interface; it never inspects a concrete variant.
type ProtocolSim interface {
	// DeltaTransition mutates the receiver in place to reflect delta,
	// resolving token identities against tokens and balance context
	// from balances.
	DeltaTransition(delta ProtocolStateDelta, tokens map[common.Address]tokens.Token, balances Balances) error

	// Clone returns a deep copy safe to mutate independently of the
	// receiver.
	Clone() ProtocolSim

	// Fee returns the protocol's current swap fee, in basis points or
	// another protocol-defined fixed unit.
	Fee() *big.Int

	// GetAmountOut simulates a swap of amountIn of tokenIn for tokenOut
	// without mutating the receiver.
	GetAmountOut(tokenIn common.Address, amountIn *big.Int, tokenOut common.Address) (GetAmountOutResult, error)

	// SpotPrice returns the current marginal price of base denominated
	// in quote.
	SpotPrice(base, quote common.Address) (*big.Int, error)
}

// GetAmountOutResult carries the result of a simulated swap alongside
// the resulting state, so a caller can chain simulated swaps without
// mutating shared state.
type GetAmountOutResult struct {
	Amount   *big.Int
	Gas      *big.Int
	NewState ProtocolSim
}

// Aggregate folds other into the receiver: the amount is replaced by
// other's amount and gas accumulates, modeling a multi-hop route where
// only the final hop's output amount matters but gas is summed.
func (r *GetAmountOutResult) Aggregate(other GetAmountOutResult) {
	r.Amount = other.Amount
	r.Gas = new(big.Int).Add(r.Gas, other.Gas)
}

// Balances carries per-tick balance observations as raw bytes, matched
// to the upstream feed's own representation so no precision or
// protocol-specific decoding is imposed before a ProtocolSim consumes
// them.
type Balances struct {
	// ComponentBalances maps pool id -> token address (lower-hex) ->
	// raw balance bytes.
	ComponentBalances map[PoolID]map[string][]byte
	// AccountBalances maps contract address -> token address (lower-hex)
	// -> raw balance bytes.
	AccountBalances map[common.Address]map[string][]byte
}

// BlockUpdate is the decoder's per-tick output: which pools now have
// state, which pools are new, and which were removed.
type BlockUpdate struct {
	BlockNumber  uint64
	States       map[PoolID]ProtocolSim
	NewPairs     map[PoolID]ProtocolComponent
	RemovedPairs map[PoolID]ProtocolComponent
}

// NewBlockUpdate constructs a BlockUpdate with an empty RemovedPairs
// set, mirroring the two-step construction of the reference decoder.
func NewBlockUpdate(blockNumber uint64, states map[PoolID]ProtocolSim, newPairs map[PoolID]ProtocolComponent) BlockUpdate {
	return BlockUpdate{
		BlockNumber: blockNumber,
		States:      states,
		NewPairs:    newPairs,
	}
}

// WithRemovedPairs sets RemovedPairs and returns the receiver for
// chaining, matching the builder-style construction of the reference
// decoder's `set_removed_pairs`.
func (b BlockUpdate) WithRemovedPairs(removed map[PoolID]ProtocolComponent) BlockUpdate {
	b.RemovedPairs = removed
	return b
}
