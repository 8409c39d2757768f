// Package feed defines the decoder's inbound wire shapes: the message
// an upstream streaming client hands the decoder once per block tick.
// The streaming client itself is out of scope; this package only
// describes the shape it produces.
package feed

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/tokens"
)

// Header identifies the block a FeedMessage describes.
type Header struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

// ChangeType classifies an account-level change reported by the feed.
type ChangeType int

const (
	ChangeUnspecified ChangeType = iota
	ChangeCreation
	ChangeUpdate
	ChangeDeletion
)

// AccountUpdate is a single contract-account change reported for a
// tick: its storage slot delta, optional balance and bytecode, and the
// kind of change it represents.
type AccountUpdate struct {
	Address common.Address
	Chain   string
	Slots   map[common.Hash]*big.Int
	Balance *big.Int
	Code    []byte
	Change  ChangeType
}

// ResponseAccount is the full-state counterpart of AccountUpdate used
// in snapshots: a complete view of an account's storage rather than an
// incremental change.
type ResponseAccount struct {
	Address common.Address
	Chain   string
	Slots   map[common.Hash]*big.Int
	Balance *big.Int
	Code    []byte
	// TokenBalances reports, for accounts the feed observed as holding
	// ERC20 balances directly in its snapshot, the per-token raw
	// balance bytes.
	TokenBalances map[common.Address][]byte
}

// ComponentWithState pairs a raw, not-yet-decoded component snapshot
// with the attribute bag a registered factory will interpret.
type ComponentWithState struct {
	Component  RawComponent
	Attributes map[string][]byte
}

// RawComponent is the pre-decode shape of a ProtocolComponent, as
// reported by the feed before token resolution.
type RawComponent struct {
	ID               component.PoolID
	ProtocolSystem   string
	ProtocolTypeName string
	Chain            string
	TokenAddresses   []common.Address
	ContractIDs      []common.Address
	StaticAttributes map[string][]byte
	CreationTx       common.Hash
	CreatedAt        int64
}

// Snapshots bundles the full-state side of a protocol message.
type Snapshots struct {
	VMStorage map[common.Address]ResponseAccount
	States    map[component.PoolID]ComponentWithState
}

// GetVMStorage returns the account-storage view of this snapshot.
func (s Snapshots) GetVMStorage() map[common.Address]ResponseAccount { return s.VMStorage }

// GetStates returns the per-pool raw state view of this snapshot.
func (s Snapshots) GetStates() map[component.PoolID]ComponentWithState { return s.States }

// Deltas bundles the incremental side of a protocol message.
type Deltas struct {
	NewTokens         []tokens.RawToken
	AccountUpdates    map[common.Address]AccountUpdate
	AccountBalances   map[common.Address]map[string][]byte
	ComponentBalances map[component.PoolID]map[string][]byte
	StateUpdates      map[component.PoolID]component.ProtocolStateDelta
}

// ProtocolMessage is everything the feed reports for one protocol
// within a single tick.
type ProtocolMessage struct {
	Header    Header
	Deltas    *Deltas
	Snapshots Snapshots
	// RemovedComponents maps each removed pool's raw identifier text to
	// its component record. The key is left unparsed: parsing can fail,
	// so the decoder, not this package, decides fatal-vs-tolerant
	// handling of a bad identifier.
	RemovedComponents map[string]RawComponent
}

// FeedMessage is one tick's worth of upstream data, keyed by protocol
// (exchange) name.
type FeedMessage struct {
	StateMsgs map[string]ProtocolMessage
}
