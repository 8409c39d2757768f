// Package decoderregistry implements the decoder's Decoder Registry
// (spec §4.3): the binding from exchange identifier to the factory and
// optional inclusion filter used to turn a raw snapshot into a
// simulatable ProtocolSim.
package decoderregistry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/feed"
	"github.com/defistate/stream-decoder/tokens"
)

// SharedState is the read-only view a factory receives of decoder
// state: the current token registry. Factories take the reader side
// only; they must never call back into the decoder's writer path.
type SharedState interface {
	Tokens() map[common.Address]tokens.Token
}

// InvalidSnapshotError reports that a factory rejected a snapshot: a
// missing attribute, a malformed value, or another structural problem.
type InvalidSnapshotError struct {
	Exchange string
	PoolID   component.PoolID
	Reason   string
}

func (e *InvalidSnapshotError) Error() string {
	return e.Reason
}

// Factory builds a ProtocolSim from a raw component snapshot. It is
// modeled as a function returning a future's synchronous equivalent:
// the only suspension points available to an implementation are the
// shared lock (via state) and a storage engine round trip the factory
// itself may choose to perform before returning.
type Factory func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, accountBalances map[common.Address]map[string][]byte, state SharedState) (component.ProtocolSim, error)

// FilterFunc is a synchronous inclusion predicate evaluated before a
// snapshot is decoded.
type FilterFunc func(snapshot feed.ComponentWithState) bool

// Registry binds exchange identifiers to factories and optional
// filters. It is built once at startup and read thereafter; it carries
// no lock of its own since the decoder never mutates it mid-stream.
type Registry struct {
	factories map[string]Factory
	filters   map[string]FilterFunc
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		filters:   make(map[string]FilterFunc),
	}
}

// RegisterDecoder binds exchange to factory, replacing any prior
// binding for the same exchange.
func (r *Registry) RegisterDecoder(exchange string, factory Factory) {
	r.factories[exchange] = factory
}

// RegisterFilter binds exchange to an inclusion predicate, replacing
// any prior binding for the same exchange.
func (r *Registry) RegisterFilter(exchange string, filter FilterFunc) {
	r.filters[exchange] = filter
}

// Factory resolves the factory bound to exchange, if any.
func (r *Registry) Factory(exchange string) (Factory, bool) {
	f, ok := r.factories[exchange]
	return f, ok
}

// Included reports whether snapshot passes exchange's inclusion
// filter. An exchange with no registered filter includes everything.
func (r *Registry) Included(exchange string, snapshot feed.ComponentWithState) bool {
	filter, ok := r.filters[exchange]
	if !ok {
		return true
	}
	return filter(snapshot)
}

// MissingRegistrationError reports that no factory was bound for
// exchange.
type MissingRegistrationError struct {
	Exchange string
}

func (e *MissingRegistrationError) Error() string {
	return fmt.Sprintf("no decoder registered for exchange %q", e.Exchange)
}
