package decoder

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/contractindex"
	"github.com/defistate/stream-decoder/proxyaddr"
	"github.com/defistate/stream-decoder/tokens"
)

// sharedState is the decoder's interior-mutable container (spec §5): a
// single reader/writer lock guards the token registry, the persistent
// state store, and the proxy-address mapping. Registered factories are
// handed a read-only view via the SharedState interface and take the
// reader side only; the decoder itself takes the writer side for token
// ingestion, proxy minting, and end-of-tick commit.
//
// The contracts-to-pools index carries its own lock (contractindex.Index)
// since it is never exposed to factories and is only ever touched by
// the decoder's own single-threaded tick loop; folding it into this
// lock would buy nothing.
type sharedState struct {
	mu sync.RWMutex

	tokens         map[common.Address]tokens.Token
	states         map[component.PoolID]component.ProtocolSim
	proxyAddresses map[common.Address]common.Address

	contracts *contractindex.Index
}

func newSharedState() *sharedState {
	return &sharedState{
		tokens:         make(map[common.Address]tokens.Token),
		states:         make(map[component.PoolID]component.ProtocolSim),
		proxyAddresses: make(map[common.Address]common.Address),
		contracts:      contractindex.New(),
	}
}

// Tokens implements decoderregistry.SharedState: a defensive snapshot
// taken under the read lock, so a factory can range over it without
// pinning the lock for the duration of its own work.
func (s *sharedState) Tokens() map[common.Address]tokens.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tokens.SetTokens(s.tokens)
}

// setTokens replaces the token registry wholesale. Setting the same
// map twice is idempotent.
func (s *sharedState) setTokens(all map[common.Address]tokens.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens.SetTokens(all)
}

// extendTokens merges raw token deltas into the registry, returning
// the number actually added.
func (s *sharedState) extendTokens(raw []tokens.RawToken, minQuality uint32, convert func(tokens.RawToken) (tokens.Token, error), logger tokens.Logger) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tokens.ExtendFromDeltas(s.tokens, raw, minQuality, convert, logger)
}

// resolveToken looks up addr in the token registry under the read lock.
func (s *sharedState) resolveToken(addr common.Address) (tokens.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tokens.Get(s.tokens, addr)
}

// ensureProxy returns the proxy address for token, minting and
// recording one if none exists yet. minted reports whether a new
// address was allocated on this call.
func (s *sharedState) ensureProxy(token common.Address) (proxy common.Address, minted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.proxyAddresses[token]; ok {
		return existing, false
	}
	idx := uint32(len(s.proxyAddresses))
	newAddr := proxyaddr.Mint(idx)
	s.proxyAddresses[token] = newAddr
	return newAddr, true
}

// lookupProxy reports the existing proxy address for token, if any,
// without minting.
func (s *sharedState) lookupProxy(token common.Address) (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.proxyAddresses[token]
	return addr, ok
}

// getState returns the persisted state for poolID, if any, under the
// read lock.
func (s *sharedState) getState(poolID component.PoolID) (component.ProtocolSim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sim, ok := s.states[poolID]
	return sim, ok
}

// commit merges updated into the persistent state store.
func (s *sharedState) commit(updated map[component.PoolID]component.ProtocolSim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sim := range updated {
		s.states[id] = sim
	}
}
