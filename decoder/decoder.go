// Package decoder implements the Tick Decoder (spec §4.5) and
// Apply-Update Reducer (spec §4.6): the core transformer that converts
// one upstream FeedMessage into a coherent BlockUpdate, maintaining the
// token-proxying scheme and the contracts-to-pools fan-out index along
// the way.
package decoder

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/contractindex"
	"github.com/defistate/stream-decoder/decoderregistry"
	"github.com/defistate/stream-decoder/feed"
	"github.com/defistate/stream-decoder/proxyaddr"
	"github.com/defistate/stream-decoder/storagesink"
	"github.com/defistate/stream-decoder/tokens"
)

// Config carries the decoder's tunables (spec §6 Configuration).
type Config struct {
	// SkipStateDecodeFailures, if true, turns per-pool parse/decode/
	// registration failures into a logged skip rather than a fatal tick
	// abort.
	SkipStateDecodeFailures bool
	// MinTokenQuality gates which feed-reported tokens are ever
	// ingested into the Token Registry.
	MinTokenQuality uint32
	// TokenConverter turns a tokens.RawToken into a tokens.Token. A nil
	// value defaults to parsing Address as a hex string and passing the
	// remaining fields through unchanged.
	TokenConverter func(tokens.RawToken) (tokens.Token, error)
}

func (c Config) tokenConverter() func(tokens.RawToken) (tokens.Token, error) {
	if c.TokenConverter != nil {
		return c.TokenConverter
	}
	return defaultTokenConverter
}

func defaultTokenConverter(rt tokens.RawToken) (tokens.Token, error) {
	if !common.IsHexAddress(rt.Address) {
		return tokens.Token{}, fmt.Errorf("invalid token address %q", rt.Address)
	}
	return tokens.Token{
		Address:  common.HexToAddress(rt.Address),
		Symbol:   rt.Symbol,
		Decimals: rt.Decimals,
		GasCost:  rt.GasCost,
		Quality:  rt.Quality,
		Chain:    rt.Chain,
	}, nil
}

// Decoder is the protocol-stream decoder core.
type Decoder struct {
	cfg      Config
	registry *decoderregistry.Registry
	engine   storagesink.Engine
	metrics  *Metrics
	logger   Logger
	state    *sharedState
}

// New constructs a Decoder. registry and engine are required
// collaborators; reg registers the decoder's Prometheus metrics.
func New(cfg Config, registry *decoderregistry.Registry, engine storagesink.Engine, reg prometheus.Registerer, logger Logger) *Decoder {
	return &Decoder{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		metrics:  NewMetrics(reg),
		logger:   logger,
		state:    newSharedState(),
	}
}

// SetTokens replaces the token registry wholesale. Safe to call before
// the first Decode, or between ticks; setting the same map twice is
// idempotent.
func (d *Decoder) SetTokens(all map[common.Address]tokens.Token) {
	d.state.setTokens(all)
}

// Decode runs the Tick Decoder algorithm over one FeedMessage and
// returns the resulting BlockUpdate. A fatal error aborts the tick
// entirely: no partial BlockUpdate is ever returned alongside an error.
func (d *Decoder) Decode(ctx context.Context, msg feed.FeedMessage) (component.BlockUpdate, error) {
	timer := prometheus.NewTimer(d.metrics.tickDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if len(msg.StateMsgs) == 0 {
		d.metrics.fatalTicks.Inc()
		return component.BlockUpdate{}, ErrMissingBlock
	}

	protocols := make([]string, 0, len(msg.StateMsgs))
	for name := range msg.StateMsgs {
		protocols = append(protocols, name)
	}
	sort.Strings(protocols)

	var header feed.Header
	for _, name := range protocols {
		header = msg.StateMsgs[name].Header
		break
	}

	updatedStates := make(map[component.PoolID]component.ProtocolSim)
	newPairs := make(map[component.PoolID]component.ProtocolComponent)
	removedPairs := make(map[component.PoolID]component.ProtocolComponent)
	draft := contractindex.NewDraft()

	for _, exchange := range protocols {
		pm := msg.StateMsgs[exchange]

		if err := d.ingestTokens(pm); err != nil {
			d.metrics.fatalTicks.Inc()
			return component.BlockUpdate{}, err
		}

		if err := d.collectRemovedComponents(pm, removedPairs); err != nil {
			d.metrics.fatalTicks.Inc()
			return component.BlockUpdate{}, err
		}

		accountBalances, err := d.primeSnapshotAccounts(ctx, pm)
		if err != nil {
			d.metrics.fatalTicks.Inc()
			return component.BlockUpdate{}, err
		}

		if err := d.decodeSnapshots(ctx, exchange, pm, accountBalances, newPairs, updatedStates, draft); err != nil {
			d.metrics.fatalTicks.Inc()
			return component.BlockUpdate{}, err
		}

		if err := d.applyDeltas(ctx, pm, updatedStates, draft); err != nil {
			d.metrics.fatalTicks.Inc()
			return component.BlockUpdate{}, err
		}
	}

	d.state.commit(updatedStates)
	d.state.contracts.Merge(draft)

	return component.NewBlockUpdate(header.Number, updatedStates, newPairs).WithRemovedPairs(removedPairs), nil
}

// ingestTokens implements step 2a: merge qualifying new tokens from
// this protocol message's deltas into the registry.
func (d *Decoder) ingestTokens(pm feed.ProtocolMessage) error {
	if pm.Deltas == nil || len(pm.Deltas.NewTokens) == 0 {
		return nil
	}
	added := d.state.extendTokens(pm.Deltas.NewTokens, d.cfg.MinTokenQuality, d.cfg.tokenConverter(), d.logger)
	d.metrics.tokensIngested.Add(float64(added))
	return nil
}

// collectRemovedComponents implements step 2b.
func (d *Decoder) collectRemovedComponents(pm feed.ProtocolMessage, removedPairs map[component.PoolID]component.ProtocolComponent) error {
	for raw, comp := range pm.RemovedComponents {
		poolID, err := component.ParsePoolID(raw)
		if err != nil {
			if d.cfg.SkipStateDecodeFailures {
				d.logger.Warn("dropping removed component with unparseable id", "id", raw, "error", err)
				continue
			}
			return badComponentID(raw, err)
		}

		resolved := make([]tokens.Token, 0, len(comp.TokenAddresses))
		for _, addr := range comp.TokenAddresses {
			tok, ok := d.state.resolveToken(addr)
			if !ok {
				break
			}
			resolved = append(resolved, tok)
		}
		if len(resolved) != len(comp.TokenAddresses) {
			// the component was never admitted in the first place; a
			// removal for it is not observable.
			continue
		}

		removedPairs[poolID] = component.NewWithTokens(poolID, comp.ProtocolSystem, comp.ProtocolTypeName, comp.Chain, resolved, comp.ContractIDs, comp.StaticAttributes, comp.CreationTx, unixOrZero(comp.CreatedAt))
	}
	return nil
}

// primeSnapshotAccounts implements steps 2c-2e: rewrites token
// accounts onto their proxy address, extracts the per-account token
// balance view, and primes the storage engine before any factory runs.
func (d *Decoder) primeSnapshotAccounts(ctx context.Context, pm feed.ProtocolMessage) (map[common.Address]map[string][]byte, error) {
	storageByAddress := make(map[common.Address]feed.ResponseAccount, len(pm.Snapshots.VMStorage))
	tokenProxyAccounts := make(map[common.Address]feed.AccountUpdate)

	for addr, acc := range pm.Snapshots.GetVMStorage() {
		rewritten := d.rewriteForProxy(addr, acc.Slots, acc.Chain, tokenProxyAccounts)
		acc.Address = rewritten
		storageByAddress[rewritten] = acc
	}

	accountBalances := make(map[common.Address]map[string][]byte)
	for addr, acc := range pm.Snapshots.GetVMStorage() {
		// balances are reported against the original address regardless
		// of any proxy rewrite: the simulation engine's own storage view
		// has already been relocated, but callers key balances by the
		// real-world account.
		if len(acc.TokenBalances) == 0 {
			continue
		}
		out := make(map[string][]byte, len(acc.TokenBalances))
		for tokenAddr, bal := range acc.TokenBalances {
			out[tokenAddr.Hex()] = bal
		}
		accountBalances[addr] = out
	}

	if err := d.engine.Update(ctx, pm.Header, storageByAddress, tokenProxyAccounts); err != nil {
		return nil, fmt.Errorf("priming storage engine with snapshot accounts: %w", err)
	}
	return accountBalances, nil
}

// decodeSnapshots implements step 2f.
func (d *Decoder) decodeSnapshots(ctx context.Context, exchange string, pm feed.ProtocolMessage, accountBalances map[common.Address]map[string][]byte, newPairs map[component.PoolID]component.ProtocolComponent, updatedStates map[component.PoolID]component.ProtocolSim, draft *contractindex.Draft) error {
	states := pm.Snapshots.GetStates()
	poolIDs := make([]component.PoolID, 0, len(states))
	for id := range states {
		poolIDs = append(poolIDs, id)
	}
	sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })

outer:
	for _, poolID := range poolIDs {
		snapshot := states[poolID]

		if !d.registry.Included(exchange, snapshot) {
			continue
		}

		resolvedTokens := make([]tokens.Token, 0, len(snapshot.Component.TokenAddresses))
		stubAccounts := make(map[common.Address]feed.AccountUpdate)
		for _, tokenAddr := range snapshot.Component.TokenAddresses {
			tok, ok := d.state.resolveToken(tokenAddr)
			if !ok {
				d.metrics.poolsSkipped.Inc()
				d.logger.Debug("token not found, skipping pool", "token", tokenAddr, "pool", poolID)
				continue outer
			}
			resolvedTokens = append(resolvedTokens, tok)

			if _, proxied := d.state.lookupProxy(tokenAddr); !proxied {
				stubAccounts[tokenAddr] = feed.AccountUpdate{
					Address: tokenAddr,
					Chain:   snapshot.Component.Chain,
					Slots:   map[common.Hash]*big.Int{},
					Code:    proxyaddr.ERC20ProxyBytecode,
					Change:  feed.ChangeCreation,
				}
			}
		}

		if len(stubAccounts) > 0 {
			if err := d.engine.Update(ctx, pm.Header, nil, stubAccounts); err != nil {
				return fmt.Errorf("priming storage engine with token stub accounts: %w", err)
			}
		}

		comp := component.NewWithTokens(poolID, snapshot.Component.ProtocolSystem, snapshot.Component.ProtocolTypeName, snapshot.Component.Chain, resolvedTokens, snapshot.Component.ContractIDs, snapshot.Component.StaticAttributes, snapshot.Component.CreationTx, unixOrZero(snapshot.Component.CreatedAt))

		if comp.HasManualUpdates() {
			for _, contract := range comp.ContractIDs {
				draft.AddEdge(contract, poolID)
			}
		}
		newPairs[poolID] = comp

		factory, ok := d.registry.Factory(exchange)
		if !ok {
			if d.cfg.SkipStateDecodeFailures {
				d.logger.Warn("missing decoder registration", "pool", poolID, "exchange", exchange)
				continue
			}
			return decodeFailed(exchange, poolID, &decoderregistry.MissingRegistrationError{Exchange: exchange})
		}

		sim, err := factory(ctx, snapshot, pm.Header, accountBalances, d.state)
		if err != nil {
			if d.cfg.SkipStateDecodeFailures {
				d.logger.Warn("state decoding failure", "pool", poolID, "error", err)
				continue
			}
			return decodeFailed(exchange, poolID, err)
		}
		updatedStates[poolID] = sim
		d.metrics.poolsDecoded.Inc()
	}
	return nil
}

// applyDeltas implements steps 2g-2k.
func (d *Decoder) applyDeltas(ctx context.Context, pm feed.ProtocolMessage, updatedStates map[component.PoolID]component.ProtocolSim, draft *contractindex.Draft) error {
	if pm.Deltas == nil {
		return nil
	}
	deltas := pm.Deltas

	tokenProxyAccounts := make(map[common.Address]feed.AccountUpdate)
	accountUpdateByAddress := make(map[common.Address]feed.AccountUpdate)
	for addr, upd := range deltas.AccountUpdates {
		rewritten := d.rewriteForProxy(addr, upd.Slots, upd.Chain, tokenProxyAccounts)
		upd.Address = rewritten
		accountUpdateByAddress[rewritten] = upd
	}
	for addr, upd := range accountUpdateByAddress {
		tokenProxyAccounts[addr] = upd
	}

	if err := d.engine.Update(ctx, pm.Header, nil, tokenProxyAccounts); err != nil {
		return fmt.Errorf("priming storage engine with delta accounts: %w", err)
	}

	poolsToUpdate := make(map[component.PoolID]struct{})
	for addr := range deltas.AccountUpdates {
		for _, p := range draft.Lookup(addr).ToSlice() {
			poolsToUpdate[p] = struct{}{}
		}
		for _, p := range d.state.contracts.Lookup(addr).ToSlice() {
			poolsToUpdate[p] = struct{}{}
		}
	}

	componentBalances := make(map[component.PoolID]map[string][]byte, len(deltas.ComponentBalances))
	for poolID, bals := range deltas.ComponentBalances {
		componentBalances[poolID] = bals
		poolsToUpdate[poolID] = struct{}{}
	}
	accountBalances := make(map[common.Address]map[string][]byte, len(deltas.AccountBalances))
	for addr, bals := range deltas.AccountBalances {
		accountBalances[addr] = bals
		for _, p := range draft.Lookup(addr).ToSlice() {
			poolsToUpdate[p] = struct{}{}
		}
	}
	allBalances := component.Balances{ComponentBalances: componentBalances, AccountBalances: accountBalances}

	tokenView := d.state.Tokens()

	stateUpdateIDs := make([]component.PoolID, 0, len(deltas.StateUpdates))
	for id := range deltas.StateUpdates {
		stateUpdateIDs = append(stateUpdateIDs, id)
	}
	sort.Slice(stateUpdateIDs, func(i, j int) bool { return stateUpdateIDs[i] < stateUpdateIDs[j] })

	for _, poolID := range stateUpdateIDs {
		delta := deltas.StateUpdates[poolID]
		if err := applyUpdate(delta, updatedStates, d.state, tokenView, allBalances, d.logger); err != nil {
			return err
		}
		delete(poolsToUpdate, poolID)
	}

	remaining := make([]component.PoolID, 0, len(poolsToUpdate))
	for id := range poolsToUpdate {
		remaining = append(remaining, id)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })
	d.metrics.fanoutSize.Observe(float64(len(remaining)))

	for _, poolID := range remaining {
		empty := component.ProtocolStateDelta{ComponentID: poolID}
		if err := applyUpdate(empty, updatedStates, d.state, tokenView, allBalances, d.logger); err != nil {
			return err
		}
	}

	return nil
}

// rewriteForProxy implements the proxy-rewrite step shared by snapshot
// account processing (§4.5c) and delta account processing (§4.5g): if
// addr is a known token, its reads are relocated to a (possibly newly
// minted) proxy address, and a redirecting stub account is staged at
// addr itself.
func (d *Decoder) rewriteForProxy(addr common.Address, slots map[common.Hash]*big.Int, chain string, proxyAccounts map[common.Address]feed.AccountUpdate) common.Address {
	if _, known := d.state.resolveToken(addr); !known {
		return addr
	}

	proxy, _ := d.state.ensureProxy(addr)

	carried := make(map[common.Hash]uint256.Int, len(slots))
	for slot, val := range slots {
		carried[slot] = *uint256.MustFromBig(val)
	}
	builtSlots := proxyaddr.Account(proxy, carried)

	bigSlots := make(map[common.Hash]*big.Int, len(builtSlots))
	for slot, val := range builtSlots {
		bigSlots[slot] = val.ToBig()
	}

	proxyAccounts[addr] = feed.AccountUpdate{
		Address: addr,
		Chain:   chain,
		Slots:   bigSlots,
		Code:    proxyaddr.ERC20ProxyBytecode,
		Change:  feed.ChangeCreation,
	}
	return proxy
}

func unixOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
