package decoder

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/decoderregistry"
	"github.com/defistate/stream-decoder/feed"
	"github.com/defistate/stream-decoder/storagesink"
	"github.com/defistate/stream-decoder/tokens"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type mockSim struct {
	deltaCalls int
	lastDelta  component.ProtocolStateDelta
}

func (m *mockSim) DeltaTransition(delta component.ProtocolStateDelta, _ map[common.Address]tokens.Token, _ component.Balances) error {
	m.deltaCalls++
	m.lastDelta = delta
	return nil
}
func (m *mockSim) Clone() component.ProtocolSim                    { return &mockSim{} }
func (m *mockSim) Fee() *big.Int                                   { return big.NewInt(0) }
func (m *mockSim) SpotPrice(common.Address, common.Address) (*big.Int, error) { return big.NewInt(0), nil }
func (m *mockSim) GetAmountOut(common.Address, *big.Int, common.Address) (component.GetAmountOutResult, error) {
	return component.GetAmountOutResult{}, nil
}

var (
	weth = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	usdt = common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec")
)

func newTestDecoder(t *testing.T, cfg Config) (*Decoder, *storagesink.MemoryEngine, *decoderregistry.Registry) {
	t.Helper()
	registry := decoderregistry.New()
	engine := storagesink.NewMemoryEngine()
	d := New(cfg, registry, engine, prometheus.NewRegistry(), nopLogger{})
	return d, engine, registry
}

func snapshotMsg(header feed.Header, poolID component.PoolID, tokenAddrs []common.Address, contractIDs []common.Address, manualUpdates bool) feed.ProtocolMessage {
	attrs := map[string][]byte{}
	if manualUpdates {
		attrs[component.ManualUpdatesAttribute] = []byte{1}
	}
	return feed.ProtocolMessage{
		Header: header,
		Snapshots: feed.Snapshots{
			States: map[component.PoolID]feed.ComponentWithState{
				poolID: {
					Component: feed.RawComponent{
						ID:               poolID,
						ProtocolSystem:   "uniswap_v2",
						ProtocolTypeName: "pool",
						Chain:            "ethereum",
						TokenAddresses:   tokenAddrs,
						ContractIDs:      contractIDs,
						StaticAttributes: attrs,
					},
				},
			},
		},
	}
}

func TestDecodeMissingBlockIsFatal(t *testing.T) {
	d, _, _ := newTestDecoder(t, Config{MinTokenQuality: 51})

	_, err := d.Decode(context.Background(), feed.FeedMessage{})

	assert.ErrorIs(t, err, ErrMissingBlock)
}

func TestDecodeSnapshotThenDelta(t *testing.T) {
	d, _, registry := newTestDecoder(t, Config{MinTokenQuality: 51})
	d.SetTokens(map[common.Address]tokens.Token{
		weth: {Address: weth, Symbol: "WETH", Quality: 100},
		usdt: {Address: usdt, Symbol: "USDT", Quality: 100},
	})
	registry.RegisterDecoder("uniswap_v2", func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, balances map[common.Address]map[string][]byte, state decoderregistry.SharedState) (component.ProtocolSim, error) {
		return &mockSim{}, nil
	})

	msg1 := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
		"uniswap_v2": snapshotMsg(feed.Header{Number: 1}, "p1", []common.Address{weth, usdt}, nil, false),
	}}

	update1, err := d.Decode(context.Background(), msg1)
	require.NoError(t, err)
	assert.Len(t, update1.States, 1)
	assert.Contains(t, update1.NewPairs, component.PoolID("p1"))

	msg2 := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
		"uniswap_v2": {
			Header: feed.Header{Number: 2},
			Deltas: &feed.Deltas{
				StateUpdates: map[component.PoolID]component.ProtocolStateDelta{
					"p1": {ComponentID: "p1", UpdatedAttributes: map[string][]byte{"reserve0": {1}}},
				},
			},
		},
	}}

	update2, err := d.Decode(context.Background(), msg2)
	require.NoError(t, err)
	assert.Len(t, update2.States, 1)
}

func TestDecodeSkipsPoolWithUnresolvedToken(t *testing.T) {
	d, _, registry := newTestDecoder(t, Config{MinTokenQuality: 51})
	d.SetTokens(map[common.Address]tokens.Token{weth: {Address: weth, Symbol: "WETH", Quality: 100}})
	registry.RegisterDecoder("uniswap_v2", func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, balances map[common.Address]map[string][]byte, state decoderregistry.SharedState) (component.ProtocolSim, error) {
		return &mockSim{}, nil
	})

	msg := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
		"uniswap_v2": snapshotMsg(feed.Header{Number: 1}, "p1", []common.Address{weth, usdt}, nil, false),
	}}

	update, err := d.Decode(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, update.States)
	assert.Empty(t, update.NewPairs)
}

func TestDecodeBadRemovedComponentID(t *testing.T) {
	t.Run("fatal when not tolerant", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, Config{SkipStateDecodeFailures: false, MinTokenQuality: 51})

		msg := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
			"uniswap_v2": {
				Header:            feed.Header{Number: 1},
				RemovedComponents: map[string]feed.RawComponent{"Z123": {TokenAddresses: []common.Address{weth}}},
			},
		}}

		_, err := d.Decode(context.Background(), msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse bytes")
	})

	t.Run("dropped when tolerant", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, Config{SkipStateDecodeFailures: true, MinTokenQuality: 51})

		msg := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
			"uniswap_v2": {
				Header:            feed.Header{Number: 1},
				RemovedComponents: map[string]feed.RawComponent{"Z123": {TokenAddresses: []common.Address{weth}}},
			},
		}}

		update, err := d.Decode(context.Background(), msg)
		require.NoError(t, err)
		assert.Empty(t, update.RemovedPairs)
	})
}

func TestDecodeInvalidSnapshot(t *testing.T) {
	t.Run("fatal when not tolerant", func(t *testing.T) {
		d, _, registry := newTestDecoder(t, Config{SkipStateDecodeFailures: false, MinTokenQuality: 51})
		d.SetTokens(map[common.Address]tokens.Token{weth: {Address: weth, Symbol: "WETH", Quality: 100}})
		registry.RegisterDecoder("uniswap_v2", func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, balances map[common.Address]map[string][]byte, state decoderregistry.SharedState) (component.ProtocolSim, error) {
			return nil, &decoderregistry.InvalidSnapshotError{Reason: "missing attributes reserve0"}
		})

		msg := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
			"uniswap_v2": snapshotMsg(feed.Header{Number: 1}, "p1", []common.Address{weth}, nil, false),
		}}

		_, err := d.Decode(context.Background(), msg)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "missing attributes reserve0"))
	})

	t.Run("skipped when tolerant", func(t *testing.T) {
		d, _, registry := newTestDecoder(t, Config{SkipStateDecodeFailures: true, MinTokenQuality: 51})
		d.SetTokens(map[common.Address]tokens.Token{weth: {Address: weth, Symbol: "WETH", Quality: 100}})
		registry.RegisterDecoder("uniswap_v2", func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, balances map[common.Address]map[string][]byte, state decoderregistry.SharedState) (component.ProtocolSim, error) {
			return nil, &decoderregistry.InvalidSnapshotError{Reason: "missing attributes reserve0"}
		})

		msg := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
			"uniswap_v2": snapshotMsg(feed.Header{Number: 1}, "p1", []common.Address{weth}, nil, false),
		}}

		update, err := d.Decode(context.Background(), msg)
		require.NoError(t, err)
		assert.Empty(t, update.States)
	})
}

func TestDecodeFanoutAppliesEmptyDeltaExactlyOnce(t *testing.T) {
	d, _, registry := newTestDecoder(t, Config{MinTokenQuality: 51})
	d.SetTokens(map[common.Address]tokens.Token{weth: {Address: weth, Symbol: "WETH", Quality: 100}})

	contractC := common.HexToAddress("0xC1")
	sim1 := &mockSim{}
	registry.RegisterDecoder("uniswap_v2", func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, balances map[common.Address]map[string][]byte, state decoderregistry.SharedState) (component.ProtocolSim, error) {
		return sim1, nil
	})

	msg1 := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
		"uniswap_v2": snapshotMsg(feed.Header{Number: 1}, "p1", []common.Address{weth}, []common.Address{contractC}, true),
	}}
	_, err := d.Decode(context.Background(), msg1)
	require.NoError(t, err)

	msg2 := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
		"uniswap_v2": {
			Header: feed.Header{Number: 2},
			Deltas: &feed.Deltas{
				AccountUpdates: map[common.Address]feed.AccountUpdate{
					contractC: {Address: contractC, Chain: "ethereum"},
				},
			},
		},
	}}
	update2, err := d.Decode(context.Background(), msg2)
	require.NoError(t, err)

	assert.Equal(t, 0, sim1.deltaCalls, "the persisted state itself must not be mutated by a fanout delta")
	require.Contains(t, update2.States, component.PoolID("p1"))
	clone := update2.States["p1"].(*mockSim)
	assert.Equal(t, 1, clone.deltaCalls)
	assert.Empty(t, clone.lastDelta.UpdatedAttributes)
	assert.Empty(t, clone.lastDelta.DeletedAttributes)
}
