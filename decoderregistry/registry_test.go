package decoderregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/feed"
)

type stubSim struct{ component.ProtocolSim }

func TestRegisterAndResolveDecoder(t *testing.T) {
	reg := New()

	_, ok := reg.Factory("uniswap_v2")
	assert.False(t, ok)

	called := false
	reg.RegisterDecoder("uniswap_v2", func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, balances map[common.Address]map[string][]byte, state SharedState) (component.ProtocolSim, error) {
		called = true
		return stubSim{}, nil
	})

	factory, ok := reg.Factory("uniswap_v2")
	require.True(t, ok)

	_, err := factory(context.Background(), feed.ComponentWithState{}, feed.Header{}, nil, nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestFactoryPropagatesInvalidSnapshotError(t *testing.T) {
	reg := New()
	reg.RegisterDecoder("uniswap_v2", func(ctx context.Context, snapshot feed.ComponentWithState, header feed.Header, balances map[common.Address]map[string][]byte, state SharedState) (component.ProtocolSim, error) {
		return nil, &InvalidSnapshotError{Exchange: "uniswap_v2", PoolID: "p1", Reason: "missing attributes reserve0"}
	})

	factory, _ := reg.Factory("uniswap_v2")
	_, err := factory(context.Background(), feed.ComponentWithState{}, feed.Header{}, nil, nil)

	var invalid *InvalidSnapshotError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "missing attributes reserve0", invalid.Error())
}

func TestIncludedDefaultsToTrueWithoutFilter(t *testing.T) {
	reg := New()
	assert.True(t, reg.Included("uniswap_v2", feed.ComponentWithState{}))
}

func TestIncludedUsesRegisteredFilter(t *testing.T) {
	reg := New()
	reg.RegisterFilter("uniswap_v2", func(snapshot feed.ComponentWithState) bool {
		return snapshot.Component.ID == "allowed"
	})

	assert.True(t, reg.Included("uniswap_v2", feed.ComponentWithState{Component: feed.RawComponent{ID: "allowed"}}))
	assert.False(t, reg.Included("uniswap_v2", feed.ComponentWithState{Component: feed.RawComponent{ID: "denied"}}))
}

func TestMissingRegistrationError(t *testing.T) {
	err := &MissingRegistrationError{Exchange: "curve"}
	assert.Contains(t, err.Error(), "curve")
}
