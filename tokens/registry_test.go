package tokens

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(h string) common.Address { return common.HexToAddress(h) }

func TestSetTokens(t *testing.T) {
	weth := Token{Address: addr("0x1"), Symbol: "WETH"}
	orig := map[common.Address]Token{weth.Address: weth}

	copied := SetTokens(orig)
	require.Equal(t, orig, copied)

	copied[addr("0x2")] = Token{Address: addr("0x2"), Symbol: "USDC"}
	assert.Len(t, orig, 1, "mutating the copy must not affect the source map")
}

func TestExtendFromDeltas(t *testing.T) {
	convert := func(rt RawToken) (Token, error) {
		if rt.Symbol == "BAD" {
			return Token{}, errors.New("boom")
		}
		return Token{
			Address: common.HexToAddress(rt.Address),
			Symbol:  rt.Symbol,
			Quality: rt.Quality,
		}, nil
	}

	t.Run("drops tokens below min quality", func(t *testing.T) {
		existing := map[common.Address]Token{}
		raw := []RawToken{{Address: "0x1", Symbol: "WETH", Quality: 10}}

		added := ExtendFromDeltas(existing, raw, 51, convert, nil)

		assert.Equal(t, 0, added)
		assert.Empty(t, existing)
	})

	t.Run("skips tokens already present", func(t *testing.T) {
		existing := map[common.Address]Token{addr("0x1"): {Address: addr("0x1"), Symbol: "WETH", Quality: 100}}
		raw := []RawToken{{Address: "0x1", Symbol: "WETH-dup", Quality: 100}}

		added := ExtendFromDeltas(existing, raw, 51, convert, nil)

		assert.Equal(t, 0, added)
		assert.Equal(t, "WETH", existing[addr("0x1")].Symbol)
	})

	t.Run("drops tokens that fail conversion without error", func(t *testing.T) {
		existing := map[common.Address]Token{}
		raw := []RawToken{{Address: "0x2", Symbol: "BAD", Quality: 100}}

		added := ExtendFromDeltas(existing, raw, 51, convert, nil)

		assert.Equal(t, 0, added)
		assert.Empty(t, existing)
	})

	t.Run("adds qualifying new tokens", func(t *testing.T) {
		existing := map[common.Address]Token{}
		raw := []RawToken{
			{Address: "0x1", Symbol: "WETH", Quality: 100},
			{Address: "0x2", Symbol: "USDC", Quality: 60},
		}

		added := ExtendFromDeltas(existing, raw, 51, convert, nil)

		assert.Equal(t, 2, added)
		assert.Len(t, existing, 2)
	})
}

func TestGet(t *testing.T) {
	weth := Token{Address: addr("0x1"), Symbol: "WETH"}
	m := map[common.Address]Token{weth.Address: weth}

	got, ok := Get(m, addr("0x1"))
	require.True(t, ok)
	assert.Equal(t, weth, got)

	_, ok = Get(m, addr("0x2"))
	assert.False(t, ok)
}
