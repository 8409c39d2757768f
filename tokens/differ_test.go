package tokens

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffer(t *testing.T) {
	weth := Token{Address: addr("0x1"), Symbol: "WETH", Quality: 100, GasCost: 21000}
	usdc := Token{Address: addr("0x2"), Symbol: "USDC", Quality: 100, GasCost: 35000}
	dai := Token{Address: addr("0x3"), Symbol: "DAI", Quality: 90, GasCost: 40000}

	toMap := func(toks ...Token) map[common.Address]Token {
		m := make(map[common.Address]Token, len(toks))
		for _, tok := range toks {
			m[tok.Address] = tok
		}
		return m
	}

	t.Run("identifies additions", func(t *testing.T) {
		diff := Differ(toMap(weth), toMap(weth, usdc))

		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
		require.Len(t, diff.Additions, 1)
		assert.Equal(t, usdc.Address, diff.Additions[0].Address)
	})

	t.Run("identifies deletions", func(t *testing.T) {
		diff := Differ(toMap(weth, usdc), toMap(weth))

		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
		require.Len(t, diff.Deletions, 1)
		assert.Equal(t, usdc.Address, diff.Deletions[0])
	})

	t.Run("identifies updates on quality change", func(t *testing.T) {
		wethLowered := weth
		wethLowered.Quality = 60

		diff := Differ(toMap(weth), toMap(wethLowered))

		require.Len(t, diff.Updates, 1)
		assert.Equal(t, uint32(60), diff.Updates[0].Quality)
	})

	t.Run("identifies updates on gas cost change", func(t *testing.T) {
		wethHeavier := weth
		wethHeavier.GasCost = 22000

		diff := Differ(toMap(weth), toMap(wethHeavier))

		require.Len(t, diff.Updates, 1)
		assert.Equal(t, uint64(22000), diff.Updates[0].GasCost)
	})

	t.Run("mix of additions updates and deletions", func(t *testing.T) {
		wethUpdated := weth
		wethUpdated.GasCost = 21001

		diff := Differ(toMap(weth, usdc, dai), toMap(wethUpdated, usdc))

		require.Len(t, diff.Deletions, 1)
		assert.Equal(t, dai.Address, diff.Deletions[0])
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, wethUpdated.GasCost, diff.Updates[0].GasCost)
		assert.Empty(t, diff.Additions)
	})

	t.Run("no changes produces empty diff", func(t *testing.T) {
		diff := Differ(toMap(weth, usdc), toMap(weth, usdc))
		assert.True(t, diff.IsEmpty())
	})
}
