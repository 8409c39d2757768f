// Package tokens implements the decoder's Token Registry: the
// process-lifetime mapping from token address to token metadata that
// gates whether a pool is decodable at all.
package tokens

import "github.com/ethereum/go-ethereum/common"

// Token is a safe, immutable-after-insertion representation of an
// ERC20-like token's metadata, as reported by the upstream feed.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	// GasCost is the gas units the feed reports for a transfer of this
	// token; fee-on-transfer and rebasing tokens carry elevated values.
	GasCost uint64 `json:"gasCost"`
	// Quality is the feed's confidence score for this token, 0-100.
	// Tokens below DecoderConfig.MinTokenQuality are never ingested.
	Quality uint32 `json:"quality"`
	Chain   string `json:"chain"`
}
