package tokens

import "github.com/ethereum/go-ethereum/common"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RawToken is the feed's pre-conversion shape for a token delta: enough
// to quality-gate it before the (possibly fallible) conversion into a
// Token is attempted. Address is carried as the feed's raw hex string
// since it may fail to parse.
type RawToken struct {
	Address  string
	Symbol   string
	Decimals uint8
	GasCost  uint64
	Quality  uint32
	Chain    string
}

// Registry is the leaf logic for the Token Registry described in
// spec §4.2. It is intentionally lock-free: the decoder owns the single
// reader/writer lock that guards all of its shared state (spec §5), and
// calls these functions while holding it, the same way
// `original_source/src/evm/decoder.rs` keeps `tokens` as a plain field
// on `DecoderState` rather than giving it its own lock.

// SetTokens returns a fresh map holding a copy of all, replacing the
// registry's contents wholesale. Setting the same map twice is
// idempotent.
func SetTokens(all map[common.Address]Token) map[common.Address]Token {
	next := make(map[common.Address]Token, len(all))
	for k, v := range all {
		next[k] = v
	}
	return next
}

// ExtendFromDeltas merges newly observed tokens into existing in place.
// Only tokens whose quality meets minQuality and whose address is not
// already present are added; a token failing conversion via convert is
// logged and silently dropped, never fatal. Returns the number of
// tokens added.
func ExtendFromDeltas(
	existing map[common.Address]Token,
	raw []RawToken,
	minQuality uint32,
	convert func(RawToken) (Token, error),
	logger Logger,
) int {
	added := 0
	for _, rt := range raw {
		if rt.Quality < minQuality {
			continue
		}
		tok, err := convert(rt)
		if err != nil {
			if logger != nil {
				logger.Warn("failed decoding token", "address", rt.Address, "error", err)
			}
			continue
		}
		if _, ok := existing[tok.Address]; ok {
			continue
		}
		existing[tok.Address] = tok
		added++
	}
	return added
}

// Get resolves a single token by address from a registry snapshot.
func Get(tokens map[common.Address]Token, addr common.Address) (Token, bool) {
	t, ok := tokens[addr]
	return t, ok
}
