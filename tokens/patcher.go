package tokens

import "github.com/ethereum/go-ethereum/common"

// Patcher reconstructs the next token registry snapshot by applying a
// Diff to the previous one. Deletions are processed first so an
// address appearing in both Deletions and Additions within the same
// diff still ends up present (an addition always wins).
func Patcher(prev map[common.Address]Token, diff Diff) (map[common.Address]Token, error) {
	next := make(map[common.Address]Token, len(prev))
	for addr, tok := range prev {
		next[addr] = tok
	}

	for _, addr := range diff.Deletions {
		delete(next, addr)
	}
	for _, tok := range diff.Updates {
		next[tok.Address] = tok
	}
	for _, tok := range diff.Additions {
		next[tok.Address] = tok
	}

	return next, nil
}
