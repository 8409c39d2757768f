package tokens

import "github.com/ethereum/go-ethereum/common"

// Diff is the wire-distributable delta between two Token Registry
// snapshots, keyed by address rather than a synthetic numeric ID since
// a token's address is its identity.
type Diff struct {
	Additions []Token          `json:"additions,omitempty"`
	Updates   []Token          `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ computes the difference between two snapshots of the token
// registry. A token present in both with an unchanged Quality and
// GasCost counts as unchanged; either field changing counts as an
// update.
func Differ(old, new map[common.Address]Token) Diff {
	var additions, updates []Token
	var deletions []common.Address

	for addr, newToken := range new {
		oldToken, exists := old[addr]
		if !exists {
			additions = append(additions, newToken)
			continue
		}
		if oldToken.Quality != newToken.Quality || oldToken.GasCost != newToken.GasCost {
			updates = append(updates, newToken)
		}
	}

	for addr := range old {
		if _, exists := new[addr]; !exists {
			deletions = append(deletions, addr)
		}
	}

	return Diff{Additions: additions, Updates: updates, Deletions: deletions}
}
