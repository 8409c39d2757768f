package decoder

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/tokens"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// applyUpdate is the Apply-Update Reducer (spec §4.6). If poolID
// already has an entry in updated (this tick already touched it), the
// delta transitions that entry in place. Otherwise, if the persistent
// state store has a prior state, it is deep-cloned, transitioned, and
// inserted into updated. If neither holds, the update is dropped with
// a debug log: a fanout edge pointing at a pool the store has never
// seen is not an error.
//
// Any DeltaTransition error is fatal and aborts the entire tick.
func applyUpdate(
	delta component.ProtocolStateDelta,
	updated map[component.PoolID]component.ProtocolSim,
	store *sharedState,
	tokenView map[common.Address]tokens.Token,
	balances component.Balances,
	logger Logger,
) error {
	poolID := delta.ComponentID

	if sim, ok := updated[poolID]; ok {
		if err := sim.DeltaTransition(delta, tokenView, balances); err != nil {
			return deltaTransitionFailed(poolID, err)
		}
		return nil
	}

	if persisted, ok := store.getState(poolID); ok {
		clone := persisted.Clone()
		if err := clone.DeltaTransition(delta, tokenView, balances); err != nil {
			return deltaTransitionFailed(poolID, err)
		}
		updated[poolID] = clone
		return nil
	}

	logger.Debug("missing state for pool delta, ignoring", "pool", poolID)
	return nil
}
