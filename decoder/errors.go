package decoder

import (
	"fmt"

	"github.com/defistate/stream-decoder/component"
)

// FatalError aborts the entire tick. Per spec §7, no partial
// BlockUpdate is ever emitted once one occurs.
type FatalError struct {
	msg string
}

func (e *FatalError) Error() string { return e.msg }

func fatalf(format string, args ...any) *FatalError {
	return &FatalError{msg: fmt.Sprintf(format, args...)}
}

// ErrMissingBlock is returned when a FeedMessage carries no protocol
// messages at all, so no block header can be established.
var ErrMissingBlock = fatalf("missing block header: feed message contained no state messages")

// badComponentID wraps a removed-component identifier parse failure.
func badComponentID(raw string, err error) *FatalError {
	return fatalf("failed to parse bytes %q: %v", raw, err)
}

// deltaTransitionFailed wraps a fatal ProtocolSim.DeltaTransition
// error: a state machine refusing an update corrupts invariants, so
// this is never tolerated regardless of configuration.
func deltaTransitionFailed(poolID component.PoolID, err error) *FatalError {
	return fatalf("delta transition failed for pool %s: %v", poolID, err)
}

// decodeFailed wraps a fatal factory/registration failure in
// non-tolerant mode.
func decodeFailed(exchange string, poolID component.PoolID, err error) *FatalError {
	return fatalf("failed to decode pool %s on %s: %v", poolID, exchange, err)
}
