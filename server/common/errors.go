package common

import "errors"

// ErrCorruption reports a violated on-page invariant (DB_CORRUPTION).
// It is never a transient condition: the enclosing mini-transaction must be
// discarded and the structure checked.
var ErrCorruption = errors.New("data structure corruption")

// IsCorruption reports whether err is, or wraps, ErrCorruption.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}
