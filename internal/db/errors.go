package db

import "errors"

// Sentinel errors for backend operations.
var (
	ErrClosed        = errors.New("db: backend closed")
	ErrUnknownDriver = errors.New("db: unknown driver")
)

// Op names used for error context.
const (
	OpCandidates = "CANDIDATES"
	OpFetch      = "FETCH"
	OpScan       = "SCAN"
	OpCount      = "COUNT"
	OpCommit     = "COMMIT"
	OpPing       = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
