package dedup

import "github.com/kailas-cloud/dedup/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound              = domain.ErrNotFound
	ErrMissingParameter      = domain.ErrMissingParameter
	ErrUnknownField          = domain.ErrUnknownField
	ErrInvalidParameter      = domain.ErrInvalidParameter
	ErrMalformedNumericField = domain.ErrMalformedNumericField
	ErrInvalidDocument       = domain.ErrInvalidDocument
	ErrConfig                = domain.ErrConfig
)
