package market

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Market Errors
// ---------------------------------------------------------------------------

var (
	// Source errors, returned by SourceAdapter implementations
	ErrAuth        = errors.New("market: platform authentication failed")
	ErrRateLimited = errors.New("market: platform rate limited")
	ErrNetwork     = errors.New("market: platform unreachable")
	ErrParse       = errors.New("market: unparseable platform response")

	// Per-item errors
	ErrValidation = errors.New("market: invalid product record")

	// Query errors
	ErrNoData        = errors.New("market: no data in range")
	ErrInvalidQuery  = errors.New("market: invalid query")
	ErrRunFinalized  = errors.New("market: collection run already finalized")
	ErrRunNotFound   = errors.New("market: collection run not found")
	ErrUnknownSource = errors.New("market: no adapter for platform")
)

// IsRetryable reports whether a source error may succeed on a later attempt.
// Rate limits and network failures are transient; everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}

// ValidationError is returned by the normalizer when a raw item lacks a
// required field. It carries the raw payload so it can be logged verbatim.
type ValidationError struct {
	Platform Platform
	SourceID string
	Field    string
	Reason   string
	Payload  json.RawMessage
}

// NewValidationError creates a ValidationError for the given raw item
func NewValidationError(item RawItem, field, reason string) *ValidationError {
	return &ValidationError{
		Platform: item.Platform,
		SourceID: item.SourceID,
		Field:    field,
		Reason:   reason,
		Payload:  item.Payload,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", ErrValidation, e.Platform, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
