package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is wrapped by EmptyInputError
	ErrEmptyInput = errors.New("empty input")

	// ErrEmbeddingUnavailable means the embedding backend could not be reached;
	// retrieval degrades to no augmentation
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrNotFound is returned by the ledger for unknown ids
	ErrNotFound = errors.New("not found")

	// ErrNoCredential marks a remote client constructed without an API key
	ErrNoCredential = errors.New("no model credential configured")
)

// EmptyInputError reports an input that normalized to nothing
type EmptyInputError struct {
	InputID string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.InputID, ErrEmptyInput)
}

func (e *EmptyInputError) Unwrap() error { return ErrEmptyInput }

// TransientEndpointError is a failure worth retrying (rate limit, warming model, network)
type TransientEndpointError struct {
	StatusCode int
	Err        error
}

func (e *TransientEndpointError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient endpoint error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient endpoint error: %v", e.Err)
}

func (e *TransientEndpointError) Unwrap() error { return e.Err }

// PermanentEndpointError aborts the invocation immediately (auth, malformed request)
type PermanentEndpointError struct {
	StatusCode int
	Err        error
}

func (e *PermanentEndpointError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("permanent endpoint error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("permanent endpoint error: %v", e.Err)
}

func (e *PermanentEndpointError) Unwrap() error { return e.Err }

// ParseFailure means an invocation produced zero valid drafts
type ParseFailure struct {
	Reasons []string
}

func (e *ParseFailure) Error() string {
	if len(e.Reasons) == 0 {
		return "parse failure: no signal drafts found in model reply"
	}
	return "parse failure: " + strings.Join(e.Reasons, "; ")
}

// ValidationError rejects bad caller input (overrides, drafts)
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
