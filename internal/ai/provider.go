// Package ai wraps an AI completion provider with the retry, timeout,
// and fallback discipline the rest of the board relies on. Callers see
// a small typed error taxonomy instead of provider-specific failures.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	KindRateLimited   ErrorKind = "rate_limited"
	KindTimeout       ErrorKind = "timeout"
	KindNetwork       ErrorKind = "network"
	KindConfiguration ErrorKind = "configuration"
	KindAPI           ErrorKind = "api"
)

// Error is the typed error surfaced by the AI service.
type Error struct {
	Message string
	Kind    ErrorKind
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ai %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("ai %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a typed AI error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Message: message, Kind: kind, Cause: cause}
}

// IsRetryable reports whether a failure of this kind may succeed on a
// later attempt.
func IsRetryable(kind ErrorKind) bool {
	switch kind {
	case KindRateLimited, KindTimeout, KindNetwork:
		return true
	}
	return false
}

// IsConfigurationError reports whether the failure requires operator
// intervention rather than a retry.
func IsConfigurationError(kind ErrorKind) bool {
	return kind == KindConfiguration
}

// Options tune a single generation request.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	System      string
}

// Provider is the capability the service wraps. Implementations talk
// to an actual model API; tests supply fakes.
type Provider interface {
	// GenerateCompletion returns the model's text for a prompt.
	GenerateCompletion(ctx context.Context, prompt string, opts Options) (string, error)
	// GenerateStructured returns the model's output as raw JSON
	// conforming to the given schema description.
	GenerateStructured(ctx context.Context, prompt string, schema string, opts Options) (json.RawMessage, error)
	// Name identifies the provider in logs.
	Name() string
}
