package ux

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a suggestion to errors that do not already carry one.
// Coded errors with suggestions are returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}

	var he *errors.HangarError
	if stderrors.As(err, &he) && len(he.Suggestions) > 0 {
		return err
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithSuggestion(err,
			"The backend did not answer in time; raise api.timeout or check 'hangar doctor'")
	}

	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		return NewErrorWithSuggestion(err,
			"Check that api.url points at a running backend: hangar config view")
	case strings.Contains(errMsg, "x509") || strings.Contains(errMsg, "certificate"):
		return NewErrorWithSuggestion(err,
			"The backend certificate was rejected; check api.url uses the right host name")
	case strings.Contains(errMsg, "permission denied"):
		return NewErrorWithSuggestion(err,
			"Check permissions on ~/.hangar and the token store path")
	case errors.HasCode(err, errors.ErrCodeForbidden):
		return NewErrorWithSuggestion(err,
			"Your team cannot perform this action")
	case errors.HasCode(err, errors.ErrCodeStoreCrypt):
		return NewErrorWithSuggestion(err,
			"Set the passphrase variable named by tokens.passphrase_env, or run 'hangar auth logout'")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}
