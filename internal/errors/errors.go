package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeCredential         ErrorCode = "AUTH-001"
	ErrCodeSessionExpired     ErrorCode = "AUTH-002"
	ErrCodeNotAuthenticated   ErrorCode = "AUTH-003"
	ErrCodeTokenInconsistency ErrorCode = "AUTH-004"
	ErrCodeForbidden          ErrorCode = "AUTH-005"

	// Network errors (NET-001 to NET-099)
	ErrCodeTransport ErrorCode = "NET-001"
	ErrCodeInsecure  ErrorCode = "NET-002"

	// Backend API errors (API-001 to API-099)
	ErrCodeAPIResponse ErrorCode = "API-001"
	ErrCodeAPIDecode   ErrorCode = "API-002"
	ErrCodeAPIContract ErrorCode = "API-003"

	// Token store errors (STORE-001 to STORE-099)
	ErrCodeStoreRead  ErrorCode = "STORE-001"
	ErrCodeStoreWrite ErrorCode = "STORE-002"
	ErrCodeStoreCrypt ErrorCode = "STORE-003"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigLoad    ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid ErrorCode = "CONFIG-002"

	// Input validation errors (INPUT-001 to INPUT-099)
	ErrCodeInvalidInput ErrorCode = "INPUT-001"
)

// HangarError represents an enhanced error with code, suggestions, and documentation
type HangarError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *HangarError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *HangarError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a HangarError carrying the same code.
// This lets callers compare against sentinel values built with New.
func (e *HangarError) Is(target error) bool {
	t, ok := target.(*HangarError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// New creates a new HangarError
func New(code ErrorCode, message string) *HangarError {
	return &HangarError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new HangarError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *HangarError {
	return &HangarError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *HangarError) WithSuggestion(suggestion string) *HangarError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *HangarError) WithSuggestions(suggestions ...string) *HangarError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *HangarError) WithDocs(url string) *HangarError {
	e.DocsURL = url
	return e
}

// Code returns the code of the first HangarError in err's chain, or ""
func Code(err error) ErrorCode {
	var he *HangarError
	if stderrors.As(err, &he) {
		return he.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a HangarError with code
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var he *HangarError
		if !stderrors.As(err, &he) {
			return false
		}
		if he.Code == code {
			return true
		}
		err = he.Cause
	}
	return false
}

// Common error constructors for frequently used errors

// NewCredentialError creates a rejected login or sign-up error
func NewCredentialError(detail string) *HangarError {
	return New(ErrCodeCredential, detail).
		WithSuggestion("Check your email and password").
		WithSuggestion("Run 'hangar auth signup' if you do not have an account yet")
}

// NewSessionExpiredError creates an error for an unrecoverable session
func NewSessionExpiredError(cause error) *HangarError {
	return Wrap(ErrCodeSessionExpired, "session expired", cause).
		WithSuggestion("Run 'hangar auth login' to sign in again")
}

// NewNotAuthenticatedError creates an error for commands that need a session
func NewNotAuthenticatedError() *HangarError {
	return New(ErrCodeNotAuthenticated, "not logged in").
		WithSuggestion("Run 'hangar auth login' first")
}

// NewTokenInconsistencyError creates an error for a half-written token pair
func NewTokenInconsistencyError(missing string) *HangarError {
	return New(ErrCodeTokenInconsistency, fmt.Sprintf("stored token pair is incomplete: %s token missing", missing))
}

// NewTransportError creates a network failure error
func NewTransportError(endpoint string, cause error) *HangarError {
	return Wrap(ErrCodeTransport, fmt.Sprintf("request to %s failed", endpoint), cause).
		WithSuggestion("Check that the backend is reachable: hangar doctor").
		WithSuggestion("Verify api.url in your configuration")
}

// NewInsecureTransportError creates an error for tokens that would leave over plain HTTP
func NewInsecureTransportError(url string) *HangarError {
	return New(ErrCodeInsecure, fmt.Sprintf("refusing to send credentials over insecure transport: %s", url)).
		WithSuggestion("Use an https:// api.url").
		WithSuggestion("Set api.allow_insecure: true for local development against a loopback host")
}

// NewAPIResponseError creates an error for a non-2xx backend response
func NewAPIResponseError(endpoint string, status int, detail string) *HangarError {
	msg := fmt.Sprintf("%s returned status %d", endpoint, status)
	if detail != "" {
		msg += ": " + detail
	}
	return New(ErrCodeAPIResponse, msg)
}

// NewAPIDecodeError creates an error for an undecodable backend response
func NewAPIDecodeError(endpoint string, cause error) *HangarError {
	return Wrap(ErrCodeAPIDecode, fmt.Sprintf("failed to decode %s response", endpoint), cause)
}

// NewInvalidInputError creates a validation error
func NewInvalidInputError(field, reason string) *HangarError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(key, reason string) *HangarError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration %s: %s", key, reason)).
		WithSuggestion("Run 'hangar config view' to inspect the effective configuration").
		WithSuggestion("Edit ~/.hangar/config.yaml or set the HANGAR_* environment variable")
}

// NewStoreWriteError creates a token store write error
func NewStoreWriteError(backend string, cause error) *HangarError {
	return Wrap(ErrCodeStoreWrite, fmt.Sprintf("failed to write %s token store", backend), cause).
		WithSuggestion("Check permissions on the token store path (tokens.path)")
}

// NewStoreReadError creates a token store read error
func NewStoreReadError(backend string, cause error) *HangarError {
	return Wrap(ErrCodeStoreRead, fmt.Sprintf("failed to read %s token store", backend), cause).
		WithSuggestion("Run 'hangar auth logout' to reset stored credentials")
}
