package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage or rejected input
	UsageError = 2

	// ConfigError indicates an unreadable or invalid configuration
	ConfigError = 3

	// StoreError indicates the token store could not be read or written
	StoreError = 4

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// APIError indicates the backend answered with an unexpected response
	APIError = 7

	// Interrupted indicates the user cancelled the command (SIGINT)
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps err to an exit code. Coded errors are classified by
// their code prefix; uncoded errors fall back to message matching.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var hErr *errors.HangarError
	if stderrors.As(err, &hErr) {
		return fromCode(hErr.Code)
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "token") {
		return AuthError
	}
	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "timeout") {
		return NetworkError
	}
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") {
		return UsageError
	}

	return GeneralError
}

func fromCode(code errors.ErrorCode) int {
	prefix, _, _ := strings.Cut(string(code), "-")
	switch prefix {
	case "AUTH":
		return AuthError
	case "NET":
		return NetworkError
	case "API":
		return APIError
	case "STORE":
		return StoreError
	case "CONFIG":
		return ConfigError
	case "INPUT":
		return UsageError
	default:
		return GeneralError
	}
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or input)"
	case ConfigError:
		return "Configuration error"
	case StoreError:
		return "Token store error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case APIError:
		return "Backend API error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
