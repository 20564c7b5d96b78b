package tokenstore

import (
	"fmt"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

// Backend names a Store implementation
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Backends lists the supported backends in documentation order
func Backends() []Backend {
	return []Backend{BackendMemory, BackendFile, BackendSQLite}
}

// Options selects and configures a Store
type Options struct {
	Backend    Backend
	Path       string
	Passphrase string
	Attributes Attributes
}

// Open builds the Store described by opts
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(opts.Attributes), nil
	case BackendFile, "":
		if opts.Path == "" {
			return nil, errors.NewConfigInvalidError("tokens.path", "required for the file backend")
		}
		return NewFile(opts.Path, opts.Passphrase, opts.Attributes)
	case BackendSQLite:
		if opts.Path == "" {
			return nil, errors.NewConfigInvalidError("tokens.path", "required for the sqlite backend")
		}
		if opts.Passphrase != "" {
			return nil, errors.NewConfigInvalidError("tokens.passphrase_env", "encryption is only supported by the file backend")
		}
		return NewSQLite(opts.Path, opts.Attributes)
	default:
		return nil, errors.NewConfigInvalidError("tokens.backend", fmt.Sprintf("unknown backend %q (want memory, file or sqlite)", opts.Backend))
	}
}
