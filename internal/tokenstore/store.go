// Package tokenstore persists the access/refresh token pair.
//
// Every implementation writes the pair atomically: a reader never observes
// one side of a pair from one write and the other side from another.
package tokenstore

import (
	"context"
	"fmt"
	"strings"
)

// Pair is a bearer access token and the refresh token that renews it
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Shape classifies which halves of a pair are present
type Shape int

const (
	// ShapeEmpty means no session is stored
	ShapeEmpty Shape = iota
	// ShapeComplete means both tokens are present
	ShapeComplete
	// ShapeRefreshOnly means the access token is missing; refresh can restore it
	ShapeRefreshOnly
	// ShapeAccessOnly means the refresh token is missing; the session cannot be restored
	ShapeAccessOnly
)

func (s Shape) String() string {
	switch s {
	case ShapeComplete:
		return "complete"
	case ShapeRefreshOnly:
		return "refresh_only"
	case ShapeAccessOnly:
		return "access_only"
	default:
		return "empty"
	}
}

// Shape reports which halves of p are present
func (p Pair) Shape() Shape {
	switch {
	case p.Access != "" && p.Refresh != "":
		return ShapeComplete
	case p.Refresh != "":
		return ShapeRefreshOnly
	case p.Access != "":
		return ShapeAccessOnly
	default:
		return ShapeEmpty
	}
}

// IsZero reports whether neither token is present
func (p Pair) IsZero() bool {
	return p.Shape() == ShapeEmpty
}

// SameSite restricts which hosts may receive stored tokens
type SameSite string

const (
	// SameSiteStrict sends tokens only to the configured API host
	SameSiteStrict SameSite = "strict"
	// SameSiteLax also allows subdomains of the configured API host
	SameSiteLax SameSite = "lax"
	// SameSiteNone applies no host restriction
	SameSiteNone SameSite = "none"
)

// ParseSameSite parses a same-site mode, case-insensitively
func ParseSameSite(s string) (SameSite, error) {
	switch SameSite(strings.ToLower(strings.TrimSpace(s))) {
	case SameSiteStrict, "":
		return SameSiteStrict, nil
	case SameSiteLax:
		return SameSiteLax, nil
	case SameSiteNone:
		return SameSiteNone, nil
	default:
		return SameSiteStrict, fmt.Errorf("unknown same-site mode %q (want strict, lax or none)", s)
	}
}

// Attributes are the transmission rules attached to stored tokens.
// They are enforced by the API transport, not by the store.
type Attributes struct {
	// Secure requires https for any request that carries a token
	Secure bool
	// SameSite restricts the hosts a token may be sent to
	SameSite SameSite
}

// DefaultAttributes requires https and the exact API host
func DefaultAttributes() Attributes {
	return Attributes{Secure: true, SameSite: SameSiteStrict}
}

// Store is durable storage for one token pair
type Store interface {
	// Get returns the stored pair. A missing pair is the zero Pair, not an error.
	Get(ctx context.Context) (Pair, error)
	// Set replaces both tokens in one write
	Set(ctx context.Context, p Pair) error
	// SetAccess replaces only the access token, keeping the stored refresh token
	SetAccess(ctx context.Context, access string) error
	// Clear removes both tokens
	Clear(ctx context.Context) error
	// Attributes returns the transmission rules for the stored tokens
	Attributes() Attributes
	// Name identifies the backend in logs and errors
	Name() string
	// Close releases resources held by the store
	Close() error
}
