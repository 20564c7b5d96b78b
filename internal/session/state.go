package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/hangar/internal/api"
)

// State is a snapshot of the session. IsAuthenticated implies User != nil.
type State struct {
	User            *api.User `json:"user,omitempty" yaml:"user,omitempty"`
	IsAuthenticated bool      `json:"is_authenticated" yaml:"is_authenticated"`
	// IsLoading is true until Initialize resolves and never again after that
	IsLoading bool `json:"is_loading" yaml:"is_loading"`
}

// clone returns a copy that shares nothing with s
func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Email returns the signed-in user's email, or ""
func (s State) Email() string {
	if s.User == nil {
		return ""
	}
	return s.User.Email
}

// accessExpired reports whether token is a JWT whose exp has passed at now.
// The signature is not checked. Opaque tokens and tokens without exp are
// never considered expired.
func accessExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
