package api

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

// RequestIDHeader carries a per-request correlation id
const RequestIDHeader = "X-Request-ID"

// storeTokenSource serves the stored access token to oauth2.Transport.
// The token is read on every request so a refresh is picked up at once.
type storeTokenSource struct {
	store tokenstore.Store
}

// Token implements oauth2.TokenSource
func (s storeTokenSource) Token() (*oauth2.Token, error) {
	p, err := s.store.Get(context.Background())
	if err != nil {
		return nil, err
	}
	if p.Access == "" {
		return nil, ErrNoAccessToken
	}
	return &oauth2.Token{AccessToken: p.Access, TokenType: "Bearer"}, nil
}

// ErrNoAccessToken is returned by bearer calls when no access token is stored
var ErrNoAccessToken = errors.New(errors.ErrCodeNotAuthenticated, "session not found, please log in again").
	WithSuggestion("Run 'hangar auth login'")

// credentialGuard refuses to let a bearer token leave under conditions the
// token store's attributes forbid. It sits below oauth2.Transport so it sees
// the Authorization header on every hop, including redirects.
type credentialGuard struct {
	base          http.RoundTripper
	apiHost       string
	attrs         tokenstore.Attributes
	allowInsecure bool
}

func (g *credentialGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		if err := g.check(req.URL); err != nil {
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, err
		}
	}
	return g.base.RoundTrip(req)
}

func (g *credentialGuard) check(u *url.URL) error {
	if g.attrs.Secure && u.Scheme != "https" {
		if !(g.allowInsecure && isLoopback(u.Hostname())) {
			return errors.NewInsecureTransportError(u.Redacted())
		}
	}

	host := strings.ToLower(u.Hostname())
	switch g.attrs.SameSite {
	case tokenstore.SameSiteNone:
		return nil
	case tokenstore.SameSiteLax:
		if host == g.apiHost || strings.HasSuffix(host, "."+g.apiHost) {
			return nil
		}
	default:
		if host == g.apiHost {
			return nil
		}
	}
	return errors.New(errors.ErrCodeInsecure, "refusing to send credentials to "+host+": not the configured API host "+g.apiHost)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// headerTransport stamps identification headers on every request
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if h.userAgent != "" {
		r.Header.Set("User-Agent", h.userAgent)
	}
	r.Header.Set("Accept", "application/json")
	return h.base.RoundTrip(r)
}

// bearer wraps base so every request carries the token from src
func bearer(src oauth2.TokenSource, base http.RoundTripper) http.RoundTripper {
	return &oauth2.Transport{Source: src, Base: base}
}

// staticToken serves one explicit access token
func staticToken(access string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "Bearer"})
}
