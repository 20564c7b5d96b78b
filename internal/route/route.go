// Package route classifies views and decides guard redirects.
package route

import (
	"context"
	"path"
	"strings"
	"sync"
)

// Class is the access policy of a route
type Class int

const (
	// Neutral routes apply no policy
	Neutral Class = iota
	// Protected routes require an authenticated session
	Protected
	// PublicRedirecting routes send an authenticated session to the landing view
	PublicRedirecting
)

func (c Class) String() string {
	switch c {
	case Protected:
		return "protected"
	case PublicRedirecting:
		return "public"
	default:
		return "neutral"
	}
}

const (
	// Landing is the protected view an authenticated session lands on
	Landing = "/dashboard"
	// Login is the view an unauthenticated session is sent to
	Login = "/login"
	// Signup is the registration view
	Signup = "/signup"
	// Root is the entry view
	Root = "/"
)

// Rule classifies a path. Prefix rules match the path itself and any
// sub-path below it; exact rules match only the path.
type Rule struct {
	Path   string
	Prefix bool
	Class  Class
}

// Table is a declarative route classification
type Table struct {
	Rules   []Rule
	Landing string
	Login   string
}

// DefaultTable protects /dashboard, /profile and /settings and redirects
// authenticated sessions away from /, /login and /signup.
func DefaultTable() Table {
	return Table{
		Rules: []Rule{
			{Path: "/dashboard", Prefix: true, Class: Protected},
			{Path: "/profile", Prefix: true, Class: Protected},
			{Path: "/settings", Prefix: true, Class: Protected},
			{Path: Root, Class: PublicRedirecting},
			{Path: Login, Class: PublicRedirecting},
			{Path: Signup, Class: PublicRedirecting},
		},
		Landing: Landing,
		Login:   Login,
	}
}

// Normalize cleans a location into a rooted path without query or fragment
func Normalize(loc string) string {
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	if loc == "" {
		return Root
	}
	if !strings.HasPrefix(loc, "/") {
		loc = "/" + loc
	}
	return path.Clean(loc)
}

// Classify returns the class of loc. The first matching rule wins.
func (t Table) Classify(loc string) Class {
	p := Normalize(loc)
	for _, r := range t.Rules {
		if r.matches(p) {
			return r.Class
		}
	}
	return Neutral
}

func (r Rule) matches(p string) bool {
	if p == r.Path {
		return true
	}
	return r.Prefix && strings.HasPrefix(p, strings.TrimSuffix(r.Path, "/")+"/")
}

// Decide returns the redirect target for a session at loc, or "" when the
// session may stay. Nothing is decided while the session is still loading,
// and a redirect to loc itself is never returned.
func (t Table) Decide(loc string, authenticated, loading bool) string {
	if loading {
		return ""
	}

	var target string
	switch t.Classify(loc) {
	case Protected:
		if !authenticated {
			target = t.Login
		}
	case PublicRedirecting:
		if authenticated {
			target = t.Landing
		}
	}

	if target == "" || Normalize(target) == Normalize(loc) {
		return ""
	}
	return target
}

// Router is the navigation primitive the session redirects through
type Router interface {
	Location() string
	Navigate(ctx context.Context, to string) error
}

// Memory is a Router that records navigation history. Commands that run
// without a screen use it to carry the location a session is evaluated at.
type Memory struct {
	mu      sync.Mutex
	current string
	history []string
}

// NewMemory creates a Router positioned at start
func NewMemory(start string) *Memory {
	return &Memory{current: Normalize(start)}
}

// Location implements Router
func (m *Memory) Location() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Navigate implements Router
func (m *Memory) Navigate(ctx context.Context, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Normalize(to)
	m.history = append(m.history, m.current)
	return nil
}

// History returns every location navigated to, oldest first
func (m *Memory) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}
