package session

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"pgregory.net/rapid"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

var operations = []string{
	"login",
	"login_rejected",
	"login_no_profile",
	"signup",
	"signup_rejected",
	"logout",
	"logout_remote_error",
	"refresh",
	"refresh_rejected",
}

// checkInvariants asserts what must hold between any two operations
func checkInvariants(t *rapid.T, m *Manager, store tokenstore.Store, router route.Router, step string) {
	s := m.State()
	if s.IsLoading {
		t.Fatalf("%s: still loading after Initialize", step)
	}
	if s.IsAuthenticated && s.User == nil {
		t.Fatalf("%s: authenticated without a user", step)
	}
	if !s.IsAuthenticated && s.User != nil {
		t.Fatalf("%s: user %s kept after the session ended", step, s.User.Email)
	}

	p, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("%s: store read: %v", step, err)
	}
	switch p.Shape() {
	case tokenstore.ShapeAccessOnly, tokenstore.ShapeRefreshOnly:
		t.Fatalf("%s: half a token pair persisted: %s", step, p.Shape())
	}
	if s.IsAuthenticated && p.Shape() != tokenstore.ShapeComplete {
		t.Fatalf("%s: authenticated with %s tokens", step, p.Shape())
	}

	if target := m.Policy().Decide(router.Location(), s.IsAuthenticated, false); target != "" {
		t.Fatalf("%s: guard left %s unresolved, wants %s", step, router.Location(), target)
	}
}

func TestSessionInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		f := newFakeAPI()
		store := tokenstore.NewMemory(tokenstore.DefaultAttributes())
		start := rapid.SampledFrom([]string{"/", "/login", "/signup", "/dashboard", "/profile", "/settings/x", "/about"}).Draw(t, "start")
		router := route.NewMemory(start)

		m, err := New(Options{API: f, Store: store, Router: router, Notifier: &notify.Buffer{}, Logger: log.Discard()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer m.Close()

		if rapid.Bool().Draw(t, "seeded") {
			_ = store.Set(ctx, tokenstore.Pair{Access: "a0", Refresh: "r0"})
			if rapid.Bool().Draw(t, "seed_valid") {
				f.users["a0"] = pilot
			} else {
				f.refreshErr = rejected(api.EndpointTokenRefresh.Path, http.StatusUnauthorized, "expired")
			}
		}
		if _, err := m.Initialize(ctx); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		checkInvariants(t, m, store, router, "initialize")

		steps := rapid.IntRange(1, 15).Draw(t, "steps")
		for i := 1; i <= steps; i++ {
			op := rapid.SampledFrom(operations).Draw(t, "op")
			access := fmt.Sprintf("a%d", i)
			pair := tokenstore.Pair{Access: access, Refresh: fmt.Sprintf("r%d", i)}

			f.mu.Lock()
			f.tokenErr, f.refreshErr, f.signUpErr, f.logoutErr = nil, nil, nil, nil
			f.pair = pair
			f.signUp = &api.SignUpResult{User: *pilot, Tokens: &pair}
			f.refreshed = api.Refreshed{Access: access}
			switch op {
			case "login", "signup", "refresh":
				f.users[access] = pilot
			case "login_rejected":
				f.tokenErr = rejected(api.EndpointToken.Path, http.StatusUnauthorized, "bad credentials")
			case "signup_rejected":
				f.signUpErr = rejected(api.EndpointSignUp.Path, http.StatusBadRequest, "exists")
			case "logout_remote_error":
				f.logoutErr = rejected(api.EndpointLogout.Path, http.StatusBadGateway, "")
			case "refresh_rejected":
				f.refreshErr = rejected(api.EndpointTokenRefresh.Path, http.StatusUnauthorized, "expired")
			}
			f.mu.Unlock()

			var err error
			switch op {
			case "login", "login_rejected", "login_no_profile":
				err = m.Login(ctx, pilot.Email, "pw")
			case "signup", "signup_rejected":
				err = m.Signup(ctx, api.Registration{Email: pilot.Email, Password: "pw", TeamName: "WING"})
			case "logout", "logout_remote_error":
				err = m.Logout(ctx)
			case "refresh", "refresh_rejected":
				_ = m.Refresh(ctx)
			}
			if err != nil {
				t.Fatalf("%s: unexpected error %v", op, err)
			}
			checkInvariants(t, m, store, router, fmt.Sprintf("step %d (%s)", i, op))
		}
	})
}
