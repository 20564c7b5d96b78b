package session

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

// fakeAPI is a scriptable AuthAPI
type fakeAPI struct {
	mu sync.Mutex

	pair     tokenstore.Pair
	tokenErr error

	refreshed  api.Refreshed
	refreshErr error

	// users maps an access token to its profile; unknown tokens get 401
	users map[string]*api.User
	meErr error

	signUp    *api.SignUpResult
	signUpErr error

	logoutErr error

	// gate, when set, blocks ObtainToken until closed
	gate chan struct{}

	calls   map[string]int
	meSeen  []string
	logouts []tokenstore.Pair
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users: make(map[string]*api.User),
		calls: make(map[string]int),
	}
}

func rejected(endpoint string, status int, detail string) error {
	return &api.ResponseError{Endpoint: endpoint, Status: status, Detail: detail}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ObtainToken(ctx context.Context, email, password string) (tokenstore.Pair, error) {
	f.mu.Lock()
	f.calls["token"]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return tokenstore.Pair{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return tokenstore.Pair{}, f.tokenErr
	}
	return f.pair, nil
}

func (f *fakeAPI) RefreshToken(ctx context.Context, refresh string) (api.Refreshed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["refresh"]++
	if f.refreshErr != nil {
		return api.Refreshed{}, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeAPI) CurrentUser(ctx context.Context, access string) (*api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["me"]++
	f.meSeen = append(f.meSeen, access)
	if f.meErr != nil {
		return nil, f.meErr
	}
	u, ok := f.users[access]
	if !ok {
		return nil, rejected(api.EndpointCurrentUser.Path, http.StatusUnauthorized, "Given token not valid for any token type")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAPI) SignUp(ctx context.Context, reg api.Registration) (*api.SignUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["sign_up"]++
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	return f.signUp, nil
}

func (f *fakeAPI) Logout(ctx context.Context, access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["logout"]++
	f.logouts = append(f.logouts, tokenstore.Pair{Access: access, Refresh: refresh})
	return f.logoutErr
}

type harness struct {
	api      *fakeAPI
	store    *tokenstore.Memory
	router   *route.Memory
	notes    *notify.Buffer
	manager  *Manager
	clockNow time.Time
}

func newHarness(t *testing.T, start string, mods ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		api:      newFakeAPI(),
		store:    tokenstore.NewMemory(tokenstore.DefaultAttributes()),
		router:   route.NewMemory(start),
		notes:    &notify.Buffer{},
		clockNow: time.Now(),
	}
	opts := Options{
		API:      h.api,
		Store:    h.store,
		Router:   h.router,
		Notifier: h.notes,
		Logger:   log.Discard(),
		Clock:    func() time.Time { return h.clockNow },
	}
	for _, mod := range mods {
		mod(&opts)
	}
	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	h.manager = m
	return h
}

func (h *harness) stored(t *testing.T) tokenstore.Pair {
	t.Helper()
	p, err := h.store.Get(context.Background())
	require.NoError(t, err)
	return p
}

func (h *harness) seed(t *testing.T, p tokenstore.Pair) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), p))
}

// signedToken builds an HS256 JWT expiring at exp
func signedToken(t testing.TB, sub string, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("session-test"))
	require.NoError(t, err)
	return s
}

var pilot = &api.User{ID: 7, Email: "a@b.com", FirstName: "Ada", TeamName: "WING"}

// brokenStore fails writes or reads on demand
type brokenStore struct {
	*tokenstore.Memory
	failGet bool
	failSet bool
}

func (b *brokenStore) Get(ctx context.Context) (tokenstore.Pair, error) {
	if b.failGet {
		return tokenstore.Pair{}, errors.NewStoreReadError("broken", os.ErrPermission)
	}
	return b.Memory.Get(ctx)
}

func (b *brokenStore) Set(ctx context.Context, p tokenstore.Pair) error {
	if b.failSet {
		return errors.NewStoreWriteError("broken", os.ErrPermission)
	}
	return b.Memory.Set(ctx, p)
}
