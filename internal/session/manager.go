// Package session owns the authentication lifecycle: restoring a stored
// session at startup, login, sign-up, logout and silent refresh, with the
// route guard evaluated after every state change.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/metrics"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

// DefaultLandingDelay is how long Login waits after committing the session
// before navigating to the landing view
const DefaultLandingDelay = 100 * time.Millisecond

var (
	// ErrOperationCanceled is returned when ctx ends while an operation waits
	// for the pending one or mid-flight
	ErrOperationCanceled = stderrors.New("session operation canceled")
	// ErrClosed is returned by operations on a closed Manager
	ErrClosed = stderrors.New("session manager closed")
)

// AuthAPI is the backend surface the session needs. *api.Client implements it.
type AuthAPI interface {
	ObtainToken(ctx context.Context, email, password string) (tokenstore.Pair, error)
	RefreshToken(ctx context.Context, refresh string) (api.Refreshed, error)
	CurrentUser(ctx context.Context, access string) (*api.User, error)
	SignUp(ctx context.Context, reg api.Registration) (*api.SignUpResult, error)
	Logout(ctx context.Context, access, refresh string) error
}

// Options configures a Manager. API, Store and Router are required.
type Options struct {
	API      AuthAPI
	Store    tokenstore.Store
	Router   route.Router
	Notifier notify.Notifier
	// Policy classifies locations; a table without rules means route.DefaultTable
	Policy  route.Table
	Logger  *log.Logger
	Metrics *metrics.Metrics
	// LandingDelay defers Login's navigation to the landing view
	LandingDelay time.Duration
	// Clock is used for token expiry checks; nil means time.Now
	Clock func() time.Time
	// RotateRefresh stores a refresh token returned by the refresh endpoint
	RotateRefresh bool
}

// Manager is the session state machine. Mutating operations are serialized;
// State may be read at any time.
type Manager struct {
	api      AuthAPI
	store    tokenstore.Store
	router   route.Router
	notifier notify.Notifier
	policy   route.Table
	logger   *log.Logger
	metrics  *metrics.Metrics
	delay    time.Duration
	now      func() time.Time
	rotate   bool

	// sem admits one mutating operation at a time
	sem chan struct{}
	// initialized and closed are guarded by sem
	initialized bool
	closed      bool

	mu    sync.RWMutex
	state State

	subMu sync.Mutex
	subs  map[chan State]struct{}
}

// New creates a Manager in the loading state
func New(opts Options) (*Manager, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("session: API is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session: Store is required")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("session: Router is required")
	}

	m := &Manager{
		api:      opts.API,
		store:    opts.Store,
		router:   opts.Router,
		notifier: opts.Notifier,
		policy:   opts.Policy,
		logger:   log.Or(opts.Logger).With("component", "session"),
		metrics:  opts.Metrics,
		delay:    opts.LandingDelay,
		now:      opts.Clock,
		rotate:   opts.RotateRefresh,
		sem:      make(chan struct{}, 1),
		state:    State{IsLoading: true},
		subs:     make(map[chan State]struct{}),
	}
	if m.notifier == nil {
		m.notifier = notify.Discard
	}
	if len(m.policy.Rules) == 0 {
		m.policy = route.DefaultTable()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// State returns a snapshot of the session
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// AccessToken returns the stored access token, or "" when there is none
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	p, err := m.store.Get(ctx)
	if err != nil {
		return "", err
	}
	return p.Access, nil
}

// Policy returns the route table the guard evaluates
func (m *Manager) Policy() route.Table {
	return m.policy
}

// Subscribe returns a channel that receives a snapshot after every state
// change. Only the latest undelivered snapshot is kept. The returned func
// unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.subMu.Lock()
	if m.subs == nil {
		close(ch)
		m.subMu.Unlock()
		return ch, func() {}
	}
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			if _, ok := m.subs[ch]; ok {
				delete(m.subs, ch)
				close(ch)
			}
		})
	}
}

// Close waits for the pending operation, then rejects new ones and closes
// every subscription. The token store is left to its owner.
func (m *Manager) Close() error {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	if m.closed {
		return nil
	}
	m.closed = true

	m.subMu.Lock()
	for ch := range m.subs {
		close(ch)
	}
	m.subs = nil
	m.subMu.Unlock()
	return nil
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrOperationCanceled, ctx.Err())
	}
	if m.closed {
		<-m.sem
		return ErrClosed
	}
	return nil
}

func (m *Manager) release() {
	<-m.sem
}

// commit applies mutate, publishes the snapshot and runs the route guard
func (m *Manager) commit(ctx context.Context, mutate func(*State)) State {
	m.mu.Lock()
	mutate(&m.state)
	snap := m.state.clone()
	m.mu.Unlock()

	m.publish(snap)
	m.guard(ctx, snap)
	return snap
}

func (m *Manager) setAuthenticated(ctx context.Context, u *api.User) State {
	return m.commit(ctx, func(s *State) {
		cp := *u
		s.User = &cp
		s.IsAuthenticated = true
	})
}

func (m *Manager) setAnonymous(ctx context.Context) State {
	return m.commit(ctx, func(s *State) {
		s.User = nil
		s.IsAuthenticated = false
	})
}

func (m *Manager) publish(s State) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- s.clone():
			continue
		default:
		}
		// drop the stale snapshot so the latest one wins
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.clone():
		default:
		}
	}
}

// guard redirects when s contradicts the policy at the current location
func (m *Manager) guard(ctx context.Context, s State) {
	if s.IsLoading {
		return
	}
	loc := m.router.Location()
	if target := m.policy.Decide(loc, s.IsAuthenticated, false); target != "" {
		m.redirect(ctx, target)
	}
}

// redirect navigates to target unless the router is already there
func (m *Manager) redirect(ctx context.Context, target string) {
	if route.Normalize(m.router.Location()) == route.Normalize(target) {
		return
	}
	if err := m.router.Navigate(ctx, target); err != nil {
		m.logger.Warn("navigation failed", "target", target, "error", err.Error())
		return
	}
	m.metrics.RecordRedirect(target)
	m.logger.Debug("redirected", "target", target)
}

func (m *Manager) notify(ctx context.Context, n notify.Notification) {
	m.notifier.Notify(ctx, n)
}

func (m *Manager) observe(op, result string, start time.Time) {
	m.metrics.ObserveSessionOp(op, result, time.Since(start))
}

// canceled converts a failure caused by ctx into ErrOperationCanceled
func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrOperationCanceled, err)
	}
	return nil
}

// failureDetail picks the backend's message, or fallback
func failureDetail(err error, fallback string) string {
	if d := api.DetailOf(err); d != "" {
		return d
	}
	return fallback
}

func isResponse(err error) bool {
	return api.StatusOf(err) != 0
}

// storeFailure notifies and logs a token store error
func (m *Manager) storeFailure(ctx context.Context, op string, err error) {
	m.logger.WithError(err).Error("token store failure", "op", op, "backend", m.store.Name())
	m.metrics.RecordError(err, "session")
	m.notify(ctx, notify.Error("Error", "Could not access stored credentials."))
}

// isStoreError reports whether err came from the token store
func isStoreError(err error) bool {
	switch errors.Code(err) {
	case errors.ErrCodeStoreRead, errors.ErrCodeStoreWrite, errors.ErrCodeStoreCrypt:
		return true
	}
	return false
}
