package session

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

// Initialize restores the stored session. It runs once; later calls return
// the current state without side effects. IsLoading is cleared when it
// returns, whatever the outcome, and the route guard runs exactly then.
func (m *Manager) Initialize(ctx context.Context) (State, error) {
	if err := m.acquire(ctx); err != nil {
		return m.State(), err
	}
	defer m.release()

	if m.initialized {
		return m.State(), nil
	}
	m.initialized = true

	start := time.Now()
	result, err := m.initialize(ctx)
	m.observe("initialize", result, start)

	// the guard must run even when ctx ended mid-way
	s := m.commit(context.WithoutCancel(ctx), func(s *State) { s.IsLoading = false })
	m.logger.Info("session initialized", "result", result, "user", s.Email())
	return s, err
}

func (m *Manager) initialize(ctx context.Context) (string, error) {
	pair, err := m.store.Get(ctx)
	if err != nil {
		m.storeFailure(ctx, "initialize", err)
		return "store_error", err
	}

	switch pair.Shape() {
	case tokenstore.ShapeEmpty:
		return "anonymous", nil

	case tokenstore.ShapeAccessOnly:
		m.logger.Warn("stored session has no refresh token", "access", log.Fingerprint(pair.Access))
		return "expired", m.expire(ctx, errors.NewTokenInconsistencyError("refresh"))

	case tokenstore.ShapeRefreshOnly:
		m.logger.Info("stored session has no access token, refreshing", "refresh", log.Fingerprint(pair.Refresh))

	default:
		if accessExpired(pair.Access, m.now()) {
			m.logger.Debug("access token expired, refreshing", "access", log.Fingerprint(pair.Access))
			break
		}
		u, err := m.api.CurrentUser(ctx, pair.Access)
		if err == nil {
			m.setAuthenticated(ctx, u)
			return "restored", nil
		}
		if cerr := canceled(ctx); cerr != nil {
			return "canceled", cerr
		}
		m.logger.Debug("stored access token rejected, refreshing", "access", log.Fingerprint(pair.Access), "error", err.Error())
	}

	if err := m.refresh(ctx); err != nil {
		if cerr := canceled(ctx); cerr != nil {
			return "canceled", cerr
		}
		if isStoreError(err) {
			m.storeFailure(ctx, "initialize", err)
			return "store_error", err
		}
		return "expired", m.expire(ctx, err)
	}
	return "refreshed", nil
}

// refresh trades the stored refresh token for a new access token and
// reloads the user. It never clears the session itself; callers escalate a
// failure to logout.
func (m *Manager) refresh(ctx context.Context) error {
	pair, err := m.store.Get(ctx)
	if err != nil {
		return err
	}
	if pair.Refresh == "" {
		m.metrics.RecordRefresh("no_refresh_token")
		return errors.NewSessionExpiredError(errors.NewTokenInconsistencyError("refresh"))
	}

	out, err := m.api.RefreshToken(ctx, pair.Refresh)
	if err != nil {
		m.metrics.RecordRefresh("rejected")
		return errors.NewSessionExpiredError(err)
	}

	if m.rotate && out.Refresh != "" {
		err = m.store.Set(ctx, tokenstore.Pair{Access: out.Access, Refresh: out.Refresh})
	} else {
		err = m.store.SetAccess(ctx, out.Access)
	}
	if err != nil {
		return err
	}

	u, err := m.api.CurrentUser(ctx, out.Access)
	if err != nil {
		m.metrics.RecordRefresh("user_fetch_failed")
		return errors.NewSessionExpiredError(err)
	}

	m.setAuthenticated(ctx, u)
	m.metrics.RecordRefresh("success")
	m.logger.Info("access token refreshed", "user", u.Email, "access", log.Fingerprint(out.Access))
	return nil
}

// expire ends a session that cannot be restored
func (m *Manager) expire(ctx context.Context, cause error) error {
	m.logger.WithError(cause).Info("session expired")
	m.notify(ctx, notify.Error("Session expired", "Your session has expired. Please log in again."))
	return m.logout(ctx)
}

// Refresh renews the access token after the backend rejected it. A
// failure ends the session and returns a SessionExpired error.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.refreshStale(ctx, "")
}

// refreshStale refreshes unless the stored access token no longer equals
// stale, which means a concurrent caller already renewed it. An empty stale
// always refreshes.
func (m *Manager) refreshStale(ctx context.Context, stale string) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	start := time.Now()
	if stale != "" {
		if p, err := m.store.Get(ctx); err == nil && p.Access != "" && p.Access != stale {
			m.observe("refresh", "skipped", start)
			return nil
		}
	}

	err := m.refresh(ctx)
	if err == nil {
		m.observe("refresh", "success", start)
		return nil
	}
	if cerr := canceled(ctx); cerr != nil {
		m.observe("refresh", "canceled", start)
		return cerr
	}
	m.observe("refresh", "failure", start)
	if isStoreError(err) {
		m.storeFailure(ctx, "refresh", err)
		return err
	}
	if lerr := m.expire(ctx, err); lerr != nil {
		return lerr
	}
	if errors.HasCode(err, errors.ErrCodeSessionExpired) {
		return err
	}
	return errors.NewSessionExpiredError(err)
}

// Authorized runs fn, which performs bearer calls through the stored token.
// A 401 triggers one refresh and one retry of fn. A missing access token is
// reported to the user.
func (m *Manager) Authorized(ctx context.Context, fn func(ctx context.Context) error) error {
	before, _ := m.AccessToken(ctx)

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, api.ErrNoAccessToken) {
		m.notify(ctx, notify.Error("Error", "Session not found, please log in again."))
		return err
	}
	if !api.IsUnauthorized(err) {
		return err
	}

	m.logger.Debug("bearer call rejected, refreshing", "access", log.Fingerprint(before))
	if rerr := m.refreshStale(ctx, before); rerr != nil {
		return rerr
	}
	return fn(ctx)
}

// Login exchanges credentials for a session. Rejections are notified and
// leave the state unchanged; only cancellation and token store failures
// are returned.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	start := time.Now()
	result, err := m.login(ctx, email, password)
	m.observe("login", result, start)
	m.logger.Info("login", "result", result, "user", email)
	return err
}

func (m *Manager) login(ctx context.Context, email, password string) (string, error) {
	pair, err := m.api.ObtainToken(ctx, email, password)
	if err != nil {
		if cerr := canceled(ctx); cerr != nil {
			return "canceled", cerr
		}
		m.metrics.RecordError(err, "session")
		if isResponse(err) {
			m.notify(ctx, notify.Error("Login failed", failureDetail(err, "Could not log in. Please check your email and password.")))
			return "rejected", nil
		}
		m.notify(ctx, notify.Error("Error", "Something went wrong. Please try again."))
		return "transport_error", nil
	}

	if err := m.store.Set(ctx, pair); err != nil {
		m.storeFailure(ctx, "login", err)
		return "store_error", err
	}

	u, err := m.api.CurrentUser(ctx, pair.Access)
	if err != nil {
		// never keep tokens for a session that did not come up
		if cerr := m.store.Clear(context.WithoutCancel(ctx)); cerr != nil {
			m.storeFailure(ctx, "login", cerr)
		}
		m.setAnonymous(ctx)
		if cerr := canceled(ctx); cerr != nil {
			return "canceled", cerr
		}
		m.notify(ctx, notify.Error("Error", "Could not load your profile. Please try again."))
		return "user_fetch_failed", nil
	}

	m.setAuthenticated(ctx, u)
	m.notify(ctx, notify.Success("Success", "Logged in successfully."))

	if route.Normalize(m.router.Location()) != route.Normalize(m.policy.Landing) {
		if err := m.sleep(ctx, m.delay); err != nil {
			return "success", err
		}
		m.redirect(ctx, m.policy.Landing)
	}
	return "success", nil
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return canceled(ctx)
	}
}

// Signup registers an account and signs it in. When the backend answers
// without tokens the new credentials are exchanged for a pair.
func (m *Manager) Signup(ctx context.Context, reg api.Registration) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	start := time.Now()
	result, err := m.signup(ctx, reg)
	m.observe("signup", result, start)
	m.logger.Info("signup", "result", result, "user", reg.Email, "team", string(reg.TeamName))
	return err
}

func (m *Manager) signup(ctx context.Context, reg api.Registration) (string, error) {
	if err := reg.Validate(); err != nil {
		var he *errors.HangarError
		msg := err.Error()
		if stderrors.As(err, &he) {
			msg = he.Message
		}
		m.notify(ctx, notify.Error("Sign up failed", msg))
		return "invalid", nil
	}

	res, err := m.api.SignUp(ctx, reg)
	if err != nil {
		if cerr := canceled(ctx); cerr != nil {
			return "canceled", cerr
		}
		m.metrics.RecordError(err, "session")
		if isResponse(err) {
			m.notify(ctx, notify.Error("Sign up failed", failureDetail(err, "Could not create your account. Please check your details.")))
			return "rejected", nil
		}
		m.notify(ctx, notify.Error("Error", "Something went wrong during sign up. Please try again."))
		return "transport_error", nil
	}

	pair := res.Tokens
	if pair == nil {
		p, err := m.api.ObtainToken(ctx, reg.Email, reg.Password)
		if err != nil {
			if cerr := canceled(ctx); cerr != nil {
				return "canceled", cerr
			}
			m.notify(ctx, notify.Success("Account created", "Please log in with your new account."))
			m.redirect(ctx, m.policy.Login)
			return "created_without_session", nil
		}
		pair = &p
	}

	if err := m.store.Set(ctx, *pair); err != nil {
		m.storeFailure(ctx, "signup", err)
		return "store_error", err
	}

	user := res.User
	m.setAuthenticated(ctx, &user)
	m.notify(ctx, notify.Success("Success", "Your account has been created."))
	m.redirect(ctx, m.policy.Landing)
	return "success", nil
}

// Logout revokes the session remotely when both tokens are present, then
// always clears local credentials and navigates to the login view. Calling
// it without a session is a no-op apart from the notification.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	start := time.Now()
	err := m.logout(ctx)
	result := "success"
	if err != nil {
		result = "store_error"
	}
	m.observe("logout", result, start)
	return err
}

func (m *Manager) logout(ctx context.Context) error {
	pair, err := m.store.Get(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("could not read tokens for logout")
	}

	if pair.Shape() == tokenstore.ShapeComplete {
		if err := m.api.Logout(ctx, pair.Access, pair.Refresh); err != nil {
			m.logger.WithError(err).Warn("remote logout failed", "refresh", log.Fingerprint(pair.Refresh))
			if isResponse(err) {
				m.notify(ctx, notify.Error("Error", "There was a problem logging out."))
			} else {
				m.notify(ctx, notify.Error("Error", "An error occurred while logging out."))
			}
		}
	}

	// local teardown must happen even when ctx has ended
	local := context.WithoutCancel(ctx)
	var storeErr error
	if err := m.store.Clear(local); err != nil {
		m.storeFailure(local, "logout", err)
		storeErr = err
	}

	m.setAnonymous(local)
	m.notify(local, notify.Success("Success", "Logged out successfully."))
	m.redirect(local, m.policy.Login)
	m.logger.Info("logged out", "remote", pair.Shape() == tokenstore.ShapeComplete)
	return storeErr
}
