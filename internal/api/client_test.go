package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/api/apitest"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

func newClient(t *testing.T, baseURL string, store tokenstore.Store) *api.Client {
	t.Helper()
	if store == nil {
		store = tokenstore.NewMemory(tokenstore.DefaultAttributes())
	}
	c, err := api.New(api.Options{
		BaseURL:       baseURL,
		AllowInsecure: true,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		Timeout:       5 * time.Second,
		Store:         store,
		UserAgent:     "hangar-test",
	})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		opts     api.Options
		wantCode errors.ErrorCode
	}{
		{"empty url", api.Options{}, errors.ErrCodeConfigInvalid},
		{"relative url", api.Options{BaseURL: "/v1"}, errors.ErrCodeConfigInvalid},
		{"plain http remote", api.Options{BaseURL: "http://api.example.com"}, errors.ErrCodeInsecure},
		{"plain http remote allow insecure", api.Options{BaseURL: "http://api.example.com", AllowInsecure: true}, errors.ErrCodeInsecure},
		{"loopback without allow insecure", api.Options{BaseURL: "http://127.0.0.1:8000"}, errors.ErrCodeInsecure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := api.New(tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.Code(err))
		})
	}

	t.Run("https accepted", func(t *testing.T) {
		c, err := api.New(api.Options{BaseURL: "https://api.example.com/"})
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", c.BaseURL())
	})

	t.Run("insecure store allows http", func(t *testing.T) {
		store := tokenstore.NewMemory(tokenstore.Attributes{Secure: false, SameSite: tokenstore.SameSiteStrict})
		_, err := api.New(api.Options{BaseURL: "http://api.example.com", Store: store})
		require.NoError(t, err)
	})
}

func TestObtainToken(t *testing.T) {
	b := apitest.New(t)
	b.AddUser("pilot@example.com", "s3cret", inventory.TeamWing)
	c := newClient(t, b.URL(), nil)
	ctx := context.Background()

	pair, err := c.ObtainToken(ctx, "pilot@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, tokenstore.ShapeComplete, pair.Shape())

	_, err = c.ObtainToken(ctx, "pilot@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, "No active account found with the given credentials", api.DetailOf(err))
	assert.Equal(t, errors.ErrCodeAPIResponse, errors.Code(err))
}

func TestObtainToken_IncompletePair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access":"only-access"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	_, err := c.ObtainToken(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAPIDecode))
	assert.True(t, errors.HasCode(err, errors.ErrCodeTokenInconsistency))
}

func TestRefreshToken(t *testing.T) {
	b := apitest.New(t)
	b.AddUser("pilot@example.com", "s3cret", inventory.TeamWing)
	c := newClient(t, b.URL(), nil)
	ctx := context.Background()
	pair := b.Issue("pilot@example.com")

	out, err := c.RefreshToken(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Access)
	assert.NotEqual(t, pair.Access, out.Access)
	assert.Empty(t, out.Refresh, "refresh is not rotated by default")

	b.RotateRefresh = true
	out, err = c.RefreshToken(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Refresh)

	_, err = c.RefreshToken(ctx, pair.Refresh)
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err), "rotated refresh token is revoked")
}

func TestCurrentUser(t *testing.T) {
	b := apitest.New(t)
	b.AddUser("pilot@example.com", "s3cret", inventory.TeamAssembly)
	c := newClient(t, b.URL(), nil)
	ctx := context.Background()
	pair := b.Issue("pilot@example.com")

	u, err := c.CurrentUser(ctx, pair.Access)
	require.NoError(t, err)
	assert.Equal(t, "pilot@example.com", u.Email)
	assert.Equal(t, inventory.TeamAssembly, u.Team())
	assert.Equal(t, "pilot@example.com", u.DisplayName())

	_, err = c.CurrentUser(ctx, "garbage")
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))

	expired := b.IssueExpired("pilot@example.com")
	_, err = c.CurrentUser(ctx, expired.Access)
	assert.True(t, api.IsUnauthorized(err))
}

func TestCurrentUser_SendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"id":1,"email":"a@b.c"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	_, err := c.CurrentUser(context.Background(), "tok-123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.NotEmpty(t, got.Get(api.RequestIDHeader))
	assert.Equal(t, "hangar-test", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestSignUp(t *testing.T) {
	tests := []struct {
		name       string
		withTokens bool
	}{
		{"wrapped response with tokens", true},
		{"bare profile", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := apitest.New(t)
			b.SignUpTokens = tt.withTokens
			c := newClient(t, b.URL(), nil)

			res, err := c.SignUp(context.Background(), api.Registration{
				Email:     "new@example.com",
				Password:  "pw",
				FirstName: "Ada",
				LastName:  "Lovelace",
				TeamName:  inventory.TeamTail,
			})
			require.NoError(t, err)
			assert.Equal(t, "new@example.com", res.User.Email)
			assert.Equal(t, inventory.TeamTail, res.User.Team())
			assert.Equal(t, "Ada Lovelace", res.User.DisplayName())
			if tt.withTokens {
				require.NotNil(t, res.Tokens)
				assert.Equal(t, tokenstore.ShapeComplete, res.Tokens.Shape())
			} else {
				assert.Nil(t, res.Tokens)
			}
		})
	}
}

func TestSignUp_Conflict(t *testing.T) {
	b := apitest.New(t)
	b.AddUser("taken@example.com", "pw", inventory.TeamFuselage)
	c := newClient(t, b.URL(), nil)

	_, err := c.SignUp(context.Background(), api.Registration{Email: "taken@example.com", Password: "pw", TeamName: inventory.TeamFuselage})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, api.StatusOf(err))
	assert.Equal(t, "A user with this email already exists.", api.DetailOf(err))
}

func TestRegistration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		reg     api.Registration
		wantErr bool
	}{
		{"valid", api.Registration{Email: "a@b.c", Password: "x", TeamName: inventory.TeamWing}, false},
		{"missing email", api.Registration{Password: "x", TeamName: inventory.TeamWing}, true},
		{"missing password", api.Registration{Email: "a@b.c", TeamName: inventory.TeamWing}, true},
		{"unknown team", api.Registration{Email: "a@b.c", Password: "x", TeamName: "NOSE"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	b := apitest.New(t)
	b.AddUser("pilot@example.com", "s3cret", inventory.TeamWing)
	c := newClient(t, b.URL(), nil)
	pair := b.Issue("pilot@example.com")

	require.NoError(t, c.Logout(context.Background(), pair.Access, pair.Refresh))
	assert.True(t, b.IsRevoked(pair.Refresh))

	err := c.Logout(context.Background(), pair.Access, pair.Refresh)
	require.Error(t, err)
	assert.Equal(t, "Token is invalid or expired", api.DetailOf(err))
}

func TestInventoryCalls_UseStoredToken(t *testing.T) {
	b := apitest.New(t)
	b.AddUser("wings@example.com", "pw", inventory.TeamWing)
	for i := 0; i < 12; i++ {
		b.AddPart(inventory.PartWing, inventory.PlaneTB2, false)
	}
	b.AddPart(inventory.PartTail, inventory.PlaneTB2, false)

	store := tokenstore.NewMemory(tokenstore.DefaultAttributes())
	c := newClient(t, b.URL(), store)
	ctx := context.Background()

	_, err := c.ListParts(ctx, 1)
	require.ErrorIs(t, err, api.ErrNoAccessToken)
	assert.Equal(t, 0, b.Calls("parts_list"), "no request leaves without a token")

	require.NoError(t, store.Set(ctx, b.Issue("wings@example.com")))

	page, err := c.ListParts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 12, page.Count)
	assert.Len(t, page.Results, inventory.PageSize)
	assert.True(t, page.HasNext())
	assert.Equal(t, 2, page.TotalPages())

	page, err = c.ListParts(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, page.Results, 2)
	assert.False(t, page.HasNext())
	assert.True(t, page.HasPrevious())

	score, err := c.PartScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, score.Scores[inventory.PlaneTB2].Unused)

	require.NoError(t, c.CreatePart(ctx, inventory.CreatePart{PartType: inventory.PartWing, PlaneType: inventory.PlaneAkinci, Quantity: 2}))
	page, err = c.ListParts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 14, page.Count)

	require.NoError(t, c.DeletePart(ctx, page.Results[0].ID))
	err = c.DeletePart(ctx, page.Results[0].ID)
	assert.Equal(t, http.StatusNotFound, api.StatusOf(err))

	err = c.DeletePart(ctx, 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = c.ListPlanes(ctx, 1)
	assert.Equal(t, http.StatusForbidden, api.StatusOf(err))
}

func TestCreatePlane(t *testing.T) {
	b := apitest.New(t)
	b.AddUser("assembly@example.com", "pw", inventory.TeamAssembly)
	store := tokenstore.NewMemory(tokenstore.DefaultAttributes())
	c := newClient(t, b.URL(), store)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, b.Issue("assembly@example.com")))

	req := inventory.NewCreatePlane(inventory.PlaneKizilelma)
	err := c.CreatePlane(ctx, req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, api.StatusOf(err))
	assert.Contains(t, api.DetailOf(err), "missing")

	for _, pt := range inventory.PartTypes() {
		for i := 0; i < inventory.RequiredAmount(pt); i++ {
			b.AddPart(pt, inventory.PlaneKizilelma, false)
		}
	}
	require.NoError(t, c.CreatePlane(ctx, req))

	planes, err := c.ListPlanes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, planes.Results, 1)
	assert.Equal(t, inventory.PlaneKizilelma, planes.Results[0].PlaneType)
	assert.Len(t, planes.Results[0].PartsUsed, 5)
}

func TestRetry_IdempotentOnly(t *testing.T) {
	var gets, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if gets.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": "a@b.c"})
			return
		}
		posts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	ctx := context.Background()

	u, err := c.CurrentUser(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.Email)
	assert.Equal(t, int32(3), gets.Load())

	_, err = c.ObtainToken(ctx, "a@b.c", "x")
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, api.StatusOf(err))
	assert.Equal(t, int32(1), posts.Load(), "token exchange is never retried")
}

func TestRetry_ExhaustedReturnsResponseError(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream down"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	_, err := c.CurrentUser(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, api.StatusOf(err))
	assert.Equal(t, "upstream down", api.DetailOf(err))
	assert.Equal(t, int32(3), gets.Load())
}

func TestRetry_NotOnUnauthorized(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	_, err := c.CurrentUser(context.Background(), "tok")
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, int32(1), gets.Load())
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := newClient(t, addr, nil)
	_, err := c.ObtainToken(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransport, errors.Code(err))
}

func TestCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ObtainToken(ctx, "a@b.c", "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	_, err := c.ObtainToken(context.Background(), "a@b.c", "x")
	assert.Equal(t, errors.ErrCodeAPIDecode, errors.Code(err))
}

func TestCredentialGuard_SameSite(t *testing.T) {
	// The API is addressed as localhost; a redirect to 127.0.0.1 is a different host.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"email":"a@b.c"}`))
	}))
	defer target.Close()

	api127 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+r.URL.Path, http.StatusFound)
	}))
	defer api127.Close()
	u, err := url.Parse(api127.URL)
	require.NoError(t, err)
	localhostURL := "http://localhost:" + u.Port()

	tests := []struct {
		name     string
		sameSite tokenstore.SameSite
		wantErr  bool
	}{
		{"strict blocks other host", tokenstore.SameSiteStrict, true},
		{"lax blocks unrelated host", tokenstore.SameSiteLax, true},
		{"none allows any host", tokenstore.SameSiteNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tokenstore.NewMemory(tokenstore.Attributes{Secure: true, SameSite: tt.sameSite})
			c := newClient(t, localhostURL, store)
			_, err := c.CurrentUser(context.Background(), "tok")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInsecure, errors.Code(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}
