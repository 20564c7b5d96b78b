// Package apitest runs an in-process fake of the aircraft parts backend
// for tests. It issues HS256 JWTs so expiry checks see real claims.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

var signingKey = []byte("apitest-signing-key")

type account struct {
	id        int
	email     string
	password  string
	firstName string
	lastName  string
	team      inventory.Team
}

type part struct {
	inventory.Part
	partType inventory.PartType
}

// Backend is a fake backend server. Exported fields inject failures and
// may be changed between calls.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	accounts map[string]*account
	access   map[string]string
	refresh  map[string]string
	revoked  map[string]bool
	calls    map[string]int
	parts    []*part
	planes   []inventory.Plane
	seq      int

	// MeStatus, when set, is returned by the current-user endpoint
	MeStatus int
	// RefreshStatus, when set, is returned by the refresh endpoint
	RefreshStatus int
	// LogoutStatus, when set, is returned by the logout endpoint
	LogoutStatus int
	// SignUpTokens makes sign-up answer {user, tokens} instead of the bare profile
	SignUpTokens bool
	// RotateRefresh makes refresh answer with a new refresh token too
	RotateRefresh bool
	// AccessTTL is the lifetime of issued access tokens
	AccessTTL time.Duration
	// Delay is applied before every response
	Delay time.Duration
}

// New starts a Backend that is shut down when the test ends
func New(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		accounts:     make(map[string]*account),
		access:       make(map[string]string),
		refresh:      make(map[string]string),
		revoked:      make(map[string]bool),
		calls:        make(map[string]int),
		SignUpTokens: true,
		AccessTTL:    5 * time.Minute,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/users/token/", b.count("token", b.handleToken))
	mux.HandleFunc("POST /v1/users/token/refresh/", b.count("token_refresh", b.handleRefresh))
	mux.HandleFunc("GET /v1/users/me/", b.count("current_user", b.handleMe))
	mux.HandleFunc("POST /v1/users/sign-up/", b.count("sign_up", b.handleSignUp))
	mux.HandleFunc("POST /v1/users/logout/", b.count("logout", b.handleLogout))
	mux.HandleFunc("GET /v1/parts/", b.count("parts_list", b.handleListParts))
	mux.HandleFunc("POST /v1/parts/", b.count("parts_create", b.handleCreatePart))
	mux.HandleFunc("GET /v1/parts/score/", b.count("parts_score", b.handleScore))
	mux.HandleFunc("DELETE /v1/parts/{id}/", b.count("parts_delete", b.handleDeletePart))
	mux.HandleFunc("GET /v1/planes/", b.count("planes_list", b.handleListPlanes))
	mux.HandleFunc("POST /v1/planes/", b.count("planes_create", b.handleCreatePlane))

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the base URL of the fake
func (b *Backend) URL() string { return b.Server.URL }

// Calls returns how often the named endpoint was hit
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

// AddUser registers an account
func (b *Backend) AddUser(email, password string, team inventory.Team) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addUserLocked(email, password, "", "", team)
}

func (b *Backend) addUserLocked(email, password, first, last string, team inventory.Team) *account {
	b.seq++
	a := &account{id: b.seq, email: email, password: password, firstName: first, lastName: last, team: team}
	b.accounts[email] = a
	return a
}

// Issue returns a valid token pair for email
func (b *Backend) Issue(email string) tokenstore.Pair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(email)
}

// IssueExpired returns a pair whose access token has already expired
func (b *Backend) IssueExpired(email string) tokenstore.Pair {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.issueLocked(email)
	expired := b.sign(email, "access", -time.Minute)
	b.access[expired] = email
	p.Access = expired
	return p
}

// Revoke invalidates a token
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

// IsRevoked reports whether token was revoked by logout or Revoke
func (b *Backend) IsRevoked(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[token]
}

// AddPart stocks one part for the given plane
func (b *Backend) AddPart(pt inventory.PartType, plane inventory.PlaneType, used bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addPartLocked(pt, plane, used, nil)
}

func (b *Backend) addPartLocked(pt inventory.PartType, plane inventory.PlaneType, used bool, maker *account) int {
	b.seq++
	p := &part{
		Part: inventory.Part{
			ID:          b.seq,
			PartType:    pt.Label(),
			PlaneType:   plane,
			Team:        pt.Label(),
			UsedInPlane: used,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		},
		partType: pt,
	}
	if maker != nil {
		p.User = &inventory.Maker{ID: maker.id, Email: maker.email}
	}
	b.parts = append([]*part{p}, b.parts...)
	return p.ID
}

func (b *Backend) issueLocked(email string) tokenstore.Pair {
	p := tokenstore.Pair{
		Access:  b.sign(email, "access", b.AccessTTL),
		Refresh: b.sign(email, "refresh", 24*time.Hour),
	}
	b.access[p.Access] = email
	b.refresh[p.Refresh] = email
	return p
}

func (b *Backend) sign(email, kind string, ttl time.Duration) string {
	b.seq++
	claims := jwt.MapClaims{
		"sub":        email,
		"token_type": kind,
		"jti":        strconv.Itoa(b.seq),
		"exp":        time.Now().Add(ttl).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return s
}

func (b *Backend) count(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[name]++
		delay := b.Delay
		b.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func detail(msg string) map[string]any {
	return map[string]any{"detail": msg}
}

// authorize resolves the bearer token to an account
func (b *Backend) authorize(w http.ResponseWriter, r *http.Request) *account {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, detail("Authentication credentials were not provided."))
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email, ok := b.access[token]
	if !ok || b.revoked[token] || !valid(token) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid for any token type", "code": "token_not_valid"})
		return nil
	}
	return b.accounts[email]
}

func valid(token string) bool {
	_, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return signingKey, nil })
	return err == nil
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("malformed request"))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.accounts[in.Email]
	if !ok || a.password != in.Password {
		writeJSON(w, http.StatusUnauthorized, detail("No active account found with the given credentials"))
		return
	}
	writeJSON(w, http.StatusOK, b.issueLocked(a.email))
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.RefreshStatus != 0 {
		writeJSON(w, b.RefreshStatus, detail("refresh unavailable"))
		return
	}

	email, ok := b.refresh[in.Refresh]
	if !ok || b.revoked[in.Refresh] || !valid(in.Refresh) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	access := b.sign(email, "access", b.AccessTTL)
	b.access[access] = email
	out := map[string]string{"access": access}
	if b.RotateRefresh {
		next := b.sign(email, "refresh", 24*time.Hour)
		b.refresh[next] = email
		b.revoked[in.Refresh] = true
		out["refresh"] = next
	}
	writeJSON(w, http.StatusOK, out)
}

func profile(a *account) map[string]any {
	out := map[string]any{
		"id":         a.id,
		"email":      a.email,
		"first_name": a.firstName,
		"last_name":  a.lastName,
		"is_active":  true,
		"is_admin":   false,
	}
	if a.team != "" {
		out["team_name"] = string(a.team)
	} else {
		out["team_name"] = nil
	}
	return out
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	status := b.MeStatus
	b.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, detail("profile unavailable"))
		return
	}

	a := b.authorize(w, r)
	if a == nil {
		return
	}
	writeJSON(w, http.StatusOK, profile(a))
}

func (b *Backend) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		TeamName  string `json:"team_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed request"})
		return
	}

	team, err := inventory.ParseTeam(in.TeamName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"team_name": []string{fmt.Sprintf("Invalid team name: %s", in.TeamName)}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.accounts[in.Email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "A user with this email already exists."})
		return
	}

	a := b.addUserLocked(in.Email, in.Password, in.FirstName, in.LastName, team)
	if !b.SignUpTokens {
		writeJSON(w, http.StatusCreated, profile(a))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": profile(a), "tokens": b.issueLocked(a.email)})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	status := b.LogoutStatus
	b.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, detail("logout unavailable"))
		return
	}

	if a := b.authorize(w, r); a == nil {
		return
	}

	var in struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.refresh[in.Refresh]; !ok || b.revoked[in.Refresh] {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": []string{"Token is invalid or expired"}})
		return
	}
	b.revoked[in.Refresh] = true
	w.WriteHeader(http.StatusNoContent)
}

func pageOf[T any](r *http.Request, items []T) inventory.Page[T] {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * inventory.PageSize
	end := start + inventory.PageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	out := inventory.Page[T]{Count: len(items), Results: append([]T{}, items[start:end]...)}
	if end < len(items) {
		next := fmt.Sprintf("%s?page=%d", r.URL.Path, page+1)
		out.Next = &next
	}
	if page > 1 {
		prev := fmt.Sprintf("%s?page=%d", r.URL.Path, page-1)
		out.Previous = &prev
	}
	return out
}

func (b *Backend) handleListParts(w http.ResponseWriter, r *http.Request) {
	a := b.authorize(w, r)
	if a == nil {
		return
	}
	pt, ok := inventory.PartTypeFor(a.team)
	if !ok {
		writeJSON(w, http.StatusForbidden, detail("You do not have permission to perform this action."))
		return
	}

	b.mu.Lock()
	var items []inventory.Part
	for _, p := range b.parts {
		if p.partType == pt {
			items = append(items, p.Part)
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, pageOf(r, items))
}

func (b *Backend) handleCreatePart(w http.ResponseWriter, r *http.Request) {
	a := b.authorize(w, r)
	if a == nil {
		return
	}

	var in inventory.CreatePart
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("malformed request"))
		return
	}
	if err := in.Validate(a.team); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{err.Error()}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < in.Quantity; i++ {
		b.addPartLocked(in.PartType, in.PlaneType, false, a)
	}
	w.WriteHeader(http.StatusCreated)
}

func (b *Backend) handleDeletePart(w http.ResponseWriter, r *http.Request) {
	a := b.authorize(w, r)
	if a == nil {
		return
	}
	id, _ := strconv.Atoi(r.PathValue("id"))
	pt, _ := inventory.PartTypeFor(a.team)

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.parts {
		if p.ID == id && p.partType == pt && !p.UsedInPlane {
			b.parts = append(b.parts[:i], b.parts[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, detail("Not found."))
}

func (b *Backend) handleScore(w http.ResponseWriter, r *http.Request) {
	a := b.authorize(w, r)
	if a == nil {
		return
	}
	if a.team == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "User has no team."})
		return
	}
	pt, ok := inventory.PartTypeFor(a.team)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "This team does not produce parts."})
		return
	}

	scores := make(map[inventory.PlaneType]inventory.PlaneScore)
	for _, plane := range inventory.PlaneTypes() {
		scores[plane] = inventory.PlaneScore{}
	}

	b.mu.Lock()
	for _, p := range b.parts {
		if p.partType != pt {
			continue
		}
		s := scores[p.PlaneType]
		if p.UsedInPlane {
			s.Used++
		} else {
			s.Unused++
		}
		scores[p.PlaneType] = s
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, inventory.Score{Team: string(a.team), PartType: pt.Label(), Scores: scores})
}

func (b *Backend) handleListPlanes(w http.ResponseWriter, r *http.Request) {
	a := b.authorize(w, r)
	if a == nil {
		return
	}
	if a.team != inventory.TeamAssembly {
		writeJSON(w, http.StatusForbidden, detail("You do not have permission to perform this action."))
		return
	}

	b.mu.Lock()
	items := append([]inventory.Plane{}, b.planes...)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, pageOf(r, items))
}

func (b *Backend) handleCreatePlane(w http.ResponseWriter, r *http.Request) {
	a := b.authorize(w, r)
	if a == nil {
		return
	}
	if a.team != inventory.TeamAssembly {
		writeJSON(w, http.StatusForbidden, detail("You do not have permission to perform this action."))
		return
	}

	var in inventory.CreatePlane
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("malformed request"))
		return
	}
	if err := in.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": map[string]any{"parts_used": []string{err.Error()}}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var used []*part
	for _, u := range in.PartsUsed {
		found := 0
		for _, p := range b.parts {
			if found == u.Amount {
				break
			}
			if p.partType == u.PartType && p.PlaneType == in.PlaneType && !p.UsedInPlane && !contains(used, p) {
				used = append(used, p)
				found++
			}
		}
		if found < u.Amount {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"detail":           map[string]any{"non_field_errors": []string{fmt.Sprintf("%s is missing %d %s part(s)", in.PlaneType, u.Amount-found, u.PartType.Label())}},
				"fallback_message": "Not enough parts in stock",
			})
			return
		}
	}

	b.seq++
	plane := inventory.Plane{ID: b.seq, PlaneType: in.PlaneType, User: a.id, CreatedAt: time.Now().UTC()}
	for _, p := range used {
		p.UsedInPlane = true
		plane.PartsUsed = append(plane.PartsUsed, p.Part)
	}
	b.planes = append([]inventory.Plane{plane}, b.planes...)
	w.WriteHeader(http.StatusCreated)
}

func contains(list []*part, p *part) bool {
	for _, x := range list {
		if x == p {
			return true
		}
	}
	return false
}
