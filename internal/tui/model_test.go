package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/session"
)

type fakeSession struct {
	mu       sync.Mutex
	state    session.State
	nav      *Navigator
	initGoTo string
	logins   []string
	logouts  int
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Subscribe() (<-chan session.State, func()) {
	ch := make(chan session.State)
	return ch, func() {}
}

func (f *fakeSession) Initialize(ctx context.Context) (session.State, error) {
	f.mu.Lock()
	f.state.IsLoading = false
	s := f.state
	f.mu.Unlock()
	if f.initGoTo != "" {
		_ = f.nav.Navigate(ctx, f.initGoTo)
	}
	return s, nil
}

func (f *fakeSession) Login(_ context.Context, email, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, email)
	return nil
}

func (f *fakeSession) Signup(context.Context, api.Registration) error { return nil }

func (f *fakeSession) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeSession) Authorized(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeInventory struct {
	parts   *inventory.Page[inventory.Part]
	planes  *inventory.Page[inventory.Plane]
	score   *inventory.Score
	listErr error
	created []inventory.CreatePart
	deleted []int
}

func (f *fakeInventory) ListParts(context.Context, int) (*inventory.Page[inventory.Part], error) {
	return f.parts, f.listErr
}

func (f *fakeInventory) CreatePart(_ context.Context, req inventory.CreatePart) error {
	f.created = append(f.created, req)
	return nil
}

func (f *fakeInventory) DeletePart(_ context.Context, id int) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeInventory) PartScore(context.Context) (*inventory.Score, error) {
	return f.score, nil
}

func (f *fakeInventory) ListPlanes(context.Context, int) (*inventory.Page[inventory.Plane], error) {
	return f.planes, f.listErr
}

func (f *fakeInventory) CreatePlane(context.Context, inventory.CreatePlane) error { return nil }

func strp(s string) *string { return &s }

func partsPage(count int, ids ...int) *inventory.Page[inventory.Part] {
	p := &inventory.Page[inventory.Part]{Count: count}
	if count > len(ids) {
		p.Next = strp("https://api.example.com/v1/parts/?page=2")
	}
	for _, id := range ids {
		p.Results = append(p.Results, inventory.Part{
			ID: id, PartType: "Wing", PlaneType: inventory.PlaneTB2,
			CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		})
	}
	return p
}

type fixture struct {
	sess  *fakeSession
	inv   *fakeInventory
	notes *notify.Buffer
	model Model
}

func newFixture(t *testing.T, team string, start string) *fixture {
	t.Helper()

	nav := NewNavigator(start)
	f := &fixture{
		sess:  &fakeSession{nav: nav, state: session.State{IsLoading: true}},
		inv:   &fakeInventory{parts: partsPage(0), planes: &inventory.Page[inventory.Plane]{}},
		notes: &notify.Buffer{},
	}
	if team != "" {
		f.sess.state.User = &api.User{Email: "a@b.com", FirstName: "Ada", TeamName: team}
		f.sess.state.IsAuthenticated = true
	}
	f.model = NewModel(context.Background(), Options{
		Session:   f.sess,
		Inventory: f.inv,
		Navigator: nav,
		Notifier:  f.notes,
	})
	return f
}

// send feeds msg to the model and keeps the result
func (f *fixture) send(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := f.model.Update(msg)
	m, ok := next.(Model)
	require.True(t, ok, "Update returned %T", next)
	f.model = m
	return cmd
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.send(t, f.model.initialize())
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNavigator(t *testing.T) {
	nav := NewNavigator("dashboard?tab=parts")
	assert.Equal(t, "/dashboard", nav.Location())

	var got []tea.Msg
	nav.Attach(func(msg tea.Msg) { got = append(got, msg) })

	require.NoError(t, nav.Navigate(context.Background(), "/login/"))
	assert.Equal(t, "/login", nav.Location())
	assert.Equal(t, []tea.Msg{NavigateMsg{To: "/login"}}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, nav.Navigate(ctx, "/signup"), context.Canceled)
	assert.Equal(t, "/login", nav.Location())

	nav.Attach(nil)
	require.NoError(t, nav.Navigate(context.Background(), "/signup"))
	assert.Len(t, got, 1)
}

func TestModel_LoadingView(t *testing.T) {
	f := newFixture(t, "", route.Landing)

	assert.Contains(t, f.model.View(), "Restoring session")

	// navigation during Initialize is picked up when it returns
	assert.Nil(t, f.send(t, NavigateMsg{To: route.Login}))
	assert.False(t, f.model.ready)
}

func TestModel_GuardSendsToLogin(t *testing.T) {
	f := newFixture(t, "", route.Landing)
	f.sess.initGoTo = route.Login

	f.start(t)

	assert.True(t, f.model.ready)
	assert.Equal(t, route.Login, f.model.location)
	require.NotNil(t, f.model.form)
	assert.Contains(t, f.model.View(), "Log in")
}

func TestModel_PartsDashboard(t *testing.T) {
	f := newFixture(t, "WING", route.Landing)
	f.inv.parts = partsPage(12, 1, 2)
	f.inv.score = &inventory.Score{
		Team: "WING", PartType: "Wing",
		Scores: map[inventory.PlaneType]inventory.PlaneScore{inventory.PlaneTB2: {Used: 2, Unused: 5}},
	}

	f.start(t)
	require.Equal(t, route.Landing, f.model.location)

	f.send(t, f.model.loadParts(1))
	f.send(t, f.model.loadScore())

	assert.Equal(t, 2, f.model.total)
	assert.Len(t, f.model.table.Rows(), 2)

	view := f.model.View()
	assert.Contains(t, view, "Parts")
	assert.Contains(t, view, "Ada (WING)")
	assert.Contains(t, view, "Page 1 of 2")
	assert.Contains(t, view, "in stock")
}

func TestModel_PlanesDashboardForAssembly(t *testing.T) {
	f := newFixture(t, "ASSEMBLY", route.Landing)
	f.inv.planes = &inventory.Page[inventory.Plane]{
		Count:   1,
		Results: []inventory.Plane{{ID: 4, PlaneType: inventory.PlaneAkinci, PartsUsed: make([]inventory.Part, 5)}},
	}

	f.start(t)
	f.send(t, f.model.loadPlanes(1))

	require.Len(t, f.model.table.Rows(), 1)
	assert.Equal(t, "5", f.model.table.Rows()[0][2])
	assert.Contains(t, f.model.View(), "Planes")

	// assembly cannot delete
	f.send(t, keyMsg("d"))
	assert.Equal(t, modeBrowse, f.model.mode)
}

func TestModel_Pagination(t *testing.T) {
	f := newFixture(t, "TAIL", route.Landing)
	f.inv.parts = partsPage(12, 1, 2)
	f.start(t)
	f.send(t, f.model.loadParts(1))

	cmd := f.send(t, keyMsg("n"))
	assert.NotNil(t, cmd)
	assert.Equal(t, 2, f.model.page)

	assert.Nil(t, f.send(t, keyMsg("n")), "no page after the last")
	assert.Equal(t, 2, f.model.page)

	f.send(t, keyMsg("p"))
	assert.Equal(t, 1, f.model.page)
	assert.Nil(t, f.send(t, keyMsg("p")))
}

func TestModel_EmptyPageStepsBack(t *testing.T) {
	f := newFixture(t, "WING", route.Landing)
	f.start(t)

	cmd := f.send(t, partsMsg{page: 3, data: partsPage(20)})

	assert.NotNil(t, cmd)
	assert.Equal(t, 2, f.model.page)
}

func TestModel_DeleteFlow(t *testing.T) {
	f := newFixture(t, "WING", route.Landing)
	f.inv.parts = partsPage(2, 41, 42)
	f.start(t)
	f.send(t, f.model.loadParts(1))

	f.send(t, keyMsg("d"))
	require.Equal(t, modeDelete, f.model.mode)
	assert.Equal(t, 41, f.model.deleting)
	require.NotNil(t, f.model.form)

	f.send(t, keyMsg("esc"))
	assert.Equal(t, modeBrowse, f.model.mode)
	assert.Nil(t, f.model.form)
}

func TestModel_FinishedWriteRefetches(t *testing.T) {
	f := newFixture(t, "WING", route.Landing)
	f.start(t)

	cmd := f.send(t, doneMsg{op: opCreatePart})

	assert.NotNil(t, cmd)
	require.Len(t, f.notes.All(), 1)
	assert.Equal(t, notify.Success("Success", "Part created successfully."), f.notes.All()[0])
}

func TestModel_Report(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []notify.Notification
	}{
		{
			name: "missing token is surfaced by the session",
			err:  api.ErrNoAccessToken,
		},
		{
			name: "expired session is surfaced by the session",
			err:  errors.NewSessionExpiredError(nil),
		},
		{
			name: "canceled",
			err:  session.ErrOperationCanceled,
		},
		{
			name: "backend detail",
			err:  &api.ResponseError{Endpoint: "/v1/planes/", Status: 400, Detail: "Not enough WING parts for TB2."},
			want: []notify.Notification{notify.Error("Error", "Not enough WING parts for TB2.")},
		},
		{
			name: "local validation",
			err:  errors.NewInvalidInputError("quantity", "must be at least 1"),
			want: []notify.Notification{notify.Error("Error", "invalid quantity: must be at least 1")},
		},
		{
			name: "fallback",
			err:  context.DeadlineExceeded,
			want: []notify.Notification{notify.Error("Error", "Could not do it.")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "WING", route.Landing)
			f.model.report(tt.err, "Could not do it.")
			if len(tt.want) == 0 {
				assert.Empty(t, f.notes.All())
				return
			}
			assert.Equal(t, tt.want, f.notes.All())
		})
	}
}

func TestModel_LoginFailureRebuildsForm(t *testing.T) {
	f := newFixture(t, "", route.Login)
	f.start(t)
	f.model.login.Email = "a@b.com"
	f.model.login.Password = "wrong"
	f.model.form = nil
	f.model.busy = true

	f.send(t, doneMsg{op: opLogin})

	assert.False(t, f.model.busy)
	require.NotNil(t, f.model.form)
	assert.Equal(t, "a@b.com", f.model.login.Email)
	assert.Empty(t, f.model.login.Password)
}

func TestModel_LogoutKey(t *testing.T) {
	f := newFixture(t, "WING", route.Landing)
	f.start(t)

	cmd := f.send(t, keyMsg("o"))
	require.NotNil(t, cmd)
	assert.True(t, f.model.busy)

	msg := cmd()
	assert.Equal(t, doneMsg{op: opLogout}, msg)
	assert.Equal(t, 1, f.sess.logouts)
}

func TestModel_Toasts(t *testing.T) {
	f := newFixture(t, "", route.Login)

	for i := 0; i < maxToasts+1; i++ {
		f.send(t, noteMsg{note: notify.Error("Login failed", "No active account")})
	}
	require.Len(t, f.model.toasts, maxToasts)
	first := f.model.toasts[0].id
	assert.Equal(t, 2, first, "oldest toast is dropped")
	assert.Contains(t, f.model.View(), "No active account")

	f.send(t, toastExpiredMsg{id: first})
	assert.Len(t, f.model.toasts, maxToasts-1)
}

func TestModel_ForceQuit(t *testing.T) {
	f := newFixture(t, "", route.Login)

	cmd := f.send(t, keyMsg("ctrl+c"))

	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, f.model.View())
}

func TestModel_NoTeam(t *testing.T) {
	f := newFixture(t, "", route.Landing)
	f.sess.state.User = &api.User{Email: "new@b.com"}
	f.sess.state.IsAuthenticated = true

	f.start(t)

	assert.Contains(t, f.model.View(), "not assigned to a team")
}
