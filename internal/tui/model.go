package tui

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/session"
)

// Session is the session surface the dashboard drives
type Session interface {
	State() session.State
	Subscribe() (<-chan session.State, func())
	Initialize(ctx context.Context) (session.State, error)
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, reg api.Registration) error
	Logout(ctx context.Context) error
	Authorized(ctx context.Context, fn func(ctx context.Context) error) error
}

// Inventory is the backend surface the dashboard reads and writes
type Inventory interface {
	ListParts(ctx context.Context, page int) (*inventory.Page[inventory.Part], error)
	CreatePart(ctx context.Context, req inventory.CreatePart) error
	DeletePart(ctx context.Context, id int) error
	PartScore(ctx context.Context) (*inventory.Score, error)
	ListPlanes(ctx context.Context, page int) (*inventory.Page[inventory.Plane], error)
	CreatePlane(ctx context.Context, req inventory.CreatePlane) error
}

const (
	toastTTL  = 4 * time.Second
	maxToasts = 3
)

type mode int

const (
	modeBrowse mode = iota
	modeCreate
	modeDelete
)

type op string

const (
	opLogin       op = "login"
	opSignup      op = "signup"
	opLogout      op = "logout"
	opCreatePart  op = "create_part"
	opDeletePart  op = "delete_part"
	opCreatePlane op = "create_plane"
)

// Messages

type initDoneMsg struct {
	state session.State
	err   error
}

type stateMsg struct{ state session.State }

type noteMsg struct{ note notify.Notification }

type toastExpiredMsg struct{ id int }

type partsMsg struct {
	page int
	data *inventory.Page[inventory.Part]
	err  error
}

type planesMsg struct {
	page int
	data *inventory.Page[inventory.Plane]
	err  error
}

type scoreMsg struct {
	score *inventory.Score
	err   error
}

type doneMsg struct {
	op  op
	err error
}

type toast struct {
	id   int
	note notify.Notification
}

// Model represents the TUI application state
type Model struct {
	ctx      context.Context
	sess     Session
	inv      Inventory
	nav      *Navigator
	notifier notify.Notifier
	notes    <-chan notify.Notification
	states   <-chan session.State
	logger   *log.Logger

	// session state
	state    session.State
	location string
	ready    bool
	busy     bool

	// UI state
	width    int
	height   int
	quitting bool
	mode     mode

	// forms; the values are pointers because huh binds to them
	form     *huh.Form
	login    *LoginValues
	signup   *SignupValues
	part     *PartValues
	plane    *PlaneValues
	confirm  *bool
	deleting int

	// dashboard data
	page   int
	total  int
	count  int
	parts  []inventory.Part
	planes []inventory.Plane
	score  *inventory.Score
	table  table.Model
	pager  paginator.Model

	spinner spinner.Model
	help    help.Model
	keys    keyMap

	toasts   []toast
	toastSeq int

	styles Styles
}

// NewModel creates the dashboard model
func NewModel(ctx context.Context, opts Options) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	pager := paginator.New()
	pager.Type = paginator.Dots
	pager.PerPage = inventory.PageSize

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}

	return Model{
		ctx:      ctx,
		sess:     opts.Session,
		inv:      opts.Inventory,
		nav:      opts.Navigator,
		notifier: notifier,
		notes:    opts.Notes,
		logger:   log.Or(opts.Logger).With("component", "tui"),
		state:    session.State{IsLoading: true},
		location: opts.Navigator.Location(),
		login:    &LoginValues{},
		page:     1,
		total:    1,
		pager:    pager,
		spinner:  sp,
		help:     help.New(),
		keys:     defaultKeys(),
		styles:   DefaultStyles(),
	}
}

// Init initializes the TUI model (required by Bubble Tea)
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.initialize}
	if m.notes != nil {
		cmds = append(cmds, waitNote(m.notes))
	}
	if m.states != nil {
		cmds = append(cmds, waitState(m.states))
	}
	return tea.Batch(cmds...)
}

func (m Model) initialize() tea.Msg {
	s, err := m.sess.Initialize(m.ctx)
	return initDoneMsg{state: s, err: err}
}

func waitNote(ch <-chan notify.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noteMsg{note: n}
	}
}

func waitState(ch <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg{state: s}
	}
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case initDoneMsg:
		m.ready = true
		if msg.err != nil {
			m.logger.WithError(msg.err).Warn("session restore failed")
		}
		return m.enter(m.nav.Location())

	case NavigateMsg:
		// the first location is picked up when Initialize returns
		if !m.ready {
			return m, nil
		}
		return m.enter(msg.To)

	case stateMsg:
		m.state = msg.state
		return m, waitState(m.states)

	case noteMsg:
		var cmd tea.Cmd
		m, cmd = m.addToast(msg.note)
		return m, tea.Batch(cmd, waitNote(m.notes))

	case toastExpiredMsg:
		m.dropToast(msg.id)
		return m, nil

	case partsMsg:
		return m.gotParts(msg)

	case planesMsg:
		return m.gotPlanes(msg)

	case scoreMsg:
		if msg.err != nil {
			m.report(msg.err, "Could not load the part score.")
			return m, nil
		}
		m.score = msg.score
		return m, nil

	case doneMsg:
		return m.finished(msg)
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	return m, nil
}

// enter sets up the view for loc
func (m Model) enter(loc string) (Model, tea.Cmd) {
	m.location = route.Normalize(loc)
	m.state = m.sess.State()
	m.mode = modeBrowse
	m.form = nil

	switch m.location {
	case route.Login:
		m.login.Password = ""
		m.form = LoginForm(m.login)
		return m, m.form.Init()
	case route.Signup:
		m.signup = &SignupValues{Team: string(inventory.TeamWing)}
		m.form = SignupForm(m.signup)
		return m, m.form.Init()
	case route.Landing:
		m.page = 1
		m.parts, m.planes, m.score = nil, nil, nil
		m.table = m.newTable()
		return m, m.fetch()
	}
	return m, nil
}

func (m Model) team() inventory.Team {
	if m.state.User == nil {
		return ""
	}
	return m.state.User.Team()
}

func (m Model) board() inventory.View {
	return inventory.ViewFor(m.team())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.ready || m.busy {
		return m, nil
	}

	switch m.location {
	case route.Login:
		if key.Matches(msg, m.keys.ToSignup) {
			return m, m.navigate(route.Signup)
		}
	case route.Signup:
		if key.Matches(msg, m.keys.Back) {
			return m, m.navigate(route.Login)
		}
	case route.Landing:
		if m.mode != modeBrowse {
			if key.Matches(msg, m.keys.Back) {
				m.mode = modeBrowse
				m.form = nil
				return m, nil
			}
			break
		}
		return m.browseKey(msg)
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) browseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		if m.page < m.total {
			m.page++
			return m, m.fetchPage()
		}
		return m, nil
	case key.Matches(msg, m.keys.Prev):
		if m.page > 1 {
			m.page--
			return m, m.fetchPage()
		}
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		return m, m.fetch()
	case key.Matches(msg, m.keys.Logout):
		m.busy = true
		return m, m.run(opLogout, m.sess.Logout)
	case key.Matches(msg, m.keys.Create):
		return m.startCreate()
	case key.Matches(msg, m.keys.Delete):
		return m.startDelete()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) startCreate() (tea.Model, tea.Cmd) {
	switch m.board() {
	case inventory.ViewParts:
		m.part = NewPartValues(m.team())
		m.form = PartForm(m.part, m.team())
	case inventory.ViewPlanes:
		m.plane = &PlaneValues{PlaneType: string(inventory.PlaneTB2)}
		m.form = PlaneForm(m.plane)
	default:
		return m, nil
	}
	m.mode = modeCreate
	return m, m.form.Init()
}

func (m Model) startDelete() (tea.Model, tea.Cmd) {
	if m.board() != inventory.ViewParts {
		return m, nil
	}
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return m, nil
	}
	id, err := strconv.Atoi(row[0])
	if err != nil {
		return m, nil
	}
	m.deleting = id
	m.confirm = new(bool)
	m.form = DeleteForm(id, m.confirm)
	m.mode = modeDelete
	return m, m.form.Init()
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	f, cmd := m.form.Update(msg)
	if form, ok := f.(*huh.Form); ok {
		m.form = form
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.submit(cmd)
	case huh.StateAborted:
		m.form = nil
		m.mode = modeBrowse
	}
	return m, cmd
}

// submit acts on a completed form
func (m Model) submit(formCmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.form = nil

	switch m.location {
	case route.Login:
		m.busy = true
		email, password := m.login.Email, m.login.Password
		return m, tea.Batch(formCmd, m.run(opLogin, func(ctx context.Context) error {
			return m.sess.Login(ctx, email, password)
		}))

	case route.Signup:
		m.busy = true
		reg := m.signup.Registration()
		return m, tea.Batch(formCmd, m.run(opSignup, func(ctx context.Context) error {
			return m.sess.Signup(ctx, reg)
		}))

	case route.Landing:
		current := m.mode
		m.mode = modeBrowse
		switch {
		case current == modeDelete && *m.confirm:
			id := m.deleting
			return m, m.authorized(opDeletePart, func(ctx context.Context) error {
				return m.inv.DeletePart(ctx, id)
			})
		case current == modeCreate && m.board() == inventory.ViewParts:
			req, err := m.part.Request()
			if err == nil {
				err = req.Validate(m.team())
			}
			if err != nil {
				m.report(err, "Could not create the part.")
				return m, formCmd
			}
			return m, m.authorized(opCreatePart, func(ctx context.Context) error {
				return m.inv.CreatePart(ctx, req)
			})
		case current == modeCreate && m.board() == inventory.ViewPlanes:
			req := inventory.NewCreatePlane(inventory.PlaneType(m.plane.PlaneType))
			if err := req.Validate(); err != nil {
				m.report(err, "Could not assemble the plane.")
				return m, formCmd
			}
			return m, m.authorized(opCreatePlane, func(ctx context.Context) error {
				return m.inv.CreatePlane(ctx, req)
			})
		}
	}
	return m, formCmd
}

// finished handles the end of a session or write operation
func (m Model) finished(msg doneMsg) (tea.Model, tea.Cmd) {
	m.busy = false

	switch msg.op {
	case opLogin, opSignup:
		if msg.err != nil {
			m.report(msg.err, "Something went wrong. Please try again.")
		}
		// a failed attempt stays on the form view
		if m.form == nil && (m.location == route.Login || m.location == route.Signup) {
			return m.enter(m.location)
		}
		return m, nil

	case opLogout:
		if msg.err != nil {
			m.report(msg.err, "Could not clear stored credentials.")
		}
		return m, nil
	}

	if msg.err != nil {
		switch msg.op {
		case opCreatePart:
			m.report(msg.err, "Could not create the part.")
		case opDeletePart:
			m.report(msg.err, "Could not delete the part.")
		case opCreatePlane:
			m.report(msg.err, "Could not assemble the plane.")
		}
		return m, nil
	}

	switch msg.op {
	case opCreatePart:
		m.notifier.Notify(m.ctx, notify.Success("Success", "Part created successfully."))
	case opDeletePart:
		m.notifier.Notify(m.ctx, notify.Success("Success", "Part deleted successfully."))
	case opCreatePlane:
		m.notifier.Notify(m.ctx, notify.Success("Success", "Plane assembled successfully."))
	}
	return m, m.fetch()
}

// report turns a failure into an error notification. Failures the session
// has already surfaced are only logged.
func (m Model) report(err error, fallback string) {
	m.logger.WithError(err).Debug("operation failed")

	if stderrors.Is(err, api.ErrNoAccessToken) ||
		stderrors.Is(err, session.ErrOperationCanceled) ||
		stderrors.Is(err, session.ErrClosed) ||
		errors.HasCode(err, errors.ErrCodeSessionExpired) {
		return
	}

	detail := api.DetailOf(err)
	var he *errors.HangarError
	if detail == "" && api.StatusOf(err) == 0 && stderrors.As(err, &he) && he.Code == errors.ErrCodeInvalidInput {
		detail = he.Message
	}
	if detail == "" {
		detail = fallback
	}
	m.notifier.Notify(m.ctx, notify.Error("Error", detail))
}

// navigate moves the session to another view. It runs as a command since
// the navigator delivers the move back to the program.
func (m Model) navigate(to string) tea.Cmd {
	nav, ctx := m.nav, m.ctx
	return func() tea.Msg {
		_ = nav.Navigate(ctx, to)
		return nil
	}
}

func (m Model) run(o op, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{op: o, err: fn(ctx)}
	}
}

func (m Model) authorized(o op, fn func(ctx context.Context) error) tea.Cmd {
	return m.run(o, func(ctx context.Context) error {
		return m.sess.Authorized(ctx, fn)
	})
}

// Toasts

func (m Model) addToast(n notify.Notification) (Model, tea.Cmd) {
	m.toastSeq++
	id := m.toastSeq
	m.toasts = append(m.toasts, toast{id: id, note: n})
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
	return m, tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
}

func (m *Model) dropToast(id int) {
	var kept []toast
	for _, t := range m.toasts {
		if t.id != id {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}
