package tui

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/notify"
)

// Options wires the dashboard to a session
type Options struct {
	// Session must route its redirects through Navigator
	Session   Session
	Inventory Inventory
	Navigator *Navigator
	// Notes delivers the notifications shown as toasts
	Notes <-chan notify.Notification
	// Notifier receives the outcome of dashboard writes; it should feed Notes
	Notifier notify.Notifier
	Logger   *log.Logger

	// Input and Output override the terminal
	Input  io.Reader
	Output io.Writer
}

// Run shows the dashboard until the user quits or ctx ends
func Run(ctx context.Context, opts Options) error {
	if opts.Session == nil || opts.Inventory == nil || opts.Navigator == nil {
		return fmt.Errorf("tui: Session, Inventory and Navigator are required")
	}

	states, stop := opts.Session.Subscribe()
	defer stop()

	m := NewModel(ctx, opts)
	m.states = states

	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	} else {
		progOpts = append(progOpts, tea.WithAltScreen())
	}

	p := tea.NewProgram(m, progOpts...)
	opts.Navigator.Attach(p.Send)
	defer opts.Navigator.Attach(nil)

	if _, err := p.Run(); err != nil {
		if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
