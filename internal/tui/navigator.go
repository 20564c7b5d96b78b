package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/hangar/internal/route"
)

// NavigateMsg tells the dashboard that the session moved to another view
type NavigateMsg struct {
	To string
}

// Navigator is the Router the session redirects through while the
// dashboard runs. Every navigation is forwarded to the attached program.
type Navigator struct {
	mu   sync.Mutex
	loc  string
	send func(tea.Msg)
}

// NewNavigator creates a Navigator positioned at start
func NewNavigator(start string) *Navigator {
	return &Navigator{loc: route.Normalize(start)}
}

// Attach forwards later navigations to send. A nil send detaches.
func (n *Navigator) Attach(send func(tea.Msg)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.send = send
}

// Location implements route.Router
func (n *Navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loc
}

// Navigate implements route.Router. It must not be called from inside
// Update: the program only receives the message between updates.
func (n *Navigator) Navigate(ctx context.Context, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	n.loc = route.Normalize(to)
	loc, send := n.loc, n.send
	n.mu.Unlock()

	if send != nil {
		send(NavigateMsg{To: loc})
	}
	return nil
}

var _ route.Router = (*Navigator)(nil)
