// Package notify carries short user-facing messages from the session and
// data layers to whatever surface is showing them.
package notify

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/hangar/internal/log"
)

// Variant styles a notification
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient message with a title and a description
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
}

// IsError reports whether n describes a failure
func (n Notification) IsError() bool {
	return n.Variant == VariantDestructive
}

// Success builds a success notification
func Success(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantSuccess}
}

// Error builds a destructive notification
func Error(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDestructive}
}

// Notifier receives notifications. Implementations must not block the caller
// for long: notifications are sent from inside session operations.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier
type Func func(ctx context.Context, n Notification)

// Notify implements Notifier
func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification
var Discard Notifier = Func(func(context.Context, Notification) {})

// Logger writes notifications to a structured logger
type Logger struct {
	logger *log.Logger
}

// NewLogger creates a Notifier that logs through l
func NewLogger(l *log.Logger) *Logger {
	return &Logger{logger: log.Or(l).With("component", "notify")}
}

// Notify implements Notifier
func (l *Logger) Notify(ctx context.Context, n Notification) {
	if n.IsError() {
		l.logger.WarnContext(ctx, n.Title, "description", n.Description)
		return
	}
	l.logger.InfoContext(ctx, n.Title, "description", n.Description, "variant", string(n.Variant))
}

// Buffer records notifications in order
type Buffer struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier
func (b *Buffer) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
}

// All returns a copy of every recorded notification
func (b *Buffer) All() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.items))
	copy(out, b.items)
	return out
}

// Errors returns only destructive notifications
func (b *Buffer) Errors() []Notification {
	var out []Notification
	for _, n := range b.All() {
		if n.IsError() {
			out = append(out, n)
		}
	}
	return out
}

// Drain returns and forgets every recorded notification
func (b *Buffer) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

// Channel forwards notifications to a buffered channel. When the buffer
// is full the notification is dropped rather than blocking the sender.
type Channel struct {
	ch chan Notification
}

// NewChannel creates a Channel with room for size pending notifications
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan Notification, size)}
}

// Notify implements Notifier
func (c *Channel) Notify(_ context.Context, n Notification) {
	select {
	case c.ch <- n:
	default:
	}
}

// C returns the receive side
func (c *Channel) C() <-chan Notification { return c.ch }

// Multi fans a notification out to every notifier in order
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
