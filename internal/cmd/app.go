package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/config"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/metrics"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/session"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
	"github.com/felixgeelhaar/hangar/internal/ux"
	"github.com/felixgeelhaar/hangar/internal/version"
)

// App is the composition root of one command invocation
type App struct {
	Flags    *CommandContext
	Config   *config.Config
	Logger   *log.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    tokenstore.Store
	Client   *api.Client
	Router   route.Router
	Session  *session.Manager

	notes  *notify.Buffer
	output log.Output
	stdout io.Writer
	stderr io.Writer
}

// appOptions varies the composition root per command
type appOptions struct {
	// Start is the location Initialize evaluates the guard against
	Start string
	// Router replaces the in-memory router, as the dashboard does
	Router route.Router
	// Notifier receives session notifications in addition to the log
	Notifier notify.Notifier
	// LogToFile keeps log lines off the terminal
	LogToFile bool
}

// newApp builds config, logger, token store, API client, router and
// session manager, in that order.
func newApp(cmd *cobra.Command, opts appOptions) (*App, error) {
	flags, err := NewCommandContext(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to create command context: %w", err)
	}

	v := config.New()
	flags.overrides(v)
	cfg, err := config.Load(v, flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.LogToFile && cfg.Log.File == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		cfg.Log.File = filepath.Join(dir, "hangar.log")
	}
	lc, err := cfg.LoggerConfig(version.Version)
	if err != nil {
		return nil, err
	}
	logger := log.New(lc)
	log.SetDefaultLogger(logger)

	a := &App{
		Flags:  flags,
		Config: cfg,
		Logger: logger,
		notes:  &notify.Buffer{},
		output: lc.Output,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}
	a.Registry, a.Metrics = metrics.NewRegistry()

	a.Store, err = tokenstore.Open(cfg.StoreOptions())
	if err != nil {
		_ = a.output.Close()
		return nil, err
	}

	a.Client, err = api.New(api.Options{
		BaseURL:       cfg.API.URL,
		Timeout:       cfg.API.Timeout,
		AllowInsecure: cfg.API.AllowInsecure,
		RetryAttempts: cfg.API.RetryAttempts,
		Store:         a.Store,
		UserAgent:     version.GetInfo().UserAgent(),
		Logger:        logger,
		Metrics:       a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Router = opts.Router
	if a.Router == nil {
		start := opts.Start
		if start == "" {
			start = route.Root
		}
		a.Router = route.NewMemory(start)
	}

	a.Session, err = session.New(session.Options{
		API:           a.Client,
		Store:         a.Store,
		Router:        a.Router,
		Notifier:      notify.Multi{notify.NewLogger(logger), a.notes, opts.Notifier},
		Logger:        logger,
		Metrics:       a.Metrics,
		LandingDelay:  cfg.Session.LandingDelay,
		RotateRefresh: cfg.Session.RotateRefresh,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Debug("application ready",
		"api", a.Client.BaseURL(),
		"store", a.Store.Name(),
		"start", a.Router.Location(),
	)
	return a, nil
}

// Close releases the session, the token store and the log file
func (a *App) Close() {
	if a.Session != nil {
		_ = a.Session.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.WithError(err).Warn("failed to close token store")
		}
	}
	_ = a.output.Close()
}

// requireSession restores the session and fails unless it is authenticated
func (a *App) requireSession(ctx context.Context) (session.State, error) {
	s, err := a.Session.Initialize(ctx)
	a.flushNotes()
	if err != nil {
		return s, err
	}
	if !s.IsAuthenticated {
		return s, errors.NewNotAuthenticatedError()
	}
	return s, nil
}

// authorized runs fn with the stored bearer token, refreshing once on 401
func (a *App) authorized(ctx context.Context, fn func(ctx context.Context) error) error {
	err := a.Session.Authorized(ctx, fn)
	a.flushNotes()
	return err
}

// flushNotes prints pending notifications to stderr, keeping stdout for
// results. It returns the description of the last error among them.
func (a *App) flushNotes() string {
	var failure string
	for _, n := range a.notes.Drain() {
		fmt.Fprintln(a.stderr, ux.NoteLine(n, a.Flags.NoColor))
		if n.IsError() && n.Description != "" {
			failure = n.Description
		}
	}
	return failure
}

// print writes v in the selected output format
func (a *App) print(v interface{}) error {
	f, err := ux.NewFormatter(a.Config.Output.Format, &ux.FormatterOptions{
		Writer:  a.stdout,
		NoColor: a.Flags.NoColor,
	})
	if err != nil {
		return err
	}
	return f.Format(v)
}

// announce prints the outcome of a command that has no result to show
func (a *App) announce(n notify.Notification) {
	a.Logger.Debug("notification", "title", n.Title, "variant", string(n.Variant))
	fmt.Fprintln(a.stderr, ux.NoteLine(n, a.Flags.NoColor))
}
