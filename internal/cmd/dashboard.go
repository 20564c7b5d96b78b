package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/metrics"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/tui"
	"github.com/felixgeelhaar/hangar/internal/ux"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive dashboard",
	Long: `Open the interactive dashboard. You are asked to log in when no session
can be restored. Part teams see their parts and score; the ASSEMBLY team
sees assembled planes.

Logs are written to log.file (default ~/.hangar/hangar.log) while the
dashboard is open.

Examples:
  hangar dashboard
  hangar dashboard --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if !tui.IsInteractive() {
		return errors.New(errors.ErrCodeInvalidInput, "the dashboard needs a terminal").
			WithSuggestion("Use 'hangar parts list' or 'hangar planes list' in scripts")
	}

	nav := tui.NewNavigator(route.Landing)
	notes := notify.NewChannel(16)

	a, err := newApp(cmd, appOptions{Router: nav, Notifier: notes, LogToFile: true})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = a.Config.Metrics.Addr
	}
	if addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.Registry); err != nil {
				a.Logger.WithError(err).Error("metrics server stopped", "addr", addr)
			}
		}()
		a.Logger.Info("serving metrics", "addr", addr)
	}

	err = tui.Run(ctx, tui.Options{
		Session:   a.Session,
		Inventory: a.Client,
		Navigator: nav,
		Notes:     notes.C(),
		Notifier:  notify.Multi{notify.NewLogger(a.Logger), notes},
		Logger:    a.Logger,
	})
	if err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}
