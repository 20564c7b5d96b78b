package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/config"
	"github.com/felixgeelhaar/hangar/internal/contract"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/session"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
	"github.com/felixgeelhaar/hangar/internal/ux"
	"github.com/felixgeelhaar/hangar/internal/version"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, API contract and token store",
	Long: `Run diagnostics to check that hangar is properly configured.

Checks include:
  • Configuration file and values
  • The API contract against the endpoints hangar calls
  • Token store access and the shape of the stored session
  • Transport security of api.url
  • With --online, restoring the session against the backend

Examples:
  hangar doctor
  hangar doctor --online
  hangar doctor --format json`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().Bool("online", false, "also restore the session against the backend")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	flags, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}
	online, _ := cmd.Flags().GetBool("online")

	var report ux.Report
	cfg := checkConfig(&report, flags)
	checkContract(ctx, &report)

	format := flags.Format
	if cfg != nil {
		if format == "" {
			format = cfg.Output.Format
		}
		if store := checkStore(ctx, &report, cfg); store != nil {
			defer store.Close()
			if client := checkClient(&report, cfg, store); client != nil && online {
				checkSession(ctx, &report, client, store)
			}
		}
	}

	f, err := ux.NewFormatter(format, &ux.FormatterOptions{Writer: cmd.OutOrStdout(), NoColor: flags.NoColor})
	if err != nil {
		return err
	}
	if err := f.Format(report); err != nil {
		return err
	}

	if report.Failed() {
		return fmt.Errorf("doctor found problems; see the failed checks above")
	}
	return nil
}

func checkConfig(r *ux.Report, flags *CommandContext) *config.Config {
	path := flags.ConfigPath
	if path == "" {
		path, _ = config.DefaultPath()
	}

	v := config.New()
	flags.overrides(v)
	cfg, err := config.Load(v, flags.ConfigPath)
	if err != nil {
		r.Add("config", ux.StatusFail, firstLine(err))
		return nil
	}

	if used := v.ConfigFileUsed(); used != "" {
		r.Add("config", ux.StatusOK, used)
	} else {
		r.Add("config", ux.StatusWarn, fmt.Sprintf("%s not found, using defaults", path))
	}
	return cfg
}

func checkContract(ctx context.Context, r *ux.Report) {
	c, err := contract.Load(ctx)
	if err != nil {
		r.Add("contract", ux.StatusFail, firstLine(err))
		return
	}

	findings := c.Check(api.Endpoints())
	switch {
	case contract.HasErrors(findings):
		var msgs []string
		for _, f := range findings {
			if f.Severity == contract.SeverityError {
				msgs = append(msgs, f.Message)
			}
		}
		r.Add("contract", ux.StatusFail, strings.Join(msgs, "; "))
	case len(findings) > 0:
		r.Add("contract", ux.StatusWarn, fmt.Sprintf("version %s, %d warning(s): %s", c.Version(), len(findings), findings[0].Message))
	default:
		r.Add("contract", ux.StatusOK, fmt.Sprintf("version %s, %d endpoints match", c.Version(), len(api.Endpoints())))
	}
}

func checkStore(ctx context.Context, r *ux.Report, cfg *config.Config) tokenstore.Store {
	store, err := tokenstore.Open(cfg.StoreOptions())
	if err != nil {
		r.Add("token store", ux.StatusFail, firstLine(err))
		return nil
	}

	pair, err := store.Get(ctx)
	if err != nil {
		r.Add("token store", ux.StatusFail, firstLine(err))
		_ = store.Close()
		return nil
	}

	detail := fmt.Sprintf("%s backend, session %s", store.Name(), pair.Shape())
	switch pair.Shape() {
	case tokenstore.ShapeAccessOnly:
		r.Add("token store", ux.StatusWarn, detail+"; the session cannot be restored")
	default:
		r.Add("token store", ux.StatusOK, detail)
	}

	attrs := store.Attributes()
	if !attrs.Secure {
		r.Add("token transport", ux.StatusWarn, "tokens.secure is off; tokens may be sent over plain http")
	} else {
		r.Add("token transport", ux.StatusOK, fmt.Sprintf("https only, same-site %s", attrs.SameSite))
	}
	return store
}

func checkClient(r *ux.Report, cfg *config.Config, store tokenstore.Store) *api.Client {
	client, err := api.New(api.Options{
		BaseURL:       cfg.API.URL,
		Timeout:       cfg.API.Timeout,
		AllowInsecure: cfg.API.AllowInsecure,
		RetryAttempts: cfg.API.RetryAttempts,
		Store:         store,
		UserAgent:     version.GetInfo().UserAgent(),
		Logger:        log.Discard(),
	})
	if err != nil {
		r.Add("api", ux.StatusFail, firstLine(err))
		return nil
	}
	r.Add("api", ux.StatusOK, fmt.Sprintf("%s (timeout %s, %d attempt(s))", client.BaseURL(), cfg.API.Timeout, cfg.API.RetryAttempts))
	return client
}

func checkSession(ctx context.Context, r *ux.Report, client *api.Client, store tokenstore.Store) {
	var notes notify.Buffer
	m, err := session.New(session.Options{
		API:      client,
		Store:    store,
		Router:   route.NewMemory(route.Landing),
		Notifier: &notes,
		Logger:   log.Discard(),
	})
	if err != nil {
		r.Add("session", ux.StatusFail, err.Error())
		return
	}
	defer m.Close()

	s, err := m.Initialize(ctx)
	switch {
	case err != nil:
		r.Add("session", ux.StatusFail, firstLine(err))
	case s.IsAuthenticated:
		r.Add("session", ux.StatusOK, "logged in as "+s.Email())
	case len(notes.Errors()) > 0:
		r.Add("session", ux.StatusFail, notes.Errors()[0].Description)
	default:
		r.Add("session", ux.StatusWarn, "not logged in")
	}
}

// firstLine drops suggestions from coded error messages
func firstLine(err error) string {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}
