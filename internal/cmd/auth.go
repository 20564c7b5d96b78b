package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/session"
	"github.com/felixgeelhaar/hangar/internal/tui"
	"github.com/felixgeelhaar/hangar/internal/ux"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your session",
	Long: `Manage your hangar session.

Tokens are kept in the configured token store (tokens.backend) and refreshed
silently while the refresh token is valid.

Subcommands:
  login   Log in with email and password
  signup  Create an account and log in
  logout  End the session and remove stored tokens
  status  Show the current session

Examples:
  hangar auth login --email user@example.com
  hangar auth signup --email user@example.com --team WING
  hangar auth status
  hangar auth logout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	Long: `Log in with email and password. Missing values are prompted for when
running in a terminal.

Examples:
  hangar auth login
  hangar auth login --email user@example.com --password secret`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create an account and log in. The team decides which dashboard you see:
WING, FUSELAGE, TAIL and AVIONICS manage parts, ASSEMBLY assembles planes.

Examples:
  hangar auth signup
  hangar auth signup --email user@example.com --password secret --team ASSEMBLY`,
	Args: cobra.NoArgs,
	RunE: runAuthSignup,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and remove stored tokens",
	Long: `Log out. The session is revoked on the backend when possible; stored
tokens are always removed, even if the backend cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authLoginCmd.Flags().String("email", "", "account email")
	authLoginCmd.Flags().String("password", "", "account password")

	authSignupCmd.Flags().String("email", "", "account email")
	authSignupCmd.Flags().String("password", "", "account password")
	authSignupCmd.Flags().String("first-name", "", "first name")
	authSignupCmd.Flags().String("last-name", "", "last name")
	authSignupCmd.Flags().String("team", "", "team: WING, FUSELAGE, TAIL, AVIONICS or ASSEMBLY")
	_ = authSignupCmd.RegisterFlagCompletionFunc("team", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		var teams []string
		for _, t := range inventory.Teams() {
			teams = append(teams, string(t))
		}
		return teams, cobra.ShellCompDirectiveNoFileComp
	})

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)

	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd, appOptions{Start: route.Login})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	s, err := a.Session.Initialize(ctx)
	a.flushNotes()
	if err != nil {
		return err
	}
	if s.IsAuthenticated {
		a.Logger.Info("already logged in", "user", s.Email())
		return a.printSession(ctx, s)
	}

	v := tui.LoginValues{}
	v.Email, _ = cmd.Flags().GetString("email")
	v.Password, _ = cmd.Flags().GetString("password")
	if v.Email == "" || v.Password == "" {
		if !tui.ShouldPrompt() {
			return errors.NewInvalidInputError("credentials", "--email and --password are required when not running in a terminal")
		}
		if err := tui.PromptLogin(&v); err != nil {
			return err
		}
	}

	if err := a.Session.Login(ctx, strings.TrimSpace(v.Email), v.Password); err != nil {
		a.flushNotes()
		return err
	}
	failure := a.flushNotes()

	s = a.Session.State()
	if !s.IsAuthenticated {
		if failure == "" {
			failure = "login failed"
		}
		return errors.NewCredentialError(failure)
	}
	return a.printSession(ctx, s)
}

func runAuthSignup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd, appOptions{Start: route.Signup})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	s, err := a.Session.Initialize(ctx)
	a.flushNotes()
	if err != nil {
		return err
	}
	if s.IsAuthenticated {
		return errors.New(errors.ErrCodeInvalidInput, "already logged in as "+s.Email()).
			WithSuggestion("Run 'hangar auth logout' before creating another account")
	}

	v := tui.SignupValues{}
	v.Email, _ = cmd.Flags().GetString("email")
	v.Password, _ = cmd.Flags().GetString("password")
	v.FirstName, _ = cmd.Flags().GetString("first-name")
	v.LastName, _ = cmd.Flags().GetString("last-name")
	v.Team, _ = cmd.Flags().GetString("team")
	v.Team = strings.ToUpper(strings.TrimSpace(v.Team))

	if v.Email == "" || v.Password == "" || v.Team == "" {
		if !tui.ShouldPrompt() {
			return errors.NewInvalidInputError("account", "--email, --password and --team are required when not running in a terminal")
		}
		if v.Team == "" {
			v.Team = string(inventory.TeamWing)
		}
		if err := tui.PromptSignup(&v); err != nil {
			return err
		}
	}

	reg := v.Registration()
	if err := reg.Validate(); err != nil {
		return err
	}

	if err := a.Session.Signup(ctx, reg); err != nil {
		a.flushNotes()
		return err
	}
	failure := a.flushNotes()

	// an account created without a session is reported as logged out
	s = a.Session.State()
	if !s.IsAuthenticated && failure != "" {
		return errors.NewCredentialError(failure)
	}
	return a.printSession(ctx, s)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd, appOptions{Start: route.Root})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	_, err = a.Session.Initialize(ctx)
	a.flushNotes()
	if err != nil {
		return err
	}

	err = a.Session.Logout(ctx)
	a.flushNotes()
	return err
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd, appOptions{Start: route.Root})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	s, err := a.Session.Initialize(ctx)
	a.flushNotes()
	if err != nil {
		return err
	}
	return a.printSession(ctx, s)
}

func (a *App) printSession(ctx context.Context, s session.State) error {
	pair, err := a.Store.Get(ctx)
	if err != nil {
		return err
	}
	return a.print(ux.SessionView{
		Authenticated: s.IsAuthenticated,
		User:          s.User,
		Store:         a.Store.Name(),
		Tokens:        pair.Shape().String(),
	})
}
