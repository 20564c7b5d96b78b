package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hangar/internal/api/apitest"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/exitcode"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
	"github.com/felixgeelhaar/hangar/internal/ux"
)

type cli struct {
	t       *testing.T
	backend *apitest.Backend
	config  string
	tokens  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		t.Setenv(key, "true")
	}

	b := apitest.New(t)
	c := &cli{
		t:       t,
		backend: b,
		config:  filepath.Join(home, "config.yaml"),
		tokens:  filepath.Join(home, "tokens.json"),
	}

	cfg := fmt.Sprintf(`api:
  url: %s
  timeout: 5s
  allow_insecure: true
  retry_attempts: 1
tokens:
  backend: file
  path: %s
  passphrase_env: ""
session:
  landing_delay: 0s
log:
  level: error
`, b.URL(), c.tokens)
	require.NoError(t, os.WriteFile(c.config, []byte(cfg), 0o600))
	return c
}

// resetFlags restores every flag to its default; cobra keeps values
// between Execute calls on the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--config", c.config, "--no-color"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, errOut, err := c.run(args...)
	require.NoError(c.t, err, "hangar %v\nstderr: %s", args, errOut)
	return out
}

func (c *cli) session(args ...string) ux.SessionView {
	c.t.Helper()
	var v ux.SessionView
	require.NoError(c.t, json.Unmarshal([]byte(c.mustRun(append(args, "--format", "json")...)), &v))
	return v
}

func (c *cli) login(email, password string) {
	c.t.Helper()
	v := c.session("auth", "login", "--email", email, "--password", password)
	require.True(c.t, v.Authenticated)
}

func TestCLI_LoginStatusLogout(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("wing@example.com", "secret", inventory.TeamWing)

	v := c.session("auth", "login", "--email", "wing@example.com", "--password", "secret")
	assert.True(t, v.Authenticated)
	require.NotNil(t, v.User)
	assert.Equal(t, "wing@example.com", v.User.Email)
	assert.Equal(t, "complete", v.Tokens)
	assert.Equal(t, 1, c.backend.Calls("token"))

	// a new process restores the session from the file store
	v = c.session("auth", "status")
	assert.True(t, v.Authenticated)
	assert.Equal(t, "WING", v.User.TeamName)

	_, errOut, err := c.run("auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Logged out successfully.")
	assert.Equal(t, 1, c.backend.Calls("logout"))

	v = c.session("auth", "status")
	assert.False(t, v.Authenticated)
	assert.Equal(t, "empty", v.Tokens)

	// logging out twice is harmless
	_, _, err = c.run("auth", "logout")
	require.NoError(t, err)
	assert.Equal(t, 1, c.backend.Calls("logout"))
}

func TestCLI_LoginRejected(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("wing@example.com", "secret", inventory.TeamWing)

	_, errOut, err := c.run("auth", "login", "--email", "wing@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCredential), "got %v", err)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(err))
	assert.Contains(t, errOut, "No active account found with the given credentials")

	_, statErr := os.Stat(c.tokens)
	assert.True(t, os.IsNotExist(statErr), "a rejected login must not write tokens")
}

func TestCLI_LoginRequiresFlagsWithoutTerminal(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("auth", "login", "--email", "wing@example.com")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, 0, c.backend.Calls("token"))
}

func TestCLI_Signup(t *testing.T) {
	c := newCLI(t)

	v := c.session("auth", "signup",
		"--email", "tail@example.com",
		"--password", "secret",
		"--first-name", "Ada",
		"--last-name", "Lovelace",
		"--team", "tail",
	)
	assert.True(t, v.Authenticated)
	assert.Equal(t, "TAIL", v.User.TeamName)
	assert.Equal(t, "complete", v.Tokens)

	_, _, err := c.run("auth", "signup", "--email", "x@example.com", "--password", "p", "--team", "PILOTS")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput), "got %v", err)
}

func TestCLI_DataCommandsNeedSession(t *testing.T) {
	c := newCLI(t)

	for _, args := range [][]string{
		{"parts", "list"},
		{"parts", "score"},
		{"planes", "list"},
	} {
		_, _, err := c.run(args...)
		require.Error(t, err, "hangar %v", args)
		assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated), "hangar %v: %v", args, err)
	}
}

func TestCLI_Parts(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("wing@example.com", "secret", inventory.TeamWing)
	c.login("wing@example.com", "secret")

	_, errOut, err := c.run("parts", "create", "--plane-type", "tb2", "--quantity", "3")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Part created successfully.")

	var page ux.PartsView
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("parts", "list", "--format", "json")), &page))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.Count)
	require.Len(t, page.Parts, 3)
	assert.Equal(t, inventory.PlaneTB2, page.Parts[0].PlaneType)

	var score ux.ScoreView
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("parts", "score", "--format", "json")), &score))
	assert.Equal(t, 3, score.Scores[inventory.PlaneTB2].Unused)

	id := strconv.Itoa(page.Parts[0].ID)
	_, errOut, err = c.run("parts", "delete", id, "--yes")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Part deleted successfully.")

	require.NoError(t, json.Unmarshal([]byte(c.mustRun("parts", "list", "--format", "json")), &page))
	assert.Equal(t, 2, page.Count)

	text := c.mustRun("parts", "list")
	assert.Contains(t, text, "Page 1 of 1 (2 total)")
}

func TestCLI_PartsRejectsOtherTeamsPartType(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("wing@example.com", "secret", inventory.TeamWing)
	c.login("wing@example.com", "secret")

	_, _, err := c.run("parts", "create", "--part-type", "TAIL", "--plane-type", "TB2")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput), "got %v", err)
	assert.Equal(t, 0, c.backend.Calls("parts_create"))
}

func TestCLI_PartsDeleteNeedsConfirmation(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("parts", "delete", "3")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, _, err = c.run("parts", "delete", "abc", "--yes")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestCLI_TeamBoards(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("wing@example.com", "secret", inventory.TeamWing)
	c.login("wing@example.com", "secret")

	_, _, err := c.run("planes", "list")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden), "got %v", err)
	assert.Equal(t, 0, c.backend.Calls("planes_list"))
}

func TestCLI_Planes(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("asm@example.com", "secret", inventory.TeamAssembly)
	c.login("asm@example.com", "secret")

	_, errOut, err := c.run("planes", "create", "--plane-type", "AKINCI")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAPIResponse), "got %v\n%s", err, errOut)

	for _, pt := range inventory.PartTypes() {
		for i := 0; i < inventory.RequiredAmount(pt); i++ {
			c.backend.AddPart(pt, inventory.PlaneAkinci, false)
		}
	}

	_, errOut, err = c.run("planes", "create", "--plane-type", "AKINCI")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Plane assembled successfully.")

	var page ux.PlanesView
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("planes", "list", "--format", "json")), &page))
	assert.Equal(t, 1, page.Count)
	require.Len(t, page.Planes, 1)
	assert.Len(t, page.Planes[0].PartsUsed, 5)

	_, _, err = c.run("parts", "list")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
}

func TestCLI_ExpiredAccessIsRefreshed(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("wing@example.com", "secret", inventory.TeamWing)
	pair := c.backend.IssueExpired("wing@example.com")

	store, err := tokenstore.NewFile(c.tokens, "", tokenstore.DefaultAttributes())
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), pair))

	c.mustRun("parts", "list")
	assert.Equal(t, 1, c.backend.Calls("token_refresh"))
}

func TestCLI_Config(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, c.config+"\n", c.mustRun("config", "path"))

	var view struct {
		API struct {
			URL string `json:"url"`
		} `json:"api"`
		Tokens struct {
			Backend string `json:"backend"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("config", "view", "--format", "json")), &view))
	assert.Equal(t, c.backend.URL(), view.API.URL)
	assert.Equal(t, "file", view.Tokens.Backend)

	override := c.mustRun("config", "view", "--api-url", "https://parts.example.org")
	assert.Contains(t, override, "url: https://parts.example.org")

	_, _, err := c.run("config", "init")
	require.Error(t, err, "init must not overwrite an existing file")

	fresh := filepath.Join(t.TempDir(), "nested", "config.yaml")
	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"--config", fresh, "config", "init"})
	rootCmd.SetOut(&bytes.Buffer{})
	require.NoError(t, rootCmd.Execute())
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

func TestCLI_Doctor(t *testing.T) {
	c := newCLI(t)

	var report ux.Report
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("doctor", "--format", "json")), &report))

	statuses := make(map[string]ux.Status)
	for _, check := range report.Checks {
		statuses[check.Name] = check.Status
	}
	assert.Equal(t, ux.StatusOK, statuses["config"])
	assert.Equal(t, ux.StatusOK, statuses["contract"])
	assert.Equal(t, ux.StatusOK, statuses["token store"])
	assert.Equal(t, ux.StatusOK, statuses["api"])
	assert.NotContains(t, statuses, "session")

	out := c.mustRun("doctor", "--online")
	assert.Contains(t, out, "! session: not logged in")
}

func TestCLI_DoctorReportsBadConfig(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.WriteFile(c.config, []byte("tokens:\n  backend: floppy\n"), 0o600))

	out, _, err := c.run("doctor")
	require.Error(t, err)
	assert.Contains(t, out, "✗ config")
}

func TestCLI_Version(t *testing.T) {
	c := newCLI(t)

	assert.Contains(t, c.mustRun("version"), "hangar ")

	var info struct {
		Version  string `json:"version"`
		Platform string `json:"platform"`
	}
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("version", "--format", "json")), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Platform)
}
