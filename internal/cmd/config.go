package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/hangar/internal/config"
	"github.com/felixgeelhaar/hangar/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create hangar configuration",
	Long: `Manage hangar configuration stored at ~/.hangar/config.yaml

Every key can be overridden with an environment variable: HANGAR_ followed
by the key in upper case with dots replaced by underscores, for example
HANGAR_API_URL or HANGAR_TOKENS_BACKEND.

Examples:
  # View the effective configuration
  hangar config view

  # Write a default configuration file
  hangar config init

  # Show configuration file path
  hangar config path
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long:  `Display the configuration after applying the file, environment variables and flags.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(configCmd)
}

// configView renders the configuration as YAML in text mode
type configView struct {
	config.Config `yaml:",inline"`
}

// Text implements ux.Texter
func (v configView) Text(bool) string {
	data, err := yaml.Marshal(v.Config)
	if err != nil {
		return fmt.Sprintf("failed to render configuration: %v", err)
	}
	return strings.TrimSuffix(string(data), "\n")
}

func configPath(flags *CommandContext) (string, error) {
	if flags.ConfigPath != "" {
		return flags.ConfigPath, nil
	}
	return config.DefaultPath()
}

func runConfigView(cmd *cobra.Command, args []string) error {
	flags, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}

	v := config.New()
	flags.overrides(v)
	cfg, err := config.Load(v, flags.ConfigPath)
	if err != nil {
		return err
	}

	f, err := ux.NewFormatter(cfg.Output.Format, &ux.FormatterOptions{Writer: cmd.OutOrStdout(), NoColor: flags.NoColor})
	if err != nil {
		return err
	}
	return f.Format(configView{Config: *cfg})
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	flags, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}
	path, err := configPath(flags)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "(file does not exist yet; run 'hangar config init')")
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	flags, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}
	path, err := configPath(flags)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return ux.NewErrorWithSuggestion(
			fmt.Errorf("configuration already exists at %s", path),
			"Use --force to overwrite it",
		)
	}

	cfg := config.Default()
	if flags.APIURL != "" {
		cfg.API.URL = flags.APIURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
