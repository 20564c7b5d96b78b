package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hangar",
	Short: "Aircraft parts and assembly dashboard",
	Long: `hangar is a terminal client for the aircraft parts backend.

Part teams (WING, FUSELAGE, TAIL, AVIONICS) produce and manage parts;
the ASSEMBLY team assembles planes from parts in stock. hangar keeps your
session between runs, refreshing it silently while the refresh token is
valid.

Examples:
  hangar auth login
  hangar parts list
  hangar dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.hangar/config.yaml)")
	flags.String("api-url", "", "backend base URL (overrides api.url)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	flags.StringP("format", "f", "", "output format: text, json or yaml")
	flags.Bool("no-color", false, "disable colored output")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
}
