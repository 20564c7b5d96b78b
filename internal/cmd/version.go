package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hangar/internal/ux"
	"github.com/felixgeelhaar/hangar/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "show detailed version information")
	rootCmd.AddCommand(versionCmd)
}

// versionView prints the short form in text mode and every field otherwise
type versionView struct {
	version.Info `yaml:",inline"`
	verbose      bool
}

// Text implements ux.Texter
func (v versionView) Text(bool) string {
	if v.verbose {
		return v.Info.String()
	}
	return fmt.Sprintf("hangar %s", v.Version)
}

func runVersion(cmd *cobra.Command, args []string) error {
	flags, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	f, err := ux.NewFormatter(flags.Format, &ux.FormatterOptions{Writer: cmd.OutOrStdout(), NoColor: flags.NoColor})
	if err != nil {
		return err
	}
	return f.Format(versionView{Info: version.GetInfo(), verbose: verbose})
}
