package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CommandContext holds the persistent flags of a command invocation.
// Commands build it in RunE instead of reading package-level variables.
type CommandContext struct {
	ConfigPath string
	APIURL     string
	LogLevel   string
	LogFormat  string
	Format     string
	NoColor    bool
}

// NewCommandContext extracts command context from cobra.Command flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	apiURL, err := cmd.Flags().GetString("api-url")
	if err != nil {
		return nil, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	logFormat, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigPath: configPath,
		APIURL:     apiURL,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		Format:     format,
		NoColor:    noColor,
	}, nil
}

// overrides applies flag values on top of file and environment configuration
func (c *CommandContext) overrides(v *viper.Viper) {
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("api.url", c.APIURL)
	set("log.level", c.LogLevel)
	set("log.format", c.LogFormat)
	set("output.format", c.Format)
}
