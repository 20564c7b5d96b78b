// Package config handles hangar configuration using Viper.
//
// Values come from, in increasing precedence: built-in defaults,
// ~/.hangar/config.yaml (or --config), HANGAR_* environment variables and
// command-line flags bound by the caller.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/log"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

// EnvPrefix prefixes every environment variable; api.url is HANGAR_API_URL
const EnvPrefix = "HANGAR"

// Config holds the application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api" yaml:"api" json:"api"`
	Tokens  TokensConfig  `mapstructure:"tokens" yaml:"tokens" json:"tokens"`
	Session SessionConfig `mapstructure:"session" yaml:"session" json:"session"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" json:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
}

// APIConfig locates the backend.
type APIConfig struct {
	URL           string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	AllowInsecure bool          `mapstructure:"allow_insecure" yaml:"allow_insecure" json:"allow_insecure"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
}

// TokensConfig selects and configures the token store.
type TokensConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
	// PassphraseEnv names the environment variable holding the file store passphrase
	PassphraseEnv string `mapstructure:"passphrase_env" yaml:"passphrase_env" json:"passphrase_env"`
	Secure        bool   `mapstructure:"secure" yaml:"secure" json:"secure"`
	SameSite      string `mapstructure:"same_site" yaml:"same_site" json:"same_site"`
}

// SessionConfig tunes the session lifecycle.
type SessionConfig struct {
	LandingDelay  time.Duration `mapstructure:"landing_delay" yaml:"landing_delay" json:"landing_delay"`
	RotateRefresh bool          `mapstructure:"rotate_refresh" yaml:"rotate_refresh" json:"rotate_refresh"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// MetricsConfig configures the prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// OutputConfig configures CLI output.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Dir returns ~/.hangar
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".hangar"), nil
}

// DefaultPath returns ~/.hangar/config.yaml
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// New returns a Viper instance with defaults and environment binding set
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into v from configPath, or from ~/.hangar when
// configPath is empty. A missing default file is not an error.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to locate configuration", err)
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is OK, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to read configuration", err).
				WithSuggestion("Run 'hangar config init' to write a default configuration")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to decode configuration", err)
	}

	cfg.Tokens.Path = expandHome(cfg.Tokens.Path)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}


// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	dir, _ := Dir()

	v.SetDefault("api.url", "https://api.example.com")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.allow_insecure", false)
	v.SetDefault("api.retry_attempts", 3)

	v.SetDefault("tokens.backend", string(tokenstore.BackendFile))
	v.SetDefault("tokens.path", filepath.Join(dir, "tokens.json"))
	v.SetDefault("tokens.passphrase_env", "HANGAR_TOKEN_PASSPHRASE")
	v.SetDefault("tokens.secure", true)
	v.SetDefault("tokens.same_site", string(tokenstore.SameSiteStrict))

	v.SetDefault("session.landing_delay", 100*time.Millisecond)
	v.SetDefault("session.rotate_refresh", false)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("output.format", "text")
}

// Default returns the built-in configuration without reading any file
func Default() *Config {
	var cfg Config
	_ = New().Unmarshal(&cfg)
	return &cfg
}

// Validate rejects configurations the application cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.URL) == "" {
		return errors.NewConfigInvalidError("api.url", "must not be empty")
	}
	u, err := url.Parse(c.API.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.NewConfigInvalidError("api.url", fmt.Sprintf("%q is not an absolute URL", c.API.URL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewConfigInvalidError("api.url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if c.API.Timeout < 0 {
		return errors.NewConfigInvalidError("api.timeout", "must not be negative")
	}
	if c.API.RetryAttempts < 0 {
		return errors.NewConfigInvalidError("api.retry_attempts", "must not be negative")
	}

	backend := tokenstore.Backend(c.Tokens.Backend)
	known := false
	for _, b := range tokenstore.Backends() {
		if b == backend {
			known = true
		}
	}
	if !known {
		return errors.NewConfigInvalidError("tokens.backend", fmt.Sprintf("unknown backend %q, expected one of %v", c.Tokens.Backend, tokenstore.Backends()))
	}
	if backend != tokenstore.BackendMemory && strings.TrimSpace(c.Tokens.Path) == "" {
		return errors.NewConfigInvalidError("tokens.path", fmt.Sprintf("required for the %s backend", backend))
	}
	if _, err := tokenstore.ParseSameSite(c.Tokens.SameSite); err != nil {
		return errors.NewConfigInvalidError("tokens.same_site", err.Error())
	}

	if c.Session.LandingDelay < 0 {
		return errors.NewConfigInvalidError("session.landing_delay", "must not be negative")
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewConfigInvalidError("log.level", err.Error())
	}
	if _, err := log.ParseFormat(c.Log.Format); err != nil {
		return errors.NewConfigInvalidError("log.format", err.Error())
	}

	switch c.Output.Format {
	case "", "text", "json", "yaml":
	default:
		return errors.NewConfigInvalidError("output.format", fmt.Sprintf("unknown format %q, expected text, json or yaml", c.Output.Format))
	}
	return nil
}

// Attributes returns the token store security attributes
func (c *Config) Attributes() tokenstore.Attributes {
	ss, err := tokenstore.ParseSameSite(c.Tokens.SameSite)
	if err != nil {
		ss = tokenstore.SameSiteStrict
	}
	return tokenstore.Attributes{Secure: c.Tokens.Secure, SameSite: ss}
}

// StoreOptions builds token store options. The passphrase is read from the
// environment variable named by tokens.passphrase_env; sqlite ignores it.
func (c *Config) StoreOptions() tokenstore.Options {
	opts := tokenstore.Options{
		Backend:    tokenstore.Backend(c.Tokens.Backend),
		Path:       c.Tokens.Path,
		Attributes: c.Attributes(),
	}
	if opts.Backend == tokenstore.BackendFile && c.Tokens.PassphraseEnv != "" {
		opts.Passphrase = os.Getenv(c.Tokens.PassphraseEnv)
	}
	return opts
}

// LoggerConfig builds the logger configuration. An unparsable value falls
// back to the default, since Validate has already reported it.
func (c *Config) LoggerConfig(version string) (log.Config, error) {
	lc := log.DefaultConfig()
	if version != "" {
		lc.ServiceVersion = version
	}

	if lvl, err := log.ParseLevel(c.Log.Level); err == nil {
		lc.Level = lvl
	}
	if f, err := log.ParseFormat(c.Log.Format); err == nil {
		lc.Format = f
	}
	if c.Log.File != "" {
		out, err := log.OutputFile(c.Log.File)
		if err != nil {
			return lc, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to open log file", err)
		}
		lc.Output = out
	}
	return lc, nil
}

// Save writes cfg as YAML to path, creating the directory.
func Save(cfg *Config, path string) error {
	v := viper.New()

	v.Set("api.url", cfg.API.URL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.allow_insecure", cfg.API.AllowInsecure)
	v.Set("api.retry_attempts", cfg.API.RetryAttempts)
	v.Set("tokens.backend", cfg.Tokens.Backend)
	v.Set("tokens.path", cfg.Tokens.Path)
	v.Set("tokens.passphrase_env", cfg.Tokens.PassphraseEnv)
	v.Set("tokens.secure", cfg.Tokens.Secure)
	v.Set("tokens.same_site", cfg.Tokens.SameSite)
	v.Set("session.landing_delay", cfg.Session.LandingDelay.String())
	v.Set("session.rotate_refresh", cfg.Session.RotateRefresh)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.file", cfg.Log.File)
	v.Set("metrics.addr", cfg.Metrics.Addr)
	v.Set("output.format", cfg.Output.Format)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to create configuration directory", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to write configuration", err)
	}
	return nil
}

func expandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
