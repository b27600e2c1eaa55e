// Package config loads run settings from defaults, an optional config
// file, CONTAINERSYNC_* environment variables and command-line flags, in
// increasing precedence.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable key.
const EnvPrefix = "CONTAINERSYNC"

// MaxChunkSize bounds the number of parents fetched per request.
const MaxChunkSize = 250

// Config holds the settings shared by every command.
type Config struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Session  string `mapstructure:"session"`
	RepoID   int    `mapstructure:"repo_id"`

	LogFile    string `mapstructure:"log_file"`
	MirrorDB   string `mapstructure:"mirror_db"`
	LayoutFile string `mapstructure:"layout_file"`

	ChunkSize         int           `mapstructure:"chunk_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// DefaultLogFile is the import event log used when none is configured.
const DefaultLogFile = "import_container_data.log"

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8089")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("session", "")
	v.SetDefault("repo_id", 2)
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("mirror_db", "")
	v.SetDefault("layout_file", "")
	v.SetDefault("chunk_size", 100)
	v.SetDefault("requests_per_second", 0) // unlimited
	v.SetDefault("timeout", time.Duration(0))
}

// New returns a viper instance with defaults and environment binding.
// A non-empty path is read as the config file; its format follows the
// extension.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return v, nil
}

// BindFlags lets explicitly set flags override every other source. Flag
// names use dashes; keys use underscores.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnown(key) {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil && err == nil {
			err = errors.Wrapf(bindErr, "failed to bind flag --%s", f.Name)
		}
	})
	return err
}

func isKnown(key string) bool {
	switch key {
	case "base_url", "username", "password", "session", "repo_id", "log_file",
		"mirror_db", "layout_file", "chunk_size", "requests_per_second", "timeout":
		return true
	}
	return false
}

// Load unmarshals and validates v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.WithHint(errors.New("base_url is required"),
			"set base_url in the config file or CONTAINERSYNC_BASE_URL")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf("base_url %q is not an http(s) URL", c.BaseURL)
	}
	if c.RepoID <= 0 {
		return errors.Newf("repo_id must be positive, got %d", c.RepoID)
	}
	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		return errors.Newf("chunk_size must be between 1 and %d, got %d", MaxChunkSize, c.ChunkSize)
	}
	if c.RequestsPerSecond < 0 {
		return errors.Newf("requests_per_second must not be negative, got %g", c.RequestsPerSecond)
	}
	if c.Timeout < 0 {
		return errors.Newf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// HasCredentials reports whether a session can be obtained without
// prompting.
func (c *Config) HasCredentials() bool {
	return c.Session != "" || c.Username != ""
}
