// Package config loads skillsmd settings from defaults, an optional YAML
// file and SKILLSMD_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "SKILLSMD"
	configDirName  = ".agents/skillsmd"
	configFileName = "config"
	configFileType = "yaml"
)

// Keys understood by the manager. Flags bind to these with BindPFlag.
const (
	KeyIncludeInternal = "include_internal"
	KeyFetchTimeout    = "fetch_timeout"
	KeyFetchAttempts   = "fetch_attempts"
	KeySearchURL       = "search_url"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyCopy            = "copy"
)

// Config is the resolved configuration for one invocation.
type Config struct {
	IncludeInternal bool          `mapstructure:"include_internal"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	FetchAttempts   uint          `mapstructure:"fetch_attempts"`
	SearchURL       string        `mapstructure:"search_url"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	Copy            bool          `mapstructure:"copy"`
}

// Manager owns the viper instance backing the configuration.
type Manager struct {
	v         *viper.Viper
	configDir string
}

// NewManager creates a Manager using the default config directory (~/.agents/skillsmd).
func NewManager() (*Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return NewManagerWithDir(filepath.Join(home, configDirName)), nil
}

// NewManagerWithDir creates a Manager reading config.yaml from dir.
func NewManagerWithDir(dir string) *Manager {
	v := viper.New()

	v.SetDefault(KeyIncludeInternal, false)
	v.SetDefault(KeyFetchTimeout, 60*time.Second)
	v.SetDefault(KeyFetchAttempts, 3)
	v.SetDefault(KeySearchURL, "https://skills.sh")
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "fmt")
	v.SetDefault(KeyCopy, false)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	// INSTALL_INTERNAL_SKILLS is honoured for compatibility with existing setups.
	_ = v.BindEnv(KeyIncludeInternal, envPrefix+"_INCLUDE_INTERNAL", "INSTALL_INTERNAL_SKILLS")

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	return &Manager{v: v, configDir: dir}
}

// Viper exposes the underlying instance so commands can bind flags.
func (m *Manager) Viper() *viper.Viper {
	return m.v
}

// ConfigDir returns the configuration directory path.
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// Load reads the config file if present and resolves all values.
// A missing file is not an error; a malformed one is.
func (m *Manager) Load() (*Config, error) {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FetchAttempts == 0 {
		cfg.FetchAttempts = 1
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", KeyFetchTimeout)
	}
	return &cfg, nil
}
