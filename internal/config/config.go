package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/sergeknystautas/hgrun/internal/logging"
	"github.com/sergeknystautas/hgrun/internal/version"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

const (
	DefaultExecutable = "hg"
	DefaultLogLevel   = "info"

	// Default timeout values in milliseconds, 0 meaning none
	DefaultCommandTimeoutMs = 0
	DefaultRemoteTimeoutMs  = 600000 // 10 minutes

	DefaultWatchDebounceMs = 250
	DefaultEventsListen    = "127.0.0.1:7338"

	// MinCommandLine is the smallest max_command_line override honored.
	MinCommandLine = 1024
)

// Config represents the application configuration.
type Config struct {
	ConfigVersion  string         `yaml:"config_version,omitempty"`
	Executable     string         `yaml:"executable,omitempty"`
	Encoding       string         `yaml:"encoding,omitempty"`
	MaxCommandLine int            `yaml:"max_command_line,omitempty"`
	Username       string         `yaml:"username,omitempty"`
	Batch          bool           `yaml:"batch,omitempty"`
	UserFetch      bool           `yaml:"user_fetch,omitempty"`
	LogLevel       string         `yaml:"log_level,omitempty"`
	Timeouts       *TimeoutConfig `yaml:"timeouts,omitempty"`
	Proxy          *ProxyConfig   `yaml:"proxy,omitempty"`
	Watch          *WatchConfig   `yaml:"watch,omitempty"`
	Events         *EventsConfig  `yaml:"events,omitempty"`
	History        *HistoryConfig `yaml:"history,omitempty"`

	// path is where this config was loaded from or will be saved to.
	path string `yaml:"-"`
}

// TimeoutConfig bounds invocations.
type TimeoutConfig struct {
	CommandMs int `yaml:"command_ms"`
	RemoteMs  int `yaml:"remote_ms"`
}

// ProxyConfig is exported to hg as http_proxy.
type ProxyConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port,omitempty"`
}

// WatchConfig controls the dirstate watcher.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms,omitempty"`
}

// EventsConfig controls the event server.
type EventsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// HistoryConfig controls the invocation history database.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Validate rejects negative durations, a bad proxy port and unknown log levels.
func (c *Config) Validate() error {
	if c.Timeouts != nil {
		if c.Timeouts.CommandMs < 0 {
			return fmt.Errorf("%w: timeouts.command_ms must be >= 0", ErrInvalidConfig)
		}
		if c.Timeouts.RemoteMs < 0 {
			return fmt.Errorf("%w: timeouts.remote_ms must be >= 0", ErrInvalidConfig)
		}
	}
	if c.Watch != nil && c.Watch.DebounceMs < 0 {
		return fmt.Errorf("%w: watch.debounce_ms must be >= 0", ErrInvalidConfig)
	}
	if c.Proxy != nil {
		if c.Proxy.Port < 0 || c.Proxy.Port > 65535 {
			return fmt.Errorf("%w: proxy.port must be between 0 and 65535", ErrInvalidConfig)
		}
		if c.Proxy.Port != 0 && c.Proxy.Host == "" {
			return fmt.Errorf("%w: proxy.port set without proxy.host", ErrInvalidConfig)
		}
	}
	if c.MaxCommandLine < 0 {
		return fmt.Errorf("%w: max_command_line must be >= 0", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultPath returns ~/.hgrun/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".hgrun", "config.yaml"), nil
}

// CreateDefault creates a default config bound to configPath.
func CreateDefault(configPath string) *Config {
	return &Config{
		ConfigVersion: version.Version,
		LogLevel:      DefaultLogLevel,
		Timeouts: &TimeoutConfig{
			CommandMs: DefaultCommandTimeoutMs,
			RemoteMs:  DefaultRemoteTimeoutMs,
		},
		path: configPath,
	}
}

// Load reads and validates the YAML config at configPath.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	cfg.Executable = expandHome(cfg.Executable, homeDir)
	if cfg.History != nil {
		cfg.History.Path = expandHome(cfg.History.Path, homeDir)
	}
	cfg.path = configPath
	return &cfg, nil
}

// LoadOrDefault loads configPath, falling back to defaults when the file
// does not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if errors.Is(err, ErrConfigNotFound) {
		return CreateDefault(configPath), nil
	}
	return cfg, err
}

func expandHome(p, homeDir string) string {
	if p != "" && p[0] == '~' {
		return filepath.Join(homeDir, p[1:])
	}
	return p
}

// Migrate rolls the config forward from the version that wrote it.
// Configs written before 0.2.0 stored remote_ms in seconds.
func (c *Config) Migrate() error {
	if c.ConfigVersion == "" || c.ConfigVersion == "dev" {
		return nil
	}
	from, err := semver.NewVersion(c.ConfigVersion)
	if err != nil {
		return fmt.Errorf("%w: config_version %q: %w", ErrInvalidConfig, c.ConfigVersion, err)
	}
	if from.LessThan(semver.MustParse("0.2.0")) && c.Timeouts != nil && c.Timeouts.RemoteMs > 0 && c.Timeouts.RemoteMs < 1000 {
		c.Timeouts.RemoteMs *= 1000
	}
	return nil
}

// Path returns the file this config is bound to.
func (c *Config) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Save writes the config to the path it was loaded from or created with.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config path not set: use Load() or CreateDefault() with a path")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.ConfigVersion = version.Version

	dir := filepath.Dir(c.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetExecutable returns the resolved hg path. Defaults to "hg".
func (c *Config) GetExecutable() string {
	if c == nil || c.Executable == "" {
		return DefaultExecutable
	}
	return c.Executable
}

// GetEncoding returns the HGENCODING value, if any.
func (c *Config) GetEncoding() string {
	if c == nil {
		return ""
	}
	return c.Encoding
}

// GetMaxCommandLine returns the command-line budget override, or 0 when
// unset or below MinCommandLine.
func (c *Config) GetMaxCommandLine() int {
	if c == nil || c.MaxCommandLine < MinCommandLine {
		return 0
	}
	return c.MaxCommandLine
}

// GetUsername returns the global commit user fallback.
func (c *Config) GetUsername() string {
	if c == nil {
		return ""
	}
	return c.Username
}

// IsBatch reports whether interactive prompting is disabled.
func (c *Config) IsBatch() bool {
	return c != nil && c.Batch
}

// UsesUserFetch reports whether fetch runs with the user's own hg setup.
func (c *Config) UsesUserFetch() bool {
	return c != nil && c.UserFetch
}

// GetLogLevel returns the logging level. Defaults to "info".
func (c *Config) GetLogLevel() string {
	if c == nil || c.LogLevel == "" {
		return DefaultLogLevel
	}
	return c.LogLevel
}

// GetCommandTimeout returns the per-invocation timeout, 0 for none.
func (c *Config) GetCommandTimeout() time.Duration {
	if c == nil || c.Timeouts == nil || c.Timeouts.CommandMs <= 0 {
		return DefaultCommandTimeoutMs * time.Millisecond
	}
	return time.Duration(c.Timeouts.CommandMs) * time.Millisecond
}

// GetRemoteTimeout returns the timeout for remote invocations. Defaults to 10 minutes.
func (c *Config) GetRemoteTimeout() time.Duration {
	if c == nil || c.Timeouts == nil || c.Timeouts.RemoteMs <= 0 {
		return DefaultRemoteTimeoutMs * time.Millisecond
	}
	return time.Duration(c.Timeouts.RemoteMs) * time.Millisecond
}

// GetProxy returns "host:port" (or just host), empty when unset.
func (c *Config) GetProxy() string {
	if c == nil || c.Proxy == nil || c.Proxy.Host == "" {
		return ""
	}
	if c.Proxy.Port == 0 {
		return c.Proxy.Host
	}
	return c.Proxy.Host + ":" + strconv.Itoa(c.Proxy.Port)
}

// WatchEnabled reports whether the dirstate watcher should run.
func (c *Config) WatchEnabled() bool {
	return c != nil && c.Watch != nil && c.Watch.Enabled
}

// GetWatchDebounce returns the watcher debounce. Defaults to 250ms.
func (c *Config) GetWatchDebounce() time.Duration {
	if c == nil || c.Watch == nil || c.Watch.DebounceMs <= 0 {
		return DefaultWatchDebounceMs * time.Millisecond
	}
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// GetEventsListen returns the event server address.
func (c *Config) GetEventsListen() string {
	if c == nil || c.Events == nil || c.Events.Listen == "" {
		return DefaultEventsListen
	}
	return c.Events.Listen
}

// GetHistoryPath returns the sqlite path, empty when history is disabled.
func (c *Config) GetHistoryPath() string {
	if c == nil || c.History == nil {
		return ""
	}
	return c.History.Path
}
