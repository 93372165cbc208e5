package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
executable: /opt/hg/bin/hg
encoding: UTF-8
max_command_line: 4096
username: Alice <alice@example.com>
batch: true
user_fetch: true
log_level: debug
timeouts:
  command_ms: 30000
  remote_ms: 120000
proxy:
  host: proxy.local
  port: 3128
watch:
  enabled: true
  debounce_ms: 100
events:
  listen: 127.0.0.1:9000
history:
  path: /tmp/hgrun.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/hg/bin/hg", cfg.GetExecutable())
	assert.Equal(t, "UTF-8", cfg.GetEncoding())
	assert.Equal(t, 4096, cfg.GetMaxCommandLine())
	assert.Equal(t, "Alice <alice@example.com>", cfg.GetUsername())
	assert.True(t, cfg.IsBatch())
	assert.True(t, cfg.UsesUserFetch())
	assert.Equal(t, "debug", cfg.GetLogLevel())
	assert.Equal(t, 30*time.Second, cfg.GetCommandTimeout())
	assert.Equal(t, 2*time.Minute, cfg.GetRemoteTimeout())
	assert.Equal(t, "proxy.local:3128", cfg.GetProxy())
	assert.True(t, cfg.WatchEnabled())
	assert.Equal(t, 100*time.Millisecond, cfg.GetWatchDebounce())
	assert.Equal(t, "127.0.0.1:9000", cfg.GetEventsListen())
	assert.Equal(t, "/tmp/hgrun.db", cfg.GetHistoryPath())
	assert.Equal(t, path, cfg.Path())
}

func TestGetters_NilSafeDefaults(t *testing.T) {
	var cfg *Config
	assert.Equal(t, DefaultExecutable, cfg.GetExecutable())
	assert.Equal(t, "", cfg.GetEncoding())
	assert.Equal(t, 0, cfg.GetMaxCommandLine())
	assert.False(t, cfg.IsBatch())
	assert.False(t, cfg.UsesUserFetch())
	assert.Equal(t, DefaultLogLevel, cfg.GetLogLevel())
	assert.Equal(t, time.Duration(0), cfg.GetCommandTimeout())
	assert.Equal(t, 10*time.Minute, cfg.GetRemoteTimeout())
	assert.Equal(t, "", cfg.GetProxy())
	assert.False(t, cfg.WatchEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.GetWatchDebounce())
	assert.Equal(t, DefaultEventsListen, cfg.GetEventsListen())
	assert.Equal(t, "", cfg.GetHistoryPath())
	assert.Equal(t, "", cfg.Path())
}

func TestGetMaxCommandLine_SmallOverrideIgnored(t *testing.T) {
	cfg := &Config{MaxCommandLine: 512}
	assert.Equal(t, 0, cfg.GetMaxCommandLine())
	cfg.MaxCommandLine = MinCommandLine
	assert.Equal(t, MinCommandLine, cfg.GetMaxCommandLine())
}

func TestGetProxy_HostOnly(t *testing.T) {
	cfg := &Config{Proxy: &ProxyConfig{Host: "proxy.local"}}
	assert.Equal(t, "proxy.local", cfg.GetProxy())
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, cfg.GetLogLevel())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "timeouts: [unclosed"},
		{"negative command timeout", "timeouts:\n  command_ms: -1\n"},
		{"negative remote timeout", "timeouts:\n  remote_ms: -5\n"},
		{"unknown log level", "log_level: chatty\n"},
		{"bad proxy port", "proxy:\n  host: p\n  port: 70000\n"},
		{"port without host", "proxy:\n  port: 8080\n"},
		{"bad config version", "config_version: not-a-version\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestMigrate_RemoteSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config_version: 0.1.3\ntimeouts:\n  remote_ms: 90\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.GetRemoteTimeout())

	cfg, err = Load(writeConfig(t, "config_version: 0.2.0\ntimeouts:\n  remote_ms: 90\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Millisecond, cfg.GetRemoteTimeout())
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := CreateDefault(path)
	cfg.Executable = "/usr/local/bin/hg"
	cfg.Proxy = &ProxyConfig{Host: "proxy.local", Port: 8080}
	require.NoError(t, cfg.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/hg", loaded.GetExecutable())
	assert.Equal(t, "proxy.local:8080", loaded.GetProxy())
	assert.Equal(t, DefaultRemoteTimeoutMs*time.Millisecond, loaded.GetRemoteTimeout())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSave_NoPath(t *testing.T) {
	assert.Error(t, (&Config{}).Save())
}

func TestLoad_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cfg, err := Load(writeConfig(t, "history:\n  path: ~/.hgrun/history.db\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".hgrun", "history.db"), cfg.GetHistoryPath())
}
