package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.MaxPollDuration)
	assert.Zero(t, cfg.MaxPollErrors, "poll errors are retried without limit by default")
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 20, cfg.SimilarLimit)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, PrefsFile, cfg.PrefsBackend)
	assert.Equal(t, "prefs.yaml", filepath.Base(cfg.PrefsPath))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOGLENS_SERVER_URL", "https://logs.example.com/")
	t.Setenv("LOGLENS_TOKEN", "abc")
	t.Setenv("LOGLENS_POLL_INTERVAL", "250ms")
	t.Setenv("LOGLENS_MAX_POLL_ERRORS", "5")
	t.Setenv("LOGLENS_LOG_LEVEL", "debug")
	t.Setenv("LOGLENS_PREFS_BACKEND", "SQLite")

	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "https://logs.example.com", cfg.ServerURL, "trailing slash is trimmed")
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxPollErrors)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, PrefsSQLite, cfg.PrefsBackend)
	assert.Equal(t, "prefs.db", filepath.Base(cfg.PrefsPath))
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loglens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: http://analysis.internal:8080
poll_interval: 3s
prefs:
  backend: memory
`), 0o644))
	t.Setenv("LOGLENS_POLL_INTERVAL", "2s")

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://analysis.internal:8080", cfg.ServerURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval, "env overrides the file")
	assert.Equal(t, PrefsMemory, cfg.PrefsBackend)
}

func TestNewViperMissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown prefs backend", "LOGLENS_PREFS_BACKEND", "redis"},
		{"zero poll interval", "LOGLENS_POLL_INTERVAL", "0s"},
		{"negative poll errors", "LOGLENS_MAX_POLL_ERRORS", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(newTestViper(t))
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var console, file bytes.Buffer
	logger := SetupLoggerWithWriters(&console, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("job submitted", "job_id", "j1")

	assert.Contains(t, console.String(), "job_id=j1")
	assert.NotContains(t, console.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "job submitted", entry["msg"])
	assert.Equal(t, "j1", entry["job_id"])
}

func TestSetupLoggerFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "loglens.log")
	logger, cleanup := SetupLogger(nil, path, slog.LevelDebug)

	logger.Debug("poll", "job_id", "j2")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job_id":"j2"`)
}
