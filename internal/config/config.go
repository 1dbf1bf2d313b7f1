// Package config loads loglens settings from defaults, an optional YAML
// file and LOGLENS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable (LOGLENS_SERVER_URL, ...).
const EnvPrefix = "LOGLENS"

// Config keys. Nested keys map to env vars with dots replaced by
// underscores (prefs.backend -> LOGLENS_PREFS_BACKEND).
const (
	KeyServerURL       = "server_url"
	KeyToken           = "token"
	KeyTimeout         = "timeout"
	KeyMaxRetries      = "max_retries"
	KeyPollInterval    = "poll_interval"
	KeyMaxBackoff      = "max_backoff"
	KeyMaxPollDuration = "max_poll_duration"
	KeyMaxPollErrors   = "max_poll_errors"
	KeySimilarLimit    = "similar_limit"
	KeyLogFile         = "log_file"
	KeyLogLevel        = "log_level"
	KeyPrefsBackend    = "prefs.backend"
	KeyPrefsPath       = "prefs.path"
)

// Preference backends.
const (
	PrefsFile   = "file"
	PrefsSQLite = "sqlite"
	PrefsMemory = "memory"
)

// Config holds all configuration values.
type Config struct {
	// Service connection
	ServerURL  string
	Token      string
	Timeout    time.Duration
	MaxRetries int

	// Job polling
	PollInterval    time.Duration
	MaxBackoff      time.Duration
	MaxPollDuration time.Duration
	MaxPollErrors   int

	// Similar records
	SimilarLimit int

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Preferences
	PrefsBackend string
	PrefsPath    string
}

// ConfigDir is ~/.config/loglens, or empty if the home directory is unknown.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "loglens")
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerURL, "http://localhost:5000")
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyTimeout, "2m")
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyPollInterval, "1.5s")
	v.SetDefault(KeyMaxBackoff, "30s")
	v.SetDefault(KeyMaxPollDuration, "30m")
	v.SetDefault(KeyMaxPollErrors, 0)
	v.SetDefault(KeySimilarLimit, 20)
	v.SetDefault(KeyLogFile, filepath.Join(os.TempDir(), "loglens.log"))
	v.SetDefault(KeyLogLevel, "INFO")
	v.SetDefault(KeyPrefsBackend, PrefsFile)
	v.SetDefault(KeyPrefsPath, "")
}

// NewViper returns a viper instance with defaults and environment binding.
// If cfgFile is set it is read; otherwise loglens.yaml is looked up in the
// working directory and ConfigDir. A missing default file is not an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("loglens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := ConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Load reads configuration from v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		ServerURL:  strings.TrimRight(v.GetString(KeyServerURL), "/"),
		Token:      v.GetString(KeyToken),
		Timeout:    v.GetDuration(KeyTimeout),
		MaxRetries: v.GetInt(KeyMaxRetries),

		PollInterval:    v.GetDuration(KeyPollInterval),
		MaxBackoff:      v.GetDuration(KeyMaxBackoff),
		MaxPollDuration: v.GetDuration(KeyMaxPollDuration),
		MaxPollErrors:   v.GetInt(KeyMaxPollErrors),

		SimilarLimit: v.GetInt(KeySimilarLimit),

		LogFile:  v.GetString(KeyLogFile),
		LogLevel: parseLogLevel(v.GetString(KeyLogLevel)),

		PrefsBackend: strings.ToLower(v.GetString(KeyPrefsBackend)),
		PrefsPath:    v.GetString(KeyPrefsPath),
	}

	if cfg.ServerURL == "" {
		return Config{}, fmt.Errorf("%s must not be empty", KeyServerURL)
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %s", KeyPollInterval, v.GetString(KeyPollInterval))
	}
	if cfg.MaxPollDuration < 0 || cfg.MaxPollErrors < 0 {
		return Config{}, fmt.Errorf("%s and %s must not be negative", KeyMaxPollDuration, KeyMaxPollErrors)
	}

	switch cfg.PrefsBackend {
	case PrefsFile, PrefsSQLite, PrefsMemory:
	default:
		return Config{}, fmt.Errorf("unknown %s %q (expected file, sqlite or memory)", KeyPrefsBackend, cfg.PrefsBackend)
	}
	if cfg.PrefsPath == "" {
		cfg.PrefsPath = defaultPrefsPath(cfg.PrefsBackend)
	}

	return cfg, nil
}

func defaultPrefsPath(backend string) string {
	dir := ConfigDir()
	if dir == "" {
		dir = "."
	}
	switch backend {
	case PrefsSQLite:
		return filepath.Join(dir, "prefs.db")
	case PrefsFile:
		return filepath.Join(dir, "prefs.yaml")
	}
	return ""
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
