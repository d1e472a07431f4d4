// Package config loads runtime settings from environment variables and
// an optional YAML file. Every knob has a WSK_-prefixed env override.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Identity   string `mapstructure:"identity"`
	LogLevel   string `mapstructure:"log_level"`
	DataDir    string `mapstructure:"data_dir"`
	RenderQR   bool   `mapstructure:"render_qr"`

	Store StoreConfig `mapstructure:"store"`
	Sink  SinkConfig  `mapstructure:"sink"`
	Retry RetryConfig `mapstructure:"retry"`
}

// StoreConfig selects and parameterizes the session store backend.
type StoreConfig struct {
	// Backend is one of badger, file, remote, memory.
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	URL     string `mapstructure:"url"`
}

// SinkConfig points status snapshots at an external backend. Empty URL
// means snapshots only go to the log.
type SinkConfig struct {
	URL string `mapstructure:"url"`
}

// RetryConfig tunes the supervisor's failure handling.
type RetryConfig struct {
	BaseDelay             time.Duration `mapstructure:"base_delay"`
	MaxDelay              time.Duration `mapstructure:"max_delay"`
	InitFailureLimit      int           `mapstructure:"init_failure_limit"`
	InitFailureWindow     time.Duration `mapstructure:"init_failure_window"`
	ShutdownBackupTimeout time.Duration `mapstructure:"shutdown_backup_timeout"`
}

// Load reads configuration. A config file path may be given explicitly;
// when empty, wsk.yaml in the working directory is used if present.
func Load(file string) (Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("identity", "primary")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "data")
	v.SetDefault("render_qr", true)
	v.SetDefault("store.backend", "badger")
	v.SetDefault("store.path", "data/sessions")
	v.SetDefault("store.url", "")
	v.SetDefault("sink.url", "")
	v.SetDefault("retry.base_delay", 2*time.Second)
	v.SetDefault("retry.max_delay", time.Minute)
	v.SetDefault("retry.init_failure_limit", 5)
	v.SetDefault("retry.init_failure_window", time.Minute)
	v.SetDefault("retry.shutdown_backup_timeout", 5*time.Second)

	v.SetEnvPrefix("WSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("wsk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "badger", "file", "memory":
		if c.Store.Backend != "memory" && c.Store.Path == "" {
			return fmt.Errorf("store.path is required for backend %q", c.Store.Backend)
		}
	case "remote":
		if c.Store.URL == "" {
			return errors.New("store.url is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Identity == "" {
		return errors.New("identity must not be empty")
	}
	return nil
}
