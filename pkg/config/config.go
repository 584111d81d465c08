// Package config provides YAML-based configuration loading for the servient.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
    // AppName is the logical name of the servient process
    AppName string `mapstructure:"app_name"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Servient tunes the runtime
    Servient ServientConfig `mapstructure:"servient"`

    // Bindings lists the protocol bindings to register
    Bindings []BindingConfig `mapstructure:"bindings"`

    // Credentials maps Thing ids to the credentials handed to the security hook
    Credentials map[string]map[string]any `mapstructure:"credentials"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// ServientConfig holds runtime tuning.
type ServientConfig struct {
    // DefaultContentType is used for the forms of exposed Things
    DefaultContentType string `mapstructure:"default_content_type"`
    // EventQueueSize is the per-subscriber delivery queue length
    EventQueueSize int `mapstructure:"event_queue_size"`
    // DeliveryTimeout bounds how long one emission waits on a full queue
    DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
    // DiscoveryCacheTTL keeps fetched TDs; 0 disables the cache
    DiscoveryCacheTTL time.Duration `mapstructure:"discovery_cache_ttl"`
    // DiscoveryCacheMaxBytes caps the cached TD bytes; 0 means unlimited
    DiscoveryCacheMaxBytes uint64 `mapstructure:"discovery_cache_max_bytes"`
    // ShutdownTimeout bounds Shutdown on exit
    ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "servient",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/servient.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Servient: ServientConfig{
            DefaultContentType:     "application/json",
            EventQueueSize:         16,
            DeliveryTimeout:        100 * time.Millisecond,
            DiscoveryCacheTTL:      time.Minute,
            DiscoveryCacheMaxBytes: 4 << 20,
            ShutdownTimeout:        5 * time.Second,
        },
        Bindings: []BindingConfig{
            {Kind: "mem", Host: "localhost", Server: true, Client: true},
        },
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix SERVIENT and `.`/`-` are replaced with `_`.
// Example: SERVIENT_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("SERVIENT")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("servient.default_content_type", cfg.Servient.DefaultContentType)
    v.SetDefault("servient.event_queue_size", cfg.Servient.EventQueueSize)
    v.SetDefault("servient.delivery_timeout", cfg.Servient.DeliveryTimeout)
    v.SetDefault("servient.discovery_cache_ttl", cfg.Servient.DiscoveryCacheTTL)
    v.SetDefault("servient.discovery_cache_max_bytes", cfg.Servient.DiscoveryCacheMaxBytes)
    v.SetDefault("servient.shutdown_timeout", cfg.Servient.ShutdownTimeout)
    v.SetDefault("bindings", cfg.Bindings)

    if path == "" {
        if envPath := os.Getenv("SERVIENT_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("servient")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".servient"))
        }
    }

    // a missing file is fine; defaults and env still apply
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    if c.Servient.EventQueueSize < 0 {
        return fmt.Errorf("invalid servient.event_queue_size: %d", c.Servient.EventQueueSize)
    }
    if c.Servient.DeliveryTimeout < 0 || c.Servient.DiscoveryCacheTTL < 0 {
        return errors.New("servient durations must not be negative")
    }
    seen := make(map[string]bool)
    for i := range c.Bindings {
        b := &c.Bindings[i]
        b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
        if b.Kind == "" { return fmt.Errorf("bindings[%d]: kind is required", i) }
        if seen[b.Kind] { return fmt.Errorf("bindings[%d]: duplicate kind %q", i, b.Kind) }
        seen[b.Kind] = true
        if !b.Server && !b.Client { b.Server, b.Client = true, true }
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
