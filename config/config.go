package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load loads the configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix("SEEDBRAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".seedbrake"))
		}

		// Check /etc
		v.AddConfigPath("/etc/seedbrake/")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return decode(v)
}

// decode unmarshals and validates a populated viper instance
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Controller defaults
	v.SetDefault("controller.poll_interval", "2s")
	v.SetDefault("controller.limit_on_delay", "5s")
	v.SetDefault("controller.limit_off_delay", "30s")
	v.SetDefault("controller.retry_interval", "10s")
	v.SetDefault("controller.error_cooldown", "5s")
	v.SetDefault("controller.restore_attempts", 3)
	v.SetDefault("controller.session_ttl", "1h")
	v.SetDefault("controller.request_timeout", "10s")
	v.SetDefault("controller.max_retries", 3)
	v.SetDefault("controller.retry_backoff", "2s")
	v.SetDefault("controller.auto_start", true)
	v.SetDefault("controller.limited.download", 1024)
	v.SetDefault("controller.limited.upload", 512)
	v.SetDefault("controller.normal.download", 0)
	v.SetDefault("controller.normal.upload", 0)

	// Storage defaults
	v.SetDefault("storage.data_dir", "data")

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.address", ":5000")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// decodeHook extends viper's default hooks with bare-second durations and
// per-entry defaults for sources and targets.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		entryDefaultsHook(),
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// secondsToDurationHook treats bare numbers as seconds, as the settings file
// written by earlier releases did.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Second, nil
		case int64:
			return time.Duration(n) * time.Second, nil
		case float64:
			return time.Duration(n * float64(time.Second)), nil
		case string:
			// "30" without a unit is also seconds
			if n != "" && strings.Trim(n, "0123456789") == "" {
				return n + "s", nil
			}
		}
		return data, nil
	}
}

// entryDefaultsHook fills enabled=true and weight=1 on source and target
// entries that omit them.
func entryDefaultsHook() mapstructure.DecodeHookFuncType {
	sourceType := reflect.TypeOf(SourceConfig{})
	targetType := reflect.TypeOf(TargetConfig{})

	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != sourceType && to != targetType {
			return data, nil
		}

		raw, ok := data.(map[string]any)
		if !ok {
			return data, nil
		}

		entry := make(map[string]any, len(raw)+2)
		for k, val := range raw {
			entry[strings.ToLower(k)] = val
		}
		if _, ok := entry["enabled"]; !ok {
			entry["enabled"] = true
		}
		if to == sourceType {
			if _, ok := entry["weight"]; !ok {
				entry["weight"] = 1.0
			}
		}
		return entry, nil
	}
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	seen := make(map[string]bool)
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name: %s", src.Name)
		}
		seen[src.Name] = true

		if src.URL == "" {
			return fmt.Errorf("sources[%d].url is required", i)
		}
		if src.Weight < 0 {
			return fmt.Errorf("sources[%d].weight must be >= 0", i)
		}
	}

	seen = make(map[string]bool)
	for i, t := range cfg.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d].name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name: %s", t.Name)
		}
		seen[t.Name] = true

		if t.Host == "" {
			return fmt.Errorf("targets[%d].host is required", i)
		}
	}

	c := cfg.Controller
	if c.PollInterval <= 0 {
		return fmt.Errorf("controller.poll_interval must be positive")
	}
	if c.LimitOnDelay < 0 || c.LimitOffDelay < 0 {
		return fmt.Errorf("controller limit delays must not be negative")
	}
	if c.ErrorCooldown <= 0 {
		return fmt.Errorf("controller.error_cooldown must be positive")
	}
	if c.RestoreAttempts < 1 {
		return fmt.Errorf("controller.restore_attempts must be at least 1")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("controller.max_retries must be at least 1")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("controller.request_timeout must be positive")
	}
	if c.Limited.Download < 0 || c.Limited.Upload < 0 || c.Normal.Download < 0 || c.Normal.Upload < 0 {
		return fmt.Errorf("speed limits must not be negative")
	}

	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
