package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Sources    []SourceConfig   `mapstructure:"sources"`
	Targets    []TargetConfig   `mapstructure:"targets"`
	Controller ControllerConfig `mapstructure:"controller"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SourceConfig describes a monitored Lucky device
type SourceConfig struct {
	Name        string  `mapstructure:"name"`
	URL         string  `mapstructure:"url"`
	Weight      float64 `mapstructure:"weight"`
	Enabled     bool    `mapstructure:"enabled"`
	Description string  `mapstructure:"description"`
	Token       string  `mapstructure:"token"`
	Username    string  `mapstructure:"username"`
	Password    string  `mapstructure:"password"`
	// Exclude is an optional expression; matching records are dropped before filtering.
	Exclude string `mapstructure:"exclude"`
}

// TargetConfig holds qBittorrent connection details
type TargetConfig struct {
	Name        string `mapstructure:"name"`
	Host        string `mapstructure:"host"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Enabled     bool   `mapstructure:"enabled"`
	Description string `mapstructure:"description"`
}

// ControllerConfig contains the hysteresis timing and speed limits
type ControllerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	LimitOnDelay    time.Duration `mapstructure:"limit_on_delay"`
	LimitOffDelay   time.Duration `mapstructure:"limit_off_delay"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	ErrorCooldown   time.Duration `mapstructure:"error_cooldown"`
	RestoreAttempts int           `mapstructure:"restore_attempts"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	AutoStart       bool          `mapstructure:"auto_start"`
	Limited         LimitsConfig  `mapstructure:"limited"`
	Normal          LimitsConfig  `mapstructure:"normal"`
}

// LimitsConfig is a download/upload pair in KB/s, 0 meaning unlimited
type LimitsConfig struct {
	Download int64 `mapstructure:"download"`
	Upload   int64 `mapstructure:"upload"`
}

// StorageConfig controls where persisted state lives
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// ServerConfig holds the control API listener settings
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// EnabledTargets returns the targets that take part in actuation
func (c *Config) EnabledTargets() []TargetConfig {
	var targets []TargetConfig
	for _, t := range c.Targets {
		if t.Enabled {
			targets = append(targets, t)
		}
	}
	return targets
}

// Target looks up a target by name
func (c *Config) Target(name string) (TargetConfig, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return TargetConfig{}, false
}
