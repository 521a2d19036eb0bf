package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadYAML(t *testing.T, doc string) (*Config, error) {
	t.Helper()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))

	return decode(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := loadYAML(t, `
sources:
  - name: lucky
    url: http://lucky.local:16601/api/webservice/rules
targets:
  - name: qb
    host: http://qb.local:8080
`)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Controller.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Controller.LimitOnDelay)
	assert.Equal(t, 30*time.Second, cfg.Controller.LimitOffDelay)
	assert.Equal(t, 10*time.Second, cfg.Controller.RetryInterval)
	assert.Equal(t, 5*time.Second, cfg.Controller.ErrorCooldown)
	assert.Equal(t, time.Hour, cfg.Controller.SessionTTL)
	assert.Equal(t, int64(1024), cfg.Controller.Limited.Download)
	assert.Equal(t, int64(512), cfg.Controller.Limited.Upload)
	assert.Zero(t, cfg.Controller.Normal.Download)
	assert.Equal(t, "data", cfg.Storage.DataDir)

	require.Len(t, cfg.Sources, 1)
	assert.True(t, cfg.Sources[0].Enabled, "sources default to enabled")
	assert.Equal(t, 1.0, cfg.Sources[0].Weight)
	require.Len(t, cfg.Targets, 1)
	assert.True(t, cfg.Targets[0].Enabled)
}

func TestDurationsAcceptBareSeconds(t *testing.T) {
	cfg, err := loadYAML(t, `
controller:
  poll_interval: 3
  limit_on_delay: "10"
  limit_off_delay: 1m
  retry_interval: 2.5
`)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Controller.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Controller.LimitOnDelay)
	assert.Equal(t, time.Minute, cfg.Controller.LimitOffDelay)
	assert.Equal(t, 2500*time.Millisecond, cfg.Controller.RetryInterval)
}

func TestExplicitDisabledEntriesAreKept(t *testing.T) {
	cfg, err := loadYAML(t, `
sources:
  - name: backup
    url: http://backup.local
    weight: 0.5
    enabled: false
targets:
  - name: qb
    host: http://qb.local:8080
    enabled: false
`)
	require.NoError(t, err)

	assert.False(t, cfg.Sources[0].Enabled)
	assert.Equal(t, 0.5, cfg.Sources[0].Weight)
	assert.False(t, cfg.Targets[0].Enabled)
	assert.Empty(t, cfg.EnabledTargets())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "missing source url",
			doc:     "sources:\n  - name: a\n",
			wantErr: "sources[0].url is required",
		},
		{
			name:    "negative weight",
			doc:     "sources:\n  - name: a\n    url: http://a\n    weight: -1\n",
			wantErr: "weight must be >= 0",
		},
		{
			name:    "duplicate target",
			doc:     "targets:\n  - name: qb\n    host: http://a\n  - name: qb\n    host: http://b\n",
			wantErr: "duplicate target name: qb",
		},
		{
			name:    "zero poll interval",
			doc:     "controller:\n  poll_interval: 0s\n",
			wantErr: "poll_interval must be positive",
		},
		{
			name:    "invalid log level",
			doc:     "logging:\n  level: verbose\n",
			wantErr: "invalid logging level: verbose",
		},
		{
			name:    "negative limit",
			doc:     "controller:\n  limited:\n    download: -5\n",
			wantErr: "speed limits must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadYAML(t, tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - name: qb
    host: http://qb.local:8080
    username: admin
    password: secret
logging:
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	target, ok := cfg.Target("qb")
	require.True(t, ok)
	assert.Equal(t, "admin", target.Username)
	assert.Equal(t, "json", cfg.Logging.Format)

	_, ok = cfg.Target("missing")
	assert.False(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
