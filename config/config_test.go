package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vuege.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.opencagedata.com", cfg.Providers.OpenCage.BaseURL)
	assert.Equal(t, 0.5, cfg.Resilience.FailureRateThreshold)
	assert.Equal(t, 3, cfg.Resilience.RetryMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Resilience.CallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Monitoring.ProbeInterval)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
providers:
  opencage:
    base_url: http://localhost:9001
    api_key: file-key
resilience:
  retry_max_attempts: 5
  retry_delay: 2s
monitoring:
  probe_interval: 1m
server:
  port: 9090
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9001", cfg.Providers.OpenCage.BaseURL)
	assert.Equal(t, "file-key", cfg.Providers.OpenCage.APIKey)
	assert.Equal(t, 5, cfg.Resilience.RetryMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Resilience.RetryDelay)
	assert.Equal(t, time.Minute, cfg.Monitoring.ProbeInterval)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset sections keep their defaults
	assert.Equal(t, "https://api.opencorporates.com", cfg.Providers.OpenCorporates.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Resilience.CallTimeout)
}

func TestEnvironmentOverridesWin(t *testing.T) {
	t.Setenv("VUEGE_OPENCAGE_API_KEY", "env-key")
	t.Setenv("VUEGE_SERVER_PORT", "7070")

	path := writeConfig(t, `
providers:
  opencage:
    api_key: file-key
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Providers.OpenCage.APIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "providers: [\n"},
		{"empty base url", "providers:\n  opencage:\n    base_url: \"\"\n"},
		{"bad retry attempts", "resilience:\n  retry_max_attempts: -1\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"negative probe interval", "monitoring:\n  probe_interval: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
