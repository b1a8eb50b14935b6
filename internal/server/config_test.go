package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: time.Second}, cfg.RateLimit)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, 20, cfg.ReplayLimit)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example:8443 ,")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("HISTORY_LIMIT", "100")
	t.Setenv("REPLAY_LIMIT", "50")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("UPLOAD_DIR", "/tmp/minichat")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "https://b.example:8443"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 10, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, 50, cfg.ReplayLimit)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, "/tmp/minichat", cfg.UploadDir)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "huge")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")
	t.Setenv("HISTORY_LIMIT", "0")
	t.Setenv("REPLAY_LIMIT", "500")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)

	def := defaultConfig()
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, def.HistoryLimit, cfg.HistoryLimit)
	assert.Equal(t, def.HistoryLimit, cfg.ReplayLimit)
}

func TestLoadConfigReadsBareSecondsForDurations(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "30")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "30")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.RefillInterval)
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minichat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
SERVER_PORT: ":7000"
ALLOWED_ORIGINS:
  - http://one.example
  - http://two.example
HISTORY_LIMIT: 100
REPLAY_LIMIT: 50
RATE_LIMIT_REFILL_INTERVAL: 500ms
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REPLAY_LIMIT", "40")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, []string{"http://one.example", "http://two.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, 40, cfg.ReplayLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.RefillInterval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig(viper.New())
	assert.Error(t, err)
}

func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{Port: "3000", HistoryLimit: 10, ReplayLimit: 25})

	assert.Equal(t, ":3000", cfg.Port)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 10, cfg.ReplayLimit)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"3", 3 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"0", time.Second},
		{"-1s", time.Second},
		{"", time.Second},
		{"later", time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDuration(tt.in, time.Second), tt.in)
	}
}
