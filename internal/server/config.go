// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the MiniChat service.
package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls
// and room sizing.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	HistoryLimit    int
	ReplayLimit     int
	SendQueueSize   int
	MaxUploadBytes  int64
	UploadDir       string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Environment keys understood by LoadConfig. A config file named by CONFIG_FILE
// may set the same keys.
const (
	keyPort            = "SERVER_PORT"
	keyAllowedOrigins  = "ALLOWED_ORIGINS"
	keyMaxMessageSize  = "MAX_MESSAGE_SIZE"
	keyRateBurst       = "RATE_LIMIT_BURST"
	keyRateRefill      = "RATE_LIMIT_REFILL_INTERVAL"
	keyHistoryLimit    = "HISTORY_LIMIT"
	keyReplayLimit     = "REPLAY_LIMIT"
	keySendQueueSize   = "SEND_QUEUE_SIZE"
	keyMaxUploadBytes  = "MAX_UPLOAD_BYTES"
	keyUploadDir       = "UPLOAD_DIR"
	keyLogLevel        = "LOG_LEVEL"
	keyLogFormat       = "LOG_FORMAT"
	keyShutdownTimeout = "SHUTDOWN_TIMEOUT"
	keyConfigFile      = "CONFIG_FILE"
)

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		HistoryLimit:    20,
		ReplayLimit:     20,
		SendQueueSize:   256,
		MaxUploadBytes:  10 << 20,
		UploadDir:       "uploads",
		LogLevel:        "info",
		LogFormat:       "console",
		ShutdownTimeout: 30 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}

	if cfg.ReplayLimit <= 0 || cfg.ReplayLimit > cfg.HistoryLimit {
		cfg.ReplayLimit = cfg.HistoryLimit
	}

	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}

	if strings.TrimSpace(cfg.UploadDir) == "" {
		cfg.UploadDir = def.UploadDir
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() (*Config, error) {
	return LoadConfig(viper.New())
}

// LoadConfig reads configuration through v from the environment and, when
// CONFIG_FILE is set, from that file. Environment values win over the file.
// Unparseable or out-of-range values fall back to their defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	def := defaultConfig()

	v.AutomaticEnv()
	v.SetDefault(keyPort, def.Port)
	v.SetDefault(keyAllowedOrigins, strings.Join(def.AllowedOrigins, ","))
	v.SetDefault(keyMaxMessageSize, def.MaxMessageSize)
	v.SetDefault(keyRateBurst, def.RateLimit.Burst)
	v.SetDefault(keyRateRefill, int(def.RateLimit.RefillInterval/time.Second))
	v.SetDefault(keyHistoryLimit, def.HistoryLimit)
	v.SetDefault(keyReplayLimit, def.ReplayLimit)
	v.SetDefault(keySendQueueSize, def.SendQueueSize)
	v.SetDefault(keyMaxUploadBytes, def.MaxUploadBytes)
	v.SetDefault(keyUploadDir, def.UploadDir)
	v.SetDefault(keyLogLevel, def.LogLevel)
	v.SetDefault(keyLogFormat, def.LogFormat)
	v.SetDefault(keyShutdownTimeout, def.ShutdownTimeout.String())

	if file := v.GetString(keyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:           v.GetString(keyPort),
		AllowedOrigins: parseOrigins(v.GetStringSlice(keyAllowedOrigins)),
		MaxMessageSize: v.GetInt64(keyMaxMessageSize),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt(keyRateBurst),
			RefillInterval: parseDuration(v.GetString(keyRateRefill), def.RateLimit.RefillInterval),
		},
		HistoryLimit:    v.GetInt(keyHistoryLimit),
		ReplayLimit:     v.GetInt(keyReplayLimit),
		SendQueueSize:   v.GetInt(keySendQueueSize),
		MaxUploadBytes:  v.GetInt64(keyMaxUploadBytes),
		UploadDir:       v.GetString(keyUploadDir),
		LogLevel:        v.GetString(keyLogLevel),
		LogFormat:       v.GetString(keyLogFormat),
		ShutdownTimeout: parseDuration(v.GetString(keyShutdownTimeout), def.ShutdownTimeout),
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

// parseOrigins accepts either a list from a config file or a single
// comma-separated environment value.
func parseOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

// parseDuration accepts whole seconds ("2") or a Go duration ("500ms").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
