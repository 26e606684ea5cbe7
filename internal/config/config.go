package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ollamagate/internal/core"
	"ollamagate/internal/gateway"
)

// ServerConfig server configuration
type ServerConfig struct {
	Port            string
	GinMode         string
	OllamaBaseURL   string
	GenerateTimeout time.Duration
	TagsTimeout     time.Duration
	RateLimit       int
	CORSAllowOrigin string
	RedisURL        string
	StatsFilePath   string
	Storage         core.StorageInterface
	Logger          core.Logger
}

// DefaultServerConfig returns the configuration used when no variables are set.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            core.DefaultPort,
		GinMode:         core.DefaultGinMode,
		OllamaBaseURL:   core.DefaultOllamaBaseURL,
		GenerateTimeout: core.DefaultGenerateTimeout,
		TagsTimeout:     core.DefaultTagsTimeout,
		RateLimit:       core.DefaultRateLimit,
		CORSAllowOrigin: "*",
		StatsFilePath:   core.StatsFilePath,
	}
}

// LoadServerConfigFromEnv loads server config from environment variables
func LoadServerConfigFromEnv(logger core.Logger) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	cfg.Port = GetEnvWithDefault("PORT", cfg.Port)
	cfg.GinMode = GetEnvWithDefault("GIN_MODE", cfg.GinMode)
	cfg.CORSAllowOrigin = GetEnvWithDefault("CORS_ALLOW_ORIGIN", cfg.CORSAllowOrigin)
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.StatsFilePath = GetEnvWithDefault("STATS_FILE", cfg.StatsFilePath)

	cfg.OllamaBaseURL = GetEnvWithDefault("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	if err := gateway.ValidateBaseURL(cfg.OllamaBaseURL); err != nil {
		return cfg, err
	}

	var err error
	if cfg.GenerateTimeout, err = durationFromEnv("OLLAMA_GENERATE_TIMEOUT", cfg.GenerateTimeout); err != nil {
		return cfg, err
	}
	if cfg.TagsTimeout, err = durationFromEnv("OLLAMA_TAGS_TIMEOUT", cfg.TagsTimeout); err != nil {
		return cfg, err
	}

	if envRate := os.Getenv("RATE_LIMIT"); envRate != "" {
		rate, parseErr := strconv.Atoi(envRate)
		if parseErr != nil || rate <= 0 {
			logger.Warn("Invalid RATE_LIMIT value '%s', using default %d", envRate, core.DefaultRateLimit)
		} else {
			cfg.RateLimit = rate
		}
	}

	logger.Info("Using Ollama at %s (generate timeout %s, tags timeout %s)", cfg.OllamaBaseURL, cfg.GenerateTimeout, cfg.TagsTimeout)
	return cfg, nil
}

// GetEnvWithDefault returns the trimmed value of key, or defaultValue when unset or blank.
func GetEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func durationFromEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}
