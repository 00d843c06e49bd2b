package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

type Config struct {
	ServerPort         string
	DatabaseURL        string
	RedisURL           string
	ServiceTokenSecret string
	PingInterval       time.Duration
	AwayWindow         time.Duration
	RosterInterval     time.Duration
	ProfileCacheTTL    time.Duration
	LogLevel           string
}

func LoadConfig() (*Config, error) {
	pingInterval, err := getDuration("PING_INTERVAL", 25*time.Second)
	if err != nil {
		return nil, err
	}
	awayWindow, err := getDuration("AWAY_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	rosterInterval, err := getDuration("ROSTER_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getDuration("PROFILE_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ServiceTokenSecret: os.Getenv("SERVICE_TOKEN_SECRET"),
		PingInterval:       pingInterval,
		AwayWindow:         awayWindow,
		RosterInterval:     rosterInterval,
		ProfileCacheTTL:    cacheTTL,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.ServiceTokenSecret == "" {
		return nil, errors.New("SERVICE_TOKEN_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper: parse an optional duration env var, falling back to a default
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
