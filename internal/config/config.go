package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string

	JWTSecret       string
	JWTAccessExpiry time.Duration

	// Section locks. The heartbeat interval clients should use is
	// LockTTL / 5, so a missed beat or two never costs a lock.
	LockTTL          time.Duration
	LockReapInterval time.Duration

	// Collab sessions.
	SessionLifetime     time.Duration
	SessionIdleTimeout  time.Duration
	SessionReapInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		JWTSecret:       getEnvOrPanic("JWT_SECRET"),
		JWTAccessExpiry: getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),

		LockTTL:          getDuration("LOCK_TTL", 3*time.Minute),
		LockReapInterval: getDuration("LOCK_REAP_INTERVAL", 30*time.Second),

		SessionLifetime:     getDuration("SESSION_LIFETIME", 4*time.Hour),
		SessionIdleTimeout:  getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionReapInterval: getDuration("SESSION_REAP_INTERVAL", time.Minute),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvOrPanic(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return d
}
