package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultLockTTL     = 30 * time.Second
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string // postgres DSN, or sqlite://<path> for local runs
	RedisURL            string // optional; enables shared locks and request stats
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	LogLevel            string
	LockTimeout         time.Duration
	LockTTL             time.Duration
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "sqlite://bloodbank.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOCK_TIMEOUT", DefaultLockTimeout)
	v.SetDefault("LOCK_TTL", DefaultLockTTL)

	env := v.GetString("APP_ENV")
	if env == "" {
		env = v.GetString("NODE_ENV")
	}
	if env == "" {
		env = "development"
	}

	return &Config{
		Env:                 env,
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		LockTimeout:         positive(v.GetDuration("LOCK_TIMEOUT"), DefaultLockTimeout),
		LockTTL:             positive(v.GetDuration("LOCK_TTL"), DefaultLockTTL),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func positive(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
