/*
Package config loads runtime configuration.

PURPOSE:
  Settings come from the environment, optionally seeded from a .env file
  in the working directory. Every knob has a default that makes the
  binary runnable out of the box with the in-memory store.
*/
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

type Config struct {
	AppEnv   string // "development" or "production"
	LogLevel string

	Store         string // StoreMemory or StoreMongo
	MongoURI      string
	MongoDatabase string
	PIIKey        string // hex-encoded AES-256 key; empty disables decryption
	HTTPPort      int

	RenewalInterval   time.Duration
	RenewalWorkers    int
	IntegrityInterval time.Duration
	ResetConfirmDelay time.Duration
}

func (c Config) Development() bool { return c.AppEnv == "development" }

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		// A missing .env is fine; a malformed one is not.
		if errors.As(err, &viper.ConfigParseError{}) {
			return Config{}, fmt.Errorf("parse .env: %w", err)
		}
	}
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE", StoreMemory)
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "entitlements")
	v.SetDefault("PII_KEY", "")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("RENEWAL_INTERVAL", "1h")
	v.SetDefault("RENEWAL_WORKERS", 4)
	v.SetDefault("INTEGRITY_INTERVAL", "24h")
	v.SetDefault("RESET_CONFIRM_DELAY", "10s")

	cfg := Config{
		AppEnv:            v.GetString("APP_ENV"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		Store:             v.GetString("STORE"),
		MongoURI:          v.GetString("MONGODB_URI"),
		MongoDatabase:     v.GetString("MONGODB_DATABASE"),
		PIIKey:            v.GetString("PII_KEY"),
		HTTPPort:          v.GetInt("HTTP_PORT"),
		RenewalInterval:   v.GetDuration("RENEWAL_INTERVAL"),
		RenewalWorkers:    v.GetInt("RENEWAL_WORKERS"),
		IntegrityInterval: v.GetDuration("INTEGRITY_INTERVAL"),
		ResetConfirmDelay: v.GetDuration("RESET_CONFIRM_DELAY"),
	}

	if cfg.Store != StoreMemory && cfg.Store != StoreMongo {
		return Config{}, fmt.Errorf("config: unknown STORE %q", cfg.Store)
	}
	if cfg.RenewalWorkers < 1 {
		cfg.RenewalWorkers = 1
	}
	return cfg, nil
}
