package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `validate:"required,numeric"`
	StoreDriver string `validate:"oneof=postgres sqlite memory"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	SQLitePath  string `validate:"required_if=StoreDriver sqlite"`

	ClerkSecretKey     string `validate:"required_without=DevJWTSecret"`
	DevJWTSecret       string
	ClerkWebhookSecret string

	MinStreakHours float64       `validate:"gte=0,lte=24"`
	Timezone       string        `validate:"required,timezone"`
	RepairInterval time.Duration `validate:"gte=1s"`

	InviteBaseURL      string `validate:"required,url"`
	FCMCredentialsFile string
	FCMServiceAccount  string

	LogLevel    string `validate:"oneof=debug info warn error"`
	Development bool

	MetricsUser string
	MetricsPass string
	PprofSecret string

	TrustedProxies []string `validate:"dive,cidr|ip"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "3333"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "sleeptax.db"),
		ClerkSecretKey:     os.Getenv("CLERK_SECRET_KEY"),
		DevJWTSecret:       os.Getenv("DEV_JWT_SECRET"),
		ClerkWebhookSecret: os.Getenv("CLERK_WEBHOOK_SECRET"),
		Timezone:           getEnv("TIMEZONE", "UTC"),
		InviteBaseURL:      getEnv("INVITE_BASE_URL", "https://sleeptax.app/join"),
		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		FCMServiceAccount:  os.Getenv("FCM_SERVICE_ACCOUNT_JSON"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Development:        getEnv("APP_ENV", "production") == "development",
		MetricsUser:        os.Getenv("METRICS_USER"),
		MetricsPass:        os.Getenv("METRICS_PASS"),
		PprofSecret:        os.Getenv("PPROF_SECRET"),
		TrustedProxies:     splitList(os.Getenv("TRUSTED_PROXIES")),
	}

	cfg.StoreDriver = os.Getenv("STORE_DRIVER")
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "memory"
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = "postgres"
		}
	}

	var err error
	if cfg.MinStreakHours, err = strconv.ParseFloat(getEnv("MIN_STREAK_HOURS", "6"), 64); err != nil {
		return nil, fmt.Errorf("MIN_STREAK_HOURS: %w", err)
	}
	if cfg.RepairInterval, err = time.ParseDuration(getEnv("REPAIR_INTERVAL", "5m")); err != nil {
		return nil, fmt.Errorf("REPAIR_INTERVAL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
