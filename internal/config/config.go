package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	AppEnv         string
	ServerPort     string
	DatabaseURL    string // postgres://..., sqlite://<path> or memory://
	BaseURL        string // Public origin used to build short URLs; derived from the request when empty
	AllowedDomains string // Comma-separated list of allowed domains

	RedisURL      string // Empty disables the link cache
	RedisPassword string
	CacheTTL      time.Duration

	JWTSecret     string
	TokenTTL      time.Duration
	ResetSecret   string
	ResetTokenTTL time.Duration

	ClickWorkerCount int
	ClickQueueSize   int

	RateLimitRPS   float64
	RateLimitBurst int
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// AllowedDomainList returns the trimmed, non-empty entries of AllowedDomains.
func (c *Config) AllowedDomainList() []string {
	var domains []string
	for _, d := range strings.Split(c.AllowedDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

var AppConfig *Config

var defaults = map[string]interface{}{
	"APP_ENV":                 "development",
	"SERVER_PORT":             ":8080",
	"CACHE_TTL_SECONDS":       600,
	"TOKEN_TTL_HOURS":         24,
	"RESET_TOKEN_TTL_MINUTES": 30,
	"CLICK_WORKER_COUNT":      3,
	"CLICK_QUEUE_SIZE":        100,
	"RATE_LIMIT_RPS":          5.0,
	"RATE_LIMIT_BURST":        10,
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file in the current directory for development convenience.
func LoadConfig() error {
	// Attempt to load .env file, but don't fail if it's not there (for production)
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{
		AppEnv:           v.GetString("APP_ENV"),
		ServerPort:       v.GetString("SERVER_PORT"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		BaseURL:          strings.TrimSuffix(v.GetString("BASE_URL"), "/"),
		AllowedDomains:   v.GetString("ALLOWED_DOMAINS"), // Empty means allow all
		RedisURL:         v.GetString("REDIS_URL"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		CacheTTL:         time.Duration(positiveInt(v, "CACHE_TTL_SECONDS")) * time.Second,
		JWTSecret:        v.GetString("JWT_SECRET"),
		TokenTTL:         time.Duration(positiveInt(v, "TOKEN_TTL_HOURS")) * time.Hour,
		ResetSecret:      v.GetString("RESET_SECRET"),
		ResetTokenTTL:    time.Duration(positiveInt(v, "RESET_TOKEN_TTL_MINUTES")) * time.Minute,
		ClickWorkerCount: positiveInt(v, "CLICK_WORKER_COUNT"),
		ClickQueueSize:   positiveInt(v, "CLICK_QUEUE_SIZE"),
		RateLimitRPS:     positiveFloat(v, "RATE_LIMIT_RPS"),
		RateLimitBurst:   positiveInt(v, "RATE_LIMIT_BURST"),
	}

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	AppConfig = cfg
	return nil
}

// positiveInt reads key as an int, falling back to its default when the value
// is malformed or not positive.
func positiveInt(v *viper.Viper, key string) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return defaults[key].(int)
}

func positiveFloat(v *viper.Viper, key string) float64 {
	if f := v.GetFloat64(key); f > 0 {
		return f
	}
	return defaults[key].(float64)
}
