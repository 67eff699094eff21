package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration.
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`

	// Remote story API
	APIBaseURL  string        `envconfig:"STORY_API_URL" default:"http://localhost:8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	// Polling behaviour. Генерация на сервере занимает минуты, поэтому
	// интервал фиксированный, без экспоненциального backoff.
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"15s"`
	MaxPollAttempts int           `envconfig:"MAX_POLL_ATTEMPTS" default:"20"`

	// Story list pagination
	PageSize int `envconfig:"PAGE_SIZE" default:"20"`

	// Session
	TokenRefreshLeeway time.Duration `envconfig:"TOKEN_REFRESH_LEEWAY" default:"30s"`
	VerifyDebounce     time.Duration `envconfig:"VERIFY_DEBOUNCE" default:"30s"`

	// Local persistence backend: memory, file or redis
	CacheBackend  string `envconfig:"CACHE_BACKEND" default:"file"`
	CacheFilePath string `envconfig:"CACHE_FILE_PATH" default:".story-client/state.json"`

	// Redis (only used when CACHE_BACKEND=redis)
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`
	// Секретное поле БЕЗ envconfig тега
	RedisPassword string

	// Optional Prometheus listener; empty disables it
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`
}

// Validate checks values that envconfig defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.MaxPollAttempts <= 0 {
		return fmt.Errorf("MAX_POLL_ATTEMPTS must be positive, got %d", c.MaxPollAttempts)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	switch c.CacheBackend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (expected memory, file or redis)", c.CacheBackend)
	}
	return nil
}

// LoadConfig loads configuration from environment variables and secrets.
func LoadConfig(envFilePath string) (*Config, error) {
	// Attempt to load .env file if present; missing file is not an error.
	if _, err := os.Stat(envFilePath); err == nil {
		if err := godotenv.Load(envFilePath); err != nil {
			log.Printf("Warning: Could not load %s file: %v", envFilePath, err)
		} else {
			log.Printf("Loaded configuration from %s", envFilePath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: Error checking %s file: %v", envFilePath, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Секреты читаем напрямую, чтобы они не попадали в envconfig usage
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
