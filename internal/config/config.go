package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AuthSecret             string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL         time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	BootstrapAdminPassword string        `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	BusinessTimezone string `envconfig:"BUSINESS_TIMEZONE" default:"America/Bogota"`
	ProfitCostBasis  string `envconfig:"PROFIT_COST_BASIS" default:"current"`

	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string        `envconfig:"GEMINI_MODEL"`
	GeminiBaseURL     string        `envconfig:"GEMINI_BASE_URL"`
	AssistantTimeout  time.Duration `envconfig:"ASSISTANT_TIMEOUT" default:"20s"`
	AssistantCacheTTL time.Duration `envconfig:"ASSISTANT_CACHE_TTL" default:"10m"`
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ProfitCostBasis = strings.ToLower(strings.TrimSpace(cfg.ProfitCostBasis))
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", cfg.AccessTokenTTL)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

func (c *Config) AssistantEnabled() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}
