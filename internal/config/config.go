package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/nowserving/internal/engine"
)

const (
	devPIN    = "1234"
	devSecret = "dev-secret-change-me"
)

type Config struct {
	AppEnv        string        `env:"APP_ENV" default:"development"`
	Port          string        `env:"PORT" default:"5050"`
	AllowedOrigin string        `env:"ALLOWED_ORIGIN" default:"*"`
	StaffPIN      string        `env:"STAFF_PIN" default:"1234"`
	JWTSecret     string        `env:"JWT_SECRET" default:"dev-secret-change-me"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" default:"12h"`
	LogLevel      string        `env:"LOG_LEVEL" default:"info"`
	LogFormat     string        `env:"LOG_FORMAT" default:"json"`
	GroupsFile    string        `env:"GROUPS_FILE"`

	LoginRatePerMinute float64 `env:"LOGIN_RATE_PER_MINUTE" default:"10"`
	LoginBurst         int     `env:"LOGIN_BURST" default:"5"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	if cfg.StaffPIN == "" {
		return errors.New("STAFF_PIN is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if cfg.LoginRatePerMinute <= 0 || cfg.LoginBurst < 1 {
		return errors.New("LOGIN_RATE_PER_MINUTE and LOGIN_BURST must be positive")
	}
	if cfg.IsProduction() {
		if cfg.StaffPIN == devPIN {
			return errors.New("STAFF_PIN must be changed from the development default in production")
		}
		if cfg.JWTSecret == devSecret || len(cfg.JWTSecret) < 16 {
			return errors.New("JWT_SECRET must be at least 16 characters and not the development default in production")
		}
	}
	return nil
}

type groupsFile struct {
	Groups []engine.GroupTemplate `yaml:"groups"`
}

// LoadGroups reads group templates from a YAML file. An empty path yields the
// built-in two-screen layout.
//
//	groups:
//	  - id: tv-a
//	    counters: [counter1, counter2, counter3]
func LoadGroups(path string) ([]engine.GroupTemplate, error) {
	if path == "" {
		return engine.DefaultTemplates(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read groups file: %w", err)
	}

	var f groupsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse groups file %s: %w", path, err)
	}
	if len(f.Groups) == 0 {
		return nil, fmt.Errorf("groups file %s declares no groups", path)
	}
	return f.Groups, nil
}
