// Package config loads server settings from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Preview   PreviewConfig
	Grader    GraderConfig
	Logging   LogConfig
	Workspace WorkspaceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	TemplateDir string `envconfig:"TEMPLATE_DIR" default:"web/templates"`
	StaticDir   string `envconfig:"STATIC_DIR" default:"web/static"`
	// CatalogPath overrides the embedded lesson and challenge catalog.
	CatalogPath string `envconfig:"CATALOG_PATH"`
}

// StorageConfig selects where progress and projects are kept.
type StorageConfig struct {
	DBPath    string `envconfig:"DB_PATH" default:"data/playground.db"`
	Backend   string `envconfig:"STORE_BACKEND" default:"sqlite"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
}

// AuthConfig holds learner session and GitHub sign-in settings.
type AuthConfig struct {
	JWTSecret          string `envconfig:"JWT_SECRET"`
	GitHubClientID     string `envconfig:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `envconfig:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `envconfig:"GITHUB_CALLBACK_URL"`
}

// PreviewConfig tunes the live preview pipeline.
type PreviewConfig struct {
	Debounce    time.Duration `envconfig:"DEBOUNCE" default:"1s"`
	AutoRun     bool          `envconfig:"AUTO_RUN" default:"true"`
	ConsoleCap  int           `envconfig:"CONSOLE_CAP" default:"1000"`
	BridgeRate  float64       `envconfig:"BRIDGE_RATE" default:"200"`
	BridgeBurst int           `envconfig:"BRIDGE_BURST" default:"400"`
}

// GraderConfig selects and bounds the submission executor.
type GraderConfig struct {
	Engine      string        `envconfig:"GRADER_ENGINE" default:"goja"`
	Timeout     time.Duration `envconfig:"GRADE_TIMEOUT" default:"2s"`
	DockerImage string        `envconfig:"DOCKER_IMAGE" default:"node:20-alpine"`
	DockerPool  int           `envconfig:"DOCKER_POOL_SIZE" default:"2"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// WorkspaceConfig bounds in-memory workspaces.
type WorkspaceConfig struct {
	IdleTTL       time.Duration `envconfig:"WORKSPACE_IDLE_TTL" default:"30m"`
	MaxWorkspaces int           `envconfig:"MAX_WORKSPACES" default:"500"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite or redis, got %q", c.Storage.Backend)
	}
	switch c.Grader.Engine {
	case "goja", "docker":
	default:
		return fmt.Errorf("GRADER_ENGINE must be goja or docker, got %q", c.Grader.Engine)
	}
	if c.Preview.Debounce <= 0 {
		return fmt.Errorf("DEBOUNCE must be positive, got %s", c.Preview.Debounce)
	}
	if c.Preview.ConsoleCap <= 0 {
		return fmt.Errorf("CONSOLE_CAP must be positive, got %d", c.Preview.ConsoleCap)
	}
	if c.Grader.Timeout <= 0 {
		return fmt.Errorf("GRADE_TIMEOUT must be positive, got %s", c.Grader.Timeout)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Auth.GitHubCallbackURL == "" {
		c.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Server.Port)
	}
	return nil
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
