package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Client  ClientConfig
	Search  SearchConfig
	Audit   AuditConfig
	Storage StorageConfig
	Log     LogConfig
	Auth    AuthConfig
}

type ServerConfig struct {
	BaseURL string
}

type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
}

type SearchConfig struct {
	PerPage int
}

type AuditConfig struct {
	PerPage int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// AuthConfig carries a token supplied from the environment. When set it is
// used instead of the stored login session.
type AuthConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{BaseURL: "http://localhost:5000"},
		Client:  ClientConfig{Timeout: 30 * time.Second, UserAgent: "cvdesk"},
		Search:  SearchConfig{PerPage: 10},
		Audit:   AuditConfig{PerPage: 100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// A .env file in the working directory is read first; its variables never
// replace ones already set in the process environment.
// On macOS the backend is UserDefaults (domain: com.cvdesk.app).
// Elsewhere it is a JSON file at $XDG_CONFIG_HOME/cvdesk/config.json.
//
// Environment variables (CVDESK_*) override backend values on all platforms.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend())
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading %s: %w", path, err)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid config: server.base_url %q must be an http(s) URL", c.Server.BaseURL)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("invalid config: client.timeout must be positive, got %s", c.Client.Timeout)
	}
	if c.Search.PerPage < 5 || c.Search.PerPage > 100 {
		return fmt.Errorf("invalid config: search.per_page must be between 5 and 100, got %d", c.Search.PerPage)
	}
	if c.Audit.PerPage < 1 {
		return fmt.Errorf("invalid config: audit.per_page must be positive, got %d", c.Audit.PerPage)
	}
	return nil
}
