// Package config loads flaneur configuration.
//
// Sources are layered, later ones overriding earlier ones:
//  1. Built-in defaults
//  2. An optional YAML file (path from --config or FLANEUR_CONFIG)
//  3. FLANEUR_-prefixed environment variables, also read from a .env file
//
// Environment variable names map to config paths by dropping the prefix and
// splitting the section on the first underscore:
//
//	FLANEUR_INSTAGRAM_CLIENT_ID -> instagram.client_id
//	FLANEUR_SERVER_RUN_TIMEOUT  -> server.run_timeout
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/gauthierbraillon/flaneur/internal/logging"
)

const (
	// EnvPrefix prefixes every environment variable read by flaneur.
	EnvPrefix = "FLANEUR_"
	// ConfigPathEnvVar names the variable holding the YAML config file path.
	ConfigPathEnvVar = "FLANEUR_CONFIG"
)

// Config is the complete flaneur configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Instagram InstagramConfig `koanf:"instagram"`
	Facebook  FacebookConfig  `koanf:"facebook"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
	// PublicURL is the externally visible base URL, used to build OAuth redirect URIs.
	PublicURL         string        `koanf:"public_url" validate:"required,url"`
	RunTimeout        time.Duration `koanf:"run_timeout" validate:"gte=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// InstagramConfig configures the Instagram provider and its OAuth app.
type InstagramConfig struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"` // #nosec G117 - config field, not an exposed secret
	BaseURL      string   `koanf:"base_url" validate:"required,url"`
	RedirectURL  string   `koanf:"redirect_url" validate:"omitempty,url"`
	Scopes       []string `koanf:"scopes"`
	PageSize     int      `koanf:"page_size" validate:"gte=1,lte=500"`
}

// FacebookConfig configures the Facebook provider and its Facebook Login app.
type FacebookConfig struct {
	AppID       string   `koanf:"app_id"`
	AppSecret   string   `koanf:"app_secret"` // #nosec G117 - config field, not an exposed secret
	GraphURL    string   `koanf:"graph_url" validate:"required,url"`
	DialogURL   string   `koanf:"dialog_url" validate:"required,url"`
	APIVersion  string   `koanf:"api_version" validate:"required,startswith=v"`
	RedirectURL string   `koanf:"redirect_url" validate:"omitempty,url"`
	Scopes      []string `koanf:"scopes"`
	PageSize    int      `koanf:"page_size" validate:"gte=1,lte=500"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Logger converts the section to a logging.Config.
func (c LoggingConfig) Logger() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, Caller: c.Caller}
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			PublicURL:         "http://localhost:8080",
			RunTimeout:        60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Instagram: InstagramConfig{
			BaseURL:  "https://api.instagram.com",
			Scopes:   []string{"basic", "public_content"},
			PageSize: 20,
		},
		Facebook: FacebookConfig{
			GraphURL:   "https://graph.facebook.com",
			DialogURL:  "https://www.facebook.com",
			APIVersion: "v2.12",
			Scopes:     []string{"user_tagged_places", "user_events"},
			PageSize:   25,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// sliceConfigPaths are read from comma-separated environment variables.
var sliceConfigPaths = []string{
	"instagram.scopes",
	"facebook.scopes",
}

// Load reads the configuration. An empty path falls back to FLANEUR_CONFIG;
// no file at all is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyDerived fills values computed from other settings.
func (c *Config) applyDerived() {
	base := strings.TrimRight(c.Server.PublicURL, "/")
	if c.Instagram.RedirectURL == "" {
		c.Instagram.RedirectURL = base + "/instagram/authorize"
	}
	if c.Facebook.RedirectURL == "" {
		c.Facebook.RedirectURL = base + "/facebook/authorize"
	}
}

// envTransformFunc maps FLANEUR_SECTION_KEY to section.key. Variables
// without the prefix, and the config path variable itself, are skipped.
func envTransformFunc(key string) string {
	if !strings.HasPrefix(key, EnvPrefix) || key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	section, rest, found := strings.Cut(key, "_")
	if !found || rest == "" {
		return ""
	}
	return section + "." + rest
}

// processSliceFields splits comma-separated string values of slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// InstagramConfigured reports whether the Instagram OAuth app is set up.
func (c *Config) InstagramConfigured() bool {
	return c.Instagram.ClientID != "" && c.Instagram.ClientSecret != ""
}

// FacebookConfigured reports whether the Facebook Login app is set up.
func (c *Config) FacebookConfigured() bool {
	return c.Facebook.AppID != "" && c.Facebook.AppSecret != ""
}
