package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultBaseURL     = "http://localhost:91/api"
	DefaultRelativeAPI = "/api"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Origin  string        `mapstructure:"origin"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
}

type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name" validate:"required"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" validate:"required,min=1s"`
	CookieTTL  time.Duration `mapstructure:"cookie_ttl" validate:"required,min=1s"`
}

type CacheConfig struct {
	DestinationTTL time.Duration `mapstructure:"destination_ttl" validate:"required,min=1s"`
	MaxEntries     int           `mapstructure:"max_entries" validate:"required,min=1"`
	SearchLimit    int           `mapstructure:"search_limit" validate:"required,min=1"`
}

type StorageConfig struct {
	Driver      string      `mapstructure:"driver" validate:"required,oneof=sqlite postgres redis memory"`
	Source      string      `mapstructure:"source"`
	AutoMigrate bool        `mapstructure:"auto_migrate"`
	Redis       RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	Prefix   string `mapstructure:"prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DefaultConfig mirrors the values the web client shipped with.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			CookieName: "jwt",
			TokenTTL:   15 * time.Minute,
			CookieTTL:  6 * time.Hour,
		},
		Cache: CacheConfig{
			DestinationTTL: 6 * time.Hour,
			MaxEntries:     20,
			SearchLimit:    10,
		},
		Storage: StorageConfig{
			Driver:      "sqlite",
			AutoMigrate: true,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "travel",
			},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// ResolveBaseURL picks the explicit base URL, then the relative /api path on
// a configured origin, then the local fallback.
func (c APIConfig) ResolveBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Origin != "" {
		return strings.TrimRight(c.Origin, "/") + DefaultRelativeAPI
	}
	return DefaultBaseURL
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		errs = append(errs, err.Error())
	}

	if err := c.API.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("api config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *APIConfig) Validate() error {
	for _, raw := range []string{c.BaseURL, c.Origin} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid url %s: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url %s must be absolute http(s)", raw)
		}
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case "postgres":
		if c.Source == "" {
			return errors.New("source is required for postgres storage")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for redis storage")
		}
	}
	return nil
}
