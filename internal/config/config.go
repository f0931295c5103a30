// Package config loads CLI and server settings from cascade.yaml, .env files and the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "cascade.yaml"

// Environment overrides.
const (
	EnvAPIKey   = "CASCADE_API_KEY"
	EnvBaseURL  = "CASCADE_BASE_URL"
	EnvModel    = "CASCADE_MODEL"
	EnvRedisURL = "CASCADE_REDIS_URL"
	EnvMaxDepth = "CASCADE_MAX_DEPTH"
	EnvLogLevel = "CASCADE_LOG_LEVEL"
	EnvEncKey   = "CASCADE_ENCRYPTION_KEY"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreLoam   = "loam"
	StoreRedis  = "redis"
)

type Provider struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type Store struct {
	Kind     string        `yaml:"kind"`
	Dir      string        `yaml:"dir"`
	RedisURL string        `yaml:"redis_url"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`

	// EncryptionKey is a base64 AES-256 key protecting stored responses.
	EncryptionKey string `yaml:"encryption_key"`
	// RedactKeys are patterns of variable names masked before storage.
	RedactKeys []string `yaml:"redact_keys"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

// Config is the merged view of file, dotenv and environment settings.
type Config struct {
	Provider Provider `yaml:"provider"`
	Store    Store    `yaml:"store"`
	Log      Log      `yaml:"log"`
	Server   Server   `yaml:"server"`
	MaxDepth int      `yaml:"max_depth"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Provider: Provider{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", Timeout: 2 * time.Minute},
		Store:    Store{Kind: StoreMemory, Prefix: "cascade"},
		Log:      Log{Level: "info", Format: "text"},
		Server:   Server{Addr: ":8080"},
		MaxDepth: domain.DefaultMaxDepth,
	}
}

// Load reads path (DefaultFile when empty), then .env, then the environment.
// A missing file is not an error unless the path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvAPIKey, &c.Provider.APIKey)
	set(EnvBaseURL, &c.Provider.BaseURL)
	set(EnvModel, &c.Provider.Model)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvEncKey, &c.Store.EncryptionKey)

	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Store.RedisURL = v
		if c.Store.Kind == "" || c.Store.Kind == StoreMemory {
			c.Store.Kind = StoreRedis
		}
	}
	if v, ok := lookup(EnvMaxDepth); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxDepth, v, err)
		}
		c.MaxDepth = n
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory:
	case StoreLoam:
		if c.Store.Dir == "" {
			return errors.New("store.dir is required for the loam store")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("store.redis_url is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.Store.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Store.EncryptionKey)
		if err != nil || len(key) != 32 {
			return errors.New("store.encryption_key must be 32 bytes, base64 encoded")
		}
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	return nil
}
