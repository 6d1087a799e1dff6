// Package config loads the YAML configuration file, expanding ${ENV}
// references before parsing so secrets stay out of the file itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/wpbridge/internal/crypto"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		PublicOrigin   string   `yaml:"public_origin"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Database struct {
		// PostgresDSN enables the managed (Postgres) store mode. Empty runs
		// standalone with in-memory stores.
		PostgresDSN string `yaml:"postgres_dsn"`
		Redis       struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"database"`

	Security struct {
		// EncryptionSecret keys the credential vault. Required, min 16 chars.
		EncryptionSecret string `yaml:"encryption_secret"`
	} `yaml:"security"`

	Pairing struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"pairing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads and parses the configuration file. Environment variables in the
// file body are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when a field is absent from the
// file. The encryption secret has no default on purpose.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Database.Redis.Addr = ""
	cfg.Pairing.TTLSeconds = 600
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	// The env var is the common deployment path; the YAML field overrides it.
	cfg.Security.EncryptionSecret = os.Getenv("WPBRIDGE_ENCRYPTION_SECRET")
	return cfg
}

// Validate rejects configurations that would fail later in a less obvious
// place.
func (c *Config) Validate() error {
	if len(c.Security.EncryptionSecret) < crypto.MinSecretLength {
		return fmt.Errorf("config: %w", crypto.ErrWeakSecret)
	}
	return nil
}

// StoreConfig projects the config into the store layer's settings.
func (c *Config) StoreConfig() store.StoreConfig {
	return store.StoreConfig{
		PostgresDSN:      c.Database.PostgresDSN,
		RedisAddr:        c.Database.Redis.Addr,
		RedisPassword:    c.Database.Redis.Password,
		RedisDB:          c.Database.Redis.DB,
		EncryptionSecret: c.Security.EncryptionSecret,
	}
}
