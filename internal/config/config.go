package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/nekomatic-tf/nekopricer/internal/storage"

	"gopkg.in/yaml.v3"
)

// Config holds all process-level settings. Secrets can be supplied through
// environment variables, which override the config file.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	BackpackTF struct {
		AccessToken  string `yaml:"access_token"`
		WebsocketURL string `yaml:"ws_url"`
		SnapshotURL  string `yaml:"snapshot_url"`
	} `yaml:"backpacktf"`

	PricesTF struct {
		APIURL string `yaml:"api_url"`
	} `yaml:"pricestf"`

	Autobot struct {
		URL       string `yaml:"url"`
		SchemaURL string `yaml:"schema_url"`
	} `yaml:"autobot"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Minio storage.MinioConfig `yaml:"minio"`
}

// LoadConfig reads and parses the config file, applies environment variable
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "nekopricer"
	cfg.Logging.Level = "info"
	cfg.BackpackTF.WebsocketURL = "wss://ws.backpack.tf/events"
	cfg.BackpackTF.SnapshotURL = "https://backpack.tf/api/classifieds/listings/snapshot"
	cfg.PricesTF.APIURL = "https://api2.prices.tf"
	cfg.Autobot.URL = "https://autobot.tf"
	cfg.Autobot.SchemaURL = "https://schema.autobot.tf"
	cfg.Database.Path = "listings.db"
	cfg.Minio.Bucket = "nekopricer"
	return cfg
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BackpackTF.WebsocketURL, "ws://") && !strings.HasPrefix(c.BackpackTF.WebsocketURL, "wss://") {
		return fmt.Errorf("invalid websocket URL: %s", c.BackpackTF.WebsocketURL)
	}
	if c.BackpackTF.AccessToken == "" {
		return fmt.Errorf("backpack.tf access token is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Minio.Endpoint == "" {
		return fmt.Errorf("minio endpoint is required")
	}
	if c.Minio.Bucket == "" {
		return fmt.Errorf("minio bucket is required")
	}
	return nil
}

// overrideWithEnv applies environment variables over the config file.
// Secrets belong in the environment, not the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("BACKPACK_TF_ACCESS_TOKEN"); v != "" {
		cfg.BackpackTF.AccessToken = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Minio.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Minio.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET_NAME"); v != "" {
		cfg.Minio.Bucket = v
	}
	if v := os.Getenv("LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
