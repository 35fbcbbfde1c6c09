// Package config provides configuration loading for the pagevec server and
// merge job.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Dimension int             `yaml:"dimension"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Lease     LeaseConfig     `yaml:"lease"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Answer    AnswerConfig    `yaml:"answer"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig selects and configures the object store backend.
type StoreConfig struct {
	// Backend is one of "memory", "s3" or "minio".
	Backend string `yaml:"backend"`

	// Bucket holds the index blobs and sidecars.
	Bucket string `yaml:"bucket"`

	// ImageBucket holds the source page images. Defaults to Bucket.
	ImageBucket string `yaml:"image_bucket"`

	// Prefix is the key prefix of all index blobs.
	Prefix string `yaml:"prefix"`

	// Endpoint overrides the backend endpoint (MinIO, S3-compatible).
	Endpoint string `yaml:"endpoint"`

	// Region is the AWS region for the s3 backend.
	Region string `yaml:"region"`

	// AccessKey and SecretKey authenticate the minio backend.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// Compression is one of "none", "gzip" or "lz4".
	Compression string `yaml:"compression"`
}

// LeaseConfig configures the merge lease backend.
type LeaseConfig struct {
	// Backend is "memory" or "dynamodb".
	Backend string `yaml:"backend"`

	// Table is the DynamoDB lease table name.
	Table string `yaml:"table"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// AnswerConfig holds answer service settings.
type AnswerConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Load reads and parses the config file at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1024
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.Prefix == "" {
		cfg.Store.Prefix = "vectors"
	}
	if cfg.Store.ImageBucket == "" {
		cfg.Store.ImageBucket = cfg.Store.Bucket
	}
	if cfg.Store.Compression == "" {
		cfg.Store.Compression = "none"
	}
	if cfg.Lease.Backend == "" {
		cfg.Lease.Backend = "memory"
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "s3", "minio":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for backend %q", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Lease.Backend {
	case "memory":
	case "dynamodb":
		if c.Lease.Table == "" {
			return fmt.Errorf("lease.table is required for backend %q", c.Lease.Backend)
		}
	default:
		return fmt.Errorf("unknown lease backend %q", c.Lease.Backend)
	}

	switch c.Store.Compression {
	case "none", "gzip", "lz4":
	default:
		return fmt.Errorf("unknown compression %q", c.Store.Compression)
	}

	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}
	return nil
}
