// Package config provides configuration loading and structs for the semindex server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Registry   RegistryConfig   `yaml:"registry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxImportBytes int64         `yaml:"max_import_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port for listening.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects where snapshots are persisted.
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	SnapshotPath string `yaml:"snapshot_path"`
	DatabasePath string `yaml:"database_path"`
	History      int    `yaml:"history"`
}

// EmbeddingConfig selects and configures the embedding model.
type EmbeddingConfig struct {
	Provider         string        `yaml:"provider"`
	ModelPath        string        `yaml:"model_path"`
	LibraryPath      string        `yaml:"library_path"`
	OutputName       string        `yaml:"output_name"`
	URL              string        `yaml:"url"`
	Model            string        `yaml:"model"`
	Dimensions       int           `yaml:"dimensions"`
	MaxTokens        int           `yaml:"max_tokens"`
	CacheSize        int           `yaml:"cache_size"`
	QueryInstruction string        `yaml:"query_instruction"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
}

// IndexConfig selects the index variant and tunes the graph variant.
type IndexConfig struct {
	Variant  string  `yaml:"variant"`
	M        int     `yaml:"m"`
	Ml       float64 `yaml:"ml"`
	EfSearch int     `yaml:"ef_search"`
}

// CheckpointConfig selects when the index is persisted besides explicit requests and shutdown.
type CheckpointConfig struct {
	Policy   string `yaml:"policy"`
	Schedule string `yaml:"schedule"`
}

// RegistryConfig controls self-registration with a Eureka service registry.
type RegistryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Cluster   string `yaml:"cluster"`
	AppName   string `yaml:"app_name"`
	Subnet    string `yaml:"subnet"`
	Heartbeat string `yaml:"heartbeat"`
}

// ServiceURL returns the registry base URL, deriving it from the cluster when unset.
func (r RegistryConfig) ServiceURL() string {
	if r.URL != "" {
		return r.URL
	}
	return fmt.Sprintf("http://registry.support-%s.svc.cluster.local:8761", r.Cluster)
}

// Embedding providers.
const (
	ProviderMock = "mock"
	ProviderONNX = "onnx"
	ProviderHTTP = "http"
)

// Checkpoint policies.
const (
	PolicyExplicit     = "explicit"
	PolicyWriteThrough = "write_through"
	PolicyInterval     = "interval"
)

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Embedding.LibraryPath != "" {
		cfg.Embedding.LibraryPath = expandPath(cfg.Embedding.LibraryPath, configDir)
	}

	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
// The returned bool reports whether the file was found.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	return nil, false, err
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" paths are relative to the home directory; other relative paths are left as-is.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
