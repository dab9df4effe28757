package config

import "time"

const (
	// DefaultSnapshotPath is where the snapshot artifact lives unless configured otherwise.
	DefaultSnapshotPath = "/app/data/faiss_data.index"
	// DefaultConfigPath is the config file read when --config is not given.
	DefaultConfigPath = "/etc/semindex/config.yaml"
	// DefaultQueryInstruction is the bge retrieval instruction prepended to queries.
	DefaultQueryInstruction = "为这个句子生成表示以用于检索相关文章："
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.MaxImportBytes == 0 {
		cfg.Server.MaxImportBytes = 512 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = DefaultSnapshotPath
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/app/data/snapshots.db"
	}
	if cfg.Storage.History == 0 {
		cfg.Storage.History = 5
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/app/models/bge-base-zh-v1.5.onnx"
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "bge-base-zh-v1.5"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.QueryInstruction == "" {
		cfg.Embedding.QueryInstruction = DefaultQueryInstruction
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}

	if cfg.Index.Variant == "" {
		cfg.Index.Variant = "flat"
	}

	if cfg.Checkpoint.Policy == "" {
		cfg.Checkpoint.Policy = PolicyExplicit
	}
	if cfg.Checkpoint.Schedule == "" {
		cfg.Checkpoint.Schedule = "@every 5m"
	}

	if cfg.Registry.Cluster == "" {
		cfg.Registry.Cluster = "test"
	}
	if cfg.Registry.AppName == "" {
		cfg.Registry.AppName = "faiss-server"
	}
	if cfg.Registry.Subnet == "" {
		cfg.Registry.Subnet = "10.96.0.0/12"
	}
	if cfg.Registry.Heartbeat == "" {
		cfg.Registry.Heartbeat = "@every 30s"
	}
}
