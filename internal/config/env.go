package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SEMINDEX_SERVER_PORT.
const EnvPrefix = "SEMINDEX"

// legacyEnv maps config keys to environment variables kept from earlier deployments.
var legacyEnv = map[string]string{
	"storage.snapshot_path": "FAISS_DATA_PATH",
	"registry.cluster":      "SPRING_PROFILES_ACTIVE",
}

// ApplyEnv overlays environment variables on cfg. Prefixed variables win over legacy ones.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, f := range envFields(cfg) {
		names := []string{f.key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.key, ".", "_"))}
		if legacy, ok := legacyEnv[f.key]; ok {
			names = append(names, legacy)
		}
		_ = v.BindEnv(names...)
		if !v.IsSet(f.key) {
			continue
		}
		switch p := f.ptr.(type) {
		case *string:
			*p = v.GetString(f.key)
		case *int:
			*p = v.GetInt(f.key)
		case *int64:
			*p = v.GetInt64(f.key)
		case *float64:
			*p = v.GetFloat64(f.key)
		case *bool:
			*p = v.GetBool(f.key)
		case *time.Duration:
			*p = v.GetDuration(f.key)
		}
	}
}

type envField struct {
	key string
	ptr any
}

func envFields(cfg *Config) []envField {
	return []envField{
		{"debug", &cfg.Debug},
		{"server.host", &cfg.Server.Host},
		{"server.port", &cfg.Server.Port},
		{"server.max_import_bytes", &cfg.Server.MaxImportBytes},
		{"server.request_timeout", &cfg.Server.RequestTimeout},
		{"storage.backend", &cfg.Storage.Backend},
		{"storage.snapshot_path", &cfg.Storage.SnapshotPath},
		{"storage.database_path", &cfg.Storage.DatabasePath},
		{"storage.history", &cfg.Storage.History},
		{"embedding.provider", &cfg.Embedding.Provider},
		{"embedding.model_path", &cfg.Embedding.ModelPath},
		{"embedding.library_path", &cfg.Embedding.LibraryPath},
		{"embedding.output_name", &cfg.Embedding.OutputName},
		{"embedding.url", &cfg.Embedding.URL},
		{"embedding.model", &cfg.Embedding.Model},
		{"embedding.dimensions", &cfg.Embedding.Dimensions},
		{"embedding.max_tokens", &cfg.Embedding.MaxTokens},
		{"embedding.cache_size", &cfg.Embedding.CacheSize},
		{"embedding.query_instruction", &cfg.Embedding.QueryInstruction},
		{"embedding.timeout", &cfg.Embedding.Timeout},
		{"embedding.max_retries", &cfg.Embedding.MaxRetries},
		{"index.variant", &cfg.Index.Variant},
		{"index.m", &cfg.Index.M},
		{"index.ml", &cfg.Index.Ml},
		{"index.ef_search", &cfg.Index.EfSearch},
		{"checkpoint.policy", &cfg.Checkpoint.Policy},
		{"checkpoint.schedule", &cfg.Checkpoint.Schedule},
		{"registry.enabled", &cfg.Registry.Enabled},
		{"registry.url", &cfg.Registry.URL},
		{"registry.cluster", &cfg.Registry.Cluster},
		{"registry.app_name", &cfg.Registry.AppName},
		{"registry.subnet", &cfg.Registry.Subnet},
		{"registry.heartbeat", &cfg.Registry.Heartbeat},
	}
}
