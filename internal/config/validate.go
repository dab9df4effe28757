package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate reports every invalid setting in cfg.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxImportBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_import_bytes must be positive"))
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.SnapshotPath == "" {
			errs = append(errs, fmt.Errorf("storage.snapshot_path is required for the file backend"))
		}
	case "sqlite":
		if c.Storage.DatabasePath == "" {
			errs = append(errs, fmt.Errorf("storage.database_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q unknown (file, sqlite)", c.Storage.Backend))
	}
	switch c.Embedding.Provider {
	case ProviderMock, ProviderONNX, ProviderHTTP:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q unknown (mock, onnx, http)", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive"))
	}
	switch c.Index.Variant {
	case "flat", "memory", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("index.variant %q unknown (flat, hnsw)", c.Index.Variant))
	}
	switch c.Checkpoint.Policy {
	case PolicyExplicit, PolicyWriteThrough, PolicyInterval:
	default:
		errs = append(errs, fmt.Errorf("checkpoint.policy %q unknown (explicit, write_through, interval)", c.Checkpoint.Policy))
	}
	if c.Registry.Enabled {
		if _, _, err := net.ParseCIDR(c.Registry.Subnet); err != nil {
			errs = append(errs, fmt.Errorf("registry.subnet: %w", err))
		}
	}
	return errors.Join(errs...)
}
