package di

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/goliatone/go-unitofwork/internal/cacheinfra"
	"github.com/goliatone/go-unitofwork/pkg/storage"
	"github.com/goliatone/go-unitofwork/unitofwork"
)

// EnvPrefix prefixes every environment variable read by LoadConfig, for
// example UOW_STORAGE_DSN or UOW_UNIT_OF_WORK_VALIDATE_FIELDS.
const EnvPrefix = "UOW_"

// Config wires every component of a Container.
type Config struct {
	UnitOfWork    unitofwork.Config `toml:"unit_of_work" envPrefix:"UNIT_OF_WORK_"`
	MetadataCache cacheinfra.Config `toml:"metadata_cache" envPrefix:"METADATA_CACHE_"`
	Storage       storage.Config    `toml:"storage" envPrefix:"STORAGE_"`
	// Mappings lists YAML mapping files or directories loaded on demand.
	Mappings []string `toml:"mappings" env:"MAPPINGS" envSeparator:","`
	// Metrics registers the unit of work collectors with Prometheus.
	Metrics bool `toml:"metrics" env:"METRICS"`
}

// DefaultConfig returns a configuration backed by in-memory SQLite.
func DefaultConfig() Config {
	return Config{
		UnitOfWork:    unitofwork.DefaultConfig(),
		MetadataCache: cacheinfra.DefaultConfig(),
		Storage:       storage.DefaultConfig(),
	}
}

// LoadConfig starts from DefaultConfig, applies the TOML file at path when
// path is not empty, then applies UOW_ prefixed environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	return errors.Join(c.MetadataCache.Validate(), c.Storage.Validate())
}
