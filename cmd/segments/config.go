package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/segments/internal/paths"
	"github.com/mesh-intelligence/segments/pkg/cache"
	"github.com/mesh-intelligence/segments/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend         = "backend"
	cfgKeyDataDir         = "data_dir"
	cfgKeyDSN             = "dsn"
	cfgKeySyncStrategy    = "sync_strategy"
	cfgKeyUniqueRelations = "unique_relations"
	cfgKeyCacheTTL        = "cache_ttl"
	cfgKeyOwner           = "owner"

	envOwner       = "SEGMENTS_OWNER"
	defaultBackend = types.BackendSQLite
)

// fileConfig is the shape of config.yaml.
type fileConfig struct {
	Backend         string `yaml:"backend"`
	DataDir         string `yaml:"data_dir,omitempty"`
	DSN             string `yaml:"dsn,omitempty"`
	SyncStrategy    string `yaml:"sync_strategy"`
	UniqueRelations bool   `yaml:"unique_relations"`
	CacheTTL        string `yaml:"cache_ttl"`
	Owner           string `yaml:"owner,omitempty"`
}

const configHeader = `# segments CLI configuration
# backend: sqlite | postgres | memory
# data_dir and owner may also be given with --data-dir and --owner.
`

func defaultConfigYAML() ([]byte, error) {
	body, err := yaml.Marshal(fileConfig{
		Backend:      defaultBackend,
		SyncStrategy: types.SyncImmediate,
		CacheTTL:     cache.DefaultTTL.String(),
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(configHeader), body...), nil
}

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first use.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetDefault(cfgKeySyncStrategy, types.SyncImmediate)
	v.SetDefault(cfgKeyCacheTTL, cache.DefaultTTL)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func ensureDefaultConfigFile(configDir string) error {
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), data, 0o644)
}
