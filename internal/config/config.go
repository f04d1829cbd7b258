package config

import (
	"fmt"
	"os"
	"path/filepath"

	"storage-writer/internal/storagewriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/go-homedir"

	yaml "gopkg.in/yaml.v2"
)

type StorageWriterConfig struct {
	// Database defaults to none so storage writing is opt-in.
	Database        storagewriter.Database `yaml:"database"`
	WatchedAccounts []string               `yaml:"watched_accounts"`
	CSV             struct {
		Sync bool `yaml:"sync"`
	} `yaml:"csv"`
	Postgres storagewriter.PostgresConfig `yaml:"postgres"`
}

type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

type Config struct {
	RPCURL     string `yaml:"rpc_url"`
	StartBlock uint64 `yaml:"start_block"`
	// EndBlock is the last block processed. Zero means the chain head at
	// startup.
	EndBlock uint64 `yaml:"end_block"`
	// DataDir holds the CSV output. "~" is expanded; empty falls back to
	// DefaultDataDir.
	DataDir       string              `yaml:"data_dir"`
	StorageWriter StorageWriterConfig `yaml:"storage_writer"`
	Retry         RetryConfig         `yaml:"retry"`
}

// Load reads and unmarshals the configuration file located at the given path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse unmarshals, validates and applies defaults to a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		StorageWriter: StorageWriterConfig{Database: storagewriter.None},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Basic validation
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc_url is required")
	}
	if cfg.EndBlock != 0 && cfg.EndBlock < cfg.StartBlock {
		return nil, fmt.Errorf("end_block %d is before start_block %d", cfg.EndBlock, cfg.StartBlock)
	}

	for i, a := range cfg.StorageWriter.WatchedAccounts {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("storage_writer.watched_accounts[%d]: invalid address %q", i, a)
		}
	}

	if cfg.StorageWriter.Database == storagewriter.Postgres && cfg.StorageWriter.Postgres.DSN == "" {
		return nil, fmt.Errorf("storage_writer.postgres.dsn is required when database is postgres")
	}

	dataDir, err := ResolveDataDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir

	// Default retry values if not set
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.DelayMS == 0 {
		cfg.Retry.DelayMS = 1500
	}

	return &cfg, nil
}

// DefaultDataDir is used when data_dir is not configured.
const DefaultDataDir = "~/.ethereum"

// ResolveDataDir expands a leading "~" and falls back to DefaultDataDir when
// dir is empty.
func ResolveDataDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultDataDir
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand data_dir %q: %w", dir, err)
	}
	return filepath.Clean(expanded), nil
}

// WatchedAccounts converts the configured hex strings into addresses.
func (c *Config) WatchedAccounts() []common.Address {
	out := make([]common.Address, 0, len(c.StorageWriter.WatchedAccounts))
	for _, a := range c.StorageWriter.WatchedAccounts {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

// StorageWriterConfig builds the factory input for storagewriter.New.
func (c *Config) StorageWriterConfig() storagewriter.Config {
	return storagewriter.Config{
		Database:        c.StorageWriter.Database,
		WatchedAccounts: c.WatchedAccounts(),
		CSVPath:         filepath.Join(c.DataDir, storagewriter.CSVFileName),
		CSVSync:         c.StorageWriter.CSV.Sync,
		Postgres:        c.StorageWriter.Postgres,
	}
}
