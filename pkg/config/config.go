// Package config defines the table engine's configuration: pagination
// defaults, server-side retention policy, and logging settings, with
// validation and a file loader.
//
// Configuration errors are fatal at setup time; a table never starts with a
// policy it cannot honor.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridkit/gridkit/pkg/errors"
	"github.com/gridkit/gridkit/pkg/logger"
)

// Config is the root engine configuration.
type Config struct {
	// Pagination sets the initial page window.
	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`

	// ServerSide sets the block cache and retention policy for the
	// server-side row model.
	ServerSide ServerSideConfig `yaml:"server_side" json:"server_side"`

	// Logging configures the global structured logger.
	Logging logger.Config `yaml:"logging" json:"logging"`
}

// PaginationConfig is the initial page window. A PageSize of zero disables
// pagination.
type PaginationConfig struct {
	PageSize int `yaml:"page_size" json:"page_size"`
}

// ServerSideConfig is the block cache geometry and retention policy.
type ServerSideConfig struct {
	// BlockSize is the row count of one fetched block.
	BlockSize int `yaml:"block_size" json:"block_size"`

	// MarginBlocks is how many blocks beyond the viewport stay protected
	// from eviction on each side.
	MarginBlocks int `yaml:"margin_blocks" json:"margin_blocks"`

	// MaxResidentBlocks caps the resident block count; zero means
	// unbounded. Overflow evicts blocks farthest from the viewport.
	MaxResidentBlocks int `yaml:"max_resident_blocks" json:"max_resident_blocks"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Pagination: PaginationConfig{PageSize: 0},
		ServerSide: ServerSideConfig{
			BlockSize:         100,
			MarginBlocks:      1,
			MaxResidentBlocks: 16,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration, returning a fatal configuration error
// on the first violation.
func (c *Config) Validate() error {
	if c.Pagination.PageSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "pagination page size cannot be negative").
			WithDetail("page_size", c.Pagination.PageSize)
	}
	if c.ServerSide.BlockSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "server-side block size must be positive").
			WithDetail("block_size", c.ServerSide.BlockSize)
	}
	if c.ServerSide.MarginBlocks < 0 {
		return errors.New(errors.ErrorTypeConfig, "server-side margin cannot be negative").
			WithDetail("margin_blocks", c.ServerSide.MarginBlocks)
	}
	if c.ServerSide.MaxResidentBlocks < 0 {
		return errors.New(errors.ErrorTypeConfig, "server-side max resident blocks cannot be negative").
			WithDetail("max_resident_blocks", c.ServerSide.MaxResidentBlocks)
	}
	return nil
}

// LoadFromFile reads a YAML configuration file over the defaults.
// Environment variable references in the file are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file").
			WithDetail("path", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file").
			WithDetail("path", path)
	}
	return nil
}
