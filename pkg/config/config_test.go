package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridkit/gridkit/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative page size", func(c *Config) { c.Pagination.PageSize = -1 }},
		{"zero block size", func(c *Config) { c.ServerSide.BlockSize = 0 }},
		{"negative margin", func(c *Config) { c.ServerSide.MarginBlocks = -1 }},
		{"negative max resident", func(c *Config) { c.ServerSide.MaxResidentBlocks = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridkit.yaml")
	content := `
pagination:
  page_size: 25
server_side:
  block_size: 200
  margin_blocks: 2
  max_resident_blocks: 8
logging:
  level: debug
  encoding: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Pagination.PageSize)
	assert.Equal(t, 200, cfg.ServerSide.BlockSize)
	assert.Equal(t, 2, cfg.ServerSide.MarginBlocks)
	assert.Equal(t, 8, cfg.ServerSide.MaxResidentBlocks)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Encoding)
}

func TestLoadFromFileExpandsEnv(t *testing.T) {
	t.Setenv("GRIDKIT_TEST_PAGE_SIZE", "10")
	path := filepath.Join(t.TempDir(), "gridkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pagination:\n  page_size: ${GRIDKIT_TEST_PAGE_SIZE}\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Pagination.PageSize)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pagination: [not a map"), 0o644))
	_, err = LoadFromFile(path)
	require.Error(t, err)

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_side:\n  block_size: -5\n"), 0o644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Pagination.PageSize = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
