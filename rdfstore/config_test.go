package rdfstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("RDFSTORE_DSN", "postgres://localhost/rdf")

	cfg := LoadConfig()
	assert.Equal(t, "postgres://localhost/rdf", cfg.DSN)
	assert.Equal(t, "vg", cfg.GlobalPrefix)
	assert.Equal(t, "none", cfg.SignalBackend)
	assert.Equal(t, 50000, cfg.BulkChunkSize)
	assert.Equal(t, patternPageSize, cfg.CursorPageSize)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RDFSTORE_DSN", "postgres://localhost/rdf")
	t.Setenv("RDFSTORE_GLOBAL_PREFIX", "acme")
	t.Setenv("RDFSTORE_SIGNAL_BACKEND", "redis")
	t.Setenv("RDFSTORE_BULK_CHUNK_SIZE", "1000")

	cfg := LoadConfig()
	assert.Equal(t, "acme", cfg.GlobalPrefix)
	assert.Equal(t, "redis", cfg.SignalBackend)
	assert.Equal(t, 1000, cfg.BulkChunkSize)
}

func TestLoadConfig_MissingDSNPanics(t *testing.T) {
	assert.Panics(t, func() { LoadConfig() })
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{DSN: "postgres://x", GlobalPrefix: "vg", SignalBackend: "none", BulkChunkSize: 1}
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownSignalBackend(t *testing.T) {
	cfg := Config{DSN: "postgres://x", GlobalPrefix: "vg", SignalBackend: "carrier-pigeon", BulkChunkSize: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal_backend")
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")
	assert.Contains(t, err.Error(), "global_prefix")
	assert.Contains(t, err.Error(), "bulk_chunk_size")
}

func TestConfig_CursorPageSizeOrDefault(t *testing.T) {
	assert.Equal(t, patternPageSize, Config{}.cursorPageSizeOrDefault())
	assert.Equal(t, 250, Config{CursorPageSize: 250}.cursorPageSizeOrDefault())
}
