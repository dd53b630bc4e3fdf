package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sciencemap.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr = ":9090"

[db]
driver = "postgres"
dsn = "postgres://db/sciencemap"

[auth]
token_ttl = "30m"
secret = "from-file"

[export]
s3_bucket = "catalog-dumps"
s3_path_style = true
`), 0o600))

	t.Setenv("SCIENCEMAP_AUTH_SECRET", "from-env")
	t.Setenv("SCIENCEMAP_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "catalog-dumps", cfg.Export.S3Bucket)
	assert.True(t, cfg.Export.S3PathStyle)
	// Untouched keys keep their defaults.
	assert.Equal(t, "sciencemap", cfg.Auth.Issuer)
	assert.Equal(t, "/tmp/sciencemap.sock", cfg.RPCSocket)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("SCIENCEMAP_DB_DRIVER", "mysql")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.driver")
}

func TestLoadReportsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
