package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/yoda/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, domain.ConflictPolicyDrop, cfg.Store.ConflictPolicy)
	assert.Equal(t, 100, cfg.Search.DefaultLimit)
	assert.Equal(t, 1000, cfg.Search.MaxLimit)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := writeConfig(t, `
database:
  host: db.internal
  dbname: entities
store:
  driver: memory
  conflict_policy: reject
search:
  default_limit: 20
  max_limit: 200
registry:
  path: /etc/yoda/entities.yaml
`)
	t.Setenv("YODA_DATABASE_PORT", "6543")
	t.Setenv("YODA_SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "entities", cfg.Database.DBName)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, domain.ConflictPolicyReject, cfg.Store.ConflictPolicy)
	assert.Equal(t, SearchConfig{DefaultLimit: 20, MaxLimit: 200}, cfg.Search)
	assert.Equal(t, "/etc/yoda/entities.yaml", cfg.RegistryPath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"driver":  "store:\n  driver: sqlite\n",
		"policy":  "store:\n  conflict_policy: merge\n",
		"limits":  "search:\n  default_limit: 50\n  max_limit: 10\n",
		"default": "search:\n  default_limit: 0\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
