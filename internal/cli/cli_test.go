package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/yoda/internal/config"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/middleware"
)

func memoryConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Addr: ":0", AllowedOrigins: []string{"http://localhost:3000"}},
		Store:  config.StoreConfig{Driver: config.DriverMemory, ConflictPolicy: domain.ConflictPolicyDrop},
		Search: config.SearchConfig{DefaultLimit: 10, MaxLimit: 50},
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
	assert.NotNil(t, migrate.Flags().Lookup("steps"))
}

func TestNewAppServesMemoryStore(t *testing.T) {
	app, err := NewApp(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer app.Close()

	req := httptest.NewRequest(http.MethodPost, "/entities/Account", strings.NewReader(`{"fields":{"email":"ada@example.com"}}`))
	req.Header.Set(middleware.HeaderUserID, "admin-1")
	req.Header.Set(middleware.HeaderUserRoles, "admin")
	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodOptions, "/entities/Account", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewAppLoadsRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entities:
  - name: Venue
    fields:
      - {name: title, type: string, searchable: true}
    access: {mutate: [admin], query: [user, admin]}
`), 0o600))

	cfg := memoryConfig()
	cfg.RegistryPath = path
	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	req := httptest.NewRequest(http.MethodGet, "/entities/Venue?title=x", nil)
	req.Header.Set(middleware.HeaderUserID, "u-1")
	req.Header.Set(middleware.HeaderUserRoles, "user")
	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestNewAppRejectsMissingRegistryFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.RegistryPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewApp(context.Background(), cfg)
	assert.Error(t, err)
}
