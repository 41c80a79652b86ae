package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bissquit/inspection-sync/internal/config"
	"github.com/bissquit/inspection-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.API.URL = "http://127.0.0.1:1"
	cfg.Storage.Driver = driver
	cfg.Storage.Path = filepath.Join(t.TempDir(), "queue.db")
	cfg.Log.Level = "error"
	return &cfg
}

func newTestApp(t *testing.T, driver string) *App {
	t.Helper()
	a, err := New(testConfig(t, driver))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_SystemEndpoints(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			a := newTestApp(t, driver)

			tests := []struct {
				path string
				code int
			}{
				{"/healthz", http.StatusOK},
				{"/readyz", http.StatusOK},
				{"/version", http.StatusOK},
				{"/api/v1/queue/status", http.StatusOK},
				{"/unknown", http.StatusNotFound},
			}
			for _, tt := range tests {
				rec := httptest.NewRecorder()
				a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
				assert.Equal(t, tt.code, rec.Code, tt.path)
			}
		})
	}
}

func TestApp_Version(t *testing.T) {
	a := newTestApp(t, config.DriverMemory)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "version")
	assert.Contains(t, body, "commit")
	assert.Contains(t, body, "build_date")
}

func TestApp_SQLiteQueueSurvivesReopen(t *testing.T) {
	cfg := testConfig(t, config.DriverSQLite)
	ctx := context.Background()

	a, err := New(cfg)
	require.NoError(t, err)
	_, err = a.Engine().Enqueue(ctx, &domain.Inspection{Name: "Ana", Fleet: "F-12"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	reopened, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	items, err := reopened.Engine().PendingItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ana", items[0].Name)
}

func TestApp_UnknownDriver(t *testing.T) {
	_, err := New(testConfig(t, "mongo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}
