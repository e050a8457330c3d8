package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mealvault/mealvault/internal/app"
	"github.com/mealvault/mealvault/internal/backup"
	"github.com/mealvault/mealvault/internal/database/testutil"
	"github.com/mealvault/mealvault/internal/repository"
	"github.com/mealvault/mealvault/internal/retry"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := testutil.MustOpenTestStore(t)
	exec, err := retry.NewExecutor(store)
	require.NoError(t, err)

	repo, err := repository.NewMealRepository(store, exec, nil, repository.DefaultConfig())
	require.NoError(t, err)

	coord, err := backup.NewCoordinator(store, filepath.Join(t.TempDir(), "backups"))
	require.NoError(t, err)

	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)

	router, err := NewRouter(Deps{Repo: repo, Backups: coord, Config: cfg})
	require.NoError(t, err)
	return router
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "mealvault") ||
		strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestRouterMealLifecycle(t *testing.T) {
	router := newTestRouter(t)

	payload, err := json.Marshal(map[string]any{
		"name": "Spaghetti",
		"items": []map[string]any{
			{"name": "Pasta", "quantity": 120, "unit": "g"},
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/meals", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/meals/"+created.Data.ID, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterBackupRoutesRegistered(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/backups", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/backups", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterUnknownRouteIsJSON404(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")
}
