package internal_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/14-versus-arena/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHandler 創建測試用的處理器
func setupTestHandler(t *testing.T) (http.Handler, *internal.Manager, *internal.Leaderboard) {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := internal.NewMetrics(reg)

	leaderboard := internal.NewLeaderboard(nil, internal.LeaderboardConfig{}, testLogger(),
		internal.WithLeaderboardClock(fixedClock))
	registry := internal.NewConnectionRegistry(testLogger(), metrics)
	manager := internal.NewManager(registry, leaderboard, testLogger(),
		internal.WithClock(fixedClock),
		internal.WithMetrics(metrics))
	handler := internal.NewHandler(manager, registry, internal.NewMetricsHandler(reg), testLogger())

	return handler.Routes(), manager, leaderboard
}

// TestHandler_Rankings 測試排行榜 API
func TestHandler_Rankings(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(lb *internal.Leaderboard)
		validate func(t *testing.T, resp map[string][]map[string]any)
	}{
		{
			name:  "empty rankings",
			setup: func(lb *internal.Leaderboard) {},
			validate: func(t *testing.T, resp map[string][]map[string]any) {
				assert.NotNil(t, resp["daily"])
				assert.NotNil(t, resp["weekly"])
				assert.Empty(t, resp["daily"])
				assert.Empty(t, resp["weekly"])
			},
		},
		{
			name: "rankings sorted by score",
			setup: func(lb *internal.Leaderboard) {
				lb.Record(context.Background(), internal.ScoreEntry{Name: "Al", Score: 500})
				lb.Record(context.Background(), internal.ScoreEntry{Name: "Bo", Score: 800})
			},
			validate: func(t *testing.T, resp map[string][]map[string]any) {
				require.Len(t, resp["daily"], 2)
				assert.Equal(t, "Bo", resp["daily"][0]["name"])
				assert.Equal(t, float64(800), resp["daily"][0]["score"])
				assert.Equal(t, "2025-04-19T12:00:00Z", resp["daily"][0]["timestamp"])
				assert.Equal(t, "Al", resp["weekly"][1]["name"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes, _, leaderboard := setupTestHandler(t)
			tt.setup(leaderboard)

			req := httptest.NewRequest(http.MethodGet, "/api/rankings", nil)
			w := httptest.NewRecorder()
			routes.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp map[string][]map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			tt.validate(t, resp)
		})
	}
}

// TestHandler_MethodNotAllowed 測試不支援的方法
func TestHandler_MethodNotAllowed(t *testing.T) {
	routes, _, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/rankings", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	routes, _, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.NotZero(t, resp["time"])
}

// TestHandler_Stats 測試統計 API
func TestHandler_Stats(t *testing.T) {
	routes, manager, _ := setupTestHandler(t)

	require.NoError(t, manager.RequestMatch(internal.ClientRef{ConnID: "c1", Name: "Al"}))
	require.NoError(t, manager.RequestMatch(internal.ClientRef{ConnID: "c2", Name: "Bo"}))
	require.NoError(t, manager.RequestMatch(internal.ClientRef{ConnID: "c3", Name: "Cy"}))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, float64(1), resp["waiting_players"])
	assert.Equal(t, float64(1), resp["active_rooms"])
	assert.Equal(t, float64(0), resp["connections"])
	assert.Equal(t, map[string]any{"paired": float64(1)}, resp["rooms_by_status"])
}

// TestHandler_Metrics 測試 Prometheus 指標輸出
func TestHandler_Metrics(t *testing.T) {
	routes, manager, _ := setupTestHandler(t)

	require.NoError(t, manager.RequestMatch(internal.ClientRef{ConnID: "c1", Name: "Al"}))
	require.NoError(t, manager.RequestMatch(internal.ClientRef{ConnID: "c2", Name: "Bo"}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "versus_matches_created_total 1")
	assert.Contains(t, string(body), "versus_active_rooms 1")
}

// TestHandler_WithoutMetrics 測試未設定指標時不註冊 /metrics
func TestHandler_WithoutMetrics(t *testing.T) {
	manager := internal.NewManager(&recordingNotifier{}, nil, testLogger())
	routes := internal.NewHandler(manager, nil, nil, testLogger()).Routes()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
