package internal_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-versus-arena/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFileScoreStore_AppendLoad 測試寫入與讀取
func TestFileScoreStore_AppendLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	store := internal.NewFileScoreStore(path)
	ctx := context.Background()

	entries := []internal.ScoreEntry{
		{Name: "Al", Score: 500, Timestamp: testNow.Add(-time.Hour)},
		{Name: "Bo", Score: 800, Timestamp: testNow},
	}
	for _, e := range entries {
		require.NoError(t, store.Append(ctx, e))
	}

	collections, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, collections.Daily, 2)
	require.Len(t, collections.Weekly, 2)

	for i, want := range entries {
		assert.Equal(t, want.Name, collections.Daily[i].Name)
		assert.Equal(t, want.Score, collections.Daily[i].Score)
		assert.True(t, want.Timestamp.Equal(collections.Daily[i].Timestamp))
		assert.Equal(t, want.Name, collections.Weekly[i].Name)
	}
}

// TestFileScoreStore_Format 測試檔案格式
func TestFileScoreStore_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	store := internal.NewFileScoreStore(path)

	require.NoError(t, store.Append(context.Background(), internal.ScoreEntry{Name: "Al", Score: 500, Timestamp: testNow}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Len(t, doc["daily"], 1)
	require.Len(t, doc["weekly"], 1)
	assert.Equal(t, "Al", doc["daily"][0]["name"])
	assert.Equal(t, float64(500), doc["daily"][0]["score"])
	assert.Equal(t, "2025-04-19T12:00:00Z", doc["daily"][0]["timestamp"])

	// 不留下暫存檔
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

// TestFileScoreStore_Load 測試讀取各種檔案內容
func TestFileScoreStore_Load(t *testing.T) {
	tests := []struct {
		name      string
		content   *string
		wantDaily int
		wantErr   bool
		validate  func(t *testing.T, c internal.ScoreCollections)
	}{
		{
			name:      "missing file",
			content:   nil,
			wantDaily: 0,
		},
		{
			name:      "empty file",
			content:   ptr(""),
			wantDaily: 0,
		},
		{
			name:      "timestamps without zone",
			content:   ptr(`{"daily":[{"name":"Al","score":500,"timestamp":"2024-05-01T10:00:00.123456"}],"weekly":[{"name":"Al","score":500,"timestamp":"2024-05-01T10:00:00"}]}`),
			wantDaily: 1,
			validate: func(t *testing.T, c internal.ScoreCollections) {
				want := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.Local)
				assert.True(t, want.Equal(c.Daily[0].Timestamp))
				assert.True(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local).Equal(c.Weekly[0].Timestamp))
			},
		},
		{
			name:    "corrupt file",
			content: ptr(`{"daily": [`),
			wantErr: true,
		},
		{
			name:    "invalid timestamp",
			content: ptr(`{"daily":[{"name":"Al","score":1,"timestamp":"yesterday"}],"weekly":[]}`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scores.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o600))
			}

			collections, err := internal.NewFileScoreStore(path).Load(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Len(t, collections.Daily, tt.wantDaily)
			if tt.validate != nil {
				tt.validate(t, collections)
			}
		})
	}
}

// TestFileScoreStore_Prune 測試清理
func TestFileScoreStore_Prune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	store := internal.NewFileScoreStore(path)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, internal.ScoreEntry{Name: "recent", Score: 1, Timestamp: testNow.Add(-time.Hour)}))
	require.NoError(t, store.Append(ctx, internal.ScoreEntry{Name: "yesterday", Score: 2, Timestamp: testNow.Add(-48 * time.Hour)}))
	require.NoError(t, store.Append(ctx, internal.ScoreEntry{Name: "old", Score: 3, Timestamp: testNow.Add(-10 * 24 * time.Hour)}))

	require.NoError(t, store.Prune(ctx, testNow.Add(-24*time.Hour), testNow.Add(-7*24*time.Hour)))

	collections, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, names(collections.Daily))
	assert.Equal(t, []string{"recent", "yesterday"}, names(collections.Weekly))
}

// TestFileScoreStore_CanceledContext 測試取消的 context
func TestFileScoreStore_CanceledContext(t *testing.T) {
	store := internal.NewFileScoreStore(filepath.Join(t.TempDir(), "scores.json"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Append(ctx, internal.ScoreEntry{Name: "Al"}), context.Canceled)
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func ptr[T any](v T) *T {
	return &v
}
