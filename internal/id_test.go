package internal_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/koopa0/system-design/14-versus-arena/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIDGenerator_Uniqueness 測試 ID 唯一性
func TestIDGenerator_Uniqueness(t *testing.T) {
	ids := internal.NewIDGenerator()
	roomPattern := regexp.MustCompile(`^room_[0-9a-f]{32}$`)

	const n = 1000
	rooms := make(map[string]bool, n)
	conns := make(map[string]bool, n)

	for i := 0; i < n; i++ {
		roomID := ids.NewRoomID()
		require.Regexp(t, roomPattern, roomID)
		assert.False(t, rooms[roomID], "重複的房間 ID: %s", roomID)
		rooms[roomID] = true

		connID := ids.NewConnectionID()
		_, err := uuid.Parse(connID)
		require.NoError(t, err)
		assert.False(t, conns[connID], "重複的連接 ID: %s", connID)
		conns[connID] = true
	}
}

// TestIsStaleReference 測試錯誤分類
func TestIsStaleReference(t *testing.T) {
	tests := []struct {
		err   error
		stale bool
	}{
		{err: internal.ErrRoomNotFound, stale: true},
		{err: internal.ErrNotInRoom, stale: true},
		{err: fmt.Errorf("%w: room_1", internal.ErrRoomNotFound), stale: true},
		{err: internal.ErrAlreadyInRoom, stale: false},
		{err: internal.ErrMalformedPayload, stale: false},
		{err: nil, stale: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.stale, internal.IsStaleReference(tt.err))
		})
	}
}
