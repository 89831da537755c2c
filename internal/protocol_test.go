package internal_test

import (
	"encoding/json"
	"testing"

	"github.com/koopa0/system-design/14-versus-arena/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeCommand 測試入站訊息解析
func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    internal.Command
		wantErr error
	}{
		{
			name: "find match with name",
			raw:  `{"event":"find_match","data":{"name":"Al"}}`,
			want: internal.FindMatch{Name: "Al"},
		},
		{
			name: "find match without data",
			raw:  `{"event":"find_match"}`,
			want: internal.FindMatch{Name: internal.DefaultPlayerName},
		},
		{
			name: "find match with null data",
			raw:  `{"event":"find_match","data":null}`,
			want: internal.FindMatch{Name: internal.DefaultPlayerName},
		},
		{
			name: "cancel match",
			raw:  `{"event":"cancel_match"}`,
			want: internal.CancelMatch{},
		},
		{
			name: "game over",
			raw:  `{"event":"game_over","data":{"room_id":"room_1","score":500,"name":"Al"}}`,
			want: internal.GameOver{RoomID: "room_1", Score: 500, Name: "Al"},
		},
		{
			name: "game over defaults",
			raw:  `{"event":"game_over","data":{"room_id":"room_1"}}`,
			want: internal.GameOver{RoomID: "room_1", Score: 0, Name: internal.DefaultPlayerName},
		},
		{
			name: "get rankings",
			raw:  `{"event":"get_rankings"}`,
			want: internal.GetRankings{},
		},
		{
			name: "ping",
			raw:  `{"event":"ping","data":{}}`,
			want: internal.Ping{},
		},
		{
			name:    "invalid json",
			raw:     `not json`,
			wantErr: internal.ErrMalformedPayload,
		},
		{
			name:    "missing event",
			raw:     `{"data":{"name":"Al"}}`,
			wantErr: internal.ErrMalformedPayload,
		},
		{
			name:    "unknown event",
			raw:     `{"event":"join_room"}`,
			wantErr: internal.ErrUnknownEvent,
		},
		{
			name:    "wrong field type",
			raw:     `{"event":"game_over","data":{"room_id":"room_1","score":"high"}}`,
			wantErr: internal.ErrMalformedPayload,
		},
		{
			name:    "game update without room",
			raw:     `{"event":"game_update","data":{"score":10}}`,
			wantErr: internal.ErrMalformedPayload,
		},
		{
			name:    "data is not an object",
			raw:     `{"event":"find_match","data":"Al"}`,
			wantErr: internal.ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := internal.DecodeCommand([]byte(tt.raw))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, cmd)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

// TestDecodeCommand_GameUpdate 測試狀態內容原樣保留
func TestDecodeCommand_GameUpdate(t *testing.T) {
	raw := `{"event":"game_update","data":{"room_id":"room_1","board":[[0,1],[1,0]],"score":120,"lines":3,"level":{"speed":2}}}`

	cmd, err := internal.DecodeCommand([]byte(raw))
	require.NoError(t, err)

	update, ok := cmd.(internal.GameUpdate)
	require.True(t, ok)
	assert.Equal(t, internal.EventGameUpdate, update.EventName())
	assert.Equal(t, "room_1", update.RoomID)
	assert.Equal(t, `[[0,1],[1,0]]`, string(update.State.Board))
	assert.Equal(t, `120`, string(update.State.Score))
	assert.Equal(t, `3`, string(update.State.Lines))
	assert.JSONEq(t, `{"speed":2}`, string(update.State.Level))
}

// TestMessage_Encoding 測試出站訊息格式
func TestMessage_Encoding(t *testing.T) {
	tests := []struct {
		name string
		msg  internal.Message
		want string
	}{
		{
			name: "event without data",
			msg:  internal.Message{Event: internal.EventWaitingForOpponent},
			want: `{"event":"waiting_for_opponent"}`,
		},
		{
			name: "connected",
			msg:  internal.Message{Event: internal.EventConnected, Data: internal.ConnectedData{SID: "abc"}},
			want: `{"event":"connected","data":{"sid":"abc"}}`,
		},
		{
			name: "match found",
			msg: internal.Message{Event: internal.EventMatchFound, Data: internal.MatchFoundData{
				RoomID:       "room_1",
				Opponent:     "Bo",
				PlayerNumber: 1,
			}},
			want: `{"event":"match_found","data":{"room_id":"room_1","opponent":"Bo","player_number":1}}`,
		},
		{
			name: "opponent game over",
			msg:  internal.Message{Event: internal.EventOpponentGameOver, Data: internal.GameOverData{Winner: true}},
			want: `{"event":"opponent_game_over","data":{"winner":true}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
