package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// 協議設計
//
// 所有訊息都是 JSON 文字幀，外層固定為：
//
//	{"event": "<名稱>", "data": {...}}
//
// 入站事件解析成固定欄位的命令型別（Command），未知事件或欄位型別錯誤
// 在邊界就被拒絕，不會以 map 形式傳進房間管理器。

// 入站事件名稱
const (
	EventFindMatch   = "find_match"
	EventCancelMatch = "cancel_match"
	EventGameUpdate  = "game_update"
	EventGameOver    = "game_over"
	EventGetRankings = "get_rankings"
	EventPing        = "ping"
)

// 出站事件名稱
const (
	EventConnected            = "connected"
	EventWaitingForOpponent   = "waiting_for_opponent"
	EventMatchFound           = "match_found"
	EventMatchCancelled       = "match_cancelled"
	EventOpponentDisconnected = "opponent_disconnected"
	EventOpponentUpdate       = "opponent_update"
	EventOpponentGameOver     = "opponent_game_over"
	EventRankingsUpdate       = "rankings_update"
	EventPong                 = "pong"
)

// DefaultPlayerName 未提供名稱時使用
const DefaultPlayerName = "Anonymous"

// Message 出站訊息
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ConnectedData connected 事件內容
type ConnectedData struct {
	SID string `json:"sid"`
}

// MatchFoundData match_found 事件內容
type MatchFoundData struct {
	RoomID       string `json:"room_id"`
	Opponent     string `json:"opponent"`
	PlayerNumber int    `json:"player_number"`
}

// GameOverData opponent_game_over 事件內容
type GameOverData struct {
	Winner bool `json:"winner"`
}

// PlayerState 每個 tick 的遊戲狀態
//
// 內容對伺服器而言是不透明的，原樣轉發給對手，不做任何驗證。
type PlayerState struct {
	Board json.RawMessage `json:"board"`
	Score json.RawMessage `json:"score"`
	Lines json.RawMessage `json:"lines"`
	Level json.RawMessage `json:"level"`
}

// Command 入站命令（tagged variant）
type Command interface {
	EventName() string
}

// FindMatch 請求配對
type FindMatch struct {
	Name string
}

// CancelMatch 取消配對
type CancelMatch struct{}

// GameUpdate 轉發遊戲狀態
type GameUpdate struct {
	RoomID string
	State  PlayerState
}

// GameOver 回報遊戲結束
type GameOver struct {
	RoomID string
	Score  int
	Name   string
}

// GetRankings 查詢排行榜
type GetRankings struct{}

// Ping 應用層心跳
type Ping struct{}

func (FindMatch) EventName() string   { return EventFindMatch }
func (CancelMatch) EventName() string { return EventCancelMatch }
func (GameUpdate) EventName() string  { return EventGameUpdate }
func (GameOver) EventName() string    { return EventGameOver }
func (GetRankings) EventName() string { return EventGetRankings }
func (Ping) EventName() string        { return EventPing }

// envelope 入站訊息外層
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeCommand 解析入站訊息
//
// 錯誤一律包裝 ErrMalformedPayload 或 ErrUnknownEvent，呼叫端用 errors.Is 判斷。
func DecodeCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: 缺少 event 欄位", ErrMalformedPayload)
	}

	switch env.Event {
	case EventFindMatch:
		var data struct {
			Name string `json:"name"`
		}
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		return FindMatch{Name: playerNameOrDefault(data.Name)}, nil

	case EventCancelMatch:
		return CancelMatch{}, nil

	case EventGameUpdate:
		var data struct {
			RoomID string `json:"room_id"`
			PlayerState
		}
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if data.RoomID == "" {
			return nil, fmt.Errorf("%w: game_update 缺少 room_id", ErrMalformedPayload)
		}
		return GameUpdate{RoomID: data.RoomID, State: data.PlayerState}, nil

	case EventGameOver:
		var data struct {
			RoomID string `json:"room_id"`
			Score  *int   `json:"score"`
			Name   string `json:"name"`
		}
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		cmd := GameOver{RoomID: data.RoomID, Name: playerNameOrDefault(data.Name)}
		if data.Score != nil {
			cmd.Score = *data.Score
		}
		return cmd, nil

	case EventGetRankings:
		return GetRankings{}, nil

	case EventPing:
		return Ping{}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}
}

// decodeData 解析 data 欄位，缺少 data 視為空物件
func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func playerNameOrDefault(name string) string {
	if name == "" {
		return DefaultPlayerName
	}
	return name
}

// 出站訊息建構函數

func connectedMessage(connID string) Message {
	return Message{Event: EventConnected, Data: ConnectedData{SID: connID}}
}

func waitingMessage() Message {
	return Message{Event: EventWaitingForOpponent}
}

func matchFoundMessage(roomID, opponent string, playerNumber int) Message {
	return Message{Event: EventMatchFound, Data: MatchFoundData{
		RoomID:       roomID,
		Opponent:     opponent,
		PlayerNumber: playerNumber,
	}}
}

func matchCancelledMessage() Message {
	return Message{Event: EventMatchCancelled}
}

func opponentDisconnectedMessage() Message {
	return Message{Event: EventOpponentDisconnected}
}

func opponentUpdateMessage(state PlayerState) Message {
	return Message{Event: EventOpponentUpdate, Data: state}
}

func opponentGameOverMessage(winner bool) Message {
	return Message{Event: EventOpponentGameOver, Data: GameOverData{Winner: winner}}
}

func rankingsMessage(snapshot Snapshot) Message {
	return Message{Event: EventRankingsUpdate, Data: snapshot}
}

func pongMessage() Message {
	return Message{Event: EventPong}
}
