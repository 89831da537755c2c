package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_notifier.go github.com/koopa0/system-design/14-versus-arena/internal Notifier

// Notifier 向指定連接投遞訊息（ConnectionRegistry）
//
// 實作必須是非阻塞的：Manager 在持有鎖的情況下呼叫 Send，
// 以保證同一連接收到的訊息順序與狀態變更順序一致。
type Notifier interface {
	// Send 發送給單一連接，連接不存在時靜默丟棄
	Send(connID string, msg Message)

	// Broadcast 發送給所有已連接的客戶端
	Broadcast(msg Message)
}

// Manager 配對與房間管理器
//
// 系統設計考量：
//
//  1. 單一一致性邊界（sync.Mutex）：
//     問題：配對的「取出佇列頭 → 建立房間」與斷線的「掃描房間 → 刪除」必須原子化
//     方案：等待佇列、房間表、玩家索引都由同一把鎖保護，不對外暴露原始集合
//     效果：斷線與配對的競態只會有兩種結果
//     - 配對還沒發生：斷線把客戶端移出佇列，之後不會被配對
//     - 配對已經發生：斷線拆掉剛建立的房間，並通知對手
//
//  2. 為什麼用 Mutex 而非 RWMutex？
//     - 幾乎每個操作都會寫入（配對、取消、斷線、狀態標記）
//     - 轉發只讀，但臨界區極短（查表 + 非阻塞投遞）
//
//  3. 排行榜使用自己的鎖：
//     - 記錄成績與持久化不在配對鎖內進行
//     - 慢速的儲存後端不會拖慢配對
type Manager struct {
	queue      *WaitingQueue
	rooms      map[string]*Room  // roomID -> Room
	playerRoom map[string]string // connID -> roomID
	mu         sync.Mutex

	notifier    Notifier
	leaderboard *Leaderboard
	ids         IDGenerator
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// ManagerOption 管理器選項
type ManagerOption func(*Manager)

// WithIDGenerator 替換 ID 產生器
func WithIDGenerator(ids IDGenerator) ManagerOption {
	return func(m *Manager) {
		m.ids = ids
	}
}

// WithClock 替換時鐘（測試用）
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMetrics 設定指標
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager 創建配對管理器
func NewManager(notifier Notifier, leaderboard *Leaderboard, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		queue:       NewWaitingQueue(),
		rooms:       make(map[string]*Room),
		playerRoom:  make(map[string]string),
		notifier:    notifier,
		leaderboard: leaderboard,
		ids:         NewIDGenerator(),
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestMatch 請求配對
//
// 系統設計重點：
//
// 1. 嚴格 FIFO：
//   - 佇列非空時取出等待最久的客戶端作為對手
//   - 不考慮技術水平或偏好
//
// 2. 座位號不對稱：
//   - 先排隊的一方是 1 號，請求者是 2 號
//   - 雙方各自收到自己的 match_found（含對手名稱）
//
// 3. 重複請求：
//   - 已在佇列中：不重複加入，更新名稱並再次回覆 waiting_for_opponent
//   - 已在房間中：拒絕（ErrAlreadyInRoom），不發送任何訊息
func (m *Manager) RequestMatch(client ClientRef) error {
	if client.Name == "" {
		client.Name = DefaultPlayerName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if roomID, exists := m.playerRoom[client.ConnID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyInRoom, roomID)
	}

	if m.queue.Contains(client.ConnID) {
		m.queue.Push(client)
		m.notifier.Send(client.ConnID, waitingMessage())
		m.logger.Debug("重複的配對請求", "conn_id", client.ConnID)
		return nil
	}

	opponent, ok := m.queue.Pop()
	if !ok {
		m.queue.Push(client)
		m.notifier.Send(client.ConnID, waitingMessage())
		m.metrics.setTables(m.queue.Len(), len(m.rooms))

		m.logger.Info("玩家等待對手",
			"conn_id", client.ConnID,
			"player_name", client.Name)
		return nil
	}

	room := NewRoom(m.ids.NewRoomID(), opponent, client, m.now())
	m.rooms[room.ID] = room
	m.playerRoom[opponent.ConnID] = room.ID
	m.playerRoom[client.ConnID] = room.ID

	m.notifier.Send(opponent.ConnID, matchFoundMessage(room.ID, client.Name, 1))
	m.notifier.Send(client.ConnID, matchFoundMessage(room.ID, opponent.Name, 2))

	m.metrics.incMatches()
	m.metrics.setTables(m.queue.Len(), len(m.rooms))

	m.logger.Info("配對成功",
		"room_id", room.ID,
		"player1", opponent.Name,
		"player2", client.Name)

	return nil
}

// CancelMatch 取消配對
//
// 冪等：不在佇列中也會回覆 match_cancelled。
func (m *Manager) CancelMatch(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queue.Remove(connID) {
		m.metrics.setTables(m.queue.Len(), len(m.rooms))
		m.logger.Info("玩家取消配對", "conn_id", connID)
	}
	m.notifier.Send(connID, matchCancelledMessage())
}

// HandleDisconnect 處理斷線
//
// 佇列與房間兩項檢查都無條件執行，各自冪等。
// 房間中的另一位玩家只會收到一次 opponent_disconnected，房間隨即移除。
func (m *Manager) HandleDisconnect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queue.Remove(connID) {
		m.logger.Info("等待中的玩家斷線", "conn_id", connID)
	}

	if roomID, exists := m.playerRoom[connID]; exists {
		room := m.rooms[roomID]
		if opponent, ok := room.Opponent(connID); ok {
			m.notifier.Send(opponent.ConnID, opponentDisconnectedMessage())
		}
		room.End(m.now())
		m.removeRoomLocked(room)

		m.logger.Info("房間因玩家斷線而關閉",
			"room_id", roomID,
			"conn_id", connID)
	}

	m.metrics.setTables(m.queue.Len(), len(m.rooms))
}

// RelayUpdate 轉發遊戲狀態給對手
//
// 房間不存在是正常競態（對手剛斷線），返回 ErrRoomNotFound 由呼叫端忽略。
// 內容原樣轉發，不做驗證。
func (m *Manager) RelayUpdate(roomID, fromConnID string, state PlayerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	opponent, ok := room.Opponent(fromConnID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInRoom, roomID)
	}

	room.MarkActive(m.now())
	m.notifier.Send(opponent.ConnID, opponentUpdateMessage(state))
	m.metrics.incRelayed()

	return nil
}

// ReportGameOver 回報遊戲結束
//
// 房間處理策略：
//   - 第一個被接受的 game_over 結束並立即移除房間
//   - 對手獲勝（winner=true），回報者落敗（winner=false），沒有平手
//   - 之後另一方的 game_over 找不到房間，通知部分成為 no-op
//
// 無論房間是否存在，成績都會記錄，並向所有連接廣播最新排行榜。
// 房間不存在或回報者不在房間內時，成績記錄後返回對應錯誤。
func (m *Manager) ReportGameOver(ctx context.Context, roomID, fromConnID string, score int, playerName string) error {
	if playerName == "" {
		playerName = DefaultPlayerName
	}

	roomErr := m.endRoom(roomID, fromConnID)

	if m.leaderboard != nil {
		m.leaderboard.Record(ctx, ScoreEntry{
			Name:      playerName,
			Score:     score,
			Timestamp: m.now(),
		})
		m.notifier.Broadcast(rankingsMessage(m.leaderboard.Current()))
	}

	return roomErr
}

// endRoom 通知雙方勝負並移除房間
func (m *Manager) endRoom(roomID, fromConnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	opponent, ok := room.Opponent(fromConnID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInRoom, roomID)
	}

	m.notifier.Send(opponent.ConnID, opponentGameOverMessage(true))
	m.notifier.Send(fromConnID, opponentGameOverMessage(false))

	room.End(m.now())
	m.removeRoomLocked(room)

	m.metrics.incGamesFinished()
	m.metrics.setTables(m.queue.Len(), len(m.rooms))

	m.logger.Info("遊戲結束",
		"room_id", roomID,
		"loser", fromConnID,
		"winner", opponent.ConnID)

	return nil
}

// SendRankings 發送排行榜給單一連接
func (m *Manager) SendRankings(connID string) {
	m.notifier.Send(connID, rankingsMessage(m.Rankings()))
}

// Rankings 當前排行榜快照
func (m *Manager) Rankings() Snapshot {
	if m.leaderboard == nil {
		return Snapshot{Daily: []ScoreEntry{}, Weekly: []ScoreEntry{}}
	}
	return m.leaderboard.Current()
}

// removeRoomLocked 移除房間（需要持有鎖）
func (m *Manager) removeRoomLocked(room *Room) {
	delete(m.playerRoom, room.PlayerA.ConnID)
	delete(m.playerRoom, room.PlayerB.ConnID)
	delete(m.rooms, room.ID)
}

// GetRoom 返回房間副本
func (m *Manager) GetRoom(roomID string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return Room{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return *room, nil
}

// GetPlayerRoom 獲取玩家所在房間
func (m *Manager) GetPlayerRoom(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, exists := m.playerRoom[connID]
	return roomID, exists
}

// IsWaiting 玩家是否在等待佇列中
func (m *Manager) IsWaiting(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Contains(connID)
}

// WaitingClients 等待佇列副本（依排隊順序）
func (m *Manager) WaitingClients() []ClientRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Entries()
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	queueLen := m.queue.Len()
	roomCount := len(m.rooms)
	byStatus := make(map[RoomStatus]int)
	for _, room := range m.rooms {
		byStatus[room.Status]++
	}
	m.mu.Unlock()

	stats := map[string]any{
		"waiting_players": queueLen,
		"active_rooms":    roomCount,
		"rooms_by_status": byStatus,
	}

	if m.leaderboard != nil {
		daily, weekly := m.leaderboard.Sizes()
		stats["daily_scores"] = daily
		stats["weekly_scores"] = weekly
	}

	return stats
}
