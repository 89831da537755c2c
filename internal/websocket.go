package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何在不阻塞配對邏輯的前提下，把訊息可靠地投遞給大量 WebSocket 連接？
//
// 核心挑戰：
//   1. 定址：房間管理器只知道連接 ID，不直接接觸 socket
//   2. 慢客戶端：單一連接寫入緩慢不能拖慢廣播與配對
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 斷線清理：連接關閉後必須通知房間管理器
//
// 設計方案：
//   ✅ ConnectionRegistry - 連接 ID → 連接，實作 Notifier
//   ✅ 緩衝 channel - 非阻塞投遞，緩衝區滿時丟棄訊息
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 每個連接一個讀 goroutine - 同一連接的訊息依序處理

// ConnectionRegistry 連接註冊表
//
// 鎖順序：Manager.mu → ConnectionRegistry.mu。註冊表從不在持鎖時呼叫 Manager。
type ConnectionRegistry struct {
	connections map[string]*Connection // connID -> Connection
	mu          sync.RWMutex
	metrics     *Metrics
	logger      *slog.Logger
}

// NewConnectionRegistry 創建連接註冊表
func NewConnectionRegistry(logger *slog.Logger, metrics *Metrics) *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]*Connection),
		metrics:     metrics,
		logger:      logger,
	}
}

// Connection WebSocket 連接
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// closeSend 關閉發送通道，writePump 會隨之送出 close frame 並退出
func (c *Connection) closeSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// register 註冊連接
func (r *ConnectionRegistry) register(conn *Connection) {
	r.mu.Lock()
	r.connections[conn.ID] = conn
	r.mu.Unlock()

	r.metrics.connectionOpened()
}

// unregister 取消註冊連接
func (r *ConnectionRegistry) unregister(conn *Connection) bool {
	r.mu.Lock()
	actual, exists := r.connections[conn.ID]
	if exists && actual == conn {
		delete(r.connections, conn.ID)
		conn.closeSend()
	}
	r.mu.Unlock()

	if exists && actual == conn {
		r.metrics.connectionClosed()
		return true
	}
	return false
}

// Send 發送訊息給單一連接（非阻塞）
func (r *ConnectionRegistry) Send(connID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("序列化訊息失敗", "event", msg.Event, "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connID]
	if !exists {
		r.logger.Debug("連接不存在，丟棄訊息", "conn_id", connID, "event", msg.Event)
		return
	}
	r.enqueue(conn, data, msg.Event)
}

// Broadcast 發送訊息給所有連接（非阻塞）
func (r *ConnectionRegistry) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("序列化訊息失敗", "event", msg.Event, "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.connections {
		r.enqueue(conn, data, msg.Event)
	}
}

// enqueue 放入發送緩衝（需要持有讀鎖）
//
// 緩衝區滿時丟棄訊息，避免慢客戶端拖累配對與廣播。
func (r *ConnectionRegistry) enqueue(conn *Connection, data []byte, event string) {
	select {
	case conn.Send <- data:
	default:
		r.metrics.incDropped(DropBufferFull)
		r.logger.Warn("連接緩衝區滿",
			"conn_id", conn.ID,
			"event", event)
	}
}

// Count 連接數
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll 關閉所有連接
func (r *ConnectionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, conn := range r.connections {
		// 先關閉 Send channel，再關閉連接
		conn.closeSend()
		conn.Conn.Close()
		delete(r.connections, id)
		r.metrics.connectionClosed()
	}
}

// WebSocketHub WebSocket 連接中心
//
// 負責升級連接、分配連接 ID、讀寫 goroutine，以及把入站命令分派給 Manager。
type WebSocketHub struct {
	manager  *Manager
	registry *ConnectionRegistry
	ids      IDGenerator
	cfg      WebSocketConfig
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(manager *Manager, registry *ConnectionRegistry, cfg WebSocketConfig, logger *slog.Logger) *WebSocketHub {
	defaults := DefaultConfig().WebSocket
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketHub{
		manager:  manager,
		registry: registry,
		ids:      NewIDGenerator(),
		cfg:      cfg,
		logger:   logger,
		metrics:  registry.metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 遊戲頁面可能由其他網域提供
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ServeWS 處理 WebSocket 連接
//
// 連接建立後立即分配連接 ID，並先送出 connected{sid}。
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if hub.ctx.Err() != nil {
		http.Error(w, "服務器正在關閉", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:       hub.ids.NewConnectionID(),
		Conn:     conn,
		Send:     make(chan []byte, hub.cfg.SendBuffer),
		LastPing: time.Now(),
	}

	hub.registry.register(connection)
	hub.registry.Send(connection.ID, connectedMessage(connection.ID))

	hub.wg.Add(2)
	go func() {
		defer hub.wg.Done()
		hub.writePump(connection)
	}()
	go func() {
		defer hub.wg.Done()
		hub.readPump(connection)
	}()

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", connection.ID,
		"remote_addr", r.RemoteAddr)
}

// Stop 停止 WebSocket Hub
func (hub *WebSocketHub) Stop() {
	hub.cancel()
	hub.registry.CloseAll()
	hub.wg.Wait()

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端消息
//
// 1. 超時設置：PongWait（預設 60 秒）內沒有收到任何消息（包括 Pong）就關閉連接
// 2. 同一連接的消息依序處理，保證 find_match → game_update 的順序
// 3. 連接關閉後取消註冊，再通知 Manager 處理斷線
func (hub *WebSocketHub) readPump(c *Connection) {
	defer func() {
		if hub.registry.unregister(c) {
			hub.manager.HandleDisconnect(c.ID)
		}
		c.Conn.Close()
		hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
	}()

	c.Conn.SetReadLimit(hub.cfg.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(hub.cfg.PongWait)); err != nil {
		hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	// Pong 處理器（收到 Pong 重置超時）
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(hub.cfg.PongWait)); err != nil {
			hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			return
		}

		if messageType == websocket.TextMessage {
			hub.handleMessage(c, message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 每 PingPeriod（預設 54 秒）發送 Ping，客戶端自動回覆 Pong，readPump 據此重置超時。
func (hub *WebSocketHub) writePump(c *Connection) {
	ticker := time.NewTicker(hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(hub.cfg.WriteWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// 註冊表關閉了通道，嘗試發送關閉消息，忽略錯誤（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(hub.cfg.WriteWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 解析並分派客戶端消息
//
// 任何錯誤都不回傳給客戶端；panic 在這裡恢復，避免單一連接影響共享狀態。
func (hub *WebSocketHub) handleMessage(c *Connection, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			hub.logger.Error("處理消息時發生 panic",
				"error", r,
				"conn_id", c.ID)
		}
	}()

	cmd, err := DecodeCommand(message)
	if err != nil {
		hub.metrics.incDropped(DropMalformed)
		hub.logger.Warn("丟棄無效消息",
			"error", err,
			"conn_id", c.ID)
		return
	}

	switch cmd := cmd.(type) {
	case FindMatch:
		err = hub.manager.RequestMatch(ClientRef{ConnID: c.ID, Name: cmd.Name})
	case CancelMatch:
		hub.manager.CancelMatch(c.ID)
	case GameUpdate:
		err = hub.manager.RelayUpdate(cmd.RoomID, c.ID, cmd.State)
	case GameOver:
		err = hub.manager.ReportGameOver(hub.ctx, cmd.RoomID, c.ID, cmd.Score, cmd.Name)
	case GetRankings:
		hub.manager.SendRankings(c.ID)
	case Ping:
		hub.registry.Send(c.ID, pongMessage())
	}

	switch {
	case err == nil:
	case IsStaleReference(err):
		hub.metrics.incDropped(DropStale)
		hub.logger.Debug("忽略過期引用",
			"event", cmd.EventName(),
			"error", err,
			"conn_id", c.ID)
	case errors.Is(err, ErrAlreadyInRoom):
		hub.metrics.incDropped(DropDuplicate)
		hub.logger.Warn("拒絕重複配對",
			"error", err,
			"conn_id", c.ID)
	default:
		hub.logger.Error("處理消息失敗",
			"event", cmd.EventName(),
			"error", err,
			"conn_id", c.ID)
	}
}

// ConnectionCount 獲取連接數
func (hub *WebSocketHub) ConnectionCount() int {
	return hub.registry.Count()
}
