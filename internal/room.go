package internal

import (
	"time"
)

// 系統設計問題：
//   如何管理兩人對戰房間的生命週期，並保證同一連接不會同時出現在兩個地方？
//
// 核心挑戰：
//   1. 狀態管理：房間有明確的狀態轉換（paired → active → ended）
//   2. 並發控制：配對、轉發、斷線來自不同連接的 goroutine
//   3. 資源回收：任一方斷線或遊戲結束就移除房間
//
// 設計方案：
//   ✅ 有限狀態機（FSM）- 規範狀態轉換
//   ✅ 單一鎖 - 房間本身不加鎖，由 Manager 統一保護佇列與房間表

// RoomStatus 房間狀態
//
// 有限狀態機設計：
//
//	(waiting) → paired → active → ended → 移除
//
// 狀態轉換規則：
//   - waiting：客戶端仍在等待佇列中，房間尚未存在
//   - waiting → paired：兩個等待中的客戶端配對成功，房間建立
//   - paired → active：收到第一個 game_update
//   - paired/active → ended：任一方回報 game_over 或斷線
//
// 轉發本身不依賴狀態，paired 狀態下的 game_update 一樣會轉發。
type RoomStatus string

const (
	StatusPaired RoomStatus = "paired" // 房間已建立，尚未收到狀態更新
	StatusActive RoomStatus = "active" // 雙方開始傳送狀態
	StatusEnded  RoomStatus = "ended"  // 遊戲結束或有人斷線
)

// Room 兩人對戰房間
//
// 不變量：PlayerA 與 PlayerB 一定是兩個不同的連接。
// PlayerA 是先進入佇列的一方（player_number 1），PlayerB 是後到的請求者（2）。
type Room struct {
	ID        string     `json:"room_id"`
	PlayerA   ClientRef  `json:"player_a"`
	PlayerB   ClientRef  `json:"player_b"`
	Started   bool       `json:"started"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewRoom 創建新房間
func NewRoom(id string, playerA, playerB ClientRef, now time.Time) *Room {
	return &Room{
		ID:        id,
		PlayerA:   playerA,
		PlayerB:   playerB,
		Status:    StatusPaired,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Has 連接是否為房間玩家
func (r *Room) Has(connID string) bool {
	return r.PlayerA.ConnID == connID || r.PlayerB.ConnID == connID
}

// Opponent 返回另一位玩家
func (r *Room) Opponent(connID string) (ClientRef, bool) {
	switch connID {
	case r.PlayerA.ConnID:
		return r.PlayerB, true
	case r.PlayerB.ConnID:
		return r.PlayerA, true
	default:
		return ClientRef{}, false
	}
}

// PlayerNumber 返回座位號（1 或 2），不在房間內返回 0
func (r *Room) PlayerNumber(connID string) int {
	switch connID {
	case r.PlayerA.ConnID:
		return 1
	case r.PlayerB.ConnID:
		return 2
	default:
		return 0
	}
}

// MarkActive 收到第一個狀態更新
func (r *Room) MarkActive(now time.Time) {
	if r.Status != StatusPaired {
		return
	}
	r.Started = true
	r.Status = StatusActive
	r.UpdatedAt = now
}

// End 結束房間
func (r *Room) End(now time.Time) {
	r.Status = StatusEnded
	r.UpdatedAt = now
}
