package internal

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDGenerator 產生連接 ID 與房間 ID
type IDGenerator interface {
	NewConnectionID() string
	NewRoomID() string
}

// randomIDs 預設實作
type randomIDs struct{}

// NewIDGenerator 創建預設的 ID 產生器
func NewIDGenerator() IDGenerator {
	return randomIDs{}
}

// NewConnectionID 連接 ID 使用 UUID
func (randomIDs) NewConnectionID() string {
	return uuid.NewString()
}

// NewRoomID 房間 ID 使用 128 位元隨機數
//
// 房間 ID 會回傳給客戶端，之後的 game_update / game_over 都以它定址，
// 所以必須不可預測且幾乎不會碰撞。
func (randomIDs) NewRoomID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// 如果隨機讀取失敗，退回 UUID（仍有 122 位元隨機性）
		return fmt.Sprintf("room_%s_%d", uuid.NewString(), time.Now().UnixNano())
	}
	return "room_" + hex.EncodeToString(b)
}
