package internal

import "errors"

// 錯誤分類
//
// 所有錯誤都不會回傳給客戶端，WebSocket 層只記錄日誌後丟棄：
//   - 過期引用（StaleReference）：房間或佇列項目已不存在，屬於正常競態
//   - 重複項目（DuplicateEntry）：客戶端已在佇列或房間中
//   - 格式錯誤（MalformedPayload）：缺少必填欄位或型別錯誤
var (
	// ErrRoomNotFound 房間不存在（對手已斷線或遊戲已結束）
	ErrRoomNotFound = errors.New("房間不存在")

	// ErrNotInRoom 發送者不是該房間的玩家
	ErrNotInRoom = errors.New("玩家不在房間內")

	// ErrAlreadyInRoom 玩家已在其他房間中，不能再次配對
	ErrAlreadyInRoom = errors.New("玩家已在房間中")

	// ErrMalformedPayload 訊息格式錯誤
	ErrMalformedPayload = errors.New("訊息格式錯誤")

	// ErrUnknownEvent 未知的事件類型
	ErrUnknownEvent = errors.New("未知的事件類型")
)

// IsStaleReference 判斷錯誤是否為可忽略的過期引用
func IsStaleReference(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrNotInRoom)
}
