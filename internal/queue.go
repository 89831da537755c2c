package internal

// ClientRef 客戶端引用
//
// ConnID 由 WebSocket 層在連接建立時分配，斷線或取消後失效。
type ClientRef struct {
	ConnID string `json:"conn_id"`
	Name   string `json:"name"`
}

// WaitingQueue 等待配對的 FIFO 佇列
//
// 不變量：同一個 ConnID 最多出現一次。
//
// 本身不做併發控制，由 Manager 在同一把鎖內存取。
type WaitingQueue struct {
	entries []ClientRef
}

// NewWaitingQueue 創建等待佇列
func NewWaitingQueue() *WaitingQueue {
	return &WaitingQueue{}
}

// Push 加入佇列尾端
//
// 已在佇列中時不重複加入，只更新顯示名稱並保留原本的排隊位置，回傳 false。
func (q *WaitingQueue) Push(client ClientRef) bool {
	if i := q.indexOf(client.ConnID); i >= 0 {
		q.entries[i].Name = client.Name
		return false
	}
	q.entries = append(q.entries, client)
	return true
}

// Pop 取出等待最久的客戶端
func (q *WaitingQueue) Pop() (ClientRef, bool) {
	if len(q.entries) == 0 {
		return ClientRef{}, false
	}
	head := q.entries[0]
	q.entries[0] = ClientRef{}
	q.entries = q.entries[1:]
	return head, true
}

// Remove 移除指定連接，保持其餘項目的相對順序
func (q *WaitingQueue) Remove(connID string) bool {
	i := q.indexOf(connID)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// Contains 是否在佇列中
func (q *WaitingQueue) Contains(connID string) bool {
	return q.indexOf(connID) >= 0
}

// Len 佇列長度
func (q *WaitingQueue) Len() int {
	return len(q.entries)
}

// Entries 返回佇列副本（依排隊順序）
func (q *WaitingQueue) Entries() []ClientRef {
	out := make([]ClientRef, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *WaitingQueue) indexOf(connID string) int {
	for i, c := range q.entries {
		if c.ConnID == connID {
			return i
		}
	}
	return -1
}
