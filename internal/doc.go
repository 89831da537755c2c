// Package internal 提供了一個兩人即時對戰的配對與轉發服務。
//
// 匿名客戶端透過 WebSocket 連線，請求配對後與另一位等待中的玩家組成房間，
// 之後每個 tick 的遊戲狀態都由伺服器轉發給對手；遊戲結束時記錄成績，
// 並維護「最近一天」與「最近一週」兩個排行榜。
//
// # 配對系統
//
// 提供完整的配對與房間生命週期管理：
//   - 嚴格 FIFO 等待佇列（等待最久的玩家優先配對）
//   - 房間建立、轉發、結束與斷線清理
//   - 重複請求去重，同一連接不會同時在佇列與房間中
//
// # WebSocket 通訊
//
// 實現了即時雙向通訊機制：
//   - 支援心跳檢測（Ping/Pong）
//   - 非阻塞的單播與廣播
//   - 連接狀態管理
//
// # 併發安全設計
//
//   - 等待佇列與房間表由同一把鎖保護（單一一致性邊界）
//   - 排行榜使用獨立的讀寫鎖，持久化不阻塞配對
//   - 訊息投遞經由緩衝 channel，慢客戶端不影響其他人
//
// # 訊息格式
//
// 所有訊息都是 {"event": "...", "data": {...}} 形式的 JSON：
//
//	→ {"event": "find_match", "data": {"name": "Al"}}
//	← {"event": "waiting_for_opponent"}
//	← {"event": "match_found", "data": {"room_id": "room_...", "opponent": "Bo", "player_number": 1}}
//	→ {"event": "game_update", "data": {"room_id": "room_...", "board": [...], "score": 120, "lines": 3, "level": 1}}
//	→ {"event": "game_over", "data": {"room_id": "room_...", "score": 500, "name": "Al"}}
//	← {"event": "rankings_update", "data": {"daily": [...], "weekly": [...]}}
//
// # 使用範例
//
// 啟動服務器：
//
//	registry := internal.NewConnectionRegistry(logger, nil)
//	leaderboard := internal.NewLeaderboard(store, cfg.Leaderboard, logger)
//	manager := internal.NewManager(registry, leaderboard, logger)
//	hub := internal.NewWebSocketHub(manager, registry, cfg.WebSocket, logger)
//	handler := internal.NewHandler(manager, registry, nil, logger)
//
//	mux := http.NewServeMux()
//	mux.Handle("/", handler.Routes())
//	mux.HandleFunc("/ws", hub.ServeWS)
//
// # 成績儲存
//
// 排行榜以記憶體為主，寫穿到可替換的儲存後端：
//   - memory：不持久化
//   - file：JSON 檔案 {"daily": [...], "weekly": [...]}
//   - redis：每個窗口一個 Sorted Set
//   - sqlite：goose 遷移建立的 scores 表
//
// 持久化失敗只記錄日誌與指標，不影響配對流程。
package internal
