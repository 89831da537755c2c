package internal

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// 系統設計問題：
//   如何維護「最近一天」與「最近一週」兩個排行榜，又不讓持久化拖慢對戰流程？
//
// 設計方案：
//   ✅ 記憶體為主、儲存後端為輔：讀取只看記憶體，寫入同步寫穿到 ScoreStore
//   ✅ 讀取時過濾：快照只包含窗口內的成績，過濾本身就是淘汰機制
//   ✅ 定期清理：背景 goroutine 實際刪除過期成績，控制記憶體用量
//   ✅ 獨立的讀寫鎖：與配對用的鎖分開，記錄成績不會阻塞配對

// ScoreEntry 單筆成績，建立後不可修改
type ScoreEntry struct {
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot 排行榜快照（衍生資料，不儲存）
type Snapshot struct {
	Daily  []ScoreEntry `json:"daily"`
	Weekly []ScoreEntry `json:"weekly"`
}

// Leaderboard 時間窗口排行榜
type Leaderboard struct {
	daily  []ScoreEntry // 依寫入順序
	weekly []ScoreEntry
	mu     sync.RWMutex

	store   ScoreStore // 可為 nil（純記憶體）
	cfg     LeaderboardConfig
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// LeaderboardOption 排行榜選項
type LeaderboardOption func(*Leaderboard)

// WithLeaderboardClock 替換時鐘（測試用）
func WithLeaderboardClock(now func() time.Time) LeaderboardOption {
	return func(lb *Leaderboard) {
		lb.now = now
	}
}

// WithLeaderboardMetrics 設定指標
func WithLeaderboardMetrics(m *Metrics) LeaderboardOption {
	return func(lb *Leaderboard) {
		lb.metrics = m
	}
}

// NewLeaderboard 創建排行榜
//
// store 為 nil 時成績只保存在記憶體中。cfg 中未設定的欄位使用預設值。
func NewLeaderboard(store ScoreStore, cfg LeaderboardConfig, logger *slog.Logger, opts ...LeaderboardOption) *Leaderboard {
	defaults := DefaultConfig().Leaderboard
	if cfg.DailyWindow <= 0 {
		cfg.DailyWindow = defaults.DailyWindow
	}
	if cfg.WeeklyWindow <= 0 {
		cfg.WeeklyWindow = defaults.WeeklyWindow
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaults.TopN
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaults.PersistTimeout
	}

	lb := &Leaderboard{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lb)
	}
	return lb
}

// Load 從儲存後端載入既有成績
func (lb *Leaderboard) Load(ctx context.Context) error {
	if lb.store == nil {
		return nil
	}

	collections, err := lb.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}

	lb.mu.Lock()
	lb.daily = collections.Daily
	lb.weekly = collections.Weekly
	lb.mu.Unlock()

	lb.logger.Info("排行榜已載入",
		"daily", len(collections.Daily),
		"weekly", len(collections.Weekly))

	return nil
}

// Record 記錄一筆成績到兩個窗口
//
// 持久化失敗不影響記憶體中的成績，只記錄日誌與指標，不重試。
func (lb *Leaderboard) Record(ctx context.Context, entry ScoreEntry) {
	if entry.Score < 0 {
		entry.Score = 0
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = lb.now()
	}

	lb.mu.Lock()
	lb.daily = append(lb.daily, entry)
	lb.weekly = append(lb.weekly, entry)
	lb.mu.Unlock()

	lb.metrics.incScores()

	if lb.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, lb.cfg.PersistTimeout)
	defer cancel()

	if err := lb.store.Append(ctx, entry); err != nil {
		lb.metrics.incPersistFailures()
		lb.logger.Warn("成績持久化失敗",
			"player_name", entry.Name,
			"score", entry.Score,
			"error", err)
	}
}

// Snapshot 計算排行榜快照
//
// 純函數：只讀取記憶體中的成績，不修改任何狀態。
// 每個窗口只保留 timestamp > now - window 的成績，依分數降冪穩定排序，取前 N 名。
func (lb *Leaderboard) Snapshot(now time.Time) Snapshot {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	return Snapshot{
		Daily:  rank(lb.daily, now.Add(-lb.cfg.DailyWindow), lb.cfg.TopN),
		Weekly: rank(lb.weekly, now.Add(-lb.cfg.WeeklyWindow), lb.cfg.TopN),
	}
}

// Current 以當前時間計算快照
func (lb *Leaderboard) Current() Snapshot {
	return lb.Snapshot(lb.now())
}

// rank 過濾、排序、截斷
func rank(entries []ScoreEntry, cutoff time.Time, topN int) []ScoreEntry {
	out := make([]ScoreEntry, 0, min(len(entries), topN))
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}

	// 同分時保留寫入順序
	slices.SortStableFunc(out, func(a, b ScoreEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Sizes 返回兩個窗口目前保存的成績數（含尚未清理的過期成績）
func (lb *Leaderboard) Sizes() (daily, weekly int) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.daily), len(lb.weekly)
}

// Prune 實際刪除過期成績，返回刪除的筆數
func (lb *Leaderboard) Prune(ctx context.Context, now time.Time) int {
	dailyCutoff := now.Add(-lb.cfg.DailyWindow)
	weeklyCutoff := now.Add(-lb.cfg.WeeklyWindow)

	lb.mu.Lock()
	before := len(lb.daily) + len(lb.weekly)
	lb.daily = keepAfter(lb.daily, dailyCutoff)
	lb.weekly = keepAfter(lb.weekly, weeklyCutoff)
	removed := before - len(lb.daily) - len(lb.weekly)
	lb.mu.Unlock()

	if lb.store != nil {
		ctx, cancel := context.WithTimeout(ctx, lb.cfg.PersistTimeout)
		defer cancel()
		if err := lb.store.Prune(ctx, dailyCutoff, weeklyCutoff); err != nil {
			lb.logger.Warn("清理儲存後端過期成績失敗", "error", err)
		}
	}

	return removed
}

func keepAfter(entries []ScoreEntry, cutoff time.Time) []ScoreEntry {
	return slices.DeleteFunc(entries, func(e ScoreEntry) bool {
		return !e.Timestamp.After(cutoff)
	})
}

// Start 啟動定期清理
func (lb *Leaderboard) Start() {
	if lb.cfg.PruneInterval <= 0 {
		return
	}
	lb.wg.Add(1)
	go lb.pruneLoop()
}

// pruneLoop 定期清理過期成績
func (lb *Leaderboard) pruneLoop() {
	defer lb.wg.Done()

	ticker := time.NewTicker(lb.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := lb.Prune(context.Background(), lb.now()); removed > 0 {
				lb.logger.Debug("已清理過期成績", "removed", removed)
			}
		case <-lb.stopCh:
			return
		}
	}
}

// Stop 停止清理並關閉儲存後端
func (lb *Leaderboard) Stop() {
	lb.stopOnce.Do(func() {
		close(lb.stopCh)
		lb.wg.Wait()

		if lb.store != nil {
			if err := lb.store.Close(); err != nil {
				lb.logger.Error("關閉成績儲存失敗", "error", err)
			}
		}
		lb.logger.Info("排行榜已停止")
	})
}
