package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_store.go github.com/koopa0/system-design/14-versus-arena/internal ScoreStore

// ScoreStore 成績儲存後端
//
// 儲存兩個具名集合（daily、weekly），每筆成績包含玩家名稱、整數分數與 ISO-8601 時間。
// 排名與過濾邏輯都在 Leaderboard 中，後端只負責讀寫。
type ScoreStore interface {
	// Append 將成績同時加入 daily 與 weekly 兩個集合
	Append(ctx context.Context, entry ScoreEntry) error

	// Load 讀取兩個集合（依寫入順序）
	Load(ctx context.Context) (ScoreCollections, error)

	// Prune 刪除時間不晚於 cutoff 的成績
	Prune(ctx context.Context, dailyCutoff, weeklyCutoff time.Time) error

	// Close 釋放資源
	Close() error
}

// ScoreCollections 儲存後端中的兩個集合
type ScoreCollections struct {
	Daily  []ScoreEntry `json:"daily"`
	Weekly []ScoreEntry `json:"weekly"`
}

// OpenScoreStore 依配置開啟儲存後端
//
// memory 返回 nil，排行榜只保存在記憶體中。
func OpenScoreStore(ctx context.Context, cfg *Config, logger *slog.Logger) (ScoreStore, error) {
	switch cfg.Leaderboard.Store {
	case StoreMemory:
		logger.Info("成績只保存在記憶體中")
		return nil, nil

	case StoreFile:
		logger.Info("使用檔案儲存成績", "path", cfg.Leaderboard.FilePath)
		return NewFileScoreStore(cfg.Leaderboard.FilePath), nil

	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		store, err := NewRedisScoreStore(ctx, &RedisStoreConfig{
			Client:    client,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("使用 Redis 儲存成績", "addr", cfg.Redis.Addr)
		return store, nil

	case StoreSQLite:
		store, err := NewSQLiteScoreStore(cfg.Leaderboard.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("使用 SQLite 儲存成績", "path", cfg.Leaderboard.SQLitePath)
		return store, nil

	default:
		return nil, fmt.Errorf("不支援的成績儲存後端: %q", cfg.Leaderboard.Store)
	}
}
