package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 每個集合一個 Sorted Set：
//
//	{prefix}scores:daily  / {prefix}scores:weekly
//	score  = 成績時間（Unix 微秒）
//	member = JSON 成績（含隨機 ID，避免相同內容的成績被合併）
//
// 使用 Sorted Set 的原因：
//   - ZRANGE 依時間順序讀取，恢復寫入順序
//   - ZREMRANGEBYSCORE 一次刪除窗口外的成績
//   - 微秒時間戳在 float64 精度內（< 2^53）
const (
	dailyScoresKey  = "scores:daily"
	weeklyScoresKey = "scores:weekly"
)

// RedisStoreConfig Redis 成績儲存配置
type RedisStoreConfig struct {
	Client    *redis.Client
	KeyPrefix string
}

// RedisScoreStore 以 Redis 儲存成績
type RedisScoreStore struct {
	client    *redis.Client
	dailyKey  string
	weeklyKey string
}

// redisEntry Sorted Set member 格式
type redisEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRedisScoreStore 創建 Redis 成績儲存並測試連線
func NewRedisScoreStore(ctx context.Context, cfg *RedisStoreConfig) (*RedisScoreStore, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	if err := cfg.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisScoreStore{
		client:    cfg.Client,
		dailyKey:  cfg.KeyPrefix + dailyScoresKey,
		weeklyKey: cfg.KeyPrefix + weeklyScoresKey,
	}, nil
}

// Append 在同一個 MULTI/EXEC 中寫入兩個集合
func (s *RedisScoreStore) Append(ctx context.Context, entry ScoreEntry) error {
	member, err := json.Marshal(redisEntry{
		ID:        uuid.NewString(),
		Name:      entry.Name,
		Score:     entry.Score,
		Timestamp: entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal score: %w", err)
	}

	z := redis.Z{
		Score:  float64(entry.Timestamp.UnixMicro()),
		Member: string(member),
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.dailyKey, z)
	pipe.ZAdd(ctx, s.weeklyKey, z)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// Load 讀取兩個集合
func (s *RedisScoreStore) Load(ctx context.Context) (ScoreCollections, error) {
	daily, err := s.loadKey(ctx, s.dailyKey)
	if err != nil {
		return ScoreCollections{}, err
	}
	weekly, err := s.loadKey(ctx, s.weeklyKey)
	if err != nil {
		return ScoreCollections{}, err
	}
	return ScoreCollections{Daily: daily, Weekly: weekly}, nil
}

func (s *RedisScoreStore) loadKey(ctx context.Context, key string) ([]ScoreEntry, error) {
	members, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load scores from %s: %w", key, err)
	}

	entries := make([]ScoreEntry, 0, len(members))
	for _, m := range members {
		var re redisEntry
		if err := json.Unmarshal([]byte(m), &re); err != nil {
			return nil, fmt.Errorf("failed to unmarshal score: %w", err)
		}
		entries = append(entries, ScoreEntry{
			Name:      re.Name,
			Score:     re.Score,
			Timestamp: re.Timestamp,
		})
	}
	return entries, nil
}

// Prune 刪除時間不晚於 cutoff 的成績
func (s *RedisScoreStore) Prune(ctx context.Context, dailyCutoff, weeklyCutoff time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, s.dailyKey, "-inf", strconv.FormatInt(dailyCutoff.UnixMicro(), 10))
	pipe.ZRemRangeByScore(ctx, s.weeklyKey, "-inf", strconv.FormatInt(weeklyCutoff.UnixMicro(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to prune scores: %w", err)
	}
	return nil
}

// Close 關閉 Redis 連線
func (s *RedisScoreStore) Close() error {
	return s.client.Close()
}
