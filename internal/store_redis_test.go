package internal_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/koopa0/system-design/14-versus-arena/internal"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// RedisScoreStoreTestSuite 使用 miniredis 測試 Redis 成績儲存
type RedisScoreStoreTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *internal.RedisScoreStore
	ctx    context.Context
}

func (s *RedisScoreStoreTestSuite) SetupTest() {
	var err error
	s.ctx = context.Background()

	s.mr, err = miniredis.Run()
	s.Require().NoError(err)

	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store, err = internal.NewRedisScoreStore(s.ctx, &internal.RedisStoreConfig{
		Client:    s.client,
		KeyPrefix: "test:",
	})
	s.Require().NoError(err)
}

func (s *RedisScoreStoreTestSuite) TearDownTest() {
	s.store.Close()
	s.mr.Close()
}

func TestRedisScoreStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisScoreStoreTestSuite))
}

func (s *RedisScoreStoreTestSuite) TestAppendLoad() {
	entries := []internal.ScoreEntry{
		{Name: "Al", Score: 500, Timestamp: testNow.Add(-time.Hour)},
		{Name: "Bo", Score: 800, Timestamp: testNow},
	}
	for _, e := range entries {
		s.Require().NoError(s.store.Append(s.ctx, e))
	}

	s.True(s.mr.Exists("test:scores:daily"))
	s.True(s.mr.Exists("test:scores:weekly"))

	collections, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(collections.Daily, 2)
	s.Require().Len(collections.Weekly, 2)

	for i, want := range entries {
		s.Equal(want.Name, collections.Daily[i].Name)
		s.Equal(want.Score, collections.Daily[i].Score)
		s.True(want.Timestamp.Equal(collections.Daily[i].Timestamp))
	}
}

func (s *RedisScoreStoreTestSuite) TestIdenticalEntriesAreKept() {
	entry := internal.ScoreEntry{Name: "Al", Score: 500, Timestamp: testNow}

	s.Require().NoError(s.store.Append(s.ctx, entry))
	s.Require().NoError(s.store.Append(s.ctx, entry))

	collections, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Len(collections.Daily, 2)
	s.Len(collections.Weekly, 2)
}

func (s *RedisScoreStoreTestSuite) TestLoadEmpty() {
	collections, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Empty(collections.Daily)
	s.Empty(collections.Weekly)
}

func (s *RedisScoreStoreTestSuite) TestPrune() {
	s.Require().NoError(s.store.Append(s.ctx, internal.ScoreEntry{Name: "recent", Score: 1, Timestamp: testNow.Add(-time.Hour)}))
	s.Require().NoError(s.store.Append(s.ctx, internal.ScoreEntry{Name: "yesterday", Score: 2, Timestamp: testNow.Add(-48 * time.Hour)}))
	s.Require().NoError(s.store.Append(s.ctx, internal.ScoreEntry{Name: "old", Score: 3, Timestamp: testNow.Add(-10 * 24 * time.Hour)}))

	s.Require().NoError(s.store.Prune(s.ctx, testNow.Add(-24*time.Hour), testNow.Add(-7*24*time.Hour)))

	collections, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	// ZRANGE 依時間升冪
	s.Equal([]string{"recent"}, names(collections.Daily))
	s.Equal([]string{"yesterday", "recent"}, names(collections.Weekly))
}

func (s *RedisScoreStoreTestSuite) TestInvalidConfig() {
	_, err := internal.NewRedisScoreStore(s.ctx, nil)
	s.Error(err)

	_, err = internal.NewRedisScoreStore(s.ctx, &internal.RedisStoreConfig{})
	s.Error(err)
}

func (s *RedisScoreStoreTestSuite) TestUnreachableServer() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()

	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()

	_, err = internal.NewRedisScoreStore(ctx, &internal.RedisStoreConfig{Client: client})
	s.Error(err)
}

func (s *RedisScoreStoreTestSuite) TestLeaderboardRoundTrip() {
	lb := internal.NewLeaderboard(s.store, internal.LeaderboardConfig{}, testLogger(),
		internal.WithLeaderboardClock(fixedClock))
	lb.Record(s.ctx, internal.ScoreEntry{Name: "Al", Score: 500})

	// 新的排行榜從 Redis 載入
	restored := internal.NewLeaderboard(s.store, internal.LeaderboardConfig{}, testLogger(),
		internal.WithLeaderboardClock(fixedClock))
	s.Require().NoError(restored.Load(s.ctx))

	snapshot := restored.Current()
	s.Require().Len(snapshot.Daily, 1)
	s.Equal("Al", snapshot.Daily[0].Name)
	s.Equal(500, snapshot.Daily[0].Score)
}
