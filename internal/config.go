package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// 儲存後端類型
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WebSocket WebSocketConfig `yaml:"websocket"`

	Leaderboard LeaderboardConfig `yaml:"leaderboard"`

	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text, json, pretty
	} `yaml:"log"`
}

// WebSocketConfig WebSocket 連接參數
type WebSocketConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteWait      time.Duration `yaml:"write_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

// LeaderboardConfig 排行榜參數
type LeaderboardConfig struct {
	Store          string        `yaml:"store"` // memory, file, redis, sqlite
	FilePath       string        `yaml:"file_path"`
	SQLitePath     string        `yaml:"sqlite_path"`
	DailyWindow    time.Duration `yaml:"daily_window"`
	WeeklyWindow   time.Duration `yaml:"weekly_window"`
	TopN           int           `yaml:"top_n"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.WebSocket = WebSocketConfig{
		SendBuffer:     256,
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}

	cfg.Leaderboard = LeaderboardConfig{
		Store:          StoreFile,
		FilePath:       "tetris_scores.json",
		SQLitePath:     "scores.db",
		DailyWindow:    24 * time.Hour,
		WeeklyWindow:   7 * 24 * time.Hour,
		TopN:           10,
		PruneInterval:  10 * time.Minute,
		PersistTimeout: 2 * time.Second,
	}

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "versus:"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 載入配置檔案
//
// path 為空時只使用預設值；檔案內容覆蓋預設值中對應的欄位。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 - path 來自命令列參數
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv 使用環境變數覆蓋配置（生產環境常用）
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("SCORE_STORE"); v != "" {
		c.Leaderboard.Store = v
	}
	if v := os.Getenv("SCORES_FILE"); v != "" {
		c.Leaderboard.FilePath = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Leaderboard.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}

	switch c.Leaderboard.Store {
	case StoreMemory, StoreFile, StoreRedis, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("leaderboard.store 不支援: %q", c.Leaderboard.Store))
	}
	if c.Leaderboard.Store == StoreFile && c.Leaderboard.FilePath == "" {
		errs = append(errs, errors.New("leaderboard.file_path 不能為空"))
	}
	if c.Leaderboard.Store == StoreSQLite && c.Leaderboard.SQLitePath == "" {
		errs = append(errs, errors.New("leaderboard.sqlite_path 不能為空"))
	}
	if c.Leaderboard.DailyWindow <= 0 || c.Leaderboard.WeeklyWindow <= 0 {
		errs = append(errs, errors.New("排行榜時間窗口必須大於 0"))
	}
	if c.Leaderboard.TopN <= 0 {
		errs = append(errs, fmt.Errorf("leaderboard.top_n 必須大於 0: %d", c.Leaderboard.TopN))
	}

	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, errors.New("websocket.send_buffer 必須大於 0"))
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		errs = append(errs, errors.New("websocket.ping_period 必須小於 pong_wait"))
	}

	return errors.Join(errs...)
}
