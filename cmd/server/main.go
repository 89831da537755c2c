package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/koopa0/system-design/14-versus-arena/internal"
)

// options 命令列參數
type options struct {
	configPath string
	logLevel   string
	logFormat  string
	port       int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "versus",
		Short:        "兩人即時對戰配對服務",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置檔路徑（YAML）")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "日誌級別 (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "日誌格式 (text, json, pretty)")

	root.AddCommand(newServeCmd(opts), newRankingsCmd(opts))
	return root
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "啟動 WebSocket 對戰服務器",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.port
			}
			return serve(cfg)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 8000, "服務器端口")
	return cmd
}

func newRankingsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rankings",
		Short: "輸出目前的排行榜",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			store, err := internal.OpenScoreStore(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("open score store: %w", err)
			}

			leaderboard := internal.NewLeaderboard(store, cfg.Leaderboard, logger)
			defer leaderboard.Stop()

			if err := leaderboard.Load(ctx); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(leaderboard.Current())
		},
	}
}

// loadConfig 預設值 → 配置檔 → .env / 環境變數 → 命令列參數
func loadConfig(cmd *cobra.Command, opts *options) (*internal.Config, error) {
	// .env 不存在時直接使用環境變數
	_ = godotenv.Load()

	cfg, err := internal.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(cfg *internal.Config) error {
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	// 指標
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := internal.NewMetrics(registry)

	// 成績儲存：後端不可用時退回純記憶體，不影響配對
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	store, err := internal.OpenScoreStore(ctx, cfg, logger)
	if err != nil {
		logger.Warn("成績儲存不可用，改用記憶體", "store", cfg.Leaderboard.Store, "error", err)
		store = nil
	}

	leaderboard := internal.NewLeaderboard(store, cfg.Leaderboard, logger,
		internal.WithLeaderboardMetrics(metrics))
	if err := leaderboard.Load(ctx); err != nil {
		logger.Warn("載入排行榜失敗", "error", err)
	}
	cancel()
	leaderboard.Start()

	// 配對、轉發與 WebSocket
	connections := internal.NewConnectionRegistry(logger, metrics)
	manager := internal.NewManager(connections, leaderboard, logger, internal.WithMetrics(metrics))
	wsHub := internal.NewWebSocketHub(manager, connections, cfg.WebSocket, logger)
	handler := internal.NewHandler(manager, connections, internal.NewMetricsHandler(registry), logger)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("/ws", wsHub.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("對戰服務器啟動",
			"port", cfg.Server.Port,
			"store", cfg.Leaderboard.Store,
			"log_level", cfg.Log.Level)
		serverErrors <- server.ListenAndServe()
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("服務器啟動失敗", "error", err)
			wsHub.Stop()
			leaderboard.Stop()
			return err
		}
	case sig := <-sigChan:
		logger.Info("收到關閉信號，開始優雅關閉...", "signal", sig)
	}

	// 優雅關閉
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// 停止接受新連接（WebSocket 已被 hijack，不受 Shutdown 影響）
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	wsHub.Stop()
	leaderboard.Stop()

	logger.Info("服務器已關閉")
	return nil
}

// setupLogger 設置日誌
func setupLogger(level, format string, w *os.File) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug, // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "pretty":
		pretty := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			ReportCaller:    logLevel == slog.LevelDebug,
			Prefix:          "versus",
		})
		pretty.SetLevel(charmlog.Level(logLevel))
		handler = pretty
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
