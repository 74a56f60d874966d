package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"echochat/internal/api"
	"echochat/internal/chat"
	"echochat/internal/config"
	"echochat/internal/hub"
	applog "echochat/internal/log"
	"echochat/internal/presence"
	database "echochat/internal/server/db"
	"echochat/internal/store"
)

func main() {
	if err := run(); err != nil {
		l := applog.L()
		l.Fatal().Err(err).Msg("服务异常退出")
	}
}

func run() error {
	// 加载配置：YAML + 环境变量覆盖
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	applog.Init(applog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "echochat"})
	logger := applog.L()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库连接
	db, err := database.OpenGorm(cfg.Database)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层连接失败: %w", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("数据库不可用: %w", err)
	}

	logger.Info().Msg("正在检查并迁移数据库结构...")
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	users := store.NewGormUserDirectory(db)

	var messages store.MessageStore
	switch cfg.Storage.DriverOrDefault() {
	case config.StorageDriverGorm:
		messages = store.NewGormMessageStore(db)
	case config.StorageDriverBadger:
		bs, err := store.OpenBadgerMessageStore(cfg.Storage.BadgerPathOrDefault())
		if err != nil {
			return fmt.Errorf("打开 badger 失败: %w", err)
		}
		defer bs.Close()
		messages = bs
	default:
		return fmt.Errorf("不支持的消息存储: %s", cfg.Storage.Driver)
	}
	logger.Info().Str("storage", cfg.Storage.DriverOrDefault()).Msg("消息存储已就绪")

	registry := presence.NewRegistry(users)
	if n, err := registry.ResetStale(ctx); err != nil {
		logger.Warn().Err(err).Msg("重置残留在线状态失败")
	} else if n > 0 {
		logger.Info().Int("users", n).Msg("已重置残留在线状态")
	}

	h := hub.New()
	go h.Run()

	router := chat.NewRouter(registry, messages, h, chat.Options{RequirePrincipal: cfg.Chat.RequirePrincipal})
	reaper := chat.NewReaper(registry, router)

	r := api.SetupRouter(api.Deps{
		Logger:   logger,
		Config:   cfg,
		Auth:     cfg.Auth.ToSettings(),
		Users:    users,
		Messages: messages,
		Presence: registry,
		Hub:      h,
		Router:   router,
		Reaper:   reaper,
	})

	srv := &http.Server{
		Addr:              cfg.Server.AddrOrDefault(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP 服务器已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP 服务启动失败: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("收到退出信号，正在关闭...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP 服务关闭超时")
	}
	// 关闭所有 websocket 连接，每个连接都会经过 Reaper 回收
	if err := h.Shutdown(5 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("websocket 连接关闭超时")
	}
	logger.Info().Msg("已退出")
	return nil
}
