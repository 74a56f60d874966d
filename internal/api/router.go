package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"echochat/internal/api/handler"
	"echochat/internal/chat"
	"echochat/internal/config"
	"echochat/internal/hub"
	"echochat/internal/log"
	"echochat/internal/middleware"
	"echochat/internal/presence"
	"echochat/internal/server/auth"
	"echochat/internal/store"
)

// Deps 路由依赖的组件
type Deps struct {
	Logger   zerolog.Logger
	Config   *config.Config
	Auth     config.AuthSettings
	Users    store.UserDirectory
	Messages store.MessageStore
	Presence *presence.Registry
	Hub      *hub.Hub
	Router   *chat.Router
	Reaper   *chat.Reaper
}

// SetupRouter 初始化 Gin 路由。所有请求先经过 Gate 解析身份（失败按匿名处理），
// 需要登录的接口再挂 RequireAuth。
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(log.GinMiddleware(d.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.Gate(auth.NewVerifier(d.Auth.JWTSecret), d.Auth.CookieName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	authHandler := handler.NewAuthHandler(d.Users, d.Auth)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/me", middleware.RequireAuth(), authHandler.Me)

	messageHandler := handler.NewMessageHandler(d.Messages, d.Config.Chat.HistoryLimitOrDefault())
	api.GET("/messages/private", middleware.RequireAuth(), messageHandler.GetPrivateHistory)

	userHandler := handler.NewUserHandler(d.Presence)
	api.GET("/online-users", userHandler.ListOnline)

	wsHandler := handler.NewWsHandler(d.Hub, d.Router, d.Reaper, d.Config.WebSocket.ToSettings(), d.Config.Chat, d.Config.Server.AllowedOrigins)
	r.GET("/ws", wsHandler.Handle)
	r.GET("/ws/status", wsHandler.Status)

	return r
}
