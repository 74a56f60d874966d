package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"echochat/internal/chat"
	"echochat/internal/config"
	"echochat/internal/hub"
	"echochat/internal/log"
	"echochat/internal/middleware"
	"echochat/internal/server/auth"
)

type WsHandler struct {
	hub      *hub.Hub
	router   *chat.Router
	reaper   *chat.Reaper
	upgrader websocket.Upgrader
	ws       config.WebSocketSettings
	chat     config.Chat
}

func NewWsHandler(h *hub.Hub, router *chat.Router, reaper *chat.Reaper, ws config.WebSocketSettings, chatCfg config.Chat, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		hub:    h,
		router: router,
		reaper: reaper,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		ws:   ws,
		chat: chatCfg,
	}
}

// Handle 升级为 websocket 连接。握手时由 Gate 解析出的身份会随每一帧传给路由；
// 帧按接收顺序逐条处理，连接关闭后交给 Reaper 回收会话。
func (h *WsHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已写回 HTTP 错误
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket 升级失败")
		return
	}

	sessionID := uuid.NewString()
	var principal *auth.Principal
	if p, ok := middleware.PrincipalFrom(c); ok {
		principal = &p
	}

	logger := log.Ctx(c.Request.Context()).With().Str(log.FieldSessionID, sessionID).Logger()
	// 连接的生命周期长于本次 HTTP 请求，保留 context 中的值但不随请求取消
	ctx := log.WithLogger(context.WithoutCancel(c.Request.Context()), logger)

	client := hub.NewClient(sessionID, h.hub, conn, h.ws)
	if err := h.hub.Register(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}
	ev := logger.Info()
	if principal != nil {
		ev = ev.Str(log.FieldUsername, principal.Username)
	}
	ev.Msg("websocket 已连接")

	h.hub.Go(client.WritePump)
	h.hub.Go(func() {
		client.ReadPump(func(_ *hub.Client, data []byte) {
			h.handleFrame(ctx, sessionID, principal, data)
		})
		h.reaper.Disconnect(ctx, sessionID)
		logger.Info().Msg("websocket 已断开")
	})
}

func (h *WsHandler) handleFrame(ctx context.Context, sessionID string, principal *auth.Principal, data []byte) {
	l := log.Ctx(ctx)
	f, err := chat.DecodeFrame(data, h.chat.MaxContentLengthOrDefault())
	if err != nil {
		l.Warn().Err(err).Msg("无效的消息帧")
		h.reject(ctx, sessionID, err)
		return
	}
	err = h.router.Route(ctx, chat.Inbound{
		SessionID:   sessionID,
		Principal:   principal,
		Destination: f.Destination,
		Message:     f.Payload,
	})
	if err != nil {
		l.Info().Err(err).Str(log.FieldDestination, string(f.Destination)).Msg("消息未投递")
		h.reject(ctx, sessionID, err)
	}
}

// reject 仅在开启 chat.reject_frames 时给发送方回错误帧，默认静默丢弃
func (h *WsHandler) reject(ctx context.Context, sessionID string, err error) {
	if !h.chat.RejectFrames {
		return
	}
	data, encErr := chat.EncodeError(err)
	if encErr != nil {
		return
	}
	if sendErr := h.hub.SendToSession(ctx, sessionID, data); sendErr != nil && !errors.Is(sendErr, hub.ErrClosed) {
		l := log.Ctx(ctx)
		l.Warn().Err(sendErr).Msg("错误帧发送失败")
	}
}

// Status 返回当前连接数（调试）
func (h *WsHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connections": h.hub.ClientCount()})
}
