package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"echochat/internal/log"
	"echochat/internal/middleware"
	"echochat/internal/models"
	"echochat/internal/store"
)

type MessageHandler struct {
	messages     store.MessageStore
	historyLimit int
}

func NewMessageHandler(messages store.MessageStore, historyLimit int) *MessageHandler {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &MessageHandler{
		messages:     messages,
		historyLimit: historyLimit,
	}
}

type PrivateHistoryRequest struct {
	User1 string `form:"user1" binding:"required"`
	User2 string `form:"user2" binding:"required"`
}

// GetPrivateHistory 两个用户之间最近的私聊记录，按时间升序；只有对话双方可以查看
func (h *MessageHandler) GetPrivateHistory(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}
	var req PrivateHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: 缺少 user1 或 user2"})
		return
	}
	u1, u2 := strings.TrimSpace(req.User1), strings.TrimSpace(req.User2)
	if u1 == "" || u2 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: 缺少 user1 或 user2"})
		return
	}
	if p.Username != u1 && p.Username != u2 {
		c.JSON(http.StatusForbidden, gin.H{"error": "无权查看该私聊历史"})
		return
	}

	msgs, err := h.messages.QueryPrivateHistory(c.Request.Context(), u1, u2, h.historyLimit)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldSender, u1).Str(log.FieldRecipient, u2).Msg("查询私聊历史失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询私聊历史失败"})
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}
