package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"echochat/internal/log"
	"echochat/internal/presence"
)

type UserHandler struct {
	presence *presence.Registry
}

func NewUserHandler(reg *presence.Registry) *UserHandler {
	return &UserHandler{presence: reg}
}

// ListOnline 返回 用户名 -> 用户摘要
func (h *UserHandler) ListOnline(c *gin.Context) {
	users, err := h.presence.ListOnlineUsers(c.Request.Context())
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("查询在线用户失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询在线用户失败"})
		return
	}
	c.JSON(http.StatusOK, users)
}
