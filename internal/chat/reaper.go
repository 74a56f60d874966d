package chat

import (
	"context"

	"echochat/internal/log"
	"echochat/internal/models"
	"echochat/internal/presence"
)

// Reaper 处理连接关闭：解绑会话，用户最后一个会话关闭时置为离线并广播 LEAVE
type Reaper struct {
	presence *presence.Registry
	router   *Router
}

func NewReaper(reg *presence.Registry, router *Router) *Reaper {
	return &Reaper{presence: reg, router: router}
}

// Disconnect 对同一会话可以重复调用，只有第一次生效；未 JOIN 的会话直接返回 false
func (r *Reaper) Disconnect(ctx context.Context, sessionID string) bool {
	s, last, ok := r.presence.Leave(ctx, sessionID)
	if !ok {
		return false
	}
	l := log.Ctx(ctx).With().Str(log.FieldSessionID, sessionID).Str(log.FieldUsername, s.Username).Logger()
	if !last {
		l.Debug().Msg("会话关闭，用户仍有其他连接")
		return true
	}
	if err := r.router.Route(ctx, Inbound{
		SessionID:   sessionID,
		Destination: DestLeave,
		Message:     models.ChatMessage{Sender: s.Username},
	}); err != nil {
		l.Warn().Err(err).Msg("LEAVE 路由失败")
	}
	l.Info().Msg("用户离线")
	return true
}
