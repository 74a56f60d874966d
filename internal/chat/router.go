package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"echochat/internal/log"
	"echochat/internal/models"
	"echochat/internal/presence"
	"echochat/internal/server/auth"
	"echochat/internal/store"
)

// Inbound 一条待路由的消息
type Inbound struct {
	SessionID   string
	Principal   *auth.Principal
	Destination Destination
	Message     models.ChatMessage
}

type Options struct {
	// RequirePrincipal 为 true 时匿名连接不能发送，且 sender 必须与登录用户一致
	RequirePrincipal bool
	Now              func() time.Time
}

// Router 按目的地分派消息：校验发送者/接收者、补时间戳、持久化会话消息、投递到公共或私有频道
type Router struct {
	presence *presence.Registry
	store    store.MessageStore
	pub      Publisher
	opts     Options
}

func NewRouter(reg *presence.Registry, st store.MessageStore, pub Publisher, opts Options) *Router {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{presence: reg, store: st, pub: pub, opts: opts}
}

// Route 处理一条入站消息，直到投递完成。
// 返回 ErrUnknownUser / ErrUnauthenticated / ErrUnsupportedType 时消息已被丢弃，
// 返回 ErrStorageFailure 时消息没有被投递。单个订阅者投递失败只记日志，不影响返回值。
func (r *Router) Route(ctx context.Context, in Inbound) error {
	switch in.Destination {
	case DestJoin:
		return r.join(ctx, in)
	case DestSendPublic:
		return r.sendPublic(ctx, in)
	case DestSendPrivate:
		return r.sendPrivate(ctx, in)
	case DestLeave:
		return r.leave(ctx, in.Message.Sender)
	default:
		return fmt.Errorf("%w: destination %q", ErrUnsupportedType, in.Destination)
	}
}

func (r *Router) join(ctx context.Context, in Inbound) error {
	sender, err := r.sender(in)
	if err != nil {
		return err
	}
	l := log.Ctx(ctx).With().Str(log.FieldSessionID, in.SessionID).Str(log.FieldSender, sender).Logger()

	if err := r.requireUser(ctx, sender); err != nil {
		l.Warn().Err(err).Msg("JOIN 被丢弃")
		return err
	}

	// 同一连接换了用户名：先按离开处理原用户
	if s, ok := r.presence.SessionByID(in.SessionID); ok && s.Username != sender {
		if _, last, ok := r.presence.Leave(ctx, in.SessionID); ok && last {
			_ = r.leave(ctx, s.Username)
		}
	}

	r.presence.Join(ctx, in.SessionID, sender)
	if err := r.pub.Subscribe(in.SessionID, sender); err != nil {
		l.Warn().Err(err).Msg("订阅私有频道失败")
	}

	msg := models.ChatMessage{
		Type:      models.MessageTypeJoin,
		Sender:    sender,
		Content:   in.Message.Content,
		Color:     in.Message.Color,
		Timestamp: r.opts.Now(),
	}
	r.broadcast(ctx, msg)
	return nil
}

func (r *Router) sendPublic(ctx context.Context, in Inbound) error {
	sender, err := r.sender(in)
	if err != nil {
		return err
	}
	msg := in.Message
	msg.Sender = sender
	msg.Recipient = nil
	msg.ID = 0
	if msg.Type == "" {
		msg.Type = models.MessageTypeChat
	}
	l := log.Ctx(ctx).With().
		Str(log.FieldSessionID, in.SessionID).
		Str(log.FieldSender, sender).
		Str(log.FieldMessageType, string(msg.Type)).
		Logger()

	switch msg.Type {
	case models.MessageTypeChat, models.MessageTypeTyping:
	default:
		err := fmt.Errorf("%w: %s on %s", ErrUnsupportedType, msg.Type, DestSendPublic)
		l.Warn().Err(err).Msg("消息被丢弃")
		return err
	}

	if err := r.requireUser(ctx, sender); err != nil {
		l.Warn().Err(err).Msg("消息被丢弃")
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.opts.Now()
	}

	if msg.Type.Durable() {
		saved, err := r.store.Save(ctx, msg)
		if err != nil {
			l.Error().Err(err).Msg("消息持久化失败，不投递")
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		msg = saved
	}
	r.broadcast(ctx, msg)
	return nil
}

func (r *Router) sendPrivate(ctx context.Context, in Inbound) error {
	sender, err := r.sender(in)
	if err != nil {
		return err
	}
	recipient := strings.TrimSpace(in.Message.RecipientName())
	l := log.Ctx(ctx).With().
		Str(log.FieldSessionID, in.SessionID).
		Str(log.FieldSender, sender).
		Str(log.FieldRecipient, recipient).
		Logger()

	if err := r.requireUser(ctx, sender); err != nil {
		l.Warn().Err(err).Msg("私聊消息被丢弃")
		return err
	}
	if err := r.requireUser(ctx, recipient); err != nil {
		l.Warn().Err(err).Msg("私聊消息被丢弃")
		return err
	}

	msg := in.Message
	msg.ID = 0
	msg.Type = models.MessageTypePrivate
	msg.Sender = sender
	msg.Recipient = lo.ToPtr(recipient)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.opts.Now()
	}

	saved, err := r.store.Save(ctx, msg)
	if err != nil {
		l.Error().Err(err).Msg("私聊消息持久化失败，不投递")
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	// 接收者与发送者各投递一次，互不影响
	for _, to := range []string{recipient, sender} {
		if err := r.pub.SendPrivate(ctx, to, saved); err != nil {
			l.Warn().Err(fmt.Errorf("%w: %v", ErrDeliveryFailure, err)).
				Str(log.FieldUsername, to).
				Int64(log.FieldMessageID, saved.ID).
				Msg("私聊投递失败")
		}
	}
	return nil
}

func (r *Router) leave(ctx context.Context, username string) error {
	if username == "" {
		return fmt.Errorf("%w: empty sender", ErrUnknownUser)
	}
	r.broadcast(ctx, models.ChatMessage{
		Type:      models.MessageTypeLeave,
		Sender:    username,
		Timestamp: r.opts.Now(),
	})
	return nil
}

func (r *Router) broadcast(ctx context.Context, msg models.ChatMessage) {
	if err := r.pub.Broadcast(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(fmt.Errorf("%w: %v", ErrDeliveryFailure, err)).
			Str(log.FieldSender, msg.Sender).
			Str(log.FieldMessageType, string(msg.Type)).
			Msg("广播失败")
	}
}

// sender 确定发送者：payload 未填时取登录用户；RequirePrincipal 下必须登录且一致
func (r *Router) sender(in Inbound) (string, error) {
	sender := strings.TrimSpace(in.Message.Sender)
	if sender == "" && in.Principal != nil {
		sender = in.Principal.Username
	}
	if r.opts.RequirePrincipal {
		if in.Principal == nil {
			return "", fmt.Errorf("%w: %s requires a principal", ErrUnauthenticated, in.Destination)
		}
		if sender != in.Principal.Username {
			return "", fmt.Errorf("%w: sender %q does not match principal", ErrUnauthenticated, sender)
		}
	}
	return sender, nil
}

func (r *Router) requireUser(ctx context.Context, username string) error {
	ok, err := r.presence.UserExists(ctx, username)
	if err != nil {
		return fmt.Errorf("%w: user lookup: %v", ErrStorageFailure, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUser, username)
	}
	return nil
}
