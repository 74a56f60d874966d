//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"

	"echochat/internal/models"
)

var ErrDuplicateUser = errors.New("user already exists")

// MessageStore 持久化 CHAT / PRIVATE_MESSAGE 消息
type MessageStore interface {
	// Save 写入消息并返回带持久化 ID 的副本
	Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	// QueryPrivateHistory 返回 a、b 之间的私聊消息，按时间升序；limit > 0 时只取最近的 limit 条
	QueryPrivateHistory(ctx context.Context, a, b string, limit int) ([]models.ChatMessage, error)
}

// UserDirectory 账号集合，查不到用户时返回 found=false 而不是错误
type UserDirectory interface {
	Exists(ctx context.Context, username string) (bool, error)
	SetOnlineStatus(ctx context.Context, username string, online bool) error
	ListOnline(ctx context.Context) ([]string, error)
	FindByUsername(ctx context.Context, username string) (models.User, bool, error)
	FindByUsernames(ctx context.Context, usernames []string) ([]models.User, error)
	Create(ctx context.Context, u *models.User) error
}
