//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=../mocks/mock_publisher.go -package=mocks
package chat

import (
	"context"

	"echochat/internal/models"
)

// Publisher 出站投递：一个公共广播频道，加上按用户名寻址的私有频道
type Publisher interface {
	// Subscribe 让会话订阅 username 的私有频道
	Subscribe(sessionID, username string) error
	Broadcast(ctx context.Context, msg models.ChatMessage) error
	SendPrivate(ctx context.Context, username string, msg models.ChatMessage) error
}
