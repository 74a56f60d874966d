package chat

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"echochat/internal/models"
)

type Destination string

const (
	DestJoin        Destination = "join"
	DestSendPublic  Destination = "send-public"
	DestSendPrivate Destination = "send-private"
	// DestLeave 只由断线回收产生，客户端不能发送
	DestLeave Destination = "leave"
)

type Channel string

const (
	ChannelPublic  Channel = "public"
	ChannelPrivate Channel = "private"
	ChannelError   Channel = "error"
)

// InboundFrame 客户端发来的帧
type InboundFrame struct {
	Destination Destination        `json:"destination" validate:"required,oneof=join send-public send-private"`
	Payload     models.ChatMessage `json:"payload"`
}

// OutboundFrame 下发给客户端的帧
type OutboundFrame struct {
	Channel Channel             `json:"channel"`
	Message *models.ChatMessage `json:"message,omitempty"`
	Error   *FrameError         `json:"error,omitempty"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func v() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// DecodeFrame 解析并校验入站帧；maxContent > 0 时限制 content 的字符数
func DecodeFrame(data []byte, maxContent int) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := v().Struct(f); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if maxContent > 0 {
		if err := v().Var(f.Payload.Content, fmt.Sprintf("max=%d", maxContent)); err != nil {
			return InboundFrame{}, fmt.Errorf("%w: content too long", ErrInvalidFrame)
		}
	}
	return f, nil
}

func EncodeMessage(ch Channel, msg models.ChatMessage) ([]byte, error) {
	return json.Marshal(OutboundFrame{Channel: ch, Message: &msg})
}

func EncodeError(err error) ([]byte, error) {
	return json.Marshal(OutboundFrame{
		Channel: ChannelError,
		Error:   &FrameError{Code: ErrorCode(err), Message: err.Error()},
	})
}
