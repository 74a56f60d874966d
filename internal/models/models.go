package models

import (
	"time"
)

type MessageType string

const (
	MessageTypeChat    MessageType = "CHAT"
	MessageTypePrivate MessageType = "PRIVATE_MESSAGE"
	MessageTypeJoin    MessageType = "JOIN"
	MessageTypeLeave   MessageType = "LEAVE"
	MessageTypeTyping  MessageType = "TYPING"
)

// Durable 只有会话内容需要落库，JOIN/LEAVE/TYPING 只广播
func (t MessageType) Durable() bool {
	return t == MessageTypeChat || t == MessageTypePrivate
}

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeChat, MessageTypePrivate, MessageTypeJoin, MessageTypeLeave, MessageTypeTyping:
		return true
	}
	return false
}

// Users
// 使用字符串 UUID 作为主键；IsOnline 由在线状态注册表回写
type User struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        *string   `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	IsOnline     bool      `gorm:"not null;default:false;index" json:"is_online"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// 聊天消息，既是线上传输单元也是持久化单元
// 复合索引 (type, sender, recipient, timestamp) 服务于私聊历史查询
type ChatMessage struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id,omitempty"`
	Type      MessageType `gorm:"type:varchar(32);not null;index:idx_msg_pair,priority:1" json:"type" validate:"omitempty,oneof=CHAT PRIVATE_MESSAGE JOIN LEAVE TYPING"`
	Sender    string      `gorm:"size:64;not null;index:idx_msg_pair,priority:2" json:"sender" validate:"max=64"`
	Recipient *string     `gorm:"size:64;index:idx_msg_pair,priority:3" json:"recipient,omitempty" validate:"omitempty,max=64"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	Color     *string     `gorm:"size:16" json:"color,omitempty" validate:"omitempty,max=16"`
	Timestamp time.Time   `gorm:"precision:6;not null;index:idx_msg_pair,priority:4" json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// RecipientName 返回接收者用户名，未设置时为空串
func (m ChatMessage) RecipientName() string {
	if m.Recipient == nil {
		return ""
	}
	return *m.Recipient
}
