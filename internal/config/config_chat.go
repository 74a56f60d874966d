package config

import (
	"strings"
	"time"
)

type Chat struct {
	HistoryLimit     int  `yaml:"history_limit" json:"history_limit" env:"CHAT_HISTORY_LIMIT"`
	MaxContentLength int  `yaml:"max_content_length" json:"max_content_length" env:"CHAT_MAX_CONTENT_LENGTH"`
	RequirePrincipal bool `yaml:"require_principal" json:"require_principal" env:"CHAT_REQUIRE_PRINCIPAL"`
	RejectFrames     bool `yaml:"reject_frames" json:"reject_frames" env:"CHAT_REJECT_FRAMES"`
}

func (c Chat) HistoryLimitOrDefault() int {
	if c.HistoryLimit <= 0 {
		return 100
	}
	return c.HistoryLimit
}

func (c Chat) MaxContentLengthOrDefault() int {
	if c.MaxContentLength <= 0 {
		return 4000
	}
	return c.MaxContentLength
}

type WebSocket struct {
	PingInterval   string `yaml:"ping_interval" json:"ping_interval"`
	PongWait       string `yaml:"pong_wait" json:"pong_wait"`
	WriteWait      string `yaml:"write_wait" json:"write_wait"`
	MaxMessageSize int    `yaml:"max_message_size" json:"max_message_size" env:"WS_MAX_MESSAGE_SIZE"`
	SendBuffer     int    `yaml:"send_buffer" json:"send_buffer"`
}

// WebSocketSettings 运行时使用的 websocket 参数
type WebSocketSettings struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (w WebSocket) ToSettings() WebSocketSettings {
	s := WebSocketSettings{
		PongWait:       parseDuration(w.PongWait, 60*time.Second),
		WriteWait:      parseDuration(w.WriteWait, 10*time.Second),
		MaxMessageSize: int64(w.MaxMessageSize),
		SendBuffer:     w.SendBuffer,
	}
	// 心跳周期必须小于 pongWait，否则对端会被误判为断开
	s.PingInterval = parseDuration(w.PingInterval, (s.PongWait*9)/10)
	if s.PingInterval >= s.PongWait {
		s.PingInterval = (s.PongWait * 9) / 10
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 1024 * 8
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 256
	}
	return s
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if s := strings.TrimSpace(raw); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}
