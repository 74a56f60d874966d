package hub

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"echochat/internal/config"
	"echochat/internal/log"
)

type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // 发送队列，由 Hub 写入，WritePump 读取
	user string      // 订阅的私有频道，只由 Hub 的 Run 协程修改
	cfg  config.WebSocketSettings
}

func NewClient(id string, h *Hub, conn *websocket.Conn, cfg config.WebSocketSettings) *Client {
	return &Client{
		ID:   id,
		hub:  h,
		conn: conn,
		send: make(chan []byte, cfg.SendBuffer),
		cfg:  cfg,
	}
}

// ReadPump 按接收顺序逐帧交给 handler 处理；连接断开后从 Hub 注销
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadError(err error) {
	l := log.L().With().Str(log.FieldSessionID, c.ID).Logger()
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		l.Warn().Int64("limit", c.cfg.MaxMessageSize).Msg("消息超过最大长度，断开连接")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		l.Warn().Err(err).Msg("连接异常关闭")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		l.Debug().Err(err).Msg("连接已关闭")
	default:
		l.Debug().Err(err).Msg("读取失败")
	}
}
