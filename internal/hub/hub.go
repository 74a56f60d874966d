package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"echochat/internal/chat"
	"echochat/internal/log"
	"echochat/internal/models"
)

var ErrClosed = errors.New("hub closed")

// Hub 管理所有 websocket 连接。连接表只由 Run 协程修改，
// 公共广播发给所有连接，私有频道按用户名寻址（支持同一用户多端连接）。
type Hub struct {
	clients    map[*Client]bool            // 所有在线的客户端连接
	sessions   map[string]*Client          // 会话ID ---> 连接
	userMap    map[string]map[*Client]bool // 用户名 ---> 该用户的所有连接
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	broadcast  chan Broadcast

	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Broadcast 待投递的一帧。Session 非空只发给该连接；To 非空为私聊；都为空则广播给所有连接
type Broadcast struct {
	Data    []byte
	To      string
	Session string
}

type subscription struct {
	session string
	user    string
	result  chan error
}

func New() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[string]*Client),
		userMap:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan Broadcast),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.sessions[c.ID] = c
			n := len(h.clients)
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldSessionID, c.ID).Int("clients", n).Msg("连接已注册")
		case c := <-h.unregister:
			h.remove(c)
		case s := <-h.subscribe:
			s.result <- h.doSubscribe(s)
		case b := <-h.broadcast:
			h.deliver(b)
		}
	}
}

func (h *Hub) doSubscribe(s subscription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.sessions[s.session]
	if !ok {
		return errors.New("session not connected")
	}
	if c.user == s.user {
		return nil
	}
	if c.user != "" {
		h.detachUserLocked(c)
	}
	c.user = s.user
	if h.userMap[s.user] == nil {
		h.userMap[s.user] = make(map[*Client]bool)
	}
	h.userMap[s.user][c] = true
	return nil
}

func (h *Hub) deliver(b Broadcast) {
	targets := h.targets(b)
	if b.To != "" && len(targets) == 0 {
		l := log.L()
		l.Debug().Str(log.FieldRecipient, b.To).Msg("私有频道没有订阅者")
		return
	}
	var failed []*Client
	for _, c := range targets {
		select {
		case c.send <- b.Data:
		default:
			failed = append(failed, c)
		}
	}
	// 发送队列已满的连接直接摘除，不影响其他连接
	for _, c := range failed {
		l := log.L()
		l.Warn().
			Err(chat.ErrDeliveryFailure).
			Str(log.FieldSessionID, c.ID).
			Str(log.FieldUsername, c.user).
			Msg("发送队列已满，断开连接")
		h.remove(c)
	}
}

func (h *Hub) targets(b Broadcast) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch {
	case b.Session != "":
		if c, ok := h.sessions[b.Session]; ok {
			return []*Client{c}
		}
		return nil
	case b.To != "":
		out := make([]*Client, 0, len(h.userMap[b.To]))
		for c := range h.userMap[b.To] {
			out = append(out, c)
		}
		return out
	default:
		out := make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			out = append(out, c)
		}
		return out
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if h.sessions[c.ID] == c {
		delete(h.sessions, c.ID)
	}
	h.detachUserLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	l := log.L()
	l.Debug().Str(log.FieldSessionID, c.ID).Int("clients", n).Msg("连接已注销")
}

func (h *Hub) detachUserLocked(c *Client) {
	if set, ok := h.userMap[c.user]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.userMap, c.user)
		}
	}
}

func (h *Hub) shutdownClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
	l := log.L()
	l.Info().Int("clients", len(clients)).Msg("已关闭所有连接")
}

// Register 登记新连接；Hub 已关闭时返回 ErrClosed
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Go 启动一个随 Hub 关闭而等待的协程（连接的读写循环）
func (h *Hub) Go(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

func (h *Hub) Subscribe(sessionID, username string) error {
	s := subscription{session: sessionID, user: username, result: make(chan error, 1)}
	select {
	case h.subscribe <- s:
		return <-s.result
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) Broadcast(ctx context.Context, msg models.ChatMessage) error {
	data, err := chat.EncodeMessage(chat.ChannelPublic, msg)
	if err != nil {
		return err
	}
	return h.enqueue(ctx, Broadcast{Data: data})
}

func (h *Hub) SendPrivate(ctx context.Context, username string, msg models.ChatMessage) error {
	data, err := chat.EncodeMessage(chat.ChannelPrivate, msg)
	if err != nil {
		return err
	}
	return h.enqueue(ctx, Broadcast{Data: data, To: username})
}

// SendToSession 只发给某个连接（错误帧）
func (h *Hub) SendToSession(ctx context.Context, sessionID string, data []byte) error {
	return h.enqueue(ctx, Broadcast{Data: data, Session: sessionID})
}

func (h *Hub) enqueue(ctx context.Context, b Broadcast) error {
	select {
	case h.broadcast <- b:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscriberCount(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userMap[username])
}

// Shutdown 关闭所有连接并等待读写协程退出，超时返回 context.DeadlineExceeded
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
