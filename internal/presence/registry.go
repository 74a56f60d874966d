package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"echochat/internal/log"
	"echochat/internal/models"
	"echochat/internal/store"
)

// Session 一条已完成 JOIN 的连接
type Session struct {
	ID          string
	Username    string
	ConnectedAt time.Time
}

// Registry 进程内在线状态表。
// 同一用户的状态变更由该用户的 key 锁串行化，不同用户互不阻塞；
// records/sessions 只在短临界区内由 mu 保护，不在持有 mu 时做任何 I/O。
type Registry struct {
	dir store.UserDirectory
	now func() time.Time

	keyLocks sync.Map // username -> *sync.Mutex

	mu       sync.RWMutex
	records  map[string]bool
	sessions map[string]Session
	counts   map[string]int
}

func NewRegistry(dir store.UserDirectory) *Registry {
	return &Registry{
		dir:      dir,
		now:      time.Now,
		records:  make(map[string]bool),
		sessions: make(map[string]Session),
		counts:   make(map[string]int),
	}
}

func (r *Registry) lock(username string) func() {
	v, _ := r.keyLocks.LoadOrStore(username, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// UserExists 判断用户是否注册过，与在线状态无关
func (r *Registry) UserExists(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	return r.dir.Exists(ctx, username)
}

// SetOnline 更新在线状态并回写到账号表。回写失败只记日志，内存状态照常更新。
func (r *Registry) SetOnline(ctx context.Context, username string, online bool) {
	unlock := r.lock(username)
	defer unlock()
	r.setOnlineLocked(ctx, username, online)
}

func (r *Registry) setOnlineLocked(ctx context.Context, username string, online bool) {
	if err := r.dir.SetOnlineStatus(ctx, username, online); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUsername, username).Bool("online", online).Msg("回写在线状态失败")
	}
	r.mu.Lock()
	r.records[username] = online
	r.mu.Unlock()
}

func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[username]
}

// Join 绑定会话并把用户置为在线。
// 会话原先绑定的是另一个用户时，先按 Leave 处理原用户。
func (r *Registry) Join(ctx context.Context, sessionID, username string) Session {
	if old, ok := r.SessionByID(sessionID); ok && old.Username != username {
		r.Leave(ctx, sessionID)
	}
	unlock := r.lock(username)
	defer unlock()
	s := r.bindSession(sessionID, username)
	r.setOnlineLocked(ctx, username, true)
	return s
}

// Leave 解绑会话；若这是该用户最后一个会话则置为离线并返回 last=true。
// 会话不存在（未 JOIN 或已处理过）时 ok=false。
func (r *Registry) Leave(ctx context.Context, sessionID string) (s Session, last bool, ok bool) {
	s, ok = r.SessionByID(sessionID)
	if !ok {
		return Session{}, false, false
	}
	unlock := r.lock(s.Username)
	defer unlock()

	s, remaining, ok := r.unbindSession(sessionID)
	if !ok {
		return Session{}, false, false
	}
	if remaining > 0 {
		return s, false, true
	}
	r.setOnlineLocked(ctx, s.Username, false)
	return s, true, true
}

// bindSession 记录 sessionID -> username，同一会话重复绑定同一用户不重复计数。
// 调用方持有 username 的 key 锁。
func (r *Registry) bindSession(sessionID, username string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sessionID]; ok {
		if old.Username == username {
			return old
		}
		r.decLocked(old.Username)
	}
	s := Session{ID: sessionID, Username: username, ConnectedAt: r.now()}
	r.sessions[sessionID] = s
	r.counts[username]++
	return s
}

// unbindSession 删除会话并返回该用户剩余的会话数，重复调用返回 ok=false
func (r *Registry) unbindSession(sessionID string) (Session, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, 0, false
	}
	delete(r.sessions, sessionID)
	return s, r.decLocked(s.Username), true
}

func (r *Registry) decLocked(username string) int {
	n := r.counts[username] - 1
	if n <= 0 {
		delete(r.counts, username)
		return 0
	}
	r.counts[username] = n
	return n
}

func (r *Registry) SessionByID(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *Registry) SessionCount(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[username]
}

// OnlineUsernames 当前在线用户名快照，按字典序
func (r *Registry) OnlineUsernames() []string {
	r.mu.RLock()
	names := lo.Keys(lo.PickBy(r.records, func(_ string, online bool) bool { return online }))
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ListOnlineUsers 返回 username -> 用户摘要；账号表里已不存在的用户不返回
func (r *Registry) ListOnlineUsers(ctx context.Context) (map[string]models.User, error) {
	names := r.OnlineUsernames()
	if len(names) == 0 {
		return map[string]models.User{}, nil
	}
	users, err := r.dir.FindByUsernames(ctx, names)
	if err != nil {
		return nil, err
	}
	out := lo.SliceToMap(users, func(u models.User) (string, models.User) {
		u.IsOnline = true
		return u.Username, u
	})
	return out, nil
}

// ResetStale 启动时调用：进程刚起来时没有任何会话，账号表中残留的在线标记都已过期
func (r *Registry) ResetStale(ctx context.Context) (int, error) {
	names, err := r.dir.ListOnline(ctx)
	if err != nil {
		return 0, err
	}
	for _, n := range names {
		r.SetOnline(ctx, n, false)
	}
	return len(names), nil
}
