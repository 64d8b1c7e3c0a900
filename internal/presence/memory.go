package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryUser struct {
	conns    map[string]struct{}
	lastConn string
	lastSeen time.Time
}

// Memory is an in-process Store. Typing deadlines are purged lazily on read.
type Memory struct {
	mu     sync.Mutex
	opts   options
	closed bool
	users  map[string]*memoryUser
	typing map[string]map[string]time.Time // chatID -> userID -> deadline
}

// NewMemory creates an empty in-process store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:   buildOptions(opts),
		users:  make(map[string]*memoryUser),
		typing: make(map[string]map[string]time.Time),
	}
}

func (m *Memory) SetOnline(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}

	u, ok := m.users[userID]
	if !ok {
		u = &memoryUser{conns: make(map[string]struct{})}
		m.users[userID] = u
	}
	wasOnline := len(u.conns) > 0
	u.conns[connID] = struct{}{}
	u.lastConn = connID
	u.lastSeen = m.opts.now()
	return !wasOnline, nil
}

func (m *Memory) SetOffline(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}

	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	if _, held := u.conns[connID]; !held {
		return false, nil
	}
	delete(u.conns, connID)
	if len(u.conns) > 0 {
		return false, nil
	}
	u.lastConn = ""
	u.lastSeen = m.opts.now()
	return true, nil
}

func (m *Memory) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	u, ok := m.users[userID]
	return ok && len(u.conns) > 0, nil
}

func (m *Memory) Get(_ context.Context, userID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, ErrClosed
	}

	rec := Record{UserID: userID, Status: StatusOffline}
	u, ok := m.users[userID]
	if !ok {
		return rec, nil
	}
	rec.Connections = len(u.conns)
	rec.ConnectionID = u.lastConn
	rec.LastSeenAt = u.lastSeen
	if rec.Connections > 0 {
		rec.Status = StatusOnline
	}
	return rec, nil
}

func (m *Memory) OnlineUsers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]string, 0, len(m.users))
	for id, u := range m.users {
		if len(u.conns) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AddTyping(_ context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	set, ok := m.typing[chatID]
	if !ok {
		set = make(map[string]time.Time)
		m.typing[chatID] = set
	}
	set[userID] = m.opts.now().Add(m.opts.typingTTL)
	return nil
}

func (m *Memory) RemoveTyping(_ context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if set, ok := m.typing[chatID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(m.typing, chatID)
		}
	}
	return nil
}

func (m *Memory) ListTyping(_ context.Context, chatID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	set := m.typing[chatID]
	now := m.opts.now()
	out := make([]string, 0, len(set))
	for userID, deadline := range set {
		if !now.Before(deadline) {
			delete(set, userID)
			continue
		}
		out = append(out, userID)
	}
	if len(set) == 0 {
		delete(m.typing, chatID)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) TypingTTL() time.Duration { return m.opts.typingTTL }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*Memory)(nil)
