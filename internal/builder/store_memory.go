package builder

import (
	"context"
	"encoding/json"
	"sync"
)

// MemorySessionStore 进程内的会话存储，实现SessionStore接口。
// 仅用于测试和本地开发，多实例部署必须使用Redis存储。
// 读写都经过JSON往返，与Redis存储的类型行为保持一致
// （嵌套map变为map[string]interface{}，数字变为float64）。
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemorySessionStore 创建内存会话存储
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string][]byte),
	}
}

// Get 实现SessionStore接口
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*BuilderSession, error) {
	s.mu.RLock()
	raw, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	var session BuilderSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Put 实现SessionStore接口
func (s *MemorySessionStore) Put(ctx context.Context, session *BuilderSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[session.ID] = raw
	s.mu.Unlock()
	return nil
}

// Delete 实现SessionStore接口
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len 返回当前存储的会话数量
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ SessionStore = (*MemorySessionStore)(nil)
