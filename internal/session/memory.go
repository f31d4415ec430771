package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore - хранилище в памяти процесса. Сессии, простаивающие дольше ttl, удаляются
// при обращении и в Sweep. ttl <= 0 отключает истечение.
type MemoryStore struct {
	mu    sync.Mutex
	flows map[FlowType]map[string]*Session
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	flows := make(map[FlowType]map[string]*Session, len(Priority))
	for _, f := range Priority {
		flows[f] = make(map[string]*Session)
	}
	return &MemoryStore{flows: flows, ttl: ttl, now: time.Now}
}

func (m *MemoryStore) expired(s *Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.UpdatedAt) > m.ttl
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, f := range Priority {
		s, ok := m.flows[f][userID]
		if !ok {
			continue
		}
		if m.expired(s, now) {
			delete(m.flows[f], userID)
			continue
		}
		return s.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Set(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range Priority {
		if f != s.Flow {
			delete(m.flows[f], s.UserID)
		}
	}
	stored := s.Clone()
	stored.UpdatedAt = m.now()
	if m.flows[s.Flow] == nil {
		m.flows[s.Flow] = make(map[string]*Session)
	}
	m.flows[s.Flow][s.UserID] = stored
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, users := range m.flows {
		delete(users, userID)
	}
	return nil
}

// Sweep удаляет истёкшие сессии и возвращает их число.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, users := range m.flows {
		for id, s := range users {
			if m.expired(s, now) {
				delete(users, id)
				removed++
			}
		}
	}
	return removed
}

// Run вызывает Sweep каждые interval до отмены ctx.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}
