package storage

import (
	"context"
	"sync"
)

// MemoryStateStore хранит состояние в памяти.
// Используется в тестах и как fallback без внешней БД.
// ВНИМАНИЕ: данные теряются при перезапуске!
type MemoryStateStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStateStore создаёт пустое хранилище в памяти
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string][]byte)}
}

// Load возвращает копию сохранённого состояния
func (s *MemoryStateStore) Load(ctx context.Context, worldID string) ([]byte, bool, error) {
	if err := validateWorldID(worldID); err != nil {
		return nil, false, err
	}
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	data, ok := s.data[worldID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Save сохраняет копию состояния
func (s *MemoryStateStore) Save(ctx context.Context, worldID string, data []byte) error {
	if err := validateWorldID(worldID); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.data[worldID] = append([]byte(nil), data...)
	return nil
}

// Worlds возвращает количество сохранённых миров (для отладки)
func (s *MemoryStateStore) Worlds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close помечает хранилище закрытым
func (s *MemoryStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
