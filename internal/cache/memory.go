package cache

import (
	"container/list"
	"context"
	"sync"
)

type memoryEntry struct {
	key   string
	value []byte
}

// MemoryStore is an in-process Store bounded by total value bytes. The least
// recently used entries go first when the bound is exceeded.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	order    *list.List
	entries  map[string]*list.Element
}

func NewMemoryStore(capacity int64) *MemoryStore {
	return &MemoryStore{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	s.order.MoveToFront(elem)
	value := elem.Value.(*memoryEntry).value
	return append([]byte(nil), value...), true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := append([]byte(nil), value...)
	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		s.size += int64(len(stored)) - int64(len(entry.value))
		entry.value = stored
		s.order.MoveToFront(elem)
	} else {
		s.entries[key] = s.order.PushFront(&memoryEntry{key: key, value: stored})
		s.size += int64(len(stored))
	}

	for s.capacity > 0 && s.size > s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		entry := s.order.Remove(oldest).(*memoryEntry)
		delete(s.entries, entry.key)
		s.size -= int64(len(entry.value))
	}
	return nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
