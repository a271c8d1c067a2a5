package retry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue là Queue trong memory, dùng khi không cấu hình Redis và trong test
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]Entry)}
}

func (q *MemoryQueue) Upsert(_ context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[e.Key()] = e
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, entityType, entityID string) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[Key(entityType, entityID)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (q *MemoryQueue) Due(_ context.Context, entityType string, now time.Time, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]Entry, 0)
	for _, e := range q.entries {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		if !e.NextRetryAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].NextRetryAt.Equal(due[k].NextRetryAt) {
			return due[i].Key() < due[k].Key()
		}
		return due[i].NextRetryAt.Before(due[k].NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (q *MemoryQueue) Remove(_ context.Context, entityType, entityID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, Key(entityType, entityID))
	return nil
}

func (q *MemoryQueue) Count(_ context.Context, entityType string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entityType == "" {
		return len(q.entries), nil
	}
	n := 0
	for _, e := range q.entries {
		if e.EntityType == entityType {
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) IDs(_ context.Context, entityType string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0)
	for _, e := range q.entries {
		if e.EntityType == entityType {
			out = append(out, e.EntityID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemoryDeadLetterStore là DeadLetterStore trong memory
type MemoryDeadLetterStore struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

func NewMemoryDeadLetterStore() *MemoryDeadLetterStore {
	return &MemoryDeadLetterStore{}
}

func (s *MemoryDeadLetterStore) Add(_ context.Context, e DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryDeadLetterStore) List(_ context.Context, entityType string, limit int) ([]DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeadLetterEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryDeadLetterStore) IDs(_ context.Context, entityType string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, e := range s.entries {
		if e.EntityType != entityType || seen[e.EntityID] {
			continue
		}
		seen[e.EntityID] = true
		out = append(out, e.EntityID)
	}
	sort.Strings(out)
	return out, nil
}
