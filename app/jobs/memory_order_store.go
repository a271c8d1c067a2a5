package jobs

import (
	"context"
	"sort"
	"sync"
)

// MemoryOrderStore là OrderStore trong memory (khi chưa cấu hình MongoDB và trong test)
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryOrderStore(orders ...Order) *MemoryOrderStore {
	s := &MemoryOrderStore{orders: make(map[string]Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

// Put thêm hoặc thay thế một order
func (s *MemoryOrderStore) Put(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *MemoryOrderStore) GetByID(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (s *MemoryOrderStore) ListPendingPush(_ context.Context, statuses []OrderStatus, exclude []string, limit int) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[OrderStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]Order, 0)
	for _, o := range s.orders {
		if allowed[o.Status] && !o.IsPushed() && !skip[o.ID] {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryOrderStore) MarkPushed(_ context.Context, id, trackingNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.TrackingNumber = trackingNumber
	s.orders[id] = o
	return nil
}
