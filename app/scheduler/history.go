package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrExecutionNotFound trả về khi không tìm thấy execution theo ID
var ErrExecutionNotFound = errors.New("execution not found")

// Trigger cho biết execution được kích hoạt bởi cron hay bởi operator
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// ExecutionState là vòng đời của một execution
type ExecutionState string

const (
	ExecutionQueued    ExecutionState = "queued"
	ExecutionRunning   ExecutionState = "running"
	ExecutionSucceeded ExecutionState = "succeeded"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionCancelled ExecutionState = "cancelled"
)

// Terminal cho biết execution đã kết thúc chưa
func (s ExecutionState) Terminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed || s == ExecutionCancelled
}

// stateFromOutcome chuyển Outcome của JobResult sang ExecutionState
func stateFromOutcome(o Outcome) ExecutionState {
	switch o {
	case OutcomeSucceeded:
		return ExecutionSucceeded
	case OutcomeCancelled:
		return ExecutionCancelled
	default:
		return ExecutionFailed
	}
}

// ExecutionRecord lưu thông tin về từng lần chạy job
type ExecutionRecord struct {
	ID          string         `json:"id" bson:"_id"`
	JobName     string         `json:"jobName" bson:"job_name"`
	Queue       Queue          `json:"queue" bson:"queue"`
	Trigger     Trigger        `json:"trigger" bson:"trigger"`
	Operation   string         `json:"operation,omitempty" bson:"operation,omitempty"`
	State       ExecutionState `json:"state" bson:"state"`
	EnqueuedAt  time.Time      `json:"enqueuedAt" bson:"enqueued_at"`
	StartedAt   *time.Time     `json:"startedAt,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
	Result      *JobResult     `json:"result,omitempty" bson:"result,omitempty"`
}

// ExecutionStore lưu lịch sử execution để báo cáo lastExecution/lastStatus
type ExecutionStore interface {
	Save(ctx context.Context, rec ExecutionRecord) error
	Get(ctx context.Context, id string) (*ExecutionRecord, error)
	// Last trả về execution gần nhất của job theo EnqueuedAt, nil nếu chưa có
	Last(ctx context.Context, jobName string) (*ExecutionRecord, error)
}

// MemoryExecutionStore giữ lịch sử trong memory, tối đa perJob bản ghi cho mỗi job
type MemoryExecutionStore struct {
	mu     sync.RWMutex
	perJob int
	byID   map[string]ExecutionRecord
	byJob  map[string][]string
}

// NewMemoryExecutionStore tạo store; perJob <= 0 dùng mặc định 100
func NewMemoryExecutionStore(perJob int) *MemoryExecutionStore {
	if perJob <= 0 {
		perJob = 100
	}
	return &MemoryExecutionStore{
		perJob: perJob,
		byID:   make(map[string]ExecutionRecord),
		byJob:  make(map[string][]string),
	}
}

func (s *MemoryExecutionStore) Save(_ context.Context, rec ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.ID]; !exists {
		ids := append(s.byJob[rec.JobName], rec.ID)
		if len(ids) > s.perJob {
			for _, old := range ids[:len(ids)-s.perJob] {
				delete(s.byID, old)
			}
			ids = ids[len(ids)-s.perJob:]
		}
		s.byJob[rec.JobName] = ids
	}
	s.byID[rec.ID] = rec
	return nil
}

func (s *MemoryExecutionStore) Get(_ context.Context, id string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return &rec, nil
}

func (s *MemoryExecutionStore) Last(_ context.Context, jobName string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byJob[jobName]
	if len(ids) == 0 {
		return nil, nil
	}
	recs := make([]ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, s.byID[id])
	}
	sort.SliceStable(recs, func(i, k int) bool { return recs[i].EnqueuedAt.Before(recs[k].EnqueuedAt) })
	last := recs[len(recs)-1]
	return &last, nil
}
