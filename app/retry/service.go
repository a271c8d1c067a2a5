package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agent_erpsync/app/jobs"
	"agent_erpsync/utility/logger"

	"github.com/sirupsen/logrus"
)

// ErrNoHandler trả về khi chưa đăng ký handler cho entity type
var ErrNoHandler = errors.New("no retry handler registered")

// Handler thực hiện lại thao tác cho một entity. Lỗi bọc jobs.ErrNotRetryable
// làm entry bị chuyển thẳng sang dead-letter.
type Handler func(ctx context.Context, entityID string) error

// Service là retry service dùng chung, là nơi duy nhất thay đổi trạng thái retry của entity.
// Service implement jobs.RetryProcessor và jobs.RetryRecorder.
type Service struct {
	queue  Queue
	dead   DeadLetterStore
	policy Policy
	now    func() time.Time
	log    *logrus.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	// entryMu tuần tự hóa RecordFailure/ProcessPending cho cùng một entry
	entryMu sync.Mutex
}

var (
	_ jobs.RetryProcessor = (*Service)(nil)
	_ jobs.RetryRecorder  = (*Service)(nil)
	_ jobs.RetryTracker   = (*Service)(nil)
)

// NewService tạo retry service. queue và dead không được nil.
func NewService(queue Queue, dead DeadLetterStore, policy Policy) *Service {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	return &Service{
		queue:    queue,
		dead:     dead,
		policy:   policy,
		now:      time.Now,
		log:      logger.GetLogger("retry"),
		handlers: make(map[string]Handler),
	}
}

// Policy trả về policy đang dùng
func (s *Service) Policy() Policy { return s.policy }

// Register đăng ký handler retry cho một entity type
func (s *Service) Register(entityType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[entityType] = h
}

func (s *Service) handler(entityType string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[entityType]
	return h, ok
}

// RecordFailure ghi nhận một lần thất bại.
// Entry chưa có thì tạo mới (AttemptCount=1); đã có thì tính là thêm một lần thất bại.
func (s *Service) RecordFailure(ctx context.Context, entityType, entityID string, cause error) error {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()

	existing, err := s.queue.Get(ctx, entityType, entityID)
	if err != nil {
		return fmt.Errorf("đọc retry entry %s: %w", Key(entityType, entityID), err)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if existing == nil {
		now := s.now()
		e := Entry{
			EntityType:   entityType,
			EntityID:     entityID,
			AttemptCount: 1,
			NextRetryAt:  now.Add(s.policy.Delay(1)),
			LastError:    msg,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.queue.Upsert(ctx, e); err != nil {
			return fmt.Errorf("tạo retry entry %s: %w", e.Key(), err)
		}
		s.log.WithFields(logrus.Fields{
			"entity_type":   entityType,
			"entity_id":     entityID,
			"next_retry_at": e.NextRetryAt,
		}).Info("🔁 Đã tạo retry entry")
		return nil
	}
	_, err = s.fail(ctx, *existing, msg)
	return err
}

// fail tăng AttemptCount; trả về true nếu entry bị chuyển sang dead-letter
func (s *Service) fail(ctx context.Context, e Entry, msg string) (bool, error) {
	now := s.now()
	e.AttemptCount++
	e.LastError = msg
	e.UpdatedAt = now

	if s.policy.ShouldDeadLetter(e.AttemptCount) {
		return true, s.deadLetter(ctx, e)
	}
	e.NextRetryAt = now.Add(s.policy.Delay(e.AttemptCount))
	if err := s.queue.Upsert(ctx, e); err != nil {
		return false, fmt.Errorf("lên lịch lại retry entry %s: %w", e.Key(), err)
	}
	s.log.WithFields(logrus.Fields{
		"entity_type":   e.EntityType,
		"entity_id":     e.EntityID,
		"attempt":       e.AttemptCount,
		"next_retry_at": e.NextRetryAt,
	}).Warn("🔁 Retry thất bại, đã lên lịch lại")
	return false, nil
}

func (s *Service) deadLetter(ctx context.Context, e Entry) error {
	dl := DeadLetterEntry{
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		AttemptCount:   e.AttemptCount,
		LastError:      e.LastError,
		FirstFailedAt:  e.CreatedAt,
		DeadLetteredAt: s.now(),
	}
	if err := s.dead.Add(ctx, dl); err != nil {
		return fmt.Errorf("ghi dead-letter %s: %w", e.Key(), err)
	}
	if err := s.queue.Remove(ctx, e.EntityType, e.EntityID); err != nil {
		return fmt.Errorf("xóa retry entry %s: %w", e.Key(), err)
	}
	s.log.WithFields(logrus.Fields{
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"attempts":    e.AttemptCount,
		"last_error":  e.LastError,
	}).Error("☠️ Entry đã hết lượt retry, chuyển sang dead-letter")
	return nil
}

// ProcessPending xử lý tối đa maxItems entry đến hạn, NextRetryAt cũ nhất trước.
// Lỗi của một entry không dừng batch. Entry không có handler vẫn nằm trong hàng đợi.
func (s *Service) ProcessPending(ctx context.Context, entityType string, maxItems int) (jobs.RetryBatchResult, error) {
	res := jobs.RetryBatchResult{Errors: []string{}}

	due, err := s.queue.Due(ctx, entityType, s.now(), maxItems)
	if err != nil {
		return res, fmt.Errorf("đọc retry entry đến hạn: %w", err)
	}

	for _, e := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		h, ok := s.handler(e.EntityType)
		if !ok {
			res.TotalProcessed++
			res.FailedCount++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.Key(), ErrNoHandler))
			continue
		}

		herr := callHandler(ctx, h, e.EntityID)
		if herr != nil && ctx.Err() != nil {
			// Bị hủy giữa chừng: entry giữ nguyên, không tính là một lần thất bại
			return res, ctx.Err()
		}

		res.TotalProcessed++
		if herr == nil {
			if err := s.queue.Remove(ctx, e.EntityType, e.EntityID); err != nil {
				res.FailedCount++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.Key(), err))
				continue
			}
			res.SuccessCount++
			s.log.WithFields(logrus.Fields{
				"entity_type": e.EntityType,
				"entity_id":   e.EntityID,
				"attempt":     e.AttemptCount,
			}).Info("✅ Retry thành công")
			continue
		}

		res.FailedCount++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.Key(), herr))

		var dead bool
		s.entryMu.Lock()
		if errors.Is(herr, jobs.ErrNotRetryable) {
			e.LastError = herr.Error()
			e.AttemptCount++
			err = s.deadLetter(ctx, e)
			dead = err == nil
		} else {
			dead, err = s.fail(ctx, e, herr.Error())
		}
		s.entryMu.Unlock()
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
		if dead {
			res.DeadLetterCount++
		}
	}
	return res, nil
}

// callHandler chạy handler và chuyển panic thành lỗi
func callHandler(ctx context.Context, h Handler, entityID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, entityID)
}

// DeadLetters trả về các entry dead-letter mới nhất trước
func (s *Service) DeadLetters(ctx context.Context, entityType string, limit int) ([]DeadLetterEntry, error) {
	return s.dead.List(ctx, entityType, limit)
}

// TrackedIDs trả về các entity ID của entityType đang chờ retry hoặc đã dead-letter.
// Các entity này chỉ được xử lý bởi ProcessPending hoặc operator.
func (s *Service) TrackedIDs(ctx context.Context, entityType string) ([]string, error) {
	pending, err := s.queue.IDs(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("đọc retry entry của %s: %w", entityType, err)
	}
	dead, err := s.dead.IDs(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("đọc dead-letter của %s: %w", entityType, err)
	}
	return append(pending, dead...), nil
}

// Pending trả về số entry đang chờ retry
func (s *Service) Pending(ctx context.Context, entityType string) (int, error) {
	return s.queue.Count(ctx, entityType)
}
