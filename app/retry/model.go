package retry

import (
	"context"
	"time"
)

// Entry là một entity đang chờ retry
type Entry struct {
	EntityType   string    `json:"entityType" bson:"entity_type"`
	EntityID     string    `json:"entityId" bson:"entity_id"`
	AttemptCount int       `json:"attemptCount" bson:"attempt_count"`
	NextRetryAt  time.Time `json:"nextRetryAt" bson:"next_retry_at"`
	LastError    string    `json:"lastError" bson:"last_error"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// Key là khóa duy nhất của entry: <entityType>:<entityId>
func (e Entry) Key() string {
	return Key(e.EntityType, e.EntityID)
}

// Key ghép entity type và entity id thành khóa của entry
func Key(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// DeadLetterEntry là entry đã hết lượt retry, chờ operator xử lý
type DeadLetterEntry struct {
	EntityType     string    `json:"entityType" bson:"entity_type"`
	EntityID       string    `json:"entityId" bson:"entity_id"`
	AttemptCount   int       `json:"attemptCount" bson:"attempt_count"`
	LastError      string    `json:"lastError" bson:"last_error"`
	FirstFailedAt  time.Time `json:"firstFailedAt" bson:"first_failed_at"`
	DeadLetteredAt time.Time `json:"deadLetteredAt" bson:"dead_lettered_at"`
}

// Queue lưu các entry đang chờ retry
type Queue interface {
	Upsert(ctx context.Context, e Entry) error
	// Get trả về nil, nil khi không có entry
	Get(ctx context.Context, entityType, entityID string) (*Entry, error)
	// Due trả về các entry có NextRetryAt <= now, NextRetryAt tăng dần.
	// entityType rỗng = mọi loại.
	Due(ctx context.Context, entityType string, now time.Time, limit int) ([]Entry, error)
	Remove(ctx context.Context, entityType, entityID string) error
	Count(ctx context.Context, entityType string) (int, error)
	// IDs trả về entity ID của mọi entry thuộc entityType (không rỗng), kể cả chưa đến hạn
	IDs(ctx context.Context, entityType string) ([]string, error)
}

// DeadLetterStore lưu các entry đã bị chuyển sang dead-letter
type DeadLetterStore interface {
	Add(ctx context.Context, e DeadLetterEntry) error
	// List trả về các entry mới nhất trước; entityType rỗng = mọi loại
	List(ctx context.Context, entityType string, limit int) ([]DeadLetterEntry, error)
	// IDs trả về các entity ID (không trùng) đã bị dead-letter của entityType
	IDs(ctx context.Context, entityType string) ([]string, error)
}
