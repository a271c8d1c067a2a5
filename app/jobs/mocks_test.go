package jobs

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) SyncDelta(ctx context.Context, since *time.Time) (SyncResult, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(SyncResult), args.Error(1)
}

func (m *mockSyncer) SyncFull(ctx context.Context) (SyncResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(SyncResult), args.Error(1)
}

func (m *mockSyncer) GetState(ctx context.Context) (SyncState, error) {
	args := m.Called(ctx)
	return args.Get(0).(SyncState), args.Error(1)
}

type mockPusher struct {
	mock.Mock
}

func (m *mockPusher) PushOrder(ctx context.Context, orderID string) (PushResult, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(PushResult), args.Error(1)
}

type mockCustomers struct {
	mock.Mock
}

func (m *mockCustomers) UpsertCustomer(ctx context.Context, userID int64) (PushResult, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(PushResult), args.Error(1)
}

type mockRetry struct {
	mock.Mock
}

func (m *mockRetry) RecordFailure(ctx context.Context, entityType, entityID string, cause error) error {
	args := m.Called(ctx, entityType, entityID, cause)
	return args.Error(0)
}

func (m *mockRetry) ProcessPending(ctx context.Context, entityType string, maxItems int) (RetryBatchResult, error) {
	args := m.Called(ctx, entityType, maxItems)
	return args.Get(0).(RetryBatchResult), args.Error(1)
}

type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) TrackedIDs(ctx context.Context, entityType string) ([]string, error) {
	args := m.Called(ctx, entityType)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// pusherFunc cho phép test điều khiển trực tiếp từng lần push (ví dụ panic)
type pusherFunc func(ctx context.Context, orderID string) (PushResult, error)

func (f pusherFunc) PushOrder(ctx context.Context, orderID string) (PushResult, error) {
	return f(ctx, orderID)
}

var noSince = (*time.Time)(nil)
