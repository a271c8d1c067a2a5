package jobs

import (
	"context"
	"errors"
	"testing"

	"agent_erpsync/app/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStockSyncSuccess(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{ProcessedCount: 12}, nil).Once()

	r := NewStockSyncJob(scheduler.JobStockSync, svc).Execute(context.Background())

	assert.Equal(t, scheduler.OutcomeSucceeded, r.Outcome)
	assert.Equal(t, 12, r.ProcessedCount)
	assert.Equal(t, 12, r.SuccessCount)
	assert.Zero(t, r.ErrorCount)
	svc.AssertExpectations(t)
}

func TestStockSyncItemErrorsFailTheRun(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{
		ProcessedCount: 5,
		Errors: []SyncError{
			{EntityID: "SKU-1", Message: "kho không tồn tại"},
			{EntityID: "SKU-2", Message: "số lượng âm"},
		},
	}, nil)

	r := NewStockSyncJob(scheduler.JobStockSync, svc).Execute(context.Background())

	assert.Equal(t, scheduler.OutcomeFailed, r.Outcome)
	assert.True(t, r.Retryable)
	assert.Equal(t, 5, r.ProcessedCount)
	assert.Equal(t, 3, r.SuccessCount)
	assert.Equal(t, 2, r.ErrorCount)
	assert.Contains(t, r.Errors, "SKU-1: kho không tồn tại")
}

func TestStockSyncServiceErrorIsRetryableFailure(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{}, errors.New("ERP 502"))

	r := NewStockSyncJob(scheduler.JobStockSync, svc).Execute(context.Background())

	assert.Equal(t, scheduler.OutcomeFailed, r.Outcome)
	assert.False(t, r.Success)
	assert.True(t, r.Retryable)
	assert.Contains(t, r.Message, "ERP 502")
}

func TestStockSyncCancelledDuringCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).
		Run(func(mock.Arguments) { cancel() }).
		Return(SyncResult{}, context.Canceled)

	r := NewStockSyncJob(scheduler.JobStockSync, svc).Execute(ctx)

	assert.True(t, r.Cancelled())
	assert.False(t, r.Success)
	assert.False(t, r.Retryable)
}

func TestStockSyncForSkusReportsRequestedCount(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{ProcessedCount: 40}, nil).Once()

	r := NewStockSyncJob(scheduler.JobStockSync, svc).ExecuteForSkus(context.Background(), []string{"A", "B"})

	require.True(t, r.Success)
	assert.Equal(t, 2, r.ProcessedCount)
	assert.Equal(t, 2, r.SuccessCount)
	assert.Equal(t, 2, r.Metadata["requestedCount"])
	assert.Equal(t, 40, r.Metadata["syncedCount"])
	assert.Equal(t, "bulk_delta_approximation", r.Metadata["coverage"])
	svc.AssertExpectations(t)
}

func TestStockSyncForEmptySkusRunsDelta(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{ProcessedCount: 3}, nil).Once()

	r := NewStockSyncJob(scheduler.JobStockSync, svc).ExecuteForSkus(context.Background(), nil)

	assert.Equal(t, 3, r.ProcessedCount)
	assert.NotContains(t, r.Metadata, "coverage")
}

func TestStockSyncForSkusCapsErrorCount(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{
		ProcessedCount: 30,
		Errors: []SyncError{
			{EntityID: "X-1", Message: "depo yok"},
			{EntityID: "X-2", Message: "depo yok"},
			{EntityID: "X-3", Message: "depo yok"},
		},
	}, nil).Once()

	r := NewStockSyncJob(scheduler.JobStockSync, svc).ExecuteForSkus(context.Background(), []string{"A", "B"})

	assert.Equal(t, scheduler.OutcomeFailed, r.Outcome)
	assert.Equal(t, 2, r.ProcessedCount)
	assert.Equal(t, 0, r.SuccessCount)
	assert.Equal(t, 2, r.ErrorCount)
	assert.Len(t, r.Errors, 3)
	assert.Equal(t, 2, r.Metadata["requestedCount"])
}
