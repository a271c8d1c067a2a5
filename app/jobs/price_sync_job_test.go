package jobs

import (
	"context"
	"testing"

	"agent_erpsync/app/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestPriceSyncForProducts(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{
		ProcessedCount: 9,
		Errors:         []SyncError{{EntityID: "P-3", Message: "giá không hợp lệ"}},
	}, nil)

	job := NewPriceSyncJob(scheduler.JobPriceSync, svc)
	r := job.ExecuteForProducts(context.Background(), []string{"P-1", "P-2", "P-3"})

	assert.Equal(t, scheduler.OutcomeFailed, r.Outcome)
	assert.Equal(t, 3, r.ProcessedCount)
	assert.Equal(t, 2, r.SuccessCount)
	assert.Equal(t, 1, r.ErrorCount)
	assert.Equal(t, scheduler.JobPriceSync, job.GetName())
}

func TestPriceSyncDelta(t *testing.T) {
	svc := &mockSyncer{}
	svc.On("SyncDelta", mock.Anything, noSince).Return(SyncResult{ProcessedCount: 7}, nil)

	r := NewPriceSyncJob(scheduler.JobPriceSync, svc).Execute(context.Background())

	assert.True(t, r.Success)
	assert.Equal(t, 7, r.SuccessCount)
}
