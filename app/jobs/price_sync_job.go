package jobs

import (
	"context"

	"agent_erpsync/app/scheduler"
)

// PriceSyncJob là job đồng bộ giá thay đổi từ ERP (delta sync)
type PriceSyncJob struct {
	*scheduler.BaseJob
	price DeltaSyncer
}

// NewPriceSyncJob tạo một instance mới của PriceSyncJob
func NewPriceSyncJob(name string, price DeltaSyncer) *PriceSyncJob {
	job := &PriceSyncJob{
		BaseJob: scheduler.NewBaseJob(name),
		price:   price,
	}
	job.BaseJob.SetExecuteInternalCallback(job.ExecuteInternal)
	return job
}

func (j *PriceSyncJob) ExecuteInternal(ctx context.Context) *scheduler.JobResult {
	return runDeltaSync(ctx, j.GetName(), j.price, nil)
}

// ExecuteForProducts chạy sync giới hạn theo danh sách product ID (bulk delta, xem runForIdentifiers)
func (j *PriceSyncJob) ExecuteForProducts(ctx context.Context, productIDs []string) *scheduler.JobResult {
	if len(productIDs) == 0 {
		return j.Execute(ctx)
	}
	return j.Run(ctx, func(ctx context.Context) *scheduler.JobResult {
		return runForIdentifiers(ctx, j.GetName(), j.price, productIDs)
	})
}
