package jobs

import (
	"context"

	"agent_erpsync/app/scheduler"
)

// StockSyncJob là job đồng bộ tồn kho thay đổi từ ERP (delta sync).
// Job dùng watermark nội bộ của service, không tự lưu thời điểm sync.
type StockSyncJob struct {
	*scheduler.BaseJob
	stock DeltaSyncer
}

// NewStockSyncJob tạo một instance mới của StockSyncJob.
// Tham số:
// - name: Tên định danh của job
// - stock: Service đồng bộ tồn kho
func NewStockSyncJob(name string, stock DeltaSyncer) *StockSyncJob {
	job := &StockSyncJob{
		BaseJob: scheduler.NewBaseJob(name),
		stock:   stock,
	}
	job.BaseJob.SetExecuteInternalCallback(job.ExecuteInternal)
	return job
}

// ExecuteInternal gọi SyncDelta(nil) và chuyển lỗi từng item sang kết quả job
func (j *StockSyncJob) ExecuteInternal(ctx context.Context) *scheduler.JobResult {
	return runDeltaSync(ctx, j.GetName(), j.stock, nil)
}

// ExecuteForSkus chạy sync giới hạn theo danh sách SKU.
// Danh sách rỗng thì chạy như Execute.
func (j *StockSyncJob) ExecuteForSkus(ctx context.Context, skus []string) *scheduler.JobResult {
	if len(skus) == 0 {
		return j.Execute(ctx)
	}
	return j.Run(ctx, func(ctx context.Context) *scheduler.JobResult {
		return runForIdentifiers(ctx, j.GetName(), j.stock, skus)
	})
}
