package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"agent_erpsync/app/scheduler"
)

// File này chứa các hàm helper chung được sử dụng bởi nhiều job.

// isCancellation cho biết lỗi có phải do context bị hủy hoặc hết hạn không
func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return err != nil && ctx.Err() != nil
}

// applySyncResult chép số đếm và lỗi của SyncResult vào JobResult.
// SuccessCount không bao giờ âm khi service báo nhiều lỗi hơn số đã xử lý.
func applySyncResult(r *scheduler.JobResult, sr SyncResult) {
	r.ProcessedCount += sr.ProcessedCount
	success := sr.ProcessedCount - len(sr.Errors)
	if success < 0 {
		success = 0
	}
	r.SuccessCount += success
	for _, e := range sr.Errors {
		r.AddError(e.String())
	}
}

// sleepCtx chờ d hoặc đến khi ctx bị hủy; trả về ctx.Err() nếu bị hủy
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// callDelta gọi SyncDelta; trả về kết quả terminal (failed/cancelled) khi service lỗi
func callDelta(ctx context.Context, jobName string, svc DeltaSyncer, since *time.Time) (SyncResult, *scheduler.JobResult) {
	sr, err := svc.SyncDelta(ctx, since)
	if err == nil {
		return sr, nil
	}
	if isCancellation(ctx, err) {
		return sr, scheduler.CancelledJobResult("sync bị hủy: "+err.Error(), nil)
	}
	GetJobLoggerByName(jobName).WithError(err).Error("❌ Lỗi khi gọi sync delta")
	failed := scheduler.FailedJobResult("sync delta thất bại: "+err.Error(), err.Error())
	failed.Retryable = true
	return sr, failed
}

// runDeltaSync chạy SyncDelta của một domain và chuyển kết quả sang JobResult
func runDeltaSync(ctx context.Context, jobName string, svc DeltaSyncer, since *time.Time) *scheduler.JobResult {
	result := scheduler.StartJobResult()
	sr, terminal := callDelta(ctx, jobName, svc, since)
	if terminal != nil {
		terminal.StartedAt = result.StartedAt
		return terminal
	}

	applySyncResult(result, sr)
	if since != nil {
		result.SetMeta("since", since.Format(time.RFC3339))
	}
	if result.ErrorCount > 0 {
		LogJobWarn(jobName, "⚠️ Sync delta hoàn thành với lỗi", map[string]interface{}{
			"processed": result.ProcessedCount,
			"errors":    result.ErrorCount,
		})
		return result.Complete("sync delta hoàn thành với lỗi")
	}
	return result.Complete("sync delta thành công")
}

// runForIdentifiers là entry point giới hạn theo danh sách ID.
// Service chỉ hỗ trợ bulk delta nên ProcessedCount được báo bằng số ID yêu cầu,
// còn số thực tế đã sync nằm trong metadata syncedCount.
func runForIdentifiers(ctx context.Context, jobName string, svc DeltaSyncer, ids []string) *scheduler.JobResult {
	result := scheduler.StartJobResult()
	result.SetMeta("requestedCount", len(ids))
	result.SetMeta("coverage", "bulk_delta_approximation")

	sr, terminal := callDelta(ctx, jobName, svc, nil)
	if terminal != nil {
		terminal.StartedAt = result.StartedAt
		terminal.SetMeta("requestedCount", len(ids))
		return terminal
	}

	result.ProcessedCount = len(ids)
	for _, e := range sr.Errors {
		result.AddError(e.String())
	}
	// Bulk delta có thể báo nhiều lỗi hơn số ID yêu cầu; mọi lỗi vẫn nằm trong Errors
	if result.ErrorCount > len(ids) {
		result.ErrorCount = len(ids)
	}
	result.SuccessCount = len(ids) - result.ErrorCount
	result.SetMeta("syncedCount", sr.ProcessedCount)
	LogJobInfo(jobName, "📋 Sync theo danh sách dùng bulk delta", map[string]interface{}{
		"requested": len(ids),
		"synced":    sr.ProcessedCount,
	})
	if result.ErrorCount > 0 {
		return result.Complete("sync theo danh sách hoàn thành với lỗi")
	}
	return result.Complete("sync theo danh sách thành công")
}

// keyedMutex khóa theo key; mỗi key chỉ có một goroutine giữ khóa tại một thời điểm
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// lock chặn cho đến khi giữ được khóa của key, trả về hàm mở khóa
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
