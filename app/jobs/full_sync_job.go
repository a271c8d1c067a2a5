package jobs

import (
	"context"
	"fmt"
	"time"

	"agent_erpsync/app/scheduler"

	"golang.org/x/sync/errgroup"
)

// Các domain có trong health snapshot, theo thứ tự báo cáo
const (
	DomainStock    = "stock"
	DomainPrice    = "price"
	DomainCustomer = "customer"
	DomainOrder    = "order"
)

// FullSyncServices là các service mà FullSyncJob cần.
// Customer và Order chỉ dùng để đọc state cho health snapshot, có thể nil.
type FullSyncServices struct {
	Stock    DeltaSyncer
	Price    DeltaSyncer
	Customer DeltaSyncer
	Order    DeltaSyncer
}

// FullSyncJob chạy Stock delta, rồi Price delta, rồi tổng hợp health snapshot.
// Thứ tự cố định; lỗi của một bước được cộng dồn và không dừng các bước sau.
type FullSyncJob struct {
	*scheduler.BaseJob
	svc FullSyncServices
	now func() time.Time
}

// NewFullSyncJob tạo một instance mới của FullSyncJob
func NewFullSyncJob(name string, svc FullSyncServices) *FullSyncJob {
	job := &FullSyncJob{
		BaseJob: scheduler.NewBaseJob(name),
		svc:     svc,
		now:     time.Now,
	}
	job.BaseJob.SetExecuteInternalCallback(job.ExecuteInternal)
	return job
}

type syncStep struct {
	domain string
	call   func(ctx context.Context) (SyncResult, error)
}

// ExecuteInternal là lần chạy hằng ngày: delta với watermark của service rồi health snapshot
func (j *FullSyncJob) ExecuteInternal(ctx context.Context) *scheduler.JobResult {
	result := scheduler.StartJobResult()
	steps := []syncStep{
		{DomainStock, func(ctx context.Context) (SyncResult, error) { return j.svc.Stock.SyncDelta(ctx, nil) }},
		{DomainPrice, func(ctx context.Context) (SyncResult, error) { return j.svc.Price.SyncDelta(ctx, nil) }},
	}
	if cancelled := j.runSteps(ctx, result, steps); cancelled != nil {
		return cancelled
	}

	if err := ctx.Err(); err != nil {
		return scheduler.CancelledJobResult("full sync bị hủy trước health snapshot", result)
	}
	j.healthSnapshot(ctx, result)

	if result.ErrorCount > 0 {
		return result.Complete("full sync hoàn thành với lỗi")
	}
	return result.Complete("full sync thành công")
}

// ExecuteDelta chạy lại delta của Stock và Price với watermark since do operator chỉ định.
// since == nil thì dùng 24 giờ trước.
func (j *FullSyncJob) ExecuteDelta(ctx context.Context, since *time.Time) *scheduler.JobResult {
	if since == nil {
		t := j.now().Add(-24 * time.Hour)
		since = &t
	}
	watermark := *since
	return j.Run(ctx, func(ctx context.Context) *scheduler.JobResult {
		result := scheduler.StartJobResult()
		result.SetMeta("since", watermark.Format(time.RFC3339))
		steps := []syncStep{
			{DomainStock, func(ctx context.Context) (SyncResult, error) { return j.svc.Stock.SyncDelta(ctx, &watermark) }},
			{DomainPrice, func(ctx context.Context) (SyncResult, error) { return j.svc.Price.SyncDelta(ctx, &watermark) }},
		}
		if cancelled := j.runSteps(ctx, result, steps); cancelled != nil {
			return cancelled
		}
		if result.ErrorCount > 0 {
			return result.Complete("delta sync hoàn thành với lỗi")
		}
		return result.Complete("delta sync thành công")
	})
}

// ExecuteComplete chạy SyncFull (bỏ qua watermark) cho Stock rồi Price
func (j *FullSyncJob) ExecuteComplete(ctx context.Context) *scheduler.JobResult {
	return j.Run(ctx, func(ctx context.Context) *scheduler.JobResult {
		result := scheduler.StartJobResult()
		result.SetMeta("mode", "full")
		steps := []syncStep{
			{DomainStock, j.svc.Stock.SyncFull},
			{DomainPrice, j.svc.Price.SyncFull},
		}
		if cancelled := j.runSteps(ctx, result, steps); cancelled != nil {
			return cancelled
		}
		if result.ErrorCount > 0 {
			return result.Complete("sync toàn bộ hoàn thành với lỗi")
		}
		return result.Complete("sync toàn bộ thành công")
	})
}

// runSteps chạy tuần tự các bước; kiểm tra hủy trước mỗi bước.
// Trả về kết quả cancelled (giữ số đếm đã có) nếu bị hủy, ngược lại nil.
func (j *FullSyncJob) runSteps(ctx context.Context, result *scheduler.JobResult, steps []syncStep) *scheduler.JobResult {
	jobLogger := GetJobLoggerByName(j.GetName())
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return scheduler.CancelledJobResult(fmt.Sprintf("full sync bị hủy trước bước %s", step.domain), result)
		}

		started := time.Now()
		sr, err := step.call(ctx)
		if err != nil {
			if isCancellation(ctx, err) {
				return scheduler.CancelledJobResult(fmt.Sprintf("full sync bị hủy trong bước %s", step.domain), result)
			}
			jobLogger.WithError(err).WithField("domain", step.domain).Error("❌ Bước sync thất bại, tiếp tục bước sau")
			result.AddErrorf("%s: %v", step.domain, err)
			result.SetMeta(step.domain+"Processed", 0)
			continue
		}

		before := result.ErrorCount
		result.ProcessedCount += sr.ProcessedCount
		succeeded := sr.ProcessedCount - len(sr.Errors)
		if succeeded < 0 {
			succeeded = 0
		}
		result.SuccessCount += succeeded
		for _, e := range sr.Errors {
			result.AddErrorf("%s: %s", step.domain, e.String())
		}
		result.SetMeta(step.domain+"Processed", sr.ProcessedCount)

		jobLogger.WithFields(map[string]interface{}{
			"domain":      step.domain,
			"processed":   sr.ProcessedCount,
			"errors":      result.ErrorCount - before,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("📊 Đã hoàn thành bước sync")
	}
	return nil
}

// healthSnapshot đọc state của mọi domain vào metadata.
// Lỗi đọc state là cảnh báo (không phải lỗi job) nhưng làm snapshot không healthy.
func (j *FullSyncJob) healthSnapshot(ctx context.Context, result *scheduler.JobResult) {
	domains := []struct {
		name string
		svc  DeltaSyncer
	}{
		{DomainStock, j.svc.Stock},
		{DomainPrice, j.svc.Price},
		{DomainCustomer, j.svc.Customer},
		{DomainOrder, j.svc.Order},
	}

	// Đọc state song song, kết quả được áp dụng theo thứ tự domain
	type stateRead struct {
		state SyncState
		err   error
	}
	reads := make([]stateRead, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range domains {
		if d.svc == nil {
			continue
		}
		i, d := i, d
		g.Go(func() error {
			reads[i].state, reads[i].err = d.svc.GetState(gctx)
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	warnings := []string{}
	for i, d := range domains {
		if d.svc == nil {
			continue
		}
		state, err := reads[i].state, reads[i].err
		if err != nil {
			healthy = false
			warnings = append(warnings, fmt.Sprintf("%s: không đọc được state: %v", d.name, err))
			LogJobWarn(j.GetName(), "⚠️ Không đọc được sync state", map[string]interface{}{
				"domain": d.name,
				"error":  err.Error(),
			})
			continue
		}
		if state.LastSyncTime != nil {
			result.SetMeta(d.name+"LastSync", state.LastSyncTime.Format(time.RFC3339))
		} else {
			result.SetMeta(d.name+"LastSync", nil)
		}
		result.SetMeta(d.name+"Status", string(state.LastStatus))
		if !state.Healthy() {
			healthy = false
		}
	}
	result.SetMeta("healthy", healthy)
	if len(warnings) > 0 {
		result.SetMeta("warnings", warnings)
	}
}
