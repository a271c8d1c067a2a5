package jobs

import (
	"context"
	"fmt"

	"agent_erpsync/app/scheduler"
)

// RetryJob xử lý một lát giới hạn các entry retry đến hạn, cho mọi entity type.
// Job không biết retry của từng loại entity làm gì, chỉ yêu cầu retry service tiến hàng đợi.
type RetryJob struct {
	*scheduler.BaseJob
	processor RetryProcessor
	maxItems  int
}

// NewRetryJob tạo một instance mới của RetryJob. maxItems <= 0 dùng mặc định 50.
func NewRetryJob(name string, processor RetryProcessor, maxItems int) *RetryJob {
	if maxItems <= 0 {
		maxItems = 50
	}
	job := &RetryJob{
		BaseJob:   scheduler.NewBaseJob(name),
		processor: processor,
		maxItems:  maxItems,
	}
	job.BaseJob.SetExecuteInternalCallback(job.ExecuteInternal)
	return job
}

func (j *RetryJob) ExecuteInternal(ctx context.Context) *scheduler.JobResult {
	return j.process(ctx, "")
}

// ExecuteForEntityType chỉ xử lý các entry của một entity type (operator yêu cầu)
func (j *RetryJob) ExecuteForEntityType(ctx context.Context, entityType string) *scheduler.JobResult {
	return j.Run(ctx, func(ctx context.Context) *scheduler.JobResult {
		return j.process(ctx, entityType)
	})
}

func (j *RetryJob) process(ctx context.Context, entityType string) *scheduler.JobResult {
	result := scheduler.StartJobResult()
	label := entityType
	if label == "" {
		label = "all"
	}
	result.SetMeta("entityType", label)

	br, err := j.processor.ProcessPending(ctx, entityType, j.maxItems)
	if err != nil {
		if isCancellation(ctx, err) {
			applyRetryBatch(result, br)
			return scheduler.CancelledJobResult("retry bị hủy", result)
		}
		LogJobErrorWithFields(j.GetName(), err, "❌ Lỗi khi xử lý hàng đợi retry", map[string]interface{}{
			"entity_type": label,
		})
		failed := scheduler.FailedJobResult("xử lý retry thất bại: "+err.Error(), err.Error())
		failed.Retryable = true
		failed.SetMeta("entityType", label)
		return failed
	}

	applyRetryBatch(result, br)
	if br.DeadLetterCount > 0 {
		LogJobWarn(j.GetName(), "☠️ Có entry bị chuyển sang dead-letter", map[string]interface{}{
			"dead_letter_count": br.DeadLetterCount,
			"entity_type":       label,
		})
	}
	if result.ErrorCount > 0 {
		return result.Complete(fmt.Sprintf("retry %d entry, %d lỗi, %d dead-letter", br.TotalProcessed, result.ErrorCount, br.DeadLetterCount))
	}
	return result.Complete(fmt.Sprintf("retry %d entry thành công", br.SuccessCount))
}

// applyRetryBatch chuyển RetryBatchResult sang JobResult.
// ErrorCount là số entry thất bại, chi tiết lỗi nằm trong Errors.
func applyRetryBatch(r *scheduler.JobResult, br RetryBatchResult) {
	r.ProcessedCount = br.TotalProcessed
	r.SuccessCount = br.SuccessCount
	r.Errors = append(r.Errors, br.Errors...)
	r.ErrorCount = br.FailedCount
	if r.ErrorCount == 0 && len(br.Errors) > 0 {
		r.ErrorCount = len(br.Errors)
	}
	r.SetMeta("deadLetterCount", br.DeadLetterCount)
}
