/*
Package scheduler định nghĩa các interface và model cần thiết cho việc quản lý jobs:
- Interface Job mà mọi job phải implement
- BaseJob cung cấp triển khai chung (chống chạy chồng, bắt panic, log start/end)
- JobResult là kết quả chuẩn của mỗi lần chạy
- Scheduler đăng ký job vào cron, trigger thủ công, bật/tắt và báo cáo trạng thái
*/
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"agent_erpsync/utility/logger"

	"github.com/sirupsen/logrus"
)

// ================== INTERFACE ĐỊNH NGHĨA JOB ==================

// Job là interface chuẩn cho mọi job trong hệ thống.
type Job interface {
	// Execute thực thi logic chính của job.
	// ctx bị hủy khi hết timeout hoặc khi có yêu cầu dừng; job phải trả về kết quả cancelled.
	// Execute không bao giờ trả về nil.
	Execute(ctx context.Context) *JobResult

	// GetName trả về tên định danh của job
	GetName() string
}

// RunningProvider được implement bởi các job có thể báo trạng thái đang chạy
type RunningProvider interface {
	IsRunning() bool
}

// ================== BASE JOB ==================

// BaseJob cung cấp sẵn name và cơ chế chạy chung.
// Các job cụ thể nhúng *BaseJob và gọi SetExecuteInternalCallback trong constructor.
type BaseJob struct {
	name      string
	mu        sync.Mutex
	isRunning bool
	// executeInternalFunc là logic riêng của job con
	executeInternalFunc func(ctx context.Context) *JobResult
}

// NewBaseJob khởi tạo BaseJob với tên job
func NewBaseJob(name string) *BaseJob {
	return &BaseJob{name: name}
}

func (j *BaseJob) GetName() string { return j.name }

// IsRunning cho biết job có đang chạy hay không
func (j *BaseJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.isRunning
}

// SetExecuteInternalCallback thiết lập logic chính của job con.
func (j *BaseJob) SetExecuteInternalCallback(fn func(ctx context.Context) *JobResult) {
	j.executeInternalFunc = fn
}

// Execute chạy logic chính của job thông qua Run.
func (j *BaseJob) Execute(ctx context.Context) *JobResult {
	if j.executeInternalFunc == nil {
		return FailedJobResult(fmt.Sprintf("job %s chưa có logic thực thi", j.name))
	}
	return j.Run(ctx, j.executeInternalFunc)
}

// Run chạy fn với các đảm bảo chung cho mọi entry point của job:
//   - nếu job đang chạy thì bỏ qua (kết quả skipped, không lỗi)
//   - ctx đã bị hủy trước khi bắt đầu thì trả về cancelled
//   - panic trong fn được bắt lại và chuyển thành kết quả failed kèm stack trace
func (j *BaseJob) Run(ctx context.Context, fn func(ctx context.Context) *JobResult) (result *JobResult) {
	j.mu.Lock()
	if j.isRunning {
		j.mu.Unlock()
		r := SuccessfulJobResult("job đang chạy, bỏ qua lần này", 0, 0, 1)
		r.SetMeta("skipped", "already_running")
		return r
	}
	j.isRunning = true
	j.mu.Unlock()

	jobLogger := logger.GetJobLogger().WithField("job_name", j.name)
	startTime := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			jobLogger.WithFields(logrus.Fields{
				"panic":       fmt.Sprint(rec),
				"stack_trace": string(buf[:n]),
			}).Error("🚨 PANIC trong job")
			result = FailedJobResult(fmt.Sprintf("panic: %v", rec), string(buf[:n]))
		}

		j.mu.Lock()
		j.isRunning = false
		j.mu.Unlock()

		logJobFinished(jobLogger, result, time.Since(startTime))
	}()

	if err := ctx.Err(); err != nil {
		return CancelledJobResult("job bị hủy trước khi bắt đầu: "+err.Error(), nil)
	}

	jobLogger.WithField("start_time", startTime.Format("2006-01-02 15:04:05")).Info("🚀 JOB ĐÃ BẮT ĐẦU CHẠY")
	result = fn(ctx)
	if result == nil {
		result = FailedJobResult("job không trả về kết quả")
	}
	return result
}

func logJobFinished(entry *logrus.Entry, result *JobResult, duration time.Duration) {
	if result == nil {
		return
	}
	fields := logrus.Fields{
		"outcome":     result.Outcome,
		"processed":   result.ProcessedCount,
		"succeeded":   result.SuccessCount,
		"errors":      result.ErrorCount,
		"skipped":     result.SkippedCount,
		"duration":    duration.String(),
		"duration_ms": duration.Milliseconds(),
	}
	switch result.Outcome {
	case OutcomeSucceeded:
		entry.WithFields(fields).Info("✅ JOB HOÀN THÀNH")
	case OutcomeCancelled:
		entry.WithFields(fields).Warn("⏹️ JOB BỊ HỦY: " + result.Message)
	default:
		entry.WithFields(fields).Error("❌ JOB THẤT BẠI: " + result.Message)
	}
}
