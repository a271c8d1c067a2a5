package scheduler

import (
	"fmt"
	"time"
)

// Outcome là trạng thái kết thúc của một lần chạy job.
// Hủy (cancelled) là một giá trị riêng, không phải một loại lỗi.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// JobResult là kết quả chung của mọi job.
// Scheduler, API trigger thủ công và dashboard đều đọc cùng một cấu trúc này.
type JobResult struct {
	Outcome        Outcome                `json:"outcome" bson:"outcome"`
	Success        bool                   `json:"success" bson:"success"`
	Retryable      bool                   `json:"retryable" bson:"retryable"`
	Message        string                 `json:"message" bson:"message"`
	ProcessedCount int                    `json:"processedCount" bson:"processed_count"`
	SuccessCount   int                    `json:"successCount" bson:"success_count"`
	ErrorCount     int                    `json:"errorCount" bson:"error_count"`
	SkippedCount   int                    `json:"skippedCount" bson:"skipped_count"`
	Errors         []string               `json:"errors" bson:"errors"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	StartedAt      time.Time              `json:"startedAt" bson:"started_at"`
	CompletedAt    time.Time              `json:"completedAt" bson:"completed_at"`
}

// StartJobResult tạo kết quả mới và ghi lại thời điểm bắt đầu
func StartJobResult() *JobResult {
	return &JobResult{
		Outcome:   OutcomeRunning,
		Errors:    []string{},
		Metadata:  map[string]interface{}{},
		StartedAt: time.Now(),
	}
}

// FailedJobResult tạo kết quả thất bại với message và danh sách lỗi chi tiết (nếu có)
func FailedJobResult(message string, details ...string) *JobResult {
	r := StartJobResult()
	for _, d := range details {
		r.AddError(d)
	}
	return r.Fail(message)
}

// SuccessfulJobResult tạo kết quả thành công với các số đếm đã cho
func SuccessfulJobResult(message string, processed, succeeded, skipped int) *JobResult {
	r := StartJobResult()
	r.ProcessedCount = processed
	r.SuccessCount = succeeded
	r.SkippedCount = skipped
	return r.Complete(message)
}

// CancelledJobResult tạo kết quả bị hủy, giữ lại các số đếm đã tích lũy trong partial (có thể nil)
func CancelledJobResult(message string, partial *JobResult) *JobResult {
	r := partial
	if r == nil {
		r = StartJobResult()
	}
	return r.Cancel(message)
}

// AddError thêm một lỗi vào danh sách và tăng ErrorCount
func (r *JobResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.ErrorCount++
}

// AddErrorf giống AddError nhưng nhận format string
func (r *JobResult) AddErrorf(format string, args ...interface{}) {
	r.AddError(fmt.Sprintf(format, args...))
}

// SetMeta gán một giá trị vào Metadata
func (r *JobResult) SetMeta(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = map[string]interface{}{}
	}
	r.Metadata[key] = value
}

// Merge cộng dồn số đếm và lỗi của other vào r (dùng khi gộp nhiều bước)
func (r *JobResult) Merge(other *JobResult) {
	if other == nil {
		return
	}
	r.ProcessedCount += other.ProcessedCount
	r.SuccessCount += other.SuccessCount
	r.SkippedCount += other.SkippedCount
	r.ErrorCount += other.ErrorCount
	r.Errors = append(r.Errors, other.Errors...)
}

// Complete kết thúc kết quả: thành công nếu không có lỗi, ngược lại là thất bại
func (r *JobResult) Complete(message string) *JobResult {
	if r.ErrorCount > 0 {
		r.Retryable = true
		return r.finish(OutcomeFailed, message)
	}
	return r.finish(OutcomeSucceeded, message)
}

// Fail kết thúc kết quả ở trạng thái thất bại
func (r *JobResult) Fail(message string) *JobResult {
	return r.finish(OutcomeFailed, message)
}

// Cancel kết thúc kết quả ở trạng thái bị hủy (không retry)
func (r *JobResult) Cancel(message string) *JobResult {
	r.Retryable = false
	return r.finish(OutcomeCancelled, message)
}

// Cancelled cho biết job đã dừng sớm theo yêu cầu
func (r *JobResult) Cancelled() bool {
	return r.Outcome == OutcomeCancelled
}

// DurationMs trả về thời gian chạy tính bằng millisecond
func (r *JobResult) DurationMs() int64 {
	end := r.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartedAt).Milliseconds()
}

func (r *JobResult) finish(outcome Outcome, message string) *JobResult {
	r.Outcome = outcome
	r.Success = outcome == OutcomeSucceeded
	if message != "" {
		r.Message = message
	}
	r.normalize()
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}
	return r
}

// normalize giữ bất biến SuccessCount + ErrorCount <= ProcessedCount
func (r *JobResult) normalize() {
	if r.SuccessCount < 0 {
		r.SuccessCount = 0
	}
	if r.SuccessCount+r.ErrorCount > r.ProcessedCount {
		r.ProcessedCount = r.SuccessCount + r.ErrorCount
	}
	if r.ErrorCount > 0 {
		r.Success = false
	}
}
