package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"agent_erpsync/app/scheduler"
)

// Entity type trong hàng đợi retry
const (
	RetryEntityOrder    = "order"
	RetryEntityCustomer = "customer"
)

// ErrNotRetryable đánh dấu lỗi dữ liệu: retry service chuyển thẳng sang dead-letter
var ErrNotRetryable = errors.New("not retryable")

// OrderPushServices là các service mà OrderPushJob cần.
// Customers, Retry và Tracker có thể nil.
// Order mà Tracker báo là đang retry hoặc đã dead-letter không được batch chọn lại.
type OrderPushServices struct {
	Orders    OrderStore
	Pusher    OrderPusher
	Customers CustomerUpserter
	Retry     RetryRecorder
	Tracker   RetryTracker
}

// OrderPushOptions cấu hình batch push
type OrderPushOptions struct {
	// BatchSize là số order tối đa trong một lần chạy (mặc định: 50)
	BatchSize int
	// Delay giữa hai lần push liên tiếp. Âm = không chờ; 0 = mặc định 500ms.
	Delay time.Duration
}

// OrderPushJob đẩy các order đủ điều kiện sang ERP.
// trackingNumber mang tiền tố ERP: là dấu hiệu order đã được đẩy (idempotency).
type OrderPushJob struct {
	*scheduler.BaseJob
	svc       OrderPushServices
	batchSize int
	delay     time.Duration

	// orderLocks tuần tự hóa các lần đẩy cùng một order giữa batch, single push và retry
	orderLocks keyedMutex
}

// NewOrderPushJob tạo một instance mới của OrderPushJob
func NewOrderPushJob(name string, svc OrderPushServices, opts OrderPushOptions) *OrderPushJob {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Delay == 0 {
		opts.Delay = 500 * time.Millisecond
	}
	job := &OrderPushJob{
		BaseJob:   scheduler.NewBaseJob(name),
		svc:       svc,
		batchSize: opts.BatchSize,
		delay:     opts.Delay,
	}
	job.BaseJob.SetExecuteInternalCallback(job.ExecuteInternal)
	return job
}

// ExecuteInternal là batch "push all pending": tuần tự, order cũ nhất trước.
// Lỗi hoặc panic của một order được ghi lại và không dừng batch.
func (j *OrderPushJob) ExecuteInternal(ctx context.Context) *scheduler.JobResult {
	jobLogger := GetJobLoggerByName(j.GetName())
	result := scheduler.StartJobResult()

	var exclude []string
	if j.svc.Tracker != nil {
		ids, err := j.svc.Tracker.TrackedIDs(ctx, RetryEntityOrder)
		if err != nil {
			if isCancellation(ctx, err) {
				return scheduler.CancelledJobResult("batch push bị hủy khi đọc retry state", result)
			}
			failed := scheduler.FailedJobResult("không đọc được retry state của order: "+err.Error(), err.Error())
			failed.Retryable = true
			return failed
		}
		exclude = ids
		result.SetMeta("excludedCount", len(ids))
	}

	orders, err := j.svc.Orders.ListPendingPush(ctx, EligiblePushStatuses, exclude, j.batchSize)
	if err != nil {
		if isCancellation(ctx, err) {
			return scheduler.CancelledJobResult("batch push bị hủy khi đọc order", result)
		}
		failed := scheduler.FailedJobResult("không đọc được danh sách order chờ đẩy: "+err.Error(), err.Error())
		failed.Retryable = true
		return failed
	}
	if len(orders) == 0 {
		jobLogger.Debug("Không có order chờ đẩy")
		return result.Complete("không có order chờ đẩy")
	}

	jobLogger.WithField("count", len(orders)).Info("📦 Bắt đầu đẩy order sang ERP")
	for i, order := range orders {
		if i > 0 && j.delay > 0 {
			if err := sleepCtx(ctx, j.delay); err != nil {
				return scheduler.CancelledJobResult(fmt.Sprintf("batch push bị hủy sau %d/%d order", i, len(orders)), result)
			}
		}
		if err := ctx.Err(); err != nil {
			return scheduler.CancelledJobResult(fmt.Sprintf("batch push bị hủy sau %d/%d order", i, len(orders)), result)
		}

		r := j.safePush(ctx, order)
		if r.Cancelled() {
			return scheduler.CancelledJobResult(fmt.Sprintf("batch push bị hủy tại order %s", order.ID), result)
		}

		result.ProcessedCount++
		switch {
		case r.Outcome != scheduler.OutcomeSucceeded:
			result.AddErrorf("order %s: %s", order.ID, r.Message)
		case r.SkippedCount > 0:
			result.SkippedCount++
		default:
			result.SuccessCount++
		}
	}

	result.SetMeta("batchSize", j.batchSize)
	if result.ErrorCount > 0 {
		return result.Complete(fmt.Sprintf("đã đẩy %d/%d order, %d lỗi", result.SuccessCount, result.ProcessedCount, result.ErrorCount))
	}
	return result.Complete(fmt.Sprintf("đã đẩy %d order", result.SuccessCount))
}

// safePush chạy pushByID và chuyển panic thành kết quả failed
func (j *OrderPushJob) safePush(ctx context.Context, order Order) (result *scheduler.JobResult) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			LogJobErrorWithFields(j.GetName(), fmt.Errorf("panic: %v", rec), "🚨 PANIC khi đẩy order", map[string]interface{}{
				"order_id":    order.ID,
				"stack_trace": string(buf[:n]),
			})
			result = scheduler.FailedJobResult(fmt.Sprintf("panic: %v", rec), string(buf[:n]))
			result.Retryable = true
			j.recordFailure(ctx, RetryEntityOrder, order.ID, errors.New(result.Message))
		}
	}()
	return j.pushByID(ctx, order.ID, true)
}

// PushOrder đẩy một order theo ID
func (j *OrderPushJob) PushOrder(ctx context.Context, orderID string) *scheduler.JobResult {
	return j.Run(ctx, func(ctx context.Context) *scheduler.JobResult {
		return j.pushByID(ctx, orderID, true)
	})
}

// RetryOrder là đường retry của entity type "order", được đăng ký với retry service.
// Lỗi dữ liệu được bọc ErrNotRetryable.
func (j *OrderPushJob) RetryOrder(ctx context.Context, orderID string) error {
	r := j.pushByID(ctx, orderID, false)
	switch {
	case r.Outcome == scheduler.OutcomeSucceeded:
		return nil
	case r.Cancelled():
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New(r.Message)
	case !r.Retryable:
		return fmt.Errorf("%w: %s", ErrNotRetryable, r.Message)
	default:
		return errors.New(r.Message)
	}
}

// pushByID giữ khóa của order rồi đọc lại order từ store trước khi đẩy
func (j *OrderPushJob) pushByID(ctx context.Context, orderID string, recordFailure bool) *scheduler.JobResult {
	unlock := j.orderLocks.lock(orderID)
	defer unlock()

	order, err := j.svc.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return scheduler.FailedJobResult(fmt.Sprintf("không tìm thấy order %s", orderID), err.Error())
		}
		if isCancellation(ctx, err) {
			return scheduler.CancelledJobResult("push bị hủy khi đọc order", nil)
		}
		failed := scheduler.FailedJobResult(fmt.Sprintf("không đọc được order %s: %v", orderID, err), err.Error())
		failed.Retryable = true
		if recordFailure {
			j.recordFailure(ctx, RetryEntityOrder, orderID, err)
		}
		return failed
	}
	return j.pushLoaded(ctx, *order, recordFailure)
}

// pushLoaded là thủ tục đẩy một order đã đọc từ store
func (j *OrderPushJob) pushLoaded(ctx context.Context, order Order, recordFailure bool) *scheduler.JobResult {
	jobLogger := GetJobLoggerByName(j.GetName()).WithField("order_id", order.ID)
	result := scheduler.StartJobResult()
	result.SetMeta("orderId", order.ID)

	if order.Status == OrderCancelled {
		return scheduler.FailedJobResult(fmt.Sprintf("order %s đã bị hủy, không đẩy sang ERP", order.ID))
	}
	if order.IsPushed() {
		jobLogger.WithField("tracking_number", order.TrackingNumber).Debug("Order đã được đẩy trước đó, bỏ qua")
		result.ProcessedCount = 1
		result.SkippedCount = 1
		result.SetMeta("trackingNumber", order.TrackingNumber)
		return result.Complete(fmt.Sprintf("order %s đã được đẩy trước đó", order.ID))
	}

	// Customer phải có trên ERP trước order; lỗi ở bước này không chặn push
	if order.UserID != nil && j.svc.Customers != nil {
		synced := j.upsertCustomer(ctx, *order.UserID, recordFailure)
		if err := ctx.Err(); err != nil {
			return scheduler.CancelledJobResult("push bị hủy khi đồng bộ customer", result)
		}
		result.SetMeta("customerSynced", synced)
	}

	result.ProcessedCount = 1
	push, err := j.svc.Pusher.PushOrder(ctx, order.ID)
	if err != nil {
		if isCancellation(ctx, err) {
			result.ProcessedCount = 0
			return scheduler.CancelledJobResult("push bị hủy khi gọi ERP", result)
		}
		jobLogger.WithError(err).Error("❌ Lỗi khi đẩy order sang ERP")
		result.AddError(err.Error())
		if recordFailure {
			j.recordFailure(ctx, RetryEntityOrder, order.ID, err)
		}
		return result.Complete(fmt.Sprintf("đẩy order %s thất bại: %v", order.ID, err))
	}
	if !push.Success {
		msgs := push.Errors
		if len(msgs) == 0 {
			msgs = []string{"ERP từ chối order"}
		}
		for _, m := range msgs {
			result.AddError(m)
		}
		jobLogger.WithField("errors", msgs).Error("❌ ERP từ chối order")
		if recordFailure {
			j.recordFailure(ctx, RetryEntityOrder, order.ID, errors.New(strings.Join(msgs, "; ")))
		}
		return result.Complete(fmt.Sprintf("đẩy order %s thất bại: %s", order.ID, strings.Join(msgs, "; ")))
	}

	tracking := ERPMarkerPrefix + push.DocumentRef
	if err := j.svc.Orders.MarkPushed(ctx, order.ID, tracking); err != nil {
		// Không retry: order đã nằm trên ERP
		jobLogger.WithError(err).WithField("tracking_number", tracking).Error("❌ Đã đẩy order nhưng không cập nhật được tracking number")
		result.AddErrorf("cập nhật tracking number: %v", err)
		result.SetMeta("documentRef", push.DocumentRef)
		failed := result.Fail(fmt.Sprintf("order %s đã đẩy nhưng không đánh dấu được", order.ID))
		failed.Retryable = false
		return failed
	}

	result.SuccessCount = 1
	result.SetMeta("documentRef", push.DocumentRef)
	result.SetMeta("trackingNumber", tracking)
	jobLogger.WithField("document_ref", push.DocumentRef).Info("✅ Đã đẩy order sang ERP")
	return result.Complete(fmt.Sprintf("đã đẩy order %s", order.ID))
}

// upsertCustomer đồng bộ customer trước order. Lỗi tạm thời được ghi vào hàng đợi retry
// của entity "customer" khi recordFailure; ERP từ chối customer chỉ được log.
func (j *OrderPushJob) upsertCustomer(ctx context.Context, userID int64, recordFailure bool) bool {
	res, err := j.svc.Customers.UpsertCustomer(ctx, userID)
	if err != nil {
		LogJobWarn(j.GetName(), "⚠️ Không đồng bộ được customer, vẫn tiếp tục đẩy order", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		if recordFailure && !isCancellation(ctx, err) {
			j.recordFailure(ctx, RetryEntityCustomer, strconv.FormatInt(userID, 10), err)
		}
		return false
	}
	if !res.Success {
		LogJobWarn(j.GetName(), "⚠️ ERP từ chối customer, vẫn tiếp tục đẩy order", map[string]interface{}{
			"user_id": userID,
			"errors":  res.Errors,
		})
		return false
	}
	return true
}

// RetryCustomer là đường retry của entity type "customer"
func (j *OrderPushJob) RetryCustomer(ctx context.Context, entityID string) error {
	if j.svc.Customers == nil {
		return fmt.Errorf("%w: chưa cấu hình customer service", ErrNotRetryable)
	}
	userID, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: user id không hợp lệ %q", ErrNotRetryable, entityID)
	}
	res, err := j.svc.Customers.UpsertCustomer(ctx, userID)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: ERP từ chối customer: %s", ErrNotRetryable, strings.Join(res.Errors, "; "))
	}
	return nil
}

func (j *OrderPushJob) recordFailure(ctx context.Context, entityType, entityID string, cause error) {
	if j.svc.Retry == nil {
		return
	}
	// Ghi retry không phụ thuộc vào context của job đang có thể sắp hết hạn
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := j.svc.Retry.RecordFailure(rctx, entityType, entityID, cause); err != nil {
		LogJobErrorWithFields(j.GetName(), err, "❌ Không ghi được retry entry", map[string]interface{}{
			"entity_type": entityType,
			"entity_id":   entityID,
		})
	}
}
