package scheduler

import (
	"fmt"
	"time"
)

// Queue là làn (lane) logic dùng để cô lập việc thực thi giữa các nhóm job.
// Sync hàng loạt không được chiếm chỗ của push order, và retry không tranh chỗ với cả hai.
type Queue string

const (
	QueueSync   Queue = "sync"
	QueueOrders Queue = "orders"
	QueueRetry  Queue = "retry"
)

// Tên các job mặc định
const (
	JobStockSync = "stock-sync-job"
	JobPriceSync = "price-sync-job"
	JobFullSync  = "full-sync-job"
	JobOrderPush = "order-push-job"
	JobRetry     = "retry-job"
)

// JobDefinition là cấu hình tĩnh của một job có thể lập lịch.
// Được tạo khi khởi động từ cấu hình, chỉ thay đổi qua Enable/Disable của Scheduler.
type JobDefinition struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Schedule       string `json:"schedule"` // cron 5 trường: phút giờ ngày tháng thứ
	Enabled        bool   `json:"enabled"`
	TimeoutMinutes int    `json:"timeoutMinutes"`
	Queue          Queue  `json:"queue"`
}

// Timeout trả về timeout dạng time.Duration (0 = không giới hạn)
func (d JobDefinition) Timeout() time.Duration {
	if d.TimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(d.TimeoutMinutes) * time.Minute
}

// Validate kiểm tra definition có đủ thông tin để đăng ký không
func (d JobDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("job definition thiếu name")
	}
	if d.Schedule == "" {
		return fmt.Errorf("job %s thiếu schedule", d.Name)
	}
	if _, err := ParseSchedule(d.Schedule); err != nil {
		return fmt.Errorf("job %s có schedule không hợp lệ %q: %w", d.Name, d.Schedule, err)
	}
	switch d.Queue {
	case QueueSync, QueueOrders, QueueRetry:
	default:
		return fmt.Errorf("job %s có queue không hợp lệ %q", d.Name, d.Queue)
	}
	return nil
}

// DefaultDefinitions trả về danh sách job mặc định (giá trị hard-coded, có thể override từ env)
func DefaultDefinitions() []JobDefinition {
	return []JobDefinition{
		{
			Name:           JobStockSync,
			Description:    "Đồng bộ tồn kho thay đổi từ ERP (delta)",
			Schedule:       "*/15 * * * *",
			Enabled:        true,
			TimeoutMinutes: 10,
			Queue:          QueueSync,
		},
		{
			Name:           JobPriceSync,
			Description:    "Đồng bộ giá thay đổi từ ERP (delta)",
			Schedule:       "0 * * * *",
			Enabled:        true,
			TimeoutMinutes: 15,
			Queue:          QueueSync,
		},
		{
			Name:           JobFullSync,
			Description:    "Đồng bộ tồn kho, giá và tổng hợp health snapshot hằng ngày",
			Schedule:       "0 6 * * *",
			Enabled:        true,
			TimeoutMinutes: 60,
			Queue:          QueueSync,
		},
		{
			Name:           JobOrderPush,
			Description:    "Đẩy các order đang chờ sang ERP",
			Schedule:       "*/5 * * * *",
			Enabled:        true,
			TimeoutMinutes: 5,
			Queue:          QueueOrders,
		},
		{
			Name:           JobRetry,
			Description:    "Xử lý các entry retry đến hạn, chuyển dead-letter khi hết lượt",
			Schedule:       "*/5 * * * *",
			Enabled:        true,
			TimeoutMinutes: 5,
			Queue:          QueueRetry,
		},
	}
}
