package jobs

import (
	"context"
	"errors"
	"strings"
	"time"
)

// File này khai báo các interface mà job cần từ các service bên ngoài (ERP, order store, retry).
// Job chỉ phụ thuộc vào các interface này, implementation cụ thể được truyền vào từ main.

// ErrOrderNotFound trả về từ OrderStore khi không tìm thấy order
var ErrOrderNotFound = errors.New("order not found")

// ERPMarkerPrefix là tiền tố của trackingNumber khi order đã được đẩy sang ERP
const ERPMarkerPrefix = "ERP:"

// ================== SYNC SERVICE ==================

// SyncStatus là trạng thái lần sync gần nhất của một domain
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "Success"
	SyncStatusFailed  SyncStatus = "Failed"
	SyncStatusRunning SyncStatus = "Running"
	SyncStatusNever   SyncStatus = "Never"
)

// SyncError là lỗi của một item trong lần sync
type SyncError struct {
	EntityID string `json:"entityId"`
	Message  string `json:"message"`
}

func (e SyncError) String() string {
	if e.EntityID == "" {
		return e.Message
	}
	return e.EntityID + ": " + e.Message
}

// SyncResult là kết quả trả về từ một lần sync delta hoặc full
type SyncResult struct {
	ProcessedCount int         `json:"processedCount"`
	Errors         []SyncError `json:"errors"`
}

// SyncState là watermark và trạng thái của một domain, chỉ đọc để báo cáo health
type SyncState struct {
	SyncType     string     `json:"syncType"`
	LastSyncTime *time.Time `json:"lastSyncTime"`
	LastStatus   SyncStatus `json:"lastStatus"`
}

// Healthy trả về false khi lần sync gần nhất thất bại
func (s SyncState) Healthy() bool {
	return s.LastStatus != SyncStatusFailed
}

// DeltaSyncer là service đồng bộ của một domain (stock, price, customer, order).
// since == nil nghĩa là dùng watermark nội bộ của service.
type DeltaSyncer interface {
	SyncDelta(ctx context.Context, since *time.Time) (SyncResult, error)
	SyncFull(ctx context.Context) (SyncResult, error)
	GetState(ctx context.Context) (SyncState, error)
}

// ================== ORDER / CUSTOMER ==================

// PushResult là kết quả đẩy một order hoặc customer sang ERP
type PushResult struct {
	Success     bool     `json:"success"`
	DocumentRef string   `json:"documentRef,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// OrderPusher đẩy một order sang ERP
type OrderPusher interface {
	PushOrder(ctx context.Context, orderID string) (PushResult, error)
}

// CustomerUpserter tạo hoặc cập nhật customer (Cari) trên ERP
type CustomerUpserter interface {
	UpsertCustomer(ctx context.Context, userID int64) (PushResult, error)
}

// OrderStatus là trạng thái order phía storefront
type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderConfirmed OrderStatus = "Confirmed"
	OrderPreparing OrderStatus = "Preparing"
	OrderReady     OrderStatus = "Ready"
	OrderAssigned  OrderStatus = "Assigned"
	OrderShipped   OrderStatus = "Shipped"
	OrderDelivered OrderStatus = "Delivered"
	OrderCancelled OrderStatus = "Cancelled"
)

// EligiblePushStatuses là các trạng thái order được phép đẩy sang ERP
var EligiblePushStatuses = []OrderStatus{OrderConfirmed, OrderPreparing, OrderReady, OrderAssigned}

// Order là thông tin order mà job cần đọc
type Order struct {
	ID             string      `json:"id" bson:"_id"`
	Status         OrderStatus `json:"status" bson:"status"`
	TrackingNumber string      `json:"trackingNumber,omitempty" bson:"tracking_number,omitempty"`
	UserID         *int64      `json:"userId,omitempty" bson:"user_id,omitempty"`
	CreatedAt      time.Time   `json:"createdAt" bson:"created_at"`
}

// IsPushed cho biết order đã mang marker của ERP chưa
func (o Order) IsPushed() bool {
	return IsERPTracking(o.TrackingNumber)
}

// IsERPTracking cho biết trackingNumber có tiền tố ERP hay không
func IsERPTracking(trackingNumber string) bool {
	return strings.HasPrefix(trackingNumber, ERPMarkerPrefix)
}

// IsEligibleStatus cho biết trạng thái có nằm trong tập được đẩy hay không
func IsEligibleStatus(status OrderStatus) bool {
	for _, s := range EligiblePushStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// OrderStore là lớp truy cập order của storefront
type OrderStore interface {
	// GetByID trả về ErrOrderNotFound khi không có order
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListPendingPush trả về các order có status thuộc statuses, chưa mang marker ERP
	// và không nằm trong exclude, sắp xếp theo CreatedAt tăng dần, tối đa limit order
	ListPendingPush(ctx context.Context, statuses []OrderStatus, exclude []string, limit int) ([]Order, error)
	MarkPushed(ctx context.Context, id, trackingNumber string) error
}

// ================== RETRY ==================

// RetryBatchResult là kết quả một lần xử lý hàng đợi retry
type RetryBatchResult struct {
	TotalProcessed  int      `json:"totalProcessed"`
	SuccessCount    int      `json:"successCount"`
	FailedCount     int      `json:"failedCount"`
	DeadLetterCount int      `json:"deadLetterCount"`
	Errors          []string `json:"errors"`
}

// RetryProcessor xử lý các entry retry đến hạn. entityType rỗng = mọi loại.
type RetryProcessor interface {
	ProcessPending(ctx context.Context, entityType string, maxItems int) (RetryBatchResult, error)
}

// RetryRecorder ghi nhận một lần thất bại có thể retry
type RetryRecorder interface {
	RecordFailure(ctx context.Context, entityType, entityID string, cause error) error
}

// RetryTracker cho biết entity nào đang do retry service quản lý
// (còn entry chờ retry hoặc đã bị chuyển sang dead-letter)
type RetryTracker interface {
	TrackedIDs(ctx context.Context, entityType string) ([]string, error)
}
