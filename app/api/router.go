/*
Package api là bề mặt quản trị HTTP của agent: xem trạng thái job, trigger thủ công,
bật/tắt job, chạy các thao tác vận hành (replay delta, sync theo SKU, đẩy một order,
retry theo entity type), poll execution, xem dead-letter và metrics.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"agent_erpsync/app/retry"
	"agent_erpsync/app/scheduler"
	"agent_erpsync/app/services"
	"agent_erpsync/utility/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// JobController là các thao tác của scheduler mà API cần
type JobController interface {
	Status(ctx context.Context) []scheduler.JobStatus
	TriggerNow(ctx context.Context, name string) (string, error)
	Enable(name string) error
	Disable(name string) error
	Execution(ctx context.Context, id string) (*scheduler.ExecutionRecord, error)
	TriggerOperation(ctx context.Context, name, operation string, fn func(ctx context.Context) *scheduler.JobResult) (string, error)
}

// FullSyncOperator là các entry point vận hành của full sync job
type FullSyncOperator interface {
	ExecuteDelta(ctx context.Context, since *time.Time) *scheduler.JobResult
	ExecuteComplete(ctx context.Context) *scheduler.JobResult
}

// StockOperator sync tồn kho theo danh sách SKU
type StockOperator interface {
	ExecuteForSkus(ctx context.Context, skus []string) *scheduler.JobResult
}

// PriceOperator sync giá theo danh sách product
type PriceOperator interface {
	ExecuteForProducts(ctx context.Context, productIDs []string) *scheduler.JobResult
}

// OrderOperator đẩy một order theo ID
type OrderOperator interface {
	PushOrder(ctx context.Context, orderID string) *scheduler.JobResult
}

// RetryOperator xử lý hàng đợi retry của một entity type
type RetryOperator interface {
	ExecuteForEntityType(ctx context.Context, entityType string) *scheduler.JobResult
}

// Operations gom các entry point vận hành; field nil thì route tương ứng trả về 404
type Operations struct {
	FullSync FullSyncOperator
	Stock    StockOperator
	Price    PriceOperator
	Orders   OrderOperator
	Retry    RetryOperator
}

// DeadLetterLister trả về các entry dead-letter
type DeadLetterLister interface {
	DeadLetters(ctx context.Context, entityType string, limit int) ([]retry.DeadLetterEntry, error)
}

// Deps là các thành phần mà router cần. Retry, Metrics và Gatherer có thể nil.
type Deps struct {
	Jobs     JobController
	Ops      Operations
	Retry    DeadLetterLister
	Metrics  *services.MetricsCollector
	Gatherer prometheus.Gatherer
}

type handler struct {
	deps Deps
	log  *logrus.Logger
}

// NewRouter tạo chi router cho admin API
func NewRouter(deps Deps) http.Handler {
	h := &handler{deps: deps, log: logger.GetLogger("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.health)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Post("/{name}/trigger", h.triggerJob)
		r.Post("/{name}/enable", h.enableJob)
		r.Post("/{name}/disable", h.disableJob)
		r.Post("/"+scheduler.JobFullSync+"/delta", h.fullSyncDelta)
		r.Post("/"+scheduler.JobFullSync+"/complete", h.fullSyncComplete)
		r.Post("/"+scheduler.JobStockSync+"/skus", h.stockForSkus)
		r.Post("/"+scheduler.JobPriceSync+"/products", h.priceForProducts)
	})
	r.Post("/orders/{id}/push", h.pushOrder)
	r.Get("/executions/{id}", h.getExecution)
	r.Get("/retry/dead-letters", h.listDeadLetters)
	r.Post("/retry/{entityType}/process", h.processRetry)
	r.Get("/stats/jobs", h.jobStats)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.deps.Jobs.Status(r.Context())})
}

func (h *handler) triggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := h.deps.Jobs.TriggerNow(r.Context(), name)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	h.log.WithFields(logrus.Fields{"job_name": name, "execution_id": id}).Info("⚡ Trigger thủ công qua API")
	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": id})
}

func (h *handler) enableJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.deps.Jobs.Enable(name); err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "enabled": true})
}

func (h *handler) disableJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.deps.Jobs.Disable(name); err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "enabled": false})
}

// runOperation xếp fn vào lane của jobName, trả về 202 kèm execution ID
func (h *handler) runOperation(w http.ResponseWriter, r *http.Request, jobName, operation string, fn func(ctx context.Context) *scheduler.JobResult) {
	id, err := h.deps.Jobs.TriggerOperation(r.Context(), jobName, operation, fn)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"job_name":     jobName,
		"operation":    operation,
		"execution_id": id,
	}).Info("⚡ Thao tác vận hành qua API")
	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": id, "operation": operation})
}

func notConfigured(w http.ResponseWriter, what string) {
	writeError(w, http.StatusNotFound, "not_configured", errors.New(what+" chưa được cấu hình"))
}

func (h *handler) fullSyncDelta(w http.ResponseWriter, r *http.Request) {
	ops := h.deps.Ops.FullSync
	if ops == nil {
		notConfigured(w, "full sync")
		return
	}
	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since", errors.New("since phải theo định dạng RFC3339"))
			return
		}
		since = &t
	}
	h.runOperation(w, r, scheduler.JobFullSync, "delta", func(ctx context.Context) *scheduler.JobResult {
		return ops.ExecuteDelta(ctx, since)
	})
}

func (h *handler) fullSyncComplete(w http.ResponseWriter, r *http.Request) {
	ops := h.deps.Ops.FullSync
	if ops == nil {
		notConfigured(w, "full sync")
		return
	}
	h.runOperation(w, r, scheduler.JobFullSync, "complete", ops.ExecuteComplete)
}

// decodeIDs đọc body JSON {"<field>": [...]} và trả về danh sách không rỗng
func decodeIDs(w http.ResponseWriter, r *http.Request, field string) ([]string, bool) {
	var body map[string][]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err)
		return nil, false
	}
	ids := body[field]
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", errors.New(field+" không được rỗng"))
		return nil, false
	}
	return ids, true
}

func (h *handler) stockForSkus(w http.ResponseWriter, r *http.Request) {
	ops := h.deps.Ops.Stock
	if ops == nil {
		notConfigured(w, "stock sync")
		return
	}
	skus, ok := decodeIDs(w, r, "skus")
	if !ok {
		return
	}
	h.runOperation(w, r, scheduler.JobStockSync, "skus", func(ctx context.Context) *scheduler.JobResult {
		return ops.ExecuteForSkus(ctx, skus)
	})
}

func (h *handler) priceForProducts(w http.ResponseWriter, r *http.Request) {
	ops := h.deps.Ops.Price
	if ops == nil {
		notConfigured(w, "price sync")
		return
	}
	ids, ok := decodeIDs(w, r, "productIds")
	if !ok {
		return
	}
	h.runOperation(w, r, scheduler.JobPriceSync, "products", func(ctx context.Context) *scheduler.JobResult {
		return ops.ExecuteForProducts(ctx, ids)
	})
}

func (h *handler) pushOrder(w http.ResponseWriter, r *http.Request) {
	ops := h.deps.Ops.Orders
	if ops == nil {
		notConfigured(w, "order push")
		return
	}
	id := chi.URLParam(r, "id")
	h.runOperation(w, r, scheduler.JobOrderPush, "push:"+id, func(ctx context.Context) *scheduler.JobResult {
		return ops.PushOrder(ctx, id)
	})
}

func (h *handler) processRetry(w http.ResponseWriter, r *http.Request) {
	ops := h.deps.Ops.Retry
	if ops == nil {
		notConfigured(w, "retry job")
		return
	}
	entityType := chi.URLParam(r, "entityType")
	h.runOperation(w, r, scheduler.JobRetry, "process:"+entityType, func(ctx context.Context) *scheduler.JobResult {
		return ops.ExecuteForEntityType(ctx, entityType)
	})
}

func (h *handler) getExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Jobs.Execution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.deps.Retry == nil {
		writeError(w, http.StatusNotFound, "not_configured", errors.New("retry service chưa được cấu hình"))
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", errors.New("limit phải là số nguyên dương"))
			return
		}
		limit = n
	}
	entries, err := h.deps.Retry.DeadLetters(r.Context(), r.URL.Query().Get("entityType"), limit)
	if err != nil {
		h.log.WithError(err).Error("❌ Không đọc được dead-letter")
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deadLetters": entries})
}

func (h *handler) jobStats(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": map[string]services.JobStats{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.deps.Metrics.CollectJobStats()})
}

func (h *handler) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, "unknown_job", err)
	case errors.Is(err, scheduler.ErrExecutionNotFound):
		writeError(w, http.StatusNotFound, "execution_not_found", err)
	case errors.Is(err, scheduler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "queue_full", err)
	default:
		h.log.WithError(err).Error("❌ Lỗi scheduler")
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

func writeError(w http.ResponseWriter, code int, errCode string, err error) {
	writeJSON(w, code, map[string]string{"error": errCode, "message": err.Error()})
}
