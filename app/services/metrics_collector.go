/*
Package services chứa các services hỗ trợ cho agent.
File này thu thập metrics của các lần chạy job và xuất ra Prometheus.
*/
package services

import (
	"sync"
	"time"

	"agent_erpsync/app/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector implement scheduler.ExecutionObserver và giữ thống kê chạy của từng job
type MetricsCollector struct {
	executions  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	deadLetters prometheus.Counter

	mu    sync.RWMutex
	stats map[string]*JobStats
}

// JobStats là thống kê chạy của một job kể từ khi process khởi động
type JobStats struct {
	RunCount      int64   `json:"runCount"`
	SuccessCount  int64   `json:"successCount"`
	ErrorCount    int64   `json:"errorCount"`
	CancelCount   int64   `json:"cancelCount"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	MaxDurationMs int64   `json:"maxDurationMs"`
	LastRunAt     int64   `json:"lastRunAt"`
	LastRunStatus string  `json:"lastRunStatus"`
}

var _ scheduler.ExecutionObserver = (*MetricsCollector)(nil)

// NewMetricsCollector đăng ký các metric vào reg (nil = prometheus.DefaultRegisterer)
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &MetricsCollector{
		executions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpsync_job_executions_total",
				Help: "Number of job executions by outcome",
			},
			[]string{"job", "trigger", "state"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "erpsync_job_duration_seconds",
				Help:    "Duration of job executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"job"},
		),
		items: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpsync_job_items_total",
				Help: "Number of items handled by jobs",
			},
			[]string{"job", "kind"},
		),
		lastSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "erpsync_job_last_success_timestamp_seconds",
				Help: "Unix time of the last successful execution",
			},
			[]string{"job"},
		),
		deadLetters: f.NewCounter(
			prometheus.CounterOpts{
				Name: "erpsync_retry_dead_letters_total",
				Help: "Number of retry entries promoted to dead-letter",
			},
		),
		stats: make(map[string]*JobStats),
	}
}

// ObserveExecution được scheduler gọi khi một execution kết thúc
func (m *MetricsCollector) ObserveExecution(rec scheduler.ExecutionRecord) {
	m.executions.WithLabelValues(rec.JobName, string(rec.Trigger), string(rec.State)).Inc()

	r := rec.Result
	var durationMs int64
	if rec.StartedAt != nil && rec.CompletedAt != nil {
		durationMs = rec.CompletedAt.Sub(*rec.StartedAt).Milliseconds()
		m.duration.WithLabelValues(rec.JobName).Observe(float64(durationMs) / 1000)
	}
	if r != nil {
		m.items.WithLabelValues(rec.JobName, "processed").Add(float64(r.ProcessedCount))
		m.items.WithLabelValues(rec.JobName, "succeeded").Add(float64(r.SuccessCount))
		m.items.WithLabelValues(rec.JobName, "errors").Add(float64(r.ErrorCount))
		m.items.WithLabelValues(rec.JobName, "skipped").Add(float64(r.SkippedCount))
		if n, ok := r.Metadata["deadLetterCount"].(int); ok && n > 0 {
			m.deadLetters.Add(float64(n))
		}
	}
	if rec.State == scheduler.ExecutionSucceeded && rec.CompletedAt != nil {
		m.lastSuccess.WithLabelValues(rec.JobName).Set(float64(rec.CompletedAt.Unix()))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[rec.JobName]
	if !ok {
		st = &JobStats{}
		m.stats[rec.JobName] = st
	}
	st.RunCount++
	switch rec.State {
	case scheduler.ExecutionSucceeded:
		st.SuccessCount++
	case scheduler.ExecutionCancelled:
		st.CancelCount++
	default:
		st.ErrorCount++
	}
	st.AvgDurationMs += (float64(durationMs) - st.AvgDurationMs) / float64(st.RunCount)
	if durationMs > st.MaxDurationMs {
		st.MaxDurationMs = durationMs
	}
	if rec.StartedAt != nil {
		st.LastRunAt = rec.StartedAt.Unix()
	} else {
		st.LastRunAt = time.Now().Unix()
	}
	st.LastRunStatus = string(rec.State)
}

// CollectJobStats trả về bản sao thống kê của mọi job đã chạy
func (m *MetricsCollector) CollectJobStats() map[string]JobStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]JobStats, len(m.stats))
	for name, st := range m.stats {
		out[name] = *st
	}
	return out
}
