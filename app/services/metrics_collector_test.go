package services

import (
	"testing"
	"time"

	"agent_erpsync/app/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(job string, state scheduler.ExecutionState, d time.Duration, r *scheduler.JobResult) scheduler.ExecutionRecord {
	started := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(d)
	return scheduler.ExecutionRecord{
		JobName:     job,
		Trigger:     scheduler.TriggerScheduled,
		State:       state,
		StartedAt:   &started,
		CompletedAt: &completed,
		Result:      r,
	}
}

func TestMetricsCollectorCountsOutcomes(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	m.ObserveExecution(record(scheduler.JobStockSync, scheduler.ExecutionSucceeded, 2*time.Second, scheduler.SuccessfulJobResult("", 10, 10, 0)))
	failed := scheduler.FailedJobResult("ERP lỗi", "timeout")
	m.ObserveExecution(record(scheduler.JobStockSync, scheduler.ExecutionFailed, 4*time.Second, failed))
	m.ObserveExecution(record(scheduler.JobStockSync, scheduler.ExecutionCancelled, 0, scheduler.CancelledJobResult("dừng", nil)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues(scheduler.JobStockSync, "scheduled", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues(scheduler.JobStockSync, "scheduled", "failed")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.items.WithLabelValues(scheduler.JobStockSync, "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.items.WithLabelValues(scheduler.JobStockSync, "errors")))

	stats := m.CollectJobStats()
	require.Contains(t, stats, scheduler.JobStockSync)
	st := stats[scheduler.JobStockSync]
	assert.Equal(t, int64(3), st.RunCount)
	assert.Equal(t, int64(1), st.SuccessCount)
	assert.Equal(t, int64(1), st.ErrorCount)
	assert.Equal(t, int64(1), st.CancelCount)
	assert.Equal(t, int64(4000), st.MaxDurationMs)
	assert.InDelta(t, 2000, st.AvgDurationMs, 0.001)
	assert.Equal(t, "cancelled", st.LastRunStatus)
}

func TestMetricsCollectorDeadLetters(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())
	r := scheduler.SuccessfulJobResult("", 2, 0, 0)
	r.AddError("order:o-1: 503")
	r.AddError("order:o-2: 503")
	r.Complete("")
	r.SetMeta("deadLetterCount", 2)

	m.ObserveExecution(record(scheduler.JobRetry, scheduler.ExecutionFailed, time.Second, r))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deadLetters))
}

func TestMetricsCollectorLastSuccessGauge(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())
	rec := record(scheduler.JobPriceSync, scheduler.ExecutionSucceeded, time.Second, scheduler.SuccessfulJobResult("", 1, 1, 0))

	m.ObserveExecution(rec)

	assert.Equal(t, float64(rec.CompletedAt.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues(scheduler.JobPriceSync)))
}
