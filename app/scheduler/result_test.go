package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteWithoutErrorsSucceeds(t *testing.T) {
	r := StartJobResult()
	r.ProcessedCount = 3
	r.SuccessCount = 3
	r.Complete("xong")

	assert.Equal(t, OutcomeSucceeded, r.Outcome)
	assert.True(t, r.Success)
	assert.False(t, r.Retryable)
	assert.Equal(t, "xong", r.Message)
	assert.False(t, r.CompletedAt.IsZero())
}

func TestCompleteWithErrorsFailsAndIsRetryable(t *testing.T) {
	r := StartJobResult()
	r.ProcessedCount = 2
	r.SuccessCount = 1
	r.AddErrorf("sku %s: timeout", "A-1")
	r.Complete("")

	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.False(t, r.Success)
	assert.True(t, r.Retryable)
	assert.Equal(t, 1, r.ErrorCount)
	assert.Equal(t, []string{"sku A-1: timeout"}, r.Errors)
}

func TestNormalizeKeepsProcessedAboveSuccessAndErrors(t *testing.T) {
	r := StartJobResult()
	r.SuccessCount = 4
	r.AddError("a")
	r.AddError("b")
	r.Complete("")

	assert.Equal(t, 6, r.ProcessedCount)
	assert.GreaterOrEqual(t, r.ProcessedCount, r.SuccessCount+r.ErrorCount)
}

func TestFailedJobResultCarriesDetails(t *testing.T) {
	r := FailedJobResult("ERP không phản hồi", "dial tcp: timeout")

	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.False(t, r.Success)
	assert.Equal(t, 1, r.ErrorCount)
	assert.Equal(t, "ERP không phản hồi", r.Message)
}

func TestSuccessfulJobResultCounts(t *testing.T) {
	r := SuccessfulJobResult("ok", 5, 4, 1)

	assert.True(t, r.Success)
	assert.Equal(t, 5, r.ProcessedCount)
	assert.Equal(t, 4, r.SuccessCount)
	assert.Equal(t, 1, r.SkippedCount)
	assert.Zero(t, r.ErrorCount)
}

func TestCancelledJobResultKeepsPartialCounts(t *testing.T) {
	partial := StartJobResult()
	partial.ProcessedCount = 2
	partial.SuccessCount = 2
	partial.Retryable = true

	r := CancelledJobResult("dừng", partial)

	assert.True(t, r.Cancelled())
	assert.False(t, r.Success)
	assert.False(t, r.Retryable)
	assert.Equal(t, 2, r.ProcessedCount)

	fresh := CancelledJobResult("dừng", nil)
	require.NotNil(t, fresh)
	assert.Equal(t, OutcomeCancelled, fresh.Outcome)
}

func TestMergeAccumulatesCounts(t *testing.T) {
	a := SuccessfulJobResult("", 2, 2, 0)
	b := StartJobResult()
	b.ProcessedCount = 3
	b.SuccessCount = 1
	b.AddError("x")
	b.SkippedCount = 1

	a.Merge(b)
	a.Merge(nil)

	assert.Equal(t, 5, a.ProcessedCount)
	assert.Equal(t, 3, a.SuccessCount)
	assert.Equal(t, 1, a.ErrorCount)
	assert.Equal(t, 1, a.SkippedCount)
	assert.Equal(t, []string{"x"}, a.Errors)
}

func TestSetMetaOnNilMap(t *testing.T) {
	r := &JobResult{}
	r.SetMeta("since", "2024-01-01")
	assert.Equal(t, "2024-01-01", r.Metadata["since"])
}
