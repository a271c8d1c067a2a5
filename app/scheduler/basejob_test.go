package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseJobWithoutCallbackFails(t *testing.T) {
	j := NewBaseJob("empty-job")
	r := j.Execute(context.Background())
	assert.Equal(t, OutcomeFailed, r.Outcome)
}

func TestBaseJobSkipsWhenAlreadyRunning(t *testing.T) {
	j := NewBaseJob("busy-job")
	started := make(chan struct{})
	release := make(chan struct{})
	j.SetExecuteInternalCallback(func(ctx context.Context) *JobResult {
		close(started)
		<-release
		return SuccessfulJobResult("", 1, 1, 0)
	})

	done := make(chan *JobResult, 1)
	go func() { done <- j.Execute(context.Background()) }()
	<-started
	assert.True(t, j.IsRunning())

	skipped := j.Execute(context.Background())
	assert.True(t, skipped.Success)
	assert.Equal(t, 1, skipped.SkippedCount)
	assert.Equal(t, "already_running", skipped.Metadata["skipped"])

	close(release)
	first := <-done
	assert.Equal(t, 1, first.SuccessCount)
	assert.False(t, j.IsRunning())
}

func TestBaseJobCancelledBeforeStart(t *testing.T) {
	j := NewBaseJob("late-job")
	called := false
	j.SetExecuteInternalCallback(func(ctx context.Context) *JobResult {
		called = true
		return SuccessfulJobResult("", 0, 0, 0)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := j.Execute(ctx)

	assert.False(t, called)
	assert.True(t, r.Cancelled())
}

func TestBaseJobRecoversPanic(t *testing.T) {
	j := NewBaseJob("panic-job")
	j.SetExecuteInternalCallback(func(ctx context.Context) *JobResult {
		panic("boom")
	})

	r := j.Execute(context.Background())
	require.NotNil(t, r)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, "panic: boom", r.Message)
	assert.False(t, j.IsRunning())
}

func TestBaseJobNilResultBecomesFailure(t *testing.T) {
	j := NewBaseJob("nil-job")
	j.SetExecuteInternalCallback(func(ctx context.Context) *JobResult { return nil })

	r := j.Execute(context.Background())
	require.NotNil(t, r)
	assert.Equal(t, OutcomeFailed, r.Outcome)
}
