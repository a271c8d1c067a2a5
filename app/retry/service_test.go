package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"agent_erpsync/app/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService() (*Service, *MemoryQueue, *MemoryDeadLetterStore, *fakeClock) {
	q := NewMemoryQueue()
	dl := NewMemoryDeadLetterStore()
	clock := &fakeClock{t: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)}
	s := NewService(q, dl, DefaultPolicy())
	s.now = clock.now
	return s, q, dl, clock
}

func TestRecordFailureCreatesFirstAttempt(t *testing.T) {
	ctx := context.Background()
	s, q, _, clock := newTestService()

	require.NoError(t, s.RecordFailure(ctx, "order", "o-1", errors.New("ERP 503")))

	e, err := q.Get(ctx, "order", "o-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.AttemptCount)
	assert.Equal(t, clock.t.Add(time.Minute), e.NextRetryAt)
	assert.Equal(t, "ERP 503", e.LastError)
}

func TestEntryIsDeadLetteredOnFourthFailure(t *testing.T) {
	ctx := context.Background()
	s, q, dl, clock := newTestService()
	calls := 0
	s.Register("order", func(ctx context.Context, id string) error {
		calls++
		return fmt.Errorf("ERP vẫn lỗi lần %d", calls)
	})

	require.NoError(t, s.RecordFailure(ctx, "order", "o-1", errors.New("ERP 503")))

	// chưa đến hạn thì không xử lý
	res, err := s.ProcessPending(ctx, "", 10)
	require.NoError(t, err)
	assert.Zero(t, res.TotalProcessed)

	expected := []time.Duration{5 * time.Minute, 15 * time.Minute}
	for i, delay := range expected {
		clock.advance(16 * time.Minute)
		res, err = s.ProcessPending(ctx, "order", 10)
		require.NoError(t, err)
		assert.Equal(t, 1, res.FailedCount)
		assert.Zero(t, res.DeadLetterCount)

		e, err := q.Get(ctx, "order", "o-1")
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, i+2, e.AttemptCount)
		assert.Equal(t, clock.t.Add(delay), e.NextRetryAt)
	}

	clock.advance(16 * time.Minute)
	res, err = s.ProcessPending(ctx, "order", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeadLetterCount)
	assert.Equal(t, 3, calls)

	e, err := q.Get(ctx, "order", "o-1")
	require.NoError(t, err)
	assert.Nil(t, e)

	dead, err := s.DeadLetters(ctx, "order", 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 4, dead[0].AttemptCount)
	assert.Equal(t, "ERP vẫn lỗi lần 3", dead[0].LastError)
	assert.Equal(t, time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC), dead[0].FirstFailedAt)

	all, err := dl.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSuccessfulRetryRemovesEntry(t *testing.T) {
	ctx := context.Background()
	s, q, _, clock := newTestService()
	s.Register("order", func(ctx context.Context, id string) error { return nil })

	require.NoError(t, s.RecordFailure(ctx, "order", "o-2", errors.New("timeout")))
	clock.advance(2 * time.Minute)

	res, err := s.ProcessPending(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalProcessed)
	assert.Equal(t, 1, res.SuccessCount)

	n, err := s.Pending(ctx, "order")
	require.NoError(t, err)
	assert.Zero(t, n)
	e, _ := q.Get(ctx, "order", "o-2")
	assert.Nil(t, e)
}

func TestRecordFailureOnExistingEntryCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	s, q, _, _ := newTestService()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordFailure(ctx, "order", "o-3", errors.New("503")))
	}
	e, err := q.Get(ctx, "order", "o-3")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 3, e.AttemptCount)

	require.NoError(t, s.RecordFailure(ctx, "order", "o-3", errors.New("503")))
	e, err = q.Get(ctx, "order", "o-3")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestNotRetryableErrorDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	s, _, _, clock := newTestService()
	s.Register("order", func(ctx context.Context, id string) error {
		return fmt.Errorf("order bị hủy: %w", jobs.ErrNotRetryable)
	})

	require.NoError(t, s.RecordFailure(ctx, "order", "o-4", errors.New("503")))
	clock.advance(2 * time.Minute)

	res, err := s.ProcessPending(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeadLetterCount)

	dead, err := s.DeadLetters(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].AttemptCount)
}

func TestEntryWithoutHandlerStaysQueued(t *testing.T) {
	ctx := context.Background()
	s, q, _, clock := newTestService()

	require.NoError(t, s.RecordFailure(ctx, "customer", "c-1", errors.New("503")))
	clock.advance(2 * time.Minute)

	res, err := s.ProcessPending(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], ErrNoHandler.Error())

	e, err := q.Get(ctx, "customer", "c-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.AttemptCount)
}

func TestHandlerPanicCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	s, q, _, clock := newTestService()
	s.Register("order", func(ctx context.Context, id string) error { panic("nil map") })

	require.NoError(t, s.RecordFailure(ctx, "order", "o-5", errors.New("503")))
	clock.advance(2 * time.Minute)

	res, err := s.ProcessPending(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedCount)
	assert.Contains(t, res.Errors[0], "panic: nil map")

	e, err := q.Get(ctx, "order", "o-5")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 2, e.AttemptCount)
}

func TestCancellationLeavesEntryUntouched(t *testing.T) {
	s, q, _, clock := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	s.Register("order", func(hctx context.Context, id string) error {
		cancel()
		return hctx.Err()
	})

	require.NoError(t, s.RecordFailure(context.Background(), "order", "o-6", errors.New("503")))
	clock.advance(2 * time.Minute)

	_, err := s.ProcessPending(ctx, "", 10)
	assert.ErrorIs(t, err, context.Canceled)

	e, err := q.Get(context.Background(), "order", "o-6")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.AttemptCount)
}

func TestProcessPendingFiltersByEntityTypeAndLimit(t *testing.T) {
	ctx := context.Background()
	s, _, _, clock := newTestService()
	handled := []string{}
	h := func(ctx context.Context, id string) error {
		handled = append(handled, id)
		return nil
	}
	s.Register("order", h)
	s.Register("customer", h)

	require.NoError(t, s.RecordFailure(ctx, "order", "o-1", nil))
	clock.advance(time.Second)
	require.NoError(t, s.RecordFailure(ctx, "order", "o-2", nil))
	require.NoError(t, s.RecordFailure(ctx, "customer", "c-1", nil))
	clock.advance(5 * time.Minute)

	res, err := s.ProcessPending(ctx, "order", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, []string{"o-1"}, handled)

	n, err := s.Pending(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
