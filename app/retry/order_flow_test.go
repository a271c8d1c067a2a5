package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agent_erpsync/app/jobs"
	"agent_erpsync/app/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// erpPusher đếm số lần gọi ERP theo order; order trong failing luôn lỗi
type erpPusher struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
	// gate (nếu có) giữ lần gọi đầu tiên cho đến khi bị đóng
	gate    chan struct{}
	entered chan struct{}
}

func newERPPusher(failing ...string) *erpPusher {
	p := &erpPusher{calls: map[string]int{}, failing: map[string]bool{}}
	for _, id := range failing {
		p.failing[id] = true
	}
	return p
}

func (p *erpPusher) PushOrder(_ context.Context, orderID string) (jobs.PushResult, error) {
	p.mu.Lock()
	p.calls[orderID]++
	first := p.calls[orderID] == 1
	fail := p.failing[orderID]
	p.mu.Unlock()

	if first && p.gate != nil {
		close(p.entered)
		<-p.gate
	}
	if fail {
		return jobs.PushResult{}, errors.New("ERP 503")
	}
	return jobs.PushResult{Success: true, DocumentRef: "FT-" + orderID}, nil
}

func (p *erpPusher) count(orderID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[orderID]
}

func newOrderFlow(t *testing.T, pusher *erpPusher, orders ...jobs.Order) (*Service, *jobs.OrderPushJob, *jobs.MemoryOrderStore, *fakeClock) {
	t.Helper()
	s, _, _, clock := newTestService()
	store := jobs.NewMemoryOrderStore(orders...)
	job := jobs.NewOrderPushJob(scheduler.JobOrderPush, jobs.OrderPushServices{
		Orders:  store,
		Pusher:  pusher,
		Retry:   s,
		Tracker: s,
	}, jobs.OrderPushOptions{BatchSize: 10, Delay: -1})
	s.Register(jobs.RetryEntityOrder, job.RetryOrder)
	return s, job, store, clock
}

func TestBatchLeavesFailingOrderToRetryUntilDeadLetter(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	pusher := newERPPusher("o-1")
	s, job, store, clock := newOrderFlow(t, pusher,
		jobs.Order{ID: "o-1", Status: jobs.OrderConfirmed, CreatedAt: t0},
		jobs.Order{ID: "o-2", Status: jobs.OrderConfirmed, CreatedAt: t0.Add(time.Minute)},
	)

	r := job.Execute(ctx)
	assert.Equal(t, 2, r.ProcessedCount)
	assert.Equal(t, 1, r.ErrorCount)
	assert.Equal(t, 1, pusher.count("o-1"))

	// order đang chờ retry không được batch chọn lại, kể cả khi đã đến hạn
	store.Put(jobs.Order{ID: "o-3", Status: jobs.OrderReady, CreatedAt: t0.Add(2 * time.Minute)})
	for i := 0; i < 3; i++ {
		clock.advance(time.Hour)
		r = job.Execute(ctx)
		require.Equal(t, scheduler.OutcomeSucceeded, r.Outcome)
		assert.Equal(t, 1, r.Metadata["excludedCount"])
	}
	assert.Equal(t, 1, pusher.count("o-1"))
	assert.Equal(t, 1, pusher.count("o-3"))

	// retry chạy theo backoff: lần 2, 3, rồi lần 4 chuyển sang dead-letter
	for attempt := 2; attempt <= 4; attempt++ {
		res, err := s.ProcessPending(ctx, jobs.RetryEntityOrder, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, res.FailedCount)
		if attempt == 4 {
			assert.Equal(t, 1, res.DeadLetterCount)
		}
		clock.advance(16 * time.Minute)
	}
	assert.Equal(t, 4, pusher.count("o-1"))

	pending, err := s.Pending(ctx, jobs.RetryEntityOrder)
	require.NoError(t, err)
	assert.Zero(t, pending)

	tracked, err := s.TrackedIDs(ctx, jobs.RetryEntityOrder)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1"}, tracked)

	// order đã dead-letter cũng không quay lại batch
	r = job.Execute(ctx)
	assert.Equal(t, scheduler.OutcomeSucceeded, r.Outcome)
	assert.Zero(t, r.ProcessedCount)
	assert.Equal(t, 4, pusher.count("o-1"))

	dead, err := s.DeadLetters(ctx, jobs.RetryEntityOrder, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 4, dead[0].AttemptCount)
}

func TestRetryAndSinglePushDoNotDoublePush(t *testing.T) {
	ctx := context.Background()
	pusher := newERPPusher()
	pusher.gate = make(chan struct{})
	pusher.entered = make(chan struct{})
	s, job, store, clock := newOrderFlow(t, pusher, jobs.Order{ID: "o-1", Status: jobs.OrderConfirmed})

	require.NoError(t, s.RecordFailure(ctx, jobs.RetryEntityOrder, "o-1", errors.New("ERP 503")))
	clock.advance(2 * time.Minute)

	var wg sync.WaitGroup
	var single *scheduler.JobResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		single = job.PushOrder(ctx, "o-1")
	}()
	<-pusher.entered

	var res jobs.RetryBatchResult
	var perr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, perr = s.ProcessPending(ctx, jobs.RetryEntityOrder, 10)
	}()
	close(pusher.gate)
	wg.Wait()

	require.NoError(t, perr)
	require.Equal(t, scheduler.OutcomeSucceeded, single.Outcome)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, pusher.count("o-1"))

	o, err := store.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "ERP:FT-o-1", o.TrackingNumber)

	pending, err := s.Pending(ctx, jobs.RetryEntityOrder)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestConcurrentBatchAndRetryTicks(t *testing.T) {
	ctx := context.Background()
	pusher := newERPPusher()
	s, job, _, clock := newOrderFlow(t, pusher,
		jobs.Order{ID: "o-1", Status: jobs.OrderConfirmed},
		jobs.Order{ID: "o-2", Status: jobs.OrderPreparing},
	)

	require.NoError(t, s.RecordFailure(ctx, jobs.RetryEntityOrder, "o-1", errors.New("ERP 503")))
	clock.advance(2 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			job.Execute(ctx)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.ProcessPending(ctx, jobs.RetryEntityOrder, 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, pusher.count("o-1"))
	assert.Equal(t, 1, pusher.count("o-2"))

	tracked, err := s.TrackedIDs(ctx, jobs.RetryEntityOrder)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}
