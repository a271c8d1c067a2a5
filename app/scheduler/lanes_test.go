package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneRejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var ran int32
	l := newLane(QueueSync, 1, 1, func(task) {
		<-release
		atomic.AddInt32(&ran, 1)
	})

	require.True(t, l.submit(task{}))
	// worker đang giữ task đầu, task thứ hai nằm trong buffer
	require.Eventually(t, func() bool { return l.submit(task{}) }, time.Second, 5*time.Millisecond)
	assert.False(t, l.submit(task{}))

	close(release)
	l.close()
	select {
	case <-l.wait():
	case <-time.After(2 * time.Second):
		t.Fatal("lane không dừng")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&ran))
}

func TestLaneClosedRejectsSubmit(t *testing.T) {
	l := newLane(QueueRetry, 2, 4, func(task) {})
	l.close()
	l.close()
	assert.False(t, l.submit(task{}))
	<-l.wait()
}
