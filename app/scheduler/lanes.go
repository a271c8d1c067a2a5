package scheduler

import (
	"sync"
)

// task là một execution đã được xếp vào lane, chờ worker lấy ra chạy
type task struct {
	record ExecutionRecord
	def    JobDefinition
	job    Job
}

// lane là một worker pool riêng cho một Queue logic.
// Mỗi lane có channel đệm giới hạn; submit không bao giờ block.
type lane struct {
	name   Queue
	tasks  chan task
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newLane(name Queue, workers, buffer int, run func(task)) *lane {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 16
	}
	l := &lane{
		name:  name,
		tasks: make(chan task, buffer),
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for t := range l.tasks {
				run(t)
			}
		}()
	}
	return l
}

// submit đưa task vào lane; trả về false nếu lane đầy hoặc đã đóng
func (l *lane) submit(t task) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	select {
	case l.tasks <- t:
		return true
	default:
		return false
	}
}

// close ngừng nhận task mới; các task đã xếp hàng vẫn được chạy hết
func (l *lane) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.tasks)
}

// wait trả về channel đóng lại khi tất cả worker đã dừng
func (l *lane) wait() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	return done
}
