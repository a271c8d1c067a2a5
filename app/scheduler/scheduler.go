package scheduler

// Scheduler dùng robfig/cron để lập lịch (cron 5 trường, theo một timezone cố định).
// Mỗi Queue logic có worker pool riêng để các nhóm job không chặn lẫn nhau.

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"agent_erpsync/utility/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownJob trả về khi tên job không có trong cấu hình
	ErrUnknownJob = errors.New("unknown job")
	// ErrQueueFull trả về khi lane của job đã đầy
	ErrQueueFull = errors.New("queue is full")
)

// ParseSchedule parse biểu thức cron 5 trường (phút giờ ngày tháng thứ)
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}

// ExecutionObserver nhận thông báo mỗi khi một execution kết thúc (metrics, alert, ...)
type ExecutionObserver interface {
	ObserveExecution(rec ExecutionRecord)
}

// Options cấu hình Scheduler
type Options struct {
	// Location là timezone dùng để tính lịch chạy (mặc định: time.Local)
	Location *time.Location
	// History lưu lịch sử execution (mặc định: memory)
	History ExecutionStore
	// Observer nhận thông báo khi execution kết thúc (có thể nil)
	Observer ExecutionObserver
	// LaneWorkers là số worker cho mỗi Queue (mặc định: 1)
	LaneWorkers map[Queue]int
	// LaneBuffer là số task tối đa chờ trong mỗi lane (mặc định: 16)
	LaneBuffer int
	// Logger (mặc định: logger "scheduler")
	Logger *logrus.Logger
}

// JobStatus là trạng thái của một job dùng cho status API.
// Các thời điểm và LastStatus chỉ mang tính tham khảo, có thể nil.
type JobStatus struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Schedule        string          `json:"schedule"`
	Queue           Queue           `json:"queue"`
	Enabled         bool            `json:"enabled"`
	Running         bool            `json:"running"`
	LastExecution   *time.Time      `json:"lastExecution"`
	NextExecution   *time.Time      `json:"nextExecution"`
	LastStatus      *ExecutionState `json:"lastStatus"`
	LastExecutionID string          `json:"lastExecutionId,omitempty"`
}

// Scheduler là nguồn sự thật duy nhất về các job: job nào tồn tại, lịch chạy và trạng thái bật/tắt.
// Struct này thread-safe; definitions chỉ thay đổi qua Enable/Disable.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	history  ExecutionStore
	observer ExecutionObserver
	log      *logrus.Entry

	mu      sync.RWMutex
	order   []string
	defs    map[string]*JobDefinition
	runners map[string]Job
	entries map[string]cron.EntryID
	lanes   map[Queue]*lane

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler tạo một instance mới của Scheduler và khởi động worker của các lane.
// Cron chưa chạy cho đến khi gọi Start.
func NewScheduler(opts Options) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	l := opts.Logger
	if l == nil {
		l = logger.GetSchedulerLogger()
	}
	history := opts.History
	if history == nil {
		history = NewMemoryExecutionStore(0)
	}
	cronLogger := logger.NewCronLogger(l)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		location: loc,
		history:  history,
		observer: opts.Observer,
		log:      l.WithField("component", "scheduler"),
		defs:     make(map[string]*JobDefinition),
		runners:  make(map[string]Job),
		entries:  make(map[string]cron.EntryID),
		lanes:    make(map[Queue]*lane),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, q := range []Queue{QueueSync, QueueOrders, QueueRetry} {
		s.lanes[q] = newLane(q, opts.LaneWorkers[q], opts.LaneBuffer, s.runTask)
	}
	return s
}

// RegisterAll nạp toàn bộ definitions; job enabled được đăng ký vào cron.
// Mỗi definition phải có runner tương ứng trong runners.
// Cron của robfig không chạy bù các lần bị lỡ khi process không chạy: job chờ tick kế tiếp.
func (s *Scheduler) RegisterAll(defs []JobDefinition, runners map[string]Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		if _, exists := s.defs[def.Name]; exists {
			return fmt.Errorf("job %s bị khai báo trùng", def.Name)
		}
		job, ok := runners[def.Name]
		if !ok || job == nil {
			return fmt.Errorf("job %s không có runner", def.Name)
		}

		d := def
		s.defs[d.Name] = &d
		s.runners[d.Name] = job
		s.order = append(s.order, d.Name)

		if d.Enabled {
			if err := s.addCronEntryLocked(d.Name); err != nil {
				return err
			}
		} else {
			s.log.WithField("job_name", d.Name).Info("Job đang bị disable, không đăng ký vào cron")
		}
	}
	return nil
}

// addCronEntryLocked đăng ký job vào cron. Caller phải giữ s.mu.
func (s *Scheduler) addCronEntryLocked(name string) error {
	def := s.defs[name]
	if id, exists := s.entries[name]; exists {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	id, err := s.cron.AddFunc(def.Schedule, func() {
		if _, err := s.dispatch(name, TriggerScheduled, "", nil); err != nil {
			s.log.WithError(err).WithField("job_name", name).Warn("Bỏ qua tick do không xếp được job vào queue")
		}
	})
	if err != nil {
		return fmt.Errorf("đăng ký job %s vào cron: %w", name, err)
	}
	s.entries[name] = id
	s.log.WithFields(logrus.Fields{
		"job_name": name,
		"schedule": def.Schedule,
		"queue":    def.Queue,
		"entry_id": id,
	}).Info("✅ Đã đăng ký job vào cron")
	return nil
}

// Start khởi động cron
func (s *Scheduler) Start() {
	s.mu.RLock()
	s.log.WithFields(logrus.Fields{
		"total_jobs":   len(s.defs),
		"enabled_jobs": len(s.entries),
		"timezone":     s.location.String(),
	}).Info("🚀 Đang khởi động scheduler")
	s.mu.RUnlock()
	s.cron.Start()
}

// Stop dừng cron và các lane. Các execution đang chạy được chờ đến khi ctx hết hạn,
// sau đó bị hủy qua context.
func (s *Scheduler) Stop(ctx context.Context) error {
	<-s.cron.Stop().Done()

	s.mu.RLock()
	lanes := make([]*lane, 0, len(s.lanes))
	for _, l := range s.lanes {
		lanes = append(lanes, l)
	}
	s.mu.RUnlock()

	for _, l := range lanes {
		l.close()
	}
	for _, l := range lanes {
		select {
		case <-l.wait():
		case <-ctx.Done():
			s.cancel()
			<-l.wait()
		}
	}
	s.cancel()
	return ctx.Err()
}

// TriggerNow chạy job ngay lập tức trên lane của nó, trả về execution ID để theo dõi.
// Job bị disable vẫn chạy được bằng cách này.
func (s *Scheduler) TriggerNow(_ context.Context, name string) (string, error) {
	return s.dispatch(name, TriggerManual, "", nil)
}

// TriggerOperation chạy fn thay cho Execute của job name, trên lane và với timeout của job đó.
// operation được lưu vào execution record (vd. "delta", "push:o-1").
func (s *Scheduler) TriggerOperation(_ context.Context, name, operation string, fn func(ctx context.Context) *JobResult) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("operation %s của %s không có logic thực thi", operation, name)
	}
	return s.dispatch(name, TriggerManual, operation, fn)
}

// operationJob chạy một thao tác vận hành dưới tên của job đã đăng ký
type operationJob struct {
	name string
	fn   func(ctx context.Context) *JobResult
}

func (o operationJob) Execute(ctx context.Context) *JobResult { return o.fn(ctx) }

func (o operationJob) GetName() string { return o.name }

func (s *Scheduler) dispatch(name string, trigger Trigger, operation string, fn func(ctx context.Context) *JobResult) (string, error) {
	s.mu.RLock()
	def, ok := s.defs[name]
	if !ok {
		s.mu.RUnlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	d := *def
	var job Job = s.runners[name]
	ln := s.lanes[d.Queue]
	s.mu.RUnlock()
	if fn != nil {
		job = operationJob{name: name, fn: fn}
	}

	rec := ExecutionRecord{
		ID:         uuid.NewString(),
		JobName:    name,
		Queue:      d.Queue,
		Trigger:    trigger,
		Operation:  operation,
		State:      ExecutionQueued,
		EnqueuedAt: time.Now(),
	}
	s.saveRecord(rec)

	if !ln.submit(task{record: rec, def: d, job: job}) {
		now := time.Now()
		rec.State = ExecutionCancelled
		rec.CompletedAt = &now
		rec.Result = CancelledJobResult("queue "+string(d.Queue)+" đầy, execution bị bỏ qua", nil)
		s.saveRecord(rec)
		return "", fmt.Errorf("%w: %s", ErrQueueFull, d.Queue)
	}

	s.log.WithFields(logrus.Fields{
		"job_name":     name,
		"execution_id": rec.ID,
		"trigger":      trigger,
		"queue":        d.Queue,
	}).Info("⚡ Đã xếp job vào queue")
	return rec.ID, nil
}

// runTask được worker của lane gọi để thực thi một execution
func (s *Scheduler) runTask(t task) {
	rec := t.record
	ctx := s.baseCtx
	var cancel context.CancelFunc = func() {}
	if timeout := t.def.Timeout(); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	started := time.Now()
	rec.State = ExecutionRunning
	rec.StartedAt = &started
	s.saveRecord(rec)

	result := s.executeSafely(ctx, t.job)

	completed := time.Now()
	rec.CompletedAt = &completed
	rec.Result = result
	rec.State = stateFromOutcome(result.Outcome)
	s.saveRecord(rec)

	if s.observer != nil {
		s.observer.ObserveExecution(rec)
	}
}

// executeSafely bảo đảm panic của job không làm crash scheduler
func (s *Scheduler) executeSafely(ctx context.Context, job Job) (result *JobResult) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.log.WithField("job_name", job.GetName()).WithField("panic", r).Error("🚨 PANIC trong job")
			result = FailedJobResult(fmt.Sprintf("panic: %v", r), string(buf[:n]))
		}
	}()
	result = job.Execute(ctx)
	if result == nil {
		result = FailedJobResult("job không trả về kết quả")
	}
	return result
}

func (s *Scheduler) saveRecord(rec ExecutionRecord) {
	// Lịch sử chỉ mang tính tham khảo, lỗi lưu không làm hỏng execution
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Save(ctx, rec); err != nil {
		s.log.WithError(err).WithField("execution_id", rec.ID).Warn("Không lưu được execution history")
	}
}

// Disable gỡ job khỏi cron và tắt cờ enabled. Execution đang chạy không bị hủy.
func (s *Scheduler) Disable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if id, exists := s.entries[name]; exists {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	def.Enabled = false
	s.log.WithField("job_name", name).Info("⏸️ Đã disable job")
	return nil
}

// Enable đăng ký lại job vào cron với biểu thức cron ban đầu
func (s *Scheduler) Enable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if def.Enabled {
		if _, registered := s.entries[name]; registered {
			return nil
		}
	}
	if err := s.addCronEntryLocked(name); err != nil {
		return err
	}
	def.Enabled = true
	return nil
}

// Definition trả về bản sao definition của job
func (s *Scheduler) Definition(name string) (JobDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	if !ok {
		return JobDefinition{}, false
	}
	return *def, true
}

// Execution trả về một execution theo ID (dùng để poll sau TriggerNow)
func (s *Scheduler) Execution(ctx context.Context, id string) (*ExecutionRecord, error) {
	return s.history.Get(ctx, id)
}

// Status báo cáo trạng thái của mọi job theo thứ tự đăng ký.
// Lỗi đọc history chỉ được log, trường tương ứng để nil.
func (s *Scheduler) Status(ctx context.Context) []JobStatus {
	s.mu.RLock()
	statuses := make([]JobStatus, 0, len(s.order))
	now := time.Now().In(s.location)
	for _, name := range s.order {
		def := s.defs[name]
		st := JobStatus{
			Name:        def.Name,
			Description: def.Description,
			Schedule:    def.Schedule,
			Queue:       def.Queue,
			Enabled:     def.Enabled,
		}
		if rp, ok := s.runners[name].(RunningProvider); ok {
			st.Running = rp.IsRunning()
		}
		if id, ok := s.entries[name]; ok {
			next := s.cron.Entry(id).Next
			if next.IsZero() {
				// cron chưa start thì entry chưa có Next, tự tính từ schedule
				if sched, err := ParseSchedule(def.Schedule); err == nil {
					next = sched.Next(now)
				}
			}
			if !next.IsZero() {
				st.NextExecution = &next
			}
		}
		statuses = append(statuses, st)
	}
	s.mu.RUnlock()

	for i := range statuses {
		rec, err := s.history.Last(ctx, statuses[i].Name)
		if err != nil {
			s.log.WithError(err).WithField("job_name", statuses[i].Name).Warn("Không đọc được execution history")
			continue
		}
		if rec == nil {
			continue
		}
		last := rec.EnqueuedAt
		if rec.StartedAt != nil {
			last = *rec.StartedAt
		}
		state := rec.State
		statuses[i].LastExecution = &last
		statuses[i].LastStatus = &state
		statuses[i].LastExecutionID = rec.ID
	}
	return statuses
}
