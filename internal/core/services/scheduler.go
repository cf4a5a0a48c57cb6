package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// DefaultSchedulerTick is how often the scheduler checks for due tasks.
const DefaultSchedulerTick = 30 * time.Second

// Task is a periodic maintenance job.
type Task struct {
	Name     string
	Interval time.Duration

	// Run performs the job and reports how many items it processed.
	Run func(ctx context.Context) (int, error)
}

// TaskResult records one execution of a task.
type TaskResult struct {
	Task           string
	StartedAt      time.Time
	EndedAt        time.Time
	ItemsProcessed int
	Err            error
}

// TaskState is the scheduling state of a task.
type TaskState struct {
	Task
	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time
	LastError   string
}

// Scheduler runs maintenance tasks in the background while the service
// is up: purging expired cache entries and idle rate-limit buckets.
type Scheduler struct {
	tick time.Duration
	now  func() time.Time

	mu      sync.Mutex
	tasks   map[string]*TaskState
	order   []string
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	history []TaskResult
}

// NewScheduler creates a scheduler that checks for due tasks every tick.
func NewScheduler(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultSchedulerTick
	}
	return &Scheduler{
		tick:  tick,
		now:   time.Now,
		tasks: make(map[string]*TaskState),
	}
}

// Register adds a task. A task registered twice keeps its first definition.
func (s *Scheduler) Register(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.Name]; ok || task.Run == nil || task.Interval <= 0 {
		return
	}
	s.tasks[task.Name] = &TaskState{Task: task, NextRun: s.now().Add(task.Interval)}
	s.order = append(s.order, task.Name)
}

// Start runs the scheduler loop. It blocks until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.halt()
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// Stop ends the loop and waits for running tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) halt() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
}

// runDue executes every task whose next run has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*TaskState
	for _, name := range s.order {
		t := s.tasks[name]
		if !t.NextRun.After(now) {
			// Push NextRun forward now so a slow task is not started twice.
			t.NextRun = now.Add(t.Interval)
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runTask(ctx, t)
		}()
	}
}

// RunNow executes the named task synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) (TaskResult, bool) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return TaskResult{}, false
	}
	return s.runTask(ctx, t), true
}

func (s *Scheduler) runTask(ctx context.Context, t *TaskState) TaskResult {
	result := TaskResult{Task: t.Name, StartedAt: s.now()}
	result.ItemsProcessed, result.Err = t.Run(ctx)
	result.EndedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	t.LastRun = result.StartedAt
	t.NextRun = result.EndedAt.Add(t.Interval)
	if result.Err != nil {
		t.LastError = result.Err.Error()
		logger.Warn("scheduler: task %s failed: %v", t.Name, result.Err)
	} else {
		t.LastError = ""
		t.LastSuccess = result.EndedAt
		if result.ItemsProcessed > 0 {
			logger.Debug("scheduler: task %s processed %d items", t.Name, result.ItemsProcessed)
		}
	}

	// Keep the last 100 results.
	s.history = append(s.history, result)
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	return result
}

// Tasks returns the state of every registered task in registration order.
func (s *Scheduler) Tasks() []TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskState, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.tasks[name])
	}
	return out
}

// History returns recent task results, oldest first.
func (s *Scheduler) History() []TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TaskResult(nil), s.history...)
}
