// Package scheduler runs plugin work on a single primary goroutine, the way
// a game server runs plugin code on its main thread. Synchronous tasks run
// one at a time in submission order; async tasks get their own goroutine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is submitted after Run has returned.
var ErrStopped = errors.New("scheduler stopped")

// DefaultQueueSize is the number of synchronous tasks that may wait for the
// primary goroutine before submitters block.
const DefaultQueueSize = 256

// Task is a handle to scheduled work.
type Task struct {
	id     uint64
	s      *Scheduler
	once   sync.Once
	done   chan struct{}
	repeat bool
}

// ID returns the task's unique id.
func (t *Task) ID() uint64 { return t.id }

// Repeating reports whether the task was created by RunTimer.
func (t *Task) Repeating() bool { return t.repeat }

// Cancel stops the task. A run already in progress completes.
func (t *Task) Cancel() {
	t.once.Do(func() {
		close(t.done)
		t.s.forget(t.id)
	})
}

// Cancelled reports whether the task was cancelled or has finished.
func (t *Task) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Scheduler owns the primary goroutine.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	logger *zap.Logger
	queue  chan func()
	nextID atomic.Uint64

	mu    sync.Mutex
	tasks map[uint64]*Task

	stopOnce sync.Once
	stopped  chan struct{}
	async    sync.WaitGroup
}

// New creates a scheduler whose queue holds size pending tasks.
//
// Precondition: logger must be non-nil; size <= 0 uses DefaultQueueSize.
func New(logger *zap.Logger, size int) *Scheduler {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Scheduler{
		logger:  logger,
		queue:   make(chan func(), size),
		tasks:   make(map[uint64]*Task),
		stopped: make(chan struct{}),
	}
}

// Run executes synchronous tasks until ctx is cancelled. It must be called
// once; the goroutine calling it becomes the primary goroutine.
//
// Postcondition: Pending repeating and delayed tasks are cancelled and
// running async tasks have finished when Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		s.stopOnce.Do(func() { close(s.stopped) })
		s.CancelAll()
		s.async.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.queue:
			s.exec("sync", fn)
		}
	}
}

// RunSync queues fn for the primary goroutine. Tasks queued from one
// goroutine run in the order they were queued while the queue has room.
func (s *Scheduler) RunSync(fn func()) *Task {
	t := s.newTask(false)
	run := s.wrap(t, fn, true)
	select {
	case s.queue <- run:
	default:
		// Full queue: never block the caller, which may be the primary goroutine.
		go s.enqueue(t, run)
	}
	return t
}

// RunLater runs fn on the primary goroutine after delay.
func (s *Scheduler) RunLater(delay time.Duration, fn func()) *Task {
	t := s.newTask(false)
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.submit(t, fn, true)
		case <-t.done:
		case <-s.stopped:
			t.Cancel()
		}
	}()
	return t
}

// RunTimer runs fn on the primary goroutine after delay and then every
// period until the task is cancelled.
//
// Precondition: period must be > 0.
func (s *Scheduler) RunTimer(delay, period time.Duration, fn func()) *Task {
	if period <= 0 {
		panic(fmt.Sprintf("scheduler.RunTimer: period must be > 0, got %s", period))
	}
	t := s.newTask(true)
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-t.done:
			return
		case <-s.stopped:
			t.Cancel()
			return
		}
		s.submit(t, fn, false)

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.submit(t, fn, false)
			case <-t.done:
				return
			case <-s.stopped:
				t.Cancel()
				return
			}
		}
	}()
	return t
}

// RunAsync runs fn on its own goroutine.
func (s *Scheduler) RunAsync(fn func()) *Task {
	t := s.newTask(false)
	s.async.Add(1)
	go func() {
		defer s.async.Done()
		defer t.Cancel()
		s.exec("async", fn)
	}()
	return t
}

// Await runs fn on the primary goroutine and waits for it to return.
//
// Postcondition: Returns fn's error, ctx's error if ctx ends first, or
// ErrStopped when the scheduler is not running.
func (s *Scheduler) Await(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		result <- fn()
	}
	select {
	case s.queue <- wrapped:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the task with id.
//
// Postcondition: Returns false when no pending task has id.
func (s *Scheduler) Cancel(id uint64) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// CancelAll cancels every pending task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
}

// Pending returns the number of tasks that have not finished or been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) newTask(repeat bool) *Task {
	t := &Task{id: s.nextID.Add(1), s: s, done: make(chan struct{}), repeat: repeat}
	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()
	return t
}

func (s *Scheduler) forget(id uint64) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

// submit queues one run of t.
func (s *Scheduler) submit(t *Task, fn func(), last bool) {
	s.enqueue(t, s.wrap(t, fn, last))
}

// wrap skips cancelled tasks. A one-shot task is finished after its run.
func (s *Scheduler) wrap(t *Task, fn func(), last bool) func() {
	return func() {
		if t.Cancelled() {
			return
		}
		if last {
			defer t.Cancel()
		}
		fn()
	}
}

func (s *Scheduler) enqueue(t *Task, run func()) {
	select {
	case s.queue <- run:
	case <-t.done:
	case <-s.stopped:
		t.Cancel()
	}
}

func (s *Scheduler) exec(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("kind", kind),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	fn()
}
