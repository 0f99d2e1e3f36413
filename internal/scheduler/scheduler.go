// Package scheduler runs named periodic tasks on a shared clock. Tasks are
// individually startable and stoppable, and every run receives a context
// that is cancelled when the task stops.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
)

// Func is one scheduled unit of work. Errors are logged, never fatal; the
// task keeps its schedule.
type Func func(ctx context.Context) error

// Task runs fn every interval until stopped.
type Task struct {
	name     string
	interval time.Duration
	clock    timeutil.Clock
	fn       Func

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewTask builds a stopped task. Start it explicitly.
func NewTask(name string, interval time.Duration, clock timeutil.Clock, fn Func) *Task {
	return &Task{name: name, interval: interval, clock: clock, fn: fn}
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Running reports whether the task loop is active.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start begins the periodic loop. Starting an already running task is a
// no-op. The loop also stops when the parent context is cancelled.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true

	go t.loop(runCtx)
}

func (t *Task) loop(ctx context.Context) {
	defer close(t.done)
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := t.fn(ctx); err != nil {
				monitoring.Logf("task %s: %v", t.name, err)
			}
		}
	}
}

// Stop cancels the loop and waits for any in-flight run to return.
// Stopping a stopped task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done
}

// RunNow executes the task function once, outside its schedule.
func (t *Task) RunNow(ctx context.Context) error {
	return t.fn(ctx)
}

// Group owns a set of tasks and stops them together.
type Group struct {
	mu    sync.Mutex
	tasks []*Task
}

// Add registers and starts a task under the group's lifetime.
func (g *Group) Add(ctx context.Context, task *Task) {
	g.mu.Lock()
	g.tasks = append(g.tasks, task)
	g.mu.Unlock()
	task.Start(ctx)
}

// StopAll stops every task in reverse registration order.
func (g *Group) StopAll() {
	g.mu.Lock()
	tasks := make([]*Task, len(g.tasks))
	copy(tasks, g.tasks)
	g.mu.Unlock()

	for i := len(tasks) - 1; i >= 0; i-- {
		tasks[i].Stop()
	}
}
