// Package shutdownqueue collects named cleanup tasks and drains them in
// reverse order of registration.
//
//	q := shutdownqueue.New(logger)
//	q.Add("postgres", func(context.Context) error { return db.Close() })
//	q.Add("http server", srv.Shutdown)
//	...
//	err := q.Shutdown(ctx) // http server first, then postgres
//
// Tasks run once. Panics are recovered and reported as errors. Shutdown is
// idempotent and returns every task error joined with errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a shutdown function. It should honor ctx.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

type Queue struct {
	mu     sync.Mutex
	tasks  []namedTask
	closed bool
	log    *slog.Logger
}

func New(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}

	return &Queue{log: log}
}

// Add registers a task. Nil tasks and tasks added once Shutdown has started
// are ignored.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warn("shutdown task registered too late, ignoring", "task", name)

		return
	}

	q.tasks = append(q.tasks, namedTask{name: name, run: t})
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown runs pending tasks newest first. If ctx ends mid-drain the
// remaining tasks are skipped and the context error is part of the result.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		err := ctx.Err()
		if err != nil {
			q.log.Warn("shutdown interrupted", "pending", i+1, "error", err)
			errs = append(errs, fmt.Errorf("shutdown canceled: %w", err))

			break
		}

		err = q.run(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *Queue) run(ctx context.Context, t namedTask) (err error) {
	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %q: %v", t.name, r)
		}

		if err != nil {
			q.log.Error("shutdown task failed", "task", t.name, "error", err)

			return
		}

		q.log.Info("shutdown task done", "task", t.name, "took", time.Since(start))
	}()

	err = t.run(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}

	return nil
}
