// Package pipeline runs an ordered list of tasks over a deployment context.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/systemstart/launchpad/pkg/deploy"
)

// Action is the effect of one task. It mutates dc in place; returning an
// error discards every mutation it made.
type Action func(ctx context.Context, dc *deploy.Context) error

// Task is one named unit of pipeline work.
type Task struct {
	Title  string
	Action Action
}

// TaskError identifies the task that stopped a run.
type TaskError struct {
	Index int
	Title string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d %q failed: %v", e.Index+1, e.Title, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Observer is notified around every task. Implementations must not block.
type Observer interface {
	TaskStarted(index int, title string)
	TaskFinished(index int, title string, elapsed time.Duration, err error)
}

type logObserver struct{}

func (logObserver) TaskStarted(index int, title string) {
	slog.Info("running task", "index", index+1, "task", title)
}

func (logObserver) TaskFinished(index int, title string, elapsed time.Duration, err error) {
	if err != nil {
		slog.Error("task failed", "index", index+1, "task", title, "elapsed", elapsed, "error", err)
		return
	}
	slog.Info("task done", "index", index+1, "task", title, "elapsed", elapsed)
}

// LogObserver returns the default observer, which logs through slog.
func LogObserver() Observer { return logObserver{} }

type teeObserver []Observer

// Tee notifies every observer in order.
func Tee(observers ...Observer) Observer { return teeObserver(observers) }

func (t teeObserver) TaskStarted(index int, title string) {
	for _, o := range t {
		o.TaskStarted(index, title)
	}
}

func (t teeObserver) TaskFinished(index int, title string, elapsed time.Duration, err error) {
	for _, o := range t {
		o.TaskFinished(index, title, elapsed, err)
	}
}

// Option configures Run.
type Option func(*runner)

// WithObserver replaces the default slog observer.
func WithObserver(o Observer) Option {
	return func(r *runner) { r.observer = o }
}

type runner struct {
	observer Observer
}

// Run executes tasks sequentially. Each action works on a copy of the
// context that is committed only when the action succeeds. The first
// failing task stops the run; earlier tasks are not undone. The returned
// context is always the last committed one, so callers can inspect what was
// provisioned before a failure.
func Run(ctx context.Context, tasks []Task, dc *deploy.Context, opts ...Option) (*deploy.Context, error) {
	r := &runner{observer: logObserver{}}
	for _, opt := range opts {
		opt(r)
	}

	current := dc
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return current, &TaskError{Index: i, Title: task.Title, Err: err}
		}

		next, err := r.runTask(ctx, i, task, current)
		if err != nil {
			return current, &TaskError{Index: i, Title: task.Title, Err: err}
		}
		current = next
	}

	return current, nil
}

func (r *runner) runTask(ctx context.Context, i int, task Task, dc *deploy.Context) (*deploy.Context, error) {
	r.observer.TaskStarted(i, task.Title)
	start := time.Now()

	if task.Action == nil {
		err := fmt.Errorf("task has no action")
		r.observer.TaskFinished(i, task.Title, time.Since(start), err)
		return nil, err
	}

	work := dc.Clone()
	err := task.Action(ctx, work)
	r.observer.TaskFinished(i, task.Title, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return work, nil
}

// RunOne executes a single task against a copy of dc, for use in tests and
// one-off invocations.
func RunOne(ctx context.Context, task Task, dc *deploy.Context) (*deploy.Context, error) {
	return Run(ctx, []Task{task}, dc, WithObserver(nopObserver{}))
}

type nopObserver struct{}

func (nopObserver) TaskStarted(int, string) {}

func (nopObserver) TaskFinished(int, string, time.Duration, error) {}
