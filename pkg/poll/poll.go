// Package poll waits for asynchronously created resources to become ready.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Status is the provisioning state of a polled resource.
type Status int

const (
	Provisioning Status = iota
	Ready
	Failed
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Provisioning:
		return "provisioning"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// ResourceState is what a single status query says about a resource.
type ResourceState struct {
	ID     string
	Status Status
	Raw    string
}

var (
	// ErrTimedOut means the attempt budget ran out before the resource
	// became ready. The resource may still be creating.
	ErrTimedOut = errors.New("timed out waiting for resource")

	// ErrUnreachable means the status query itself failed on every attempt.
	ErrUnreachable = errors.New("status query failed on every attempt")
)

// FailedError is returned when the remote side reports a terminal failure.
type FailedError struct {
	State ResourceState
}

func (e *FailedError) Error() string {
	if e.State.Raw != "" {
		return fmt.Sprintf("resource %s failed: %s", e.State.ID, e.State.Raw)
	}
	return fmt.Sprintf("resource %s failed", e.State.ID)
}

// Options bounds a poll.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	// SettleDelay is waited once before the first attempt; freshly created
	// resources are often not visible to status queries right away.
	SettleDelay time.Duration
}

// DefaultOptions gives roughly one minute of polling.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 20,
		Interval:    3 * time.Second,
		SettleDelay: 5 * time.Second,
	}
}

// Until calls fetch until interpret reports Ready, reports Failed, or the
// attempt budget is exhausted. A fetch error counts as a non-matching
// attempt. Only ctx cancellation interrupts the waits.
func Until[T any](
	ctx context.Context,
	fetch func(context.Context) (T, error),
	interpret func(T) ResourceState,
	opts Options,
) (ResourceState, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	if err := sleep(ctx, opts.SettleDelay); err != nil {
		return ResourceState{Status: Provisioning}, err
	}

	var (
		last       ResourceState
		lastErr    error
		fetchFails int
	)

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		raw, err := fetch(ctx)
		if err != nil {
			fetchFails++
			lastErr = err
			slog.Debug("status query failed", "attempt", attempt, "maxAttempts", opts.MaxAttempts, "error", err)
		} else {
			last = interpret(raw)
			slog.Debug("status query", "attempt", attempt, "id", last.ID, "status", last.Status)

			switch last.Status {
			case Ready:
				return last, nil
			case Failed:
				return last, &FailedError{State: last}
			}
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, opts.Interval); err != nil {
			return last, err
		}
	}

	last.Status = TimedOut
	if fetchFails == opts.MaxAttempts {
		return last, fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, opts.MaxAttempts, lastErr)
	}
	return last, fmt.Errorf("%w after %d attempts", ErrTimedOut, opts.MaxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("polling interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
