// Package schedule runs cancellable fixed-interval tasks.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Func is one tick of a task. It returns the delay before the next tick;
// a negative delay stops the task.
type Func func(ctx context.Context) time.Duration

// Stop is returned by a Func to end the task.
const Stop time.Duration = -1

// Task is a running scheduled function. The first tick runs immediately.
// A tick is never started before the previous one has returned, so ticks
// never overlap.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start runs fn in a new goroutine until fn returns Stop, ctx is done, or
// the task is cancelled.
func Start(ctx context.Context, fn Func) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(ctx, fn)
	return t
}

// Every is Start with a constant interval.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context) bool) *Task {
	return Start(ctx, func(ctx context.Context) time.Duration {
		if !fn(ctx) {
			return Stop
		}
		return interval
	})
}

func (t *Task) run(ctx context.Context, fn Func) {
	defer close(t.done)
	defer t.cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// A cancel that raced with the timer wins.
		if ctx.Err() != nil {
			return
		}

		next := fn(ctx)
		if next < 0 {
			return
		}
		timer.Reset(next)
	}
}

// Cancel stops the task. It does not wait for a running tick to return;
// the tick sees its context cancelled. Safe to call more than once.
func (t *Task) Cancel() {
	t.once.Do(t.cancel)
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task has exited or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the task and waits for it to exit.
func (t *Task) Close() {
	t.Cancel()
	<-t.done
}
