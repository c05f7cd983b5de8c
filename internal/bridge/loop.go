// Package bridge hands work from request goroutines to the single loop that
// owns the chat platform connection.
//
// Every platform call runs inside a task on Loop.Run, one task at a time, so
// tasks never interleave with each other. Producers either Submit and move on
// (the HTTP response does not wait for delivery) or Call and wait for the
// task's error. Schedule defers a Submit through the injected clock.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skylinesee/reeQute/lib/clock"
	"github.com/skylinesee/reeQute/lib/sl"
)

var (
	ErrQueueFull = errors.New("bridge queue is full")
	ErrClosed    = errors.New("bridge is closed")
)

// Func is a unit of work. The context is cancelled when the loop stops.
type Func func(ctx context.Context) error

// Observer receives task accounting. Implemented by internal/metrics.
type Observer interface {
	TaskDone(name string, err error, elapsed time.Duration)
	QueueDepth(n int)
}

type task struct {
	id   string
	name string
	fn   Func
	done chan error
}

type Loop struct {
	log      *slog.Logger
	clock    clock.Clock
	queue    chan *task
	observer Observer

	closeOnce sync.Once
	closed    chan struct{}
	finished  chan struct{}
}

func New(log *slog.Logger, size int, clk clock.Clock) *Loop {
	if size <= 0 {
		size = 64
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Loop{
		log:      log.With(sl.Module("bridge")),
		clock:    clk,
		queue:    make(chan *task, size),
		closed:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (l *Loop) SetObserver(o Observer) {
	l.observer = o
}

// Submit enqueues fn without waiting for it to run. It never blocks:
// a saturated queue returns ErrQueueFull.
func (l *Loop) Submit(name string, fn Func) (string, error) {
	t := &task{
		id:   uuid.NewString(),
		name: name,
		fn:   fn,
	}
	if err := l.enqueue(t); err != nil {
		return "", err
	}
	return t.id, nil
}

// Call enqueues fn and waits for its result, the loop stopping, or ctx.
// When ctx ends first the task still runs; only the wait is abandoned.
func (l *Loop) Call(ctx context.Context, name string, fn Func) error {
	t := &task{
		id:   uuid.NewString(),
		name: name,
		fn:   fn,
		done: make(chan error, 1),
	}
	if err := l.enqueue(t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
	case <-l.finished:
		return ErrClosed
	}
}

// Schedule submits fn once d has elapsed. The returned timer cancels the
// submission if stopped in time; it does not cancel a task already queued.
func (l *Loop) Schedule(d time.Duration, name string, fn Func) clock.Timer {
	return l.clock.AfterFunc(d, func() {
		if _, err := l.Submit(name, fn); err != nil {
			l.log.With(
				slog.String("task", name),
			).Warn("scheduled task dropped", sl.Err(err))
		}
	})
}

func (l *Loop) enqueue(t *task) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	select {
	case l.queue <- t:
		if l.observer != nil {
			l.observer.QueueDepth(len(l.queue))
		}
		return nil
	case <-l.closed:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Run consumes tasks until ctx is done. It must be called exactly once.
// Tasks still queued when ctx ends are dropped with a log line.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.finished)
	defer l.Close()

	l.log.Info("event loop started", slog.Int("capacity", cap(l.queue)))
	for {
		if ctx.Err() != nil {
			l.drop()
			l.log.Info("event loop stopped")
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			l.drop()
			l.log.Info("event loop stopped")
			return ctx.Err()
		case t := <-l.queue:
			if l.observer != nil {
				l.observer.QueueDepth(len(l.queue))
			}
			l.execute(ctx, t)
		}
	}
}

// Close stops accepting new tasks. Run keeps going until its context ends.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
}

// Done is closed after Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.finished
}

func (l *Loop) execute(ctx context.Context, t *task) {
	log := l.log.With(sl.Task(t.name, t.id))
	start := l.clock.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.fn(ctx)
	}()

	elapsed := l.clock.Now().Sub(start)
	if l.observer != nil {
		l.observer.TaskDone(t.name, err, elapsed)
	}
	if t.done != nil {
		// the caller owns the error
		t.done <- err
		if err != nil {
			log.Debug("task returned error", sl.Err(err))
		}
		return
	}
	if err != nil {
		log.Error("task failed", sl.Err(err))
		return
	}
	log.Debug("task done", slog.Duration("elapsed", elapsed))
}

func (l *Loop) drop() {
	for {
		select {
		case t := <-l.queue:
			l.log.With(sl.Task(t.name, t.id)).Warn("task dropped on shutdown")
			if t.done != nil {
				t.done <- ErrClosed
			}
		default:
			return
		}
	}
}
