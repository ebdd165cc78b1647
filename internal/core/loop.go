package core

import (
	"context"
	"runtime/debug"

	"github.com/qbit/internal/logger"
)

// Loop runs tasks one at a time on a single goroutine. Every map owned by the
// registry, tracker, coordinator and ban guard is touched only from tasks, so
// none of them needs a mutex. Tasks must not block on Post or Call themselves.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

// a panicking task is logged and dropped, the loop keeps going
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("loop task panic: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

// Post queues fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for its result.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !l.Post(func() { res <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
