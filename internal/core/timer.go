package core

import "time"

// Scheduler starts delayed tasks. The returned cancel func is safe to call
// any number of times, also after the task has fired.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// TimeScheduler runs tasks on time.AfterFunc goroutines.
type TimeScheduler struct{}

func (TimeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// loopScheduler delivers fired tasks onto the loop instead of running them in place.
type loopScheduler struct {
	loop  *Loop
	inner Scheduler
}

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) func() {
	return s.inner.AfterFunc(d, func() { s.loop.Post(fn) })
}
