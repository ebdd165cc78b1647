package logger

import (
	"sync"
	"time"
)

// DefaultThrottleWindow bounds repeated ban/malformed logs for one identity.
const DefaultThrottleWindow = 5 * time.Minute

// sweepThreshold is the key count above which expired keys are dropped,
// at most once per window.
const sweepThreshold = 4096

// Throttle lets one log line per key through per window.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	swept  time.Time
	now    func() time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &Throttle{window: window, last: make(map[string]time.Time), now: time.Now}
}

// Allow reports whether key may log now and, if so, starts a new window for it.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if at, ok := t.last[key]; ok && now.Sub(at) < t.window {
		return false
	}
	t.last[key] = now
	if len(t.last) > sweepThreshold && now.Sub(t.swept) >= t.window {
		t.sweep(now)
	}
	return true
}

func (t *Throttle) sweep(now time.Time) {
	t.swept = now
	for k, at := range t.last {
		if now.Sub(at) >= t.window {
			delete(t.last, k)
		}
	}
}

// Errorf logs through Errorf when key is outside its window.
func (t *Throttle) Errorf(key, format string, v ...any) {
	if t.Allow(key) {
		Errorf(format, v...)
	}
}

// Infof logs through Infof when key is outside its window.
func (t *Throttle) Infof(key, format string, v ...any) {
	if t.Allow(key) {
		Infof(format, v...)
	}
}
