// Package logger provides prefixed, asynchronous logging so that callers on the
// event loop never block on stderr. Slow calls can be traced with DeferLogDuration.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const asyncBufferSize = 8192

var (
	prefix string
	debug  atomic.Bool
	ch     chan string
	once   sync.Once
)

func init() {
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel switches between "debug" (or "trace") and info for anything else.
// LOG_LEVEL is applied at startup; config may override it.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		debug.Store(true)
	default:
		debug.Store(false)
	}
}

// DebugEnabled reports whether Debugf lines are written.
func DebugEnabled() bool { return debug.Load() }

func initWorker() {
	ch = make(chan string, asyncBufferSize)
	go func() {
		for msg := range ch {
			log.Print(msg)
		}
	}()
}

func enqueue(msg string) {
	once.Do(initWorker)
	select {
	case ch <- msg:
	default:
		// buffer full, drop
	}
}

// SetPrefix sets the tag prepended to every subsequent line (e.g. "server").
func SetPrefix(p string) {
	prefix = p
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Debugf is written only at debug level.
func Debugf(format string, v ...any) {
	if !debug.Load() {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration logs fn and its elapsed time. At info level only calls
// slower than 100ms are logged; at debug level every call is.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if debug.Load() || elapsed >= 100*time.Millisecond {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration is meant for defer: defer logger.DeferLogDuration("Op", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
