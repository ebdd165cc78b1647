package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qbit/internal/model"
	"github.com/qbit/internal/ws"
)

type fakeConn struct {
	id   string
	addr string

	mu     sync.Mutex
	sent   []any
	pings  int
	closed bool
	full   bool
}

func newConn(id, addr string) *fakeConn {
	return &fakeConn{id: id, addr: addr}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) Send(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.sent = append(c.sent, msg)
	return true
}

func (c *fakeConn) Ping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

// last returns the newest outgoing user event of type t.
func (c *fakeConn) last(t ws.EventType) (ws.OutgoingMessage, bool) {
	msgs := c.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(ws.OutgoingMessage); ok && m.Type == t {
			return m, true
		}
	}
	return ws.OutgoingMessage{}, false
}

func (c *fakeConn) count(t ws.EventType) int {
	var n int
	for _, msg := range c.messages() {
		if m, ok := msg.(ws.OutgoingMessage); ok && m.Type == t {
			n++
		}
	}
	return n
}

func (c *fakeConn) claimRequests() []ws.ClaimRequestMessage {
	var out []ws.ClaimRequestMessage
	for _, msg := range c.messages() {
		if m, ok := msg.(ws.ClaimRequestMessage); ok {
			out = append(out, m)
		}
	}
	return out
}

type fakeTask struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTask{d: d, fn: fn}
	s.tasks = append(s.tasks, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

// advance fires every live task with delay d, as a real timer would.
func (s *fakeScheduler) advance(d time.Duration) int {
	s.mu.Lock()
	var due []*fakeTask
	for _, t := range s.tasks {
		if t.d == d && !t.cancelled && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// task returns the i-th scheduled task.
func (s *fakeScheduler) task(i int) *fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[i]
}

func (s *fakeScheduler) live(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, t := range s.tasks {
		if t.d == d && !t.cancelled && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	topics []Topic
}

func (r *recorder) Changed(t Topic) { r.topics = append(r.topics, t) }

func (r *recorder) count(t Topic) int {
	var n int
	for _, got := range r.topics {
		if got == t {
			n++
		}
	}
	return n
}

type outcome struct {
	deviceID string
	userID   string
	outcome  ClaimOutcome
}

type claimRecorder struct {
	got []outcome
}

func (r *claimRecorder) ClaimResolved(deviceID string, requester model.Identity, o ClaimOutcome) {
	r.got = append(r.got, outcome{deviceID, requester.UserID, o})
}

var errStoreDown = errors.New("store down")

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) GetClaim(context.Context, string) (*model.ClaimRecord, error) {
	return nil, errStoreDown
}
func (brokenStore) PutClaim(context.Context, model.ClaimRecord) error { return errStoreDown }
func (brokenStore) DeleteClaim(context.Context, string) error        { return errStoreDown }
func (brokenStore) ListClaims(context.Context) ([]model.ClaimRecord, error) {
	return nil, errStoreDown
}
func (brokenStore) AddBan(context.Context, model.BanNamespace, string) error    { return errStoreDown }
func (brokenStore) RemoveBan(context.Context, model.BanNamespace, string) error { return errStoreDown }
func (brokenStore) ListBans(context.Context) ([]model.BanEntry, error)          { return nil, errStoreDown }

func identity(id string) model.Identity {
	return model.Identity{UserID: id, Name: id, AvatarURL: "https://a/" + id + ".png"}
}
