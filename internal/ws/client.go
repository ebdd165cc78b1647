package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/qbit/internal/logger"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 16384
	defaultSendBufSize    = 256
)

// bufPool pools bytes.Buffer for JSON encoding in writePump.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Handler receives everything a Client reads. Calls come from the read pump goroutine.
type Handler interface {
	HandleMessage(ctx context.Context, c *Client, raw []byte)
	Unregister(c *Client)
	Pong(c *Client)
}

// Options tune one connection.
// With PongWait > 0 the client enforces its own liveness: it pings every
// PingPeriod and drops the socket when no pong arrives within PongWait.
// With PongWait == 0 pings are sent only on Ping() and liveness is left to the Handler.
type Options struct {
	SendBufSize    int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.SendBufSize <= 0 {
		o.SendBufSize = defaultSendBufSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.PongWait > 0 && (o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait) {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	return o
}

// Client represents a single WebSocket connection.
// Lifecycle: NewClient -> Start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	id         string
	remoteAddr string
	hub        Handler
	conn       *websocket.Conn
	opts       Options
	send       chan any
	ping       chan struct{}

	// done is closed by Close; Send and both pumps watch it.
	done chan struct{}

	mu     sync.Mutex // guards cancel and closed
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewClient wraps conn. remoteAddr is the client's address as seen by the
// HTTP layer (after RealIP), not necessarily conn.RemoteAddr().
func NewClient(hub Handler, conn *websocket.Conn, remoteAddr string, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:         uuid.New().String(),
		remoteAddr: remoteAddr,
		hub:        hub,
		conn:       conn,
		opts:       opts,
		send:       make(chan any, opts.SendBufSize),
		ping:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// RemoteAddr returns the host part of the client address.
func (c *Client) RemoteAddr() string {
	if host, _, err := net.SplitHostPort(c.remoteAddr); err == nil {
		return host
	}
	return c.remoteAddr
}

// Start launches readPump and writePump. cancel is stored for Close.
// The client may already be registered and closed by the time Start runs;
// the pumps then exit at once.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	closed := c.closed
	c.mu.Unlock()
	if closed && cancel != nil {
		cancel()
	}
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pumps have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(c.done)
	c.conn.Close()
}

// Send queues msg for writing without blocking. A full buffer closes the
// client (slow consumer) and Send reports false.
func (c *Client) Send(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		logger.Errorf("ws send buffer full, closing slow client id=%s addr=%s", c.id, c.RemoteAddr())
		c.Close()
		return false
	}
}

// Ping asks the write pump to send a ping frame. Never blocks.
func (c *Client) Ping() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// readPump reads frames and hands every non-empty line to the Handler.
// Exits on read error (triggered by conn.Close from Close or writePump exit)
// and then stops the write pump too.
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	if c.opts.PongWait > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			logger.Errorf("ws set read deadline id=%s: %v", c.id, err)
			return
		}
	}
	c.conn.SetPongHandler(func(string) error {
		c.hub.Pong(c)
		if c.opts.PongWait > 0 {
			return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		}
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("ws read error id=%s: %v", c.id, err)
			}
			return
		}

		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			c.hub.HandleMessage(ctx, c, line)
		}
	}
}

// writePump writes queued messages and pings.
// Exits on ctx cancellation, Close or a write error.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	var tick <-chan time.Time
	if c.opts.PongWait > 0 {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
			return
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		case <-tick:
			if err := c.writePing(); err != nil {
				return
			}
		case <-c.ping:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		logger.Errorf("ws set write deadline id=%s: %v", c.id, err)
		return err
	}
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		// one bad message does not kill the socket
		logger.Errorf("ws marshal error id=%s: %v", c.id, err)
		return nil
	}
	// json.Encoder appends '\n'; trim it for WebSocket text messages.
	data := bytes.TrimRight(buf.Bytes(), "\n")
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) writePing() error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}
