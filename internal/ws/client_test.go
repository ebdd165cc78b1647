package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	messages     chan string
	unregistered chan *Client
	pongs        chan *Client
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages:     make(chan string, 16),
		unregistered: make(chan *Client, 1),
		pongs:        make(chan *Client, 4),
	}
}

func (h *recordingHandler) HandleMessage(_ context.Context, _ *Client, raw []byte) {
	h.messages <- string(raw)
}
func (h *recordingHandler) Unregister(c *Client) { h.unregistered <- c }
func (h *recordingHandler) Pong(c *Client)       { h.pongs <- c }

// serve starts a server whose single socket is wrapped in a Client and
// returns the dialed peer together with that Client.
func serve(t *testing.T, h Handler, opts Options) (*websocket.Conn, *Client) {
	t.Helper()
	clients := make(chan *Client, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(h, conn, r.RemoteAddr, opts)
		ctx, cancel := context.WithCancel(context.Background())
		c.Start(ctx, cancel)
		clients <- c
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	select {
	case c := <-clients:
		t.Cleanup(c.Close)
		return peer, c
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
		return nil, nil
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func TestClientReadsLines(t *testing.T) {
	h := newRecordingHandler()
	peer, _ := serve(t, h, Options{})

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(`{"type":"a"}`)))
	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte("{\"type\":\"b\"}\n\n {\"type\":\"c\"} \n")))

	assert.Equal(t, `{"type":"a"}`, recv(t, h.messages))
	assert.Equal(t, `{"type":"b"}`, recv(t, h.messages))
	assert.Equal(t, `{"type":"c"}`, recv(t, h.messages))
}

func TestClientSendWritesJSON(t *testing.T) {
	h := newRecordingHandler()
	peer, c := serve(t, h, Options{})

	assert.True(t, c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{Code: "conflict", Message: "pending"}}))
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := peer.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"code":"conflict","message":"pending"}}`, string(data))
}

func TestClientPingPong(t *testing.T) {
	h := newRecordingHandler()
	peer, c := serve(t, h, Options{})

	// the peer answers pings only while reading
	go func() {
		for {
			if _, _, err := peer.ReadMessage(); err != nil {
				return
			}
		}
	}()
	c.Ping()
	assert.Same(t, c, recv(t, h.pongs))
}

func TestClientCloseUnregisters(t *testing.T) {
	h := newRecordingHandler()
	_, c := serve(t, h, Options{})

	c.Close()
	c.Close()
	assert.Same(t, c, recv(t, h.unregistered))
	c.Wait()
	assert.False(t, c.Send(OutgoingMessage{Type: EventPoke}))
}

func TestClientPeerDisconnectUnregisters(t *testing.T) {
	h := newRecordingHandler()
	peer, c := serve(t, h, Options{})

	peer.Close()
	assert.Same(t, c, recv(t, h.unregistered))
}

func TestClientRemoteAddr(t *testing.T) {
	c := NewClient(newRecordingHandler(), nil, "10.1.2.3:5555", Options{})
	assert.Equal(t, "10.1.2.3", c.RemoteAddr())
	assert.NotEmpty(t, c.ID())

	c = NewClient(newRecordingHandler(), nil, "10.1.2.3", Options{})
	assert.Equal(t, "10.1.2.3", c.RemoteAddr())
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{PongWait: 10 * time.Second}.withDefaults()
	assert.Equal(t, 9*time.Second, o.PingPeriod)
	assert.Equal(t, defaultSendBufSize, o.SendBufSize)
	assert.Equal(t, int64(defaultMaxMessageSize), o.MaxMessageSize)
}

// acceptOnly upgrades a single socket and hands back the unstarted Client.
func acceptOnly(t *testing.T, h Handler) <-chan *Client {
	t.Helper()
	clients := make(chan *Client, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		clients <- NewClient(h, conn, r.RemoteAddr, Options{})
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })
	return clients
}

func waitReturns(t *testing.T, c *Client) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pumps still running after Close")
	}
}

func TestClientClosedBeforeStart(t *testing.T) {
	h := newRecordingHandler()
	c := recv(t, acceptOnly(t, h))

	c.Close()
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, cancel)

	waitReturns(t, c)
	assert.Error(t, ctx.Err(), "Start after Close cancels the pump context")
	assert.Same(t, c, recv(t, h.unregistered))
	assert.False(t, c.Send(map[string]string{"type": "late"}))
}

func TestClientCloseRacesStart(t *testing.T) {
	h := newRecordingHandler()
	c := recv(t, acceptOnly(t, h))

	ctx, cancel := context.WithCancel(context.Background())
	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	c.Start(ctx, cancel)
	<-closed

	waitReturns(t, c)
	assert.Error(t, ctx.Err())
}
