package handler

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/qbit/internal/core"
	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/middleware"
	"github.com/qbit/internal/ws"
)

type WSConfig struct {
	// DeviceAPIKey is required from devices when set.
	DeviceAPIKey         string
	MaxDeviceConnections int
	// AllowedOrigins as in CORS: comma separated or "*". Applies to user sockets only.
	AllowedOrigins string
	Device         ws.Options
	User           ws.Options
}

type WSHandler struct {
	svc      *core.Service
	cfg      WSConfig
	devices  atomic.Int64
	throttle *logger.Throttle
}

func NewWSHandler(svc *core.Service, cfg WSConfig) *WSHandler {
	if cfg.MaxDeviceConnections <= 0 {
		cfg.MaxDeviceConnections = 100
	}
	// devices answer the core heartbeat, the client does not time them out itself
	cfg.Device.PongWait = 0
	cfg.AllowedOrigins = strings.TrimSpace(cfg.AllowedOrigins)
	return &WSHandler{svc: svc, cfg: cfg, throttle: logger.NewThrottle(logger.DefaultThrottleWindow)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowedOrigins == "*" || h.cfg.AllowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.cfg.AllowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// DeviceConnections is the number of open device sockets.
func (h *WSHandler) DeviceConnections() int64 {
	return h.devices.Load()
}

// ServeDevice admits a device socket: API key (query "key" or X-Api-Key),
// then the connection cap, both checked before the upgrade.
func (h *WSHandler) ServeDevice(w http.ResponseWriter, r *http.Request) {
	if h.cfg.DeviceAPIKey != "" {
		key := r.URL.Query().Get("key")
		if key == "" {
			key = r.Header.Get("X-Api-Key")
		}
		if !middleware.KeyEqual(key, h.cfg.DeviceAPIKey) {
			h.throttle.Infof("device-key:"+r.RemoteAddr, "device from %s rejected: bad api key %s", r.RemoteAddr, middleware.MaskKey(key))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	if n := h.devices.Add(1); n > int64(h.cfg.MaxDeviceConnections) {
		h.devices.Add(-1)
		h.throttle.Errorf("device-cap", "device from %s rejected: %d connections open", r.RemoteAddr, n-1)
		writeError(w, http.StatusServiceUnavailable, "too many device connections")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.devices.Add(-1)
		logger.Errorf("device ws upgrade: %v", err)
		return
	}

	client := ws.NewClient(h.svc.DeviceHandler(), conn, r.RemoteAddr, h.cfg.Device)
	h.svc.ConnectDevice(client)
	ctx, cancel := context.WithCancel(context.Background())
	client.Start(ctx, cancel)
	go func() {
		client.Wait()
		h.devices.Add(-1)
	}()
}

// ServeUser upgrades an authenticated user socket.
func (h *WSHandler) ServeUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	client := ws.NewClient(h.svc.UserHandler(), conn, r.RemoteAddr, h.cfg.User)
	if err := h.svc.ConnectUser(r.Context(), client, identity); err != nil {
		logger.Debugf("user %s socket refused: %v", identity.UserID, err)
		client.Close()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	client.Start(ctx, cancel)
}
