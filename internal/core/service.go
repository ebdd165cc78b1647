package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
	"github.com/qbit/internal/storage"
	"github.com/qbit/internal/ws"
)

// Options tune a Service. Zero values fall back to defaults.
type Options struct {
	MaxUserConnections int
	HeartbeatInterval  time.Duration
	// RegisterTimeout closes device sockets that never send device.register.
	RegisterTimeout time.Duration
	StoreTimeout    time.Duration
	// Scheduler drives claim timers and register deadlines; fired tasks run on the loop.
	Scheduler Scheduler
	Throttle  *logger.Throttle
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.RegisterTimeout <= 0 {
		o.RegisterTimeout = 2 * o.HeartbeatInterval
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.Scheduler == nil {
		o.Scheduler = TimeScheduler{}
	}
	if o.Throttle == nil {
		o.Throttle = logger.NewThrottle(logger.DefaultThrottleWindow)
	}
	return o
}

// Service owns the event loop and every component living on it. Transports
// talk to the core only through Service.
type Service struct {
	opts     Options
	loop     *Loop
	sched    Scheduler
	throttle *logger.Throttle

	bans    *BanGuard
	devices *DeviceRegistry
	users   *PresenceTracker
	claims  *ClaimCoordinator
	hub     *BroadcastHub
	pokes   *PokeDelivery
}

func NewService(store storage.Store, opts Options) *Service {
	opts = opts.withDefaults()
	loop := NewLoop(0)
	sched := loopScheduler{loop: loop, inner: opts.Scheduler}

	bans := NewBanGuard(store)
	devices := NewDeviceRegistry(bans, opts.Throttle)
	users := NewPresenceTracker(bans, opts.Throttle, opts.MaxUserConnections)
	claims := NewClaimCoordinator(devices, store, sched)
	hub := NewBroadcastHub(devices, users, claims)

	devices.Subscribe(hub)
	users.Subscribe(hub)
	claims.Subscribe(hub)

	s := &Service{
		opts:     opts,
		loop:     loop,
		sched:    sched,
		throttle: opts.Throttle,
		bans:     bans,
		devices:  devices,
		users:    users,
		claims:   claims,
		hub:      hub,
		pokes:    NewPokeDelivery(devices, users),
	}
	claims.Listen(s)
	return s
}

// Run loads the ban list and serves the loop until ctx is cancelled, then
// closes every socket.
func (s *Service) Run(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	err := s.bans.Load(loadCtx)
	cancel()
	if err != nil {
		return err
	}
	logger.Infof("core: %d bans loaded", len(s.bans.List()))

	go s.heartbeatLoop(ctx)
	s.loop.Run(ctx)
	s.shutdown()
	return nil
}

// shutdown runs after the loop has exited, so it is the only owner left.
func (s *Service) shutdown() {
	for _, d := range s.devices.Sessions() {
		d.Conn.Close()
	}
	for _, c := range s.users.Connections() {
		c.Close()
	}
	logger.Info("core: all sockets closed")
}

func (s *Service) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.loop.Post(func() { s.devices.Heartbeat() })
		}
	}
}

// call runs fn on the loop. fn gets its own store deadline so that a caller
// giving up does not abort a mutation halfway.
func (s *Service) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.loop.Call(ctx, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
		defer cancel()
		return fn(sctx)
	})
}

// Heartbeat runs one heartbeat round now and returns how many devices were terminated.
func (s *Service) Heartbeat(ctx context.Context) (int, error) {
	var n int
	err := s.loop.Call(ctx, func() error {
		n = s.devices.Heartbeat()
		return nil
	})
	return n, err
}

// ConnectDevice must be called before the socket's pumps start. The socket is
// closed if it has not registered within RegisterTimeout.
func (s *Service) ConnectDevice(c Conn) {
	s.loop.Post(func() {
		s.sched.AfterFunc(s.opts.RegisterTimeout, func() {
			if _, ok := s.devices.DeviceOf(c); !ok {
				s.throttle.Infof("unregistered:"+c.RemoteAddr(), "device socket from %s did not register in %v, closing", c.RemoteAddr(), s.opts.RegisterTimeout)
				c.Close()
			}
		})
	})
}

// ConnectUser admits a user socket and sends it the device list. Must be
// called before the socket's pumps start.
func (s *Service) ConnectUser(ctx context.Context, c Conn, identity model.Identity) error {
	return s.call(ctx, func(ctx context.Context) error {
		if err := s.users.Add(c, identity); err != nil {
			return err
		}
		if err := s.hub.SendDevices(ctx, c); err != nil {
			logger.Errorf("core: initial snapshot user=%s: %v", identity.UserID, err)
		}
		return nil
	})
}

func (s *Service) RequestClaim(ctx context.Context, requester model.Identity, deviceID string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.requestClaim(ctx, requester, deviceID)
	})
}

func (s *Service) requestClaim(ctx context.Context, requester model.Identity, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return fmt.Errorf("%w: deviceId required", ErrMalformed)
	}
	if s.bans.IsBanned(requester.UserID, "") {
		s.throttle.Infof("ban:claim:"+requester.UserID, "claim by banned user %s rejected", requester.UserID)
		return ErrBanned
	}
	return s.claims.RequestClaim(ctx, deviceID, requester)
}

func (s *Service) Unclaim(ctx context.Context, requester model.Identity, deviceID string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.claims.Unclaim(ctx, deviceID, requester.UserID)
	})
}

func (s *Service) ClaimState(ctx context.Context, deviceID string) (model.ClaimState, error) {
	var state model.ClaimState
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		state, err = s.claims.State(ctx, deviceID)
		return err
	})
	return state, err
}

func (s *Service) PokeDevice(ctx context.Context, sender model.Identity, deviceID string, poke Poke) error {
	return s.call(ctx, func(context.Context) error {
		return s.pokes.ToDevice(sender, deviceID, poke)
	})
}

func (s *Service) PokeUser(ctx context.Context, sender model.Identity, userID, text string) (int, error) {
	var n int
	err := s.call(ctx, func(context.Context) error {
		var err error
		n, err = s.pokes.ToUser(sender, userID, text)
		return err
	})
	return n, err
}

// Ban persists a ban and disconnects every live session it matches, in the
// same loop task. withAddresses on an account ban also bans every address the
// account is currently connected from.
func (s *Service) Ban(ctx context.Context, ns model.BanNamespace, value string, withAddresses bool) (int, error) {
	var n int
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.ban(ctx, ns, value, withAddresses)
		return err
	})
	return n, err
}

func (s *Service) ban(ctx context.Context, ns model.BanNamespace, value string, withAddresses bool) (int, error) {
	value = strings.TrimSpace(value)
	switch ns {
	case model.BanAccount:
		var addrs []string
		if withAddresses {
			addrs = s.users.AddressesOf(value)
		}
		if err := s.bans.Add(ctx, ns, value); err != nil {
			return 0, err
		}
		s.claims.CancelByUser(value)
		n := s.users.DisconnectUser(value)
		for _, addr := range addrs {
			m, err := s.ban(ctx, model.BanAddress, addr, false)
			n += m
			if err != nil {
				return n, err
			}
		}
		logger.Infof("core: banned account %s, %d sockets closed", value, n)
		return n, nil
	case model.BanAddress:
		if err := s.bans.Add(ctx, ns, value); err != nil {
			return 0, err
		}
		n := s.devices.DisconnectByAddress(value) + s.users.DisconnectByAddress(value)
		logger.Infof("core: banned address %s, %d sockets closed", value, n)
		return n, nil
	case model.BanDevice:
		if err := s.bans.Add(ctx, ns, value); err != nil {
			return 0, err
		}
		s.claims.Cancel(value)
		var n int
		if s.devices.DisconnectDevice(value) {
			n = 1
		}
		logger.Infof("core: banned device %s, %d sockets closed", value, n)
		return n, nil
	}
	return 0, fmt.Errorf("%w: unknown ban namespace %q", ErrMalformed, ns)
}

func (s *Service) Unban(ctx context.Context, ns model.BanNamespace, value string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.bans.Remove(ctx, ns, value)
	})
}

func (s *Service) Bans(ctx context.Context) ([]model.BanEntry, error) {
	var out []model.BanEntry
	err := s.call(ctx, func(context.Context) error {
		out = s.bans.List()
		return nil
	})
	return out, err
}

func (s *Service) Devices(ctx context.Context) ([]model.DevicePublic, error) {
	var out []model.DevicePublic
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.hub.DeviceSnapshot(ctx)
		return err
	})
	return out, err
}

func (s *Service) Users(ctx context.Context) ([]model.UserPresence, error) {
	var out []model.UserPresence
	err := s.call(ctx, func(context.Context) error {
		out = s.hub.UserSnapshot()
		return nil
	})
	return out, err
}

// ClaimResolved implements ClaimListener: the requester's sockets learn the outcome.
func (s *Service) ClaimResolved(deviceID string, requester model.Identity, outcome ClaimOutcome) {
	msg := ws.OutgoingMessage{Type: ws.EventClaimResult, Payload: ws.ClaimResultPayload{
		DeviceID: deviceID,
		Status:   string(outcome),
	}}
	for _, c := range s.users.ConnectionsOf(requester.UserID) {
		c.Send(msg)
	}
}
