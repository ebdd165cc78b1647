package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qbit/internal/model"
	"github.com/qbit/internal/ws"
)

// DeviceHandler returns the ws.Handler for device sockets.
func (s *Service) DeviceHandler() ws.Handler { return deviceSockets{s} }

// UserHandler returns the ws.Handler for user sockets.
func (s *Service) UserHandler() ws.Handler { return userSockets{s} }

type deviceSockets struct{ s *Service }

func (d deviceSockets) HandleMessage(_ context.Context, c *ws.Client, raw []byte) {
	d.s.deviceMessage(c, raw)
}

func (d deviceSockets) Unregister(c *ws.Client) {
	d.s.loop.Post(func() { d.s.devices.Deregister(c) })
}

func (d deviceSockets) Pong(c *ws.Client) {
	d.s.loop.Post(func() { d.s.devices.MarkAlive(c) })
}

type userSockets struct{ s *Service }

func (u userSockets) HandleMessage(_ context.Context, c *ws.Client, raw []byte) {
	u.s.userMessage(c, raw)
}

func (u userSockets) Unregister(c *ws.Client) {
	u.s.loop.Post(func() { u.s.users.Remove(c) })
}

// Pong is a no-op: user sockets keep their own read deadline.
func (userSockets) Pong(*ws.Client) {}

// Decoding happens on the read pump; only the state change goes onto the loop.
func (s *Service) deviceMessage(c Conn, raw []byte) {
	var msg ws.DeviceMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		s.throttle.Errorf("malformed:"+c.RemoteAddr(), "device message from %s dropped: %v", c.RemoteAddr(), errOrEmpty(err))
		return
	}
	s.loop.Post(func() { s.handleDevice(c, msg) })
}

func (s *Service) handleDevice(c Conn, msg ws.DeviceMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case ws.DeviceRegister, ws.DeviceHello:
		err = s.devices.Register(model.DeviceInfo{
			ID:      msg.ID,
			Name:    msg.Name,
			IP:      msg.IP,
			Version: msg.Version,
		}, c)
		if errors.Is(err, ErrBanned) {
			// already logged by the registry
			return
		}
	case ws.DeviceClaimConfirm:
		_, err = s.claims.Confirm(ctx, c)
	case ws.DeviceClaimReject:
		err = s.claims.Reject(c)
	default:
		err = fmt.Errorf("%w: unknown message type %q", ErrMalformed, msg.Type)
	}
	if err != nil {
		key := c.RemoteAddr()
		if id, ok := s.devices.DeviceOf(c); ok {
			key = id
		}
		s.throttle.Errorf("device:"+key, "device %s %s dropped: %v", key, msg.Type, err)
	}
}

func (s *Service) userMessage(c Conn, raw []byte) {
	var msg ws.IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		s.throttle.Errorf("malformed:"+c.RemoteAddr(), "user message from %s dropped: %v", c.RemoteAddr(), errOrEmpty(err))
		sendError(c, fmt.Errorf("%w: unparseable message", ErrMalformed))
		return
	}
	s.loop.Post(func() { s.handleUser(c, msg) })
}

func (s *Service) handleUser(c Conn, msg ws.IncomingMessage) {
	identity, ok := s.users.Identity(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case ws.EventPoke:
		err = s.userPoke(identity, msg)
	case ws.EventClaim:
		if err = s.requestClaim(ctx, identity, msg.DeviceID); err == nil {
			c.Send(ws.OutgoingMessage{Type: ws.EventClaimResult, Payload: ws.ClaimResultPayload{
				DeviceID: msg.DeviceID,
				Status:   string(model.ClaimPending),
			}})
		}
	case ws.EventUnclaim:
		err = s.claims.Unclaim(ctx, msg.DeviceID, identity.UserID)
	default:
		err = fmt.Errorf("%w: unknown event type %q", ErrMalformed, msg.Type)
	}
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			s.throttle.Errorf("user:"+identity.UserID, "user %s %s dropped: %v", identity.UserID, msg.Type, err)
		}
		sendError(c, err)
	}
}

func (s *Service) userPoke(sender model.Identity, msg ws.IncomingMessage) error {
	switch msg.Target {
	case ws.TargetDevice, "":
		return s.pokes.ToDevice(sender, msg.ID, Poke{
			Text:              msg.Text,
			SenderBitmap:      msg.SenderBitmap,
			SenderBitmapWidth: msg.SenderBitmapWidth,
			TextBitmap:        msg.TextBitmap,
			TextBitmapWidth:   msg.TextBitmapWidth,
		})
	case ws.TargetUser:
		_, err := s.pokes.ToUser(sender, msg.ID, msg.Text)
		return err
	}
	return fmt.Errorf("%w: unknown poke target %q", ErrMalformed, msg.Target)
}

func sendError(c Conn, err error) {
	c.Send(ws.OutgoingMessage{Type: ws.EventError, Payload: ws.ErrorPayload{
		Code:    Code(err),
		Message: err.Error(),
	}})
}

func errOrEmpty(err error) error {
	if err == nil {
		return errors.New("missing type")
	}
	return err
}
