package core

import (
	"encoding/base64"
	"fmt"

	"github.com/qbit/internal/model"
	"github.com/qbit/internal/ws"
)

const (
	// MaxPokeText is what fits on the device display.
	MaxPokeText = 25
	// maxBitmapLen caps an encoded bitmap; the display is 128x64 monochrome.
	maxBitmapLen  = 4096
	defaultSender = "Someone"
)

// Poke is an ephemeral message. Bitmaps are pre-rendered base64 1bpp strips.
type Poke struct {
	Text              string
	SenderBitmap      string
	SenderBitmapWidth int
	TextBitmap        string
	TextBitmapWidth   int
}

// PokeDelivery sends pokes straight to live sockets. No ack, no retry, no queue.
type PokeDelivery struct {
	devices *DeviceRegistry
	users   *PresenceTracker
}

func NewPokeDelivery(devices *DeviceRegistry, users *PresenceTracker) *PokeDelivery {
	return &PokeDelivery{devices: devices, users: users}
}

// ToDevice pokes a live device.
func (p *PokeDelivery) ToDevice(sender model.Identity, deviceID string, poke Poke) error {
	if err := validateBitmap(poke.SenderBitmap, poke.SenderBitmapWidth); err != nil {
		return fmt.Errorf("sender bitmap: %w", err)
	}
	if err := validateBitmap(poke.TextBitmap, poke.TextBitmapWidth); err != nil {
		return fmt.Errorf("text bitmap: %w", err)
	}
	session, ok := p.devices.Lookup(deviceID)
	if !ok {
		return ErrDeviceOffline
	}
	msg := ws.PokeMessage{
		Type:   ws.DevicePoke,
		Sender: senderName(sender),
		Text:   truncateText(poke.Text, MaxPokeText),
	}
	if poke.SenderBitmap != "" {
		msg.SenderBitmap = poke.SenderBitmap
		msg.SenderBitmapWidth = poke.SenderBitmapWidth
	}
	if poke.TextBitmap != "" {
		msg.TextBitmap = poke.TextBitmap
		msg.TextBitmapWidth = poke.TextBitmapWidth
	}
	if !session.Conn.Send(msg) {
		return ErrDeviceOffline
	}
	return nil
}

// ToUser pokes every live socket of userID and returns how many got it.
func (p *PokeDelivery) ToUser(sender model.Identity, userID, text string) (int, error) {
	conns := p.users.ConnectionsOf(userID)
	if len(conns) == 0 {
		return 0, ErrUserOffline
	}
	msg := ws.OutgoingMessage{Type: ws.EventPoke, Payload: ws.UserPokePayload{
		FromUserID: sender.UserID,
		FromName:   senderName(sender),
		FromAvatar: sender.AvatarURL,
		Text:       truncateText(text, MaxPokeText),
	}}
	var n int
	for _, c := range conns {
		if c.Send(msg) {
			n++
		}
	}
	if n == 0 {
		return 0, ErrUserOffline
	}
	return n, nil
}

func validateBitmap(b64 string, width int) error {
	if b64 == "" {
		return nil
	}
	if width <= 0 {
		return fmt.Errorf("%w: bitmap width required", ErrMalformed)
	}
	if len(b64) > maxBitmapLen {
		return fmt.Errorf("%w: bitmap too large", ErrMalformed)
	}
	if _, err := base64.StdEncoding.DecodeString(b64); err != nil {
		return fmt.Errorf("%w: bitmap not base64", ErrMalformed)
	}
	return nil
}

// truncateText cuts s to at most n characters (not bytes).
func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func senderName(id model.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return defaultSender
}
