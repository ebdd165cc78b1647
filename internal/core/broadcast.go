package core

import (
	"context"
	"time"

	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
	"github.com/qbit/internal/ws"
)

const snapshotTimeout = 5 * time.Second

// ClaimLister supplies the claim-owner annotation of device snapshots.
type ClaimLister interface {
	Records(ctx context.Context) (map[string]model.ClaimRecord, error)
}

// BroadcastHub pushes full snapshots to every user socket: devices:update when
// devices or claims change, users:update when presence changes. A full list
// every time means one delivered message is enough for a client to converge.
type BroadcastHub struct {
	devices *DeviceRegistry
	users   *PresenceTracker
	claims  ClaimLister
}

func NewBroadcastHub(devices *DeviceRegistry, users *PresenceTracker, claims ClaimLister) *BroadcastHub {
	return &BroadcastHub{devices: devices, users: users, claims: claims}
}

// Changed implements Observer.
func (h *BroadcastHub) Changed(t Topic) {
	defer logger.DeferLogDuration("hub.broadcast."+t.String(), time.Now())()
	var msg ws.OutgoingMessage
	switch t {
	case TopicDevices:
		devices, err := h.DeviceSnapshot(context.Background())
		if err != nil {
			logger.Errorf("hub device snapshot: %v", err)
			return
		}
		msg = ws.OutgoingMessage{Type: ws.EventDevicesUpdate, Payload: devices}
	case TopicUsers:
		msg = ws.OutgoingMessage{Type: ws.EventUsersUpdate, Payload: h.UserSnapshot()}
	default:
		return
	}
	for _, c := range h.users.Connections() {
		c.Send(msg)
	}
}

// DeviceSnapshot lists live devices ordered by id, annotated with their owner.
func (h *BroadcastHub) DeviceSnapshot(ctx context.Context) ([]model.DevicePublic, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	records, err := h.claims.Records(ctx)
	if err != nil {
		return nil, err
	}
	sessions := h.devices.Sessions()
	out := make([]model.DevicePublic, 0, len(sessions))
	for _, s := range sessions {
		var claim *model.ClaimRecord
		if rec, ok := records[s.ID]; ok {
			claim = &rec
		}
		out = append(out, s.ToPublic(claim))
	}
	return out, nil
}

func (h *BroadcastHub) UserSnapshot() []model.UserPresence {
	return h.users.ListByUser()
}

// SendDevices pushes the current device list to one socket (new connections).
func (h *BroadcastHub) SendDevices(ctx context.Context, c Conn) error {
	devices, err := h.DeviceSnapshot(ctx)
	if err != nil {
		return err
	}
	c.Send(ws.OutgoingMessage{Type: ws.EventDevicesUpdate, Payload: devices})
	return nil
}
