package core

import (
	"context"
	"fmt"
	"time"

	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
	"github.com/qbit/internal/storage"
	"github.com/qbit/internal/ws"
)

// ClaimTimeout is how long a device has to confirm a claim. Fixed.
const ClaimTimeout = 30 * time.Second

// ClaimOutcome is how a pending claim ended.
type ClaimOutcome string

const (
	ClaimConfirmed ClaimOutcome = "claimed"
	ClaimRejected  ClaimOutcome = "rejected"
	ClaimExpired   ClaimOutcome = "expired"
)

// ClaimListener hears how every pending claim was resolved.
type ClaimListener interface {
	ClaimResolved(deviceID string, requester model.Identity, outcome ClaimOutcome)
}

type pendingClaim struct {
	requester model.Identity
	startedAt time.Time
	cancel    func()
}

// ClaimCoordinator runs the claim handshake per device id:
//
//	UNCLAIMED -> PENDING   RequestClaim
//	PENDING   -> CLAIMED   Confirm from the device
//	PENDING   -> UNCLAIMED Reject from the device, or timeout
//	CLAIMED   -> UNCLAIMED Unclaim by the owner
//
// A device id never has a pending claim and a claim record at the same time.
type ClaimCoordinator struct {
	feed
	devices   *DeviceRegistry
	store     storage.ClaimStore
	sched     Scheduler
	listeners []ClaimListener
	now       func() time.Time

	pending map[string]*pendingClaim
}

func NewClaimCoordinator(devices *DeviceRegistry, store storage.ClaimStore, sched Scheduler) *ClaimCoordinator {
	if sched == nil {
		sched = TimeScheduler{}
	}
	return &ClaimCoordinator{
		devices: devices,
		store:   store,
		sched:   sched,
		now:     time.Now,
		pending: make(map[string]*pendingClaim),
	}
}

func (c *ClaimCoordinator) Listen(l ClaimListener) {
	c.listeners = append(c.listeners, l)
}

// RequestClaim asks the device to confirm that requester may own it.
// There is no queue: while a claim is pending every other request fails.
func (c *ClaimCoordinator) RequestClaim(ctx context.Context, deviceID string, requester model.Identity) error {
	if _, ok := c.pending[deviceID]; ok {
		return ErrClaimPending
	}
	rec, err := c.store.GetClaim(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("claims.Request %s: %w", deviceID, err)
	}
	if rec != nil {
		return ErrAlreadyClaimed
	}
	// the store read may have yielded; state is re-checked before committing
	if _, ok := c.pending[deviceID]; ok {
		return ErrClaimPending
	}

	session, ok := c.devices.Lookup(deviceID)
	if !ok {
		return ErrDeviceOffline
	}
	sent := session.Conn.Send(ws.ClaimRequestMessage{
		Type:       ws.DeviceClaimRequest,
		UserName:   requester.Name,
		UserAvatar: requester.AvatarURL,
	})
	if !sent {
		return ErrDeviceOffline
	}

	p := &pendingClaim{requester: requester, startedAt: c.now()}
	p.cancel = c.sched.AfterFunc(ClaimTimeout, func() { c.expire(deviceID, p) })
	c.pending[deviceID] = p
	logger.Infof("claim requested device=%s user=%s", deviceID, requester.UserID)
	return nil
}

// expire is the timer body. It only acts if p is still the pending claim for
// deviceID; a claim that was confirmed, rejected or replaced leaves it a no-op.
func (c *ClaimCoordinator) expire(deviceID string, p *pendingClaim) {
	if c.pending[deviceID] != p {
		return
	}
	delete(c.pending, deviceID)
	logger.Infof("claim expired device=%s user=%s after %v", deviceID, p.requester.UserID, c.now().Sub(p.startedAt).Round(time.Second))
	c.notify(deviceID, p.requester, ClaimExpired)
}

// resolve takes the pending claim of the device registered on conn.
func (c *ClaimCoordinator) resolve(conn Conn) (string, *pendingClaim, error) {
	deviceID, ok := c.devices.DeviceOf(conn)
	if !ok {
		return "", nil, ErrNotRegistered
	}
	p, ok := c.pending[deviceID]
	if !ok {
		return deviceID, nil, ErrNotPending
	}
	p.cancel()
	delete(c.pending, deviceID)
	return deviceID, p, nil
}

// Confirm materializes the pending claim of the device on conn.
func (c *ClaimCoordinator) Confirm(ctx context.Context, conn Conn) (model.ClaimRecord, error) {
	deviceID, p, err := c.resolve(conn)
	if err != nil {
		return model.ClaimRecord{}, err
	}
	rec := model.ClaimRecord{
		DeviceID:  deviceID,
		UserID:    p.requester.UserID,
		UserName:  p.requester.Name,
		AvatarURL: p.requester.AvatarURL,
		ClaimedAt: c.now().UTC(),
	}
	if err := c.store.PutClaim(ctx, rec); err != nil {
		c.notify(deviceID, p.requester, ClaimRejected)
		return model.ClaimRecord{}, fmt.Errorf("claims.Confirm %s: %w", deviceID, err)
	}
	logger.Infof("claim confirmed device=%s user=%s", deviceID, rec.UserID)
	c.emit(TopicDevices)
	c.notify(deviceID, p.requester, ClaimConfirmed)
	return rec, nil
}

// Reject drops the pending claim of the device on conn. Nothing visible
// changed, so there is no broadcast.
func (c *ClaimCoordinator) Reject(conn Conn) error {
	deviceID, p, err := c.resolve(conn)
	if err != nil {
		return err
	}
	logger.Infof("claim rejected device=%s user=%s", deviceID, p.requester.UserID)
	c.notify(deviceID, p.requester, ClaimRejected)
	return nil
}

// Unclaim removes the claim record; only its owner may do this.
func (c *ClaimCoordinator) Unclaim(ctx context.Context, deviceID, userID string) error {
	rec, err := c.store.GetClaim(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("claims.Unclaim %s: %w", deviceID, err)
	}
	if rec == nil {
		return ErrNotClaimed
	}
	if rec.UserID != userID {
		return ErrNotOwner
	}
	if err := c.store.DeleteClaim(ctx, deviceID); err != nil {
		return fmt.Errorf("claims.Unclaim %s: %w", deviceID, err)
	}
	logger.Infof("claim released device=%s user=%s", deviceID, userID)
	c.emit(TopicDevices)
	return nil
}

// Cancel drops a pending claim without a device answer (e.g. the requester was banned).
func (c *ClaimCoordinator) Cancel(deviceID string) bool {
	p, ok := c.pending[deviceID]
	if !ok {
		return false
	}
	p.cancel()
	delete(c.pending, deviceID)
	c.notify(deviceID, p.requester, ClaimRejected)
	return true
}

// CancelByUser drops every pending claim requested by userID.
func (c *ClaimCoordinator) CancelByUser(userID string) int {
	var n int
	for deviceID, p := range c.pending {
		if p.requester.UserID == userID && c.Cancel(deviceID) {
			n++
		}
	}
	return n
}

func (c *ClaimCoordinator) State(ctx context.Context, deviceID string) (model.ClaimState, error) {
	if _, ok := c.pending[deviceID]; ok {
		return model.ClaimPending, nil
	}
	rec, err := c.store.GetClaim(ctx, deviceID)
	if err != nil {
		return "", fmt.Errorf("claims.State %s: %w", deviceID, err)
	}
	if rec != nil {
		return model.ClaimClaimed, nil
	}
	return model.ClaimUnclaimed, nil
}

func (c *ClaimCoordinator) IsPending(deviceID string) bool {
	_, ok := c.pending[deviceID]
	return ok
}

// Records returns every claim record keyed by device id.
func (c *ClaimCoordinator) Records(ctx context.Context) (map[string]model.ClaimRecord, error) {
	list, err := c.store.ListClaims(ctx)
	if err != nil {
		return nil, fmt.Errorf("claims.Records: %w", err)
	}
	out := make(map[string]model.ClaimRecord, len(list))
	for _, rec := range list {
		out[rec.DeviceID] = rec
	}
	return out, nil
}

func (c *ClaimCoordinator) notify(deviceID string, requester model.Identity, outcome ClaimOutcome) {
	for _, l := range c.listeners {
		l.ClaimResolved(deviceID, requester, outcome)
	}
}
