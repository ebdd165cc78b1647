package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
)

// DeviceSession is one live, registered device connection.
type DeviceSession struct {
	model.DeviceInfo
	PublicIP    string
	Conn        Conn
	ConnectedAt time.Time
}

func (s DeviceSession) ToPublic(claim *model.ClaimRecord) model.DevicePublic {
	d := model.DevicePublic{
		ID:          s.ID,
		Name:        s.Name,
		IP:          s.IP,
		PublicIP:    s.PublicIP,
		Version:     s.Version,
		ConnectedAt: s.ConnectedAt,
	}
	if claim != nil {
		d.ClaimedBy = claim.ToPublic()
	}
	return d
}

type deviceEntry struct {
	DeviceSession
	// alive is cleared on every heartbeat ping and set again by a pong.
	alive bool
}

// DeviceRegistry maps device ids to their single live connection.
type DeviceRegistry struct {
	feed
	bans     *BanGuard
	throttle *logger.Throttle
	now      func() time.Time

	byID   map[string]*deviceEntry
	byConn map[string]string // conn id -> device id, current owners only
}

func NewDeviceRegistry(bans *BanGuard, throttle *logger.Throttle) *DeviceRegistry {
	if throttle == nil {
		throttle = logger.NewThrottle(logger.DefaultThrottleWindow)
	}
	return &DeviceRegistry{
		bans:     bans,
		throttle: throttle,
		now:      time.Now,
		byID:     make(map[string]*deviceEntry),
		byConn:   make(map[string]string),
	}
}

// Register installs conn as the live session for info.ID. An older connection
// for the same id is closed and replaced in the same step. Re-registering on
// the same connection refreshes metadata and keeps the original connect time.
func (r *DeviceRegistry) Register(info model.DeviceInfo, conn Conn) error {
	info.ID = strings.TrimSpace(info.ID)
	if info.ID == "" {
		return fmt.Errorf("%w: device id required", ErrMalformed)
	}
	publicIP := normalizeAddress(conn.RemoteAddr())

	if r.bans.IsBannedDevice(info.ID) || r.bans.IsBanned("", publicIP) {
		r.throttle.Infof("ban:device:"+info.ID, "device %s from %s rejected: banned", info.ID, publicIP)
		conn.Close()
		if r.dropConn(conn) {
			r.emit(TopicDevices)
		}
		return ErrBanned
	}

	connectedAt := r.now()
	if prevID, ok := r.byConn[conn.ID()]; ok && prevID != info.ID {
		// same socket now claims to be another device
		delete(r.byID, prevID)
	}
	if cur, ok := r.byID[info.ID]; ok {
		if cur.Conn.ID() == conn.ID() {
			connectedAt = cur.ConnectedAt
		} else {
			delete(r.byConn, cur.Conn.ID())
			cur.Conn.Close()
			logger.Infof("device %s superseded: old conn=%s new conn=%s", info.ID, cur.Conn.ID(), conn.ID())
		}
	}

	r.byID[info.ID] = &deviceEntry{
		DeviceSession: DeviceSession{
			DeviceInfo:  info,
			PublicIP:    publicIP,
			Conn:        conn,
			ConnectedAt: connectedAt,
		},
		alive: true,
	}
	r.byConn[conn.ID()] = info.ID
	r.emit(TopicDevices)
	return nil
}

func (r *DeviceRegistry) Lookup(deviceID string) (DeviceSession, bool) {
	e, ok := r.byID[deviceID]
	if !ok {
		return DeviceSession{}, false
	}
	return e.DeviceSession, true
}

// DeviceOf returns the device id conn is currently registered as.
// Superseded connections are not registered as anything.
func (r *DeviceRegistry) DeviceOf(conn Conn) (string, bool) {
	id, ok := r.byConn[conn.ID()]
	return id, ok
}

// Deregister removes the session owned by conn. A connection that has been
// superseded no longer owns anything, so its late deregister is a no-op.
func (r *DeviceRegistry) Deregister(conn Conn) bool {
	if !r.dropConn(conn) {
		return false
	}
	r.emit(TopicDevices)
	return true
}

func (r *DeviceRegistry) dropConn(conn Conn) bool {
	id, ok := r.byConn[conn.ID()]
	if !ok {
		return false
	}
	delete(r.byConn, conn.ID())
	if e, ok := r.byID[id]; ok && e.Conn.ID() == conn.ID() {
		delete(r.byID, id)
		return true
	}
	return false
}

// DisconnectByAddress closes and removes every session whose public address is addr.
func (r *DeviceRegistry) DisconnectByAddress(addr string) int {
	addr = normalizeAddress(addr)
	var n int
	for _, id := range r.sortedIDs() {
		e := r.byID[id]
		if e.PublicIP != addr {
			continue
		}
		r.evict(e)
		n++
	}
	if n > 0 {
		r.emit(TopicDevices)
	}
	return n
}

// DisconnectDevice closes and removes the live session of deviceID.
func (r *DeviceRegistry) DisconnectDevice(deviceID string) bool {
	e, ok := r.byID[deviceID]
	if !ok {
		return false
	}
	r.evict(e)
	r.emit(TopicDevices)
	return true
}

func (r *DeviceRegistry) evict(e *deviceEntry) {
	delete(r.byID, e.ID)
	delete(r.byConn, e.Conn.ID())
	e.Conn.Close()
}

// Heartbeat terminates every session that has not answered the previous
// ping and pings the rest. Called once per heartbeat interval.
func (r *DeviceRegistry) Heartbeat() int {
	var dead int
	for _, id := range r.sortedIDs() {
		e := r.byID[id]
		if !e.alive {
			logger.Infof("device %s missed heartbeat, terminating conn=%s", e.ID, e.Conn.ID())
			r.evict(e)
			dead++
			continue
		}
		e.alive = false
		e.Conn.Ping()
	}
	if dead > 0 {
		r.emit(TopicDevices)
	}
	return dead
}

// MarkAlive records a pong from conn.
func (r *DeviceRegistry) MarkAlive(conn Conn) {
	if id, ok := r.byConn[conn.ID()]; ok {
		if e, ok := r.byID[id]; ok {
			e.alive = true
		}
	}
}

// Sessions returns every live session ordered by device id.
func (r *DeviceRegistry) Sessions() []DeviceSession {
	out := make([]DeviceSession, 0, len(r.byID))
	for _, id := range r.sortedIDs() {
		out = append(out, r.byID[id].DeviceSession)
	}
	return out
}

func (r *DeviceRegistry) Len() int { return len(r.byID) }

func (r *DeviceRegistry) sortedIDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
