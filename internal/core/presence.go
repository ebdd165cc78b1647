package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
)

// UserSession is one authenticated user socket.
type UserSession struct {
	model.Identity
	Address     string
	Conn        Conn
	ConnectedAt time.Time
}

// PresenceTracker keeps every user socket, keyed by connection. One user may
// hold many sockets (tabs, devices).
type PresenceTracker struct {
	feed
	bans     *BanGuard
	throttle *logger.Throttle
	now      func() time.Time
	maxConns int

	byConn map[string]*UserSession
	byUser map[string]map[string]*UserSession
}

func NewPresenceTracker(bans *BanGuard, throttle *logger.Throttle, maxConns int) *PresenceTracker {
	if throttle == nil {
		throttle = logger.NewThrottle(logger.DefaultThrottleWindow)
	}
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &PresenceTracker{
		bans:     bans,
		throttle: throttle,
		now:      time.Now,
		maxConns: maxConns,
		byConn:   make(map[string]*UserSession),
		byUser:   make(map[string]map[string]*UserSession),
	}
}

// Add admits conn for identity. Banned accounts and addresses get their
// connection closed.
func (t *PresenceTracker) Add(conn Conn, identity model.Identity) error {
	if identity.UserID == "" {
		conn.Close()
		return fmt.Errorf("%w: user id required", ErrMalformed)
	}
	addr := normalizeAddress(conn.RemoteAddr())
	if t.bans.IsBanned(identity.UserID, addr) {
		t.throttle.Infof("ban:user:"+identity.UserID, "user %s from %s rejected: banned", identity.UserID, addr)
		conn.Close()
		return ErrBanned
	}
	if _, exists := t.byConn[conn.ID()]; !exists && len(t.byConn) >= t.maxConns {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", t.maxConns, identity.UserID)
		conn.Close()
		return ErrCapacity
	}
	t.drop(conn)

	s := &UserSession{Identity: identity, Address: addr, Conn: conn, ConnectedAt: t.now()}
	t.byConn[conn.ID()] = s
	if _, ok := t.byUser[identity.UserID]; !ok {
		t.byUser[identity.UserID] = make(map[string]*UserSession)
	}
	t.byUser[identity.UserID][conn.ID()] = s
	t.emit(TopicUsers)
	return nil
}

func (t *PresenceTracker) Remove(conn Conn) bool {
	if !t.drop(conn) {
		return false
	}
	t.emit(TopicUsers)
	return true
}

func (t *PresenceTracker) drop(conn Conn) bool {
	s, ok := t.byConn[conn.ID()]
	if !ok {
		return false
	}
	delete(t.byConn, conn.ID())
	if sessions, ok := t.byUser[s.UserID]; ok {
		delete(sessions, conn.ID())
		if len(sessions) == 0 {
			delete(t.byUser, s.UserID)
		}
	}
	return true
}

// Identity returns who is behind conn.
func (t *PresenceTracker) Identity(conn Conn) (model.Identity, bool) {
	s, ok := t.byConn[conn.ID()]
	if !ok {
		return model.Identity{}, false
	}
	return s.Identity, true
}

// ListByUser returns one entry per user id, ordered by user id. Name and
// avatar come from the newest session.
func (t *PresenceTracker) ListByUser() []model.UserPresence {
	out := make([]model.UserPresence, 0, len(t.byUser))
	for _, userID := range t.userIDs() {
		sessions := t.sessionsOf(userID)
		newest := sessions[0]
		p := model.UserPresence{UserID: userID, ConnectedAt: sessions[0].ConnectedAt}
		for _, s := range sessions {
			p.Connections = append(p.Connections, s.Conn.ID())
			if s.ConnectedAt.Before(p.ConnectedAt) {
				p.ConnectedAt = s.ConnectedAt
			}
			if s.ConnectedAt.After(newest.ConnectedAt) {
				newest = s
			}
		}
		p.Name = newest.Name
		p.AvatarURL = newest.AvatarURL
		out = append(out, p)
	}
	return out
}

// AddressesOf returns the distinct addresses userID is connected from.
func (t *PresenceTracker) AddressesOf(userID string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range t.sessionsOf(userID) {
		if s.Address == "" {
			continue
		}
		if _, ok := seen[s.Address]; ok {
			continue
		}
		seen[s.Address] = struct{}{}
		out = append(out, s.Address)
	}
	sort.Strings(out)
	return out
}

func (t *PresenceTracker) ConnectionsOf(userID string) []Conn {
	sessions := t.sessionsOf(userID)
	out := make([]Conn, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Conn)
	}
	return out
}

// Connections returns every user socket ordered by connection id.
func (t *PresenceTracker) Connections() []Conn {
	ids := make([]string, 0, len(t.byConn))
	for id := range t.byConn {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Conn, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.byConn[id].Conn)
	}
	return out
}

// DisconnectUser closes and removes every socket of userID.
func (t *PresenceTracker) DisconnectUser(userID string) int {
	return t.disconnect(t.sessionsOf(userID))
}

// DisconnectByAddress closes and removes every socket connected from addr.
func (t *PresenceTracker) DisconnectByAddress(addr string) int {
	addr = normalizeAddress(addr)
	var match []*UserSession
	for _, c := range t.Connections() {
		if s := t.byConn[c.ID()]; s.Address == addr {
			match = append(match, s)
		}
	}
	return t.disconnect(match)
}

func (t *PresenceTracker) disconnect(sessions []*UserSession) int {
	for _, s := range sessions {
		t.drop(s.Conn)
		s.Conn.Close()
	}
	if len(sessions) > 0 {
		t.emit(TopicUsers)
	}
	return len(sessions)
}

func (t *PresenceTracker) Len() int { return len(t.byConn) }

func (t *PresenceTracker) userIDs() []string {
	ids := make([]string, 0, len(t.byUser))
	for id := range t.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sessionsOf returns userID's sessions ordered by connection id.
func (t *PresenceTracker) sessionsOf(userID string) []*UserSession {
	sessions := t.byUser[userID]
	out := make([]*UserSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Conn.ID() < out[j].Conn.ID() })
	return out
}
