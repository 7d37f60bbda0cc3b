// internal/hub/hub.go
//
// The hub owns every long-lived push connection and the channel index mapping
// channel keys to subscriber sets. All writers go through the hub's mutex; the
// eviction and cleanup sweeps are the only background writers.
package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/apperr"
)

// Config bounds the hub's resource usage.
type Config struct {
	MaxConnections           int
	MaxChannelsPerConnection int
	EvictionBatch            int
	EvictionGrace            time.Duration
	HeartbeatInterval        time.Duration
	CleanupInterval          time.Duration
	IdleTimeout              time.Duration
	SendBuffer               int
}

func (c *Config) withDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 500
	}
	if c.MaxChannelsPerConnection <= 0 {
		c.MaxChannelsPerConnection = 32
	}
	if c.EvictionBatch <= 0 {
		c.EvictionBatch = 1
	}
	if c.EvictionGrace <= 0 {
		c.EvictionGrace = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
}

// Conn is one established push connection. Tier is fixed at admission and
// never re-evaluated; a mid-life role change does not reprioritize the
// connection.
type Conn struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Role        string
	Tier        Tier
	ConnectedAt time.Time

	lastActive time.Time
	channels   map[string]struct{}
	out        chan Event
	evicted    bool
}

// Events exposes the outbound event stream consumed by the transport's write
// pump. The channel is closed when the connection is removed from the hub.
func (c *Conn) Events() <-chan Event { return c.out }

// AdmitRequest describes a new connection: its identity, the channels it
// wants, and the context flags used for priority classification.
type AdmitRequest struct {
	UserID   uuid.UUID
	Role     string
	Admin    bool
	Channels []string

	// SessionParticipant is set when the caller is an active participant of a
	// requested session channel.
	SessionParticipant bool
	// LobbyOwner is set when the caller owns or hosts a requested lobby
	// channel.
	LobbyOwner bool
}

// Hub is the realtime broadcast hub.
type Hub struct {
	mu       sync.Mutex
	cfg      Config
	logger   *logrus.Logger
	conns    map[uuid.UUID]*Conn
	channels map[string]map[uuid.UUID]*Conn

	now func() time.Time
}

func New(cfg Config, logger *logrus.Logger) *Hub {
	cfg.withDefaults()
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		conns:    make(map[uuid.UUID]*Conn),
		channels: make(map[string]map[uuid.UUID]*Conn),
		now:      time.Now,
	}
}

// Run drives the heartbeat and idle-cleanup sweeps until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	cleanup := time.NewTicker(h.cfg.CleanupInterval)
	defer heartbeat.Stop()
	defer cleanup.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			h.Heartbeat()
		case <-cleanup.C:
			h.CleanupIdle()
		}
	}
}

// Admit classifies the request, enforces the global connection cap, and
// registers the connection subscribed to its requested channels.
//
// At capacity, the batch of lowest-priority connections (oldest first within
// a tier) is evicted if at least one has strictly lower priority than the
// requester; otherwise admission fails with CapacityRejected. Eviction sends
// a notice and schedules hard removal after a grace period without blocking
// the new admission.
func (h *Hub) Admit(req AdmitRequest) (*Conn, error) {
	tier := classify(req)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.conns) >= h.cfg.MaxConnections {
		victims := h.evictionCandidatesLocked(tier)
		if len(victims) == 0 {
			h.logger.WithFields(logrus.Fields{
				"user": req.UserID, "tier": tier.String(),
			}).Warn("hub at capacity, admission rejected")
			return nil, apperr.New(apperr.CapacityRejected,
				"connection limit reached and no lower-priority connection is evictable")
		}
		if len(victims) > h.cfg.EvictionBatch {
			victims = victims[:h.cfg.EvictionBatch]
		}
		for _, v := range victims {
			h.evictLocked(v)
		}
	}

	now := h.now()
	c := &Conn{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Role:        req.Role,
		Tier:        tier,
		ConnectedAt: now,
		lastActive:  now,
		channels:    make(map[string]struct{}),
		out:         make(chan Event, h.cfg.SendBuffer),
	}
	h.conns[c.ID] = c

	for _, ch := range req.Channels {
		if err := h.subscribeLocked(c, ch, req.Admin); err != nil {
			h.logger.WithFields(logrus.Fields{
				"conn": c.ID, "channel": ch, "error": err,
			}).Warn("dropping requested channel at admit")
		}
	}

	h.logger.WithFields(logrus.Fields{
		"conn": c.ID, "user": req.UserID, "tier": tier.String(), "channels": len(c.channels),
	}).Info("connection admitted")
	return c, nil
}

// evictionCandidatesLocked returns connections with strictly lower priority
// than tier, lowest priority first and oldest first within a tier.
func (h *Hub) evictionCandidatesLocked(tier Tier) []*Conn {
	var out []*Conn
	for _, c := range h.conns {
		if !c.evicted && c.Tier > tier {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier > out[j].Tier
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// evictLocked sends the eviction notice and schedules hard removal after the
// grace period. The slot is freed immediately for accounting purposes by
// marking the connection evicted.
func (h *Hub) evictLocked(c *Conn) {
	c.evicted = true
	c.trySend(NewEvent("connection:evicted", map[string]interface{}{
		"reason":       "capacity",
		"grace_period": h.cfg.EvictionGrace.String(),
	}))
	h.logger.WithFields(logrus.Fields{
		"conn": c.ID, "tier": c.Tier.String(),
	}).Info("connection evicted for capacity")
	id := c.ID
	time.AfterFunc(h.cfg.EvictionGrace, func() { h.Remove(id) })
}

// Subscribe registers the connection under a channel after a permission
// check, enforcing the per-connection channel cap.
func (h *Hub) Subscribe(connID uuid.UUID, channel string, admin bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return apperr.New(apperr.NotFound, "connection %s is not established", connID)
	}
	return h.subscribeLocked(c, channel, admin)
}

func (h *Hub) subscribeLocked(c *Conn, channel string, admin bool) error {
	typ := ChannelType(channel)
	if typ == "" {
		return errors.New("malformed channel key")
	}
	switch typ {
	case ChannelSystem, ChannelGlobal:
		// Open to all.
	case ChannelUser:
		if channel != UserChannel(c.UserID) && !admin {
			return apperr.New(apperr.AccessDenied, "user channel %s belongs to another user", channel)
		}
	default:
		// game/lobby/session channels are open to any authenticated
		// connection. Deliberately permissive: ownership/participation is not
		// verified here. Tightening this is a product decision.
	}
	if _, already := c.channels[channel]; already {
		return nil
	}
	if len(c.channels) >= h.cfg.MaxChannelsPerConnection {
		return apperr.New(apperr.CapacityExceeded,
			"connection %s already subscribes to %d channels", c.ID, len(c.channels))
	}
	c.channels[channel] = struct{}{}
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[uuid.UUID]*Conn)
		h.channels[channel] = subs
	}
	subs[c.ID] = c
	return nil
}

// Broadcast delivers the event to every connection subscribed to any target
// channel and not excluded. Delivery is best-effort per recipient: a failed
// write removes that connection and the broadcast continues.
func (h *Hub) Broadcast(ev Event, channels []string, exclude []uuid.UUID) {
	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[uuid.UUID]struct{})
	var dead []*Conn
	for _, ch := range channels {
		for id, c := range h.channels[ch] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if _, excluded := skip[id]; excluded {
				continue
			}
			if !c.trySend(ev) {
				dead = append(dead, c)
			}
		}
	}
	for _, c := range dead {
		h.logger.WithField("conn", c.ID).Warn("dropping unresponsive connection during broadcast")
		h.removeLocked(c)
	}
}

// BroadcastAll sends the event to every established connection (system events).
func (h *Hub) BroadcastAll(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var dead []*Conn
	for _, c := range h.conns {
		if !c.trySend(ev) {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.removeLocked(c)
	}
}

// Heartbeat pushes a meta:heartbeat event with server time and the live
// connection count so clients can detect a dead transport. Count and delivery
// happen under one lock acquisition so the advertised count matches the set of
// connections the event reaches.
func (h *Hub) Heartbeat() {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev := Event{
		Type:      "meta:heartbeat",
		Timestamp: h.now().UTC(),
		Payload: map[string]interface{}{
			"server_time": h.now().UTC(),
			"connections": len(h.conns),
		},
	}
	var dead []*Conn
	for _, c := range h.conns {
		if !c.trySend(ev) {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.removeLocked(c)
	}
}

// CleanupIdle removes connections whose last activity exceeds the idle
// timeout, independent of heartbeat cadence.
func (h *Hub) CleanupIdle() {
	cutoff := h.now().Add(-h.cfg.IdleTimeout)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		if c.lastActive.Before(cutoff) {
			h.logger.WithField("conn", c.ID).Info("removing idle connection")
			h.removeLocked(c)
		}
	}
}

// Touch records connection activity (transport reads, pongs).
func (h *Hub) Touch(connID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		c.lastActive = h.now()
	}
}

// Remove drops a connection: unsubscribes it from every channel, pruning
// channels left without subscribers, and closes its event stream.
func (h *Hub) Remove(connID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *Conn) {
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	delete(h.conns, c.ID)
	for ch := range c.channels {
		if subs, ok := h.channels[ch]; ok {
			delete(subs, c.ID)
			if len(subs) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	close(c.out)
}

// Len reports the number of established connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// trySend pushes non-blockingly onto the connection's buffer. A full or
// closed buffer means the write pump is gone or stuck; the caller treats the
// connection as dead.
func (c *Conn) trySend(ev Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}
