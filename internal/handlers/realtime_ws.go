// internal/handlers/realtime_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/hub"
	"github.com/lernspiel/arena/internal/models"
)

// RealtimeWSHandler upgrades to a websocket carrying the push event stream.
// Requested channels come from the comma-separated "channels" query parameter;
// later subscriptions go through SubscribeHandler.
// GET /realtime/ws?channels=lobby:<id>,session:<id>
func (s *Server) RealtimeWSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{"events"},
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.Logger.WithError(err).Warn("websocket accept failed")
		return
	}
	if c.Subprotocol() != "events" {
		c.Close(websocket.StatusCode(BadSubprotocolError), "client must speak the events subprotocol")
		return
	}

	actor, ok := actorFromRequest(r)
	if !ok {
		c.Close(websocket.StatusCode(InvalidAuthTokenError), "missing or invalid auth token")
		return
	}

	var channels []string
	if raw := r.URL.Query().Get("channels"); raw != "" {
		for _, ch := range strings.Split(raw, ",") {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				continue
			}
			if hub.ChannelType(ch) == "" {
				c.Close(websocket.StatusCode(InvalidChannelError), "malformed channel key: "+ch)
				return
			}
			channels = append(channels, ch)
		}
	}

	req := hub.AdmitRequest{
		UserID:   actor.UserID,
		Role:     actor.Role,
		Admin:    actor.IsAdmin(),
		Channels: channels,
	}
	req.SessionParticipant, req.LobbyOwner = s.classifyChannels(r.Context(), actor, channels)

	conn, err := s.Hub.Admit(req)
	if err != nil {
		c.Close(websocket.StatusCode(CapacityRejectedError), "server at connection capacity")
		return
	}
	defer s.Hub.Remove(conn.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Tell the client its connection id so it can manage subscriptions over
	// the request/response API; the stream itself stays server-to-client only.
	hello := hub.NewEvent("connection:established", map[string]interface{}{
		"connection_id": conn.ID,
		"tier":          conn.Tier.String(),
	})
	if err := wsjson.Write(ctx, c, hello); err != nil {
		return
	}

	go s.writePump(ctx, c, conn)
	s.readPump(ctx, c, conn)
}

// SubscribeHandler adds a channel subscription to an established stream
// connection. Subscriptions are managed here rather than in-band because the
// event stream is one-way.
// POST /realtime/subscribe
func (s *Server) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ConnectionID uuid.UUID `json:"connection_id"`
		Channel      string    `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if hub.ChannelType(req.Channel) == "" {
		http.Error(w, "malformed channel key", http.StatusBadRequest)
		return
	}

	if err := s.Hub.Subscribe(req.ConnectionID, req.Channel, actor.IsAdmin()); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscribed": req.Channel})
}

// classifyChannels derives the priority-context flags from what the caller
// actually is, never from what it claims. A session channel counts only when
// the actor is on that session's roster; a lobby channel only when the actor
// owns or hosts that lobby.
func (s *Server) classifyChannels(ctx context.Context, actor models.Actor, channels []string) (sessionParticipant, lobbyOwner bool) {
	for _, ch := range channels {
		typ, id, found := strings.Cut(ch, ":")
		if !found {
			continue
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		switch typ {
		case hub.ChannelSession:
			sess, err := s.Lookup.GetSession(ctx, uid)
			if err != nil || sess == nil {
				continue
			}
			for _, p := range sess.Participants {
				if p.UserID != nil && *p.UserID == actor.UserID {
					sessionParticipant = true
					break
				}
			}
		case hub.ChannelLobby:
			lob, err := s.Lookup.GetLobby(ctx, uid)
			if err != nil || lob == nil {
				continue
			}
			if lob.OwnerID == actor.UserID || lob.HostID == actor.UserID {
				lobbyOwner = true
			}
		}
	}
	return sessionParticipant, lobbyOwner
}

// writePump drains the hub's per-connection event stream onto the wire. The
// stream channel closing means the hub removed us; close the socket normally.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *hub.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				c.Close(websocket.StatusNormalClosure, "connection removed")
				return
			}
			if err := wsjson.Write(ctx, c, ev); err != nil {
				s.Logger.WithFields(logrus.Fields{
					"conn": conn.ID, "error": err,
				}).Debug("websocket write failed")
				return
			}
		}
	}
}

// readPump drains inbound frames purely for liveness and closure detection.
// The stream carries no client actions; those go through the HTTP API.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *hub.Conn) {
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
		s.Hub.Touch(conn.ID)
	}
}
