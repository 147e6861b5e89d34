// Package hub tracks live connections and fans events out to them. Spectators
// observe every room; agents only receive room-scoped events for rooms they
// have joined. Delivery is best-effort per recipient: a failed write evicts
// that recipient and never blocks the others.
package hub

import "sync"

type Role string

const (
	RoleSpectator Role = "spectator"
	RoleAgent     Role = "agent"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Session is one live connection. AgentID and DisplayName are empty for
// spectators. The joined-room set is owned by the hub lock.
type Session struct {
	Role        Role
	AgentID     string
	DisplayName string
	Writer      Writer

	rooms map[string]struct{}
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

func New() *Hub {
	return &Hub{sessions: make(map[*Session]struct{})}
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.rooms == nil {
		s.rooms = make(map[string]struct{})
	}
	h.sessions[s] = struct{}{}
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, s)
}

func (h *Hub) JoinRoom(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	s.rooms[room] = struct{}{}
}

func (h *Hub) LeaveRoom(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(s.rooms, room)
}

func (h *Hub) Rooms(s *Session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (h *Hub) InRoom(s *Session, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := s.rooms[room]
	return ok
}

// AgentLive reports whether any registered session belongs to the agent.
// Used for roster presence.
func (h *Hub) AgentLive(agentID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.sessions {
		if s.Role == RoleAgent && s.AgentID == agentID {
			return true
		}
	}
	return false
}

// BroadcastAll delivers a global event to every live connection.
func (h *Hub) BroadcastAll(message []byte) {
	h.deliver(message, func(*Session) bool { return true })
}

// BroadcastRoom delivers a room-scoped event to all spectators and to agents
// joined to the room. excludeAgentID, when non-empty, skips that agent's
// sessions (the originator gets a direct ack instead of an echo).
func (h *Hub) BroadcastRoom(room string, message []byte, excludeAgentID string) {
	h.deliver(message, func(s *Session) bool {
		if excludeAgentID != "" && s.AgentID == excludeAgentID {
			return false
		}
		if s.Role == RoleSpectator {
			return true
		}
		_, joined := s.rooms[room]
		return joined
	})
}

// Send writes to a single session, evicting it on failure.
func (h *Hub) Send(s *Session, message []byte) {
	if err := s.Writer.Write(message); err != nil {
		_ = s.Writer.Close()
		h.Unregister(s)
	}
}

// CloseAgent writes a final message to every session of the agent, then
// closes and unregisters them. Used when a vote kicks the agent.
func (h *Hub) CloseAgent(agentID string, message []byte) {
	h.mu.Lock()
	var targets []*Session
	for s := range h.sessions {
		if s.Role == RoleAgent && s.AgentID == agentID {
			targets = append(targets, s)
			delete(h.sessions, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		_ = s.Writer.Write(message)
		_ = s.Writer.Close()
	}
}

func (h *Hub) deliver(message []byte, eligible func(*Session) bool) {
	h.mu.RLock()
	recipients := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		if eligible(s) {
			recipients = append(recipients, s)
		}
	}
	h.mu.RUnlock()

	var failed []*Session
	for _, s := range recipients {
		if err := s.Writer.Write(message); err != nil {
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		_ = s.Writer.Close()
		h.Unregister(s)
	}
}
