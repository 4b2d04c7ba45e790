package registry

import (
	"sync"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"

	"go.uber.org/zap"
)

// RoomRegistry tracks the live set of connected sessions per party
// code, independent of durable party membership. One instance per
// process, injected into the engine and the gateway.
type RoomRegistry struct {
	mu       sync.RWMutex
	rooms    map[domain.PartyCode]map[domain.SessionID]ports.Session
	sessions map[domain.SessionID]domain.PartyCode

	logger *zap.SugaredLogger
}

func NewRoomRegistry(logger *zap.SugaredLogger) *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[domain.PartyCode]map[domain.SessionID]ports.Session),
		sessions: make(map[domain.SessionID]domain.PartyCode),
		logger:   logger,
	}
}

// Register adds the session to the room's live set. A session handle
// belongs to at most one room at a time; it must leave before
// rejoining.
func (r *RoomRegistry) Register(code domain.PartyCode, session ports.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID()]; exists {
		return domain.ErrDuplicateSession
	}

	room, ok := r.rooms[code]
	if !ok {
		room = make(map[domain.SessionID]ports.Session)
		r.rooms[code] = room
	}
	room[session.ID()] = session
	r.sessions[session.ID()] = code
	return nil
}

// Unregister removes the session from whatever room it belongs to.
// No-op if already absent.
func (r *RoomRegistry) Unregister(sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sessionID)
}

func (r *RoomRegistry) removeLocked(sessionID domain.SessionID) {
	code, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)

	room, ok := r.rooms[code]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.rooms, code)
	}
}

// Broadcast delivers event to every live session in the room except
// the optional excluded sender. The member list is snapshotted under
// the read lock and delivery happens outside it; Send is non-blocking
// per session, so one slow or dead receiver never holds up the rest.
func (r *RoomRegistry) Broadcast(code domain.PartyCode, event domain.OutEvent, exclude domain.SessionID) {
	r.mu.RLock()
	room := r.rooms[code]
	targets := make([]ports.Session, 0, len(room))
	for id, session := range room {
		if id == exclude {
			continue
		}
		targets = append(targets, session)
	}
	r.mu.RUnlock()

	for _, session := range targets {
		session.Send(event)
	}
}

// RoomOf returns the room the session is currently joined to.
func (r *RoomRegistry) RoomOf(sessionID domain.SessionID) (domain.PartyCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.sessions[sessionID]
	return code, ok
}

// RoomSize returns the count of live sessions in the room.
func (r *RoomRegistry) RoomSize(code domain.PartyCode) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[code])
}

// Rooms returns the number of rooms with at least one live session.
func (r *RoomRegistry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Shutdown sweeps every room, unregistering all sessions. Part of
// process shutdown: no leave notices are sent, the process is going
// away along with every connection it owns.
func (r *RoomRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := len(r.sessions)
	r.rooms = make(map[domain.PartyCode]map[domain.SessionID]ports.Session)
	r.sessions = make(map[domain.SessionID]domain.PartyCode)

	if swept > 0 {
		r.logger.Infow("registry shutdown sweep", "sessions", swept)
	}
}
