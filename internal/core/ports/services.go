package ports

import (
	"context"

	"cinesync/internal/core/domain"
)

// Session is one live transport connection's identity within a room.
// Send must never block the caller: delivery to one session is
// fire-and-forget relative to the others.
type Session interface {
	ID() domain.SessionID
	UserID() domain.UserID
	Username() string
	Send(event domain.OutEvent)
}

// Registry tracks, per party code, the live set of connected sessions.
// It is instantiated once per process and injected, never a global.
type Registry interface {
	// Register adds the session to the room's live set. It fails with
	// domain.ErrDuplicateSession if the session is already registered
	// anywhere; a session must leave before rejoining.
	Register(code domain.PartyCode, session Session) error

	// Unregister removes the session from whatever room it belongs to.
	// Idempotent; this is the only cleanup path and must run on every
	// disconnect, abnormal ones included.
	Unregister(sessionID domain.SessionID)

	// Broadcast delivers event to every live session in the room except
	// the optional excluded sender (empty ID excludes nobody).
	Broadcast(code domain.PartyCode, event domain.OutEvent, exclude domain.SessionID)

	// RoomOf returns the room the session is joined to, if any.
	RoomOf(sessionID domain.SessionID) (domain.PartyCode, bool)

	// RoomSize returns the count of live sessions in the room.
	RoomSize(code domain.PartyCode) int

	// Shutdown sweeps every room, unregistering and closing all
	// sessions. Used on process shutdown only.
	Shutdown()
}

// SyncEngine is the protocol layer: the only component allowed to
// mutate party store state on behalf of connected sessions.
type SyncEngine interface {
	// Dispatch consumes one inbound event on behalf of session. Errors
	// concern the triggering session only and are never broadcast.
	Dispatch(ctx context.Context, session Session, event domain.Event) error

	// Disconnect tears down the session's room membership after its
	// transport died. Safe to call for sessions that never joined.
	Disconnect(ctx context.Context, session Session)
}

// PartyService owns party creation and the HTTP-side join
// authorization (password check and join tickets); it shares the store
// with the engine but never touches live rooms.
type PartyService interface {
	Create(ctx context.Context, name, movieID string, hostID domain.UserID, username, password string) (*domain.Party, error)
	Info(ctx context.Context, code domain.PartyCode) (*domain.Party, error)
	Authorize(ctx context.Context, code domain.PartyCode, userID domain.UserID, password string) (*domain.Party, string, error)
	VerifyTicket(ticket string, code domain.PartyCode, userID domain.UserID) error
	CheckPassword(party *domain.Party, password string) error
}
