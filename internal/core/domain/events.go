package domain

import "time"

// EventType tags inbound events from a gateway session. All inbound
// traffic funnels through a single tagged-variant type so the engine
// can enforce room locking and error propagation in one place.
type EventType string

const (
	EventJoin        EventType = "join"
	EventLeave       EventType = "leave"
	EventPlay        EventType = "play"
	EventPause       EventType = "pause"
	EventSeek        EventType = "seek"
	EventSendMessage EventType = "send_message"
)

// Event is one inbound event. Only the fields relevant to its Type are
// set; the engine validates the rest.
type Event struct {
	Type     EventType `json:"type"`
	Code     PartyCode `json:"code"`
	UserID   UserID    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Password string    `json:"password,omitempty"`
	Ticket   string    `json:"ticket,omitempty"`
	Position float64   `json:"position,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// Outbound event types pushed to connected sessions.
const (
	OutSnapshot          = "snapshot"
	OutParticipantJoined = "participant_joined"
	OutParticipantLeft   = "participant_left"
	OutPlay              = "play"
	OutPause             = "pause"
	OutSeek              = "seek"
	OutNewMessage        = "new_message"
	OutError             = "error"
)

// OutEvent is the envelope written to a session's transport.
type OutEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Snapshot is sent to a joining session only, reflecting the party
// state at the moment of join.
type Snapshot struct {
	Position       float64       `json:"position"`
	Playing        bool          `json:"playing"`
	Members        []Participant `json:"members"`
	RecentMessages []ChatMessage `json:"recent_messages"`
}

// Presence announces a participant joining or leaving a room.
type Presence struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
}

// Playback carries a play/pause/seek position.
type Playback struct {
	Position float64 `json:"position"`
}

// Message is a chat message enriched with the server-assigned
// timestamp.
type Message struct {
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload is pushed to the triggering session only.
type ErrorPayload struct {
	Message string `json:"message"`
}
