package domain

import (
	"time"
)

type PartyCode string
type UserID string
type SessionID string

// Party is the authoritative durable record of one watch-together
// session. Mutated only by the sync engine; the store enforces expiry.
type Party struct {
	Code         PartyCode     `json:"code"`
	Name         string        `json:"name"`
	MovieID      string        `json:"movie_id"`
	HostID       UserID        `json:"host_id"`
	PasswordHash string        `json:"password_hash,omitempty"`
	Position     float64       `json:"position"`
	Playing      bool          `json:"playing"`
	Participants []Participant `json:"participants"`
	Messages     []ChatMessage `json:"messages"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// Protected reports whether joining requires a password.
func (p *Party) Protected() bool {
	return p.PasswordHash != ""
}

// HasParticipant reports whether the user is already a durable member.
func (p *Party) HasParticipant(userID UserID) bool {
	for _, m := range p.Participants {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// RecentMessages returns at most the last limit chat messages in
// storage order.
func (p *Party) RecentMessages(limit int) []ChatMessage {
	if limit <= 0 || len(p.Messages) <= limit {
		return p.Messages
	}
	return p.Messages[len(p.Messages)-limit:]
}

type Participant struct {
	UserID   UserID    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

type ChatMessage struct {
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
