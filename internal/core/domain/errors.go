package domain

import "errors"

var (
	ErrPartyNotFound      = errors.New("party not found")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrDuplicateSession   = errors.New("session already registered")
	ErrStorageUnavailable = errors.New("party store unavailable")
	ErrNotInRoom          = errors.New("session not joined to room")
	ErrInvalidPosition    = errors.New("playback position must be >= 0")
	ErrInvalidTicket      = errors.New("invalid join ticket")
)
