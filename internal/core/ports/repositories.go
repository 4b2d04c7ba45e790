package ports

import (
	"context"
	"time"

	"cinesync/internal/core/domain"
)

// PartyRepository is the durable party store contract. The store owns
// expiry: once a party's TTL elapses the record disappears without
// notice and subsequent lookups return domain.ErrPartyNotFound.
type PartyRepository interface {
	Create(ctx context.Context, party *domain.Party, ttl time.Duration) error
	GetByCode(ctx context.Context, code domain.PartyCode) (*domain.Party, error)
	AppendParticipant(ctx context.Context, code domain.PartyCode, p domain.Participant) error
	UpdatePlayback(ctx context.Context, code domain.PartyCode, position float64, playing bool) error
	AppendMessage(ctx context.Context, code domain.PartyCode, msg domain.ChatMessage) error
	Ping(ctx context.Context) error
	Close() error
}
