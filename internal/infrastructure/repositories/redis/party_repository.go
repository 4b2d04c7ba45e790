package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisPartyRepository persists parties as JSON values under a TTL.
// Redis expires the key once the TTL elapses; the engine discovers the
// absence lazily on its next lookup. Mutations keep the original TTL:
// a party's expiry horizon is fixed at creation and never renewed.
type RedisPartyRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisPartyRepository(client *redis.Client) ports.PartyRepository {
	return &RedisPartyRepository{
		client: client,
		prefix: "cinesync:party:",
	}
}

func (r *RedisPartyRepository) partyKey(code domain.PartyCode) string {
	return r.prefix + string(code)
}

func (r *RedisPartyRepository) Create(ctx context.Context, party *domain.Party, ttl time.Duration) error {
	data, err := json.Marshal(party)
	if err != nil {
		return fmt.Errorf("failed to marshal party: %w", err)
	}

	// Codes are globally unique among non-expired parties; NX guards
	// against the (unlikely) generator collision.
	ok, err := r.client.SetNX(ctx, r.partyKey(party.Code), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to set party in Redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("party code already exists: %s", party.Code)
	}
	return nil
}

func (r *RedisPartyRepository) GetByCode(ctx context.Context, code domain.PartyCode) (*domain.Party, error) {
	data, err := r.client.Get(ctx, r.partyKey(code)).Result()
	if err == redis.Nil {
		return nil, domain.ErrPartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get party from Redis: %w", err)
	}

	var party domain.Party
	if err := json.Unmarshal([]byte(data), &party); err != nil {
		return nil, fmt.Errorf("failed to unmarshal party: %w", err)
	}
	return &party, nil
}

func (r *RedisPartyRepository) AppendParticipant(ctx context.Context, code domain.PartyCode, p domain.Participant) error {
	return r.mutate(ctx, code, func(party *domain.Party) {
		party.Participants = append(party.Participants, p)
	})
}

func (r *RedisPartyRepository) UpdatePlayback(ctx context.Context, code domain.PartyCode, position float64, playing bool) error {
	return r.mutate(ctx, code, func(party *domain.Party) {
		party.Position = position
		party.Playing = playing
	})
}

func (r *RedisPartyRepository) AppendMessage(ctx context.Context, code domain.PartyCode, msg domain.ChatMessage) error {
	return r.mutate(ctx, code, func(party *domain.Party) {
		party.Messages = append(party.Messages, msg)
	})
}

// mutate applies a read-modify-write on the stored record, preserving
// the remaining TTL. Writes for the same party race with last-write-
// wins semantics; the engine's per-room lock serializes them within
// one process and the store itself is the arbiter across processes.
func (r *RedisPartyRepository) mutate(ctx context.Context, code domain.PartyCode, apply func(*domain.Party)) error {
	party, err := r.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	apply(party)

	data, err := json.Marshal(party)
	if err != nil {
		return fmt.Errorf("failed to marshal party: %w", err)
	}
	err = r.client.Set(ctx, r.partyKey(code), data, redis.KeepTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to update party in Redis: %w", err)
	}
	return nil
}

func (r *RedisPartyRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisPartyRepository) Close() error {
	return r.client.Close()
}
