package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"
)

// MemoryPartyRepository is the in-process party store, used in tests
// and single-node runs without Redis. Expiry is enforced lazily: an
// expired record is treated as gone on the next access, matching the
// no-notification contract of the durable store.
type MemoryPartyRepository struct {
	parties map[domain.PartyCode]*partyRecord
	mu      sync.RWMutex

	// now is swappable so tests can drive expiry.
	now func() time.Time
}

type partyRecord struct {
	party     domain.Party
	expiresAt time.Time
}

var _ ports.PartyRepository = (*MemoryPartyRepository)(nil)

func NewMemoryPartyRepository() *MemoryPartyRepository {
	return &MemoryPartyRepository{
		parties: make(map[domain.PartyCode]*partyRecord),
		now:     time.Now,
	}
}

// SetClock overrides the repository clock. Tests only.
func (r *MemoryPartyRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *MemoryPartyRepository) Create(ctx context.Context, party *domain.Party, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, exists := r.parties[party.Code]; exists && r.now().Before(rec.expiresAt) {
		return fmt.Errorf("party code already exists: %s", party.Code)
	}

	clone := *party
	clone.Participants = append([]domain.Participant(nil), party.Participants...)
	clone.Messages = append([]domain.ChatMessage(nil), party.Messages...)
	r.parties[party.Code] = &partyRecord{
		party:     clone,
		expiresAt: r.now().Add(ttl),
	}
	return nil
}

func (r *MemoryPartyRepository) GetByCode(ctx context.Context, code domain.PartyCode) (*domain.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.liveLocked(code)
	if err != nil {
		return nil, err
	}

	clone := rec.party
	clone.Participants = append([]domain.Participant(nil), rec.party.Participants...)
	clone.Messages = append([]domain.ChatMessage(nil), rec.party.Messages...)
	return &clone, nil
}

func (r *MemoryPartyRepository) AppendParticipant(ctx context.Context, code domain.PartyCode, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.liveLocked(code)
	if err != nil {
		return err
	}
	rec.party.Participants = append(rec.party.Participants, p)
	return nil
}

func (r *MemoryPartyRepository) UpdatePlayback(ctx context.Context, code domain.PartyCode, position float64, playing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.liveLocked(code)
	if err != nil {
		return err
	}
	rec.party.Position = position
	rec.party.Playing = playing
	return nil
}

func (r *MemoryPartyRepository) AppendMessage(ctx context.Context, code domain.PartyCode, msg domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.liveLocked(code)
	if err != nil {
		return err
	}
	rec.party.Messages = append(rec.party.Messages, msg)
	return nil
}

// liveLocked returns the record if present and not expired, deleting
// expired records on the way. Callers hold r.mu.
func (r *MemoryPartyRepository) liveLocked(code domain.PartyCode) (*partyRecord, error) {
	rec, exists := r.parties[code]
	if !exists {
		return nil, domain.ErrPartyNotFound
	}
	if !r.now().Before(rec.expiresAt) {
		delete(r.parties, code)
		return nil, domain.ErrPartyNotFound
	}
	return rec, nil
}

func (r *MemoryPartyRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryPartyRepository) Close() error {
	return nil
}
