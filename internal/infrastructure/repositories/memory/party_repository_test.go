package memory

import (
	"context"
	"testing"
	"time"

	"cinesync/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParty(code string) *domain.Party {
	now := time.Now()
	return &domain.Party{
		Code:      domain.PartyCode(code),
		Name:      "Movie Night",
		MovieID:   "movie-42",
		HostID:    "host-1",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Participants: []domain.Participant{
			{UserID: "host-1", Username: "host", JoinedAt: now},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := NewMemoryPartyRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testParty("CODE123456"), time.Hour))

	got, err := repo.GetByCode(ctx, "CODE123456")
	require.NoError(t, err)
	assert.Equal(t, "Movie Night", got.Name)
	assert.Len(t, got.Participants, 1)

	_, err = repo.GetByCode(ctx, "MISSING999")
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)
}

func TestCreateRejectsLiveDuplicate(t *testing.T) {
	repo := NewMemoryPartyRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testParty("CODE123456"), time.Hour))
	assert.Error(t, repo.Create(ctx, testParty("CODE123456"), time.Hour))
}

func TestGetReturnsClone(t *testing.T) {
	repo := NewMemoryPartyRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testParty("CODE123456"), time.Hour))

	got, err := repo.GetByCode(ctx, "CODE123456")
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store.
	got.Position = 999
	got.Participants[0].Username = "tampered"

	again, err := repo.GetByCode(ctx, "CODE123456")
	require.NoError(t, err)
	assert.Equal(t, float64(0), again.Position)
	assert.Equal(t, "host", again.Participants[0].Username)
}

func TestAppendAndUpdate(t *testing.T) {
	repo := NewMemoryPartyRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testParty("CODE123456"), time.Hour))

	require.NoError(t, repo.AppendParticipant(ctx, "CODE123456", domain.Participant{
		UserID: "user-2", Username: "bob", JoinedAt: time.Now(),
	}))
	require.NoError(t, repo.UpdatePlayback(ctx, "CODE123456", 42.5, true))
	require.NoError(t, repo.AppendMessage(ctx, "CODE123456", domain.ChatMessage{
		UserID: "user-2", Username: "bob", Text: "hi", Timestamp: time.Now(),
	}))

	got, err := repo.GetByCode(ctx, "CODE123456")
	require.NoError(t, err)
	assert.Len(t, got.Participants, 2)
	assert.Equal(t, 42.5, got.Position)
	assert.True(t, got.Playing)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Text)

	assert.ErrorIs(t, repo.UpdatePlayback(ctx, "MISSING999", 1, false), domain.ErrPartyNotFound)
	assert.ErrorIs(t, repo.AppendMessage(ctx, "MISSING999", domain.ChatMessage{}), domain.ErrPartyNotFound)
}

func TestLazyExpiry(t *testing.T) {
	repo := NewMemoryPartyRepository()
	ctx := context.Background()

	base := time.Now()
	current := base
	repo.SetClock(func() time.Time { return current })

	require.NoError(t, repo.Create(ctx, testParty("CODE123456"), time.Hour))

	current = base.Add(59 * time.Minute)
	_, err := repo.GetByCode(ctx, "CODE123456")
	require.NoError(t, err)

	current = base.Add(61 * time.Minute)
	_, err = repo.GetByCode(ctx, "CODE123456")
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)

	// The code is reusable once the old record expired.
	require.NoError(t, repo.Create(ctx, testParty("CODE123456"), time.Hour))
}

func TestPingAndClose(t *testing.T) {
	repo := NewMemoryPartyRepository()
	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, repo.Close())
}
