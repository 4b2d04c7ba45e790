package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"
	"cinesync/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestPartyService(cfg PartyConfig) (ports.PartyService, *memory.MemoryPartyRepository) {
	store := memory.NewMemoryPartyRepository()
	return NewPartyService(store, cfg, zap.NewNop().Sugar()), store
}

func defaultPartyConfig() PartyConfig {
	return PartyConfig{
		TTL:          24 * time.Hour,
		CodeLength:   10,
		BcryptCost:   bcrypt.MinCost,
		TicketSecret: "test-secret",
		TicketTTL:    5 * time.Minute,
	}
}

func TestCreateParty(t *testing.T) {
	svc, store := newTestPartyService(defaultPartyConfig())
	ctx := context.Background()

	party, err := svc.Create(ctx, "Movie Night", "movie-42", "host-1", "alice", "movie123")
	require.NoError(t, err)

	assert.Len(t, string(party.Code), 10)
	for _, r := range string(party.Code) {
		assert.Contains(t, codeAlphabet, string(r))
	}
	assert.True(t, party.Protected())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(party.PasswordHash), []byte("movie123")))
	assert.Equal(t, float64(0), party.Position)
	assert.False(t, party.Playing)
	require.Len(t, party.Participants, 1)
	assert.Equal(t, domain.UserID("host-1"), party.Participants[0].UserID)
	assert.WithinDuration(t, party.CreatedAt.Add(24*time.Hour), party.ExpiresAt, time.Second)

	stored, err := store.GetByCode(ctx, party.Code)
	require.NoError(t, err)
	assert.Equal(t, party.Code, stored.Code)
}

func TestCreatePublicParty(t *testing.T) {
	svc, _ := newTestPartyService(defaultPartyConfig())

	party, err := svc.Create(context.Background(), "Open Night", "movie-42", "host-1", "alice", "")
	require.NoError(t, err)
	assert.False(t, party.Protected())
	assert.Empty(t, party.PasswordHash)
}

func TestCreateValidatesFields(t *testing.T) {
	svc, _ := newTestPartyService(defaultPartyConfig())
	ctx := context.Background()

	cases := []struct{ name, movieID, hostID, username string }{
		{"", "movie-42", "host-1", "alice"},
		{"Movie Night", "", "host-1", "alice"},
		{"Movie Night", "movie-42", "", "alice"},
		{"Movie Night", "movie-42", "host-1", ""},
	}
	for _, tc := range cases {
		_, err := svc.Create(ctx, tc.name, tc.movieID, domain.UserID(tc.hostID), tc.username, "")
		assert.Error(t, err)
	}
}

func TestCodesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code := generateCode(10)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestCodeAlphabetExcludesAmbiguous(t *testing.T) {
	for _, forbidden := range []string{"0", "O", "1", "I", "l"} {
		assert.False(t, strings.Contains(codeAlphabet, forbidden))
	}
}

func TestAuthorizeIssuesVerifiableTicket(t *testing.T) {
	svc, _ := newTestPartyService(defaultPartyConfig())
	ctx := context.Background()

	party, err := svc.Create(ctx, "Movie Night", "movie-42", "host-1", "alice", "movie123")
	require.NoError(t, err)

	got, ticket, err := svc.Authorize(ctx, party.Code, "user-2", "movie123")
	require.NoError(t, err)
	assert.Equal(t, party.Code, got.Code)
	assert.NotEmpty(t, ticket)

	assert.NoError(t, svc.VerifyTicket(ticket, party.Code, "user-2"))
	assert.ErrorIs(t, svc.VerifyTicket(ticket, party.Code, "user-3"), domain.ErrInvalidTicket)
	assert.ErrorIs(t, svc.VerifyTicket(ticket, "OTHER12345", "user-2"), domain.ErrInvalidTicket)
	assert.ErrorIs(t, svc.VerifyTicket("garbage", party.Code, "user-2"), domain.ErrInvalidTicket)
}

func TestAuthorizeWrongPassword(t *testing.T) {
	svc, _ := newTestPartyService(defaultPartyConfig())
	ctx := context.Background()

	party, err := svc.Create(ctx, "Movie Night", "movie-42", "host-1", "alice", "movie123")
	require.NoError(t, err)

	_, _, err = svc.Authorize(ctx, party.Code, "user-2", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)

	_, _, err = svc.Authorize(ctx, "NOSUCH1234", "user-2", "movie123")
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)
}

func TestVerifyTicketExpired(t *testing.T) {
	cfg := defaultPartyConfig()
	cfg.TicketTTL = -time.Minute
	svc, _ := newTestPartyService(cfg)
	ctx := context.Background()

	party, err := svc.Create(ctx, "Movie Night", "movie-42", "host-1", "alice", "")
	require.NoError(t, err)

	_, ticket, err := svc.Authorize(ctx, party.Code, "user-2", "")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.VerifyTicket(ticket, party.Code, "user-2"), domain.ErrInvalidTicket)
}

func TestVerifyTicketRejectsForeignSecret(t *testing.T) {
	svcA, _ := newTestPartyService(defaultPartyConfig())

	cfgB := defaultPartyConfig()
	cfgB.TicketSecret = "different-secret"
	svcB, _ := newTestPartyService(cfgB)

	party, err := svcA.Create(context.Background(), "Movie Night", "movie-42", "host-1", "alice", "")
	require.NoError(t, err)
	_, ticket, err := svcA.Authorize(context.Background(), party.Code, "user-2", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svcB.VerifyTicket(ticket, party.Code, "user-2"), domain.ErrInvalidTicket)
}

func TestCheckPassword(t *testing.T) {
	svc, _ := newTestPartyService(defaultPartyConfig())

	hash, err := bcrypt.GenerateFromPassword([]byte("movie123"), bcrypt.MinCost)
	require.NoError(t, err)
	protected := &domain.Party{Code: "X", PasswordHash: string(hash)}
	public := &domain.Party{Code: "Y"}

	assert.NoError(t, svc.CheckPassword(protected, "movie123"))
	assert.ErrorIs(t, svc.CheckPassword(protected, "wrong"), domain.ErrInvalidPassword)
	assert.ErrorIs(t, svc.CheckPassword(protected, ""), domain.ErrInvalidPassword)

	// Public parties accept anything, password or not.
	assert.NoError(t, svc.CheckPassword(public, ""))
	assert.NoError(t, svc.CheckPassword(public, "whatever"))
}
