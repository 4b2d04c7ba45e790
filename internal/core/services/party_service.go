package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Code alphabet excludes the characters users routinely misread when
// sharing a code out loud (0/O, 1/I/l).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

type JoinClaims struct {
	Code   domain.PartyCode `json:"code"`
	UserID domain.UserID    `json:"user_id"`
	jwt.RegisteredClaims
}

type PartyConfig struct {
	TTL          time.Duration
	CodeLength   int
	BcryptCost   int
	TicketSecret string
	TicketTTL    time.Duration
}

type partyService struct {
	store ports.PartyRepository
	cfg   PartyConfig

	logger *zap.SugaredLogger
}

func NewPartyService(store ports.PartyRepository, cfg PartyConfig, logger *zap.SugaredLogger) ports.PartyService {
	return &partyService{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Create generates a fresh party with a unique shareable code and a
// fixed expiry horizon. The creator is seeded as the first durable
// member.
func (s *partyService) Create(ctx context.Context, name, movieID string, hostID domain.UserID, username, password string) (*domain.Party, error) {
	if name == "" || movieID == "" || hostID == "" || username == "" {
		return nil, fmt.Errorf("name, movie id, host id and username are required")
	}

	var passwordHash string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		passwordHash = string(hash)
	}

	now := time.Now()
	party := &domain.Party{
		Code:         domain.PartyCode(generateCode(s.cfg.CodeLength)),
		Name:         name,
		MovieID:      movieID,
		HostID:       hostID,
		PasswordHash: passwordHash,
		Position:     0,
		Playing:      false,
		Participants: []domain.Participant{
			{UserID: hostID, Username: username, JoinedAt: now},
		},
		Messages:  []domain.ChatMessage{},
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	if err := s.store.Create(ctx, party, s.cfg.TTL); err != nil {
		return nil, fmt.Errorf("create party: %w", err)
	}

	s.logger.Infow("party created",
		"code", party.Code,
		"movie_id", movieID,
		"host_id", hostID,
		"protected", party.Protected(),
		"expires_at", party.ExpiresAt,
	)
	return party, nil
}

func (s *partyService) Info(ctx context.Context, code domain.PartyCode) (*domain.Party, error) {
	return s.store.GetByCode(ctx, code)
}

// Authorize performs the HTTP pre-join: password gate against the
// stored hash, then a short-lived signed ticket the websocket join can
// present instead of re-sending the raw password.
func (s *partyService) Authorize(ctx context.Context, code domain.PartyCode, userID domain.UserID, password string) (*domain.Party, string, error) {
	party, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, "", err
	}

	if err := s.CheckPassword(party, password); err != nil {
		return nil, "", err
	}

	ticket, err := s.issueTicket(code, userID)
	if err != nil {
		return nil, "", fmt.Errorf("issue join ticket: %w", err)
	}
	return party, ticket, nil
}

// CheckPassword validates password against the party's bcrypt hash.
// Public parties accept any password, including none.
func (s *partyService) CheckPassword(party *domain.Party, password string) error {
	if !party.Protected() {
		return nil
	}
	if password == "" {
		return domain.ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(party.PasswordHash), []byte(password)); err != nil {
		return domain.ErrInvalidPassword
	}
	return nil
}

func (s *partyService) issueTicket(code domain.PartyCode, userID domain.UserID) (string, error) {
	claims := &JoinClaims{
		Code:   code,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.TicketTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.TicketSecret))
}

// VerifyTicket checks the ticket signature and that it was issued for
// this exact party and user.
func (s *partyService) VerifyTicket(ticket string, code domain.PartyCode, userID domain.UserID) error {
	token, err := jwt.ParseWithClaims(ticket, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidTicket
		}
		return []byte(s.cfg.TicketSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: expired", domain.ErrInvalidTicket)
		}
		return domain.ErrInvalidTicket
	}

	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid {
		return domain.ErrInvalidTicket
	}
	if claims.Code != code || claims.UserID != userID {
		return domain.ErrInvalidTicket
	}
	return nil
}

// generateCode draws length characters from the code alphabet with
// crypto/rand. 10 characters over a 56-symbol alphabet give ~58 bits,
// unguessable for a record that lives a day.
func generateCode(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
