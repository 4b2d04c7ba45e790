package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"

	"go.uber.org/zap"
)

// EngineMetrics is implemented by the monitoring collector. A nil
// value disables metrics.
type EngineMetrics interface {
	RecordSessionJoined(code domain.PartyCode)
	RecordSessionLeft(code domain.PartyCode)
	RecordJoinFailure(reason string)
	RecordEventBroadcast(eventType string, duration time.Duration)
	RecordChatMessage()
}

type syncEngine struct {
	store    ports.PartyRepository
	registry ports.Registry
	parties  ports.PartyService
	metrics  EngineMetrics

	chatHistoryLimit int

	// Per-room exclusive sections around read-modify-broadcast
	// sequences. Cross-room operations share nothing.
	locksMu sync.Mutex
	locks   map[domain.PartyCode]*sync.Mutex

	// Last server-assigned chat timestamp per room; chat timestamps are
	// non-decreasing in storage order.
	chatMu     sync.Mutex
	lastChatTs map[domain.PartyCode]time.Time

	logger *zap.SugaredLogger
}

// NewSyncEngine builds the synchronization engine. metrics may be nil.
func NewSyncEngine(
	store ports.PartyRepository,
	registry ports.Registry,
	parties ports.PartyService,
	chatHistoryLimit int,
	metrics EngineMetrics,
	logger *zap.SugaredLogger,
) ports.SyncEngine {
	return &syncEngine{
		store:            store,
		registry:         registry,
		parties:          parties,
		metrics:          metrics,
		chatHistoryLimit: chatHistoryLimit,
		locks:            make(map[domain.PartyCode]*sync.Mutex),
		lastChatTs:       make(map[domain.PartyCode]time.Time),
		logger:           logger,
	}
}

func (e *syncEngine) roomLock(code domain.PartyCode) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	l, ok := e.locks[code]
	if !ok {
		l = &sync.Mutex{}
		e.locks[code] = l
	}
	return l
}

func (e *syncEngine) Dispatch(ctx context.Context, session ports.Session, event domain.Event) error {
	if event.Code == "" {
		return fmt.Errorf("party code is required")
	}

	switch event.Type {
	case domain.EventJoin:
		return e.handleJoin(ctx, session, event)
	case domain.EventLeave:
		e.leave(session)
		return nil
	case domain.EventPlay:
		return e.handlePlayback(ctx, session, event, domain.OutPlay)
	case domain.EventPause:
		return e.handlePlayback(ctx, session, event, domain.OutPause)
	case domain.EventSeek:
		return e.handlePlayback(ctx, session, event, domain.OutSeek)
	case domain.EventSendMessage:
		return e.handleChat(ctx, session, event)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}

// handleJoin runs the join protocol: lookup, password gate, idempotent
// durable membership append, registry registration, snapshot to the
// joiner, joined notice to the rest. A reconnect of an existing member
// registers silently.
func (e *syncEngine) handleJoin(ctx context.Context, session ports.Session, event domain.Event) error {
	lock := e.roomLock(event.Code)
	lock.Lock()
	defer lock.Unlock()

	party, err := e.store.GetByCode(ctx, event.Code)
	if err != nil {
		if errors.Is(err, domain.ErrPartyNotFound) {
			e.recordJoinFailure("not_found")
			return domain.ErrPartyNotFound
		}
		e.recordJoinFailure("storage")
		return e.storageError("get party", err)
	}

	if party.Protected() {
		if err := e.authorizeJoin(party, session.UserID(), event); err != nil {
			e.recordJoinFailure("password")
			return err
		}
	}

	wasMember := party.HasParticipant(session.UserID())
	joined := domain.Participant{
		UserID:   session.UserID(),
		Username: session.Username(),
		JoinedAt: time.Now(),
	}
	if !wasMember {
		if err := e.store.AppendParticipant(ctx, event.Code, joined); err != nil {
			e.recordJoinFailure("storage")
			return e.storageError("append participant", err)
		}
		party.Participants = append(party.Participants, joined)
	}

	if err := e.registry.Register(event.Code, session); err != nil {
		// Durable membership stays; the live registration is the part
		// that conflicted. Surfaced to the caller as a generic join
		// failure by the gateway.
		e.logger.Warnw("session registration conflict",
			"session_id", session.ID(),
			"code", event.Code,
			"error", err,
		)
		e.recordJoinFailure("duplicate_session")
		return err
	}

	session.Send(domain.OutEvent{
		Type: domain.OutSnapshot,
		Payload: domain.Snapshot{
			Position:       party.Position,
			Playing:        party.Playing,
			Members:        party.Participants,
			RecentMessages: party.RecentMessages(e.chatHistoryLimit),
		},
	})

	if !wasMember {
		e.broadcast(event.Code, domain.OutEvent{
			Type: domain.OutParticipantJoined,
			Payload: domain.Presence{
				UserID:   session.UserID(),
				Username: session.Username(),
			},
		}, session.ID())
	}

	if e.metrics != nil {
		e.metrics.RecordSessionJoined(event.Code)
	}
	e.logger.Infow("session joined party",
		"session_id", session.ID(),
		"user_id", session.UserID(),
		"code", event.Code,
		"reconnect", wasMember,
	)
	return nil
}

// authorizeJoin accepts either a valid join ticket from the HTTP
// pre-join step or the raw party password. The ticket is bound to the
// session's user, not whatever user id the event claims.
func (e *syncEngine) authorizeJoin(party *domain.Party, userID domain.UserID, event domain.Event) error {
	if event.Ticket != "" {
		if err := e.parties.VerifyTicket(event.Ticket, party.Code, userID); err == nil {
			return nil
		}
	}
	return e.parties.CheckPassword(party, event.Password)
}

// handlePlayback relays one play/pause/seek event. The sender is
// authoritative for that single event; position/flag are persisted and
// the event fans out to every other session in the room. The store
// write and the fan-out happen outside the room lock; concurrent
// writes for the same room are last-write-wins at the store.
func (e *syncEngine) handlePlayback(ctx context.Context, session ports.Session, event domain.Event, outType string) error {
	if event.Position < 0 {
		return domain.ErrInvalidPosition
	}
	if err := e.requireInRoom(session, event.Code); err != nil {
		return err
	}

	lock := e.roomLock(event.Code)
	lock.Lock()
	playing, err := e.playingFlag(ctx, event.Code, outType)
	lock.Unlock()
	if err != nil {
		return err
	}

	if err := e.store.UpdatePlayback(ctx, event.Code, event.Position, playing); err != nil {
		// Surfaced to the triggering session only; no broadcast, so a
		// storage hiccup never partially applies room-wide.
		return e.storageError("update playback", err)
	}

	e.broadcast(event.Code, domain.OutEvent{
		Type:    outType,
		Payload: domain.Playback{Position: event.Position},
	}, session.ID())
	return nil
}

// playingFlag resolves the playing flag the persisted state should
// carry: play and pause dictate it, seek keeps the current one.
func (e *syncEngine) playingFlag(ctx context.Context, code domain.PartyCode, outType string) (bool, error) {
	switch outType {
	case domain.OutPlay:
		return true, nil
	case domain.OutPause:
		return false, nil
	}
	party, err := e.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrPartyNotFound) {
			return false, domain.ErrPartyNotFound
		}
		return false, e.storageError("get party", err)
	}
	return party.Playing, nil
}

// handleChat appends one chat message with a server-assigned,
// non-decreasing timestamp and broadcasts it to the whole room, the
// sender included, so every UI reflects server ordering.
func (e *syncEngine) handleChat(ctx context.Context, session ports.Session, event domain.Event) error {
	if event.Text == "" {
		return fmt.Errorf("message text is required")
	}
	if err := e.requireInRoom(session, event.Code); err != nil {
		return err
	}

	msg := domain.ChatMessage{
		UserID:    session.UserID(),
		Username:  session.Username(),
		Text:      event.Text,
		Timestamp: e.nextChatTimestamp(event.Code),
	}

	if err := e.store.AppendMessage(ctx, event.Code, msg); err != nil {
		return e.storageError("append message", err)
	}

	e.broadcast(event.Code, domain.OutEvent{
		Type: domain.OutNewMessage,
		Payload: domain.Message{
			UserID:    msg.UserID,
			Username:  msg.Username,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		},
	}, "")
	if e.metrics != nil {
		e.metrics.RecordChatMessage()
	}
	return nil
}

func (e *syncEngine) nextChatTimestamp(code domain.PartyCode) time.Time {
	e.chatMu.Lock()
	defer e.chatMu.Unlock()

	ts := time.Now()
	if last, ok := e.lastChatTs[code]; ok && ts.Before(last) {
		ts = last
	}
	e.lastChatTs[code] = ts
	return ts
}

func (e *syncEngine) Disconnect(ctx context.Context, session ports.Session) {
	e.leave(session)
}

// leave unregisters the session and notifies the remainder of the
// room. Durable membership is untouched: a participant who left can
// rejoin without being re-added or re-announced.
func (e *syncEngine) leave(session ports.Session) {
	code, ok := e.registry.RoomOf(session.ID())
	if !ok {
		return
	}
	e.registry.Unregister(session.ID())
	e.broadcast(code, domain.OutEvent{
		Type: domain.OutParticipantLeft,
		Payload: domain.Presence{
			UserID:   session.UserID(),
			Username: session.Username(),
		},
	}, session.ID())
	if e.metrics != nil {
		e.metrics.RecordSessionLeft(code)
	}
	e.logger.Infow("session left party",
		"session_id", session.ID(),
		"user_id", session.UserID(),
		"code", code,
	)
}

func (e *syncEngine) requireInRoom(session ports.Session, code domain.PartyCode) error {
	current, ok := e.registry.RoomOf(session.ID())
	if !ok || current != code {
		return domain.ErrNotInRoom
	}
	return nil
}

func (e *syncEngine) broadcast(code domain.PartyCode, event domain.OutEvent, exclude domain.SessionID) {
	start := time.Now()
	e.registry.Broadcast(code, event, exclude)
	if e.metrics != nil {
		e.metrics.RecordEventBroadcast(event.Type, time.Since(start))
	}
}

func (e *syncEngine) recordJoinFailure(reason string) {
	if e.metrics != nil {
		e.metrics.RecordJoinFailure(reason)
	}
}

func (e *syncEngine) storageError(op string, err error) error {
	e.logger.Errorw("party store operation failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, domain.ErrStorageUnavailable)
}
