package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/services"
	"cinesync/internal/infrastructure/registry"
	"cinesync/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type gatewayFixture struct {
	server *httptest.Server
	store  *memory.MemoryPartyRepository
	ws     *WebSocketServer
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	log := zap.NewNop().Sugar()
	store := memory.NewMemoryPartyRepository()
	rooms := registry.NewRoomRegistry(log)
	parties := services.NewPartyService(store, services.PartyConfig{
		TTL:          24 * time.Hour,
		CodeLength:   10,
		BcryptCost:   bcrypt.MinCost,
		TicketSecret: "test-secret",
		TicketTTL:    time.Minute,
	}, log)
	engine := services.NewSyncEngine(store, rooms, parties, 50, nil, log)

	ws := NewWebSocketServer(engine, DefaultOptions(), nil, log)
	srv := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(func() {
		ws.Close()
		srv.Close()
	})

	return &gatewayFixture{server: srv, store: store, ws: ws}
}

func (fx *gatewayFixture) seedParty(t *testing.T, code string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, fx.store.Create(context.Background(), &domain.Party{
		Code:      domain.PartyCode(code),
		Name:      "Movie Night",
		MovieID:   "movie-42",
		HostID:    "host-1",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}, 24*time.Hour))
}

func (fx *gatewayFixture) dial(t *testing.T, userID, username string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") +
		"/?user_id=" + userID + "&username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event wireEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func sendEvent(t *testing.T, conn *websocket.Conn, event domain.Event) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(event))
}

func TestHandshakeRequiresIdentity(t *testing.T) {
	fx := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/?username=alice"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJoinDeliversSnapshot(t *testing.T) {
	fx := newGatewayFixture(t)
	fx.seedParty(t, "PUBLIC1234")

	a := fx.dial(t, "user-a", "alice")
	sendEvent(t, a, domain.Event{Type: domain.EventJoin, Code: "PUBLIC1234"})

	event := readEvent(t, a)
	assert.Equal(t, domain.OutSnapshot, event.Type)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(event.Payload, &snap))
	assert.Equal(t, float64(0), snap.Position)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, domain.UserID("user-a"), snap.Members[0].UserID)

	// Second joiner: snapshot to them, joined notice to the first.
	b := fx.dial(t, "user-b", "bob")
	sendEvent(t, b, domain.Event{Type: domain.EventJoin, Code: "PUBLIC1234"})
	assert.Equal(t, domain.OutSnapshot, readEvent(t, b).Type)

	notice := readEvent(t, a)
	assert.Equal(t, domain.OutParticipantJoined, notice.Type)
	var presence domain.Presence
	require.NoError(t, json.Unmarshal(notice.Payload, &presence))
	assert.Equal(t, domain.UserID("user-b"), presence.UserID)
}

func TestJoinUnknownPartySendsError(t *testing.T) {
	fx := newGatewayFixture(t)

	a := fx.dial(t, "user-a", "alice")
	sendEvent(t, a, domain.Event{Type: domain.EventJoin, Code: "NOSUCHCODE"})

	event := readEvent(t, a)
	assert.Equal(t, domain.OutError, event.Type)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "party not found", payload.Message)
}

func TestPlayRelayedToOthersOnly(t *testing.T) {
	fx := newGatewayFixture(t)
	fx.seedParty(t, "PUBLIC1234")

	a := fx.dial(t, "user-a", "alice")
	sendEvent(t, a, domain.Event{Type: domain.EventJoin, Code: "PUBLIC1234"})
	require.Equal(t, domain.OutSnapshot, readEvent(t, a).Type)

	b := fx.dial(t, "user-b", "bob")
	sendEvent(t, b, domain.Event{Type: domain.EventJoin, Code: "PUBLIC1234"})
	require.Equal(t, domain.OutSnapshot, readEvent(t, b).Type)
	require.Equal(t, domain.OutParticipantJoined, readEvent(t, a).Type)

	sendEvent(t, a, domain.Event{Type: domain.EventPlay, Code: "PUBLIC1234", Position: 42.5})

	event := readEvent(t, b)
	assert.Equal(t, domain.OutPlay, event.Type)
	var playback domain.Playback
	require.NoError(t, json.Unmarshal(event.Payload, &playback))
	assert.Equal(t, 42.5, playback.Position)

	// Per-connection delivery is FIFO, so if the next event the sender
	// sees is the chat message, no play echo was ever queued for it.
	sendEvent(t, b, domain.Event{Type: domain.EventSendMessage, Code: "PUBLIC1234", Text: "nice"})
	assert.Equal(t, domain.OutNewMessage, readEvent(t, a).Type)
}

func TestUserIDMismatchRejected(t *testing.T) {
	fx := newGatewayFixture(t)
	fx.seedParty(t, "PUBLIC1234")

	a := fx.dial(t, "user-a", "alice")
	sendEvent(t, a, domain.Event{
		Type:   domain.EventJoin,
		Code:   "PUBLIC1234",
		UserID: "user-b",
	})

	event := readEvent(t, a)
	assert.Equal(t, domain.OutError, event.Type)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "user_id mismatch", payload.Message)
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	fx := newGatewayFixture(t)
	fx.seedParty(t, "PUBLIC1234")

	a := fx.dial(t, "user-a", "alice")
	sendEvent(t, a, domain.Event{Type: domain.EventJoin, Code: "PUBLIC1234"})
	require.Equal(t, domain.OutSnapshot, readEvent(t, a).Type)

	b := fx.dial(t, "user-b", "bob")
	sendEvent(t, b, domain.Event{Type: domain.EventJoin, Code: "PUBLIC1234"})
	require.Equal(t, domain.OutSnapshot, readEvent(t, b).Type)
	require.Equal(t, domain.OutParticipantJoined, readEvent(t, a).Type)

	// An abrupt close, not a leave event, must still produce the notice.
	b.Close()

	event := readEvent(t, a)
	assert.Equal(t, domain.OutParticipantLeft, event.Type)
	var presence domain.Presence
	require.NoError(t, json.Unmarshal(event.Payload, &presence))
	assert.Equal(t, domain.UserID("user-b"), presence.UserID)
}

func TestConnectionCount(t *testing.T) {
	fx := newGatewayFixture(t)
	assert.Equal(t, 0, fx.ws.ConnectionCount())

	fx.dial(t, "user-a", "alice")

	require.Eventually(t, func() bool {
		return fx.ws.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
