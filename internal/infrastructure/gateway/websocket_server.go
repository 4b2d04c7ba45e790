package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"
	"cinesync/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ConnMetrics is implemented by the monitoring collector. A nil value
// disables metrics.
type ConnMetrics interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
}

// Options tune per-connection transport behavior.
type Options struct {
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultOptions() Options {
	return Options{
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendQueueSize:     32,
		MessagesPerSecond: 20,
		MessageBurst:      40,
	}
}

// WebSocketServer is the session gateway: one physical connection per
// viewer, bridging inbound events to the sync engine and serializing
// outbound broadcasts back onto the same connection.
type WebSocketServer struct {
	engine ports.SyncEngine
	opts   Options

	sessions map[domain.SessionID]*session
	mu       sync.RWMutex

	metrics ConnMetrics
	logger  *zap.SugaredLogger
}

func NewWebSocketServer(engine ports.SyncEngine, opts Options, metrics ConnMetrics, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		engine:   engine,
		opts:     opts,
		sessions: make(map[domain.SessionID]*session),
		metrics:  metrics,
		logger:   logger,
	}
}

// session is one live transport connection's identity. Outbound events
// go through a buffered queue drained by a single writer goroutine;
// Send never blocks the broadcaster.
type session struct {
	id       domain.SessionID
	userID   domain.UserID
	username string

	conn *websocket.Conn
	send chan domain.OutEvent
	done chan struct{}
	once sync.Once

	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func (s *session) ID() domain.SessionID  { return s.id }
func (s *session) UserID() domain.UserID { return s.userID }
func (s *session) Username() string      { return s.username }

// Send queues the event for delivery. A receiver whose queue is full
// is torn down as if disconnected; it never blocks the broadcaster.
func (s *session) Send(event domain.OutEvent) {
	select {
	case s.send <- event:
	case <-s.done:
	default:
		s.logger.Warnw("send queue full, dropping session",
			"session_id", s.id,
			"user_id", s.userID,
		)
		s.close()
	}
}

// close wakes the reader and writer; the reader's cleanup path runs
// the unregister.
func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteJSON(event); err != nil {
				s.close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}

		case <-s.done:
			return
		}
	}
}

func (g *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.URL.Query().Get("user_id"))
	username := r.URL.Query().Get("username")
	if userID == "" || username == "" {
		http.Error(w, "user_id and username are required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		id:           domain.SessionID(uuid.NewString()),
		userID:       userID,
		username:     username,
		conn:         conn,
		send:         make(chan domain.OutEvent, g.opts.SendQueueSize),
		done:         make(chan struct{}),
		writeTimeout: g.opts.WriteTimeout,
		logger:       g.logger,
	}

	g.mu.Lock()
	g.sessions[sess.id] = sess
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.RecordConnectionOpened()
	}
	g.logger.Infow("session connected", "session_id", sess.id, "user_id", userID)

	go sess.writePump(g.opts.PingInterval)
	g.readLoop(sess)

	// Unregister must complete before the rest of the teardown: a
	// zombie session absorbing broadcasts for a dead socket is the one
	// failure mode this ordering exists to prevent.
	g.engine.Disconnect(context.Background(), sess)
	sess.close()

	g.mu.Lock()
	delete(g.sessions, sess.id)
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.RecordConnectionClosed()
	}
	g.logger.Infow("session disconnected", "session_id", sess.id, "user_id", userID)
}

func (g *WebSocketServer) readLoop(sess *session) {
	limiter := rate.NewLimiter(rate.Limit(g.opts.MessagesPerSecond), g.opts.MessageBurst)

	sess.conn.SetReadDeadline(time.Now().Add(g.opts.ReadTimeout))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(g.opts.ReadTimeout))
		return nil
	})

	for {
		var event domain.Event
		if err := sess.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Infow("read error", "session_id", sess.id, "error", err)
			}
			return
		}
		sess.conn.SetReadDeadline(time.Now().Add(g.opts.ReadTimeout))

		if !limiter.Allow() {
			sess.Send(errorEvent("rate limit exceeded"))
			continue
		}
		if event.UserID != "" && event.UserID != sess.userID {
			sess.Send(errorEvent("user_id mismatch"))
			continue
		}

		ctx, span := tracing.TraceRoomEvent(context.Background(), string(event.Type), string(event.Code))
		if err := g.engine.Dispatch(ctx, sess, event); err != nil {
			tracing.RecordError(ctx, err)
			g.logger.Infow("event rejected",
				"session_id", sess.id,
				"type", event.Type,
				"code", event.Code,
				"error", err,
			)
			sess.Send(errorEvent(userMessage(err)))
		}
		span.End()
	}
}

// Close tears down every live connection. Used on process shutdown
// after the registry sweep.
func (g *WebSocketServer) Close() {
	g.mu.Lock()
	sessions := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// ConnectionCount reports live transport connections, for health.
func (g *WebSocketServer) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

func errorEvent(message string) domain.OutEvent {
	return domain.OutEvent{
		Type:    domain.OutError,
		Payload: domain.ErrorPayload{Message: message},
	}
}

// userMessage maps engine errors to what the viewer should see. A
// registry conflict is internal detail and surfaces as a generic join
// failure.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPartyNotFound):
		return "party not found"
	case errors.Is(err, domain.ErrInvalidPassword):
		return "invalid password"
	case errors.Is(err, domain.ErrDuplicateSession):
		return "join failed"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "service temporarily unavailable"
	case errors.Is(err, domain.ErrNotInRoom):
		return "join a party first"
	default:
		return err.Error()
	}
}
