package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
	"github.com/itchan-dev/retroboard/shared/middleware/ratelimiter"
)

type SessionConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	PingPeriod     time.Duration
	WriteWait      time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024,
		PingPeriod:     54 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// peer must answer within pongWait or the session is dropped
func (c SessionConfig) pongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

// FrameHandler reacts to inbound frames. SessionClosed runs exactly once per
// session whatever ended it.
type FrameHandler interface {
	HandleFrame(ctx context.Context, s *Session, env events.Envelope)
	SessionClosed(ctx context.Context, s *Session)
}

// Session is one websocket connection of an authenticated user.
type Session struct {
	id      domain.SessionId
	user    domain.User
	conn    *websocket.Conn
	handler FrameHandler
	limiter *ratelimiter.UserRateLimiter
	cfg     SessionConfig
	log     *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession wraps an upgraded connection. limiter may be nil.
func NewSession(conn *websocket.Conn, user domain.User, handler FrameHandler, limiter *ratelimiter.UserRateLimiter, cfg SessionConfig) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		user:    user,
		conn:    conn,
		handler: handler,
		limiter: limiter,
		cfg:     cfg,
		log:     logger.Component("session").With("session_id", id, "email", user.Email),
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() domain.SessionId { return s.id }
func (s *Session) User() domain.User    { return s.user }

// Send queues msg without blocking. It reports false when the buffer is full
// or the session is closed.
func (s *Session) Send(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// SendEvent sends an event to this session only.
func (s *Session) SendEvent(t events.Type, boardId domain.BoardId, payload any) {
	msg, err := events.Encode(t, boardId, payload)
	if err != nil {
		s.log.Error("failed to encode event", "type", t, "error", err)
		return
	}
	if !s.Send(msg) {
		s.log.Warn("dropping direct event", "type", t, "board_id", boardId)
		deliveriesDropped.WithLabelValues("slow_consumer").Inc()
	}
}

// SendError reports err to this session as an "error" event answering a
// frame of type request.
func (s *Session) SendError(boardId domain.BoardId, request events.Type, err error) {
	message := err.Error()
	if internal_errors.StatusCode(err) >= 500 {
		s.log.Error("realtime request failed", "board_id", boardId, "error", err)
		message = "Internal error"
	}
	s.SendEvent(events.Error, boardId, events.ErrorPayload{
		BoardId: boardId,
		Request: request,
		Code:    internal_errors.Code(err),
		Message: message,
	})
}

// Close ends the session. The read pump notices and runs the cleanup.
func (s *Session) Close() {
	s.conn.Close()
}

// Serve pumps the connection until it ends, then reports SessionClosed.
func (s *Session) Serve(ctx context.Context) {
	activeSessions.Inc()
	defer activeSessions.Dec()
	s.log.Info("session opened")

	go s.writePump()
	s.readPump(ctx)

	s.closeOnce.Do(func() { close(s.done) })
	if s.limiter != nil {
		s.limiter.Forget(s.id)
	}
	s.handler.SessionClosed(context.WithoutCancel(ctx), s)
	s.log.Info("session closed")
}

func (s *Session) readPump(ctx context.Context) {
	defer s.conn.Close()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.pongWait()))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.pongWait()))
	})

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", "error", err)
			} else {
				s.log.Debug("websocket closed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		env, err := events.Decode(raw)
		if err != nil {
			s.SendError("", "", internal_errors.BadRequest(err.Error()))
			continue
		}
		if s.limiter != nil && !s.limiter.Allow(s.id) {
			s.SendError(env.BoardId, env.Type, internal_errors.ErrRateLimited)
			continue
		}
		s.handler.HandleFrame(ctx, s, env)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Warn("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("failed to send ping", "error", err)
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
