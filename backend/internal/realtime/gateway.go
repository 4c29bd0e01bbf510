package realtime

import (
	"context"
	"log/slog"

	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
	"github.com/itchan-dev/retroboard/shared/utils"
)

type PresenceService interface {
	Join(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) ([]domain.Member, error)
	Leave(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) error
	Disconnect(ctx context.Context, sessionId domain.SessionId) error
}

type TimerService interface {
	Control(ctx context.Context, origin domain.SessionId, boardId domain.BoardId, actor domain.Email, t events.Type, state domain.TimerState) error
	Current(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error)
}

// Gateway routes inbound session frames to presence and the timer relay.
// Content mutations are not accepted here, they go through the HTTP API.
type Gateway struct {
	hub      *Hub
	presence PresenceService
	timers   TimerService
	log      *slog.Logger
}

func NewGateway(hub *Hub, presence PresenceService, timers TimerService) *Gateway {
	return &Gateway{hub: hub, presence: presence, timers: timers, log: logger.Component("gateway")}
}

func (g *Gateway) HandleFrame(ctx context.Context, s *Session, env events.Envelope) {
	var err error
	switch {
	case env.Type == events.PresenceJoin:
		err = g.join(ctx, s, env)
	case env.Type == events.PresenceLeave:
		err = g.leave(ctx, s, env)
	case env.Type.IsTimer():
		err = g.timer(ctx, s, env)
	default:
		g.log.Debug("unsupported inbound event", "type", env.Type, "session_id", s.ID())
		err = internal_errors.BadRequest("Unsupported event type: " + string(env.Type))
	}
	if err != nil {
		s.SendError(boardOf(env), env.Type, err)
	}
}

func (g *Gateway) SessionClosed(ctx context.Context, s *Session) {
	if err := g.presence.Disconnect(ctx, s.ID()); err != nil {
		g.log.Error("presence cleanup failed", "session_id", s.ID(), "error", err)
	}
	g.hub.UnsubscribeAll(s)
}

func (g *Gateway) join(ctx context.Context, s *Session, env events.Envelope) error {
	boardId, err := boardFromRequest(env)
	if err != nil {
		return err
	}
	members, err := g.presence.Join(ctx, s.ID(), boardId, s.User())
	if err != nil {
		return err
	}
	if err := g.hub.Subscribe(ctx, boardId, s); err != nil {
		if leaveErr := g.presence.Leave(ctx, s.ID(), boardId, s.User()); leaveErr != nil {
			g.log.Error("failed to roll back join", "board_id", boardId, "error", leaveErr)
		}
		return err
	}
	s.SendEvent(events.PresenceList, boardId, events.PresenceListPayload{Members: members})

	state, err := g.timers.Current(ctx, boardId)
	if err != nil {
		g.log.Warn("failed to load timer state", "board_id", boardId, "error", err)
		return nil
	}
	if state != nil {
		t := events.TimerStart
		if state.IsPaused {
			t = events.TimerPause
		}
		s.SendEvent(t, boardId, state)
	}
	return nil
}

func (g *Gateway) leave(ctx context.Context, s *Session, env events.Envelope) error {
	boardId, err := boardFromRequest(env)
	if err != nil {
		return err
	}
	g.hub.Unsubscribe(boardId, s)
	return g.presence.Leave(ctx, s.ID(), boardId, s.User())
}

func (g *Gateway) timer(ctx context.Context, s *Session, env events.Envelope) error {
	if env.BoardId == "" {
		return internal_errors.BadRequest("boardId is required")
	}
	if !g.hub.IsAttached(env.BoardId, s) {
		return internal_errors.Forbidden("Join the board before controlling its timer")
	}
	state, err := events.DecodeData[events.TimerPayload](env)
	if err != nil {
		return internal_errors.BadRequest(err.Error())
	}
	return g.timers.Control(ctx, s.ID(), env.BoardId, s.User().Email, env.Type, state)
}

// boardFromRequest reads the board of a join or leave request. It may come in
// the payload or on the envelope.
func boardFromRequest(env events.Envelope) (domain.BoardId, error) {
	var req events.JoinRequest
	if len(env.Data) > 0 {
		var err error
		if req, err = events.DecodeData[events.JoinRequest](env); err != nil {
			return "", internal_errors.BadRequest(err.Error())
		}
	}
	if req.BoardId == "" {
		req.BoardId = env.BoardId
	}
	if err := utils.Validate(req); err != nil {
		return "", err
	}
	return req.BoardId, nil
}

func boardOf(env events.Envelope) domain.BoardId {
	if env.BoardId != "" {
		return env.BoardId
	}
	if req, err := events.DecodeData[events.JoinRequest](env); err == nil {
		return req.BoardId
	}
	return ""
}
