package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

type TimerStore interface {
	Get(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error)
	Set(ctx context.Context, state domain.TimerState) error
	Delete(ctx context.Context, boardId domain.BoardId) error
}

// Timer relays owner timer transitions to the board. It never ticks: every
// participant derives the remaining time from the last state it received.
type Timer struct {
	store TimerStore
	roles RoleStorage
	pub   Publisher
	now   func() time.Time
	log   *slog.Logger
}

func NewTimer(store TimerStore, roles RoleStorage, pub Publisher) *Timer {
	return &Timer{store: store, roles: roles, pub: pub, now: time.Now, log: logger.Component("timer")}
}

// Control applies a timer transition sent by a session and broadcasts it to
// the other participants.
func (t *Timer) Control(ctx context.Context, origin domain.SessionId, boardId domain.BoardId, actor domain.Email, typ events.Type, state domain.TimerState) error {
	if !typ.IsTimer() {
		return internal_errors.BadRequest("Not a timer event")
	}
	actor = domain.NormalizeEmail(actor)
	role, err := requireMember(ctx, t.roles, boardId, actor)
	if err != nil {
		return err
	}
	if role != domain.RoleOwner {
		return internal_errors.Forbidden("Only the board owner controls the timer")
	}

	state.BoardId = boardId
	state.ActorEmail = actor
	if state.CreatedBy == "" {
		state.CreatedBy = actor
	}
	if err := t.normalize(typ, &state); err != nil {
		return err
	}

	if typ == events.TimerStop {
		err = t.store.Delete(ctx, boardId)
	} else {
		err = t.store.Set(ctx, state)
	}
	if err != nil {
		// the broadcast still goes out, only late joiners miss it
		t.log.Error("failed to cache timer state", "board_id", boardId, "type", typ, "error", err)
	}

	if err := t.pub.Publish(ctx, boardId, typ, state, origin); err != nil {
		return err
	}
	t.log.Debug("timer relayed", "board_id", boardId, "type", typ, "actor", actor)
	return nil
}

// Current returns the cached timer of the board, or nil when there is none or
// it has run out.
func (t *Timer) Current(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error) {
	state, err := t.store.Get(ctx, boardId)
	if err != nil || state == nil {
		return nil, err
	}
	if !state.IsPaused && state.RemainingAt(t.now()) <= 0 {
		if err := t.store.Delete(ctx, boardId); err != nil {
			t.log.Warn("failed to drop expired timer", "board_id", boardId, "error", err)
		}
		return nil, nil
	}
	return state, nil
}

// normalize checks the state against the transition and fills what the
// transition implies. A pause without remainingTime gets it from the running
// formula, the same one every participant uses.
func (t *Timer) normalize(typ events.Type, state *domain.TimerState) error {
	if typ == events.TimerStop {
		if state.Id == "" {
			return internal_errors.BadRequest("Timer id is required")
		}
		state.IsActive, state.IsPaused = false, false
		return nil
	}
	if err := validate.Struct(state); err != nil {
		return internal_errors.BadRequest("Invalid timer state")
	}

	switch typ {
	case events.TimerStart, events.TimerResume:
		if state.StartTime <= 0 {
			return internal_errors.BadRequest("Timer start time is required")
		}
		state.IsActive, state.IsPaused = true, false
		state.RemainingTime = nil
	case events.TimerPause:
		if state.RemainingTime == nil {
			running := *state
			running.IsActive, running.IsPaused = true, false
			remaining := int64(running.RemainingAt(t.now()) / time.Second)
			state.RemainingTime = &remaining
		}
		if *state.RemainingTime < 0 || *state.RemainingTime > state.Duration {
			return internal_errors.BadRequest("remainingTime out of range")
		}
		state.IsActive, state.IsPaused = true, true
	}
	return nil
}
