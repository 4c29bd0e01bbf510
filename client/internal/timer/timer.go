// Package timer keeps a participant's copy of the board countdown. Only
// transitions are broadcast; every participant derives the remaining time
// locally from the shared start time and duration.
package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

type Phase int

const (
	Idle Phase = iota
	Running
	Paused
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return "idle"
}

// PublishFunc broadcasts a local transition.
type PublishFunc func(t events.Type, state domain.TimerState)

type Timer struct {
	now     func() time.Time
	publish PublishFunc
	log     *slog.Logger

	mu    sync.Mutex
	state *domain.TimerState
}

// New builds an idle timer. A nil clock means time.Now; a nil publish keeps
// transitions local.
func New(now func() time.Time, publish PublishFunc) *Timer {
	if now == nil {
		now = time.Now
	}
	if publish == nil {
		publish = func(events.Type, domain.TimerState) {}
	}
	return &Timer{now: now, publish: publish, log: logger.Component("timer")}
}

func phaseOf(s *domain.TimerState) Phase {
	switch {
	case s == nil || !s.IsActive:
		return Idle
	case s.IsPaused:
		return Paused
	}
	return Running
}

// transition applies fn under the lock and publishes the result outside it.
// fn returns the event to broadcast, or "" for a no-op.
func (t *Timer) transition(fn func(now time.Time) (events.Type, *domain.TimerState)) *domain.TimerState {
	t.mu.Lock()
	typ, out := fn(t.now())
	t.mu.Unlock()

	if typ == "" || out == nil {
		return nil
	}
	t.publish(typ, *out)
	return out
}

// Start replaces any current countdown with a new one of the given duration.
func (t *Timer) Start(boardId domain.BoardId, duration time.Duration, actor domain.Email) *domain.TimerState {
	seconds := int64(duration / time.Second)
	if seconds <= 0 {
		t.log.Warn("ignoring start without duration", "board_id", boardId)
		return nil
	}
	return t.transition(func(now time.Time) (events.Type, *domain.TimerState) {
		t.state = &domain.TimerState{
			Id:         uuid.NewString(),
			BoardId:    boardId,
			Duration:   seconds,
			StartTime:  now.UnixMilli(),
			IsActive:   true,
			CreatedBy:  actor,
			ActorEmail: actor,
		}
		return events.TimerStart, t.state.Clone()
	})
}

// Pause freezes the remaining time. No-op unless running.
func (t *Timer) Pause(actor domain.Email) *domain.TimerState {
	return t.transition(func(now time.Time) (events.Type, *domain.TimerState) {
		if phaseOf(t.state) != Running {
			return "", nil
		}
		remaining := int64(t.state.RemainingAt(now) / time.Second)
		t.state.IsPaused = true
		t.state.RemainingTime = &remaining
		t.state.ActorEmail = actor
		return events.TimerPause, t.state.Clone()
	})
}

// Resume continues from the stored remaining time by moving the start time
// back, so the running formula yields the same value. No-op unless paused.
func (t *Timer) Resume(actor domain.Email) *domain.TimerState {
	return t.transition(func(now time.Time) (events.Type, *domain.TimerState) {
		if phaseOf(t.state) != Paused || t.state.RemainingTime == nil {
			return "", nil
		}
		elapsed := time.Duration(t.state.Duration-*t.state.RemainingTime) * time.Second
		t.state.StartTime = now.Add(-elapsed).UnixMilli()
		t.state.IsPaused = false
		t.state.RemainingTime = nil
		t.state.ActorEmail = actor
		return events.TimerResume, t.state.Clone()
	})
}

// Stop broadcasts the last known state and returns to Idle. No-op when idle.
func (t *Timer) Stop(actor domain.Email) *domain.TimerState {
	return t.transition(func(now time.Time) (events.Type, *domain.TimerState) {
		if phaseOf(t.state) == Idle {
			t.state = nil
			return "", nil
		}
		last := t.state.Clone()
		last.ActorEmail = actor
		t.state = nil
		return events.TimerStop, last
	})
}

// Apply folds a remote transition into the local copy. The last broadcast wins.
func (t *Timer) Apply(typ events.Type, remote domain.TimerState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := remote.Clone()
	switch typ {
	case events.TimerStart, events.TimerResume:
		s.IsActive, s.IsPaused = true, false
		s.RemainingTime = nil
		t.state = s
	case events.TimerPause:
		if s.RemainingTime == nil {
			// same formula as a local pause
			s.IsActive, s.IsPaused = true, false
			remaining := int64(s.RemainingAt(t.now()) / time.Second)
			s.RemainingTime = &remaining
		}
		s.IsActive, s.IsPaused = true, true
		t.state = s
	case events.TimerStop:
		t.state = nil
	default:
		t.log.Debug("not a timer event", "type", typ)
		return
	}
	t.log.Debug("applied remote transition", "type", typ, "timer_id", remote.Id, "actor", remote.ActorEmail)
}

// Remaining is duration - (now - startTime) while running, the stored
// remaining time while paused, zero when idle.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.RemainingAt(t.now())
}

func (t *Timer) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return phaseOf(t.state)
}

// State returns a copy of the current state, nil when nothing was started.
func (t *Timer) State() *domain.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Tick samples the countdown. A running timer that reached zero turns inactive
// here; the transition is local and reported as expired exactly once.
func (t *Timer) Tick() (remaining time.Duration, expired bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining = t.state.RemainingAt(t.now())
	if phaseOf(t.state) == Running && remaining <= 0 {
		t.state.IsActive = false
		return 0, true
	}
	return remaining, false
}

// Run ticks every interval until ctx is cancelled.
func (t *Timer) Run(ctx context.Context, interval time.Duration, onTick func(remaining time.Duration, phase Phase, expired bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining, expired := t.Tick()
			if onTick != nil {
				onTick(remaining, t.Phase(), expired)
			}
		}
	}
}
