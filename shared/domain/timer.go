package domain

import "time"

// TimerState is the shared countdown of a board. Only transitions travel over the
// wire; every participant derives the remaining time from StartTime and Duration.
type TimerState struct {
	Id        TimerId `json:"id" validate:"required"`
	BoardId   BoardId `json:"boardId"`
	Duration  int64   `json:"duration" validate:"gt=0"` // seconds
	StartTime int64   `json:"startTime"`                // epoch milliseconds
	IsActive  bool    `json:"isActive"`
	IsPaused  bool    `json:"isPaused"`
	// Populated while paused; the source of truth for resumption.
	RemainingTime *int64 `json:"remainingTime,omitempty"` // seconds
	CreatedBy     Email  `json:"createdBy"`
	ActorEmail    Email  `json:"actorEmail,omitempty"`
}

// RemainingAt is the one formula every participant uses to reconstruct the countdown.
func (t *TimerState) RemainingAt(now time.Time) time.Duration {
	if t == nil || !t.IsActive {
		return 0
	}
	if t.IsPaused && t.RemainingTime != nil {
		return time.Duration(*t.RemainingTime) * time.Second
	}
	elapsed := now.Sub(time.UnixMilli(t.StartTime))
	remaining := time.Duration(t.Duration)*time.Second - elapsed
	return max(0, remaining)
}

func (t *TimerState) Clone() *TimerState {
	if t == nil {
		return nil
	}
	c := *t
	if t.RemainingTime != nil {
		r := *t.RemainingTime
		c.RemainingTime = &r
	}
	return &c
}
