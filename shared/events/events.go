// Package events defines the realtime wire catalogue shared by the server and
// participants. Every frame is an Envelope; payloads stay raw until a handler
// decodes them.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchan-dev/retroboard/shared/domain"
)

type Type string

const (
	StickerCreated Type = "sticker:created"
	StickerUpdated Type = "sticker:updated"
	StickerDeleted Type = "sticker:deleted"

	VoteAdded   Type = "vote:added"
	VoteRemoved Type = "vote:removed"

	CommentAdded   Type = "comment:added"
	CommentUpdated Type = "comment:updated"
	CommentDeleted Type = "comment:deleted"

	// client -> server requests
	PresenceJoin  Type = "presence:join"
	PresenceLeave Type = "presence:leave"

	PresenceJoined Type = "presence:joined"
	PresenceLeft   Type = "presence:left"
	PresenceList   Type = "presence:list"

	TimerStart  Type = "timer:start"
	TimerPause  Type = "timer:pause"
	TimerResume Type = "timer:resume"
	TimerStop   Type = "timer:stop"

	Error Type = "error"
)

func (t Type) IsTimer() bool {
	switch t {
	case TimerStart, TimerPause, TimerResume, TimerStop:
		return true
	}
	return false
}

type Envelope struct {
	Type    Type            `json:"type"`
	BoardId domain.BoardId  `json:"boardId"`
	Data    json.RawMessage `json:"data,omitempty"`
	// Session that caused the event; broadcasts skip it.
	Origin domain.SessionId `json:"origin,omitempty"`
}

var ErrMalformed = errors.New("malformed event")

// Encode builds the frame for payload. A nil payload produces an envelope without data.
func Encode(t Type, boardId domain.BoardId, payload any) ([]byte, error) {
	env := Envelope{Type: t, BoardId: boardId}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeFrom is Encode with an origin session set.
func EncodeFrom(t Type, boardId domain.BoardId, origin domain.SessionId, payload any) ([]byte, error) {
	raw, err := Encode(t, boardId, payload)
	if err != nil || origin == "" {
		return raw, err
	}
	env, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	env.Origin = origin
	return json.Marshal(env)
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into T.
func DecodeData[T any](env Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 {
		return v, fmt.Errorf("%w: %s without data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return v, nil
}
