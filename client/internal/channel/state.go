package channel

import (
	"errors"
	"fmt"

	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection closed")

	// Attach rejections reported by the server. Both wrap the shared sentinels
	// so errors.Is works against either.
	ErrForbidden    = internal_errors.ErrForbidden
	ErrUnauthorized = internal_errors.ErrUnauthorized
)

// ConnectionError means the transport was unreachable or dropped.
// The reconnect loop recovers from it; callers only surface it as status.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteError is an "error" event the server sent for a board.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// joinRejection returns the error env carries when it answers a presence:join,
// nil for any other frame.
func joinRejection(env events.Envelope) error {
	if env.Type != events.Error {
		return nil
	}
	payload, err := events.DecodeData[events.ErrorPayload](env)
	if err != nil || payload.Request != events.PresenceJoin {
		return nil
	}
	switch payload.Code {
	case "forbidden":
		return fmt.Errorf("attach %s: %w", env.BoardId, ErrForbidden)
	case "unauthorized":
		return fmt.Errorf("attach %s: %w", env.BoardId, ErrUnauthorized)
	}
	return &RemoteError{Code: payload.Code, Message: payload.Message}
}
