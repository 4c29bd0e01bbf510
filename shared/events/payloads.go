package events

import "github.com/itchan-dev/retroboard/shared/domain"

type JoinRequest struct {
	BoardId domain.BoardId `json:"boardId" validate:"required"`
}

type LeaveRequest struct {
	BoardId domain.BoardId `json:"boardId" validate:"required"`
}

type PresenceListPayload struct {
	Members []domain.Member `json:"members"`
}

type PresenceJoinedPayload struct {
	Email domain.Email `json:"email"`
	Role  domain.Role  `json:"role"`
}

type PresenceLeftPayload struct {
	Email domain.Email `json:"email"`
}

type StickerDeletedPayload struct {
	Id      domain.StickerId `json:"id"`
	BoardId domain.BoardId   `json:"boardId"`
}

type CommentDeletedPayload struct {
	Id        domain.CommentId `json:"id"`
	StickerId domain.StickerId `json:"stickerId,omitempty"`
}

// VotePayload is domain.Vote on the wire.
type VotePayload = domain.Vote

// TimerPayload is the full timer state plus the actor that caused the transition.
type TimerPayload = domain.TimerState

type ErrorPayload struct {
	BoardId domain.BoardId `json:"boardId,omitempty"`
	// Request is the type of the inbound frame the error answers, empty for
	// frames that could not be decoded.
	Request Type           `json:"request,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}
