package api

import "github.com/itchan-dev/retroboard/shared/domain"

// Request DTOs

type CreateBoardRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type AddMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Response DTOs

type BoardResponse struct {
	domain.Board
}

type SnapshotResponse struct {
	domain.BoardSnapshot
}
