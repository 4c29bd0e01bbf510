package apiclient

import (
	"context"
	"net/http"

	"github.com/itchan-dev/retroboard/shared/api"
	"github.com/itchan-dev/retroboard/shared/domain"
)

func (c *APIClient) CreateBoard(ctx context.Context, name domain.BoardName) (*domain.Board, error) {
	var resp api.BoardResponse
	if err := c.call(ctx, http.MethodPost, "/v1/boards", api.CreateBoardRequest{Name: name}, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &resp.Board, nil
}

// GetBoard fetches the authoritative board state. Participants call it on
// attach and after every reconnect.
func (c *APIClient) GetBoard(ctx context.Context, boardId domain.BoardId) (*domain.BoardSnapshot, error) {
	var resp api.SnapshotResponse
	if err := c.call(ctx, http.MethodGet, boardPath(boardId), nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp.BoardSnapshot, nil
}

func (c *APIClient) AddMember(ctx context.Context, boardId domain.BoardId, email domain.Email) error {
	return c.call(ctx, http.MethodPost, boardPath(boardId, "members"), api.AddMemberRequest{Email: email}, http.StatusNoContent, nil)
}
