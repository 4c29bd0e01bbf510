package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/itchan-dev/retroboard/shared/api"
	"github.com/itchan-dev/retroboard/shared/domain"
)

func (c *APIClient) CreateSticker(ctx context.Context, boardId domain.BoardId, column, content string) (*domain.Sticker, error) {
	var sticker domain.Sticker
	body := api.CreateStickerRequest{Column: column, Content: content}
	if err := c.call(ctx, http.MethodPost, boardPath(boardId, "stickers"), body, http.StatusCreated, &sticker); err != nil {
		return nil, err
	}
	return &sticker, nil
}

// UpdateSticker changes only the non-nil fields.
func (c *APIClient) UpdateSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId, column, content *string) (*domain.Sticker, error) {
	var sticker domain.Sticker
	body := api.UpdateStickerRequest{Column: column, Content: content}
	if err := c.call(ctx, http.MethodPut, boardPath(boardId, "stickers", url.PathEscape(id)), body, http.StatusOK, &sticker); err != nil {
		return nil, err
	}
	return &sticker, nil
}

func (c *APIClient) DeleteSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) error {
	return c.call(ctx, http.MethodDelete, boardPath(boardId, "stickers", url.PathEscape(id)), nil, http.StatusNoContent, nil)
}

func (c *APIClient) AddVote(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId) error {
	return c.call(ctx, http.MethodPost, boardPath(boardId, "stickers", url.PathEscape(stickerId), "votes"), nil, http.StatusNoContent, nil)
}

func (c *APIClient) RemoveVote(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId) error {
	return c.call(ctx, http.MethodDelete, boardPath(boardId, "stickers", url.PathEscape(stickerId), "votes"), nil, http.StatusNoContent, nil)
}

func (c *APIClient) AddComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, content string) (*domain.Comment, error) {
	var comment domain.Comment
	path := boardPath(boardId, "stickers", url.PathEscape(stickerId), "comments")
	if err := c.call(ctx, http.MethodPost, path, api.CommentRequest{Content: content}, http.StatusCreated, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *APIClient) UpdateComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, content string) (*domain.Comment, error) {
	var comment domain.Comment
	path := boardPath(boardId, "stickers", url.PathEscape(stickerId), "comments", url.PathEscape(id))
	if err := c.call(ctx, http.MethodPut, path, api.CommentRequest{Content: content}, http.StatusOK, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *APIClient) DeleteComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) error {
	path := boardPath(boardId, "stickers", url.PathEscape(stickerId), "comments", url.PathEscape(id))
	return c.call(ctx, http.MethodDelete, path, nil, http.StatusNoContent, nil)
}
