package service

import (
	"context"
	"log/slog"

	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

type CommentService interface {
	Add(ctx context.Context, data domain.CommentCreationData) (*domain.Comment, error)
	Update(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, editor domain.Email, content string) (*domain.Comment, error)
	Delete(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, actor domain.Email) error
}

type CommentStorage interface {
	RoleStorage
	CreateComment(ctx context.Context, data domain.CommentCreationData, contentHTML string) (*domain.Comment, error)
	GetComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) (*domain.Comment, error)
	UpdateComment(ctx context.Context, id domain.CommentId, content, contentHTML string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, id domain.CommentId) error
}

type Comment struct {
	storage CommentStorage
	text    TextRenderer
	pub     Publisher
	log     *slog.Logger
}

func NewComment(storage CommentStorage, text TextRenderer, pub Publisher) CommentService {
	return &Comment{storage: storage, text: text, pub: pub, log: logger.Component("comment")}
}

func (c *Comment) Add(ctx context.Context, data domain.CommentCreationData) (*domain.Comment, error) {
	data.Author = domain.NormalizeEmail(data.Author)
	if _, err := requireMember(ctx, c.storage, data.BoardId, data.Author); err != nil {
		return nil, err
	}
	var err error
	if data.Content, err = validateText("Comment", data.Content, maxContentLen); err != nil {
		return nil, err
	}
	comment, err := c.storage.CreateComment(ctx, data, c.text.Render(data.Content))
	if err != nil {
		return nil, err
	}
	publish(ctx, c.pub, c.log, comment.BoardId, events.CommentAdded, comment)
	return comment, nil
}

// Update is author-only.
func (c *Comment) Update(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, editor domain.Email, content string) (*domain.Comment, error) {
	editor = domain.NormalizeEmail(editor)
	if err := c.authorize(ctx, boardId, stickerId, id, editor); err != nil {
		return nil, err
	}
	content, err := validateText("Comment", content, maxContentLen)
	if err != nil {
		return nil, err
	}
	comment, err := c.storage.UpdateComment(ctx, id, content, c.text.Render(content))
	if err != nil {
		return nil, err
	}
	publish(ctx, c.pub, c.log, boardId, events.CommentUpdated, comment)
	return comment, nil
}

// Delete is author-only.
func (c *Comment) Delete(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, actor domain.Email) error {
	actor = domain.NormalizeEmail(actor)
	if err := c.authorize(ctx, boardId, stickerId, id, actor); err != nil {
		return err
	}
	if err := c.storage.DeleteComment(ctx, id); err != nil {
		return err
	}
	publish(ctx, c.pub, c.log, boardId, events.CommentDeleted, events.CommentDeletedPayload{Id: id, StickerId: stickerId})
	return nil
}

func (c *Comment) authorize(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, email domain.Email) error {
	if _, err := requireMember(ctx, c.storage, boardId, email); err != nil {
		return err
	}
	current, err := c.storage.GetComment(ctx, boardId, stickerId, id)
	if err != nil {
		return err
	}
	if current.Author != email {
		return internal_errors.Forbidden("Only the author can change a comment")
	}
	return nil
}
