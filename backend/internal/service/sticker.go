package service

import (
	"context"
	"log/slog"

	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

type StickerService interface {
	Create(ctx context.Context, data domain.StickerCreationData) (*domain.Sticker, error)
	Update(ctx context.Context, data domain.StickerUpdateData) (*domain.Sticker, error)
	Delete(ctx context.Context, boardId domain.BoardId, id domain.StickerId, actor domain.Email) error
}

type StickerStorage interface {
	RoleStorage
	CreateSticker(ctx context.Context, data domain.StickerCreationData, contentHTML string) (*domain.Sticker, error)
	GetSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) (*domain.Sticker, error)
	UpdateSticker(ctx context.Context, data domain.StickerUpdateData, contentHTML *string) (*domain.Sticker, error)
	DeleteSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) error
}

type Sticker struct {
	storage StickerStorage
	text    TextRenderer
	pub     Publisher
	log     *slog.Logger
}

func NewSticker(storage StickerStorage, text TextRenderer, pub Publisher) StickerService {
	return &Sticker{storage: storage, text: text, pub: pub, log: logger.Component("sticker")}
}

func (s *Sticker) Create(ctx context.Context, data domain.StickerCreationData) (*domain.Sticker, error) {
	data.Author = domain.NormalizeEmail(data.Author)
	if _, err := requireMember(ctx, s.storage, data.BoardId, data.Author); err != nil {
		return nil, err
	}
	var err error
	if data.Column, err = validateText("Column", data.Column, maxColumnLen); err != nil {
		return nil, err
	}
	if data.Content, err = validateText("Content", data.Content, maxContentLen); err != nil {
		return nil, err
	}

	sticker, err := s.storage.CreateSticker(ctx, data, s.text.Render(data.Content))
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, sticker.BoardId, events.StickerCreated, sticker)
	return sticker, nil
}

// Update is author-only and changes only the fields that are set.
func (s *Sticker) Update(ctx context.Context, data domain.StickerUpdateData) (*domain.Sticker, error) {
	data.Editor = domain.NormalizeEmail(data.Editor)
	if _, err := requireMember(ctx, s.storage, data.BoardId, data.Editor); err != nil {
		return nil, err
	}
	if data.Column == nil && data.Content == nil {
		return nil, internal_errors.BadRequest("Nothing to update")
	}
	if data.Column != nil {
		column, err := validateText("Column", *data.Column, maxColumnLen)
		if err != nil {
			return nil, err
		}
		data.Column = &column
	}
	var contentHTML *string
	if data.Content != nil {
		content, err := validateText("Content", *data.Content, maxContentLen)
		if err != nil {
			return nil, err
		}
		rendered := s.text.Render(content)
		data.Content, contentHTML = &content, &rendered
	}

	current, err := s.storage.GetSticker(ctx, data.BoardId, data.Id)
	if err != nil {
		return nil, err
	}
	if current.Author != data.Editor {
		return nil, internal_errors.Forbidden("Only the author can edit a sticker")
	}

	sticker, err := s.storage.UpdateSticker(ctx, data, contentHTML)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, sticker.BoardId, events.StickerUpdated, sticker)
	return sticker, nil
}

// Delete is allowed to the author and to the board owner.
func (s *Sticker) Delete(ctx context.Context, boardId domain.BoardId, id domain.StickerId, actor domain.Email) error {
	actor = domain.NormalizeEmail(actor)
	role, err := requireMember(ctx, s.storage, boardId, actor)
	if err != nil {
		return err
	}
	current, err := s.storage.GetSticker(ctx, boardId, id)
	if err != nil {
		return err
	}
	if current.Author != actor && role != domain.RoleOwner {
		return internal_errors.Forbidden("Only the author or the board owner can delete a sticker")
	}
	if err := s.storage.DeleteSticker(ctx, boardId, id); err != nil {
		return err
	}
	publish(ctx, s.pub, s.log, boardId, events.StickerDeleted, events.StickerDeletedPayload{Id: id, BoardId: boardId})
	return nil
}
