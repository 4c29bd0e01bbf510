package service

import (
	"context"
	"log/slog"

	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

type VoteService interface {
	Add(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error
	Remove(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error
}

type VoteStorage interface {
	RoleStorage
	GetSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) (*domain.Sticker, error)
	AddVote(ctx context.Context, vote domain.Vote) (bool, error)
	RemoveVote(ctx context.Context, vote domain.Vote) (bool, error)
}

type Vote struct {
	storage VoteStorage
	pub     Publisher
	log     *slog.Logger
}

func NewVote(storage VoteStorage, pub Publisher) VoteService {
	return &Vote{storage: storage, pub: pub, log: logger.Component("vote")}
}

// Add is idempotent; a repeated vote publishes nothing.
func (v *Vote) Add(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error {
	vote, err := v.check(ctx, boardId, stickerId, email)
	if err != nil {
		return err
	}
	added, err := v.storage.AddVote(ctx, vote)
	if err != nil {
		return err
	}
	if added {
		publish(ctx, v.pub, v.log, boardId, events.VoteAdded, vote)
	}
	return nil
}

// Remove of a missing vote is a no-op.
func (v *Vote) Remove(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error {
	vote, err := v.check(ctx, boardId, stickerId, email)
	if err != nil {
		return err
	}
	removed, err := v.storage.RemoveVote(ctx, vote)
	if err != nil {
		return err
	}
	if removed {
		publish(ctx, v.pub, v.log, boardId, events.VoteRemoved, vote)
	}
	return nil
}

func (v *Vote) check(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) (domain.Vote, error) {
	email = domain.NormalizeEmail(email)
	if _, err := requireMember(ctx, v.storage, boardId, email); err != nil {
		return domain.Vote{}, err
	}
	// the sticker must be on this board
	if _, err := v.storage.GetSticker(ctx, boardId, stickerId); err != nil {
		return domain.Vote{}, err
	}
	return domain.Vote{StickerId: stickerId, Email: email}, nil
}
