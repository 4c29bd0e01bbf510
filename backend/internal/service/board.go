package service

import (
	"context"
	"log/slog"

	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/logger"
)

// to mock service in tests
type BoardService interface {
	Create(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error)
	AddMember(ctx context.Context, boardId domain.BoardId, actor, email domain.Email) error
	Snapshot(ctx context.Context, boardId domain.BoardId, email domain.Email) (*domain.BoardSnapshot, error)
}

type BoardStorage interface {
	RoleStorage
	CreateBoard(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error)
	AddMember(ctx context.Context, boardId domain.BoardId, email domain.Email, role domain.Role) error
	GetBoardSnapshot(ctx context.Context, boardId domain.BoardId) (*domain.BoardSnapshot, error)
}

type TimerReader interface {
	Current(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error)
}

type Board struct {
	storage BoardStorage
	timers  TimerReader
	log     *slog.Logger
}

func NewBoard(storage BoardStorage, timers TimerReader) BoardService {
	return &Board{storage: storage, timers: timers, log: logger.Component("board")}
}

func (b *Board) Create(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error) {
	owner = domain.NormalizeEmail(owner)
	if owner == "" {
		return nil, internal_errors.ErrUnauthorized
	}
	name, err := validateText("Board name", name, maxBoardNameLen)
	if err != nil {
		return nil, err
	}
	board, err := b.storage.CreateBoard(ctx, name, owner)
	if err != nil {
		return nil, err
	}
	b.log.Info("board created", "board_id", board.Id, "owner", owner)
	return board, nil
}

// AddMember is owner-only.
func (b *Board) AddMember(ctx context.Context, boardId domain.BoardId, actor, email domain.Email) error {
	role, err := requireMember(ctx, b.storage, boardId, domain.NormalizeEmail(actor))
	if err != nil {
		return err
	}
	if role != domain.RoleOwner {
		return internal_errors.Forbidden("Only the board owner can add members")
	}
	email = domain.NormalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return internal_errors.BadRequest("Invalid email")
	}
	return b.storage.AddMember(ctx, boardId, email, domain.RoleMember)
}

// Snapshot is the authoritative board state a client loads on open and after
// every reconnect.
func (b *Board) Snapshot(ctx context.Context, boardId domain.BoardId, email domain.Email) (*domain.BoardSnapshot, error) {
	if _, err := requireMember(ctx, b.storage, boardId, domain.NormalizeEmail(email)); err != nil {
		return nil, err
	}
	snapshot, err := b.storage.GetBoardSnapshot(ctx, boardId)
	if err != nil {
		return nil, err
	}
	timer, err := b.timers.Current(ctx, boardId)
	if err != nil {
		b.log.Warn("snapshot without timer", "board_id", boardId, "error", err)
	} else {
		snapshot.Timer = timer
	}
	return snapshot, nil
}
