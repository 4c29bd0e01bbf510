package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	sharedpg "github.com/itchan-dev/retroboard/shared/storage/pg"
)

// CreateBoard stores a board and makes its creator the owner member.
func (s *Storage) CreateBoard(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error) {
	board := domain.Board{Id: uuid.NewString(), Name: name, Owner: owner}
	err := sharedpg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO boards(id, name, owner) VALUES($1, $2, $3) RETURNING created_at",
			board.Id, name, owner,
		).Scan(&board.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO board_members(board_id, email, role) VALUES($1, $2, $3)",
			board.Id, owner, domain.RoleOwner,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	return &board, nil
}

func (s *Storage) GetBoard(ctx context.Context, boardId domain.BoardId) (*domain.Board, error) {
	return getBoard(ctx, s.db, boardId)
}

func getBoard(ctx context.Context, q sharedpg.Querier, boardId domain.BoardId) (*domain.Board, error) {
	var b domain.Board
	err := q.QueryRowContext(ctx, "SELECT id, name, owner, created_at FROM boards WHERE id = $1", boardId).
		Scan(&b.Id, &b.Name, &b.Owner, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, internal_errors.NotFound("Board not found")
		}
		return nil, err
	}
	return &b, nil
}

// AddMember is idempotent. An existing member keeps its role.
func (s *Storage) AddMember(ctx context.Context, boardId domain.BoardId, email domain.Email, role domain.Role) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO board_members(board_id, email, role) VALUES($1, $2, $3)
	ON CONFLICT (board_id, email) DO NOTHING`,
		boardId, email, role,
	)
	if err != nil {
		if sharedpg.IsForeignKeyViolation(err) {
			return internal_errors.NotFound("Board not found")
		}
		return err
	}
	return nil
}

// Role returns RoleNone for non-members and unknown boards.
func (s *Storage) Role(ctx context.Context, boardId domain.BoardId, email domain.Email) (domain.Role, error) {
	var role domain.Role
	err := s.db.QueryRowContext(ctx,
		"SELECT role FROM board_members WHERE board_id = $1 AND email = $2",
		boardId, email,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RoleNone, nil
		}
		return domain.RoleNone, err
	}
	return role, nil
}

func (s *Storage) IsMember(ctx context.Context, boardId domain.BoardId, email domain.Email) (bool, error) {
	role, err := s.Role(ctx, boardId, email)
	if err != nil {
		return false, err
	}
	return role.IsMember(), nil
}

// ListMembers returns every member with its current online flag. Members that
// never joined are offline.
func (s *Storage) ListMembers(ctx context.Context, boardId domain.BoardId) ([]domain.Member, error) {
	return listMembers(ctx, s.db, boardId)
}

func listMembers(ctx context.Context, q sharedpg.Querier, boardId domain.BoardId) ([]domain.Member, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT m.email, m.role, COALESCE(p.online, false)
	FROM board_members m
	LEFT JOIN presence p ON p.board_id = m.board_id AND p.email = m.email
	WHERE m.board_id = $1
	ORDER BY m.role = 'owner' DESC, m.email`,
		boardId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.Email, &m.Role, &m.Online); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetBoardSnapshot reads the board, its stickers with votes and comments, and
// its members in one repeatable-read transaction.
func (s *Storage) GetBoardSnapshot(ctx context.Context, boardId domain.BoardId) (*domain.BoardSnapshot, error) {
	var snapshot domain.BoardSnapshot
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	board, err := getBoard(ctx, tx, boardId)
	if err != nil {
		return nil, err
	}
	snapshot.Board = *board

	if snapshot.Stickers, err = listStickers(ctx, tx, boardId); err != nil {
		return nil, fmt.Errorf("list stickers: %w", err)
	}
	if snapshot.Members, err = listMembers(ctx, tx, boardId); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
