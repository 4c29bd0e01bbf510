package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	sharedpg "github.com/itchan-dev/retroboard/shared/storage/pg"
)

var errCommentNotFound = internal_errors.NotFound("Comment not found")

func (s *Storage) CreateComment(ctx context.Context, data domain.CommentCreationData, contentHTML string) (*domain.Comment, error) {
	c := domain.Comment{
		Id:          uuid.NewString(),
		StickerId:   data.StickerId,
		BoardId:     data.BoardId,
		Content:     data.Content,
		ContentHTML: contentHTML,
		Author:      data.Author,
	}
	// the sticker must belong to the board the comment claims
	err := s.db.QueryRowContext(ctx, `
	INSERT INTO comments(id, sticker_id, board_id, content, content_html, author)
	SELECT $1, s.id, s.board_id, $4, $5, $6
	FROM stickers s
	WHERE s.id = $2 AND s.board_id = $3
	RETURNING created_at, updated_at`,
		c.Id, c.StickerId, c.BoardId, c.Content, c.ContentHTML, c.Author,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || sharedpg.IsForeignKeyViolation(err) {
			return nil, errStickerNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Storage) GetComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) (*domain.Comment, error) {
	comments, err := listComments(ctx, s.db, "c.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 || comments[0].BoardId != boardId || comments[0].StickerId != stickerId {
		return nil, errCommentNotFound
	}
	return &comments[0], nil
}

func (s *Storage) UpdateComment(ctx context.Context, id domain.CommentId, content, contentHTML string) (*domain.Comment, error) {
	var c domain.Comment
	err := s.db.QueryRowContext(ctx, `
	UPDATE comments SET content = $2, content_html = $3, updated_at = now()
	WHERE id = $1
	RETURNING id, sticker_id, board_id, content, content_html, author, created_at, updated_at`,
		id, content, contentHTML,
	).Scan(&c.Id, &c.StickerId, &c.BoardId, &c.Content, &c.ContentHTML, &c.Author, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errCommentNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Storage) DeleteComment(ctx context.Context, id domain.CommentId) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM comments WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errCommentNotFound
	}
	return nil
}

func listComments(ctx context.Context, q sharedpg.Querier, where string, arg any) ([]domain.Comment, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT c.id, c.sticker_id, c.board_id, c.content, c.content_html, c.author, c.created_at, c.updated_at
	FROM comments c
	WHERE `+where+`
	ORDER BY c.created_at, c.id`,
		arg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.Id, &c.StickerId, &c.BoardId, &c.Content, &c.ContentHTML, &c.Author, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
