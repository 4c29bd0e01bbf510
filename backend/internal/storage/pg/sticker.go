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

var errStickerNotFound = internal_errors.NotFound("Sticker not found")

// CreateSticker stores a sticker. The returned record has empty vote and
// comment lists.
func (s *Storage) CreateSticker(ctx context.Context, data domain.StickerCreationData, contentHTML string) (*domain.Sticker, error) {
	st := domain.Sticker{
		Id:          uuid.NewString(),
		BoardId:     data.BoardId,
		Column:      data.Column,
		Content:     data.Content,
		ContentHTML: contentHTML,
		Author:      data.Author,
		Votes:       []domain.Vote{},
		Comments:    []domain.Comment{},
	}
	err := s.db.QueryRowContext(ctx, `
	INSERT INTO stickers(id, board_id, column_name, content, content_html, author)
	VALUES($1, $2, $3, $4, $5, $6)
	RETURNING created_at, updated_at`,
		st.Id, st.BoardId, st.Column, st.Content, st.ContentHTML, st.Author,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if sharedpg.IsForeignKeyViolation(err) {
			return nil, internal_errors.NotFound("Board not found")
		}
		return nil, err
	}
	return &st, nil
}

// GetSticker returns the sticker with its votes and comments.
func (s *Storage) GetSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) (*domain.Sticker, error) {
	return getSticker(ctx, s.db, boardId, id)
}

func getSticker(ctx context.Context, q sharedpg.Querier, boardId domain.BoardId, id domain.StickerId) (*domain.Sticker, error) {
	var st domain.Sticker
	err := q.QueryRowContext(ctx, `
	SELECT id, board_id, column_name, content, content_html, author, created_at, updated_at
	FROM stickers
	WHERE id = $1 AND board_id = $2`,
		id, boardId,
	).Scan(&st.Id, &st.BoardId, &st.Column, &st.Content, &st.ContentHTML, &st.Author, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errStickerNotFound
		}
		return nil, err
	}
	if st.Votes, err = listVotes(ctx, q, "sticker_id = $1", id); err != nil {
		return nil, err
	}
	if st.Comments, err = listComments(ctx, q, "c.sticker_id = $1", id); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateSticker applies the non-nil fields of data and returns the full record.
func (s *Storage) UpdateSticker(ctx context.Context, data domain.StickerUpdateData, contentHTML *string) (*domain.Sticker, error) {
	var st *domain.Sticker
	err := sharedpg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE stickers
		SET column_name = COALESCE($3, column_name),
			content = COALESCE($4, content),
			content_html = COALESCE($5, content_html),
			updated_at = now()
		WHERE id = $1 AND board_id = $2`,
			data.Id, data.BoardId, data.Column, data.Content, contentHTML,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errStickerNotFound
		}
		st, err = getSticker(ctx, tx, data.BoardId, data.Id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Storage) DeleteSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM stickers WHERE id = $1 AND board_id = $2", id, boardId)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errStickerNotFound
	}
	return nil
}

func listStickers(ctx context.Context, q sharedpg.Querier, boardId domain.BoardId) ([]domain.Sticker, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT id, board_id, column_name, content, content_html, author, created_at, updated_at
	FROM stickers
	WHERE board_id = $1
	ORDER BY created_at, id`,
		boardId,
	)
	if err != nil {
		return nil, err
	}
	stickers := []domain.Sticker{}
	index := make(map[domain.StickerId]int)
	for rows.Next() {
		st := domain.Sticker{Votes: []domain.Vote{}, Comments: []domain.Comment{}}
		if err := rows.Scan(&st.Id, &st.BoardId, &st.Column, &st.Content, &st.ContentHTML, &st.Author, &st.CreatedAt, &st.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[st.Id] = len(stickers)
		stickers = append(stickers, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	votes, err := listVotes(ctx, q, "sticker_id IN (SELECT id FROM stickers WHERE board_id = $1)", boardId)
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		if i, ok := index[v.StickerId]; ok {
			stickers[i].Votes = append(stickers[i].Votes, v)
		}
	}

	comments, err := listComments(ctx, q, "c.board_id = $1", boardId)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if i, ok := index[c.StickerId]; ok {
			stickers[i].Comments = append(stickers[i].Comments, c)
		}
	}
	return stickers, nil
}
