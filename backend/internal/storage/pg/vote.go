package pg

import (
	"context"

	"github.com/itchan-dev/retroboard/shared/domain"
	sharedpg "github.com/itchan-dev/retroboard/shared/storage/pg"
)

// AddVote reports false when the vote already existed.
func (s *Storage) AddVote(ctx context.Context, vote domain.Vote) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO votes(sticker_id, email) VALUES($1, $2)
	ON CONFLICT (sticker_id, email) DO NOTHING`,
		vote.StickerId, vote.Email,
	)
	if err != nil {
		if sharedpg.IsForeignKeyViolation(err) {
			return false, errStickerNotFound
		}
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemoveVote reports false when there was nothing to remove.
func (s *Storage) RemoveVote(ctx context.Context, vote domain.Vote) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM votes WHERE sticker_id = $1 AND email = $2", vote.StickerId, vote.Email)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// votes are ordered by email so every reader sees the same list
func listVotes(ctx context.Context, q sharedpg.Querier, where string, arg any) ([]domain.Vote, error) {
	rows, err := q.QueryContext(ctx, "SELECT sticker_id, email FROM votes WHERE "+where+" ORDER BY sticker_id, email", arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := []domain.Vote{}
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.StickerId, &v.Email); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
