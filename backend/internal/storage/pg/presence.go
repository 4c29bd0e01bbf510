package pg

import (
	"context"
	"time"

	"github.com/itchan-dev/retroboard/shared/domain"
)

func (s *Storage) UpsertPresence(ctx context.Context, entry domain.PresenceEntry) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO presence(board_id, email, role, online, last_seen, instance_id)
	VALUES($1, $2, $3, $4, $5, $6)
	ON CONFLICT (board_id, email) DO UPDATE
	SET role = EXCLUDED.role, online = EXCLUDED.online, last_seen = EXCLUDED.last_seen, instance_id = EXCLUDED.instance_id`,
		entry.BoardId, entry.Email, entry.Role, entry.Online, entry.LastSeen, entry.Instance,
	)
	return err
}

// SetOnline only touches existing entries.
func (s *Storage) SetOnline(ctx context.Context, boardId domain.BoardId, email domain.Email, online bool, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE presence SET online = $3, last_seen = $4 WHERE board_id = $1 AND email = $2",
		boardId, email, online, lastSeen,
	)
	return err
}

func (s *Storage) ListPresence(ctx context.Context, boardId domain.BoardId) ([]domain.PresenceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT board_id, email, role, online, last_seen, instance_id
	FROM presence
	WHERE board_id = $1
	ORDER BY email`,
		boardId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.PresenceEntry
	for rows.Next() {
		var e domain.PresenceEntry
		if err := rows.Scan(&e.BoardId, &e.Email, &e.Role, &e.Online, &e.LastSeen, &e.Instance); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ResetOnline marks the entries last brought online by instance offline.
// An empty instance resets every entry.
func (s *Storage) ResetOnline(ctx context.Context, instance string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE presence SET online = false WHERE online AND ($1 = '' OR instance_id = $1)",
		instance,
	)
	return err
}
