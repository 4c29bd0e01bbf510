// Package boardview folds board events into the participant's copy of the board.
// Every reducer is idempotent, so redelivered events leave the view unchanged.
package boardview

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"

	"github.com/itchan-dev/retroboard/client/internal/dispatch"
	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

// Reloaded is the change reported after an authoritative reload.
const Reloaded events.Type = "reset"

type View struct {
	boardId domain.BoardId
	log     *slog.Logger

	mu       sync.RWMutex
	board    domain.Board
	stickers map[domain.StickerId]*domain.Sticker
	members  map[domain.Email]domain.Member
	onChange func(events.Type)
}

func New(boardId domain.BoardId) *View {
	return &View{
		boardId:  boardId,
		log:      logger.Component("boardview").With("board_id", boardId),
		stickers: make(map[domain.StickerId]*domain.Sticker),
		members:  make(map[domain.Email]domain.Member),
	}
}

func (v *View) BoardId() domain.BoardId { return v.boardId }

// OnChange registers a callback fired after every reducer that ran.
// It is called without the view lock held.
func (v *View) OnChange(fn func(events.Type)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Reset replaces everything with an authoritative snapshot.
func (v *View) Reset(snap domain.BoardSnapshot) {
	v.update(Reloaded, func() bool {
		v.board = snap.Board
		v.stickers = make(map[domain.StickerId]*domain.Sticker, len(snap.Stickers))
		for _, s := range snap.Stickers {
			v.stickers[s.Id] = normalize(cloneSticker(s))
		}
		v.members = make(map[domain.Email]domain.Member, len(snap.Members))
		for _, m := range snap.Members {
			v.members[m.Email] = m
		}
		return true
	})
}

// update runs fn under the write lock and notifies when fn reports a change.
func (v *View) update(t events.Type, fn func() bool) {
	v.mu.Lock()
	changed := fn()
	notify := v.onChange
	v.mu.Unlock()

	if changed && notify != nil {
		notify(t)
	}
}

func (v *View) CreateSticker(s domain.Sticker) {
	v.update(events.StickerCreated, func() bool {
		if _, ok := v.stickers[s.Id]; ok {
			v.log.Debug("duplicate sticker", "sticker_id", s.Id)
			return false
		}
		v.stickers[s.Id] = normalize(cloneSticker(s))
		return true
	})
}

// UpdateSticker replaces the sticker but keeps the current votes or comments
// when the update leaves them out.
func (v *View) UpdateSticker(s domain.Sticker) {
	v.update(events.StickerUpdated, func() bool {
		next := cloneSticker(s)
		if cur, ok := v.stickers[s.Id]; ok {
			if s.Votes == nil {
				next.Votes = cur.Votes
			}
			if s.Comments == nil {
				next.Comments = cur.Comments
			}
		}
		v.stickers[s.Id] = normalize(next)
		return true
	})
}

func (v *View) DeleteSticker(id domain.StickerId) {
	v.update(events.StickerDeleted, func() bool {
		if _, ok := v.stickers[id]; !ok {
			return false
		}
		delete(v.stickers, id)
		return true
	})
}

func (v *View) AddVote(vote domain.Vote) {
	v.update(events.VoteAdded, func() bool {
		s, ok := v.stickers[vote.StickerId]
		if !ok {
			v.log.Debug("vote for unknown sticker", "sticker_id", vote.StickerId)
			return false
		}
		i, found := slices.BinarySearchFunc(s.Votes, vote.Email, byEmail)
		if found {
			return false
		}
		s.Votes = slices.Insert(s.Votes, i, vote)
		return true
	})
}

func (v *View) RemoveVote(vote domain.Vote) {
	v.update(events.VoteRemoved, func() bool {
		s, ok := v.stickers[vote.StickerId]
		if !ok {
			return false
		}
		i, found := slices.BinarySearchFunc(s.Votes, vote.Email, byEmail)
		if !found {
			return false
		}
		s.Votes = slices.Delete(s.Votes, i, i+1)
		return true
	})
}

// AddComment inserts or replaces c on its sticker.
func (v *View) AddComment(c domain.Comment) {
	v.update(events.CommentAdded, func() bool {
		s, ok := v.stickers[c.StickerId]
		if !ok {
			v.log.Debug("comment for unknown sticker", "sticker_id", c.StickerId, "comment_id", c.Id)
			return false
		}
		if i := slices.IndexFunc(s.Comments, func(x domain.Comment) bool { return x.Id == c.Id }); i >= 0 {
			s.Comments[i] = c
		} else {
			s.Comments = append(s.Comments, c)
		}
		slices.SortFunc(s.Comments, commentOrder)
		return true
	})
}

// UpdateComment ignores comments the view has never seen.
func (v *View) UpdateComment(c domain.Comment) {
	v.update(events.CommentUpdated, func() bool {
		s, i := v.findComment(c.StickerId, c.Id)
		if s == nil {
			v.log.Debug("update for unknown comment", "sticker_id", c.StickerId, "comment_id", c.Id)
			return false
		}
		s.Comments[i] = c
		slices.SortFunc(s.Comments, commentOrder)
		return true
	})
}

// DeleteComment searches every sticker when stickerId is empty.
func (v *View) DeleteComment(stickerId domain.StickerId, id domain.CommentId) {
	v.update(events.CommentDeleted, func() bool {
		s, i := v.findComment(stickerId, id)
		if s == nil {
			v.log.Debug("delete for unknown comment", "sticker_id", stickerId, "comment_id", id)
			return false
		}
		s.Comments = slices.Delete(s.Comments, i, i+1)
		return true
	})
}

func (v *View) findComment(stickerId domain.StickerId, id domain.CommentId) (*domain.Sticker, int) {
	match := func(x domain.Comment) bool { return x.Id == id }
	if stickerId != "" {
		s, ok := v.stickers[stickerId]
		if !ok {
			return nil, -1
		}
		if i := slices.IndexFunc(s.Comments, match); i >= 0 {
			return s, i
		}
		return nil, -1
	}
	for _, s := range v.stickers {
		if i := slices.IndexFunc(s.Comments, match); i >= 0 {
			return s, i
		}
	}
	return nil, -1
}

func (v *View) SetMembers(members []domain.Member) {
	v.update(events.PresenceList, func() bool {
		v.members = make(map[domain.Email]domain.Member, len(members))
		for _, m := range members {
			v.members[m.Email] = m
		}
		return true
	})
}

// MemberJoined marks email online, inserting it when unknown.
func (v *View) MemberJoined(email domain.Email, role domain.Role) {
	v.update(events.PresenceJoined, func() bool {
		m, ok := v.members[email]
		if ok && m.Online && (role == "" || m.Role == role) {
			return false
		}
		m.Email, m.Online = email, true
		if role != "" {
			m.Role = role
		}
		v.members[email] = m
		return true
	})
}

// MemberLeft flips email offline and keeps its role.
func (v *View) MemberLeft(email domain.Email) {
	v.update(events.PresenceLeft, func() bool {
		m, ok := v.members[email]
		if !ok || !m.Online {
			return false
		}
		m.Online = false
		v.members[email] = m
		return true
	})
}

// Stickers returns copies ordered by creation time.
func (v *View) Stickers() []domain.Sticker {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stickerList()
}

func (v *View) stickerList() []domain.Sticker {
	out := make([]domain.Sticker, 0, len(v.stickers))
	for _, s := range v.stickers {
		out = append(out, cloneSticker(*s))
	}
	slices.SortFunc(out, func(a, b domain.Sticker) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Id, b.Id))
	})
	return out
}

func (v *View) Sticker(id domain.StickerId) (domain.Sticker, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.stickers[id]
	if !ok {
		return domain.Sticker{}, false
	}
	return cloneSticker(*s), true
}

// Members returns the membership ordered by email.
func (v *View) Members() []domain.Member {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.memberList()
}

func (v *View) memberList() []domain.Member {
	out := make([]domain.Member, 0, len(v.members))
	for _, m := range v.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b domain.Member) int { return cmp.Compare(a.Email, b.Email) })
	return out
}

func (v *View) Counts() (online, offline int) {
	return domain.CountOnline(v.Members())
}

// Snapshot is a deep copy of the view. The timer is not part of it.
func (v *View) Snapshot() domain.BoardSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return domain.BoardSnapshot{Board: v.board, Stickers: v.stickerList(), Members: v.memberList()}
}

// Handlers decodes each board event and feeds the matching reducer.
func (v *View) Handlers() dispatch.Handlers {
	return dispatch.Handlers{
		events.StickerCreated: reduce(v, v.CreateSticker),
		events.StickerUpdated: reduce(v, v.UpdateSticker),
		events.StickerDeleted: reduce(v, func(p events.StickerDeletedPayload) { v.DeleteSticker(p.Id) }),
		events.VoteAdded:      reduce(v, v.AddVote),
		events.VoteRemoved:    reduce(v, v.RemoveVote),
		events.CommentAdded:   reduce(v, v.AddComment),
		events.CommentUpdated: reduce(v, v.UpdateComment),
		events.CommentDeleted: reduce(v, func(p events.CommentDeletedPayload) { v.DeleteComment(p.StickerId, p.Id) }),
		events.PresenceList:   reduce(v, func(p events.PresenceListPayload) { v.SetMembers(p.Members) }),
		events.PresenceJoined: reduce(v, func(p events.PresenceJoinedPayload) { v.MemberJoined(p.Email, p.Role) }),
		events.PresenceLeft:   reduce(v, func(p events.PresenceLeftPayload) { v.MemberLeft(p.Email) }),
	}
}

func reduce[T any](v *View, fn func(T)) func(events.Envelope) {
	return func(env events.Envelope) {
		if env.BoardId != "" && env.BoardId != v.boardId {
			v.log.Warn("event for another board", "type", env.Type, "event_board_id", env.BoardId)
			return
		}
		payload, err := events.DecodeData[T](env)
		if err != nil {
			v.log.Warn("dropping undecodable event", "type", env.Type, "error", err)
			return
		}
		fn(payload)
	}
}

func byEmail(v domain.Vote, email domain.Email) int { return cmp.Compare(v.Email, email) }

func commentOrder(a, b domain.Comment) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Id, b.Id))
}

func cloneSticker(s domain.Sticker) domain.Sticker {
	if s.Votes != nil {
		s.Votes = slices.Clone(s.Votes)
	}
	if s.Comments != nil {
		s.Comments = slices.Clone(s.Comments)
	}
	return s
}

// normalize sorts the collections and replaces absent ones with empty ones.
func normalize(s domain.Sticker) *domain.Sticker {
	if s.Votes == nil {
		s.Votes = []domain.Vote{}
	}
	if s.Comments == nil {
		s.Comments = []domain.Comment{}
	}
	slices.SortFunc(s.Votes, func(a, b domain.Vote) int { return cmp.Compare(a.Email, b.Email) })
	s.Votes = slices.CompactFunc(s.Votes, func(a, b domain.Vote) bool { return a.Email == b.Email })
	slices.SortFunc(s.Comments, commentOrder)
	return &s
}
