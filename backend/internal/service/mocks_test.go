package service

import (
	"context"
	"sync"

	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/events"
)

// MockStorage mocks every storage interface of the package. Unset funcs
// return zero values.
type MockStorage struct {
	roleFunc             func(ctx context.Context, boardId domain.BoardId, email domain.Email) (domain.Role, error)
	createBoardFunc      func(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error)
	addMemberFunc        func(ctx context.Context, boardId domain.BoardId, email domain.Email, role domain.Role) error
	getBoardSnapshotFunc func(ctx context.Context, boardId domain.BoardId) (*domain.BoardSnapshot, error)
	createStickerFunc    func(ctx context.Context, data domain.StickerCreationData, contentHTML string) (*domain.Sticker, error)
	getStickerFunc       func(ctx context.Context, boardId domain.BoardId, id domain.StickerId) (*domain.Sticker, error)
	updateStickerFunc    func(ctx context.Context, data domain.StickerUpdateData, contentHTML *string) (*domain.Sticker, error)
	deleteStickerFunc    func(ctx context.Context, boardId domain.BoardId, id domain.StickerId) error
	addVoteFunc          func(ctx context.Context, vote domain.Vote) (bool, error)
	removeVoteFunc       func(ctx context.Context, vote domain.Vote) (bool, error)
	createCommentFunc    func(ctx context.Context, data domain.CommentCreationData, contentHTML string) (*domain.Comment, error)
	getCommentFunc       func(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) (*domain.Comment, error)
	updateCommentFunc    func(ctx context.Context, id domain.CommentId, content, contentHTML string) (*domain.Comment, error)
	deleteCommentFunc    func(ctx context.Context, id domain.CommentId) error
}

func (m *MockStorage) Role(ctx context.Context, boardId domain.BoardId, email domain.Email) (domain.Role, error) {
	if m.roleFunc != nil {
		return m.roleFunc(ctx, boardId, email)
	}
	return domain.RoleMember, nil
}

func (m *MockStorage) CreateBoard(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error) {
	if m.createBoardFunc != nil {
		return m.createBoardFunc(ctx, name, owner)
	}
	return &domain.Board{Id: "b1", Name: name, Owner: owner}, nil
}

func (m *MockStorage) AddMember(ctx context.Context, boardId domain.BoardId, email domain.Email, role domain.Role) error {
	if m.addMemberFunc != nil {
		return m.addMemberFunc(ctx, boardId, email, role)
	}
	return nil
}

func (m *MockStorage) GetBoardSnapshot(ctx context.Context, boardId domain.BoardId) (*domain.BoardSnapshot, error) {
	if m.getBoardSnapshotFunc != nil {
		return m.getBoardSnapshotFunc(ctx, boardId)
	}
	return &domain.BoardSnapshot{Board: domain.Board{Id: boardId}}, nil
}

func (m *MockStorage) CreateSticker(ctx context.Context, data domain.StickerCreationData, contentHTML string) (*domain.Sticker, error) {
	if m.createStickerFunc != nil {
		return m.createStickerFunc(ctx, data, contentHTML)
	}
	return &domain.Sticker{Id: "s1", BoardId: data.BoardId, Column: data.Column, Content: data.Content, ContentHTML: contentHTML, Author: data.Author, Votes: []domain.Vote{}, Comments: []domain.Comment{}}, nil
}

func (m *MockStorage) GetSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) (*domain.Sticker, error) {
	if m.getStickerFunc != nil {
		return m.getStickerFunc(ctx, boardId, id)
	}
	return &domain.Sticker{Id: id, BoardId: boardId, Author: "author@x.com"}, nil
}

func (m *MockStorage) UpdateSticker(ctx context.Context, data domain.StickerUpdateData, contentHTML *string) (*domain.Sticker, error) {
	if m.updateStickerFunc != nil {
		return m.updateStickerFunc(ctx, data, contentHTML)
	}
	return &domain.Sticker{Id: data.Id, BoardId: data.BoardId}, nil
}

func (m *MockStorage) DeleteSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) error {
	if m.deleteStickerFunc != nil {
		return m.deleteStickerFunc(ctx, boardId, id)
	}
	return nil
}

func (m *MockStorage) AddVote(ctx context.Context, vote domain.Vote) (bool, error) {
	if m.addVoteFunc != nil {
		return m.addVoteFunc(ctx, vote)
	}
	return true, nil
}

func (m *MockStorage) RemoveVote(ctx context.Context, vote domain.Vote) (bool, error) {
	if m.removeVoteFunc != nil {
		return m.removeVoteFunc(ctx, vote)
	}
	return true, nil
}

func (m *MockStorage) CreateComment(ctx context.Context, data domain.CommentCreationData, contentHTML string) (*domain.Comment, error) {
	if m.createCommentFunc != nil {
		return m.createCommentFunc(ctx, data, contentHTML)
	}
	return &domain.Comment{Id: "c1", BoardId: data.BoardId, StickerId: data.StickerId, Content: data.Content, ContentHTML: contentHTML, Author: data.Author}, nil
}

func (m *MockStorage) GetComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) (*domain.Comment, error) {
	if m.getCommentFunc != nil {
		return m.getCommentFunc(ctx, boardId, stickerId, id)
	}
	return &domain.Comment{Id: id, BoardId: boardId, StickerId: stickerId, Author: "author@x.com"}, nil
}

func (m *MockStorage) UpdateComment(ctx context.Context, id domain.CommentId, content, contentHTML string) (*domain.Comment, error) {
	if m.updateCommentFunc != nil {
		return m.updateCommentFunc(ctx, id, content, contentHTML)
	}
	return &domain.Comment{Id: id, Content: content, ContentHTML: contentHTML}, nil
}

func (m *MockStorage) DeleteComment(ctx context.Context, id domain.CommentId) error {
	if m.deleteCommentFunc != nil {
		return m.deleteCommentFunc(ctx, id)
	}
	return nil
}

func rolesOf(roles map[domain.Email]domain.Role) func(ctx context.Context, boardId domain.BoardId, email domain.Email) (domain.Role, error) {
	return func(ctx context.Context, boardId domain.BoardId, email domain.Email) (domain.Role, error) {
		if r, ok := roles[email]; ok {
			return r, nil
		}
		return domain.RoleNone, nil
	}
}

type publishedEvent struct {
	boardId domain.BoardId
	typ     events.Type
	payload any
	origin  domain.SessionId
}

type MockPublisher struct {
	mu   sync.Mutex
	sent []publishedEvent
	err  error
}

func (m *MockPublisher) Publish(ctx context.Context, boardId domain.BoardId, t events.Type, payload any, origin domain.SessionId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, publishedEvent{boardId: boardId, typ: t, payload: payload, origin: origin})
	return nil
}

func (m *MockPublisher) types() []events.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Type, 0, len(m.sent))
	for _, e := range m.sent {
		out = append(out, e.typ)
	}
	return out
}

type MockRenderer struct{}

func (MockRenderer) Render(src string) string { return "<p>" + src + "</p>" }

type MockTimerReader struct {
	currentFunc func(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error)
}

func (m *MockTimerReader) Current(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error) {
	if m.currentFunc != nil {
		return m.currentFunc(ctx, boardId)
	}
	return nil, nil
}
