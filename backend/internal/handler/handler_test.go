package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/itchan-dev/retroboard/shared/domain"
	mw "github.com/itchan-dev/retroboard/shared/middleware"
)

func createRequest(t *testing.T, method, url string, body []byte, email domain.Email) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewBuffer(body))
	if email != "" {
		ctx := context.WithValue(req.Context(), mw.UserClaimsKey, &domain.User{Email: email})
		req = req.WithContext(ctx)
	}
	return req
}

// --- Mock services ---

type MockBoardService struct {
	MockCreate    func(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error)
	MockAddMember func(ctx context.Context, boardId domain.BoardId, actor, email domain.Email) error
	MockSnapshot  func(ctx context.Context, boardId domain.BoardId, email domain.Email) (*domain.BoardSnapshot, error)
}

func (m *MockBoardService) Create(ctx context.Context, name domain.BoardName, owner domain.Email) (*domain.Board, error) {
	if m.MockCreate != nil {
		return m.MockCreate(ctx, name, owner)
	}
	return &domain.Board{Id: "b1", Name: name, Owner: owner}, nil
}

func (m *MockBoardService) AddMember(ctx context.Context, boardId domain.BoardId, actor, email domain.Email) error {
	if m.MockAddMember != nil {
		return m.MockAddMember(ctx, boardId, actor, email)
	}
	return nil
}

func (m *MockBoardService) Snapshot(ctx context.Context, boardId domain.BoardId, email domain.Email) (*domain.BoardSnapshot, error) {
	if m.MockSnapshot != nil {
		return m.MockSnapshot(ctx, boardId, email)
	}
	return &domain.BoardSnapshot{Board: domain.Board{Id: boardId}}, nil
}

type MockStickerService struct {
	MockCreate func(ctx context.Context, data domain.StickerCreationData) (*domain.Sticker, error)
	MockUpdate func(ctx context.Context, data domain.StickerUpdateData) (*domain.Sticker, error)
	MockDelete func(ctx context.Context, boardId domain.BoardId, id domain.StickerId, actor domain.Email) error
}

func (m *MockStickerService) Create(ctx context.Context, data domain.StickerCreationData) (*domain.Sticker, error) {
	if m.MockCreate != nil {
		return m.MockCreate(ctx, data)
	}
	return &domain.Sticker{Id: "s1", BoardId: data.BoardId}, nil
}

func (m *MockStickerService) Update(ctx context.Context, data domain.StickerUpdateData) (*domain.Sticker, error) {
	if m.MockUpdate != nil {
		return m.MockUpdate(ctx, data)
	}
	return &domain.Sticker{Id: data.Id, BoardId: data.BoardId}, nil
}

func (m *MockStickerService) Delete(ctx context.Context, boardId domain.BoardId, id domain.StickerId, actor domain.Email) error {
	if m.MockDelete != nil {
		return m.MockDelete(ctx, boardId, id, actor)
	}
	return nil
}

type MockVoteService struct {
	MockAdd    func(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error
	MockRemove func(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error
}

func (m *MockVoteService) Add(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error {
	if m.MockAdd != nil {
		return m.MockAdd(ctx, boardId, stickerId, email)
	}
	return nil
}

func (m *MockVoteService) Remove(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, email domain.Email) error {
	if m.MockRemove != nil {
		return m.MockRemove(ctx, boardId, stickerId, email)
	}
	return nil
}

type MockCommentService struct {
	MockAdd    func(ctx context.Context, data domain.CommentCreationData) (*domain.Comment, error)
	MockUpdate func(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, editor domain.Email, content string) (*domain.Comment, error)
	MockDelete func(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, actor domain.Email) error
}

func (m *MockCommentService) Add(ctx context.Context, data domain.CommentCreationData) (*domain.Comment, error) {
	if m.MockAdd != nil {
		return m.MockAdd(ctx, data)
	}
	return &domain.Comment{Id: "c1", StickerId: data.StickerId}, nil
}

func (m *MockCommentService) Update(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, editor domain.Email, content string) (*domain.Comment, error) {
	if m.MockUpdate != nil {
		return m.MockUpdate(ctx, boardId, stickerId, id, editor, content)
	}
	return &domain.Comment{Id: id, StickerId: stickerId, Content: content}, nil
}

func (m *MockCommentService) Delete(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, actor domain.Email) error {
	if m.MockDelete != nil {
		return m.MockDelete(ctx, boardId, stickerId, id, actor)
	}
	return nil
}

type MockHealthChecker struct {
	PingFunc func(ctx context.Context) error
}

func (m *MockHealthChecker) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
