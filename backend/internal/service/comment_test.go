package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var commentRoles = map[domain.Email]domain.Role{
	"owner@x.com":  domain.RoleOwner,
	"author@x.com": domain.RoleMember,
	"alice@x.com":  domain.RoleMember,
}

func TestCommentAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		pub := &MockPublisher{}
		service := NewComment(&MockStorage{roleFunc: rolesOf(commentRoles)}, MockRenderer{}, pub)

		c, err := service.Add(ctx, domain.CommentCreationData{BoardId: "b1", StickerId: "s1", Content: " +1 ", Author: "alice@x.com"})
		require.NoError(t, err)

		assert.Equal(t, "+1", c.Content)
		assert.Equal(t, "<p>+1</p>", c.ContentHTML)
		assert.Equal(t, []events.Type{events.CommentAdded}, pub.types())
		assert.Equal(t, "b1", pub.sent[0].boardId)
	})

	t.Run("non member", func(t *testing.T) {
		pub := &MockPublisher{}
		service := NewComment(&MockStorage{roleFunc: rolesOf(commentRoles)}, MockRenderer{}, pub)

		_, err := service.Add(ctx, domain.CommentCreationData{BoardId: "b1", StickerId: "s1", Content: "x", Author: "mallory@x.com"})
		assert.ErrorIs(t, err, internal_errors.ErrForbidden)
		assert.Empty(t, pub.sent)
	})
}

func TestCommentUpdateDelete(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name       string
		actor      string
		delete     bool
		getErr     error
		wantStatus int
		wantEvent  events.Type
	}{
		{name: "Author Updates", actor: "author@x.com", wantEvent: events.CommentUpdated},
		{name: "Author Deletes", actor: "author@x.com", delete: true, wantEvent: events.CommentDeleted},
		{name: "Owner Cannot Update", actor: "owner@x.com", wantStatus: http.StatusForbidden},
		{name: "Owner Cannot Delete", actor: "owner@x.com", delete: true, wantStatus: http.StatusForbidden},
		{name: "Unknown Comment", actor: "author@x.com", getErr: internal_errors.NotFound("Comment not found"), wantStatus: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &MockPublisher{}
			storage := &MockStorage{
				roleFunc: rolesOf(commentRoles),
				getCommentFunc: func(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) (*domain.Comment, error) {
					if tc.getErr != nil {
						return nil, tc.getErr
					}
					return &domain.Comment{Id: id, StickerId: stickerId, BoardId: boardId, Author: "author@x.com"}, nil
				},
			}
			service := NewComment(storage, MockRenderer{}, pub)

			var err error
			if tc.delete {
				err = service.Delete(ctx, "b1", "s1", "c1", tc.actor)
			} else {
				_, err = service.Update(ctx, "b1", "s1", "c1", tc.actor, "edited")
			}

			if tc.wantStatus != 0 {
				assert.Equal(t, tc.wantStatus, internal_errors.StatusCode(err))
				assert.Empty(t, pub.sent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []events.Type{tc.wantEvent}, pub.types())
			if tc.delete {
				assert.Equal(t, events.CommentDeletedPayload{Id: "c1", StickerId: "s1"}, pub.sent[0].payload)
			}
		})
	}
}
